package feed_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeExport(t *testing.T) {
	t.Run("database root with readings path", func(t *testing.T) {
		doc := `{"readings": {
			"-Nz3": {"floor": "4", "count": 12, "timestamp": 1733332800000},
			"-Nz1": {"floor": 2, "count": 30, "timestamp": 1733332800000},
			"-Nz2": {"count": 5}
		}}`

		records, err := feed.DecodeExport(strings.NewReader(doc))
		require.NoError(t, err)

		require.Len(t, records, 3)
		assert.Equal(t, []string{"-Nz3", "-Nz1", "-Nz2"}, []string{records[0].ID, records[1].ID, records[2].ID})
		assert.Equal(t, "4", records[0].Raw.Floor)
		assert.Equal(t, json.Number("12"), records[0].Raw.Count)
		assert.Equal(t, json.Number("2"), records[1].Raw.Floor)
		assert.Nil(t, records[2].Raw.Floor)

		readings, dropped := domain.Normalize([]domain.RawReading{records[0].Raw, records[1].Raw, records[2].Raw})
		assert.Equal(t, 1, dropped)
		assert.Equal(t, []domain.Reading{
			{Floor: "4", Count: 12, Timestamp: 1733332800000},
			{Floor: "2", Count: 30, Timestamp: 1733332800000},
		}, readings)
	})

	t.Run("bare id mapping", func(t *testing.T) {
		records, err := feed.DecodeExport(strings.NewReader(`{"a": {"floor": "1", "count": 1, "timestamp": 1}, "b": 42}`))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, domain.RawReading{}, records[1].Raw)
	})

	t.Run("array", func(t *testing.T) {
		records, err := feed.DecodeExport(strings.NewReader(`[{"floor": "1", "count": 1, "timestamp": 1}, null]`))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "0", records[0].ID)
		assert.Equal(t, "1", records[1].ID)
	})

	t.Run("empty documents", func(t *testing.T) {
		for _, doc := range []string{"", "null", "  ", `{"readings": null}`, "{}"} {
			records, err := feed.DecodeExport(strings.NewReader(doc))
			require.NoError(t, err, doc)
			assert.Empty(t, records, doc)
		}
	})

	t.Run("trailing data after the top-level value", func(t *testing.T) {
		for _, doc := range []string{
			`{"a": {"floor": "1", "count": 1, "timestamp": 1}} garbage`,
			`{"readings": {"a": {}}} {"b": {}}`,
			`{"a": {}}}`,
			`[{"floor": "1"}] x`,
		} {
			_, err := feed.DecodeExport(strings.NewReader(doc))
			assert.Error(t, err, doc)
		}

		records, err := feed.DecodeExport(strings.NewReader("{\"a\": {}}\n\n"))
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("invalid documents", func(t *testing.T) {
		for _, doc := range []string{`"text"`, `{"a": `, `[1,`} {
			_, err := feed.DecodeExport(strings.NewReader(doc))
			assert.Error(t, err, doc)
		}
	})
}

func TestEncodeExport_ReadableByDecodeExport(t *testing.T) {
	records := []feed.Record{
		{ID: "z", Raw: domain.RawReading{Floor: "8", Count: 3, Timestamp: int64(1000)}},
		{ID: "a", Raw: domain.RawReading{Floor: "1", Count: 4, Timestamp: int64(2000)}},
	}

	var buf bytes.Buffer
	require.NoError(t, feed.EncodeExport(&buf, records))

	decoded, err := feed.DecodeExport(&buf)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "z", decoded[0].ID)
	assert.Equal(t, "a", decoded[1].ID)

	readings, dropped := domain.Normalize([]domain.RawReading{decoded[0].Raw, decoded[1].Raw})
	assert.Equal(t, 0, dropped)
	assert.Equal(t, domain.FloorID("8"), readings[0].Floor)
	assert.Equal(t, int64(2000), readings[1].Timestamp)
}
