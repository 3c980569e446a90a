package domain_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimestamp = 1733332800000 // 2024-12-04T17:20:00Z

func TestParseRawReading(t *testing.T) {
	t.Run("sensor payload", func(t *testing.T) {
		raw, err := domain.ParseRawReading([]byte(`{"floor":"4","count":37,"timestamp":1733332800000}`))
		require.NoError(t, err)
		assert.Equal(t, "4", raw.Floor)
		assert.Equal(t, 37.0, raw.Count)
		assert.Equal(t, 1733332800000.0, raw.Timestamp)
	})

	t.Run("missing fields stay nil", func(t *testing.T) {
		raw, err := domain.ParseRawReading([]byte(`{"count":3}`))
		require.NoError(t, err)
		assert.Nil(t, raw.Floor)
		assert.Nil(t, raw.Timestamp)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := domain.ParseRawReading([]byte("{invalid json"))
		assert.Error(t, err)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := domain.ParseRawReading([]byte(`[1,2,3]`))
		assert.Error(t, err)
	})
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		raw  domain.RawReading
		want *domain.Reading
	}{
		{
			name: "valid string floor",
			raw:  domain.RawReading{Floor: "4", Count: 37.0, Timestamp: float64(testTimestamp)},
			want: &domain.Reading{Floor: "4", Count: 37, Timestamp: testTimestamp},
		},
		{
			name: "numeric floor coerced",
			raw:  domain.RawReading{Floor: 6.0, Count: 1.0, Timestamp: float64(testTimestamp)},
			want: &domain.Reading{Floor: "6", Count: 1, Timestamp: testTimestamp},
		},
		{
			name: "floor is trimmed",
			raw:  domain.RawReading{Floor: " 2 ", Count: 0.0, Timestamp: float64(testTimestamp)},
			want: &domain.Reading{Floor: "2", Count: 0, Timestamp: testTimestamp},
		},
		{
			name: "go integer fields",
			raw:  domain.RawReading{Floor: "1", Count: 12, Timestamp: int64(testTimestamp)},
			want: &domain.Reading{Floor: "1", Count: 12, Timestamp: testTimestamp},
		},
		{
			name: "json.Number fields",
			raw:  domain.RawReading{Floor: json.Number("5"), Count: json.Number("8"), Timestamp: json.Number("1733332800000")},
			want: &domain.Reading{Floor: "5", Count: 8, Timestamp: testTimestamp},
		},
		{
			name: "fractional timestamp truncated",
			raw:  domain.RawReading{Floor: "1", Count: 1.0, Timestamp: 100.9},
			want: &domain.Reading{Floor: "1", Count: 1, Timestamp: 100},
		},
		{name: "missing count", raw: domain.RawReading{Floor: "1", Timestamp: 100.0}},
		{name: "string count", raw: domain.RawReading{Floor: "1", Count: "12", Timestamp: 100.0}},
		{name: "negative count", raw: domain.RawReading{Floor: "1", Count: -1.0, Timestamp: 100.0}},
		{name: "fractional count", raw: domain.RawReading{Floor: "1", Count: 2.5, Timestamp: 100.0}},
		{name: "NaN count", raw: domain.RawReading{Floor: "1", Count: math.NaN(), Timestamp: 100.0}},
		{name: "missing timestamp", raw: domain.RawReading{Floor: "1", Count: 1.0}},
		{name: "string timestamp", raw: domain.RawReading{Floor: "1", Count: 1.0, Timestamp: "100"}},
		{name: "infinite timestamp", raw: domain.RawReading{Floor: "1", Count: 1.0, Timestamp: math.Inf(1)}},
		{name: "missing floor", raw: domain.RawReading{Count: 1.0, Timestamp: 100.0}},
		{name: "blank floor", raw: domain.RawReading{Floor: "  ", Count: 1.0, Timestamp: 100.0}},
		{name: "boolean floor", raw: domain.RawReading{Floor: true, Count: 1.0, Timestamp: 100.0}},
		{name: "object floor", raw: domain.RawReading{Floor: map[string]any{"id": "1"}, Count: 1.0, Timestamp: 100.0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, dropped := domain.Normalize([]domain.RawReading{tc.raw})
			if tc.want == nil {
				assert.Empty(t, got)
				assert.Equal(t, 1, dropped)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, 0, dropped)
			assert.Equal(t, *tc.want, got[0])
		})
	}
}

func TestNormalize_PreservesOrderAndSkipsBadEntries(t *testing.T) {
	raws := []domain.RawReading{
		{Floor: "1", Count: 5.0, Timestamp: 300.0},
		{Floor: "1", Count: "bad", Timestamp: 200.0},
		{Floor: "2", Count: 7.0, Timestamp: 100.0},
		{},
	}

	got, dropped := domain.Normalize(raws)

	assert.Equal(t, 2, dropped)
	assert.Equal(t, []domain.Reading{
		{Floor: "1", Count: 5, Timestamp: 300},
		{Floor: "2", Count: 7, Timestamp: 100},
	}, got)
}

func TestNormalize_Invariants(t *testing.T) {
	raws := []domain.RawReading{
		{Floor: "1", Count: 5.0, Timestamp: 1.0},
		{Floor: 0.0, Count: 0.0, Timestamp: -5.0},
		{Floor: "x", Count: math.MaxFloat64, Timestamp: 1.0},
		{Floor: "y", Count: 1.0, Timestamp: math.MaxFloat64},
		{Floor: "", Count: 1.0, Timestamp: 1.0},
	}

	got, _ := domain.Normalize(raws)

	require.NotEmpty(t, got)
	for _, r := range got {
		assert.GreaterOrEqual(t, r.Count, 0)
		assert.NotEmpty(t, r.Floor)
	}
}

func TestNormalize_Empty(t *testing.T) {
	got, dropped := domain.Normalize(nil)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Equal(t, 0, dropped)
}
