package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/couchcryptid/occupancy-service/internal/domain"
)

// exportRoot is the database path readings are stored under in an export.
const exportRoot = "readings"

// DecodeExport reads a realtime-database style export and returns its records
// in document order. Accepted shapes:
//
//	{"readings": {"<id>": {...}, ...}}
//	{"<id>": {...}, ...}
//	[{...}, ...]                  (ids are the array indexes)
//
// Entries that are not JSON objects are kept as empty readings so that the
// normalizer counts them as dropped.
func DecodeExport(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode export array: %w", err)
		}
		records := make([]Record, len(items))
		for i, item := range items {
			records[i] = Record{ID: strconv.Itoa(i), Raw: decodeRaw(item)}
		}
		return records, nil
	case '{':
		keys, values, err := readObject(data)
		if err != nil {
			return nil, err
		}
		if len(keys) == 1 && keys[0] == exportRoot {
			return DecodeExport(bytes.NewReader(values[0]))
		}
		records := make([]Record, len(keys))
		for i := range keys {
			records[i] = Record{ID: keys[i], Raw: decodeRaw(values[i])}
		}
		return records, nil
	default:
		return nil, errors.New("decode export: expected a JSON object or array")
	}
}

// readObject decodes a JSON object keeping its key order, which
// encoding/json maps would lose.
func readObject(data []byte) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("decode export: %w", err)
	}

	var keys []string
	var values []json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("decode export key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("decode export: unexpected token %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("decode export value %q: %w", key, err)
		}
		keys = append(keys, key)
		values = append(values, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("decode export: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, nil, errors.New("decode export: unexpected data after top-level object")
	}
	return keys, values, nil
}

func decodeRaw(msg json.RawMessage) domain.RawReading {
	var raw domain.RawReading
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return domain.RawReading{}
	}
	return raw
}

// EncodeExport writes records as {"readings": {"<id>": {...}}} preserving
// their order.
func EncodeExport(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(`{"` + exportRoot + `":{`); err != nil {
		return err
	}
	for i, r := range records {
		if i > 0 {
			if err := bw.WriteByte(','); err != nil {
				return err
			}
		}
		key, err := json.Marshal(r.ID)
		if err != nil {
			return fmt.Errorf("encode record id: %w", err)
		}
		value, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
		// bufio errors are sticky; Flush reports them.
		bw.Write(key)
		bw.WriteByte(':')
		bw.Write(value)
	}
	if _, err := bw.WriteString("}}\n"); err != nil {
		return err
	}
	return bw.Flush()
}
