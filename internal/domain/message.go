package domain

import (
	"context"
	"time"
)

// RawMessage is an undecoded reading as received from a transport (a Kafka
// record or an MQTT publish).
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// DecodeMessage parses a message value into a RawReading. Sensors without a
// real-time clock omit the timestamp; the transport receive time is used
// instead when available.
func DecodeMessage(msg RawMessage) (RawReading, error) {
	raw, err := ParseRawReading(msg.Value)
	if err != nil {
		return RawReading{}, err
	}
	if raw.Timestamp == nil && !msg.Timestamp.IsZero() {
		raw.Timestamp = msg.Timestamp.UnixMilli()
	}
	return raw, nil
}
