package eventlog

import (
	"encoding/json"
	"time"
)

// Event is an immutable record appended to a channel.
type Event struct {
	ID        int64           `json:"id"`
	Channel   string          `json:"channel"`
	Type      string          `json:"type,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ChannelSummary is the per-channel line of a monitoring snapshot.
type ChannelSummary struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	Throughput int    `json:"throughput"`
}

// CursorState is a persisted consumer offset as seen by readers.
type CursorState struct {
	Consumer  string    `json:"consumer"`
	Channel   string    `json:"channel"`
	Offset    int64     `json:"offset"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func decodeEvent(channel string, id uint64, raw []byte) (Event, error) {
	dec, ok := DecodeRecord(raw)
	if !ok {
		return Event{}, ErrCorruptRecord
	}
	ts, typ, ok := decodeHeader(dec.Header)
	if !ok {
		return Event{}, ErrCorruptRecord
	}
	return Event{
		ID:        int64(id),
		Channel:   channel,
		Type:      typ,
		Payload:   json.RawMessage(dec.Payload),
		Timestamp: time.Unix(0, ts).UTC(),
	}, nil
}
