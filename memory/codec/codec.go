// Package codec defines the binary turn record shared by the file and redis
// conversation stores. A file holds a msgpack array of records; a redis list
// element holds exactly one record, so the formats are interchangeable.
package codec

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/vmihailenco/msgpack/v5"
)

// record is the on-disk / on-wire shape of a turn. The timestamp is split
// into Unix seconds and nanoseconds so every time.Time round trips exactly,
// including the zero value.
type record struct {
	ID      string `msgpack:"id"`
	Role    string `msgpack:"role"`
	Content string `msgpack:"content"`
	Seconds int64  `msgpack:"ts"`
	Nanos   int32  `msgpack:"tn"`
}

func toRecord(t core.Turn) record {
	return record{
		ID:      t.ID,
		Role:    string(t.Role),
		Content: t.Content,
		Seconds: t.Timestamp.Unix(),
		Nanos:   int32(t.Timestamp.Nanosecond()),
	}
}

func (r record) turn() (core.Turn, error) {
	role := core.Role(r.Role)
	if !role.Valid() {
		return core.Turn{}, fmt.Errorf("decode turn %s: invalid role %q", r.ID, r.Role)
	}
	if r.Nanos < 0 || r.Nanos >= 1e9 {
		return core.Turn{}, fmt.Errorf("decode turn %s: nanoseconds out of range: %d", r.ID, r.Nanos)
	}
	return core.Turn{ID: r.ID, Role: role, Content: r.Content, Timestamp: time.Unix(r.Seconds, int64(r.Nanos)).UTC()}, nil
}

// EncodeTurn encodes a single turn record.
func EncodeTurn(t core.Turn) ([]byte, error) {
	b, err := msgpack.Marshal(toRecord(t))
	if err != nil {
		return nil, fmt.Errorf("encode turn: %w", err)
	}
	return b, nil
}

// DecodeTurn decodes a single turn record.
func DecodeTurn(b []byte) (core.Turn, error) {
	var r record
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return core.Turn{}, fmt.Errorf("decode turn: %w", err)
	}
	return r.turn()
}

// EncodeTurns encodes a turn sequence as a msgpack array of records.
func EncodeTurns(turns []core.Turn) ([]byte, error) {
	records := make([]record, len(turns))
	for i, t := range turns {
		records[i] = toRecord(t)
	}
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(records); err != nil {
		return nil, fmt.Errorf("encode turns: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTurns decodes a sequence written by EncodeTurns. Empty input is an
// empty sequence.
func DecodeTurns(b []byte) ([]core.Turn, error) {
	if len(b) == 0 {
		return []core.Turn{}, nil
	}
	var records []record
	if err := msgpack.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	turns := make([]core.Turn, 0, len(records))
	for _, r := range records {
		t, err := r.turn()
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, nil
}
