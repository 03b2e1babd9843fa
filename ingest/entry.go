// Package ingest defines the decoded unit of work flowing through the write
// path: one Entry per durable-log record.
package ingest

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// HourKeyLayout formats the time-partition key of an entry. The key contains
// path separators so each hour bucket maps to its own output directory.
const HourKeyLayout = "2006/01/02/15"

// Entry is one decoded durable-log record: the rows one client request
// contributed to a single stream. An Entry is consumed exactly once by a
// memtable partition write.
type Entry struct {
	Organization      string           `msgpack:"organization"`
	Stream            string           `msgpack:"stream"`
	StreamType        string           `msgpack:"stream_type"`
	TimeKey           string           `msgpack:"time_key"`
	SchemaFingerprint string           `msgpack:"schema_fingerprint"`
	Rows              []map[string]any `msgpack:"rows"`
}

// HourKey derives the time-partition key for an event timestamp in
// microseconds.
func HourKey(tsMicro int64) string {
	return time.UnixMicro(tsMicro).UTC().Format(HourKeyLayout)
}

// Marshal encodes the entry for a durable-log append.
func (e *Entry) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal entry for stream %s/%s: %w", e.Organization, e.Stream, err)
	}
	return b, nil
}

// Decode decodes one durable-log record payload.
func Decode(payload []byte) (*Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode entry record: %w", err)
	}
	return &e, nil
}
