package ingest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelake/tracelake/ingest"
)

func TestHourKey(t *testing.T) {
	// 2023-11-14T22:13:20Z
	assert.Equal(t, "2023/11/14/22", ingest.HourKey(1_700_000_000_000_000))
	assert.Equal(t, "1970/01/01/00", ingest.HourKey(0))
}

func TestEntryRoundtrip(t *testing.T) {
	e := &ingest.Entry{
		Organization:      "acme",
		Stream:            "app",
		StreamType:        "logs",
		TimeKey:           "2023/11/14/22",
		SchemaFingerprint: "abc",
		Rows: []map[string]any{
			{"_timestamp": int64(1_700_000_000_000_000), "level": "info"},
		},
	}
	payload, err := e.Marshal()
	require.NoError(t, err)

	decoded, err := ingest.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, e.Organization, decoded.Organization)
	assert.Equal(t, e.Stream, decoded.Stream)
	assert.Equal(t, e.TimeKey, decoded.TimeKey)
	require.Len(t, decoded.Rows, 1)
	assert.Equal(t, "info", decoded.Rows[0]["level"])
}

func TestDecodeGarbage(t *testing.T) {
	_, err := ingest.Decode([]byte{0xc1, 0xff, 0x00})
	assert.Error(t, err)
}
