package wal_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelake/tracelake/wal"
)

func TestAppendReadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "0", "acme", "logs", "1.log")

	w, err := wal.Create(path)
	require.NoError(t, err)

	records := [][]byte{
		[]byte("first"),
		[]byte("second record with more data"),
		[]byte("third"),
	}
	for _, rec := range records {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Close())

	r, err := wal.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	for _, want := range records {
		got, err := r.ReadNext()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = r.ReadNext()
	assert.Equal(t, io.EOF, err)
}

func TestReadNextChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "0", "acme", "logs", "1.log")

	w, err := wal.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("good record one")))
	require.NoError(t, w.Append([]byte("record to corrupt")))
	require.NoError(t, w.Append([]byte("good record two")))
	require.NoError(t, w.Close())

	// Flip one byte inside the second record's payload.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	secondPayloadOffset := int64(8 + len("good record one") + 8)
	_, err = f.WriteAt([]byte{'X'}, secondPayloadOffset+3)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := wal.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, []byte("good record one"), got)

	_, err = r.ReadNext()
	var checksumErr wal.ChecksumError
	require.ErrorAs(t, err, &checksumErr)
	assert.Equal(t, path, checksumErr.Path)

	// The reader advanced past the corrupt record.
	got, err = r.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, []byte("good record two"), got)
}

func TestReadNextTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "0", "acme", "logs", "1.log")

	w, err := wal.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("complete")))
	require.NoError(t, w.Append([]byte("this one gets torn")))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-5))

	r, err := wal.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadNext()
	require.NoError(t, err)

	_, err = r.ReadNext()
	var shortErr wal.ShortReadError
	require.ErrorAs(t, err, &shortErr)
}

func TestParseSegmentPath(t *testing.T) {
	root := t.TempDir()
	path := wal.SegmentPath(root, 3, "acme", "logs")

	shard, organization, streamType, err := wal.ParseSegmentPath(path)
	require.NoError(t, err)
	assert.Equal(t, 3, shard)
	assert.Equal(t, "acme", organization)
	assert.Equal(t, "logs", streamType)

	_, _, _, err = wal.ParseSegmentPath("short.log")
	assert.Error(t, err)
}

func TestListSegmentsOldestFirst(t *testing.T) {
	root := t.TempDir()
	paths := []string{
		filepath.Join(root, "logs", "0", "acme", "logs", "100.log"),
		filepath.Join(root, "logs", "0", "acme", "logs", "200.log"),
		filepath.Join(root, "logs", "1", "acme", "metrics", "150.log"),
	}
	for _, p := range paths {
		w, err := wal.Create(p)
		require.NoError(t, err)
		require.NoError(t, w.Append([]byte("x")))
		require.NoError(t, w.Close())
	}

	segments, err := wal.ListSegments(root)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, paths[0], segments[0])
	assert.Equal(t, paths[1], segments[1])

	// Missing root is not an error.
	segments, err = wal.ListSegments(filepath.Join(root, "nope"))
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestLockPath(t *testing.T) {
	seg := "/data/logs/0/acme/logs/123.log"
	lock := wal.LockPath(seg)
	assert.Equal(t, "/data/logs/0/acme/logs/123.lock", lock)
	assert.Equal(t, seg, wal.SegmentForLock(lock))
}
