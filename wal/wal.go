// Package wal implements the durable append-only record log that backs the
// ingestion write path. Each (shard, organization, stream type) writer owns
// one active segment at a time; records are length-framed and checksummed so
// the startup replay can detect torn or corrupted appends.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

const (
	// Record framing: 4-byte big-endian payload length, 4-byte CRC32C of the
	// payload, then the payload itself.
	recordHeaderLen = 8

	// maxRecordLen bounds a single record. A header length above this is
	// treated as corruption rather than attempted as an allocation.
	maxRecordLen = 128 * 1024 * 1024

	SegmentExt = ".log"
	LockExt    = ".lock"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Writer appends records to a single segment file. Access is single
// threaded; the owning shard writer provides mutual exclusion.
type Writer struct {
	f    *os.File
	path string
}

// Create opens a new segment file for appending, creating parent
// directories as needed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create segment dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}
	return &Writer{f: f, path: path}, nil
}

// Append frames and writes one record. The record is not durable until
// Sync returns.
func (w *Writer) Append(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var header [recordHeaderLen]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[4:8], crc32.Checksum(payload, castagnoli))
	if _, err := w.f.Write(header[:]); err != nil {
		return fmt.Errorf("append record header to %s: %w", w.path, err)
	}
	if _, err := w.f.Write(payload); err != nil {
		return fmt.Errorf("append record payload to %s: %w", w.path, err)
	}
	return nil
}

// Sync flushes appended records to stable storage.
func (w *Writer) Sync() error {
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync segment %s: %w", w.path, err)
	}
	return nil
}

// Path returns the segment file path.
func (w *Writer) Path() string {
	return w.path
}

// Close syncs and closes the segment.
func (w *Writer) Close() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("sync segment %s on close: %w", w.path, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close segment %s: %w", w.path, err)
	}
	return nil
}
