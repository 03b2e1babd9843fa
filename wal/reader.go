package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// Reader sequentially decodes the records of one segment file.
type Reader struct {
	f      *os.File
	path   string
	offset int64
}

// OpenReader opens a segment for sequential reading.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	return &Reader{f: f, path: path}, nil
}

// ReadNext returns the next record payload. It returns io.EOF at the clean
// end of the segment, a ChecksumError for a record whose payload fails
// verification (the reader has advanced past it), a LengthError for an
// implausible header, and a ShortReadError for a truncated tail.
func (r *Reader) ReadNext() ([]byte, error) {
	recordStart := r.offset

	var header [recordHeaderLen]byte
	n, err := io.ReadFull(r.f, header[:])
	r.offset += int64(n)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, ShortReadError{Path: r.path, Offset: recordStart, Cause: err}
	}

	length := binary.BigEndian.Uint32(header[0:4])
	want := binary.BigEndian.Uint32(header[4:8])
	if length == 0 || length > maxRecordLen {
		return nil, LengthError{Path: r.path, Offset: recordStart, Length: length}
	}

	payload := make([]byte, length)
	n, err = io.ReadFull(r.f, payload)
	r.offset += int64(n)
	if err != nil {
		return nil, ShortReadError{Path: r.path, Offset: recordStart, Cause: err}
	}

	if got := crc32.Checksum(payload, castagnoli); got != want {
		return nil, ChecksumError{Path: r.path, Offset: recordStart, Want: want, Got: got}
	}
	return payload, nil
}

// Path returns the segment file path.
func (r *Reader) Path() string {
	return r.path
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
