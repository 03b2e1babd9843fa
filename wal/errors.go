package wal

import "fmt"

// ChecksumError reports a record whose payload did not match its stored
// checksum. The reader has already advanced past the record, so callers may
// skip it and continue with the next record.
type ChecksumError struct {
	Path   string
	Offset int64
	Want   uint32
	Got    uint32
}

func (e ChecksumError) Error() string {
	return fmt.Sprintf("wal %s: checksum mismatch at offset %d: want %08x got %08x", e.Path, e.Offset, e.Want, e.Got)
}

// ShortReadError reports a truncated record at the tail of a segment,
// typically the result of a crash mid-append. No further records can be read
// from the segment.
type ShortReadError struct {
	Path   string
	Offset int64
	Cause  error
}

func (e ShortReadError) Error() string {
	return fmt.Sprintf("wal %s: short read at offset %d: %v", e.Path, e.Offset, e.Cause)
}

// LengthError reports a record header carrying an implausible length.
type LengthError struct {
	Path   string
	Offset int64
	Length uint32
}

func (e LengthError) Error() string {
	return fmt.Sprintf("wal %s: implausible record length %d at offset %d", e.Path, e.Length, e.Offset)
}
