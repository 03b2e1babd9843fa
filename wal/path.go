package wal

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const logsDir = "logs"

// SegmentPath builds the path of a new segment for one writer:
// <root>/logs/<shard>/<organization>/<stream_type>/<unix_micro>.log.
// The writer identity is recoverable from the path alone, which replay
// depends on.
func SegmentPath(root string, shard int, organization, streamType string) string {
	name := strconv.FormatInt(time.Now().UTC().UnixMicro(), 10) + SegmentExt
	return filepath.Join(root, logsDir, strconv.Itoa(shard), organization, streamType, name)
}

// ParseSegmentPath derives (shard, organization, stream type) from the
// 4th/3rd/2nd-from-last path components of a segment path.
func ParseSegmentPath(path string) (shard int, organization, streamType string, err error) {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	if len(parts) < 4 {
		return 0, "", "", fmt.Errorf("segment path %s too short to carry a writer key", path)
	}
	shardStr := parts[len(parts)-4]
	organization = parts[len(parts)-3]
	streamType = parts[len(parts)-2]
	shard, err = strconv.Atoi(shardStr)
	if err != nil {
		return 0, "", "", fmt.Errorf("segment path %s: invalid shard index %q: %w", path, shardStr, err)
	}
	return shard, organization, streamType, nil
}

// ListSegments returns every segment under the WAL root, oldest first.
// Segment names are microsecond timestamps, so lexicographic order within a
// writer directory is creation order.
func ListSegments(root string) ([]string, error) {
	dir := filepath.Join(root, logsDir)
	var segments []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, SegmentExt) {
			segments = append(segments, p)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// No segments written yet.
			return nil, nil
		}
		return nil, fmt.Errorf("list segments under %s: %w", dir, err)
	}
	sort.Strings(segments)
	return segments, nil
}

// LockPath returns the lock-manifest path for a segment: the segment path
// with its extension swapped to .lock.
func LockPath(segmentPath string) string {
	return strings.TrimSuffix(segmentPath, SegmentExt) + LockExt
}

// SegmentForLock returns the segment path a lock manifest belongs to.
func SegmentForLock(lockPath string) string {
	return strings.TrimSuffix(lockPath, LockExt) + SegmentExt
}
