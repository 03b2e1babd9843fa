package memtable

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.cloudfoundry.org/bytefmt"

	"github.com/tracelake/tracelake/metacache"
	"github.com/tracelake/tracelake/schema"
	"github.com/tracelake/tracelake/utils/log"
	"github.com/tracelake/tracelake/wal"
)

// Flush persists the immutables swapped out of one writer and finalizes
// their output against the writer's log segment:
//
//  1. persist every immutable to partial-output files
//  2. durably write the lock manifest named after the segment
//  3. delete the segment (the manifest now marks the data durable)
//  4. rename every partial output to its finalized name
//  5. delete the manifest
//
// A crash at any step leaves a state the next Recover pass reconciles.
func Flush(segmentPath string, immutables []*Immutable,
	reg schema.Registry, cache *metacache.Cache, cfg *PersistConfig,
) ([]PersistResult, error) {
	var results []PersistResult
	var totalUncompressed int64
	for _, im := range immutables {
		_, rs, err := im.Persist(reg, cache, cfg)
		if err != nil {
			// Earlier buckets may already be on disk; Recover sweeps them.
			return nil, fmt.Errorf("persist stream %s: %w", im.Stream(), err)
		}
		results = append(results, rs...)
		totalUncompressed += im.SizeUncompressed()
	}

	lockPath := wal.LockPath(segmentPath)
	if err := writeManifest(lockPath, cfg.WALRoot, results); err != nil {
		return nil, err
	}

	if err := os.Remove(segmentPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove flushed segment %s: %w", segmentPath, err)
	}

	for _, r := range results {
		if err := os.Rename(r.Path, FinalPath(r.Path)); err != nil {
			return nil, fmt.Errorf("finalize %s: %w", r.Path, err)
		}
	}

	if err := os.Remove(lockPath); err != nil {
		return nil, fmt.Errorf("remove lock manifest %s: %w", lockPath, err)
	}

	log.Info("flushed %d file(s) for segment %s, %s uncompressed",
		len(results), filepath.Base(segmentPath), bytefmt.ByteSize(uint64(totalUncompressed)))
	return results, nil
}

// writeManifest durably records the partial-output paths of one flush
// cycle, one WAL-root-relative path per line. Its existence marks the
// flush's segment as safe to delete.
func writeManifest(lockPath, walRoot string, results []PersistResult) (err error) {
	var lines []string
	for _, r := range results {
		rel, err := filepath.Rel(walRoot, r.Path)
		if err != nil {
			return fmt.Errorf("relativize %s against %s: %w", r.Path, walRoot, err)
		}
		lines = append(lines, filepath.ToSlash(rel))
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create lock manifest %s: %w", lockPath, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close lock manifest %s: %w", lockPath, cerr)
		}
	}()

	if _, err := f.WriteString(strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("write lock manifest %s: %w", lockPath, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock manifest %s: %w", lockPath, err)
	}
	return nil
}
