package memtable

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tracelake/tracelake/utils/log"
	"github.com/tracelake/tracelake/wal"
)

// Recover repairs interrupted flushes after an unclean shutdown, restoring
// the invariant that every local output file is either fully finalized or
// absent. It resolves lock manifests (rename partial outputs, drop the
// redundant segment, drop the manifest) strictly before sweeping orphaned
// partial files, so output belonging to a manifest is never mistaken for an
// orphan. Recover is idempotent and is re-run on every process start.
func Recover(walRoot string) error {
	locks, err := findSuffix(walRoot, wal.LockExt)
	if err != nil {
		return fmt.Errorf("scan %s for lock manifests: %w", walRoot, err)
	}

	for _, lockPath := range locks {
		if err := resolveManifest(walRoot, lockPath); err != nil {
			return err
		}
	}

	// Partial files without a manifest never became a committed set.
	orphans, err := findSuffix(filepath.Join(walRoot, filesDir), PartialExt)
	if err != nil {
		return fmt.Errorf("scan %s for orphaned partial output: %w", walRoot, err)
	}
	for _, p := range orphans {
		log.Warn("removing orphaned partial output %s", p)
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("remove orphaned partial output %s: %w", p, err)
		}
	}
	return nil
}

func resolveManifest(walRoot, lockPath string) error {
	// A surviving segment only means its deletion did not complete; the
	// manifest proves the flush was durable.
	seg := wal.SegmentForLock(lockPath)
	if _, err := os.Stat(seg); err == nil {
		log.Info("removing already-flushed segment %s", seg)
		if err := os.Remove(seg); err != nil {
			return fmt.Errorf("remove flushed segment %s: %w", seg, err)
		}
	}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		return fmt.Errorf("read lock manifest %s: %w", lockPath, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		partial := filepath.Join(walRoot, filepath.FromSlash(line))
		if _, err := os.Stat(partial); err != nil {
			// Already renamed by a prior, interrupted Recover pass.
			continue
		}
		if err := os.Rename(partial, FinalPath(partial)); err != nil {
			return fmt.Errorf("finalize %s: %w", partial, err)
		}
	}

	if err := os.Remove(lockPath); err != nil {
		return fmt.Errorf("remove lock manifest %s: %w", lockPath, err)
	}
	log.Info("resolved lock manifest %s", lockPath)
	return nil
}

func findSuffix(root, suffix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, suffix) {
			out = append(out, p)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
