package metrics

import (
	"io/fs"
	"path/filepath"
	"time"

	"github.com/tracelake/tracelake/utils/log"
)

// Setter is an interface for prometheus metrics to improve unit-testability.
type Setter interface {
	Set(m float64)
}

// StartDiskUsageMonitor retrieves the total disk usage of the provided
// directory at each provided time interval, and sets it as a prometheus metric.
func StartDiskUsageMonitor(s Setter, rootDir string, interval time.Duration) {
	s.Set(float64(diskUsage(rootDir)))

	t := time.NewTicker(interval)
	for range t.C {
		s.Set(float64(diskUsage(rootDir)))
	}
}

func diskUsage(path string) int64 {
	var totalSize int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		log.Error("get the disk usage of the directory for monitoring: %s: %v", path, err)
	}
	return totalSize
}
