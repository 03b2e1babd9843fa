package memtable

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tracelake/tracelake/columnar"
	"github.com/tracelake/tracelake/metacache"
	"github.com/tracelake/tracelake/metrics"
	"github.com/tracelake/tracelake/schema"
)

const (
	// PartialExt marks locally written but not yet finalized output.
	PartialExt = ".par"
	// FinalExt marks finalized columnar files.
	FinalExt = ".parquet"

	filesDir = "files"
)

// PersistStat accounts for one persisted output chunk.
type PersistStat struct {
	SizeUncompressed int64
	SizeEncoded      int64
	FileCount        int
	BatchCount       int
	RecordCount      int64
}

// PersistResult pairs a partial-output path with its stat and metadata.
type PersistResult struct {
	Path string
	Stat PersistStat
	Meta columnar.FileMeta
}

// PersistConfig carries the operational knobs of the persist pipeline.
type PersistConfig struct {
	WALRoot             string
	MaxRowsPerChunk     int
	BloomFieldThreshold int
	Encode              columnar.EncodeOptions
}

// FinalPath returns the finalized name of a partial-output path.
func FinalPath(partial string) string {
	return strings.TrimSuffix(partial, PartialExt) + FinalExt
}

// chunkBatches greedily accumulates batches into chunks, starting a new
// chunk whenever adding the next batch would push the row count over
// maxRows. A chunk whose first batch alone exceeds maxRows is kept whole.
func chunkBatches(batches []*columnar.Batch, maxRows int) [][]*columnar.Batch {
	var chunks [][]*columnar.Batch
	var current []*columnar.Batch
	rows := 0
	for _, b := range batches {
		if len(current) > 0 && rows+b.NumRows() > maxRows {
			chunks = append(chunks, current)
			current = nil
			rows = 0
		}
		current = append(current, b)
		rows += b.NumRows()
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// Persist encodes every time bucket with data into partial columnar files
// under the WAL root and registers each chunk's metadata in the cache under
// its eventual finalized name. It returns the union schema's serialized
// size and the produced paths with their stats.
//
// Persist is not atomic across buckets: a failure aborts the remaining
// buckets and leaves earlier output on disk for Recover to reconcile.
func (p *Partition) Persist(shard int, organization, streamType, stream string,
	reg schema.Registry, cache *metacache.Cache, cfg *PersistConfig,
) (int64, []PersistResult, error) {
	if p.Empty() {
		return 0, nil, nil
	}

	var bloomFields []string
	if p.sch.Len() >= cfg.BloomFieldThreshold {
		// Below the threshold the filter cost is not worth paying.
		bloomFields = reg.BloomFields(organization, streamType, stream)
	}

	var results []PersistResult
	for _, bucket := range p.sortedKeys() {
		pf := p.files[bucket]
		for _, chunk := range chunkBatches(pf.batches, cfg.MaxRowsPerChunk) {
			meta := columnar.ChunkMeta(chunk)

			dir := filepath.Join(cfg.WALRoot, filesDir, organization, streamType, stream,
				strconv.Itoa(shard), bucket)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return 0, results, fmt.Errorf("create output dir %s: %w", dir, err)
			}
			name := fmt.Sprintf("%d.%d.%s%s", meta.MinTs, meta.MaxTs, uuid.NewString(), PartialExt)
			path := filepath.Join(dir, name)

			written, err := writeChunkFile(path, stream, p.sch, chunk, meta, bloomFields, cfg.Encode)
			if err != nil {
				return 0, results, err
			}
			meta.CompressedSize = written

			// Register under the finalized name so the local query path sees
			// the file as soon as it is durable, ahead of the rename.
			cache.Set(FinalPath(path), meta)

			metrics.IngestWALUsedBytes.WithLabelValues(organization, streamType).Add(float64(written))
			metrics.IngestWALWriteBytes.WithLabelValues(organization, streamType).Add(float64(written))

			stat := PersistStat{
				FileCount:   1,
				BatchCount:  len(chunk),
				RecordCount: meta.Records,
			}
			for _, b := range chunk {
				stat.SizeUncompressed += b.SizeUncompressed()
				stat.SizeEncoded += b.SizeEncoded()
			}
			results = append(results, PersistResult{Path: path, Stat: stat, Meta: meta})
		}
	}
	return p.sch.SerializedSize(), results, nil
}

// writeChunkFile encodes one chunk into a partial-output file and returns
// the number of bytes written. The file handle is released on every path.
func writeChunkFile(path, stream string, union *schema.Schema, chunk []*columnar.Batch,
	meta columnar.FileMeta, bloomFields []string, opt columnar.EncodeOptions,
) (written int64, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open partial output %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close partial output %s: %w", path, cerr)
		}
	}()

	cw := &countingWriter{w: f}
	if err := columnar.EncodeChunk(cw, stream, union, chunk, meta, bloomFields, opt); err != nil {
		return 0, fmt.Errorf("encode chunk to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("sync partial output %s: %w", path, err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
