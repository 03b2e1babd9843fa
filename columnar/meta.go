package columnar

// FileMeta describes one persisted output chunk. It is embedded in the
// file's key-value metadata and registered in the metadata cache so the
// local query path can prune files without opening them.
type FileMeta struct {
	MinTs          int64 `json:"min_ts"`
	MaxTs          int64 `json:"max_ts"`
	Records        int64 `json:"records"`
	OriginalSize   int64 `json:"original_size"`
	CompressedSize int64 `json:"compressed_size"`
}

// ChunkMeta scans a chunk's batches into a FileMeta. A batch min timestamp
// of 0 is treated as unset and does not contribute to MinTs.
func ChunkMeta(batches []*Batch) FileMeta {
	var m FileMeta
	for _, b := range batches {
		m.Records += int64(b.NumRows())
		m.OriginalSize += b.SizeUncompressed()
		if ts := b.MinTs(); ts > 0 && (m.MinTs == 0 || ts < m.MinTs) {
			m.MinTs = ts
		}
		if ts := b.MaxTs(); ts > m.MaxTs {
			m.MaxTs = ts
		}
	}
	return m
}
