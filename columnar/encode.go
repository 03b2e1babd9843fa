package columnar

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/tracelake/tracelake/schema"
	"github.com/tracelake/tracelake/utils/log"
)

// Metadata keys embedded in every finalized output file.
const (
	MetaMinTs        = "min_ts"
	MetaMaxTs        = "max_ts"
	MetaRecords      = "records"
	MetaOriginalSize = "original_size"
)

// bloomMinNdv is the floor for the distinct-value estimate used to size
// per-column bloom filters.
const bloomMinNdv = 1000

// EncodeOptions carries the file-format knobs of the persist pipeline.
type EncodeOptions struct {
	// WriteBufferSize is the target encode batch size in rows.
	WriteBufferSize int
	// MaxRowGroupSize bounds the rows per row group.
	MaxRowGroupSize int64
	// Codec selects the compression codec by name: zstd, snappy, gzip, none.
	Codec string
	// DisableCompression forces the whole file uncompressed.
	DisableCompression bool
	// TimestampUncompressed leaves the event-time column uncompressed.
	TimestampUncompressed bool

	BloomEnabled  bool
	BloomFPP      float64
	BloomNdvRatio int64
}

func codecByName(name string) (compress.Codec, error) {
	switch name {
	case "zstd", "":
		return &parquet.Zstd, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none":
		return &parquet.Uncompressed, nil
	}
	return nil, fmt.Errorf("unsupported compression codec %q", name)
}

// parquetSchema maps a union schema to the on-disk schema. The event-time
// column is required, dictionary encoding is disabled for it in favor of
// delta binary packing, and every other column is optional so batches
// written before a schema grew still encode cleanly.
func parquetSchema(stream string, union *schema.Schema, opt EncodeOptions) (*parquet.Schema, error) {
	g := parquet.Group{}
	for _, f := range union.Fields() {
		var node parquet.Node
		switch f.Type {
		case schema.TypeUtf8:
			node = parquet.String()
		case schema.TypeInt64:
			node = parquet.Int(64)
		case schema.TypeFloat64:
			node = parquet.Leaf(parquet.DoubleType)
		case schema.TypeBool:
			node = parquet.Leaf(parquet.BooleanType)
		default:
			return nil, fmt.Errorf("field %s: unsupported type %v", f.Name, f.Type)
		}

		if f.Name == schema.TimestampField {
			node = parquet.Encoded(node, &parquet.DeltaBinaryPacked)
			if opt.TimestampUncompressed {
				node = parquet.Compressed(node, &parquet.Uncompressed)
			}
		} else {
			node = parquet.Optional(node)
		}
		g[f.Name] = node
	}
	return parquet.NewSchema(stream, g), nil
}

// bloomFilters sizes one split-block filter per selected field. The
// distinct-value estimate is records/ndvRatio floored at bloomMinNdv; the
// bits-per-value follows from the target false-positive probability.
func bloomFilters(fields []string, records int64, opt EncodeOptions) []parquet.BloomFilterColumn {
	if !opt.BloomEnabled || len(fields) == 0 {
		return nil
	}
	ndv := records / opt.BloomNdvRatio
	if ndv < bloomMinNdv {
		ndv = bloomMinNdv
	}

	bitsPerValue := int(math.Ceil(-math.Log(opt.BloomFPP) / (math.Ln2 * math.Ln2)))
	if bitsPerValue < 1 {
		bitsPerValue = 1
	}
	log.Debug("bloom filters on %d field(s): ndv estimate %d, %d bits/value", len(fields), ndv, bitsPerValue)

	filters := make([]parquet.BloomFilterColumn, 0, len(fields))
	for _, f := range fields {
		filters = append(filters, parquet.SplitBlockFilter(uint(bitsPerValue), f))
	}
	return filters
}

// EncodeChunk aligns the chunk's batches to the union schema, merges them
// and encodes one columnar file to w.
func EncodeChunk(w io.Writer, stream string, union *schema.Schema, batches []*Batch,
	meta FileMeta, bloomFields []string, opt EncodeOptions,
) error {
	ps, err := parquetSchema(stream, union, opt)
	if err != nil {
		return fmt.Errorf("build file schema for stream %s: %w", stream, err)
	}
	codec, err := codecByName(opt.Codec)
	if err != nil {
		return err
	}
	if opt.DisableCompression {
		codec = &parquet.Uncompressed
	}

	options := []parquet.WriterOption{
		ps,
		parquet.Compression(codec),
		parquet.KeyValueMetadata(MetaMinTs, strconv.FormatInt(meta.MinTs, 10)),
		parquet.KeyValueMetadata(MetaMaxTs, strconv.FormatInt(meta.MaxTs, 10)),
		parquet.KeyValueMetadata(MetaRecords, strconv.FormatInt(meta.Records, 10)),
		parquet.KeyValueMetadata(MetaOriginalSize, strconv.FormatInt(meta.OriginalSize, 10)),
	}
	if opt.MaxRowGroupSize > 0 {
		options = append(options, parquet.MaxRowsPerRowGroup(opt.MaxRowGroupSize))
	}
	if opt.WriteBufferSize > 0 {
		options = append(options, parquet.WriteBufferSize(opt.WriteBufferSize))
	}
	if filters := bloomFilters(bloomFields, meta.Records, opt); len(filters) > 0 {
		options = append(options, parquet.BloomFilters(filters...))
	}

	pw := parquet.NewGenericWriter[map[string]any](w, options...)
	for _, b := range batches {
		rows := make([]map[string]any, b.NumRows())
		for i := range rows {
			rows[i] = b.Row(i)
		}
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("encode chunk for stream %s: %w", stream, err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("finalize chunk for stream %s: %w", stream, err)
	}
	return nil
}
