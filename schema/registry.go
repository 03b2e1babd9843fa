package schema

import (
	"sync"
)

// Registry resolves the authoritative schema of a stream. The production
// implementation lives in the metadata service; the write path only depends
// on this interface.
type Registry interface {
	// Reconcile unions an inferred schema into the stream's authoritative
	// schema and returns the result together with its fingerprint.
	Reconcile(organization, streamType, stream string, inferred *Schema) (*Schema, string, error)

	// BloomFields returns the configured bloom-filter field list for a
	// stream.
	BloomFields(organization, streamType, stream string) []string
}

// MemRegistry is an in-process Registry used by the default wiring and by
// tests. Safe for concurrent use.
type MemRegistry struct {
	mu           sync.RWMutex
	schemas      map[string]*Schema
	bloomFields  map[string][]string
	defaultBloom []string
}

// NewMemRegistry builds an empty registry with a default bloom-filter field
// list applied to streams without a per-stream setting.
func NewMemRegistry(defaultBloomFields []string) *MemRegistry {
	return &MemRegistry{
		schemas:      map[string]*Schema{},
		bloomFields:  map[string][]string{},
		defaultBloom: defaultBloomFields,
	}
}

func streamKey(organization, streamType, stream string) string {
	return organization + "/" + streamType + "/" + stream
}

func (r *MemRegistry) Reconcile(organization, streamType, stream string, inferred *Schema) (*Schema, string, error) {
	key := streamKey(organization, streamType, stream)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.schemas[key]
	if !ok {
		r.schemas[key] = inferred
		return inferred, inferred.Fingerprint(), nil
	}
	merged, _ := current.Merge(inferred)
	r.schemas[key] = merged
	return merged, merged.Fingerprint(), nil
}

func (r *MemRegistry) BloomFields(organization, streamType, stream string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if fields, ok := r.bloomFields[streamKey(organization, streamType, stream)]; ok {
		return fields
	}
	return r.defaultBloom
}

// SetBloomFields configures the bloom-filter field list for one stream.
func (r *MemRegistry) SetBloomFields(organization, streamType, stream string, fields []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bloomFields[streamKey(organization, streamType, stream)] = fields
}
