package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelake/tracelake/schema"
)

func TestMergeAppendsNovelFieldsOnly(t *testing.T) {
	base := schema.New([]schema.Field{
		{Name: "a", Type: schema.TypeUtf8},
		{Name: "b", Type: schema.TypeInt64},
	})

	merged, added := base.Merge(schema.New([]schema.Field{
		{Name: "b", Type: schema.TypeInt64},
		{Name: "c", Type: schema.TypeFloat64},
	}))
	require.Len(t, added, 1)
	assert.Equal(t, "c", added[0].Name)

	// Existing field order is preserved, novel fields go last.
	names := make([]string, 0, merged.Len())
	for _, f := range merged.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestMergeNoGrowthReturnsReceiver(t *testing.T) {
	base := schema.New([]schema.Field{
		{Name: "a", Type: schema.TypeUtf8},
	})

	merged, added := base.Merge(schema.New([]schema.Field{
		{Name: "a", Type: schema.TypeUtf8},
	}))
	assert.Same(t, base, merged)
	assert.Nil(t, added)
}

func TestMergeBatchSequenceYieldsUnion(t *testing.T) {
	// Batches carrying {a,b}, {b,c} and {a,d} end up as the 4-field union.
	s := schema.Infer([]map[string]any{{"a": "x", "b": "y"}})
	s, _ = s.Merge(schema.Infer([]map[string]any{{"b": "y", "c": "z"}}))
	s, _ = s.Merge(schema.Infer([]map[string]any{{"a": "x", "d": "w"}}))

	assert.Equal(t, 4, s.Len())
	for _, name := range []string{"a", "b", "c", "d"} {
		assert.True(t, s.Has(name), name)
	}
}

func TestInferDeterministicOrder(t *testing.T) {
	rows := []map[string]any{
		{"zeta": "v", "_timestamp": int64(10), "alpha": int64(1)},
	}
	s := schema.Infer(rows)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, schema.TimestampField, s.Fields()[0].Name)
	assert.Equal(t, "alpha", s.Fields()[1].Name)
	assert.Equal(t, "zeta", s.Fields()[2].Name)
	assert.Equal(t, s.Fingerprint(), schema.Infer(rows).Fingerprint())
}

func TestInferWidening(t *testing.T) {
	s := schema.Infer([]map[string]any{
		{"n": int64(1), "m": int64(2)},
		{"n": 1.5, "m": true},
	})

	n, ok := s.Field("n")
	require.True(t, ok)
	assert.Equal(t, schema.TypeFloat64, n.Type)

	m, ok := s.Field("m")
	require.True(t, ok)
	assert.Equal(t, schema.TypeUtf8, m.Type)
}

func TestSerializedSize(t *testing.T) {
	s := schema.New([]schema.Field{
		{Name: "ab", Type: schema.TypeUtf8},
		{Name: "cde", Type: schema.TypeInt64},
	})
	// 4 + (2+2+1) + (2+3+1)
	assert.Equal(t, int64(15), s.SerializedSize())
}

func TestMemRegistryReconcile(t *testing.T) {
	reg := schema.NewMemRegistry([]string{"trace_id"})

	first, fp1, err := reg.Reconcile("acme", "logs", "app", schema.Infer([]map[string]any{{"a": "x"}}))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Len())

	second, fp2, err := reg.Reconcile("acme", "logs", "app", schema.Infer([]map[string]any{{"b": "y"}}))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Len())
	assert.NotEqual(t, fp1, fp2)

	// Replaying already-known fields does not change the fingerprint.
	_, fp3, err := reg.Reconcile("acme", "logs", "app", schema.Infer([]map[string]any{{"a": "x"}}))
	require.NoError(t, err)
	assert.Equal(t, fp2, fp3)
}

func TestMemRegistryBloomFields(t *testing.T) {
	reg := schema.NewMemRegistry([]string{"trace_id"})

	assert.Equal(t, []string{"trace_id"}, reg.BloomFields("acme", "logs", "app"))

	reg.SetBloomFields("acme", "logs", "app", []string{"span_id", "host"})
	assert.Equal(t, []string{"span_id", "host"}, reg.BloomFields("acme", "logs", "app"))
	assert.Equal(t, []string{"trace_id"}, reg.BloomFields("acme", "logs", "other"))
}
