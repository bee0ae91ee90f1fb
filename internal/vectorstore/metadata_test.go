package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataRoundTrip(t *testing.T) {
	metadata := map[string]any{
		"lang":    "en",
		"pages":   float64(12),
		"public":  true,
		"aliases": []any{"a", "b"},
		"extra":   map[string]any{"nested": "yes"},
	}

	blob, err := EncodeMetadata(metadata)
	require.NoError(t, err)

	decoded := DecodeMetadata(blob)
	assert.Equal(t, metadata, decoded)
}

func TestEncodeMetadataStripsIdentityFields(t *testing.T) {
	blob, err := EncodeMetadata(map[string]any{
		"lang":           "en",
		FieldNamespaceID: "ns1",
		FieldDocumentID:  "doc1",
		FieldTenantID:    "t1",
	})
	require.NoError(t, err)

	decoded := DecodeMetadata(blob)
	assert.Equal(t, map[string]any{"lang": "en"}, decoded)
}

func TestDecodeMetadataDegradesOnGarbage(t *testing.T) {
	assert.Equal(t, map[string]any{}, DecodeMetadata("{not json"))
	assert.Equal(t, map[string]any{}, DecodeMetadata(""))
	assert.Equal(t, map[string]any{}, DecodeMetadata("null"))
}

func TestReinjectIdentity(t *testing.T) {
	t.Run("with tenant", func(t *testing.T) {
		md := map[string]any{"lang": "en"}
		ReinjectIdentity(md, "ns1", "doc1", "t1")
		assert.Equal(t, "ns1", md[FieldNamespaceID])
		assert.Equal(t, "doc1", md[FieldDocumentID])
		assert.Equal(t, "t1", md[FieldTenantID])
	})

	t.Run("without tenant", func(t *testing.T) {
		md := map[string]any{}
		ReinjectIdentity(md, "ns1", "doc1", "")
		assert.NotContains(t, md, FieldTenantID)
	})
}

func TestFlattenMetadata(t *testing.T) {
	flat := FlattenMetadata(map[string]any{
		"lang":           "en",
		"pages":          float64(3),
		"public":         true,
		"tags":           []any{"x", "y"},
		"nothing":        nil,
		FieldNamespaceID: "ns1",
		"_node_content":  `{"id_":"x"}`,
		"_node_type":     "TextNode",
	})

	assert.Equal(t, "en", flat["lang"])
	assert.Equal(t, float64(3), flat["pages"])
	assert.Equal(t, true, flat["public"])
	assert.Equal(t, `["x","y"]`, flat["tags"])
	assert.NotContains(t, flat, "nothing")
	assert.NotContains(t, flat, FieldNamespaceID)
	assert.NotContains(t, flat, "_node_content")
	assert.NotContains(t, flat, "_node_type")
}
