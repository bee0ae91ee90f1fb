package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataToChunk(t *testing.T) {
	t.Run("reconstructs text node", func(t *testing.T) {
		metadata := map[string]any{
			NodeTypeKey:    "TextNode",
			NodeContentKey: `{"id_":"doc1#0","text":"alpha","metadata":{"lang":"en"},"relationships":{"SOURCE":{"node_id":"doc1"}}}`,
		}

		node := MetadataToChunk(metadata)
		require.NotNil(t, node)
		assert.Equal(t, "doc1#0", node.ID)
		assert.Equal(t, "alpha", node.Text)
		assert.Equal(t, "en", node.Metadata["lang"])
		require.Contains(t, node.Relationships, "SOURCE")
	})

	t.Run("nil for missing node type", func(t *testing.T) {
		assert.Nil(t, MetadataToChunk(map[string]any{"lang": "en"}))
	})

	t.Run("nil for unrecognized node type", func(t *testing.T) {
		metadata := map[string]any{
			NodeTypeKey:    "ImageNode",
			NodeContentKey: `{"id_":"x"}`,
		}
		assert.Nil(t, MetadataToChunk(metadata))
	})

	t.Run("nil for malformed node content", func(t *testing.T) {
		metadata := map[string]any{
			NodeTypeKey:    "TextNode",
			NodeContentKey: `{not json`,
		}
		assert.Nil(t, MetadataToChunk(metadata))
	})

	t.Run("falls back to surrounding metadata", func(t *testing.T) {
		metadata := map[string]any{
			NodeTypeKey:    "TextNode",
			NodeContentKey: `{"id_":"doc1#1","text":"beta"}`,
			"lang":         "en",
		}

		node := MetadataToChunk(metadata)
		require.NotNil(t, node)
		assert.Equal(t, "en", node.Metadata["lang"])
		assert.NotContains(t, node.Metadata, NodeContentKey)
		assert.NotContains(t, node.Metadata, NodeTypeKey)
	})
}
