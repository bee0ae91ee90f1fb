package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPineconeConfigValidate(t *testing.T) {
	assert.ErrorIs(t, PineconeConfig{}.Validate(), ErrMissingConfig)
	assert.ErrorIs(t, PineconeConfig{IndexHost: "idx.svc.pinecone.io"}.Validate(), ErrInvalidConfig)
	assert.NoError(t, PineconeConfig{IndexHost: "idx.svc.pinecone.io", NamespaceID: "ns1"}.Validate())
}

func TestPineconeIndexNamespace(t *testing.T) {
	assert.Equal(t, "ns1", PineconeConfig{NamespaceID: "ns1"}.indexNamespace())
	assert.Equal(t, "ns1__t1", PineconeConfig{NamespaceID: "ns1", TenantID: "t1"}.indexNamespace())
}

func TestPineconeBuildFilter(t *testing.T) {
	store := &PineconeStore{config: PineconeConfig{NamespaceID: "ns1"}}

	t.Run("empty", func(t *testing.T) {
		filter, err := store.buildFilter("", "")
		require.NoError(t, err)
		assert.Nil(t, filter)
	})

	t.Run("document scope only", func(t *testing.T) {
		filter, err := store.buildFilter("doc1", "")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			FieldDocumentID: map[string]any{"$eq": "doc1"},
		}, filter.AsMap())
	})

	t.Run("extra only", func(t *testing.T) {
		filter, err := store.buildFilter("", `{"lang":{"$eq":"en"}}`)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"lang": map[string]any{"$eq": "en"},
		}, filter.AsMap())
	})

	t.Run("combined clauses are ANDed", func(t *testing.T) {
		filter, err := store.buildFilter("doc1", `{"lang":{"$eq":"en"}}`)
		require.NoError(t, err)
		clauses := filter.AsMap()["$and"].([]any)
		require.Len(t, clauses, 2)
		assert.Equal(t, map[string]any{FieldDocumentID: map[string]any{"$eq": "doc1"}}, clauses[0])
		assert.Equal(t, map[string]any{"lang": map[string]any{"$eq": "en"}}, clauses[1])
	})

	t.Run("malformed extra", func(t *testing.T) {
		_, err := store.buildFilter("", "{not json")
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}
