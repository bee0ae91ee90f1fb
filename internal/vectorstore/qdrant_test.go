package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		in       string
		hostname string
		port     int
		wantErr  bool
	}{
		{in: "localhost", hostname: "localhost", port: 6334},
		{in: "localhost:7000", hostname: "localhost", port: 7000},
		{in: "https://qdrant.example.com:6334", hostname: "qdrant.example.com", port: 6334},
		{in: "http://qdrant.example.com", hostname: "qdrant.example.com", port: 6334},
		{in: "qdrant.example.com:notaport", wantErr: true},
		{in: "qdrant.example.com:0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hostname, port, err := splitHostPort(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hostname, hostname)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestQdrantConfigDefaults(t *testing.T) {
	cfg := QdrantStoreConfig{NamespaceID: "ns1"}
	cfg.ApplyDefaults()
	assert.Equal(t, qdrantDefaultCollection, cfg.Collection)
	assert.NoError(t, cfg.Validate())

	assert.ErrorIs(t, QdrantStoreConfig{}.Validate(), ErrInvalidConfig)
}

func TestQdrantPointIDDeterminism(t *testing.T) {
	a := &QdrantStore{config: QdrantStoreConfig{NamespaceID: "ns1"}}
	b := &QdrantStore{config: QdrantStoreConfig{NamespaceID: "ns2"}}
	c := &QdrantStore{config: QdrantStoreConfig{NamespaceID: "ns1", TenantID: "t1"}}

	assert.Equal(t, a.pointID("doc1#0"), a.pointID("doc1#0"))
	assert.NotEqual(t, a.pointID("doc1#0"), a.pointID("doc1#1"))
	assert.NotEqual(t, a.pointID("doc1#0"), b.pointID("doc1#0"))
	assert.NotEqual(t, a.pointID("doc1#0"), c.pointID("doc1#0"))

	// Point ids must be parseable UUIDs for Qdrant.
	assert.Len(t, a.pointID("doc1#0"), 36)
}

func TestQdrantScopeFilter(t *testing.T) {
	store := &QdrantStore{config: QdrantStoreConfig{NamespaceID: "ns1", TenantID: "t1"}}

	filter, err := store.scopeFilter("doc1", "")
	require.NoError(t, err)
	require.Len(t, filter.Must, 3)
	assert.Equal(t, FieldNamespaceID, filter.Must[0].GetField().GetKey())
	assert.Equal(t, "ns1", filter.Must[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, FieldTenantID, filter.Must[1].GetField().GetKey())
	assert.Equal(t, FieldDocumentID, filter.Must[2].GetField().GetKey())

	// Without tenant or document only the namespace condition remains.
	bare := &QdrantStore{config: QdrantStoreConfig{NamespaceID: "ns1"}}
	filter, err = bare.scopeFilter("", "")
	require.NoError(t, err)
	require.Len(t, filter.Must, 1)
}

func TestQdrantScopeFilterExtra(t *testing.T) {
	store := &QdrantStore{config: QdrantStoreConfig{NamespaceID: "ns1"}}

	extra := `{"must":[{"field":{"key":"lang","match":{"keyword":"en"}}}]}`
	filter, err := store.scopeFilter("", extra)
	require.NoError(t, err)
	require.Len(t, filter.Must, 2)

	nested := filter.Must[1].GetFilter()
	require.NotNil(t, nested)
	assert.Equal(t, "lang", nested.Must[0].GetField().GetKey())

	_, err = store.scopeFilter("", "{not json")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQdrantValue(t *testing.T) {
	assert.Equal(t, "x", qdrantValue("x").GetStringValue())
	assert.Equal(t, true, qdrantValue(true).GetBoolValue())
	assert.Equal(t, int64(7), qdrantValue(7).GetIntegerValue())
	assert.Equal(t, int64(7), qdrantValue(int64(7)).GetIntegerValue())
	assert.Equal(t, 1.5, qdrantValue(1.5).GetDoubleValue())
	assert.Nil(t, qdrantValue([]any{"a"}))
	assert.Nil(t, qdrantValue(map[string]any{"a": 1}))
}

func TestNewQdrantStoreValidation(t *testing.T) {
	_, err := NewQdrantStore(QdrantStoreConfig{}, &qdrant.Client{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewQdrantStore(QdrantStoreConfig{NamespaceID: "ns1"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
