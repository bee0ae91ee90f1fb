package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keystonehq/retrieval/internal/config"
)

// fullTestConfig carries credentials for every managed tier.
func fullTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Pinecone.DefaultAPIKey = "pc-default-key"
	cfg.Pinecone.DefaultHost = "legacy-idx.svc.pinecone.io"
	cfg.Pinecone.SecondaryAPIKey = "pc-secondary-key"
	cfg.Pinecone.SecondaryHost = "managed-idx.svc.pinecone.io"
	cfg.Turbopuffer.DefaultAPIKey = "tpuf-key"
	return cfg
}

func TestFactoryRequiresNamespaceID(t *testing.T) {
	factory := NewFactory(fullTestConfig(), zap.NewNop())
	_, err := factory.ForNamespace(context.Background(), Namespace{}, "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFactoryDefaultsToManagedPinecone(t *testing.T) {
	factory := NewFactory(fullTestConfig(), zap.NewNop())

	store, err := factory.ForNamespace(context.Background(), Namespace{ID: "ns1"}, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pc, ok := store.(*PineconeStore)
	require.True(t, ok)
	assert.Equal(t, "managed-idx.svc.pinecone.io", pc.config.IndexHost)
}

func TestFactoryLegacyManagedPineconeUsesDefaultCredentials(t *testing.T) {
	factory := NewFactory(fullTestConfig(), zap.NewNop())

	store, err := factory.ForNamespace(context.Background(), Namespace{
		ID:          "ns1",
		VectorStore: &VectorStoreConfig{Provider: ProviderManagedPineconeOld},
	}, "t1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pc, ok := store.(*PineconeStore)
	require.True(t, ok)
	assert.Equal(t, "legacy-idx.svc.pinecone.io", pc.config.IndexHost)
	assert.Equal(t, "t1", pc.config.TenantID)
}

func TestFactoryMissingManagedCredentials(t *testing.T) {
	factory := NewFactory(&config.Config{}, zap.NewNop())

	cases := []struct {
		name string
		ns   Namespace
	}{
		{"default tier", Namespace{ID: "ns1"}},
		{"legacy pinecone", Namespace{ID: "ns1", VectorStore: &VectorStoreConfig{Provider: ProviderManagedPineconeOld}}},
		{"managed turbopuffer", Namespace{ID: "ns1", VectorStore: &VectorStoreConfig{Provider: ProviderManagedTurbopuffer}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := factory.ForNamespace(context.Background(), tc.ns, "")
			assert.ErrorIs(t, err, ErrMissingConfig)
		})
	}
}

func TestFactoryBYOPineconeRequiresCredentials(t *testing.T) {
	factory := NewFactory(&config.Config{}, zap.NewNop())

	_, err := factory.ForNamespace(context.Background(), Namespace{
		ID:          "ns1",
		VectorStore: &VectorStoreConfig{Provider: ProviderPinecone, APIKey: "key"},
	}, "")
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestFactoryManagedTurbopufferUsesFixedRegion(t *testing.T) {
	factory := NewFactory(fullTestConfig(), zap.NewNop())

	store, err := factory.ForNamespace(context.Background(), Namespace{
		ID:          "ns1",
		VectorStore: &VectorStoreConfig{Provider: ProviderManagedTurbopuffer},
	}, "")
	require.NoError(t, err)

	tpuf, ok := store.(*TurbopufferStore)
	require.True(t, ok)
	assert.Equal(t, managedTurbopufferRegion, tpuf.config.Region)
	assert.Equal(t, "tpuf-key", tpuf.config.APIKey)
}

func TestFactoryBYOTurbopuffer(t *testing.T) {
	factory := NewFactory(&config.Config{}, zap.NewNop())

	store, err := factory.ForNamespace(context.Background(), Namespace{
		ID:          "ns1",
		VectorStore: &VectorStoreConfig{Provider: ProviderTurbopuffer, APIKey: "byo-key", Region: "gcp-us-central1"},
	}, "")
	require.NoError(t, err)

	tpuf, ok := store.(*TurbopufferStore)
	require.True(t, ok)
	assert.Equal(t, "gcp-us-central1", tpuf.config.Region)
	assert.Equal(t, "byo-key", tpuf.config.APIKey)
}

func TestFactoryQdrantRequiresIndexHost(t *testing.T) {
	factory := NewFactory(&config.Config{}, zap.NewNop())

	_, err := factory.ForNamespace(context.Background(), Namespace{
		ID:          "ns1",
		VectorStore: &VectorStoreConfig{Provider: ProviderQdrant},
	}, "")
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestFactoryLocalStoreIsCachedPerScope(t *testing.T) {
	factory := NewFactory(&config.Config{}, zap.NewNop())
	ns := Namespace{ID: "ns1", VectorStore: &VectorStoreConfig{Provider: ProviderLocal}}

	first, err := factory.ForNamespace(context.Background(), ns, "t1")
	require.NoError(t, err)
	second, err := factory.ForNamespace(context.Background(), ns, "t1")
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := factory.ForNamespace(context.Background(), ns, "t2")
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestFactoryUnknownProvider(t *testing.T) {
	factory := NewFactory(fullTestConfig(), zap.NewNop())

	_, err := factory.ForNamespace(context.Background(), Namespace{
		ID:          "ns1",
		VectorStore: &VectorStoreConfig{Provider: Provider("WEAVIATE")},
	}, "")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), "WEAVIATE")
}

// Every registered provider tag must resolve without hitting the
// unknown-provider branch, so a new tag cannot land silently.
func TestFactoryResolvesAllProviders(t *testing.T) {
	factory := NewFactory(fullTestConfig(), zap.NewNop())

	for _, provider := range AllProviders {
		t.Run(string(provider), func(t *testing.T) {
			ns := Namespace{
				ID: "ns1",
				VectorStore: &VectorStoreConfig{
					Provider:  provider,
					APIKey:    "byo-key",
					IndexHost: "byo-idx.example.com",
					Region:    "gcp-us-central1",
				},
			}
			store, err := factory.ForNamespace(context.Background(), ns, "")
			require.NoError(t, err)
			assert.NotErrorIs(t, err, ErrUnknownProvider)
			_ = store.Close()
		})
	}
}
