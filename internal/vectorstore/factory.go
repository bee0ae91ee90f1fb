package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	chromem "github.com/philippgille/chromem-go"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/keystonehq/retrieval/internal/config"
)

// managedTurbopufferRegion is the fixed region for the managed
// Turbopuffer tier. BYO configurations carry their own region.
const managedTurbopufferRegion = "aws-us-east-1"

// Factory resolves a namespace's persisted provider configuration into a
// ready-to-use Store.
//
// Backend client handles are cached per process, keyed by provider
// identity plus credentials: stores themselves are cheap namespace-scoped
// wrappers, but the underlying clients hold connections worth reusing.
// Construction is guarded by a mutex so each key is built once. Cached
// clients are never torn down explicitly; they live for the process.
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger

	mu       sync.Mutex
	pinecone map[string]*pinecone.Client
	qdrant   map[string]*qdrant.Client
	local    map[string]*chromem.DB

	// LocalStore keeps an in-process id index, so local stores are
	// cached per scope rather than rebuilt per resolution.
	localStores map[string]*LocalStore
}

// NewFactory creates a Factory. logger may be nil.
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		cfg:         cfg,
		logger:      logger,
		pinecone:    make(map[string]*pinecone.Client),
		qdrant:      make(map[string]*qdrant.Client),
		local:       make(map[string]*chromem.DB),
		localStores: make(map[string]*LocalStore),
	}
}

// ForNamespace resolves the namespace's provider configuration into a
// Store scoped to that namespace (and tenant, when non-empty).
//
// Resolution policy:
//  1. A nil config defaults to the current managed Pinecone tier.
//  2. Managed tiers inject platform credentials; BYO tiers use the
//     APIKey/IndexHost/Region persisted on the namespace.
//  3. Missing credentials for the resolved tier fail here with
//     ErrMissingConfig, before any network call.
//  4. An unrecognized provider tag is a hard error naming the tag.
func (f *Factory) ForNamespace(ctx context.Context, ns Namespace, tenantID string) (Store, error) {
	if ns.ID == "" {
		return nil, fmt.Errorf("%w: namespace id required", ErrInvalidConfig)
	}

	vsc := ns.VectorStore
	if vsc == nil {
		vsc = &VectorStoreConfig{Provider: ProviderManagedPinecone}
	}

	switch vsc.Provider {
	case ProviderManagedPineconeOld, ProviderManagedPinecone, ProviderPinecone:
		apiKey, indexHost, err := f.pineconeCredentials(vsc)
		if err != nil {
			return nil, err
		}
		client, err := f.pineconeClient(apiKey)
		if err != nil {
			return nil, err
		}
		return NewPineconeStore(PineconeConfig{
			IndexHost:   indexHost,
			NamespaceID: ns.ID,
			TenantID:    tenantID,
		}, client, f.logger)

	case ProviderManagedTurbopuffer, ProviderTurbopuffer:
		cfg := TurbopufferConfig{
			NamespaceID: ns.ID,
			TenantID:    tenantID,
			BaseURL:     f.cfg.Turbopuffer.BaseURL,
		}
		if vsc.Provider == ProviderManagedTurbopuffer {
			cfg.APIKey = f.cfg.Turbopuffer.DefaultAPIKey
			cfg.Region = managedTurbopufferRegion
			if cfg.APIKey == "" {
				return nil, fmt.Errorf("%w: turbopuffer.default_api_key is required for the managed turbopuffer tier", ErrMissingConfig)
			}
		} else {
			cfg.APIKey = vsc.APIKey
			cfg.Region = vsc.Region
		}
		return NewTurbopufferStore(cfg, f.logger)

	case ProviderQdrant:
		if vsc.IndexHost == "" {
			return nil, fmt.Errorf("%w: indexHost is required for the qdrant provider", ErrMissingConfig)
		}
		client, err := f.qdrantClient(vsc.IndexHost, vsc.APIKey)
		if err != nil {
			return nil, err
		}
		return NewQdrantStore(QdrantStoreConfig{
			NamespaceID: ns.ID,
			TenantID:    tenantID,
		}, client, f.logger)

	case ProviderLocal:
		return f.localStore(ns.ID, tenantID)

	default:
		// The provider set is closed; reaching this is a defect, not a
		// runtime condition. A test walks AllProviders through this
		// switch so a new tag cannot land without resolution logic.
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, vsc.Provider)
	}
}

// pineconeCredentials picks the credential pair for the resolved tier.
func (f *Factory) pineconeCredentials(vsc *VectorStoreConfig) (apiKey, indexHost string, err error) {
	switch vsc.Provider {
	case ProviderManagedPineconeOld:
		apiKey = f.cfg.Pinecone.DefaultAPIKey
		indexHost = f.cfg.Pinecone.DefaultHost
		if apiKey == "" || indexHost == "" {
			return "", "", fmt.Errorf("%w: pinecone.default_api_key and pinecone.default_host are required for the legacy managed pinecone tier", ErrMissingConfig)
		}
	case ProviderManagedPinecone:
		apiKey = f.cfg.Pinecone.SecondaryAPIKey
		indexHost = f.cfg.Pinecone.SecondaryHost
		if apiKey == "" || indexHost == "" {
			return "", "", fmt.Errorf("%w: pinecone.secondary_api_key and pinecone.secondary_host are required for the managed pinecone tier", ErrMissingConfig)
		}
	default:
		apiKey = vsc.APIKey
		indexHost = vsc.IndexHost
		if apiKey == "" || indexHost == "" {
			return "", "", fmt.Errorf("%w: apiKey and indexHost are required for the pinecone provider", ErrMissingConfig)
		}
	}
	return apiKey, indexHost, nil
}

func (f *Factory) pineconeClient(apiKey string) (*pinecone.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.pinecone[apiKey]; ok {
		return client, nil
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating pinecone client: %w", err)
	}
	f.pinecone[apiKey] = client
	f.logger.Debug("pinecone client created")
	return client, nil
}

func (f *Factory) qdrantClient(host, apiKey string) (*qdrant.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cacheKey := host + "\x00" + apiKey
	if client, ok := f.qdrant[cacheKey]; ok {
		return client, nil
	}

	hostname, port, err := splitHostPort(host)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant indexHost: %v", ErrInvalidConfig, err)
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   hostname,
		Port:   port,
		APIKey: apiKey,
		UseTLS: apiKey != "",
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	f.qdrant[cacheKey] = client
	f.logger.Debug("qdrant client created", zap.String("host", hostname))
	return client, nil
}

func (f *Factory) localStore(namespaceID, tenantID string) (*LocalStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.cfg.Local.Path
	scopeKey := path + "\x00" + namespaceID + "\x00" + tenantID
	if store, ok := f.localStores[scopeKey]; ok {
		return store, nil
	}

	db, ok := f.local[path]
	if !ok {
		var err error
		if path == "" {
			db = chromem.NewDB()
		} else {
			db, err = chromem.NewPersistentDB(path, false)
			if err != nil {
				return nil, fmt.Errorf("opening local store at %s: %w", path, err)
			}
		}
		f.local[path] = db
	}

	store, err := NewLocalStore(LocalConfig{
		NamespaceID: namespaceID,
		TenantID:    tenantID,
	}, db, f.logger)
	if err != nil {
		return nil, err
	}
	f.localStores[scopeKey] = store
	return store, nil
}
