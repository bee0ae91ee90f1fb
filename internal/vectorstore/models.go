package vectorstore

// Provider identifies a backend family plus credential tier. The set is
// closed: the factory switches over every tag and a test walks
// AllProviders to keep the switch exhaustive when a tag is added.
type Provider string

const (
	// ProviderManagedPineconeOld is the legacy managed tier backed by the
	// platform's default Pinecone credential/host pair.
	ProviderManagedPineconeOld Provider = "MANAGED_PINECONE_OLD"

	// ProviderManagedPinecone is the current managed tier backed by the
	// platform's secondary Pinecone credential/host pair.
	ProviderManagedPinecone Provider = "MANAGED_PINECONE"

	// ProviderPinecone is bring-your-own-credential Pinecone.
	ProviderPinecone Provider = "PINECONE"

	// ProviderManagedTurbopuffer is the managed Turbopuffer tier, pinned
	// to the platform region.
	ProviderManagedTurbopuffer Provider = "MANAGED_TURBOPUFFER"

	// ProviderTurbopuffer is bring-your-own-credential Turbopuffer.
	ProviderTurbopuffer Provider = "TURBOPUFFER"

	// ProviderQdrant is bring-your-own self-hosted Qdrant.
	ProviderQdrant Provider = "QDRANT"

	// ProviderLocal is the embedded chromem-go store for development and
	// tests. No credentials.
	ProviderLocal Provider = "LOCAL"
)

// AllProviders lists every recognized provider tag.
var AllProviders = []Provider{
	ProviderManagedPineconeOld,
	ProviderManagedPinecone,
	ProviderPinecone,
	ProviderManagedTurbopuffer,
	ProviderTurbopuffer,
	ProviderQdrant,
	ProviderLocal,
}

// VectorStoreConfig is a namespace's persisted provider configuration.
// APIKey, IndexHost, and Region apply to bring-your-own-credential tiers
// only; managed tiers ignore them.
type VectorStoreConfig struct {
	Provider  Provider `json:"provider"`
	APIKey    string   `json:"apiKey,omitempty"`
	IndexHost string   `json:"indexHost,omitempty"`
	Region    string   `json:"region,omitempty"`
}

// Namespace is the read-only namespace configuration record produced by
// the platform database. A nil VectorStore means "use the default managed
// provider".
type Namespace struct {
	ID          string             `json:"id"`
	VectorStore *VectorStoreConfig `json:"vectorStoreConfig"`
}

// Chunk is the atomic indexed unit. ID is caller-assigned and stable
// across re-indexing of the same logical chunk.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string

	// Metadata is an open key-value mapping. Values must be JSON kinds
	// (string, number, bool, nil, nested map/array) so round-trip
	// behavior stays well-defined across backends.
	Metadata map[string]any

	// Embedding is the dense vector for this chunk. Dimensionality is
	// fixed by the active driver's index; ignored by lexical backends.
	Embedding []float32
}

// Query carries the search input. Lexical drivers consume Text; dense
// drivers consume Embedding, which the caller resolves before this call.
type Query struct {
	Text      string
	Embedding []float32
}

// SearchOptions controls search scoping and result shaping.
type SearchOptions struct {
	// DocumentID restricts results to chunks of one source document.
	DocumentID string

	// Page is 1-based. Values below 1 are treated as 1.
	Page int

	// Limit is the page size. Default 10.
	Limit int

	// IncludeMetadata attaches reconstructed metadata to results.
	IncludeMetadata bool

	// IncludeRelationships attaches structural relationships to results.
	IncludeRelationships bool

	// MinScore drops results scoring below the threshold. Applied
	// post-fetch when the backend lacks native support.
	MinScore float64

	// Filter is an extra backend-native predicate ANDed onto the
	// mandatory namespace/tenant scope. Its syntax is driver-specific.
	Filter string
}

func (o SearchOptions) page() int {
	if o.Page < 1 {
		return 1
	}
	return o.Page
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

// ListOptions controls id enumeration.
type ListOptions struct {
	DocumentID string

	// Page is 1-based. Values below 1 are treated as 1.
	Page int

	// Limit is the page size. Default 1000.
	Limit int
}

func (o ListOptions) page() int {
	if o.Page < 1 {
		return 1
	}
	return o.Page
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return 1000
	}
	return o.Limit
}

// SearchResult is the uniform result shape across all backends. Score
// scales are backend-defined and not comparable across providers.
type SearchResult struct {
	ID    string
	Score float64
	Text  string

	// Metadata is present only when requested via IncludeMetadata.
	Metadata map[string]any

	// Relationships is present only when requested via
	// IncludeRelationships.
	Relationships map[string]any

	// Highlights holds matched-term excerpts. Empty for backends without
	// highlighting support.
	Highlights []string
}
