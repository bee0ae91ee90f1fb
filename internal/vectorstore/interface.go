// Package vectorstore defines the multi-provider store contract and its
// backend drivers.
//
// A Store is scoped to one namespace (and optionally one tenant) at
// construction time. Every driver, dense or lexical, enforces that scope
// on all reads and writes regardless of caller-supplied filters. The
// engine holds no durable state of its own; consistency between
// interleaved calls is whatever the underlying backend provides.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for store operations.
var (
	// ErrMissingConfig is returned when required credentials or endpoints
	// are absent for the resolved provider. Raised before any network
	// call is attempted.
	ErrMissingConfig = errors.New("missing required store configuration")

	// ErrInvalidConfig indicates malformed configuration.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrUnknownProvider is returned for a provider tag outside the closed
	// set. Reaching it indicates a programming defect: every tag must be
	// handled in the factory.
	ErrUnknownProvider = errors.New("unknown vector store provider")

	// ErrInvalidQuery indicates a query the driver cannot execute, e.g. a
	// dense driver given no embedding.
	ErrInvalidQuery = errors.New("invalid query for store")

	// ErrBackendRequest wraps backend failures: network errors, auth
	// rejections, malformed responses. Not retried internally.
	ErrBackendRequest = errors.New("backend request failed")
)

// Store is the uniform contract over heterogeneous search backends.
//
// Implementations:
//   - PineconeStore: managed/BYO Pinecone (dense)
//   - TurbopufferStore: managed/BYO Turbopuffer (dense)
//   - QdrantStore: self-hosted Qdrant (dense)
//   - LocalStore: embedded chromem-go (dense, dev/test)
//   - keywordstore.Store: Azure AI Search (lexical)
type Store interface {
	// Upsert writes chunks in bulk. Chunks with an existing id are fully
	// replaced, not merged; the call is idempotent. Partial-batch failure
	// policy is backend-defined and documented per driver (all current
	// drivers fail the whole call).
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search runs a scoped similarity or keyword search.
	//
	// Results are always restricted to the store's namespace and tenant,
	// on top of any caller-supplied filter. When MinScore is set and the
	// backend has no native threshold support, filtering happens after
	// the page is fetched, so a page may hold fewer than Limit items.
	Search(ctx context.Context, query Query, opts SearchOptions) (*Page[SearchResult], error)

	// ListIDs enumerates canonical chunk ids in scope without fetching
	// text or vectors, optionally restricted to one document.
	ListIDs(ctx context.Context, opts ListOptions) (*Page[string], error)

	// DeleteByIDs removes chunks by canonical id. Absent ids are silently
	// ignored.
	DeleteByIDs(ctx context.Context, ids []string) error

	// Close releases backend connections. Cached stores are shared; Close
	// is safe to call multiple times.
	Close() error
}
