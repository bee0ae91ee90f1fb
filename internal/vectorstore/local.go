package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// localTracer for OpenTelemetry instrumentation.
var localTracer = otel.Tracer("retrieval.vectorstore.local")

const (
	localTextKey = "text"
	localBlobKey = "_metadata"
)

// LocalConfig scopes a LocalStore to one namespace and tenant.
type LocalConfig struct {
	NamespaceID string
	TenantID    string
}

// Validate validates the configuration.
func (c LocalConfig) Validate() error {
	if c.NamespaceID == "" {
		return fmt.Errorf("%w: namespace id required", ErrInvalidConfig)
	}
	return nil
}

// collectionName maps the namespace/tenant pair onto one chromem
// collection, mirroring the Pinecone namespace convention.
func (c LocalConfig) collectionName() string {
	if c.TenantID != "" {
		return c.NamespaceID + "__" + c.TenantID
	}
	return c.NamespaceID
}

// LocalStore is an embedded dense-vector Store backed by chromem-go, for
// development and tests. No external service is needed.
//
// Driver notes:
//   - Isolation: one chromem collection per logical namespace/tenant.
//   - chromem cannot enumerate documents, so the store maintains its own
//     id index, fed by Upsert and DeleteByIDs. The factory caches
//     LocalStore instances per scope so the index lives for the process;
//     with a persistent DB, chunks written by earlier processes are
//     searchable but absent from ListIDs.
//   - Pagination: totals come from the id index, so pages are closed.
//     Total counts the namespace/document scope only; a metadata Filter
//     narrows the returned items but not Total, since the id index
//     carries no metadata.
//   - MinScore is applied post-fetch on cosine similarity.
type LocalStore struct {
	db     *chromem.DB
	config LocalConfig
	logger *zap.Logger

	mu  sync.Mutex
	ids map[string]string // chunk id -> document id
}

// NewLocalStore creates a LocalStore on a shared chromem DB.
func NewLocalStore(cfg LocalConfig, db *chromem.DB, logger *zap.Logger) (*LocalStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if db == nil {
		return nil, fmt.Errorf("%w: chromem db required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{db: db, config: cfg, logger: logger, ids: make(map[string]string)}, nil
}

// noEmbeddingFunc guards against chromem falling back to its default
// remote embedder. Embeddings are always precomputed by the caller.
func noEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings must be precomputed")
}

func (s *LocalStore) collection() (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(s.config.collectionName(), nil, noEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: opening collection %s: %v", ErrBackendRequest, s.config.collectionName(), err)
	}
	return collection, nil
}

// Upsert writes chunks into the scope's collection and records their ids.
func (s *LocalStore) Upsert(ctx context.Context, chunks []Chunk) error {
	ctx, span := localTracer.Start(ctx, "LocalStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(chunks) == 0 {
		return nil
	}

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %q has no embedding", ErrInvalidQuery, chunk.ID)
		}

		blob, err := EncodeMetadata(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for chunk %q: %w", chunk.ID, err)
		}
		metadata := map[string]string{
			localBlobKey:    blob,
			FieldDocumentID: chunk.DocumentID,
		}
		for k, v := range FlattenMetadata(chunk.Metadata) {
			if _, reserved := metadata[k]; reserved {
				continue
			}
			metadata[k] = stringifyScalar(v)
		}

		if err := collection.AddDocument(ctx, chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Text,
			Metadata:  metadata,
			Embedding: chunk.Embedding,
		}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("%w: adding chunk %q: %v", ErrBackendRequest, chunk.ID, err)
		}
	}

	s.mu.Lock()
	for _, chunk := range chunks {
		s.ids[chunk.ID] = chunk.DocumentID
	}
	s.mu.Unlock()

	span.SetStatus(codes.Ok, "success")
	return nil
}

func stringifyScalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return fmt.Sprintf("%t", val)
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// whereFilter builds chromem's exact-match metadata filter from the
// document scope and the caller's extra filter (a JSON object of scalar
// equality conditions).
func whereFilter(documentID, extra string) (map[string]string, error) {
	where := make(map[string]string)
	if documentID != "" {
		where[FieldDocumentID] = documentID
	}
	if extra != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(extra), &parsed); err != nil {
			return nil, fmt.Errorf("%w: local filter must be a JSON object: %v", ErrInvalidQuery, err)
		}
		for k, v := range parsed {
			where[k] = stringifyScalar(v)
		}
	}
	if len(where) == 0 {
		return nil, nil
	}
	return where, nil
}

// scopeTotal counts indexed chunks, optionally narrowed to one document.
func (s *LocalStore) scopeTotal(documentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if documentID == "" {
		return len(s.ids)
	}
	total := 0
	for _, docID := range s.ids {
		if docID == documentID {
			total++
		}
	}
	return total
}

// Search runs a dense similarity query. The query embedding must be
// resolved by the caller.
func (s *LocalStore) Search(ctx context.Context, query Query, opts SearchOptions) (*Page[SearchResult], error) {
	ctx, span := localTracer.Start(ctx, "LocalStore.Search")
	defer span.End()

	page, limit := opts.page(), opts.limit()
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
		attribute.Int("limit", limit),
	)

	if len(query.Embedding) == 0 {
		return nil, fmt.Errorf("%w: local store requires a query embedding", ErrInvalidQuery)
	}

	where, err := whereFilter(opts.DocumentID, opts.Filter)
	if err != nil {
		return nil, err
	}

	collection := s.db.GetCollection(s.config.collectionName(), noEmbeddingFunc)
	if collection == nil {
		return NewPage([]SearchResult{}, 0, page, limit), nil
	}

	// chromem rejects nResults larger than the collection, so clamp.
	k := page * limit
	if count := collection.Count(); k > count {
		k = count
	}
	if k == 0 {
		return NewPage([]SearchResult{}, 0, page, limit), nil
	}

	hits, err := collection.QueryEmbedding(ctx, query.Embedding, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: local query: %v", ErrBackendRequest, err)
	}

	window := pageWindow(hits, page, limit)
	results := make([]SearchResult, 0, len(window))
	for _, hit := range window {
		score := float64(hit.Similarity)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		logical := DecodeMetadata(hit.Metadata[localBlobKey])
		ReinjectIdentity(logical, s.config.NamespaceID, hit.Metadata[FieldDocumentID], s.config.TenantID)
		results = append(results, shapeResult(hit.ID, score, hit.Content, logical, opts, nil))
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	// Total is the scope size, not the filtered match count.
	return NewPage(results, s.scopeTotal(opts.DocumentID), page, limit), nil
}

// ListIDs enumerates chunk ids from the store's id index, sorted for
// stable pagination.
func (s *LocalStore) ListIDs(ctx context.Context, opts ListOptions) (*Page[string], error) {
	_, span := localTracer.Start(ctx, "LocalStore.ListIDs")
	defer span.End()

	page, limit := opts.page(), opts.limit()
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
	)

	s.mu.Lock()
	all := make([]string, 0, len(s.ids))
	for id, docID := range s.ids {
		if opts.DocumentID != "" && docID != opts.DocumentID {
			continue
		}
		all = append(all, id)
	}
	s.mu.Unlock()
	sort.Strings(all)

	ids := pageWindow(all, page, limit)

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	span.SetStatus(codes.Ok, "success")
	return NewPage(ids, len(all), page, limit), nil
}

// DeleteByIDs removes chunks by id. Absent ids are ignored.
func (s *LocalStore) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := localTracer.Start(ctx, "LocalStore.DeleteByIDs")
	defer span.End()

	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(ids) == 0 {
		return nil
	}

	collection := s.db.GetCollection(s.config.collectionName(), noEmbeddingFunc)
	if collection != nil {
		if err := collection.Delete(ctx, nil, nil, ids...); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("%w: local delete: %v", ErrBackendRequest, err)
		}
	}

	s.mu.Lock()
	for _, id := range ids {
		delete(s.ids, id)
	}
	s.mu.Unlock()

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op; chromem persists writes as they happen.
func (s *LocalStore) Close() error {
	return nil
}

// Ensure LocalStore implements the Store interface.
var _ Store = (*LocalStore)(nil)
