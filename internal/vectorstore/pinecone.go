package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// pineconeTracer for OpenTelemetry instrumentation.
var pineconeTracer = otel.Tracer("retrieval.vectorstore.pinecone")

// Payload keys used inside Pinecone vector metadata. The namespace and
// tenant are encoded in the Pinecone namespace name, not the payload.
const (
	pineconeTextKey = "text"
	pineconeBlobKey = "_metadata"
)

// PineconeConfig scopes a PineconeStore to one namespace and tenant.
type PineconeConfig struct {
	// IndexHost is the index data-plane host URL.
	IndexHost string

	NamespaceID string
	TenantID    string
}

// Validate validates the configuration.
func (c PineconeConfig) Validate() error {
	if c.IndexHost == "" {
		return fmt.Errorf("%w: index host required", ErrMissingConfig)
	}
	if c.NamespaceID == "" {
		return fmt.Errorf("%w: namespace id required", ErrInvalidConfig)
	}
	return nil
}

// indexNamespace maps the logical namespace/tenant pair onto one Pinecone
// index namespace. Tenant isolation is structural: each tenant gets its
// own Pinecone namespace.
func (c PineconeConfig) indexNamespace() string {
	if c.TenantID != "" {
		return c.NamespaceID + "__" + c.TenantID
	}
	return c.NamespaceID
}

// PineconeStore is a dense-vector Store backed by a Pinecone index.
//
// Driver notes:
//   - Isolation: one Pinecone namespace per logical namespace/tenant.
//   - Pagination: Pinecone queries have no numeric offset and report no
//     totals. Search over-fetches from the start and windows client-side;
//     ListIDs walks pagination tokens. Pages are open (TotalPages is 1,
//     HasNextPage is heuristic).
//   - Upsert failures reject the whole batch.
//   - MinScore is applied post-fetch; Pinecone has no threshold option.
type PineconeStore struct {
	index  *pinecone.IndexConnection
	config PineconeConfig
	logger *zap.Logger
}

// NewPineconeStore creates a PineconeStore on a shared client. No network
// call is made; the gRPC channel connects lazily.
func NewPineconeStore(cfg PineconeConfig, client *pinecone.Client, logger *zap.Logger) (*PineconeStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: pinecone client required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	index, err := client.Index(pinecone.NewIndexConnParams{
		Host:      cfg.IndexHost,
		Namespace: cfg.indexNamespace(),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to pinecone index %s: %w", cfg.IndexHost, err)
	}

	return &PineconeStore{index: index, config: cfg, logger: logger}, nil
}

// Upsert writes chunks to the index namespace.
func (s *PineconeStore) Upsert(ctx context.Context, chunks []Chunk) error {
	ctx, span := pineconeTracer.Start(ctx, "PineconeStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(chunks) == 0 {
		return nil
	}

	vectors := make([]*pinecone.Vector, len(chunks))
	for i, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %q has no embedding", ErrInvalidQuery, chunk.ID)
		}

		blob, err := EncodeMetadata(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for chunk %q: %w", chunk.ID, err)
		}
		payload := FlattenMetadata(chunk.Metadata)
		payload[pineconeTextKey] = chunk.Text
		payload[FieldDocumentID] = chunk.DocumentID
		payload[pineconeBlobKey] = blob

		metadata, err := structpb.NewStruct(payload)
		if err != nil {
			return fmt.Errorf("building metadata for chunk %q: %w", chunk.ID, err)
		}

		values := chunk.Embedding
		vectors[i] = &pinecone.Vector{
			Id:       chunk.ID,
			Values:   &values,
			Metadata: metadata,
		}
	}

	if _, err := s.index.UpsertVectors(ctx, vectors); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: pinecone upsert: %v", ErrBackendRequest, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search runs a dense similarity query. The query embedding must be
// resolved by the caller.
func (s *PineconeStore) Search(ctx context.Context, query Query, opts SearchOptions) (*Page[SearchResult], error) {
	ctx, span := pineconeTracer.Start(ctx, "PineconeStore.Search")
	defer span.End()

	page, limit := opts.page(), opts.limit()
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
		attribute.Int("limit", limit),
	)

	if len(query.Embedding) == 0 {
		return nil, fmt.Errorf("%w: pinecone requires a query embedding", ErrInvalidQuery)
	}

	filter, err := s.buildFilter(opts.DocumentID, opts.Filter)
	if err != nil {
		return nil, err
	}

	// No numeric offset in the query API: fetch from the start and slice
	// the requested window.
	resp, err := s.index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          query.Embedding,
		TopK:            uint32(page * limit),
		MetadataFilter:  filter,
		IncludeMetadata: true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: pinecone query: %v", ErrBackendRequest, err)
	}

	window := pageWindow(resp.Matches, page, limit)
	results := make([]SearchResult, 0, len(window))
	for _, match := range window {
		score := float64(match.Score)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		results = append(results, s.shapeMatch(match, score, opts))
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return NewOpenPage(results, page, limit, len(window)), nil
}

func (s *PineconeStore) shapeMatch(match *pinecone.ScoredVector, score float64, opts SearchOptions) SearchResult {
	var text, blob, documentID string
	if match.Vector.Metadata != nil {
		payload := match.Vector.Metadata.AsMap()
		text, _ = payload[pineconeTextKey].(string)
		blob, _ = payload[pineconeBlobKey].(string)
		documentID, _ = payload[FieldDocumentID].(string)
	}

	logical := DecodeMetadata(blob)
	ReinjectIdentity(logical, s.config.NamespaceID, documentID, s.config.TenantID)

	return shapeResult(match.Vector.Id, score, text, logical, opts, nil)
}

// buildFilter combines document scoping with the caller's extra filter.
// The extra filter, when present, must be a Pinecone metadata-filter JSON
// object; both clauses are ANDed.
func (s *PineconeStore) buildFilter(documentID, extra string) (*pinecone.MetadataFilter, error) {
	clauses := make([]any, 0, 2)
	if documentID != "" {
		clauses = append(clauses, map[string]any{FieldDocumentID: map[string]any{"$eq": documentID}})
	}
	if extra != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(extra), &parsed); err != nil {
			return nil, fmt.Errorf("%w: pinecone filter must be a JSON object: %v", ErrInvalidQuery, err)
		}
		clauses = append(clauses, parsed)
	}

	switch len(clauses) {
	case 0:
		return nil, nil
	case 1:
		filter, err := structpb.NewStruct(clauses[0].(map[string]any))
		if err != nil {
			return nil, fmt.Errorf("building filter: %w", err)
		}
		return filter, nil
	default:
		filter, err := structpb.NewStruct(map[string]any{"$and": clauses})
		if err != nil {
			return nil, fmt.Errorf("building filter: %w", err)
		}
		return filter, nil
	}
}

// ListIDs enumerates chunk ids by walking Pinecone's pagination tokens up
// to the requested page. Canonical chunk ids follow the
// "{documentId}#{ordinal}" convention, so document scoping uses an id
// prefix.
func (s *PineconeStore) ListIDs(ctx context.Context, opts ListOptions) (*Page[string], error) {
	ctx, span := pineconeTracer.Start(ctx, "PineconeStore.ListIDs")
	defer span.End()

	page, limit := opts.page(), opts.limit()
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
	)

	var prefix *string
	if opts.DocumentID != "" {
		p := opts.DocumentID + "#"
		prefix = &p
	}

	pageSize := uint32(limit)
	var token *string
	var ids []string
	var hasNext bool

	for current := 1; ; current++ {
		resp, err := s.index.ListVectors(ctx, &pinecone.ListVectorsRequest{
			Prefix:          prefix,
			Limit:           &pageSize,
			PaginationToken: token,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: pinecone list: %v", ErrBackendRequest, err)
		}

		token = resp.NextPaginationToken
		if current == page {
			ids = make([]string, 0, len(resp.VectorIds))
			for _, id := range resp.VectorIds {
				if id != nil {
					ids = append(ids, *id)
				}
			}
			hasNext = token != nil
			break
		}
		if token == nil {
			// Requested page is past the end.
			break
		}
	}

	fetched := len(ids)
	if hasNext {
		fetched = limit
	}

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	span.SetStatus(codes.Ok, "success")
	return NewOpenPage(ids, page, limit, fetched), nil
}

// DeleteByIDs removes chunks by canonical id. Pinecone ignores absent
// ids.
func (s *PineconeStore) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := pineconeTracer.Start(ctx, "PineconeStore.DeleteByIDs")
	defer span.End()

	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(ids) == 0 {
		return nil
	}

	if err := s.index.DeleteVectorsById(ctx, ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: pinecone delete: %v", ErrBackendRequest, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close closes the index connection. The shared client stays cached.
func (s *PineconeStore) Close() error {
	return s.index.Close()
}

// Ensure PineconeStore implements the Store interface.
var _ Store = (*PineconeStore)(nil)
