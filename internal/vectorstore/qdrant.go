package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("retrieval.vectorstore.qdrant")

const (
	qdrantDefaultCollection = "chunks"
	qdrantDefaultPort       = 6334

	qdrantIDKey   = "id"
	qdrantTextKey = "text"
	qdrantBlobKey = "_metadata"
)

// QdrantStoreConfig scopes a QdrantStore to one namespace and tenant.
type QdrantStoreConfig struct {
	NamespaceID string
	TenantID    string

	// Collection is the shared collection holding all namespaces.
	// Default: "chunks"
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantStoreConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = qdrantDefaultCollection
	}
}

// Validate validates the configuration.
func (c QdrantStoreConfig) Validate() error {
	if c.NamespaceID == "" {
		return fmt.Errorf("%w: namespace id required", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore is a dense-vector Store backed by a self-hosted Qdrant
// cluster over gRPC.
//
// Driver notes:
//   - Isolation: a single shared collection; namespaceId/tenantId payload
//     fields are matched with mandatory must-conditions on every read,
//     write-side the fields are stamped onto each point.
//   - Point ids: Qdrant accepts only UUID or integer ids, canonical chunk
//     ids are free-form. Ids are derived deterministically with SHA1
//     UUIDs so re-upserting the same chunk replaces it; the canonical id
//     lives in the payload.
//   - Pagination: Qdrant reports exact counts, so pages are closed
//     (Total/TotalPages are real).
//   - MinScore uses Qdrant's native score threshold.
//   - Upsert failures reject the whole batch.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantStoreConfig
	logger *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore creates a QdrantStore on a shared client. No network
// call is made; the gRPC channel connects lazily.
func NewQdrantStore(cfg QdrantStoreConfig, client *qdrant.Client, logger *zap.Logger) (*QdrantStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: qdrant client required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantStore{client: client, config: cfg, logger: logger}, nil
}

// splitHostPort parses a "host[:port]" index host, defaulting to the
// Qdrant gRPC port.
func splitHostPort(indexHost string) (string, int, error) {
	host := strings.TrimPrefix(strings.TrimPrefix(indexHost, "https://"), "http://")
	if !strings.Contains(host, ":") {
		return host, qdrantDefaultPort, nil
	}
	hostname, portStr, err := net.SplitHostPort(host)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return hostname, port, nil
}

// pointID derives the deterministic Qdrant point id for a canonical
// chunk id within this store's scope.
func (s *QdrantStore) pointID(chunkID string) string {
	name := s.config.NamespaceID + "\x00" + s.config.TenantID + "\x00" + chunkID
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// ensureCollection creates the shared collection on first write.
func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	s.ensureOnce.Do(func() {
		exists, err := s.client.CollectionExists(ctx, s.config.Collection)
		if err != nil {
			s.ensureErr = fmt.Errorf("%w: checking collection %s: %v", ErrBackendRequest, s.config.Collection, err)
			return
		}
		if exists {
			return
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			s.ensureErr = fmt.Errorf("%w: creating collection %s: %v", ErrBackendRequest, s.config.Collection, err)
		}
	})
	return s.ensureErr
}

// Upsert writes chunks as points stamped with the store's scope.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(chunks) == 0 {
		return nil
	}

	if err := s.ensureCollection(ctx, len(chunks[0].Embedding)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %q has no embedding", ErrInvalidQuery, chunk.ID)
		}

		blob, err := EncodeMetadata(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for chunk %q: %w", chunk.ID, err)
		}

		payload := map[string]*qdrant.Value{
			qdrantIDKey:      qdrantValue(chunk.ID),
			qdrantTextKey:    qdrantValue(chunk.Text),
			qdrantBlobKey:    qdrantValue(blob),
			FieldNamespaceID: qdrantValue(s.config.NamespaceID),
			FieldDocumentID:  qdrantValue(chunk.DocumentID),
		}
		if s.config.TenantID != "" {
			payload[FieldTenantID] = qdrantValue(s.config.TenantID)
		}
		for k, v := range FlattenMetadata(chunk.Metadata) {
			if _, reserved := payload[k]; reserved {
				continue
			}
			if value := qdrantValue(v); value != nil {
				payload[k] = value
			}
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(s.pointID(chunk.ID)),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: payload,
		}
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Points:         points,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: qdrant upsert: %v", ErrBackendRequest, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// qdrantValue converts a JSON-kind scalar to a qdrant payload value.
// Unsupported kinds map to nil and are skipped.
func qdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	default:
		return nil
	}
}

// scopeFilter builds the mandatory must-conditions enforcing namespace,
// tenant, and optional document scope, ANDed with the caller's extra
// filter (a protojson-encoded Qdrant filter) when present.
func (s *QdrantStore) scopeFilter(documentID, extra string) (*qdrant.Filter, error) {
	must := []*qdrant.Condition{matchKeyword(FieldNamespaceID, s.config.NamespaceID)}
	if s.config.TenantID != "" {
		must = append(must, matchKeyword(FieldTenantID, s.config.TenantID))
	}
	if documentID != "" {
		must = append(must, matchKeyword(FieldDocumentID, documentID))
	}

	if extra != "" {
		nested := &qdrant.Filter{}
		if err := protojson.Unmarshal([]byte(extra), nested); err != nil {
			return nil, fmt.Errorf("%w: qdrant filter must be a JSON filter object: %v", ErrInvalidQuery, err)
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{Filter: nested},
		})
	}

	return &qdrant.Filter{Must: must}, nil
}

func matchKeyword(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// count returns the exact number of points in scope.
func (s *QdrantStore) count(ctx context.Context, filter *qdrant.Filter) (int, error) {
	total, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant count: %v", ErrBackendRequest, err)
	}
	return int(total), nil
}

// Search runs a dense similarity query. The query embedding must be
// resolved by the caller.
func (s *QdrantStore) Search(ctx context.Context, query Query, opts SearchOptions) (*Page[SearchResult], error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	page, limit := opts.page(), opts.limit()
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
		attribute.Int("limit", limit),
	)

	if len(query.Embedding) == 0 {
		return nil, fmt.Errorf("%w: qdrant requires a query embedding", ErrInvalidQuery)
	}

	filter, err := s.scopeFilter(opts.DocumentID, opts.Filter)
	if err != nil {
		return nil, err
	}

	total, err := s.count(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(query.Embedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Offset:         qdrant.PtrOf(uint64((page - 1) * limit)),
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.MinScore > 0 {
		// Native threshold support; no post-fetch filtering needed.
		queryPoints.ScoreThreshold = qdrant.PtrOf(float32(opts.MinScore))
	}

	scored, err := s.client.Query(ctx, queryPoints)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: qdrant query: %v", ErrBackendRequest, err)
	}

	results := make([]SearchResult, 0, len(scored))
	for _, point := range scored {
		results = append(results, s.shapePoint(point.Payload, float64(point.Score), opts))
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return NewPage(results, total, page, limit), nil
}

func (s *QdrantStore) shapePoint(payload map[string]*qdrant.Value, score float64, opts SearchOptions) SearchResult {
	var id, text, blob, documentID string
	if payload != nil {
		id = payload[qdrantIDKey].GetStringValue()
		text = payload[qdrantTextKey].GetStringValue()
		blob = payload[qdrantBlobKey].GetStringValue()
		documentID = payload[FieldDocumentID].GetStringValue()
	}

	logical := DecodeMetadata(blob)
	ReinjectIdentity(logical, s.config.NamespaceID, documentID, s.config.TenantID)

	return shapeResult(id, score, text, logical, opts, nil)
}

// ListIDs enumerates canonical chunk ids in scope. Qdrant's scroll cursor
// is id-based, not numeric, so the driver scrolls from the start and
// windows client-side; totals come from an exact count.
func (s *QdrantStore) ListIDs(ctx context.Context, opts ListOptions) (*Page[string], error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.ListIDs")
	defer span.End()

	page, limit := opts.page(), opts.limit()
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
	)

	filter, err := s.scopeFilter(opts.DocumentID, "")
	if err != nil {
		return nil, err
	}

	total, err := s.count(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.config.Collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(page * limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: qdrant scroll: %v", ErrBackendRequest, err)
	}

	window := pageWindow(points, page, limit)
	ids := make([]string, 0, len(window))
	for _, point := range window {
		if id := point.Payload[qdrantIDKey].GetStringValue(); id != "" {
			ids = append(ids, id)
		}
	}

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	span.SetStatus(codes.Ok, "success")
	return NewPage(ids, total, page, limit), nil
}

// DeleteByIDs removes chunks by canonical id within the store's scope.
// Absent ids match nothing and are silently ignored.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteByIDs")
	defer span.End()

	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(ids) == 0 {
		return nil
	}

	filter, err := s.scopeFilter("", "")
	if err != nil {
		return err
	}
	filter.Must = append(filter.Must, &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: qdrantIDKey,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: ids},
					},
				},
			},
		},
	})

	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: qdrant delete: %v", ErrBackendRequest, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op; the gRPC client is shared and cached per process.
func (s *QdrantStore) Close() error {
	return nil
}

// Ensure QdrantStore implements the Store interface.
var _ Store = (*QdrantStore)(nil)
