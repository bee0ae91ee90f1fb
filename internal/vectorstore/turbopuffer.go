package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// tpufTracer for OpenTelemetry instrumentation.
var tpufTracer = otel.Tracer("retrieval.vectorstore.turbopuffer")

const (
	tpufTextKey = "text"
	tpufBlobKey = "_metadata"

	tpufDefaultTimeout   = 30 * time.Second
	tpufDefaultRateLimit = 50 // requests per second
	tpufDefaultBurst     = 10
)

// TurbopufferConfig scopes a TurbopufferStore to one namespace and
// tenant.
type TurbopufferConfig struct {
	APIKey string

	// Region selects the API endpoint (e.g. "aws-us-east-1"). Ignored
	// when BaseURL is set.
	Region string

	// BaseURL overrides the API endpoint; used by tests and self-hosted
	// proxies.
	BaseURL string

	NamespaceID string
	TenantID    string
}

// Validate validates the configuration.
func (c TurbopufferConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: turbopuffer api key required", ErrMissingConfig)
	}
	if c.Region == "" && c.BaseURL == "" {
		return fmt.Errorf("%w: turbopuffer region required", ErrMissingConfig)
	}
	if c.NamespaceID == "" {
		return fmt.Errorf("%w: namespace id required", ErrInvalidConfig)
	}
	return nil
}

// storeNamespace maps the logical namespace/tenant pair onto one
// Turbopuffer namespace, making tenant isolation structural.
func (c TurbopufferConfig) storeNamespace() string {
	if c.TenantID != "" {
		return c.NamespaceID + "-" + c.TenantID
	}
	return c.NamespaceID
}

// TurbopufferStore is a dense-vector Store backed by the Turbopuffer
// HTTP API.
//
// Driver notes:
//   - Isolation: one Turbopuffer namespace per logical namespace/tenant.
//   - Scores: the API reports cosine distance (lower is closer); the
//     driver exposes 1-dist so higher remains more relevant.
//   - Pagination: no numeric offset, no totals. Queries over-fetch from
//     the start and window client-side; pages are open.
//   - Upsert failures reject the whole batch.
//   - MinScore is applied post-fetch.
type TurbopufferStore struct {
	config     TurbopufferConfig
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewTurbopufferStore creates a TurbopufferStore. No network call is
// made.
func NewTurbopufferStore(cfg TurbopufferConfig, logger *zap.Logger) (*TurbopufferStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.turbopuffer.com", cfg.Region)
	}

	return &TurbopufferStore{
		config:     cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: tpufDefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(tpufDefaultRateLimit), tpufDefaultBurst),
		logger:     logger,
	}, nil
}

// Wire types for the Turbopuffer namespace API.

type tpufRow struct {
	ID         string         `json:"id"`
	Vector     []float32      `json:"vector,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type tpufWriteRequest struct {
	Upserts        []tpufRow `json:"upserts,omitempty"`
	Deletes        []string  `json:"deletes,omitempty"`
	DistanceMetric string    `json:"distance_metric,omitempty"`
}

type tpufQueryRequest struct {
	Vector            []float32 `json:"vector,omitempty"`
	RankBy            []any     `json:"rank_by,omitempty"`
	TopK              int       `json:"top_k"`
	Filters           any       `json:"filters,omitempty"`
	IncludeAttributes bool      `json:"include_attributes"`
}

type tpufQueryHit struct {
	ID         string         `json:"id"`
	Dist       float64        `json:"dist"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type tpufErrorResponse struct {
	Error string `json:"error"`
}

// do issues one API request and decodes the response into out (when
// non-nil). Backend failures are wrapped in ErrBackendRequest and
// propagated unretried.
func (s *TurbopufferStore) do(ctx context.Context, method, path string, body, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendRequest, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrBackendRequest, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr tpufErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%w: turbopuffer %d: %s", ErrBackendRequest, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%w: turbopuffer %d", ErrBackendRequest, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrBackendRequest, err)
		}
	}
	return nil
}

func (s *TurbopufferStore) namespacePath() string {
	return "/v1/namespaces/" + url.PathEscape(s.config.storeNamespace())
}

// Upsert writes chunks as rows of the scoped namespace.
func (s *TurbopufferStore) Upsert(ctx context.Context, chunks []Chunk) error {
	ctx, span := tpufTracer.Start(ctx, "TurbopufferStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(chunks) == 0 {
		return nil
	}

	rows := make([]tpufRow, len(chunks))
	for i, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %q has no embedding", ErrInvalidQuery, chunk.ID)
		}

		blob, err := EncodeMetadata(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for chunk %q: %w", chunk.ID, err)
		}
		attributes := FlattenMetadata(chunk.Metadata)
		attributes[tpufTextKey] = chunk.Text
		attributes[FieldDocumentID] = chunk.DocumentID
		attributes[tpufBlobKey] = blob

		rows[i] = tpufRow{
			ID:         chunk.ID,
			Vector:     chunk.Embedding,
			Attributes: attributes,
		}
	}

	err := s.do(ctx, http.MethodPost, s.namespacePath(), tpufWriteRequest{
		Upserts:        rows,
		DistanceMetric: "cosine_distance",
	}, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search runs a dense similarity query. The query embedding must be
// resolved by the caller.
func (s *TurbopufferStore) Search(ctx context.Context, query Query, opts SearchOptions) (*Page[SearchResult], error) {
	ctx, span := tpufTracer.Start(ctx, "TurbopufferStore.Search")
	defer span.End()

	page, limit := opts.page(), opts.limit()
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
		attribute.Int("limit", limit),
	)

	if len(query.Embedding) == 0 {
		return nil, fmt.Errorf("%w: turbopuffer requires a query embedding", ErrInvalidQuery)
	}

	filters, err := s.buildFilters(opts.DocumentID, opts.Filter)
	if err != nil {
		return nil, err
	}

	var hits []tpufQueryHit
	err = s.do(ctx, http.MethodPost, s.namespacePath()+"/query", tpufQueryRequest{
		Vector:            query.Embedding,
		TopK:              page * limit,
		Filters:           filters,
		IncludeAttributes: true,
	}, &hits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	window := pageWindow(hits, page, limit)
	results := make([]SearchResult, 0, len(window))
	for _, hit := range window {
		// Cosine distance: 0 is identical. Flip so higher means closer.
		score := 1 - hit.Dist
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		results = append(results, s.shapeHit(hit, score, opts))
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return NewOpenPage(results, page, limit, len(window)), nil
}

func (s *TurbopufferStore) shapeHit(hit tpufQueryHit, score float64, opts SearchOptions) SearchResult {
	var text, blob, documentID string
	if hit.Attributes != nil {
		text, _ = hit.Attributes[tpufTextKey].(string)
		blob, _ = hit.Attributes[tpufBlobKey].(string)
		documentID, _ = hit.Attributes[FieldDocumentID].(string)
	}

	logical := DecodeMetadata(blob)
	ReinjectIdentity(logical, s.config.NamespaceID, documentID, s.config.TenantID)

	return shapeResult(hit.ID, score, text, logical, opts, nil)
}

// buildFilters combines document scoping with the caller's extra filter.
// The extra filter, when present, must be a JSON-encoded Turbopuffer
// filter expression (nested-array form); clauses are ANDed.
func (s *TurbopufferStore) buildFilters(documentID, extra string) (any, error) {
	clauses := make([]any, 0, 2)
	if documentID != "" {
		clauses = append(clauses, []any{FieldDocumentID, "Eq", documentID})
	}
	if extra != "" {
		var parsed any
		if err := json.Unmarshal([]byte(extra), &parsed); err != nil {
			return nil, fmt.Errorf("%w: turbopuffer filter must be JSON: %v", ErrInvalidQuery, err)
		}
		clauses = append(clauses, parsed)
	}

	switch len(clauses) {
	case 0:
		return nil, nil
	case 1:
		return clauses[0], nil
	default:
		return []any{"And", clauses}, nil
	}
}

// ListIDs enumerates chunk ids ordered by id. Turbopuffer reports no
// totals; pages are open.
func (s *TurbopufferStore) ListIDs(ctx context.Context, opts ListOptions) (*Page[string], error) {
	ctx, span := tpufTracer.Start(ctx, "TurbopufferStore.ListIDs")
	defer span.End()

	page, limit := opts.page(), opts.limit()
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
	)

	filters, err := s.buildFilters(opts.DocumentID, "")
	if err != nil {
		return nil, err
	}

	var hits []tpufQueryHit
	err = s.do(ctx, http.MethodPost, s.namespacePath()+"/query", tpufQueryRequest{
		RankBy:            []any{"id", "asc"},
		TopK:              page * limit,
		Filters:           filters,
		IncludeAttributes: false,
	}, &hits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	window := pageWindow(hits, page, limit)
	ids := make([]string, len(window))
	for i, hit := range window {
		ids[i] = hit.ID
	}

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	span.SetStatus(codes.Ok, "success")
	return NewOpenPage(ids, page, limit, len(window)), nil
}

// DeleteByIDs removes chunks by canonical id. Absent ids are ignored by
// the backend.
func (s *TurbopufferStore) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tpufTracer.Start(ctx, "TurbopufferStore.DeleteByIDs")
	defer span.End()

	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(ids) == 0 {
		return nil
	}

	if err := s.do(ctx, http.MethodPost, s.namespacePath(), tpufWriteRequest{Deletes: ids}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op; the store holds no persistent connections.
func (s *TurbopufferStore) Close() error {
	return nil
}

// Ensure TurbopufferStore implements the Store interface.
var _ Store = (*TurbopufferStore)(nil)
