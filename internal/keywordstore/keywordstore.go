// Package keywordstore adapts Azure AI Search as a lexical companion to
// the dense vector stores. It implements the same Store contract so
// retrieval callers can fan out to both and merge result sets.
package keywordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/keystonehq/retrieval/internal/schema"
	"github.com/keystonehq/retrieval/internal/vectorstore"
)

// tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("retrieval.keywordstore")

const (
	apiVersion = "2023-11-01"

	fieldID            = "id"
	fieldText          = "text"
	fieldMetadata      = "metadata"
	fieldMetadataArray = "metadata_array"

	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 20 // requests per second
	defaultBurst     = 5
)

// Config scopes a Store to one search index, namespace, and tenant.
type Config struct {
	// Endpoint is the search service URL, e.g.
	// "https://myservice.search.windows.net".
	Endpoint string

	// Index is the search index holding all namespaces.
	Index string

	APIKey string

	NamespaceID string
	TenantID    string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" || c.Index == "" || c.APIKey == "" {
		return fmt.Errorf("%w: azure search endpoint, index, and api key required", vectorstore.ErrMissingConfig)
	}
	if c.NamespaceID == "" {
		return fmt.Errorf("%w: namespace id required", vectorstore.ErrInvalidConfig)
	}
	return nil
}

// Store is a lexical keyword Store backed by the Azure AI Search REST
// API.
//
// Driver notes:
//   - Isolation: a single shared index; namespaceId/tenantId are
//     promoted columns matched by an OData filter on every operation.
//   - Keys: canonical chunk ids are re-encoded for Azure's key charset
//     (see EncodeID) and decoded on the way out.
//   - Metadata lands twice: an exact-round-trip JSON blob plus an
//     exploded {key,value} pair column for backend-native filtering.
//   - Pagination: the API reports exact counts, so pages are closed.
//   - Search matches BM25 over the text column and returns term
//     highlights; MinScore is applied post-fetch.
//   - Upsert failures reject the whole batch.
type Store struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewStore creates a Store. No network call is made.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		config:     cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		logger:     logger,
	}, nil
}

// Wire types for the documents API.

type searchRequest struct {
	Search          string `json:"search"`
	Filter          string `json:"filter,omitempty"`
	Select          string `json:"select,omitempty"`
	OrderBy         string `json:"orderby,omitempty"`
	HighlightFields string `json:"highlight,omitempty"`
	Top             int    `json:"top"`
	Skip            int    `json:"skip"`
	Count           bool   `json:"count"`
}

type searchResponse struct {
	Count *int        `json:"@odata.count"`
	Value []searchHit `json:"value"`
}

type searchHit struct {
	Score      float64             `json:"@search.score"`
	Highlights map[string][]string `json:"@search.highlights"`

	ID          string `json:"id"`
	NamespaceID string `json:"namespaceId"`
	TenantID    string `json:"tenantId"`
	DocumentID  string `json:"documentId"`
	Text        string `json:"text"`
	Metadata    string `json:"metadata"`
}

type indexBatch struct {
	Value []map[string]any `json:"value"`
}

type indexResponse struct {
	Value []indexResult `json:"value"`
}

type indexResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	StatusCode   int    `json:"statusCode"`
	ErrorMessage string `json:"errorMessage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// do issues one documents-API request and decodes the response into out
// (when non-nil).
func (s *Store) do(ctx context.Context, docsPath string, body, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/indexes/%s/docs/%s?api-version=%s",
		s.config.Endpoint, url.PathEscape(s.config.Index), docsPath, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("api-key", s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrBackendRequest, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", vectorstore.ErrBackendRequest, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var decoded apiError
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error.Message != "" {
			return fmt.Errorf("%w: azure search %d: %s", vectorstore.ErrBackendRequest, resp.StatusCode, decoded.Error.Message)
		}
		return fmt.Errorf("%w: azure search %d", vectorstore.ErrBackendRequest, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", vectorstore.ErrBackendRequest, err)
		}
	}
	return nil
}

// metadataPairs explodes metadata into {key,value} string pairs for the
// index's filterable collection column, alongside the exact-round-trip
// metadata blob. Identity and node bookkeeping keys are excluded and
// pairs are sorted by key so documents stay deterministic.
func metadataPairs(metadata map[string]any) []map[string]string {
	flat := vectorstore.FlattenMetadata(metadata)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, map[string]string{"key": k, "value": pairValue(flat[k])})
	}
	return pairs
}

func pairValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// scopeFilter builds the OData filter enforcing namespace, tenant, and
// optional document scope, ANDed with the caller's extra OData
// expression when present.
func (s *Store) scopeFilter(documentID, extra string) string {
	b := &filterBuilder{}
	b.eq(vectorstore.FieldNamespaceID, s.config.NamespaceID)
	b.eq(vectorstore.FieldTenantID, s.config.TenantID)
	b.eq(vectorstore.FieldDocumentID, documentID)
	b.raw(extra)
	return b.String()
}

// Upsert indexes chunks with mergeOrUpload semantics.
func (s *Store) Upsert(ctx context.Context, chunks []vectorstore.Chunk) error {
	ctx, span := tracer.Start(ctx, "KeywordStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(chunks) == 0 {
		return nil
	}

	// mergeOrUpload keeps omitted fields from the previous version of a
	// document, so every column is written on every upsert. A tenant-less
	// scope writes an explicit null to clear any stale tenant column.
	var tenant any
	if s.config.TenantID != "" {
		tenant = s.config.TenantID
	}

	batch := indexBatch{Value: make([]map[string]any, len(chunks))}
	for i, chunk := range chunks {
		blob, err := vectorstore.EncodeMetadata(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for chunk %q: %w", chunk.ID, err)
		}
		batch.Value[i] = map[string]any{
			"@search.action":             "mergeOrUpload",
			fieldID:                      EncodeID(chunk.ID),
			fieldText:                    chunk.Text,
			fieldMetadata:                blob,
			fieldMetadataArray:           metadataPairs(chunk.Metadata),
			vectorstore.FieldNamespaceID: s.config.NamespaceID,
			vectorstore.FieldDocumentID:  chunk.DocumentID,
			vectorstore.FieldTenantID:    tenant,
		}
	}

	var resp indexResponse
	if err := s.do(ctx, "index", batch, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	for _, result := range resp.Value {
		if !result.Status {
			err := fmt.Errorf("%w: indexing key %s: %d %s",
				vectorstore.ErrBackendRequest, result.Key, result.StatusCode, result.ErrorMessage)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search runs a BM25 keyword query over the text column, with term
// highlights on matches.
func (s *Store) Search(ctx context.Context, query vectorstore.Query, opts vectorstore.SearchOptions) (*vectorstore.Page[vectorstore.SearchResult], error) {
	ctx, span := tracer.Start(ctx, "KeywordStore.Search")
	defer span.End()

	page, limit := pageLimit(opts.Page, opts.Limit)
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
		attribute.Int("limit", limit),
	)

	if query.Text == "" {
		return nil, fmt.Errorf("%w: keyword search requires query text", vectorstore.ErrInvalidQuery)
	}

	var resp searchResponse
	err := s.do(ctx, "search", searchRequest{
		Search:          query.Text,
		Filter:          s.scopeFilter(opts.DocumentID, opts.Filter),
		HighlightFields: fieldText,
		Top:             limit,
		Skip:            (page - 1) * limit,
		Count:           true,
	}, &resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]vectorstore.SearchResult, 0, len(resp.Value))
	for _, hit := range resp.Value {
		if opts.MinScore > 0 && hit.Score < opts.MinScore {
			continue
		}
		results = append(results, s.shapeHit(hit, opts))
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	if resp.Count == nil {
		return vectorstore.NewOpenPage(results, page, limit, len(resp.Value)), nil
	}
	return vectorstore.NewPage(results, *resp.Count, page, limit), nil
}

// shapeHit normalizes one hit into the uniform result shape shared with
// the dense drivers.
func (s *Store) shapeHit(hit searchHit, opts vectorstore.SearchOptions) vectorstore.SearchResult {
	id := DecodeID(hit.ID)
	logical := vectorstore.DecodeMetadata(hit.Metadata)
	vectorstore.ReinjectIdentity(logical, s.config.NamespaceID, hit.DocumentID, s.config.TenantID)

	node := schema.MetadataToChunk(logical)
	if node == nil {
		node = &schema.TextNode{ID: id, Text: hit.Text, Metadata: logical}
	}

	result := vectorstore.SearchResult{
		ID:         id,
		Score:      hit.Score,
		Text:       node.Text,
		Highlights: hit.Highlights[fieldText],
	}
	if opts.IncludeMetadata {
		result.Metadata = node.Metadata
	}
	if opts.IncludeRelationships {
		result.Relationships = node.Relationships
	}
	return result
}

// ListIDs enumerates canonical chunk ids in scope, ordered by key for
// stable pagination.
func (s *Store) ListIDs(ctx context.Context, opts vectorstore.ListOptions) (*vectorstore.Page[string], error) {
	ctx, span := tracer.Start(ctx, "KeywordStore.ListIDs")
	defer span.End()

	page, limit := pageLimit(opts.Page, opts.Limit)
	if opts.Limit < 1 {
		limit = 1000
	}
	span.SetAttributes(
		attribute.String("namespace", s.config.NamespaceID),
		attribute.Int("page", page),
	)

	var resp searchResponse
	err := s.do(ctx, "search", searchRequest{
		Search:  "*",
		Filter:  s.scopeFilter(opts.DocumentID, ""),
		Select:  fieldID,
		OrderBy: fieldID + " asc",
		Top:     limit,
		Skip:    (page - 1) * limit,
		Count:   true,
	}, &resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ids := make([]string, len(resp.Value))
	for i, hit := range resp.Value {
		ids[i] = DecodeID(hit.ID)
	}

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	span.SetStatus(codes.Ok, "success")

	if resp.Count == nil {
		return vectorstore.NewOpenPage(ids, page, limit, len(ids)), nil
	}
	return vectorstore.NewPage(ids, *resp.Count, page, limit), nil
}

// DeleteByIDs removes chunks by canonical id. Azure treats deletes of
// absent keys as successful.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "KeywordStore.DeleteByIDs")
	defer span.End()

	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
		attribute.String("namespace", s.config.NamespaceID),
	)

	if len(ids) == 0 {
		return nil
	}

	batch := indexBatch{Value: make([]map[string]any, len(ids))}
	for i, id := range ids {
		batch.Value[i] = map[string]any{
			"@search.action": "delete",
			fieldID:          EncodeID(id),
		}
	}

	if err := s.do(ctx, "index", batch, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op; the store holds no persistent connections.
func (s *Store) Close() error {
	return nil
}

// pageLimit applies the shared pagination defaults.
func pageLimit(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return page, limit
}

// Ensure Store implements the shared contract.
var _ vectorstore.Store = (*Store)(nil)
