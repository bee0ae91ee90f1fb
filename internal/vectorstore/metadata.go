package vectorstore

import (
	"encoding/json"

	"github.com/keystonehq/retrieval/internal/schema"
)

// Identity fields promoted to backend-native columns/payload keys on
// every driver. They are stripped from the serialized metadata blob on
// write (to avoid duplication) and reinjected on read so callers see the
// logical metadata shape they indexed.
const (
	FieldNamespaceID = "namespaceId"
	FieldTenantID    = "tenantId"
	FieldDocumentID  = "documentId"
)

// identityFields in reconciliation order.
var identityFields = []string{FieldNamespaceID, FieldDocumentID, FieldTenantID}

// EncodeMetadata serializes chunk metadata to a JSON blob for exact
// round-trip storage, with the promoted identity fields stripped.
func EncodeMetadata(metadata map[string]any) (string, error) {
	stripped := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isIdentityField(k) {
			continue
		}
		stripped[k] = v
	}
	blob, err := json.Marshal(stripped)
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// DecodeMetadata parses a stored metadata blob. A parse failure degrades
// to an empty map: reads must never fail solely because of malformed
// legacy metadata.
func DecodeMetadata(blob string) map[string]any {
	if blob == "" {
		return map[string]any{}
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(blob), &metadata); err != nil {
		return map[string]any{}
	}
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}

// ReinjectIdentity restores the promoted identity fields into decoded
// metadata so the logical shape matches what the caller indexed. An empty
// tenant stays absent rather than becoming an empty string.
func ReinjectIdentity(metadata map[string]any, namespaceID, documentID, tenantID string) {
	metadata[FieldNamespaceID] = namespaceID
	metadata[FieldDocumentID] = documentID
	if tenantID != "" {
		metadata[FieldTenantID] = tenantID
	}
}

// FlattenMetadata projects metadata into backend-filterable scalars.
// Scalar values pass through; nested structures are JSON-stringified.
// Identity fields and node bookkeeping keys are excluded: identity is
// promoted separately, and the bookkeeping blobs are redundant with the
// serialized metadata.
func FlattenMetadata(metadata map[string]any) map[string]any {
	flat := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isIdentityField(k) || k == schema.NodeContentKey || k == schema.NodeTypeKey {
			continue
		}
		switch val := v.(type) {
		case nil:
			continue
		case string, bool, int, int64, float32, float64:
			flat[k] = val
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			flat[k] = string(encoded)
		}
	}
	return flat
}

func isIdentityField(key string) bool {
	for _, f := range identityFields {
		if key == f {
			return true
		}
	}
	return false
}

// shapeResult normalizes one decoded hit into the uniform result shape.
// logical must already contain reinjected identity fields. When the
// metadata describes a recognized node it is reconstructed; otherwise the
// raw id/text/metadata are used verbatim.
func shapeResult(id string, score float64, text string, logical map[string]any, opts SearchOptions, highlights []string) SearchResult {
	node := schema.MetadataToChunk(logical)
	if node == nil {
		node = &schema.TextNode{ID: id, Text: text, Metadata: logical}
	}

	result := SearchResult{
		ID:         id,
		Score:      score,
		Text:       node.Text,
		Highlights: highlights,
	}
	if opts.IncludeMetadata {
		result.Metadata = node.Metadata
	}
	if opts.IncludeRelationships {
		result.Relationships = node.Relationships
	}
	return result
}
