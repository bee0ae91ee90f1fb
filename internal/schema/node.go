// Package schema reconstructs content nodes from indexed chunk metadata.
//
// Chunks are indexed with two bookkeeping keys alongside user metadata:
// _node_content carries the serialized node and _node_type its kind.
// This package decodes that convention back into a TextNode so search
// results can expose the logical text, metadata, and relationships the
// ingestion side wrote, independent of which backend stored the chunk.
package schema

import "encoding/json"

// Bookkeeping metadata keys written by the ingestion pipeline.
const (
	NodeContentKey = "_node_content"
	NodeTypeKey    = "_node_type"
)

// textNodeType is the only node kind the retrieval layer reconstructs.
const textNodeType = "TextNode"

// TextNode is a reconstructed content node.
type TextNode struct {
	// ID is the canonical chunk identifier.
	ID string

	// Text is the raw chunk content.
	Text string

	// Metadata is the logical, user-visible metadata.
	Metadata map[string]any

	// Relationships links this node to parent/sibling content.
	// Keys are relationship kinds; values are backend-opaque node refs.
	Relationships map[string]any
}

// nodeContent is the serialized shape stored under NodeContentKey.
type nodeContent struct {
	ID            string         `json:"id_"`
	Text          string         `json:"text"`
	Metadata      map[string]any `json:"metadata"`
	Relationships map[string]any `json:"relationships"`
}

// MetadataToChunk reconstructs a TextNode from decoded chunk metadata.
//
// Returns nil when the metadata does not describe a recognized node shape
// (missing or malformed bookkeeping keys, or a non-text node type). A nil
// return is not an error; callers fall back to a minimal node built from
// the raw stored fields.
func MetadataToChunk(metadata map[string]any) *TextNode {
	rawType, ok := metadata[NodeTypeKey].(string)
	if !ok || rawType != textNodeType {
		return nil
	}
	rawContent, ok := metadata[NodeContentKey].(string)
	if !ok {
		return nil
	}

	var content nodeContent
	if err := json.Unmarshal([]byte(rawContent), &content); err != nil {
		return nil
	}

	node := &TextNode{
		ID:            content.ID,
		Text:          content.Text,
		Metadata:      content.Metadata,
		Relationships: content.Relationships,
	}
	if node.Metadata == nil {
		// Older chunks serialized the node without its metadata; expose
		// the surrounding metadata minus the bookkeeping keys instead.
		node.Metadata = stripBookkeeping(metadata)
	}
	return node
}

func stripBookkeeping(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if k == NodeContentKey || k == NodeTypeKey {
			continue
		}
		out[k] = v
	}
	return out
}
