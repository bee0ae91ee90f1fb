package keywordstore

import "strings"

// Azure AI Search document keys only allow letters, digits, underscore,
// dash, and equals. Canonical chunk ids follow "{documentId}#{ordinal}",
// so the hash is mapped to an underscore on write and back on read.
//
// The mapping is lossy for ids that already contain underscores; the
// canonical id convention does not produce those, so the round trip
// holds in practice.

// EncodeID maps a canonical chunk id to a legal search key.
func EncodeID(id string) string {
	return strings.ReplaceAll(id, "#", "_")
}

// DecodeID restores the canonical chunk id from a search key.
func DecodeID(key string) string {
	return strings.ReplaceAll(key, "_", "#")
}
