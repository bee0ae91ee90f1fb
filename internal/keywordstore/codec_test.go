package keywordstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeID(t *testing.T) {
	assert.Equal(t, "doc1_0", EncodeID("doc1#0"))
	assert.Equal(t, "a_b_c", EncodeID("a#b#c"))
	assert.Equal(t, "plain", EncodeID("plain"))
}

func TestDecodeID(t *testing.T) {
	assert.Equal(t, "doc1#0", DecodeID("doc1_0"))
	assert.Equal(t, "a#b#c", DecodeID("a_b_c"))
	assert.Equal(t, "plain", DecodeID("plain"))
}

func TestIDRoundTrip(t *testing.T) {
	for _, id := range []string{"doc1#0", "doc1#12", "uuid-4f2a#3"} {
		assert.Equal(t, id, DecodeID(EncodeID(id)))
	}
}

func TestFilterBuilder(t *testing.T) {
	b := &filterBuilder{}
	b.eq("namespaceId", "ns1").eq("tenantId", "").eq("documentId", "doc1")
	assert.Equal(t, "namespaceId eq 'ns1' and documentId eq 'doc1'", b.String())
}

func TestFilterBuilderEscapesQuotes(t *testing.T) {
	b := &filterBuilder{}
	b.eq("namespaceId", "o'brien")
	assert.Equal(t, "namespaceId eq 'o''brien'", b.String())
}

func TestFilterBuilderRaw(t *testing.T) {
	b := &filterBuilder{}
	b.eq("namespaceId", "ns1").raw("lang eq 'en' or lang eq 'de'")
	assert.Equal(t, "namespaceId eq 'ns1' and (lang eq 'en' or lang eq 'de')", b.String())
}

func TestFilterBuilderEmpty(t *testing.T) {
	b := &filterBuilder{}
	b.eq("tenantId", "").raw("")
	assert.Equal(t, "", b.String())
}
