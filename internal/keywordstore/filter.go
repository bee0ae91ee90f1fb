package keywordstore

import "strings"

// odataQuote escapes a string literal for an OData filter expression.
// Single quotes double inside literals.
func odataQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// filterBuilder assembles an OData filter from equality clauses, ANDed
// in insertion order.
type filterBuilder struct {
	clauses []string
}

// eq appends a "field eq 'value'" clause. Empty values are skipped so
// optional scope fields (tenant, document) drop out cleanly.
func (b *filterBuilder) eq(field, value string) *filterBuilder {
	if value != "" {
		b.clauses = append(b.clauses, field+" eq "+odataQuote(value))
	}
	return b
}

// raw appends a caller-supplied OData expression verbatim, parenthesized
// so it cannot rebind the surrounding conjunction.
func (b *filterBuilder) raw(expr string) *filterBuilder {
	if expr != "" {
		b.clauses = append(b.clauses, "("+expr+")")
	}
	return b
}

// String renders the conjunction; empty when no clause was added.
func (b *filterBuilder) String() string {
	return strings.Join(b.clauses, " and ")
}
