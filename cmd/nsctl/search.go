package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keystonehq/retrieval/internal/vectorstore"
)

var (
	searchEmbeddingFile string
	searchDocumentID    string
	searchFilter        string
	searchPage          int
	searchLimit         int
	searchMinScore      float64
	searchMetadata      bool
	searchRelationships bool
)

func init() {
	searchCmd.Flags().StringVar(&searchEmbeddingFile, "embedding-file", "", "JSON file holding the query embedding (required for dense providers)")
	searchCmd.Flags().StringVar(&searchDocumentID, "document", "", "restrict to one document id")
	searchCmd.Flags().StringVar(&searchFilter, "filter", "", "backend-native extra filter")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "result page (1-based)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "results per page")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "drop results scoring below this")
	searchCmd.Flags().BoolVar(&searchMetadata, "metadata", false, "include chunk metadata in results")
	searchCmd.Flags().BoolVar(&searchRelationships, "relationships", false, "include node relationships in results")
}

var searchCmd = &cobra.Command{
	Use:   "search <query-text>",
	Short: "Search a namespace's store",
	Long: `Search a namespace's store and print the result page as JSON.

Dense providers rank by embedding similarity and need --embedding-file;
the keyword store (--keyword) ranks by BM25 over the query text.

Examples:
  # Keyword search
  nsctl search --namespace ns1 --keyword "error budget"

  # Dense search with a precomputed embedding
  nsctl search --namespace ns1 --embedding-file query.json "error budget"

  # Scoped, filtered search against a BYO qdrant cluster
  nsctl search --namespace ns1 --provider QDRANT --index-host qdrant.internal:6334 \
    --document doc1 --min-score 0.7 "error budget"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := vectorstore.Query{Text: args[0]}
	if searchEmbeddingFile != "" {
		raw, err := os.ReadFile(searchEmbeddingFile)
		if err != nil {
			return fmt.Errorf("reading embedding file: %w", err)
		}
		if err := json.Unmarshal(raw, &query.Embedding); err != nil {
			return fmt.Errorf("embedding file must be a JSON float array: %w", err)
		}
	}

	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	page, err := store.Search(cmd.Context(), query, vectorstore.SearchOptions{
		DocumentID:           searchDocumentID,
		Filter:               searchFilter,
		Page:                 searchPage,
		Limit:                searchLimit,
		MinScore:             searchMinScore,
		IncludeMetadata:      searchMetadata,
		IncludeRelationships: searchRelationships,
	})
	if err != nil {
		return err
	}
	return printJSON(page)
}
