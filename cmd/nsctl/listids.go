package main

import (
	"github.com/spf13/cobra"

	"github.com/keystonehq/retrieval/internal/vectorstore"
)

var (
	listDocumentID string
	listPage       int
	listLimit      int
)

func init() {
	listIDsCmd.Flags().StringVar(&listDocumentID, "document", "", "restrict to one document id")
	listIDsCmd.Flags().IntVar(&listPage, "page", 1, "result page (1-based)")
	listIDsCmd.Flags().IntVar(&listLimit, "limit", 1000, "ids per page")
}

var listIDsCmd = &cobra.Command{
	Use:   "list-ids",
	Short: "List chunk ids in a namespace's store",
	Long: `List the chunk ids stored for a namespace, optionally narrowed to
one document, and print the id page as JSON.

Examples:
  # All ids in the namespace
  nsctl list-ids --namespace ns1

  # One document's chunks
  nsctl list-ids --namespace ns1 --document doc1`,
	RunE: runListIDs,
}

func runListIDs(cmd *cobra.Command, args []string) error {
	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	page, err := store.ListIDs(cmd.Context(), vectorstore.ListOptions{
		DocumentID: listDocumentID,
		Page:       listPage,
		Limit:      listLimit,
	})
	if err != nil {
		return err
	}
	return printJSON(page)
}
