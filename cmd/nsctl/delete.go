package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete chunks from a namespace's store",
	Long: `Delete chunks by canonical id. Absent ids are ignored by every
backend, so re-running a deletion is safe.

Examples:
  # Delete two chunks
  nsctl delete --namespace ns1 doc1#0 doc1#1

  # Delete from the keyword store
  nsctl delete --namespace ns1 --keyword doc1#0`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteByIDs(cmd.Context(), args); err != nil {
		return err
	}
	fmt.Printf("deleted %d id(s)\n", len(args))
	return nil
}
