// Package main implements the nsctl CLI for manual operations against
// namespace retrieval stores.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keystonehq/retrieval/internal/config"
	"github.com/keystonehq/retrieval/internal/keywordstore"
	"github.com/keystonehq/retrieval/internal/logging"
	"github.com/keystonehq/retrieval/internal/vectorstore"
)

var (
	configPath  string
	namespaceID string
	tenantID    string

	// Provider override; when unset the namespace defaults to the
	// managed tier.
	providerTag string
	apiKey      string
	indexHost   string
	region      string

	// useKeyword routes the operation to the lexical keyword store
	// instead of the dense vector store.
	useKeyword bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nsctl",
	Short: "CLI for namespace retrieval store operations",
	Long: `nsctl runs retrieval operations directly against a namespace's
configured store: dense vector search, id listing, and deletion.

Platform credentials come from the config file and environment; BYO
provider credentials can be passed per invocation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&namespaceID, "namespace", "", "namespace id (required)")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant id")
	rootCmd.PersistentFlags().StringVar(&providerTag, "provider", "", "vector store provider tag (defaults to the managed tier)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "BYO provider api key")
	rootCmd.PersistentFlags().StringVar(&indexHost, "index-host", "", "BYO provider index host")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "BYO provider region")
	rootCmd.PersistentFlags().BoolVar(&useKeyword, "keyword", false, "target the lexical keyword store")

	_ = rootCmd.MarkPersistentFlagRequired("namespace")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(listIDsCmd)
	rootCmd.AddCommand(deleteCmd)
}

// loadConfig loads configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadWithFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, logger, nil
}

// resolveStore resolves the target store from the persistent flags.
func resolveStore(cmd *cobra.Command) (vectorstore.Store, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if useKeyword {
		return keywordstore.NewStore(keywordstore.Config{
			Endpoint:    cfg.AzureSearch.Endpoint,
			Index:       cfg.AzureSearch.Index,
			APIKey:      cfg.AzureSearch.APIKey,
			NamespaceID: namespaceID,
			TenantID:    tenantID,
		}, logger)
	}

	ns := vectorstore.Namespace{ID: namespaceID}
	if providerTag != "" {
		ns.VectorStore = &vectorstore.VectorStoreConfig{
			Provider:  vectorstore.Provider(providerTag),
			APIKey:    apiKey,
			IndexHost: indexHost,
			Region:    region,
		}
	}

	factory := vectorstore.NewFactory(cfg, logger)
	return factory.ForNamespace(cmd.Context(), ns, tenantID)
}

// printJSON renders a result to stdout.
func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}
