// Package config provides configuration loading for the retrieval engine.
package config

import (
	"fmt"
	"strings"

	"github.com/keystonehq/retrieval/internal/logging"
)

// Config is the root configuration for the retrieval engine.
//
// The engine holds no durable state of its own; configuration is limited
// to platform-owned backend credentials and logging. Per-namespace
// bring-your-own-credential settings arrive with the namespace record,
// not here.
type Config struct {
	Log         logging.Config    `koanf:"log"`
	Pinecone    PineconeConfig    `koanf:"pinecone"`
	Turbopuffer TurbopufferConfig `koanf:"turbopuffer"`
	AzureSearch AzureSearchConfig `koanf:"azure_search"`
	Local       LocalConfig       `koanf:"local"`
}

// PineconeConfig holds the platform-owned Pinecone credential tiers.
//
// Default is the legacy managed tier; Secondary backs the current managed
// tier. Both map to the same driver, they differ only in which credential
// pair is injected. Secondary is optional at load time and validated when
// the current managed tier is actually resolved.
type PineconeConfig struct {
	DefaultAPIKey string `koanf:"default_api_key"`
	DefaultHost   string `koanf:"default_host"`

	SecondaryAPIKey string `koanf:"secondary_api_key"`
	SecondaryHost   string `koanf:"secondary_host"`
}

// TurbopufferConfig holds the platform-owned Turbopuffer credentials.
type TurbopufferConfig struct {
	DefaultAPIKey string `koanf:"default_api_key"`

	// BaseURL overrides the API endpoint. Default is derived from the
	// region at driver construction time.
	BaseURL string `koanf:"base_url"`
}

// AzureSearchConfig holds the keyword (lexical) search index credentials.
// All three fields are required for keyword search; they are validated by
// the keyword store constructor, not at load time, so deployments without
// lexical search stay valid.
type AzureSearchConfig struct {
	Endpoint string `koanf:"endpoint"`
	Index    string `koanf:"index"`
	APIKey   string `koanf:"api_key"`
}

// LocalConfig configures the embedded development store.
type LocalConfig struct {
	// Path is the persistence directory. Empty means in-memory only.
	Path string `koanf:"path"`
}

// Validate validates settings that must be coherent at load time.
//
// Credential completeness for a given provider tier is checked when that
// tier is resolved (fail fast, but only for what is actually used).
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Pinecone.DefaultHost != "" && !isURL(c.Pinecone.DefaultHost) {
		return fmt.Errorf("pinecone.default_host must be a URL, got %q", c.Pinecone.DefaultHost)
	}
	if c.Pinecone.SecondaryHost != "" && !isURL(c.Pinecone.SecondaryHost) {
		return fmt.Errorf("pinecone.secondary_host must be a URL, got %q", c.Pinecone.SecondaryHost)
	}
	if c.AzureSearch.Endpoint != "" && !isURL(c.AzureSearch.Endpoint) {
		return fmt.Errorf("azure_search.endpoint must be a URL, got %q", c.AzureSearch.Endpoint)
	}
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
