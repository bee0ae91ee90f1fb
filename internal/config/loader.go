package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envKeys maps environment variable names to config keys.
//
// The mapping is explicit rather than derived: several sections contain
// compound underscore fields (default_api_key), so a generic transformer
// cannot split the variable name unambiguously.
var envKeys = map[string]string{
	"LOG_LEVEL":  "log.level",
	"LOG_FORMAT": "log.format",

	"PINECONE_DEFAULT_API_KEY":   "pinecone.default_api_key",
	"PINECONE_DEFAULT_HOST":      "pinecone.default_host",
	"PINECONE_SECONDARY_API_KEY": "pinecone.secondary_api_key",
	"PINECONE_SECONDARY_HOST":    "pinecone.secondary_host",

	"TURBOPUFFER_DEFAULT_API_KEY": "turbopuffer.default_api_key",
	"TURBOPUFFER_BASE_URL":        "turbopuffer.base_url",

	"AZURE_SEARCH_ENDPOINT": "azure_search.endpoint",
	"AZURE_SEARCH_INDEX":    "azure_search.index",
	"AZURE_SEARCH_API_KEY":  "azure_search.api_key",

	"LOCAL_STORE_PATH": "local.path",
}

// Load loads configuration from the environment only.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PINECONE_DEFAULT_API_KEY, AZURE_SEARCH_ENDPOINT, ...)
//  2. YAML config file (optional)
//  3. Zero values
//
// An empty configPath skips the file layer entirely.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	// Environment overrides. Variables outside envKeys are ignored.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Log.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
