// Package config loads citeloom's TOML configuration file and layers
// recognized environment variables on top of it, per spec §6.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// ChunkingConfig is the `[chunking]` section: the token-window policy C9
// falls back to when no hierarchical chunker is available.
type ChunkingConfig struct {
	MaxTokens     int `toml:"max_tokens"`
	OverlapTokens int `toml:"overlap_tokens"`
}

// QdrantConfig is the `[qdrant]` section.
type QdrantConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// PathsConfig is the `[paths]` section.
type PathsConfig struct {
	RawDocumentsDir string `toml:"raw_documents_dir"`
	AuditDir        string `toml:"audit_dir"`
	CheckpointDir   string `toml:"checkpoint_dir"`
	DownloadsDir    string `toml:"downloads_dir"`
}

// ConversionConfig is the `[conversion]` section: the portable timeout and
// windowing budgets of spec §5/§4.12 for document full-text conversion.
type ConversionConfig struct {
	DocumentTimeoutSeconds int `toml:"document_timeout_seconds"`
	PageTimeoutSeconds     int `toml:"page_timeout_seconds"`
	WindowThresholdPages   int `toml:"window_threshold_pages"`
	WindowSizePages        int `toml:"window_size_pages"`
}

// ProjectConfig is one `[project.<id>]` table.
type ProjectConfig struct {
	Collection      string `toml:"collection"`
	EmbeddingModel  string `toml:"embedding_model"`
	SparseModel     string `toml:"sparse_model"`
	HybridEnabled   bool   `toml:"hybrid_enabled"`
}

// ZoteroConfig gathers the recognized ZOTERO_* environment variables; there
// is no `[zotero]` file section, per spec §6 these are environment-only.
type ZoteroConfig struct {
	LibraryID   string
	LibraryType string
	APIKey      string
	Local       bool
}

// Config is the fully resolved configuration: file values with environment
// overrides applied.
type Config struct {
	Chunking   ChunkingConfig           `toml:"chunking"`
	Qdrant     QdrantConfig             `toml:"qdrant"`
	Paths      PathsConfig              `toml:"paths"`
	Conversion ConversionConfig         `toml:"conversion"`
	Project    map[string]ProjectConfig `toml:"project"`
	Zotero     ZoteroConfig             `toml:"-"`
}

// Load reads path as TOML and layers the recognized environment variables
// of spec §6 on top of it; system environment always wins over file values.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errs.Wrap(errs.KindConfigMissing, fmt.Sprintf("failed decoding config %s", path), err)
	}

	if v := envTrim("QDRANT_URL"); v != "" {
		cfg.Qdrant.URL = v
	}
	if v := envTrim("QDRANT_API_KEY"); v != "" {
		cfg.Qdrant.APIKey = v
	}

	cfg.Zotero = ZoteroConfig{
		LibraryID:   envTrim("ZOTERO_LIBRARY_ID"),
		LibraryType: firstNonEmpty(envTrim("ZOTERO_LIBRARY_TYPE"), "user"),
		APIKey:      envTrim("ZOTERO_API_KEY"),
		Local:       envBool("ZOTERO_LOCAL", false),
	}

	if cfg.Chunking.MaxTokens <= 0 {
		cfg.Chunking.MaxTokens = 512
	}
	if cfg.Chunking.OverlapTokens < 0 {
		cfg.Chunking.OverlapTokens = 0
	}
	if cfg.Qdrant.URL == "" {
		cfg.Qdrant.URL = "http://localhost:6334"
	}
	if cfg.Conversion.DocumentTimeoutSeconds <= 0 {
		cfg.Conversion.DocumentTimeoutSeconds = 120
	}
	if cfg.Conversion.PageTimeoutSeconds <= 0 {
		cfg.Conversion.PageTimeoutSeconds = 10
	}
	if cfg.Conversion.WindowThresholdPages <= 0 {
		cfg.Conversion.WindowThresholdPages = 1000
	}
	if cfg.Conversion.WindowSizePages <= 0 {
		cfg.Conversion.WindowSizePages = 20
	}

	return cfg, nil
}

// ConfigPath resolves the config file path from CITELOOM_CONFIG, falling
// back to "citeloom.toml" in the working directory.
func ConfigPath() string {
	if v := envTrim("CITELOOM_CONFIG"); v != "" {
		return v
	}
	return "citeloom.toml"
}

// OpenAIAPIKey returns the optional OPENAI_API_KEY environment variable.
func OpenAIAPIKey() string {
	return envTrim("OPENAI_API_KEY")
}

func envTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envBool(key string, fallback bool) bool {
	v := envTrim(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
