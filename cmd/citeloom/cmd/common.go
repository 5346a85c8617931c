package cmd

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sims2k/citeloom-sub000/internal/config"
	"github.com/Sims2k/citeloom-sub000/internal/embedder"
	"github.com/Sims2k/citeloom-sub000/internal/errs"
	"github.com/Sims2k/citeloom-sub000/internal/fulltext"
	"github.com/Sims2k/citeloom-sub000/internal/obslog"
	"github.com/Sims2k/citeloom-sub000/internal/obsmetrics"
	"github.com/Sims2k/citeloom-sub000/internal/retrieve"
	"github.com/Sims2k/citeloom-sub000/internal/vectorindex"
	"github.com/Sims2k/citeloom-sub000/internal/zotero"
)

// configPath is the --config persistent flag shared by every subcommand.
var configPath string

func newLogger() zerolog.Logger {
	return obslog.Init(os.Getenv("CITELOOM_LOG_LEVEL"))
}

// newMetrics returns the process-wide metrics recorder every command wires
// into its Processor/Service.
func newMetrics() obsmetrics.Recorder {
	return obsmetrics.NewOtelRecorder()
}

// newCorrelationID mints a run identifier; every command prints it as its
// last line of stdout output, per spec §6.
func newCorrelationID() string {
	return uuid.NewString()
}

// loadConfig loads citeloom.toml (resolved from --config or CITELOOM_CONFIG)
// with .env discovery and environment overrides applied.
func loadConfig() (config.Config, error) {
	config.LoadDotenv()
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	return config.Load(path)
}

// openGateway connects to Qdrant using the resolved configuration.
func openGateway(cfg config.Config, log zerolog.Logger) (*vectorindex.Gateway, error) {
	dsn := cfg.Qdrant.URL
	if cfg.Qdrant.APIKey != "" {
		dsn += "?api_key=" + cfg.Qdrant.APIKey
	}
	return vectorindex.Open(dsn, log)
}

// newEmbedderPool mirrors citeloom-mcp's factory: a configured endpoint uses
// the HTTP client embedder, an empty one falls back to a deterministic
// hashing embedder so offline runs remain exercisable.
func newEmbedderPool() *embedder.Pool {
	return embedder.NewPool(func(ec embedder.Config) embedder.Embedder {
		if ec.Endpoint == "" {
			dim := ec.Dimension
			if dim <= 0 {
				dim = 64
			}
			return embedder.NewDeterministic(ec.Model, dim, true)
		}
		return embedder.NewClient(ec)
	})
}

// buildRouter wires the Zotero source router (C4) from resolved
// configuration: a web client is always available; a local SQLite reader is
// added when ZOTERO_LOCAL is set and a database can be discovered.
func buildRouter(cfg config.Config, log zerolog.Logger) (*zotero.Router, error) {
	web := zotero.NewWebClient(cfg.Zotero.LibraryID, cfg.Zotero.APIKey, cfg.Zotero.LibraryType, log)

	var local zotero.LocalSource
	strategy := zotero.StrategyWebOnly
	if cfg.Zotero.Local {
		home, err := os.UserHomeDir()
		if err == nil {
			if dbPath, storageDir, discErr := zotero.DiscoverLocalDB(home); discErr == nil {
				db, openErr := zotero.OpenLocalDB(dbPath, storageDir)
				if openErr != nil {
					log.Warn().Err(openErr).Msg("zotero local database discovered but failed to open, falling back to web-only")
				} else {
					local = db
					strategy = zotero.StrategyAuto
				}
			} else {
				log.Warn().Err(discErr).Msg("ZOTERO_LOCAL set but no local database found, falling back to web-only")
			}
		}
	}

	return zotero.NewRouter(local, web, strategy, log)
}

// bindingFor builds a retrieve.ProjectBinding from a resolved project
// config entry.
func bindingFor(id string, proj config.ProjectConfig) retrieve.ProjectBinding {
	return retrieve.ProjectBinding{
		ID:            id,
		Collection:    proj.Collection,
		Embedding:     embedder.Config{Model: proj.EmbeddingModel, APIKey: config.OpenAIAPIKey()},
		SparseModelID: proj.SparseModel,
		HybridEnabled: proj.HybridEnabled,
	}
}

// staticProjectResolver resolves exactly one project, for CLI invocations
// that always operate against a single --project flag.
type staticProjectResolver struct {
	id      string
	binding retrieve.ProjectBinding
}

func (r staticProjectResolver) Resolve(_ context.Context, projectID string) (retrieve.ProjectBinding, bool, error) {
	if projectID != r.id {
		return retrieve.ProjectBinding{}, false, nil
	}
	return r.binding, true, nil
}

// plainTextConverter is the document-conversion stand-in satisfying
// fulltext.Converter. Spec §1 scopes the choice of a real PDF-to-text
// engine out of this repository ("we specify only what the converter must
// return"); this converter treats the file's raw bytes as a single-page
// plain-text document, which keeps the rest of the pipeline (chunking,
// embedding, upsert) exercisable end to end without a third-party PDF
// extraction library.
type plainTextConverter struct{}

func (plainTextConverter) Convert(_ context.Context, filePath string) (fulltext.ConversionResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fulltext.ConversionResult{}, errs.Wrap(errs.KindInternal, "failed reading source file", err)
	}
	text := string(data)
	return fulltext.ConversionResult{
		Text:  text,
		Pages: map[int]string{1: text},
	}, nil
}

// newConverter wraps the configured base converter with the portable
// per-document watchdog and the large-document windowing strategy of spec
// §5/§4.12, rather than hand-rolling these concerns again for every
// Converter implementation a future PDF-to-text engine plugs in.
func newConverter(cfg config.Config) fulltext.Converter {
	windowed := fulltext.NewWindowedConverter(
		plainTextConverter{},
		time.Duration(cfg.Conversion.PageTimeoutSeconds)*time.Second,
		cfg.Conversion.WindowThresholdPages,
		cfg.Conversion.WindowSizePages,
	)
	return fulltext.NewWatchdogConverter(
		windowed,
		time.Duration(cfg.Conversion.DocumentTimeoutSeconds)*time.Second,
	)
}
