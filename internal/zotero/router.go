package zotero

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// Strategy selects how the router dispatches between the local and web
// backends (spec §4.4).
type Strategy string

const (
	StrategyLocalFirst Strategy = "local-first"
	StrategyWebFirst    Strategy = "web-first"
	StrategyAuto        Strategy = "auto"
	StrategyLocalOnly   Strategy = "local-only"
	StrategyWebOnly     Strategy = "web-only"
)

// Router dispatches Zotero operations to a local SQLite snapshot and/or a
// remote Web API client according to Strategy, applying per-operation
// fallback rather than a single batch-wide decision.
type Router struct {
	local    LocalSource // nil if no local snapshot is configured
	web      WebSource
	strategy Strategy
	log      zerolog.Logger
}

// NewRouter constructs a Router. web must be non-nil; local may be nil when
// no Zotero desktop install is available.
func NewRouter(local LocalSource, web WebSource, strategy Strategy, log zerolog.Logger) (*Router, error) {
	if web == nil {
		return nil, errors.New("zotero: web adapter is required")
	}
	return &Router{local: local, web: web, strategy: strategy, log: log}, nil
}

// IsLocalAvailable reports whether a local adapter was configured.
func (r *Router) IsLocalAvailable() bool {
	return r.local != nil
}

// ListCollections applies the strategy table of spec §4.4.
func (r *Router) ListCollections(ctx context.Context) ([]Collection, error) {
	switch r.strategy {
	case StrategyLocalOnly:
		if !r.IsLocalAvailable() {
			return nil, errs.New(errs.KindZoteroDatabaseNotFound, "local-only strategy requires a local adapter")
		}
		return r.local.ListCollections(ctx)

	case StrategyWebOnly:
		return r.web.ListCollections(ctx)

	case StrategyLocalFirst:
		if r.IsLocalAvailable() {
			cols, err := r.local.ListCollections(ctx)
			if err == nil {
				return cols, nil
			}
			r.log.Warn().Err(err).Msg("local adapter failed listing collections, falling back to web")
		}
		return r.web.ListCollections(ctx)

	case StrategyWebFirst:
		cols, err := r.web.ListCollections(ctx)
		if err == nil {
			return cols, nil
		}
		r.log.Warn().Err(err).Msg("web adapter failed listing collections, falling back to local")
		if r.IsLocalAvailable() {
			return r.local.ListCollections(ctx)
		}
		return nil, err

	default: // auto
		if r.IsLocalAvailable() {
			cols, err := r.local.ListCollections(ctx)
			if err == nil {
				return cols, nil
			}
			r.log.Warn().Err(err).Msg("local adapter failed listing collections (auto), falling back to web")
		}
		return r.web.ListCollections(ctx)
	}
}

// FindCollectionByName mirrors ListCollections' fallback shape for a
// single-collection lookup.
func (r *Router) FindCollectionByName(ctx context.Context, name string) (Collection, bool, error) {
	switch r.strategy {
	case StrategyLocalOnly:
		if !r.IsLocalAvailable() {
			return Collection{}, false, errs.New(errs.KindZoteroDatabaseNotFound, "local-only strategy requires a local adapter")
		}
		return r.local.FindCollectionByName(ctx, name)
	case StrategyWebOnly:
		return r.web.FindCollectionByName(ctx, name)
	case StrategyLocalFirst:
		if r.IsLocalAvailable() {
			c, ok, err := r.local.FindCollectionByName(ctx, name)
			if err == nil {
				return c, ok, nil
			}
			r.log.Warn().Err(err).Msg("local adapter failed finding collection, falling back to web")
		}
		return r.web.FindCollectionByName(ctx, name)
	case StrategyWebFirst:
		c, ok, err := r.web.FindCollectionByName(ctx, name)
		if err == nil {
			return c, ok, nil
		}
		r.log.Warn().Err(err).Msg("web adapter failed finding collection, falling back to local")
		if r.IsLocalAvailable() {
			return r.local.FindCollectionByName(ctx, name)
		}
		return Collection{}, false, err
	default:
		if r.IsLocalAvailable() {
			c, ok, err := r.local.FindCollectionByName(ctx, name)
			if err == nil {
				return c, ok, nil
			}
			r.log.Warn().Err(err).Msg("local adapter failed finding collection (auto), falling back to web")
		}
		return r.web.FindCollectionByName(ctx, name)
	}
}

// GetCollectionItems mirrors ListCollections' fallback shape.
func (r *Router) GetCollectionItems(ctx context.Context, collectionKey string, recursive bool) ([]Item, error) {
	switch r.strategy {
	case StrategyLocalOnly:
		if !r.IsLocalAvailable() {
			return nil, errs.New(errs.KindZoteroDatabaseNotFound, "local-only strategy requires a local adapter")
		}
		return r.local.GetCollectionItems(ctx, collectionKey, recursive)
	case StrategyWebOnly:
		return r.web.GetCollectionItems(ctx, collectionKey, recursive)
	case StrategyLocalFirst:
		if r.IsLocalAvailable() {
			items, err := r.local.GetCollectionItems(ctx, collectionKey, recursive)
			if err == nil {
				return items, nil
			}
			r.log.Warn().Err(err).Msg("local adapter failed listing items, falling back to web")
		}
		return r.web.GetCollectionItems(ctx, collectionKey, recursive)
	case StrategyWebFirst:
		items, err := r.web.GetCollectionItems(ctx, collectionKey, recursive)
		if err == nil {
			return items, nil
		}
		r.log.Warn().Err(err).Msg("web adapter failed listing items, falling back to local")
		if r.IsLocalAvailable() {
			return r.local.GetCollectionItems(ctx, collectionKey, recursive)
		}
		return nil, err
	default:
		if r.IsLocalAvailable() {
			items, err := r.local.GetCollectionItems(ctx, collectionKey, recursive)
			if err == nil {
				return items, nil
			}
			r.log.Warn().Err(err).Msg("local adapter failed listing items (auto), falling back to web")
		}
		return r.web.GetCollectionItems(ctx, collectionKey, recursive)
	}
}

// DownloadAttachment applies per-file fallback (spec §4.4, invariant 7):
// within local-first, each attachment independently checks
// CanResolveLocally before committing to a source, so two attachments in the
// same collection may resolve from different backends.
func (r *Router) DownloadAttachment(ctx context.Context, itemKey, attachmentKey, outputPath string) (string, DownloadSource, error) {
	switch r.strategy {
	case StrategyLocalOnly:
		if !r.IsLocalAvailable() {
			return "", "", errs.New(errs.KindZoteroDatabaseNotFound, "local-only strategy requires a local adapter")
		}
		path, err := r.local.DownloadAttachment(ctx, itemKey, attachmentKey, outputPath)
		if err != nil {
			return "", "", errs.Wrap(errs.KindZoteroPathResolution, "local-only download failed, no fallback available", err)
		}
		return path, SourceLocal, nil

	case StrategyWebOnly:
		path, err := r.web.DownloadAttachment(ctx, itemKey, attachmentKey, outputPath)
		return path, SourceWeb, err

	case StrategyLocalFirst:
		if r.IsLocalAvailable() && r.local.CanResolveLocally(ctx, attachmentKey) {
			path, err := r.local.DownloadAttachment(ctx, itemKey, attachmentKey, outputPath)
			if err == nil {
				return path, SourceLocal, nil
			}
			r.log.Warn().Err(err).Str("attachment_key", attachmentKey).Msg("local download failed, falling back to web")
		}
		path, err := r.web.DownloadAttachment(ctx, itemKey, attachmentKey, outputPath)
		return path, SourceWeb, err

	case StrategyWebFirst:
		path, err := r.web.DownloadAttachment(ctx, itemKey, attachmentKey, outputPath)
		if err == nil {
			return path, SourceWeb, nil
		}
		var rateLimited *errs.Error
		isRateLimit := errors.As(err, &rateLimited) && rateLimited.Kind == errs.KindZoteroRateLimit
		r.log.Warn().Err(err).Bool("rate_limited", isRateLimit).Msg("web download failed, falling back to local")
		if r.IsLocalAvailable() && r.local.CanResolveLocally(ctx, attachmentKey) {
			path, err := r.local.DownloadAttachment(ctx, itemKey, attachmentKey, outputPath)
			return path, SourceLocal, err
		}
		return "", "", err

	default: // auto
		if r.IsLocalAvailable() && r.local.CanResolveLocally(ctx, attachmentKey) {
			path, err := r.local.DownloadAttachment(ctx, itemKey, attachmentKey, outputPath)
			if err == nil {
				return path, SourceLocal, nil
			}
			r.log.Warn().Err(err).Str("attachment_key", attachmentKey).Msg("local download failed (auto), falling back to web")
		}
		path, err := r.web.DownloadAttachment(ctx, itemKey, attachmentKey, outputPath)
		return path, SourceWeb, err
	}
}

// GetItemAttachments and GetItemMetadata reuse the auto/local-first/web-first
// fallback shape via the generic Source interface both backends share.
func (r *Router) GetItemAttachments(ctx context.Context, itemKey string) ([]ItemAttachment, error) {
	return dispatch(r, func(s Source) ([]ItemAttachment, error) { return s.GetItemAttachments(ctx, itemKey) })
}

func (r *Router) GetItemMetadata(ctx context.Context, itemKey string) (Item, error) {
	return dispatch(r, func(s Source) (Item, error) { return s.GetItemMetadata(ctx, itemKey) })
}

func (r *Router) ListTags(ctx context.Context) ([]string, error) {
	return dispatch(r, func(s Source) ([]string, error) { return s.ListTags(ctx) })
}

func (r *Router) GetRecentItems(ctx context.Context, limit int) ([]Item, error) {
	return dispatch(r, func(s Source) ([]Item, error) { return s.GetRecentItems(ctx, limit) })
}

// dispatch centralizes the strategy branch for operations whose fallback
// shape does not depend on per-file resolvability (everything except
// DownloadAttachment).
func dispatch[T any](r *Router, call func(Source) (T, error)) (T, error) {
	var zero T
	switch r.strategy {
	case StrategyLocalOnly:
		if !r.IsLocalAvailable() {
			return zero, errs.New(errs.KindZoteroDatabaseNotFound, "local-only strategy requires a local adapter")
		}
		return call(r.local)
	case StrategyWebOnly:
		return call(r.web)
	case StrategyLocalFirst:
		if r.IsLocalAvailable() {
			v, err := call(r.local)
			if err == nil {
				return v, nil
			}
			r.log.Warn().Err(err).Msg("local adapter failed, falling back to web")
		}
		return call(r.web)
	case StrategyWebFirst:
		v, err := call(r.web)
		if err == nil {
			return v, nil
		}
		r.log.Warn().Err(err).Msg("web adapter failed, falling back to local")
		if r.IsLocalAvailable() {
			return call(r.local)
		}
		return zero, err
	default:
		if r.IsLocalAvailable() {
			v, err := call(r.local)
			if err == nil {
				return v, nil
			}
			r.log.Warn().Err(err).Msg("local adapter failed (auto), falling back to web")
		}
		return call(r.web)
	}
}
