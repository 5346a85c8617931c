// Package fulltext resolves the plain-text body of a document, preferring
// Zotero's own cached extraction over a fresh conversion and supporting
// page-level mixed provenance between the two (C8).
package fulltext

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Source tags which backend ultimately produced the returned text.
type Source string

const (
	SourceCached    Source = "cached"
	SourceConverted Source = "converted"
	SourceMixed     Source = "mixed"
)

// Result is the outcome of a resolution, including page-level provenance so
// callers can attribute trust appropriately.
type Result struct {
	Text             string
	Source           Source
	PagesFromCache   []int
	PagesFromConvert []int
	CacheQualityScore float64
}

// CacheReader is satisfied by zotero.LocalSource's GetCachedFulltext method.
type CacheReader interface {
	GetCachedFulltext(ctx context.Context, attachmentKey string) (string, bool, error)
}

// Converter produces plain text (and, where it can, a page map) from a file
// on disk. No converter implementation ships in this package; callers wire a
// concrete one (e.g. a PDF-to-text extractor) at the ingestion layer.
type Converter interface {
	Convert(ctx context.Context, filePath string) (ConversionResult, error)
}

// ConversionResult is a converter's output: full text plus, when available,
// a 1-indexed page->text map.
type ConversionResult struct {
	Text  string
	Pages map[int]string
}

var sentenceTerminator = regexp.MustCompile(`[.!?]\s+`)

// Resolver implements the prefer-cache-then-convert strategy of spec §4.8.
type Resolver struct {
	cache     CacheReader
	converter Converter
	log       zerolog.Logger
}

// NewResolver builds a Resolver. converter may be nil if cached text is
// always expected to be authoritative; Resolve then returns an error on a
// cache miss or quality failure instead of attempting conversion.
func NewResolver(cache CacheReader, converter Converter, log zerolog.Logger) *Resolver {
	return &Resolver{cache: cache, converter: converter, log: log}
}

// Resolve fetches cached full-text first (when preferCache), validates its
// quality, and merges in converted pages for any gaps. When no cached text
// is usable it falls back entirely to conversion.
func (r *Resolver) Resolve(ctx context.Context, attachmentKey, filePath string, preferCache bool, minLength int) (Result, error) {
	if preferCache && r.cache != nil {
		cached, ok, err := r.cache.GetCachedFulltext(ctx, attachmentKey)
		if err != nil {
			r.log.Debug().Err(err).Str("attachment_key", attachmentKey).Msg("cached fulltext lookup failed, falling back to conversion")
		}
		if ok && strings.TrimSpace(cached) != "" {
			valid, score := validateQuality(cached, minLength)
			if valid {
				cachePages := parseCachePages(cached)

				if r.converter != nil {
					conv, err := r.converter.Convert(ctx, filePath)
					if err == nil {
						merged, fromCache, fromConvert := mergeProvenance(cachePages, conv.Pages)
						if len(fromConvert) > 0 {
							r.log.Info().Str("attachment_key", attachmentKey).
								Int("pages_cached", len(fromCache)).Int("pages_converted", len(fromConvert)).
								Msg("using mixed-provenance fulltext")
							return Result{
								Text: merged, Source: SourceMixed,
								PagesFromCache: fromCache, PagesFromConvert: fromConvert,
								CacheQualityScore: score,
							}, nil
						}
					} else {
						r.log.Debug().Err(err).Str("attachment_key", attachmentKey).Msg("conversion failed during mixed-provenance attempt, using cached text only")
					}
				}

				r.log.Info().Str("attachment_key", attachmentKey).Float64("quality_score", score).Msg("using cached fulltext")
				return Result{
					Text: cached, Source: SourceCached,
					PagesFromCache:    pageKeys(cachePages),
					CacheQualityScore: score,
				}, nil
			}
			r.log.Info().Str("attachment_key", attachmentKey).Float64("quality_score", score).
				Msg("cached fulltext quality too low, falling back to conversion")
		}
	}

	if r.converter == nil {
		return Result{}, fmt.Errorf("fulltext: no converter configured and cached text unavailable for %s", attachmentKey)
	}

	conv, err := r.converter.Convert(ctx, filePath)
	if err != nil {
		return Result{}, fmt.Errorf("fulltext: conversion failed for %s: %w", filePath, err)
	}
	if strings.TrimSpace(conv.Text) == "" {
		return Result{}, fmt.Errorf("fulltext: conversion produced no text for %s", filePath)
	}

	return Result{
		Text:             conv.Text,
		Source:           SourceConverted,
		PagesFromConvert: pageKeys(conv.Pages),
	}, nil
}

// validateQuality scores cached text by length and sentence-structure
// density (spec §4.8, exact thresholds from the original resolver).
func validateQuality(text string, minLength int) (bool, float64) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, 0
	}
	if minLength <= 0 {
		minLength = 100
	}

	if len(trimmed) < minLength {
		return false, float64(len(trimmed)) / float64(minLength)
	}

	words := strings.Fields(trimmed)
	if len(words) < 10 {
		return false, float64(len(words)) / 10.0
	}

	sentenceCount := len(sentenceTerminator.FindAllString(trimmed, -1))
	if sentenceCount == 0 && len(trimmed) > 500 {
		return false, 0.3
	}

	lengthScore := minFloat(1.0, float64(len(trimmed))/float64(minLength*10))
	structureScore := minFloat(1.0, float64(sentenceCount)/10.0)
	return true, (lengthScore + structureScore) / 2.0
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// parseCachePages treats the whole cached string as a single page 1, since
// the cache table carries no explicit page boundaries (spec §4.8, Open
// Question resolved: cache is always single-page).
func parseCachePages(text string) map[int]string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return map[int]string{}
	}
	return map[int]string{1: trimmed}
}

func pageKeys(pages map[int]string) []int {
	keys := make([]int, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// mergeProvenance unions the page ranges of both sources, preferring cached
// text for any page both sources cover.
func mergeProvenance(cachePages, convertPages map[int]string) (string, []int, []int) {
	pageSet := make(map[int]bool, len(cachePages)+len(convertPages))
	for p := range cachePages {
		pageSet[p] = true
	}
	for p := range convertPages {
		pageSet[p] = true
	}
	allPages := make([]int, 0, len(pageSet))
	for p := range pageSet {
		allPages = append(allPages, p)
	}
	sort.Ints(allPages)

	var parts []string
	var fromCache, fromConvert []int
	for _, p := range allPages {
		if text := strings.TrimSpace(cachePages[p]); text != "" {
			parts = append(parts, text)
			fromCache = append(fromCache, p)
			continue
		}
		if text := strings.TrimSpace(convertPages[p]); text != "" {
			parts = append(parts, text)
			fromConvert = append(fromConvert, p)
		}
	}
	return strings.Join(parts, "\n\n"), fromCache, fromConvert
}
