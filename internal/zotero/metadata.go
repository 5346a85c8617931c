package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sims2k/citeloom-sub000/internal/citation"
)

// titleFuzzyThreshold is the minimum Jaccard word-overlap score accepted as a
// title match (spec §4.7).
const titleFuzzyThreshold = 0.8

var punctuationPattern = regexp.MustCompile(`[^\w\s]`)
var whitespacePattern = regexp.MustCompile(`\s+`)

var supportedOCRLanguages = map[string]bool{
	"en": true, "de": true, "fr": true, "es": true, "it": true,
	"pt": true, "nl": true, "ru": true, "zh": true, "ja": true,
}

// MetadataResolver resolves bibliographic CitationMeta for a document via
// DOI-first matching with a normalized-title fallback, never blocking
// ingestion when no match is found (spec §4.7).
type MetadataResolver struct {
	source     Source
	httpClient *http.Client
	log        zerolog.Logger
}

// NewMetadataResolver builds a resolver over any Source (local or web).
func NewMetadataResolver(source Source, log zerolog.Logger) *MetadataResolver {
	return &MetadataResolver{
		source:     source,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Resolve attempts DOI matching first, then title-similarity matching, over
// every item the configured Source can list. Returns (meta, false, nil) when
// no match is found; the caller logs a non-blocking MetadataMissing warning.
func (r *MetadataResolver) Resolve(ctx context.Context, docID string, sourceHint string) (citation.Metadata, bool, error) {
	items, err := r.allItems(ctx)
	if err != nil {
		r.log.Warn().Err(err).Str("doc_id", docID).Msg("zotero API error during metadata resolution")
		return citation.Metadata{}, false, nil
	}

	if doi := extractDOIHint(sourceHint); doi != "" {
		normalizedHint := normalizeDOI(doi)
		for _, item := range items {
			itemDOI := doiFromExtra(item.Extra)
			if itemDOI == "" {
				continue
			}
			if normalizeDOI(itemDOI) == normalizedHint {
				r.log.Info().Str("doc_id", docID).Str("doi", itemDOI).Msg("metadata matched by DOI")
				return r.extractMetadata(ctx, item, docID), true, nil
			}
		}
	}

	if sourceHint != "" {
		normalizedHint := normalizeTitle(sourceHint)
		var best Item
		bestScore := 0.0
		found := false
		for _, item := range items {
			if item.Title == "" {
				continue
			}
			score := jaccardScore(normalizedHint, normalizeTitle(item.Title))
			if score > bestScore && score >= titleFuzzyThreshold {
				bestScore = score
				best = item
				found = true
			}
		}
		if found {
			r.log.Info().Str("doc_id", docID).Float64("score", bestScore).Msg("metadata matched by title")
			return r.extractMetadata(ctx, best, docID), true, nil
		}
	}

	r.log.Warn().Str("doc_id", docID).Str("source_hint", sourceHint).
		Msg("no matching zotero entry found, proceeding without citation metadata")
	return citation.Metadata{}, false, nil
}

func (r *MetadataResolver) allItems(ctx context.Context) ([]Item, error) {
	cols, err := r.source.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	var out []Item
	seen := make(map[string]bool)
	for _, c := range cols {
		items, err := r.source.GetCollectionItems(ctx, c.Key, false)
		if err != nil {
			continue
		}
		for _, it := range items {
			if seen[it.Key] {
				continue
			}
			seen[it.Key] = true
			out = append(out, it)
		}
	}
	return out, nil
}

func extractDOIHint(sourceHint string) string {
	lower := strings.ToLower(sourceHint)
	switch {
	case strings.Contains(lower, "doi:"):
		parts := strings.SplitN(lower, "doi:", 2)
		return strings.TrimSpace(parts[len(parts)-1])
	case strings.HasPrefix(lower, "https://doi.org/"), strings.HasPrefix(lower, "http://doi.org/"):
		s := strings.ReplaceAll(lower, "https://doi.org/", "")
		s = strings.ReplaceAll(s, "http://doi.org/", "")
		return strings.TrimSpace(s)
	case strings.HasPrefix(sourceHint, "10."):
		return strings.TrimSpace(sourceHint)
	}
	return ""
}

func normalizeDOI(doi string) string {
	normalized := strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:", "dx.doi.org/"} {
		normalized = strings.TrimPrefix(normalized, prefix)
	}
	return strings.TrimSpace(normalized)
}

func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	normalized = punctuationPattern.ReplaceAllString(normalized, "")
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

func jaccardScore(s1, s2 string) float64 {
	words1 := toWordSet(s1)
	words2 := toWordSet(s2)
	if len(words1) == 0 || len(words2) == 0 {
		return 0
	}
	intersection := 0
	for w := range words1 {
		if words2[w] {
			intersection++
		}
	}
	union := len(words1) + len(words2) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toWordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// doiFromExtra reads "DOI: ..." style hints out of an item's Extra text,
// mirroring how the original resolver reads item['data']['DOI'] off a full
// JSON item; here only the Extra field carries it through our Item struct.
func doiFromExtra(extra string) string {
	for _, line := range strings.Split(extra, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(line), "DOI:") {
			return strings.TrimSpace(line[4:])
		}
	}
	return ""
}

func (r *MetadataResolver) extractMetadata(ctx context.Context, item Item, docID string) citation.Metadata {
	citekey := r.citekeyFromBetterBibTeX(item.Key, 23119)
	if citekey == "" {
		citekey = r.citekeyFromBetterBibTeX(item.Key, 24119)
	}
	if citekey == "" {
		citekey = citekeyFromExtra(item.Extra)
	}
	if citekey == "" {
		citekey = fmt.Sprintf("unknown_%s", docID)
	}

	return citation.Metadata{
		Citekey:  citekey,
		Title:    item.Title,
		Authors:  []string{"Unknown Author"},
		DOI:      doiFromExtra(item.Extra),
		Tags:     item.Tags,
		Language: mapLanguageToOCRCode(languageFromExtra(item.Extra)),
	}
}

// citekeyFromBetterBibTeX queries the locally-running Better BibTeX
// JSON-RPC endpoint. Absence of the endpoint (BetterBibTeX not installed, or
// Zotero not running) is expected and silently yields "".
func (r *MetadataResolver) citekeyFromBetterBibTeX(itemKey string, port int) string {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), 5*time.Second)
	if err != nil {
		return ""
	}
	conn.Close()

	payload, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "item.citationkey",
		"params":  []string{itemKey},
		"id":      1,
	})

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://localhost:%d/jsonrpc", port), strings.NewReader(string(payload)))
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var result struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}
	return result.Result
}

func citekeyFromExtra(extra string) string {
	for _, line := range strings.Split(extra, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Citation Key:") {
			return strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
		}
	}
	return ""
}

func languageFromExtra(extra string) string {
	for _, line := range strings.Split(extra, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "language:") {
			return strings.TrimSpace(line[len("language:"):])
		}
	}
	return ""
}

// mapLanguageToOCRCode maps a Zotero locale code (e.g. "en-US") to its
// 2-letter OCR engine code, e.g. "en". Unknown codes are still returned as
// long as they carry at least two characters.
func mapLanguageToOCRCode(zoteroLang string) string {
	if zoteroLang == "" {
		return ""
	}
	code := strings.ToLower(strings.SplitN(zoteroLang, "-", 2)[0])
	if supportedOCRLanguages[code] {
		return code
	}
	if len(code) >= 2 {
		return code
	}
	return ""
}
