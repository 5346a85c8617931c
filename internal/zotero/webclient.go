package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// MinRequestInterval is the minimum spacing between requests to the Zotero
// Web API, applied regardless of caller concurrency.
const MinRequestInterval = 500 * time.Millisecond

// WebClient is the rate-limited Zotero Web API adapter for C6.
type WebClient struct {
	httpClient    *http.Client
	baseURL       string
	userID        string
	libraryPrefix string
	apiKey        string
	log           zerolog.Logger

	mu           sync.Mutex
	lastRequest  time.Time
	callCount    int
	totalLatency time.Duration

	collCache   map[string][]Collection
	collCacheMu sync.Mutex
}

// NewWebClient builds a WebClient for the given Zotero library. libraryType
// is either "user" (the default) or "group", selecting the Web API's
// /users/ or /groups/ URL prefix.
func NewWebClient(userID, apiKey, libraryType string, log zerolog.Logger) *WebClient {
	prefix := "users"
	if libraryType == "group" {
		prefix = "groups"
	}
	return &WebClient{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       "https://api.zotero.org",
		userID:        userID,
		libraryPrefix: prefix,
		apiKey:        apiKey,
		log:           log,
		collCache:     make(map[string][]Collection),
	}
}

// rateLimit blocks until at least MinRequestInterval has elapsed since the
// previous request, then claims the slot; the lock is held while waiting so
// concurrent callers pass through one at a time.
func (c *WebClient) rateLimit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := MinRequestInterval - time.Since(c.lastRequest); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastRequest = time.Now()
	return nil
}

func (c *WebClient) do(ctx context.Context, method, path string) ([]byte, error) {
	if err := c.rateLimit(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	url := fmt.Sprintf("%s/%s/%s%s", c.baseURL, c.libraryPrefix, c.userID, path)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "failed building request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Zotero-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)

	c.mu.Lock()
	c.lastRequest = time.Now()
	c.callCount++
	c.totalLatency += time.Since(start)
	c.mu.Unlock()

	if err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "failed reading response body", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		bodyStr := strings.ToLower(string(body))
		if strings.Contains(bodyStr, "rate") || strings.Contains(bodyStr, "limit") || resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := 60
			if v := resp.Header.Get("Retry-After"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					retryAfter = n
				}
			}
			return nil, errs.New(errs.KindZoteroRateLimit, "zotero API rate limit exceeded").
				WithDetail("retry_after_seconds", retryAfter).
				WithRetryable(true)
		}
	}

	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.KindZoteroAPIError, fmt.Sprintf("zotero API returned status %d", resp.StatusCode)).
			WithDetail("status_code", resp.StatusCode)
	}

	return body, nil
}

func (c *WebClient) doWithRetry(ctx context.Context, method, path string) ([]byte, error) {
	var body []byte
	err := errs.Retry(ctx, errs.ZoteroRetryConfig(), func() error {
		b, err := c.do(ctx, method, path)
		if err != nil {
			c.log.Warn().Err(err).Str("path", path).Msg("zotero web request failed, retrying")
			return err
		}
		body = b
		return nil
	})
	return body, err
}

type zoteroCollectionDTO struct {
	Key  string `json:"key"`
	Data struct {
		Name           string `json:"name"`
		ParentCollection any  `json:"parentCollection"`
	} `json:"data"`
}

func (c *WebClient) ListCollections(ctx context.Context) ([]Collection, error) {
	const cacheKey = "__root__"
	c.collCacheMu.Lock()
	if cached, ok := c.collCache[cacheKey]; ok {
		c.collCacheMu.Unlock()
		return cached, nil
	}
	c.collCacheMu.Unlock()

	body, err := c.doWithRetry(ctx, http.MethodGet, "/collections?limit=100")
	if err != nil {
		return nil, err
	}

	var dtos []zoteroCollectionDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "failed decoding collections response", err)
	}

	out := make([]Collection, 0, len(dtos))
	for _, d := range dtos {
		parent := ""
		if s, ok := d.Data.ParentCollection.(string); ok {
			parent = s
		}
		out = append(out, Collection{Key: d.Key, Name: d.Data.Name, ParentKey: parent})
	}

	c.collCacheMu.Lock()
	c.collCache[cacheKey] = out
	c.collCacheMu.Unlock()
	return out, nil
}

func (c *WebClient) FindCollectionByName(ctx context.Context, name string) (Collection, bool, error) {
	cols, err := c.ListCollections(ctx)
	if err != nil {
		return Collection{}, false, err
	}
	for _, col := range cols {
		if col.Name == name {
			return col, true, nil
		}
	}
	return Collection{}, false, nil
}

type zoteroItemDTO struct {
	Key  string `json:"key"`
	Data struct {
		Title     string            `json:"title"`
		Extra     string            `json:"extra"`
		Tags      []struct{ Tag string `json:"tag"` } `json:"tags"`
		ItemType  string            `json:"itemType"`
	} `json:"data"`
}

func (c *WebClient) GetCollectionItems(ctx context.Context, collectionKey string, recursive bool) ([]Item, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, fmt.Sprintf("/collections/%s/items?limit=100", collectionKey))
	if err != nil {
		return nil, err
	}

	var dtos []zoteroItemDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "failed decoding items response", err)
	}

	out := make([]Item, 0, len(dtos))
	for _, d := range dtos {
		if d.Data.ItemType == "attachment" || d.Data.ItemType == "annotation" {
			continue
		}
		out = append(out, itemFromDTO(d))
	}

	if recursive {
		subCols, err := c.doWithRetry(ctx, http.MethodGet, fmt.Sprintf("/collections/%s/collections", collectionKey))
		if err == nil {
			var subs []zoteroCollectionDTO
			if jsonErr := json.Unmarshal(subCols, &subs); jsonErr == nil {
				for _, s := range subs {
					children, err := c.GetCollectionItems(ctx, s.Key, true)
					if err != nil {
						return nil, err
					}
					out = append(out, children...)
				}
			}
		}
	}

	return out, nil
}

func itemFromDTO(d zoteroItemDTO) Item {
	tags := make([]string, 0, len(d.Data.Tags))
	for _, t := range d.Data.Tags {
		tags = append(tags, t.Tag)
	}
	return Item{Key: d.Key, Title: d.Data.Title, Extra: d.Data.Extra, Tags: tags}
}

func (c *WebClient) GetItemAttachments(ctx context.Context, itemKey string) ([]ItemAttachment, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, fmt.Sprintf("/items/%s/children", itemKey))
	if err != nil {
		return nil, err
	}

	type attachmentDTO struct {
		Key  string `json:"key"`
		Data struct {
			ParentItem  string `json:"parentItem"`
			Filename    string `json:"filename"`
			ContentType string `json:"contentType"`
			LinkMode    string `json:"linkMode"`
			ItemType    string `json:"itemType"`
		} `json:"data"`
	}
	var dtos []attachmentDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "failed decoding attachments response", err)
	}

	out := make([]ItemAttachment, 0, len(dtos))
	for _, d := range dtos {
		if d.Data.ItemType != "attachment" {
			continue
		}
		linkMode := 0
		if d.Data.LinkMode == "linked_file" {
			linkMode = 1
		}
		out = append(out, ItemAttachment{
			Key:         d.Key,
			ParentKey:   d.Data.ParentItem,
			Filename:    d.Data.Filename,
			ContentType: d.Data.ContentType,
			LinkMode:    linkMode,
		})
	}
	return out, nil
}

func (c *WebClient) GetItemMetadata(ctx context.Context, itemKey string) (Item, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, fmt.Sprintf("/items/%s", itemKey))
	if err != nil {
		return Item{}, err
	}
	var dto zoteroItemDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return Item{}, errs.Wrap(errs.KindZoteroAPIError, "failed decoding item response", err)
	}
	return itemFromDTO(dto), nil
}

func (c *WebClient) ListTags(ctx context.Context) ([]string, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, "/tags?limit=100")
	if err != nil {
		return nil, err
	}
	var dtos []struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "failed decoding tags response", err)
	}
	out := make([]string, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.Tag)
	}
	return out, nil
}

func (c *WebClient) GetRecentItems(ctx context.Context, limit int) ([]Item, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, fmt.Sprintf("/items/top?limit=%d&sort=dateAdded&direction=desc", limit))
	if err != nil {
		return nil, err
	}
	var dtos []zoteroItemDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "failed decoding recent items response", err)
	}
	out := make([]Item, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, itemFromDTO(d))
	}
	return out, nil
}

// DownloadAttachment streams the attachment file from the Web API to
// outputPath, retrying with exponential backoff per spec §4.6.
func (c *WebClient) DownloadAttachment(ctx context.Context, itemKey, attachmentKey, outputPath string) (string, error) {
	err := errs.Retry(ctx, errs.ZoteroRetryConfig(), func() error {
		if err := c.rateLimit(ctx); err != nil {
			return err
		}

		url := fmt.Sprintf("%s/%s/%s/items/%s/file", c.baseURL, c.libraryPrefix, c.userID, attachmentKey)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errs.Wrap(errs.KindZoteroAPIError, "failed building download request", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Zotero-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		c.mu.Lock()
		c.lastRequest = time.Now()
		c.callCount++
		c.mu.Unlock()
		if err != nil {
			return errs.Wrap(errs.KindZoteroAPIError, "download request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return errs.New(errs.KindZoteroRateLimit, "zotero API rate limit exceeded during download").WithRetryable(true)
		}
		if resp.StatusCode >= 400 {
			return errs.New(errs.KindZoteroAPIError, fmt.Sprintf("download returned status %d", resp.StatusCode))
		}

		out, err := os.Create(outputPath)
		if err != nil {
			return errs.Wrap(errs.KindZoteroAPIError, "failed creating output file", err)
		}
		defer out.Close()

		if _, err := io.Copy(out, resp.Body); err != nil {
			return errs.Wrap(errs.KindZoteroAPIError, "failed writing downloaded attachment", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return outputPath, nil
}

// LogAPICallSummary emits a single summary line covering this client's
// lifetime call count and average latency, for ingestion-run diagnostics.
func (c *WebClient) LogAPICallSummary() {
	c.mu.Lock()
	defer c.mu.Unlock()
	avg := time.Duration(0)
	if c.callCount > 0 {
		avg = c.totalLatency / time.Duration(c.callCount)
	}
	c.log.Info().
		Int("call_count", c.callCount).
		Dur("avg_latency", avg).
		Msg("zotero web API call summary")
}

var _ WebSource = (*WebClient)(nil)
