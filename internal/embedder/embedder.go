// Package embedder provides the embedding-model pool of C10: an HTTP-backed
// embedder over an OpenAI-compatible endpoint, a deterministic fallback
// suitable for tests and offline runs, and a process-lifetime pool keyed by
// model id so repeated lookups reuse the same engine instance.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"time"
)

// Embedder converts text into embedding vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// Config describes one embedding engine: its HTTP endpoint (when not using
// the deterministic fallback) and its declared dimensionality.
type Config struct {
	Model      string
	Endpoint   string
	APIKey     string
	Dimension  int
	ConfigHash string // optional, distinguishes two configs sharing Model
}

// clientEmbedder calls a configured OpenAI-compatible /embeddings endpoint,
// one chunk per request to stay safe against servers that mishandle batching.
type clientEmbedder struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds an HTTP-backed embedder.
func NewClient(cfg Config) Embedder {
	return &clientEmbedder{cfg: cfg, httpClient: &http.Client{Timeout: 60 * time.Second}}
}

func (c *clientEmbedder) Name() string   { return c.cfg.Model }
func (c *clientEmbedder) Dimension() int { return c.cfg.Dimension }

func (c *clientEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *clientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return out, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (c *clientEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("embedder: failed marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embedder: failed building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedder: failed reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embedder: endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("embedder: failed decoding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedder: response carried no embeddings")
	}
	return parsed.Data[0].Embedding, nil
}

// deterministicEmbedder hashes byte 3-grams into a fixed-size vector. It
// never fails, so spec §4.10's "must still return a shape-correct zero
// vector array" requirement is satisfied trivially: every text, including
// the empty string, produces a same-shape vector.
type deterministicEmbedder struct {
	dim       int
	normalize bool
	name      string
}

// NewDeterministic builds a fallback embedder usable without network access.
func NewDeterministic(name string, dim int, normalize bool) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicEmbedder{dim: dim, normalize: normalize, name: name}
}

func (d *deterministicEmbedder) Name() string                 { return d.name }
func (d *deterministicEmbedder) Dimension() int                { return d.dim }
func (d *deterministicEmbedder) Ping(_ context.Context) error { return nil }

func (d *deterministicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministicEmbedder) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) < 3 {
		hashInto(b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			hashInto(b[i:i+3], v)
		}
	}
	if d.normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func hashInto(gram []byte, v []float32) {
	h := fnv.New64a()
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
