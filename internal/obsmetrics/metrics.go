// Package obsmetrics is a thin adapter over OpenTelemetry metrics, used by
// the ingestion and retrieval use cases to record counters and histograms
// without depending on OTel directly.
package obsmetrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder is the metrics surface internal/ingest and internal/retrieve
// depend on. A nil *OtelRecorder is safe to call: every method no-ops.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// OtelRecorder records through the global OpenTelemetry meter provider,
// caching instruments by name since the OTel API requires creating each
// instrument once.
type OtelRecorder struct {
	meter metric.Meter
	mu    sync.RWMutex

	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOtelRecorder builds a Recorder scoped to the "citeloom" meter name.
func NewOtelRecorder() *OtelRecorder {
	return &OtelRecorder{
		meter:      otel.Meter("citeloom"),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (o *OtelRecorder) IncCounter(name string, labels map[string]string) {
	if o == nil {
		return
	}
	c, ok := o.counter(name)
	if !ok {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(toAttrs(labels)...))
}

func (o *OtelRecorder) ObserveHistogram(name string, value float64, labels map[string]string) {
	if o == nil {
		return
	}
	h, ok := o.histogram(name)
	if !ok {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

func (o *OtelRecorder) counter(name string) (metric.Int64Counter, bool) {
	o.mu.RLock()
	c, ok := o.counters[name]
	o.mu.RUnlock()
	if ok {
		return c, true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok = o.counters[name]; ok {
		return c, true
	}
	ctr, err := o.meter.Int64Counter(name)
	if err != nil {
		return ctr, false
	}
	o.counters[name] = ctr
	return ctr, true
}

func (o *OtelRecorder) histogram(name string) (metric.Float64Histogram, bool) {
	o.mu.RLock()
	h, ok := o.histograms[name]
	o.mu.RUnlock()
	if ok {
		return h, true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if h, ok = o.histograms[name]; ok {
		return h, true
	}
	hist, err := o.meter.Float64Histogram(name)
	if err != nil {
		return hist, false
	}
	o.histograms[name] = hist
	return hist, true
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}

// Metric name constants shared by the instrumented call sites.
const (
	MetricDocumentsProcessed = "citeloom.ingest.documents"
	MetricChunksEmbedded     = "citeloom.ingest.chunks_embedded"
	MetricIngestDuration     = "citeloom.ingest.document_duration_seconds"
	MetricQueryCount         = "citeloom.retrieve.queries"
	MetricQueryDuration      = "citeloom.retrieve.query_duration_seconds"
)
