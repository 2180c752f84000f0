package prometheus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-tokenapi/core"
	promclient "github.com/prometheus/client_golang/prometheus"
)

// DefaultLabels are the tag keys the service attaches to operation metrics.
// Tags outside the label set are dropped; absent tags export as "".
var DefaultLabels = []string{"operation", "status", "kind", "mode", "refreshed"}

type Option func(*Recorder)

func WithRegisterer(registerer promclient.Registerer) Option {
	return func(r *Recorder) {
		if registerer != nil {
			r.registerer = registerer
		}
	}
}

func WithLabels(labels ...string) Option {
	return func(r *Recorder) {
		if len(labels) > 0 {
			r.labels = append([]string(nil), labels...)
		}
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// Recorder exports service counters and histograms as Prometheus vectors,
// creating one vector per metric name on first use.
type Recorder struct {
	registerer promclient.Registerer
	labels     []string
	buckets    []float64
	onError    func(error)

	mu         sync.Mutex
	counters   map[string]*promclient.CounterVec
	histograms map[string]*promclient.HistogramVec
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		registerer: promclient.DefaultRegisterer,
		labels:     append([]string(nil), DefaultLabels...),
		buckets:    []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		counters:   map[string]*promclient.CounterVec{},
		histograms: map[string]*promclient.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// WithErrorHandler receives registration failures other than duplicate
// registration.
func WithErrorHandler(handler func(error)) Option {
	return func(r *Recorder) {
		r.onError = handler
	}
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec := r.counter(name)
	if vec == nil {
		return
	}
	vec.With(r.labelValues(tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.histogram(name)
	if vec == nil {
		return
	}
	vec.With(r.labelValues(tags)).Observe(value)
}

func (r *Recorder) counter(name string) *promclient.CounterVec {
	metric := MetricName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[metric]; ok {
		return vec
	}
	vec := promclient.NewCounterVec(promclient.CounterOpts{
		Name: metric,
		Help: fmt.Sprintf("Count of %s.", name),
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		var already promclient.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(*promclient.CounterVec)
			if !ok {
				r.report(err)
				return nil
			}
			vec = existing
		} else {
			r.report(err)
			return nil
		}
	}
	r.counters[metric] = vec
	return vec
}

func (r *Recorder) histogram(name string) *promclient.HistogramVec {
	metric := MetricName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[metric]; ok {
		return vec
	}
	vec := promclient.NewHistogramVec(promclient.HistogramOpts{
		Name:    metric,
		Help:    fmt.Sprintf("Distribution of %s.", name),
		Buckets: r.buckets,
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		var already promclient.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(*promclient.HistogramVec)
			if !ok {
				r.report(err)
				return nil
			}
			vec = existing
		} else {
			r.report(err)
			return nil
		}
	}
	r.histograms[metric] = vec
	return vec
}

func (r *Recorder) labelValues(tags map[string]string) promclient.Labels {
	values := make(promclient.Labels, len(r.labels))
	for _, label := range r.labels {
		values[label] = tags[label]
	}
	return values
}

func (r *Recorder) report(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}

// MetricName maps a dotted service metric name onto the Prometheus charset.
func MetricName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	for index, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_', ch == ':':
			b.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if index == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(ch)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
