// Package metrics exposes Prometheus instruments for the message adapter and
// the notification gateways. Each Collector owns its registry; nothing is
// registered globally.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/notify"
)

const namespace = "skillmap"

// Collector holds the metrics of one process. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
	Notifications   *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of adapter requests by command and outcome",
		},
		[]string{"command", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Adapter request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently being dispatched",
		},
	)
	notifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Published notification events by type and result",
		},
		[]string{"type", "result"},
	)

	registry.MustRegister(requests, duration, inFlight, notifications)

	return &Collector{
		registry:        registry,
		Requests:        requests,
		RequestDuration: duration,
		InFlight:        inFlight,
		Notifications:   notifications,
	}
}

// WatchCacheSize exports the summary cache size as a gauge read on scrape.
func (c *Collector) WatchCacheSize(size func() int) {
	if c == nil {
		return
	}
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_summaries",
			Help:      "Tree summaries currently held in the listing cache",
		},
		func() float64 { return float64(size()) },
	))
}

// StartRequest marks a request in flight and returns a func that records its
// outcome ("ok", "error" or "rejected").
func (c *Collector) StartRequest(command string) func(outcome string) {
	if c == nil {
		return func(string) {}
	}
	start := time.Now()
	c.InFlight.Inc()
	return func(outcome string) {
		c.InFlight.Dec()
		c.Requests.WithLabelValues(command, outcome).Inc()
		c.RequestDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// InstrumentPublisher counts every publish through p by event type and result.
func (c *Collector) InstrumentPublisher(p notify.Publisher) notify.Publisher {
	if c == nil {
		return p
	}
	return &countingPublisher{next: p, counter: c.Notifications}
}

type countingPublisher struct {
	next    notify.Publisher
	counter *prometheus.CounterVec
}

func (p *countingPublisher) Publish(ctx context.Context, ev model.Event) error {
	err := p.next.Publish(ctx, ev)
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	p.counter.WithLabelValues(string(ev.Type), result).Inc()
	return err
}
