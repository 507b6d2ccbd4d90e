package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish outcomes used as the result label.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "transport_error"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	tunnelStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "tunnel",
			Name:      "starts_total",
			Help:      "Number of successful tunnel process spawns.",
		}, []string{"name"},
	)
	tunnelRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "tunnel",
			Name:      "restarts_total",
			Help:      "Number of spawns scheduled after an exit.",
		}, []string{"name"},
	)
	tunnelExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "tunnel",
			Name:      "exits_total",
			Help:      "Number of tunnel process exits by exit code (-1 when killed or never started).",
		}, []string{"name", "code"},
	)
	urlsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "url",
			Name:      "detected_total",
			Help:      "Number of output lines containing a tunnel URL.",
		},
	)
	publishSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "publish",
			Name:      "skipped_total",
			Help:      "Detected URLs dropped as duplicate or while a publish was in flight.",
		},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forwarder",
			Subsystem: "publish",
			Name:      "total",
			Help:      "Publish attempts by result.",
		}, []string{"result"},
	)
	publishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "forwarder",
			Subsystem: "publish",
			Name:      "duration_seconds",
			Help:      "Duration of publish attempts.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{tunnelStarts, tunnelRestarts, tunnelExits, urlsDetected, publishSkipped, publishes, publishDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		tunnelStarts.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		tunnelRestarts.WithLabelValues(name).Inc()
	}
}

func IncExit(name string, code int) {
	if regOK.Load() {
		tunnelExits.WithLabelValues(name, strconv.Itoa(code)).Inc()
	}
}

func IncDetected() {
	if regOK.Load() {
		urlsDetected.Inc()
	}
}

func IncSkipped() {
	if regOK.Load() {
		publishSkipped.Inc()
	}
}

func ObservePublish(result string, seconds float64) {
	if regOK.Load() {
		publishes.WithLabelValues(result).Inc()
		publishDuration.Observe(seconds)
	}
}
