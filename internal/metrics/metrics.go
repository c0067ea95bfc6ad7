// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics exposes Prometheus counters for the account flows.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder is what the services report to.
type Recorder interface {
	RecordOperation(operation, outcome string)
	RecordMailDispatch(template, outcome string)
	RecordPasswordHash(d time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	operations   *prometheus.CounterVec
	mailDispatch *prometheus.CounterVec
	passwordHash prometheus.Histogram
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_auth_operations_total",
			Help: "Account flow invocations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		mailDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_mail_dispatch_total",
			Help: "Outgoing emails by template and outcome.",
		}, []string{"template", "outcome"}),
		passwordHash: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rental_password_hash_seconds",
			Help:    "Time spent hashing passwords.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.operations, c.mailDispatch, c.passwordHash)

	return c
}

func (c *Collector) RecordOperation(operation, outcome string) {
	c.operations.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) RecordMailDispatch(template, outcome string) {
	c.mailDispatch.WithLabelValues(template, outcome).Inc()
}

func (c *Collector) RecordPasswordHash(d time.Duration) {
	c.passwordHash.Observe(d.Seconds())
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordOperation(string, string)    {}
func (Nop) RecordMailDispatch(string, string) {}
func (Nop) RecordPasswordHash(time.Duration)  {}

// Outcome maps an error to a label value.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
