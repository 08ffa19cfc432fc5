// Package metrics holds the prometheus counters of the core services.
//
// Counters live on a private registry per Metrics value, so tests and
// multiple app instances never collide on the global registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mnemosyne"

// Metrics is the set of core counters.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsIngested *prometheus.CounterVec
	ClaimsProposed    *prometheus.CounterVec
	VotesCast         *prometheus.CounterVec
	Promotions        prometheus.Counter
	Decisions         *prometheus.CounterVec
	Searches          *prometheus.CounterVec
	SeedImported      *prometheus.CounterVec
	BlobCache         *prometheus.CounterVec
}

// New creates counters registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocumentsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_ingested_total",
				Help:      "Documents ingested, by content type",
			},
			[]string{"content_type"},
		),
		ClaimsProposed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claims_proposed_total",
				Help:      "Claim proposals, split by whether a new claim was created",
			},
			[]string{"created"},
		),
		VotesCast: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "votes_cast_total",
				Help:      "Votes appended, by direction",
			},
			[]string{"direction"}, // "up" / "down"
		),
		Promotions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "promotions_total",
				Help:      "Claims promoted to the verified ledger by quorum",
			},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Reviewer decisions, by outcome",
			},
			[]string{"decision"},
		),
		Searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Searches run, split by whether anything matched",
			},
			[]string{"result"}, // "hit" / "empty"
		),
		SeedImported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "seed_imported_total",
				Help:      "Rows written by seed imports",
			},
			[]string{"kind"}, // "documents" / "claims" / "remapped"
		),
		BlobCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blob_cache_total",
				Help:      "Blob read cache hits and misses",
			},
			[]string{"result"},
		),
	}
	m.registry.MustRegister(
		m.DocumentsIngested,
		m.ClaimsProposed,
		m.VotesCast,
		m.Promotions,
		m.Decisions,
		m.Searches,
		m.SeedImported,
		m.BlobCache,
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Ingested records one ingested document.
func (m *Metrics) Ingested(contentType string) {
	if m == nil {
		return
	}
	m.DocumentsIngested.WithLabelValues(contentType).Inc()
}

// Proposed records one claim proposal.
func (m *Metrics) Proposed(created bool) {
	if m == nil {
		return
	}
	m.ClaimsProposed.WithLabelValues(strconv.FormatBool(created)).Inc()
}

// Voted records one appended vote.
func (m *Metrics) Voted(value int) {
	if m == nil {
		return
	}
	dir := "down"
	if value > 0 {
		dir = "up"
	}
	m.VotesCast.WithLabelValues(dir).Inc()
}

// Promoted records one quorum promotion.
func (m *Metrics) Promoted() {
	if m == nil {
		return
	}
	m.Promotions.Inc()
}

// Decided records one reviewer decision.
func (m *Metrics) Decided(decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(decision).Inc()
}

// Searched records one search.
func (m *Metrics) Searched(hits int) {
	if m == nil {
		return
	}
	result := "empty"
	if hits > 0 {
		result = "hit"
	}
	m.Searches.WithLabelValues(result).Inc()
}

// Imported adds n rows of kind to the seed import counter.
func (m *Metrics) Imported(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SeedImported.WithLabelValues(kind).Add(float64(n))
}

// CacheLookup records a blob cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.BlobCache.WithLabelValues(result).Inc()
}

// WriteText writes every non-zero counter as "name{labels} value" lines,
// sorted by name.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			value := metric.GetCounter().GetValue()
			if value == 0 {
				continue
			}
			var labels []string
			for _, lp := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("%s %s", name, strconv.FormatFloat(value, 'f', -1, 64)))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
