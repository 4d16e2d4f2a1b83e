package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the query service.
type Metrics struct {
	Queries       *prometheus.CounterVec
	QueryDuration prometheus.Histogram
	Refreshes     *prometheus.CounterVec
	CatalogRows   *prometheus.GaugeVec
}

// New creates and registers all metrics with the provided registry.
func New(reg prometheus.Registerer) *Metrics {
	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "versionsql_queries_total",
		Help: "Queries executed, by outcome (ok, user_error, internal_error)",
	}, []string{"outcome"})

	queryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "versionsql_query_duration_seconds",
		Help:    "Time spent executing operator queries, including any refresh",
		Buckets: prometheus.DefBuckets,
	})

	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "versionsql_refresh_total",
		Help: "Catalog loads from the upstream API, by outcome",
	}, []string{"outcome"})

	catalogRows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "versionsql_catalog_rows",
		Help: "Rows in each mirrored table after the last load",
	}, []string{"table"})

	reg.MustRegister(queries, queryDuration, refreshes, catalogRows)

	return &Metrics{
		Queries:       queries,
		QueryDuration: queryDuration,
		Refreshes:     refreshes,
		CatalogRows:   catalogRows,
	}
}

// NewNop returns metrics registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
