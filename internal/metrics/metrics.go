// Package metrics holds Prometheus instruments used across recordset.
// All collectors are registered with the global registry, so importing
// this package is enough to expose them wherever promhttp is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordset_queries_total",
			Help: "Cumulative number of statements executed, by connection name.",
		}, []string{"conn"})

	QueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordset_query_errors_total",
			Help: "Cumulative number of statement failures, by connection name.",
		}, []string{"conn"})

	SchemaLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recordset_schema_load_total",
			Help: "Cumulative number of table schemas introspected.",
		})

	SchemaLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recordset_schema_load_errors_total",
			Help: "Cumulative number of schema introspection failures.",
		})

	ActiveTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recordset_active_transactions",
			Help: "Number of transactions currently in flight.",
		})
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		QueryErrorsTotal,
		SchemaLoadTotal,
		SchemaLoadErrorsTotal,
		ActiveTransactions,
	)
}
