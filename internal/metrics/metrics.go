// Package metrics registers the prometheus vectors the core updates on
// every lookup and subscribe decision. The teacher's go.mod declares
// github.com/prometheus/client_golang but no file imports it; this package
// gives it its first caller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/neumodvb/devcore/internal/devdb"
)

// SubscriptionsActive tracks live reservation counts by contended resource
// kind (lnb, tuner, dish, rf_coupler), updated from devdb.SubscriptionCounts.
var SubscriptionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "devcore_subscriptions_active",
	Help: "Number of active subscriptions contending for a resource, by kind.",
}, []string{"resource"})

// MuxLookupTotal and MuxLookupDuration cover the four lookup/match entry
// points in chdb: find_by_mux, find_by_mux_fuzzy, find_by_freq_fuzzy,
// get_by_nid_tid_unique.
var (
	MuxLookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devcore_mux_lookup_total",
		Help: "Mux lookups performed, by lookup kind and outcome.",
	}, []string{"lookup", "outcome"})

	MuxLookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devcore_mux_lookup_duration_seconds",
		Help:    "Mux lookup latency, by lookup kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"lookup"})
)

// SubscribeTotal counts subscribe/unsubscribe verb outcomes. The result
// label is whatever the caller passes: cmd/devcore passes "ok" or, on
// failure, the returned error's text; errors are not mapped to kind names.
var SubscribeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "devcore_subscribe_total",
	Help: "Subscribe/unsubscribe verb calls, by verb and result.",
}, []string{"verb", "result"})

// ResourceKinds lists the label values SubscriptionsActive is updated with,
// matching devdb.SubscriptionCounts' fields in order.
var ResourceKinds = []string{"lnb", "tuner", "dish", "rf_coupler"}

// ObserveLookup records one lookup call's outcome and duration in a single
// call, kept next to the vectors it updates so call sites never drift out
// of sync on label names.
func ObserveLookup(lookup, outcome string, seconds float64) {
	MuxLookupTotal.WithLabelValues(lookup, outcome).Inc()
	MuxLookupDuration.WithLabelValues(lookup).Observe(seconds)
}

// ObserveSubscribe records one subscribe/unsubscribe verb's result.
func ObserveSubscribe(verb, result string) {
	SubscribeTotal.WithLabelValues(verb, result).Inc()
}

// UpdateSubscriptionCounts refreshes SubscriptionsActive from a freshly
// computed devdb.SubscriptionCounts, as returned by SubscribeLNBBandPolSat.
func UpdateSubscriptionCounts(c devdb.SubscriptionCounts) {
	SubscriptionsActive.WithLabelValues("lnb").Set(float64(c.LNB))
	SubscriptionsActive.WithLabelValues("tuner").Set(float64(c.Tuner))
	SubscriptionsActive.WithLabelValues("dish").Set(float64(c.Dish))
	SubscriptionsActive.WithLabelValues("rf_coupler").Set(float64(c.RFCoupler))
}
