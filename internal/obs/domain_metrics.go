package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CalculationsTotal counts order calculations by source and outcome.
	CalculationsTotal *prometheus.CounterVec
	// ReconciliationTotal counts client/server reconciliation outcomes
	// (matched, overridden, remote_unavailable).
	ReconciliationTotal *prometheus.CounterVec
	// ReconciliationDrift records the absolute client/server total difference
	// in minor units when both results are available.
	ReconciliationDrift prometheus.Histogram
	// DispatchWebhookTotal counts inbound courier webhook processing outcomes.
	DispatchWebhookTotal *prometheus.CounterVec
	// PromotionApplications counts promotion applications by kind.
	PromotionApplications *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_calculations_total",
			Help:      "Count of order total calculations by source and outcome.",
		}, []string{"source", "result"})
		ReconciliationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_reconciliation_total",
			Help:      "Count of client/server calculation reconciliation outcomes.",
		}, []string{"outcome"})
		ReconciliationDrift = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_reconciliation_drift_minor_units",
			Help:      "Absolute total difference between client and server results in minor units.",
			Buckets:   []float64{0, 1, 2, 5, 10, 50, 100, 1000, 10000},
		})
		DispatchWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_webhook_total",
			Help:      "Count of processed courier webhooks by outcome.",
		}, []string{"courier", "result"})
		PromotionApplications = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_applications_total",
			Help:      "Count of promotions applied at checkout by kind.",
		}, []string{"kind"})

		mustRegisterCollector(reg, CalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CalculationsTotal = v
			}
		})
		mustRegisterCollector(reg, ReconciliationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReconciliationTotal = v
			}
		})
		mustRegisterCollector(reg, ReconciliationDrift, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ReconciliationDrift = v
			}
		})
		mustRegisterCollector(reg, DispatchWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DispatchWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, PromotionApplications, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromotionApplications = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
