package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteComputeTotal counts checkout quote computations.
	QuoteComputeTotal prometheus.Counter
	// VouchersApplied counts vouchers successfully applied to a session.
	VouchersApplied prometheus.Counter
	// VouchersRejected counts voucher applications rejected by validation or
	// composition rules.
	VouchersRejected prometheus.Counter
	// OrdersSubmitted counts order submissions by checkout mode.
	OrdersSubmitted *prometheus.CounterVec
	// PaymentResultTotal counts payment completions by provider and result.
	PaymentResultTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteComputeTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_compute_total",
			Help:      "Total number of checkout quotes computed.",
		})
		VouchersApplied = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouchers_applied_total",
			Help:      "Total number of vouchers applied to checkout sessions.",
		})
		VouchersRejected = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouchers_rejected_total",
			Help:      "Total number of voucher applications rejected.",
		})
		OrdersSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Count of submitted orders by checkout mode.",
		}, []string{"mode"})
		PaymentResultTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_result_total",
			Help:      "Count of payment completions by provider and result.",
		}, []string{"provider", "result"})

		mustRegisterCollector(reg, QuoteComputeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				QuoteComputeTotal = v
			}
		})
		mustRegisterCollector(reg, VouchersApplied, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				VouchersApplied = v
			}
		})
		mustRegisterCollector(reg, VouchersRejected, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				VouchersRejected = v
			}
		})
		mustRegisterCollector(reg, OrdersSubmitted, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersSubmitted = v
			}
		})
		mustRegisterCollector(reg, PaymentResultTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentResultTotal = v
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
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
