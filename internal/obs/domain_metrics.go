package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ExpenseCalcTotal counts expense calculation outcomes per handling company.
	ExpenseCalcTotal *prometheus.CounterVec
	// ExpenseCalcTotalAmount records the distribution of calculated expense totals.
	ExpenseCalcTotalAmount *prometheus.HistogramVec
	// TariffImportTotal counts tariff import outcomes.
	TariffImportTotal *prometheus.CounterVec
	// DashboardCacheTotal counts dashboard cache hits and misses.
	DashboardCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ExpenseCalcTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expense_calculations_total",
			Help:      "Count of expense calculation outcomes per handling company.",
		}, []string{"company", "result"})
		ExpenseCalcTotalAmount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expense_calculation_total_eur",
			Help:      "Distribution of calculated expense totals in euros.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"company"})
		TariffImportTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tariff_imports_total",
			Help:      "Count of tariff import outcomes.",
		}, []string{"result"})
		DashboardCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_cache_total",
			Help:      "Dashboard cache lookups by outcome.",
		}, []string{"endpoint", "outcome"})

		mustRegisterCollector(reg, ExpenseCalcTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ExpenseCalcTotal = v
			}
		})
		mustRegisterCollector(reg, ExpenseCalcTotalAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ExpenseCalcTotalAmount = v
			}
		})
		mustRegisterCollector(reg, TariffImportTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TariffImportTotal = v
			}
		})
		mustRegisterCollector(reg, DashboardCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DashboardCacheTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, onExisting func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			onExisting(are.ExistingCollector)
			return
		}
		panic(err)
	}
}
