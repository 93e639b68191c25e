package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		settlementRetriesTotal,
		settlementInconsistenciesTotal,
		settlementsTotal,
	)
}

var (
	settlementRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_retries_total",
			Help: "Settlement rounds retried after a captured charge.",
		},
	)

	settlementInconsistenciesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_inconsistencies_total",
			Help: "Sessions parked with a captured charge and no grant yet.",
		},
	)

	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Durable grants recorded, by purchase kind.",
		},
		[]string{"kind"},
	)
)

func IncSettlementRetry() { settlementRetriesTotal.Inc() }

func IncSettlementInconsistency() { settlementInconsistenciesTotal.Inc() }

func IncSettlement(kind string) { settlementsTotal.WithLabelValues(norm(kind)).Inc() }
