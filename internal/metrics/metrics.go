package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_movements_total",
		Help: "Committed stock movements by type.",
	}, []string{"type"})

	MovementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_movement_failures_total",
		Help: "Rejected mutations by error code.",
	}, []string{"code"})

	BatchRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_batch_rows_total",
		Help: "Batch rows processed by outcome.",
	}, []string{"outcome"})
)
