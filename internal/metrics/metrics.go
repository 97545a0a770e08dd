// Package metrics holds the Prometheus collectors of the monitor and the ledger.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timebank",
			Name:      "monitor_ticks_total",
			Help:      "Monitor ticks by outcome",
		},
		[]string{"outcome"}, // screen_off, self, transition, dwell, idle, error
	)

	TickErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "timebank",
			Name:      "monitor_tick_errors_total",
			Help:      "Ticks aborted by an observer, store or unexpected fault",
		},
	)

	LedgerSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timebank",
			Name:      "ledger_seconds_total",
			Help:      "Seconds moved through the ledger",
		},
		[]string{"op"}, // credit, debit
	)

	DebitsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "timebank",
			Name:      "ledger_debits_rejected_total",
			Help:      "Debits rejected for insufficient balance",
		},
	)

	Balance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "timebank",
			Name:      "balance_seconds",
			Help:      "Last committed balance",
		},
	)

	Blocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timebank",
			Name:      "blocks_total",
			Help:      "Block decisions by result",
		},
		[]string{"result"}, // fired, suppressed
	)

	Reminders = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "timebank",
			Name:      "reminders_total",
			Help:      "Negative-app dwell reminders shown",
		},
	)
)

func init() {
	prometheus.MustRegister(Ticks)
	prometheus.MustRegister(TickErrors)
	prometheus.MustRegister(LedgerSeconds)
	prometheus.MustRegister(DebitsRejected)
	prometheus.MustRegister(Balance)
	prometheus.MustRegister(Blocks)
	prometheus.MustRegister(Reminders)
}
