package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	smsOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebridge_sms_total",
		Help: "SMS-spend attempts, labeled by outcome",
	}, []string{"outcome"})

	driftAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicebridge_ledger_drift_accounts",
		Help: "Accounts whose balance differs from the sum of their transactions at the last reconciliation",
	})
)
