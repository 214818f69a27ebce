package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Business metrics for the campaign lifecycle. Registered on package load.
var (
	CampaignsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daan_campaigns_created_total",
		Help: "Campaign creation attempts by outcome.",
	}, []string{"result"})

	ScreeningVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daan_screening_verdicts_total",
		Help: "Screening verdicts by label.",
	}, []string{"label"})

	PledgesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daan_pledges_recorded_total",
		Help: "Confirmed pledges appended to the donor ledger.",
	})

	PledgeAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daan_pledge_amount_eth_total",
		Help: "Sum of recorded pledge amounts in ETH.",
	})

	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daan_claims_total",
		Help: "Claim attempts by outcome.",
	}, []string{"result"})

	LedgerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "daan_ledger_call_duration_seconds",
		Help:    "Ledger gateway call latency, including confirmation polling.",
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
	}, []string{"op"})

	PendingSubmissions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "daan_pending_submissions",
		Help: "Campaign creations awaiting reconciliation.",
	})

	// alert on any increase: the ledger never answered for these creations
	PendingAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daan_pending_abandoned_total",
		Help: "Pending creations abandoned by age without a ledger answer.",
	})
)
