package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlanStepsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claimspace_plan_steps_executed_total",
		Help: "Workflow plan steps that completed successfully.",
	})
	PlanStepsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claimspace_plan_steps_failed_total",
		Help: "Workflow plan steps that failed and aborted their plan.",
	})
	ClaimDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimspace_claim_dispatches_total",
		Help: "Claim message dispatches by transport.",
	}, []string{"transport"})
	TransportFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claimspace_transport_fallbacks_total",
		Help: "Dispatches that fell back from push to the mailbox transport.",
	})
)
