package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gateCheckCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "steward_gate_checks",
	Help: "Step-up gate decisions, by result",
}, []string{"result"})

var escalationGrantCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "steward_escalation_grants",
	Help: "Escalation tokens issued, by second-factor method",
}, []string{"method"})

var escalationDeniedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "steward_escalation_denied",
	Help: "Escalation attempts which failed second-factor verification",
}, []string{"method"})

var escalationRevokeCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "steward_escalation_revocations",
	Help: "Escalation revocation calls (tokens revoked tracked in logs)",
})
