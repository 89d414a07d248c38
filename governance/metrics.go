package governance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var violationProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "governance_violation_duration_sec",
	Help: "Total duration of violation processing",
}, []string{"category"})

var violationProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "governance_violations_processed",
	Help: "Number of confirmed violations processed, by category and resulting action",
}, []string{"category", "action"})

var violationErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "governance_violation_errors",
	Help: "Number of violations which failed processing",
}, []string{"category"})

var overrideCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "governance_overrides",
	Help: "Number of admin overrides applied, by type",
}, []string{"type"})
