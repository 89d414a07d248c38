package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var auditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "governance_audit_write_failures",
	Help: "Number of audit sink appends which failed (best-effort, not retried)",
})
