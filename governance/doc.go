// Strike escalation and decay engine for account governance.
//
// This package (`github.com/pryde-social/governance/governance`) converts confirmed content violations into per-account strike counters and enforcement state. Counters decay lazily with wall-clock time (partial after 30 days quiet, full reset after 90), and a pure transition table maps counter levels to temporary restrictions or a permanent ban. Admin overrides set state directly, outside the increment path, and are only reachable through the step-up gate in the `server` package.
//
// See `cmd/steward` for a daemon built on this package.
package governance
