package api

import "github.com/mattjoyce/affinity/internal/journal"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Dispatcher    DispatcherState `json:"dispatcher"`
	Owner         any             `json:"owner,omitempty"`
}

// DispatcherState mirrors affinity.Stats with the state spelled out.
type DispatcherState struct {
	State              string `json:"state"`
	Resolutions        uint64 `json:"resolutions"`
	ResolutionFailures uint64 `json:"resolution_failures"`
	SyncRuns           uint64 `json:"sync_runs"`
	Posted             uint64 `json:"posted"`
}

// PingResponse is returned by POST /ping. Mode is "sync" when the probe ran
// in place, "posted" when it was queued to the owner.
type PingResponse struct {
	Mode      string `json:"mode"`
	Completed bool   `json:"completed"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
}

// FailuresResponse is returned by GET /failures.
type FailuresResponse struct {
	Failures []journal.Entry `json:"failures"`
}
