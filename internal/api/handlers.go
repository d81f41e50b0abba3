package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/goid"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	stats := s.dispatcher.Stats()

	status := "ok"
	if stats.State == affinity.StateUnbound || stats.State == affinity.StateResolving {
		status = "unbound"
	}

	resp := HealthzResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Dispatcher: DispatcherState{
			State:              stats.State.String(),
			Resolutions:        stats.Resolutions,
			ResolutionFailures: stats.ResolutionFailures,
			SyncRuns:           stats.SyncRuns,
			Posted:             stats.Posted,
		},
	}
	if s.ownerStats != nil {
		resp.Owner = s.ownerStats()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handlePing handles POST /ping. The probe is dispatched from the request
// goroutine; with ?wait=true the handler also waits for it to run.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	start := time.Now()
	caller := goid.Current()
	var inPlace atomic.Bool
	done := make(chan struct{})
	err := s.dispatcher.Dispatch(func() error {
		inPlace.Store(goid.Current() == caller)
		close(done)
		return nil
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, affinity.ErrInvalidOperation) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("ping dispatch failed", "error", err)
		s.writeError(w, status, err.Error())
		return
	}

	resp := PingResponse{Mode: string(affinity.ModePosted)}
	select {
	case <-done:
		resp.Completed = true
		// A posted probe may already have been drained by the owner.
		if inPlace.Load() {
			resp.Mode = string(affinity.ModeSync)
		}
	default:
	}

	if wait && !resp.Completed {
		timer := time.NewTimer(s.config.ProbeTimeout)
		defer timer.Stop()
		select {
		case <-done:
			resp.Completed = true
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}
	if resp.Completed {
		resp.LatencyMS = time.Since(start).Milliseconds()
	}

	status := http.StatusOK
	if !resp.Completed {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, resp)
}

// handleFailures handles GET /failures?limit=N.
func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	if s.failures == nil {
		s.writeError(w, http.StatusNotFound, "journal disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.failures.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	s.writeJSON(w, http.StatusOK, FailuresResponse{Failures: entries})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
