package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/swarmguard/taskengine/internal/core/batch"
	"github.com/swarmguard/taskengine/internal/core/engerr"
	"github.com/swarmguard/taskengine/internal/core/optimizer"
	"github.com/swarmguard/taskengine/internal/core/orchestrator"
	"github.com/swarmguard/taskengine/internal/provider"
)

// newServer builds the HTTP surface: every route maps one-to-one to a core
// operation and carries no independent business logic.
func newServer(registry *provider.Registry, roles *provider.RoleManager, opt *optimizer.ResourceOptimizer,
	orch *orchestrator.Orchestrator, batchCtl *batch.Controller, sleepBundle *sleepBundle,
	batchesEnabled, sleepEnabled bool) http.Handler {

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": time.Now().UTC()})
	})

	mux.HandleFunc("/providers", func(w http.ResponseWriter, r *http.Request) {
		handleListProviders(w, r, registry)
	})
	mux.HandleFunc("/providers/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/providers/")
		handleGetProvider(w, r, registry, id)
	})

	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handleSubmitTask(w, r, orch)
	})
	mux.HandleFunc("/tasks/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/tasks/")
		switch r.Method {
		case http.MethodGet:
			handleGetTask(w, r, orch, id)
		case http.MethodDelete:
			handleCancelTask(w, r, orch, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/batches", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !batchesEnabled {
			writeErr(w, fmt.Errorf("batches: %w", engerr.ErrFeatureDisabled))
			return
		}
		handleCreateBatch(w, r, batchCtl)
	})
	mux.HandleFunc("/batches/", func(w http.ResponseWriter, r *http.Request) {
		if !batchesEnabled {
			writeErr(w, fmt.Errorf("batches: %w", engerr.ErrFeatureDisabled))
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/batches/")
		if strings.HasSuffix(rest, "/tasks") {
			id := strings.TrimSuffix(rest, "/tasks")
			handleBatchTasks(w, r, batchCtl, id)
			return
		}
		switch r.Method {
		case http.MethodGet:
			handleGetBatch(w, r, batchCtl, rest)
		case http.MethodDelete:
			handleCancelBatch(w, r, batchCtl, rest)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/resources/usage", func(w http.ResponseWriter, r *http.Request) {
		handleUsageReport(w, r, opt)
	})
	mux.HandleFunc("/resources/optimize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handleOptimize(w, r, opt)
	})

	return mux
}

func handleListProviders(w http.ResponseWriter, r *http.Request, registry *provider.Registry) {
	var out []map[string]any
	for _, id := range registry.List() {
		p, err := registry.Get(id)
		if err != nil {
			continue
		}
		out = append(out, providerView(id, p))
	}
	writeJSON(w, http.StatusOK, out)
}

func handleGetProvider(w http.ResponseWriter, r *http.Request, registry *provider.Registry, id string) {
	p, err := registry.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, providerView(id, p))
}

func providerView(id string, p provider.Provider) map[string]any {
	models := p.ListModels()
	modelViews := make([]map[string]any, 0, len(models))
	for _, m := range models {
		modelViews = append(modelViews, map[string]any{"id": m.ID, "capabilities": m.Capabilities})
	}
	info := p.Info()
	return map[string]any{
		"provider_id": id,
		"name":        info["name"],
		"description": info["description"],
		"capabilities": info["capabilities"],
		"models":      modelViews,
	}
}

type submitTaskRequest struct {
	Description          string         `json:"description"`
	Input                map[string]any `json:"input"`
	Priority              string         `json:"priority"`
	MaxRetries            int            `json:"max_retries"`
	TimeoutSeconds         int            `json:"timeout_seconds"`
	Dependencies          []string       `json:"dependencies"`
	RequiredCapabilities  []string       `json:"required_capabilities"`
}

func parsePriority(s string) (orchestrator.Priority, error) {
	switch strings.ToUpper(s) {
	case "", "LOW":
		return orchestrator.PriorityLow, nil
	case "MEDIUM":
		return orchestrator.PriorityMedium, nil
	case "HIGH":
		return orchestrator.PriorityHigh, nil
	case "CRITICAL":
		return orchestrator.PriorityCritical, nil
	default:
		return 0, fmt.Errorf("priority %q: %w", s, engerr.ErrInvalidInput)
	}
}

func handleSubmitTask(w http.ResponseWriter, r *http.Request, orch *orchestrator.Orchestrator) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("decode request: %w", engerr.ErrInvalidInput))
		return
	}

	priority, err := parsePriority(req.Priority)
	if err != nil {
		writeErr(w, err)
		return
	}
	if req.TimeoutSeconds != 0 && (req.TimeoutSeconds < 1 || req.TimeoutSeconds > 3600) {
		writeErr(w, fmt.Errorf("timeout_seconds must be 1-3600: %w", engerr.ErrInvalidInput))
		return
	}
	if req.MaxRetries < 0 || req.MaxRetries > 10 {
		writeErr(w, fmt.Errorf("max_retries must be 0-10: %w", engerr.ErrInvalidInput))
		return
	}

	caps := make([]provider.Capability, 0, len(req.RequiredCapabilities))
	for _, c := range req.RequiredCapabilities {
		caps = append(caps, provider.Capability(c))
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second

	id, err := orch.Submit(orchestrator.Task{
		Description: req.Description, Input: req.Input, Priority: priority,
		MaxRetries: req.MaxRetries, Timeout: timeout, Dependencies: req.Dependencies,
		RequiredCapabilities: caps,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := orch.Execute(r.Context(), id); err != nil {
		snap, _ := orch.GetStatus(id)
		writeJSON(w, http.StatusInternalServerError, snapshotView(snap))
		return
	}

	snap, _ := orch.GetStatus(id)
	writeJSON(w, http.StatusOK, snapshotView(snap))
}

func handleGetTask(w http.ResponseWriter, r *http.Request, orch *orchestrator.Orchestrator, id string) {
	snap, ok := orch.GetStatus(id)
	if !ok {
		writeErr(w, fmt.Errorf("task %q: %w", id, engerr.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, snapshotView(snap))
}

func handleCancelTask(w http.ResponseWriter, r *http.Request, orch *orchestrator.Orchestrator, id string) {
	if _, ok := orch.GetStatus(id); !ok {
		writeErr(w, fmt.Errorf("task %q: %w", id, engerr.ErrNotFound))
		return
	}
	orch.Cancel(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func snapshotView(s orchestrator.Snapshot) map[string]any {
	return map[string]any{
		"id": s.ID, "description": s.Description, "status": s.Status, "priority": s.Priority,
		"retry_count": s.RetryCount, "created_at": s.CreatedAt, "started_at": s.StartedAt,
		"completed_at": s.CompletedAt, "assigned_provider": s.AssignedProvider,
		"assigned_model": s.AssignedModel, "result": s.Result, "error": s.Error,
	}
}

type createBatchRequest struct {
	Tasks              []submitTaskRequest `json:"tasks"`
	MaxConcurrentTasks  int                 `json:"max_concurrent_tasks"`
	StopOnFirstFailure  bool                `json:"stop_on_first_failure"`
}

func handleCreateBatch(w http.ResponseWriter, r *http.Request, batchCtl *batch.Controller) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, fmt.Errorf("decode request: %w", engerr.ErrInvalidInput))
		return
	}
	if len(req.Tasks) < 1 || len(req.Tasks) > 100 {
		writeErr(w, fmt.Errorf("batch size must be 1-100: %w", engerr.ErrInvalidInput))
		return
	}

	tasks := make([]orchestrator.Task, 0, len(req.Tasks))
	for _, tr := range req.Tasks {
		priority, err := parsePriority(tr.Priority)
		if err != nil {
			writeErr(w, err)
			return
		}
		caps := make([]provider.Capability, 0, len(tr.RequiredCapabilities))
		for _, c := range tr.RequiredCapabilities {
			caps = append(caps, provider.Capability(c))
		}
		tasks = append(tasks, orchestrator.Task{
			Description: tr.Description, Input: tr.Input, Priority: priority,
			MaxRetries: tr.MaxRetries, Timeout: time.Duration(tr.TimeoutSeconds) * time.Second,
			Dependencies: tr.Dependencies, RequiredCapabilities: caps,
		})
	}

	cfg := batch.DefaultConfig()
	if req.MaxConcurrentTasks > 0 {
		cfg.MaxConcurrentTasks = req.MaxConcurrentTasks
	}
	cfg.StopOnFirstFailure = req.StopOnFirstFailure

	batchID := batchCtl.CreateBatch(tasks, cfg)
	if err := batchCtl.ExecuteBatch(r.Context(), batchID); err != nil {
		writeErr(w, err)
		return
	}

	b, err := batchCtl.GetStatus(batchID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchView(b))
}

func handleGetBatch(w http.ResponseWriter, r *http.Request, batchCtl *batch.Controller, id string) {
	b, err := batchCtl.GetStatus(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchView(b))
}

func handleBatchTasks(w http.ResponseWriter, r *http.Request, batchCtl *batch.Controller, id string) {
	tasks, err := batchCtl.GetTasks(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, map[string]any{"id": t.ID, "description": t.Description, "priority": t.Priority})
	}
	writeJSON(w, http.StatusOK, out)
}

func handleCancelBatch(w http.ResponseWriter, r *http.Request, batchCtl *batch.Controller, id string) {
	if err := batchCtl.Cancel(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func batchView(b *batch.Batch) map[string]any {
	return map[string]any{
		"id": b.ID, "status": b.Status, "started_at": b.StartedAt, "ended_at": b.EndedAt,
		"completed": b.Completed, "failed": b.Failed, "cancelled": b.Cancelled, "results": b.Results,
	}
}

func handleUsageReport(w http.ResponseWriter, r *http.Request, opt *optimizer.ResourceOptimizer) {
	component := r.URL.Query().Get("component")
	report := opt.UsageReport(component, nil, nil)
	writeJSON(w, http.StatusOK, report)
}

func handleOptimize(w http.ResponseWriter, r *http.Request, opt *optimizer.ResourceOptimizer) {
	before := opt.Ledger.Balance()
	optimized := opt.Reallocate()
	var total float64
	for _, v := range optimized {
		total += v
	}
	writeJSON(w, http.StatusOK, map[string]any{"current": before, "optimized": optimized, "total": total})
}
