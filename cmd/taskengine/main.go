// Command taskengine runs the model-agnostic task orchestration and
// resource-optimization engine as an HTTP service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"

	"github.com/swarmguard/taskengine/internal/core/batch"
	"github.com/swarmguard/taskengine/internal/core/engerr"
	"github.com/swarmguard/taskengine/internal/core/optimizer"
	"github.com/swarmguard/taskengine/internal/core/orchestrator"
	"github.com/swarmguard/taskengine/internal/platform/logging"
	"github.com/swarmguard/taskengine/internal/platform/otelinit"
	"github.com/swarmguard/taskengine/internal/provider"
)

func main() {
	service := "taskengine"
	logging.Init(service)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := otelinit.InitTracer(ctx, service)
	shutdownMetrics, _ := otelinit.InitMetrics(ctx, service)
	meter := otel.GetMeterProvider().Meter("taskengine")

	registry := provider.NewRegistry()
	roles := provider.NewRoleManager(registry)

	var budgetCap *float64
	if v := os.Getenv("TASKENGINE_BUDGET_CAP"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			budgetCap = &parsed
		}
	}

	db, err := openDB()
	if err != nil {
		slog.Error("bbolt open failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	opt, err := optimizer.New(registry, budgetCap, db)
	if err != nil {
		slog.Error("resource optimizer init failed", "error", err)
		os.Exit(1)
	}

	executor := orchestrator.NewModelTaskExecutor(opt, registry, roles)
	orch := orchestrator.New(executor, meter)

	batchesEnabled := envEnabled("TASKENGINE_ENABLE_BATCHES", true)
	sleepEnabled := envEnabled("TASKENGINE_ENABLE_SLEEP_OPTIMIZER", true)

	var batchCtl *batch.Controller
	if batchesEnabled {
		batchCtl = batch.New(orch, meter)
	}

	var sleepOpt *sleepBundle
	if sleepEnabled {
		sleepOpt = newSleepBundle(meter)
		sleepOpt.optimizer.Start()
		defer sleepOpt.optimizer.Stop()
	}

	srv := newServer(registry, roles, opt, orch, batchCtl, sleepOpt, batchesEnabled, sleepEnabled)

	addr := os.Getenv("TASKENGINE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	go func() {
		slog.Info("taskengine listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	opt.StopPeriodic(shutdownCtx)
	otelinit.Flush(shutdownCtx, shutdownTrace)
	_ = shutdownMetrics(shutdownCtx)
	slog.Info("shutdown complete")
}

func openDB() (*bbolt.DB, error) {
	path := os.Getenv("TASKENGINE_DB_PATH")
	if path == "" {
		return nil, nil
	}
	return bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
}

func envEnabled(key string, def bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engerr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, engerr.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, engerr.ErrDependencyUnsatisfied):
		status = http.StatusConflict
	case errors.Is(err, engerr.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
	case errors.Is(err, engerr.ErrNoProvider), errors.Is(err, engerr.ErrNoAffordable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, engerr.ErrFeatureDisabled):
		status = http.StatusForbidden
	case errors.Is(err, engerr.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
