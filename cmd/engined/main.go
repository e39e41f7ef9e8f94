// Command engined is the execution engine's daemon: it wires the
// catalog, container driver, execution store, admission gate,
// executor, reporters, and HTTP surface together, then serves until
// signalled to shut down.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"execengine/internal/admission"
	"execengine/internal/api"
	"execengine/internal/catalog"
	"execengine/internal/config"
	"execengine/internal/containerdriver"
	"execengine/internal/execstore"
	"execengine/internal/executor"
	"execengine/internal/logging"
	"execengine/internal/reporting"
)

func main() {
	logging.Init()
	defer logging.Sync()

	cfg := config.Load()
	logger := logging.L()

	var ready atomic.Bool
	healthRouter := healthOnlyRouter(&ready)
	bootstrapSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: healthRouter}

	go func() {
		logger.Info("starting bootstrap health listener", zap.String("port", cfg.HTTPPort))
		if err := bootstrapSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("bootstrap listener failed", zap.Error(err))
		}
	}()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}

	driver, err := containerdriver.NewDockerDriver(cfg.HookRunnerBinaryPath)
	if err != nil {
		logger.Fatal("failed to connect to container runtime", zap.Error(err))
	}

	store := execstore.New()
	gate := admission.NewGate(cat.Settings().MaxConcurrentExecutions)
	exec := executor.New(cat, gate, store, driver)

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	onReload := func(settings catalog.Settings) {
		gate.SetLimit(settings.MaxConcurrentExecutions)
	}
	if err := cat.Watch(watchCtx, onReload); err != nil {
		logger.Warn("catalog live reload disabled", zap.Error(err))
	}

	handler := &api.Handler{
		Catalog:           cat,
		Store:             store,
		Executor:          exec,
		Admission:         gate,
		ImageReporter:     reporting.NewImageReporter(cat),
		ContainerReporter: reporting.NewContainerReporter(driver),
	}

	router := api.NewRouter(handler, cfg)
	fullSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := bootstrapSrv.Shutdown(context.Background()); err != nil {
		logger.Warn("bootstrap listener shutdown warning", zap.Error(err))
	}

	go func() {
		logger.Info("engine ready, serving full API", zap.String("port", cfg.HTTPPort))
		ready.Store(true)
		if err := fullSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received, draining")
	marked := store.MarkOrphanedUnknown()
	if marked > 0 {
		logger.Warn("marked in-flight executions unknown at shutdown", zap.Int("count", marked))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := fullSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}

	logger.Info("engine shut down")
}

func healthOnlyRouter(ready *atomic.Bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/healthz", func(w http.ResponseWriter, r *http.Request) {
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	return mux
}
