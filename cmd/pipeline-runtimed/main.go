// Command pipeline-runtimed runs the Edge Pipeline Runtime: it wires the
// configured PropertySource chain into a Variable Resolver, builds a
// Pipeline Manager over the `pipelines` property, attaches a Retry
// Supervisor, and exposes a peripheral admin REST surface for operators.
// The admin surface has no pipeline semantics of its own; it is a thin
// front door onto pkg/manager.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/edgepipe/runtime/internal/config"
	"github.com/edgepipe/runtime/internal/logging"
	"github.com/edgepipe/runtime/pkg/graph/fakeframework"
	"github.com/edgepipe/runtime/pkg/manager"
	"github.com/edgepipe/runtime/pkg/retry"
	"github.com/edgepipe/runtime/pkg/variable"
)

func main() {
	configPath := flag.String("config", "/etc/edgepipe/runtime.yaml", "path to the runtime bootstrap config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}

	sources, err := buildSources(cfg, log)
	if err != nil {
		return fmt.Errorf("build property sources: %w", err)
	}
	resolver := variable.NewResolver(log, sources...)

	// NOTE: the real streaming-framework binding is out of scope (see
	// SPEC_FULL.md's Non-goals); this wires the same fake framework the test
	// suites use, so the admin surface and reconciliation loop are fully
	// exercised end-to-end without an external media dependency.
	mgr := manager.New(resolver, fakeframework.New(), log)
	if err := mgr.Initialize(context.Background()); err != nil {
		log.Error(err, "initialize: one or more pipelines failed to build")
	}

	policyRaw, err := config.ReadSeedFile(cfg.RetryFile)
	if err != nil {
		return fmt.Errorf("read retry seed file: %w", err)
	}
	policy := retry.DecodePolicy(policyRaw, log)
	supervisor := retry.NewSupervisor(policy, log)
	mgr.SetRetryMechanism(supervisor)

	if err := mgr.Start(context.Background()); err != nil {
		log.Error(err, "start: one or more pipelines failed to start")
	}

	srv := &http.Server{
		Addr:    cfg.Admin.Addr,
		Handler: newRouter(mgr),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("admin server listening", "addr", cfg.Admin.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("admin server: %w", err)
	case <-sigCh:
		log.Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "admin server shutdown error")
	}
	_ = mgr.Stop(context.Background())
	return nil
}

func buildSources(cfg *config.RuntimeConfig, log logr.Logger) ([]variable.PropertySource, error) {
	var sources []variable.PropertySource

	if cfg.Sources.CLI {
		sources = append(sources, variable.NewCLISource(os.Args[1:]))
	}

	if cfg.Sources.File.Enabled {
		fs, err := variable.NewFileSource(cfg.Sources.File.Path, log)
		if err != nil {
			return nil, fmt.Errorf("file source: %w", err)
		}
		sources = append(sources, fs)
	}

	if cfg.Sources.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Sources.Redis.Addr})
		sources = append(sources, variable.NewRedisSource(client, cfg.Sources.Redis.Prefix))
	}

	if cfg.Sources.SQL.Enabled {
		driver := cfg.Sources.SQL.Driver
		if driver == "" {
			driver = "postgres"
		}
		db, err := sqlx.Open(driver, cfg.Sources.SQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("sql source: %w", err)
		}
		sources = append(sources, variable.NewSQLSource(db))
	}

	pipelinesRaw, err := config.ReadSeedFile(cfg.PipelinesFile)
	if err != nil {
		return nil, err
	}
	mem := variable.NewMemorySource()
	if len(pipelinesRaw) > 0 {
		mem.Set(variable.Variable{Name: "pipelines", Kind: variable.KindJSON, Value: string(pipelinesRaw)})
	}
	sources = append(sources, mem)

	return sources, nil
}

func newRouter(mgr *manager.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/pipelines", func(r chi.Router) {
		r.Get("/", listPipelines(mgr))
		r.Post("/", addPipeline(mgr))
		r.Put("/{id}", updatePipeline(mgr))
		r.Delete("/{id}", removePipeline(mgr))
	})
	r.Post("/refresh", refresh(mgr))

	return r
}

func listPipelines(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type item struct {
			ID    string `json:"id"`
			State string `json:"state"`
		}
		var items []item
		for _, id := range mgr.IDs() {
			status, _ := mgr.Status(id)
			items = append(items, item{ID: id, State: status.State.String()})
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func addPipeline(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var desc manager.PipelineDescription
		if err := decodeJSON(r, &desc); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if err := mgr.Add(ctx, desc); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func updatePipeline(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var desc manager.PipelineDescription
		if err := decodeJSON(r, &desc); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		desc.ID = id
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if err := mgr.Update(ctx, desc); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func removePipeline(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if err := mgr.Remove(ctx, id); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func refresh(mgr *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		if err := mgr.Refresh(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
