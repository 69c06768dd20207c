// Package watcher runs the long-lived resolution daemon: it watches the
// configuration file, re-resolves the connection policy on every change,
// audits the outcome, and serves the current decision over HTTP.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polisai/tlsgate/pkg/config"
	"github.com/polisai/tlsgate/pkg/policy"
	"github.com/polisai/tlsgate/pkg/telemetry"
	"github.com/polisai/tlsgate/pkg/tlspolicy"
)

// Snapshot is one resolution outcome with its audit verdict.
type Snapshot struct {
	ID         string           `json:"id"`
	Mode       tlspolicy.Mode   `json:"mode"`
	Options    []SnapshotOption `json:"options,omitempty"`
	Cause      string           `json:"cause,omitempty"`
	Verdict    *policy.Verdict  `json:"verdict,omitempty"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// SnapshotOption is one resolved option entry in document order.
type SnapshotOption struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Watcher re-resolves the connection policy whenever the configuration
// changes and exposes the latest snapshot.
type Watcher struct {
	loader     *config.Loader
	resolver   *tlspolicy.Resolver
	gate       *policy.Gate
	logger     *slog.Logger
	metrics    *Metrics
	collector  *telemetry.ResolutionMetrics
	httpServer *http.Server
	listenAddr string

	mu       sync.RWMutex
	current  *Snapshot
	stopOnce sync.Once
}

// Options configure a Watcher. Loader and Resolver are required; the gate,
// OTel collector, and metrics listener are optional.
type Options struct {
	Loader     *config.Loader
	Resolver   *tlspolicy.Resolver
	Gate       *policy.Gate
	Collector  *telemetry.ResolutionMetrics
	ListenAddr string
	Logger     *slog.Logger
}

// New creates a watcher instance.
func New(opts Options) (*Watcher, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("watcher requires a config loader")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("watcher requires a resolver")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		loader:     opts.Loader,
		resolver:   opts.Resolver,
		gate:       opts.Gate,
		collector:  opts.Collector,
		listenAddr: opts.ListenAddr,
		logger:     logger,
		metrics:    NewMetrics(),
	}, nil
}

// Start resolves once from the current configuration, begins watching for
// changes, and serves HTTP until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	cfg := w.loader.Current()
	if cfg == nil {
		loaded, err := w.loader.Load()
		if err != nil {
			return fmt.Errorf("initial config load: %w", err)
		}
		cfg = loaded
	}

	w.resolveAndStore(ctx, cfg)

	if err := w.loader.Watch(func(updated *config.FileConfig) {
		w.metrics.RecordConfigReload("success")
		w.logger.Info("configuration reloaded, re-resolving")
		w.resolveAndStore(ctx, updated)
	}, func(err error) {
		w.metrics.RecordConfigReload("failure")
		w.logger.Warn("configuration reload rejected, keeping previous document", "error", err)
	}); err != nil {
		return fmt.Errorf("start config watch: %w", err)
	}

	if w.listenAddr == "" {
		<-ctx.Done()
		return w.Stop(context.Background())
	}

	mux := http.NewServeMux()
	w.setupRoutes(mux)

	w.httpServer = &http.Server{
		Addr:              w.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		w.logger.Info("HTTP server starting", "addr", w.listenAddr)
		if err := w.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		return w.Stop(context.Background())
	}
}

// Stop gracefully stops the watcher.
func (w *Watcher) Stop(ctx context.Context) error {
	var err error
	w.stopOnce.Do(func() {
		w.logger.Info("stopping watcher")

		if closeErr := w.loader.Close(); closeErr != nil {
			w.logger.Error("failed to close config loader", "error", closeErr)
			err = closeErr
		}

		if w.httpServer != nil {
			if stopErr := w.httpServer.Shutdown(ctx); stopErr != nil {
				w.logger.Error("failed to shut down HTTP server", "error", stopErr)
				err = stopErr
			}
		}
	})
	return err
}

// Current returns the latest snapshot, or nil before the first resolution.
func (w *Watcher) Current() *Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) resolveAndStore(ctx context.Context, cfg *config.FileConfig) {
	started := time.Now()
	decision := w.resolver.Resolve(ctx, cfg.TLS.Policy())
	elapsed := time.Since(started)

	snapshot := &Snapshot{
		ID:         uuid.NewString(),
		Mode:       decision.Mode,
		ResolvedAt: started,
	}
	for _, opt := range decision.Options {
		snapshot.Options = append(snapshot.Options, SnapshotOption{Key: opt.Key, Value: opt.Value})
	}
	if decision.Cause != nil {
		snapshot.Cause = decision.Cause.Error()
	}

	if w.gate != nil {
		verdict, err := w.gate.Check(ctx, decision)
		if err != nil {
			w.logger.Error("audit gate evaluation failed",
				"resolution_id", snapshot.ID,
				"error", err)
		} else {
			snapshot.Verdict = &verdict
			if !verdict.Allow {
				w.logger.Warn("audit gate denied resolved policy",
					"resolution_id", snapshot.ID,
					"mode", decision.Mode,
					"reason", verdict.Reason)
			}
		}
	}

	w.metrics.RecordResolution(string(decision.Mode), len(decision.Options), elapsed)
	if w.collector != nil {
		w.collector.RecordResolution(ctx, string(decision.Mode), len(decision.Options))
		if provider := cfg.TLS.Provider; provider != nil {
			// The static merge is trivial, so the resolve duration is the
			// provider call duration for all practical purposes.
			w.collector.RecordProviderCall(ctx, provider.Target, elapsed, decision.Cause)
		}
	}

	w.mu.Lock()
	w.current = snapshot
	w.mu.Unlock()

	if decision.Mode == tlspolicy.ModeFailed {
		w.logger.Error("resolution failed",
			"resolution_id", snapshot.ID,
			"cause", decision.Cause)
		return
	}

	w.logger.Info("policy resolved",
		"resolution_id", snapshot.ID,
		"mode", decision.Mode,
		"options", len(decision.Options),
		"duration", elapsed)
}

func (w *Watcher) setupRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", w.metrics.Handler())
	mux.HandleFunc("/healthz", w.handleHealth)
	mux.HandleFunc("/decision", w.handleDecision)
}

func (w *Watcher) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	current := w.Current()

	status := "healthy"
	code := http.StatusOK
	if current == nil || current.Mode == tlspolicy.ModeFailed {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(map[string]string{"status": status})
}

func (w *Watcher) handleDecision(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	current := w.Current()
	if current == nil {
		http.Error(rw, "no resolution yet", http.StatusServiceUnavailable)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(current); err != nil {
		w.logger.Error("failed to encode decision", "error", err)
	}
}
