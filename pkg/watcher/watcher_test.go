package watcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/polisai/tlsgate/pkg/config"
	"github.com/polisai/tlsgate/pkg/policy"
	"github.com/polisai/tlsgate/pkg/telemetry"
	"github.com/polisai/tlsgate/pkg/tlspolicy"
	"github.com/polisai/tlsgate/pkg/tlspolicy/providers"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tlsgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestWatcher(t *testing.T, configYAML string) *Watcher {
	t.Helper()

	loader, err := config.NewLoader(writeConfigFile(t, configYAML))
	require.NoError(t, err)
	_, err = loader.Load()
	require.NoError(t, err)

	w, err := New(Options{
		Loader:   loader,
		Resolver: tlspolicy.NewResolver(providers.Builtin()),
	})
	require.NoError(t, err)
	return w
}

func TestNewRequiresLoaderAndResolver(t *testing.T) {
	_, err := New(Options{Resolver: tlspolicy.NewResolver(nil)})
	require.Error(t, err)

	loader, err := config.NewLoader(writeConfigFile(t, "tls:\n  enabled: true\n"))
	require.NoError(t, err)
	_, err = New(Options{Loader: loader})
	require.Error(t, err)
}

func TestWatcherResolvesOnStart(t *testing.T) {
	w := newTestWatcher(t, `
tls:
  enabled: true
  options:
    verify: verify_peer
    cacertfile: /etc/ssl/ca.pem
`)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		return w.Current() != nil
	}, 2*time.Second, 10*time.Millisecond)

	snapshot := w.Current()
	assert.Equal(t, tlspolicy.ModeRequired, snapshot.Mode)
	assert.NotEmpty(t, snapshot.ID)
	require.Len(t, snapshot.Options, 2)
	assert.Equal(t, "verify", snapshot.Options[0].Key)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherFailedResolution(t *testing.T) {
	w := newTestWatcher(t, `
tls:
  enabled: true
  provider:
    target: env
    args:
      - verify=TLSGATE_MISSING_TEST_VAR
`)

	cfg := w.loader.Current()
	require.NotNil(t, cfg)
	w.resolveAndStore(context.Background(), cfg)

	snapshot := w.Current()
	require.NotNil(t, snapshot)
	assert.Equal(t, tlspolicy.ModeFailed, snapshot.Mode)
	assert.NotEmpty(t, snapshot.Cause)
}

func TestHandleDecision(t *testing.T) {
	w := newTestWatcher(t, `
tls:
  enabled: true
  optional: true
  options:
    verify: verify_peer
`)
	w.resolveAndStore(context.Background(), w.loader.Current())

	rec := httptest.NewRecorder()
	w.handleDecision(rec, httptest.NewRequest(http.MethodGet, "/decision", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, tlspolicy.ModeOptional, snapshot.Mode)
}

func TestHandleDecisionBeforeResolution(t *testing.T) {
	w := newTestWatcher(t, "tls:\n  enabled: true\n")

	rec := httptest.NewRecorder()
	w.handleDecision(rec, httptest.NewRequest(http.MethodGet, "/decision", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleDecisionRejectsPost(t *testing.T) {
	w := newTestWatcher(t, "tls:\n  enabled: true\n")
	w.resolveAndStore(context.Background(), w.loader.Current())

	rec := httptest.NewRecorder()
	w.handleDecision(rec, httptest.NewRequest(http.MethodPost, "/decision", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	w := newTestWatcher(t, "tls:\n  enabled: true\n")

	rec := httptest.NewRecorder()
	w.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	w.resolveAndStore(context.Background(), w.loader.Current())

	rec = httptest.NewRecorder()
	w.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.RecordResolution("required", 2, 5*time.Millisecond)
	m.RecordConfigReload("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "tlsgate_watcher_resolutions_total")
	assert.Contains(t, body, "tlsgate_watcher_config_reloads_total")
}

func TestWatcherReloadsOnConfigChange(t *testing.T) {
	path := writeConfigFile(t, `
tls:
  enabled: true
  options:
    verify: verify_peer
`)

	loader, err := config.NewLoader(path)
	require.NoError(t, err)
	_, err = loader.Load()
	require.NoError(t, err)

	w, err := New(Options{
		Loader:   loader,
		Resolver: tlspolicy.NewResolver(providers.Builtin()),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		current := w.Current()
		return current != nil && current.Mode == tlspolicy.ModeRequired
	}, 2*time.Second, 10*time.Millisecond)

	first := w.Current().ID

	require.NoError(t, os.WriteFile(path, []byte(`
tls:
  enabled: true
  optional: true
  options:
    verify: verify_peer
`), 0o600))

	require.Eventually(t, func() bool {
		current := w.Current()
		return current != nil && current.Mode == tlspolicy.ModeOptional
	}, 5*time.Second, 20*time.Millisecond)

	assert.NotEqual(t, first, w.Current().ID)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func newTestCollector(t *testing.T) (*telemetry.ResolutionMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	collector, err := telemetry.NewResolutionMetrics(nil)
	require.NoError(t, err)
	return collector, reader
}

func findExportedMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestResolveRecordsProviderMetrics(t *testing.T) {
	t.Setenv("TLSGATE_WATCHER_TEST_VERIFY", "verify_peer")

	w := newTestWatcher(t, `
tls:
  enabled: true
  provider:
    target: env
    args:
      - verify=TLSGATE_WATCHER_TEST_VERIFY
`)
	collector, reader := newTestCollector(t)
	w.collector = collector

	w.resolveAndStore(context.Background(), w.loader.Current())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	duration, ok := findExportedMetric(rm, "tlsgate_provider_duration_seconds")
	require.True(t, ok, "provider duration histogram not exported")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	target, ok := hist.DataPoints[0].Attributes.Value("target")
	require.True(t, ok)
	assert.Equal(t, "env", target.AsString())

	// A successful call must not count as an error.
	errCounter, ok := findExportedMetric(rm, "tlsgate_provider_errors_total")
	if ok {
		sum, isSum := errCounter.Data.(metricdata.Sum[int64])
		require.True(t, isSum)
		for _, point := range sum.DataPoints {
			assert.Zero(t, point.Value)
		}
	}
}

func TestResolveRecordsProviderFailure(t *testing.T) {
	w := newTestWatcher(t, `
tls:
  enabled: true
  provider:
    target: env
    args:
      - verify=TLSGATE_WATCHER_ABSENT_VAR
`)
	collector, reader := newTestCollector(t)
	w.collector = collector

	w.resolveAndStore(context.Background(), w.loader.Current())
	require.Equal(t, tlspolicy.ModeFailed, w.Current().Mode)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	errCounter, ok := findExportedMetric(rm, "tlsgate_provider_errors_total")
	require.True(t, ok, "provider error counter not exported")
	sum, ok := errCounter.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestWatcherRecordsFailedReload(t *testing.T) {
	path := writeConfigFile(t, "tls:\n  enabled: true\n")

	loader, err := config.NewLoader(path)
	require.NoError(t, err)
	_, err = loader.Load()
	require.NoError(t, err)

	w, err := New(Options{
		Loader:   loader,
		Resolver: tlspolicy.NewResolver(providers.Builtin()),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		return w.Current() != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("tls: [broken\n"), 0o600))

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		w.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Code == http.StatusOK && containsReloadFailure(rec.Body.String())
	}, 5*time.Second, 20*time.Millisecond)

	// The broken document must not replace the current snapshot.
	assert.NotEqual(t, tlspolicy.ModeFailed, w.Current().Mode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func containsReloadFailure(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, `tlsgate_watcher_config_reloads_total{status="failure"}`) &&
			!strings.HasSuffix(line, " 0") {
			return true
		}
	}
	return false
}

func TestStopIsIdempotent(t *testing.T) {
	w := newTestWatcher(t, "tls:\n  enabled: true\n")

	require.NoError(t, w.Stop(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
}

func newDenyAllGate(t *testing.T) *policy.Gate {
	t.Helper()
	gate, err := policy.NewGate(context.Background(), policy.GateOptions{
		Modules: map[string]string{"deny.rego": `package tlsgate

import rego.v1

default decision := {"allow": false, "reason": "denied by policy"}
`},
	})
	require.NoError(t, err)
	return gate
}

func TestWatcherRecordsGateDenial(t *testing.T) {
	// The gate is exercised end to end in pkg/policy; here we only check
	// that a denied verdict lands in the snapshot.
	w := newTestWatcher(t, `
tls:
  enabled: true
  options:
    verify: verify_none
`)

	gate := newDenyAllGate(t)
	w.gate = gate

	w.resolveAndStore(context.Background(), w.loader.Current())

	snapshot := w.Current()
	require.NotNil(t, snapshot)
	require.NotNil(t, snapshot.Verdict)
	assert.False(t, snapshot.Verdict.Allow)
}
