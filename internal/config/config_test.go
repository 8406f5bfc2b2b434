package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// replaceFile swaps path's content atomically so a watcher never sees a
// truncated file.
func replaceFile(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Ledger.Window)
	assert.Equal(t, 20, cfg.Ledger.MaxFreshMints)
	assert.Equal(t, 0.80, cfg.Readiness.Threshold)
	assert.Equal(t, 15*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, 400*time.Millisecond, cfg.Scheduler.SlotDuration())
	assert.Equal(t, 5*time.Millisecond, cfg.Scheduler.TriggerWindow())
	assert.Equal(t, 5000.0, cfg.Risk.MinLiquidityUSD)
	assert.Equal(t, 0.01, cfg.Orders.TPMin)
	assert.Equal(t, 0.03, cfg.Orders.TPMax)
	assert.True(t, cfg.Orders.AutoExecute)
	assert.False(t, cfg.Orders.RepeatOnEntry)
	assert.Equal(t, 100.0, cfg.Orders.EntryCapital)
	assert.Equal(t, 3*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 10, cfg.Monitor.MaxConcurrent)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"5m", "15m", "4h", "8h"}, cfg.Strategy.Timeframes)
	assert.Equal(t, 80.0, cfg.Strategy.Entry.WilliamsRMin)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sniper.yaml", `
rpc:
  http: http://localhost:8899
  programs: [prog1, prog2]
readiness:
  threshold: 0.65
orders:
  tp_min: 0.02
  tp_max: 0.05
  exec_timeout: 10s
  repeat_on_entry: true
  entry_capital: 25
monitor:
  interval: 500ms
`)
	t.Setenv("SNIPER_MONITOR_MAX_CONCURRENT", "4")
	t.Setenv("SNIPER_LEDGER_WINDOW", "6")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8899", cfg.RPC.HTTP)
	assert.Equal(t, []string{"prog1", "prog2"}, cfg.RPC.Programs)
	assert.Equal(t, 0.65, cfg.Readiness.Threshold)
	assert.Equal(t, 0.02, cfg.Orders.TPMin)
	assert.Equal(t, 0.05, cfg.Orders.TPMax)
	assert.Equal(t, 10*time.Second, cfg.Orders.ExecTimeout)
	assert.True(t, cfg.Orders.RepeatOnEntry)
	assert.Equal(t, 25.0, cfg.Orders.EntryCapital)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, 4, cfg.Monitor.MaxConcurrent, "env overrides defaults")
	assert.Equal(t, 6, cfg.Ledger.Window)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sniper.yaml", "readiness:\n  threshold: 0.65\n")
	t.Setenv("SNIPER_READINESS_THRESHOLD", "0.9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Readiness.Threshold)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"threshold above one", "readiness:\n  threshold: 1.5\n", "readiness.threshold"},
		{"tp range inverted", "orders:\n  tp_min: 0.05\n  tp_max: 0.01\n", "orders.tp_min"},
		{"no entry capital", "orders:\n  entry_capital: -1\n", "orders.entry_capital"},
		{"unknown backend", "storage:\n  backend: sqlite\n", "storage.backend"},
		{"postgres without dsn", "storage:\n  backend: postgres\n", "postgres_dsn"},
		{"trigger window past slot", "scheduler:\n  trigger_window_ms: 400\n", "trigger_window_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "sniper.yaml", tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "SNIPER_HTTP_ADDR=:9999\n")

	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("SNIPER_HTTP_ADDR") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestConfig_YAML(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Monitor.RedisPassword = "hunter2"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, 0.8, doc["readiness"]["threshold"])
	assert.Equal(t, 0.01, doc["orders"]["tp_min"], "follow-up fields are inlined")
	assert.Equal(t, "memory", doc["storage"]["backend"])
}

func TestWatch_Reload(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sniper.yaml", "readiness:\n  threshold: 0.7\n")

	var last atomic.Value
	w, err := Watch(path, func(c *Config) {
		last.Store(c.Readiness.Threshold)
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.7, w.Current().Readiness.Threshold)

	replaceFile(t, path, "readiness:\n  threshold: 0.5\n")
	require.Eventually(t, func() bool {
		v, ok := last.Load().(float64)
		return ok && v == 0.5
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0.5, w.Current().Readiness.Threshold)

	// An invalid revision keeps the last valid config.
	replaceFile(t, path, "readiness:\n  threshold: 7\n")
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0.5, last.Load())
	assert.Equal(t, 0.5, w.Current().Readiness.Threshold)
}

func TestWatch_RequiresPath(t *testing.T) {
	_, err := Watch("", nil, nil)
	assert.Error(t, err)
}
