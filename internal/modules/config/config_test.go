package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"turtle_bot/internal/models"
)

const sample = `
runner:
  queue_size: 8
  queue_policy: block
  tick_interval: 30s
execution:
  max_attempts: 5
  ack_timeout: 2s
risk:
  equity: 1000
  risk_pct: 1
  stop_pct: 10
  max_position_qty: 5
  qty_step: 0.01
strategies:
  - id: t1
    kind: turtle
    enabled: true
    params:
      entry: 20
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Runner.QueueSize)
	assert.Equal(t, "block", cfg.Runner.QueuePolicy)
	assert.Equal(t, 30*time.Second, cfg.Runner.TickInterval)
	assert.Equal(t, 5, cfg.Execution.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Execution.AckTimeout)
	// дефолты не затираются
	assert.Equal(t, 5*time.Second, cfg.Execution.SubmitTimeout)
	assert.Equal(t, "wss://pubwss.bithumb.com/pub/ws", cfg.Exchange.WSURL)

	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, models.StrategyTurtle, cfg.Strategies[0].Kind)
	assert.Equal(t, 20, cfg.Strategies[0].Int("entry", 0))

	risk := cfg.Risk.Model()
	assert.Equal(t, "1000", risk.Equity.String())
	assert.Equal(t, "0.01", risk.QtyStep.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(tokenTelegramENV, "tok")
	t.Setenv(chatTelegramENV, "42")
	t.Setenv(databaseDSN, "postgres://x")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Telegram.Token)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)
	assert.Equal(t, "postgres://x", cfg.DB)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "runner:\n  queue_policy: drop_same_symbol\n"))
	assert.Error(t, err)

	dup := sample + "  - id: t1\n    kind: ema_rsi\n"
	_, err = Load(writeConfig(t, dup))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, sample+"screener:\n  term: weekly\n"))
	assert.Error(t, err)
}

func TestScreenerDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample+"screener:\n  enabled: true\n  term: short\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Screener.Enabled)
	assert.Equal(t, "short", cfg.Screener.Term)
	assert.Equal(t, time.Hour, cfg.Screener.Every)
	assert.Equal(t, 3, cfg.Screener.MinCandles)
}

func TestWatcherReload(t *testing.T) {
	p := writeConfig(t, sample)
	cfg, err := Load(p)
	require.NoError(t, err)

	w := NewWatcher(cfg, zapNop())
	got, err := w.Reload()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, got.Runner.TickInterval)
	require.Len(t, got.Strategies, 1)
	assert.Equal(t, "20", got.Strategies[0].Params["entry"])
}

func zapNop() *zap.Logger { return zap.NewNop() }
