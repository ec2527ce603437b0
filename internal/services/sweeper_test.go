package services

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wealthywise/internal/log"
	"wealthywise/internal/storage/memory"
)

func TestSweeper_Sweep(t *testing.T) {
	f := newFixture(memory.New())
	ctx := context.Background()
	a := f.newAccount(t, "u1", "Main", "100")
	f.newAccount(t, "u2", "Other", "10")

	_, err := f.registry.SetBalance(ctx, "u1", a.ID, dec("60"))
	require.NoError(t, err)

	rep, err := NewSweeper(f.reconciler, SweeperConfig{Interval: time.Hour}).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 2, Drifted: 1}, rep)
	assert.Equal(t, "60.00", f.balance(t, a.ID))

	rep, err = NewSweeper(f.reconciler, SweeperConfig{Interval: time.Hour, Correct: true}).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 2, Drifted: 1, Corrected: 1}, rep)
	assert.Equal(t, "100.00", f.balance(t, a.ID))
}

func TestSweeper_StartStop(t *testing.T) {
	f := newFixture(memory.New())
	s := NewSweeper(f.reconciler, SweeperConfig{Interval: 10 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop(ctx))
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	s := NewSweeper(nil, SweeperConfig{})
	assert.Equal(t, time.Hour, s.config.Interval)
}

func TestSweeper_LogsThroughComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(memory.New())
	f.opts.Logger = log.New(log.Config{Level: slog.LevelInfo, Format: "json", Output: &buf})
	reconciler := NewReconciler(f.store, f.opts, 1)

	a := f.newAccount(t, "u1", "Main", "30")
	_, err := f.registry.SetBalance(context.Background(), "u1", a.ID, dec("31"))
	require.NoError(t, err)

	_, err = NewSweeper(reconciler, SweeperConfig{}).Sweep(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"Balance drift detected"`)
	assert.Contains(t, out, `"component":"sweeper"`)
	assert.Contains(t, out, `"account_id":"`+a.ID+`"`)
	assert.Contains(t, out, `"msg":"Drift sweep completed"`)
}
