package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wealthywise/internal/core"
	"wealthywise/internal/log"
)

// SweeperConfig holds configuration for the drift sweeper
type SweeperConfig struct {
	// Interval is how often every account is checked (default: 1h)
	Interval time.Duration

	// Correct rewrites drifted balances instead of only reporting them
	Correct bool
}

// DefaultSweeperConfig returns sensible defaults
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: time.Hour,
	}
}

// SweepReport summarises one pass over all accounts.
type SweepReport struct {
	Checked   int
	Drifted   int
	Corrected int
	Failed    int
}

// Sweeper periodically compares every stored balance against its history.
type Sweeper struct {
	reconciler *Reconciler
	config     SweeperConfig
	log        *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweeper(reconciler *Reconciler, config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	logger := log.Discard()
	if reconciler != nil {
		logger = reconciler.opts.Logger
	}
	return &Sweeper{
		reconciler: reconciler,
		config:     config,
		log:        logger.WithComponent(log.ComponentSweeper),
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.log.InfoContext(ctx, "Drift sweeper started",
		"interval", s.config.Interval,
		"correct", s.config.Correct)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.log.InfoContext(ctx, "Drift sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.log.WarnContext(ctx, "Drift sweeper stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the sweeper is currently running
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	// Cancel the pass in flight when stopped.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.ErrorContext(ctx, "Drift sweep failed", log.FieldError, err)
			}
		}
	}
}

// Sweep checks, or corrects, every account once.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	ids, err := s.reconciler.AllAccountIDs(ctx)
	if err != nil {
		return SweepReport{}, err
	}
	rep := SweepReport{Checked: len(ids)}

	if s.config.Correct {
		results, err := s.reconciler.RecalculateMany(ctx, ids)
		for _, r := range results {
			switch {
			case r.Err != nil:
				rep.Failed++
			case r.Corrected():
				rep.Drifted++
				rep.Corrected++
			}
		}
		s.logReport(ctx, rep)
		return rep, err
	}

	drifts, errs, err := s.reconciler.CheckMany(ctx, ids)
	for i, d := range drifts {
		if errs[i] != nil {
			rep.Failed++
			continue
		}
		if d.HasDrift() {
			rep.Drifted++
			s.logDrift(ctx, d)
		}
	}
	s.logReport(ctx, rep)
	return rep, err
}

func (s *Sweeper) logReport(ctx context.Context, rep SweepReport) {
	level := slog.LevelInfo
	if rep.Drifted > 0 || rep.Failed > 0 {
		level = slog.LevelWarn
	}
	s.log.LogContext(ctx, level, "Drift sweep completed",
		"checked", rep.Checked,
		"drifted", rep.Drifted,
		"corrected", rep.Corrected,
		"failed", rep.Failed)
}

func (s *Sweeper) logDrift(ctx context.Context, d core.Drift) {
	s.log.WarnContext(ctx, "Balance drift detected",
		log.FieldAccountID, d.AccountID,
		"stored", d.Stored.String(),
		"recalculated", d.Recalculated.String(),
		"difference", d.Difference().String())
}
