// Package monitor provides scheduled health monitoring for workflows.
// A Monitor probes registered workflow engines on a cron schedule,
// fanning probes out concurrently with a bounded rate, and reports each
// health snapshot through structured logs and an optional callback.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/stepflow/engine"
)

// HealthProber reports a workflow's health. *engine.Engine satisfies it.
//
// The engine itself is not safe for concurrent use; do not drive an engine
// while the monitor probes it unless the prober adds its own
// synchronization.
type HealthProber interface {
	Health(ctx context.Context) (*engine.Health, error)
}

// Reporter receives each health snapshot the monitor collects.
type Reporter func(ctx context.Context, name string, h *engine.Health)

// cronParser supports standard 5-field cron and descriptors like
// "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTickInterval sets how often the monitor checks whether the schedule
// is due. Defaults to one second.
func WithTickInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.tickInterval = d
		}
	}
}

// WithProbeRate caps how fast probes are issued across all targets during
// one sweep. Defaults to 10 probes per second.
func WithProbeRate(r rate.Limit, burst int) Option {
	return func(m *Monitor) { m.limiter = rate.NewLimiter(r, burst) }
}

// WithConcurrency bounds how many probes run at once during a sweep.
// Defaults to 4.
func WithConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithReporter installs a callback invoked with every collected snapshot.
func WithReporter(r Reporter) Option {
	return func(m *Monitor) { m.reporter = r }
}

type target struct {
	name   string
	prober HealthProber
}

// Monitor probes registered workflows for health on a cron schedule.
type Monitor struct {
	schedule     cronlib.Schedule
	tickInterval time.Duration
	limiter      *rate.Limiter
	concurrency  int
	reporter     Reporter
	logger       *slog.Logger

	mu      sync.RWMutex
	targets []target
	nextRun time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Monitor firing on the given cron schedule expression.
func New(scheduleExpr string, opts ...Option) (*Monitor, error) {
	sched, err := ParseSchedule(scheduleExpr)
	if err != nil {
		return nil, fmt.Errorf("stepflow/monitor: parse schedule %q: %w", scheduleExpr, err)
	}

	m := &Monitor{
		schedule:     sched,
		tickInterval: time.Second,
		limiter:      rate.NewLimiter(10, 1),
		concurrency:  4,
		logger:       slog.Default(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Register adds a named workflow to the probe set.
func (m *Monitor) Register(name string, p HealthProber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = append(m.targets, target{name: name, prober: p})
}

// Start launches the tick loop.
func (m *Monitor) Start(_ context.Context) error {
	m.nextRun = m.schedule.Next(time.Now().UTC())
	m.wg.Add(1)
	go m.tickLoop()
	m.logger.Info("health monitor started",
		slog.Duration("tick_interval", m.tickInterval),
		slog.Time("next_run", m.nextRun),
	)
	return nil
}

// Stop signals the monitor to stop and waits for the loop to finish.
func (m *Monitor) Stop(_ context.Context) error {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
	return nil
}

// tickLoop fires on each tick interval and sweeps when the schedule is due.
func (m *Monitor) tickLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if now.Before(m.nextRun) {
				continue
			}
			if err := m.ProbeNow(context.Background()); err != nil {
				m.logger.Warn("health sweep error", slog.String("error", err.Error()))
			}
			m.nextRun = m.schedule.Next(now)
		}
	}
}

// ProbeNow sweeps every registered target immediately, concurrently and
// rate-limited, reporting each snapshot. It returns the first probe error
// after all probes finish.
func (m *Monitor) ProbeNow(ctx context.Context) error {
	m.mu.RLock()
	targets := append([]target(nil), m.targets...)
	m.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			if err := m.limiter.Wait(ctx); err != nil {
				return err
			}
			h, err := t.prober.Health(ctx)
			if err != nil {
				m.logger.Warn("health probe failed",
					slog.String("workflow", t.name),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("stepflow/monitor: probe %s: %w", t.name, err)
			}
			m.report(ctx, t.name, h)
			return nil
		})
	}
	return g.Wait()
}

// report logs a snapshot and forwards it to the reporter callback.
func (m *Monitor) report(ctx context.Context, name string, h *engine.Health) {
	attrs := []any{
		slog.String("workflow", name),
		slog.String("status", h.Status),
		slog.Float64("progress", h.ProgressPercentage),
		slog.Int("completed", h.CompletedSteps),
		slog.Int("total", h.TotalSteps),
	}
	if h.HasNextStep {
		attrs = append(attrs, slog.Int("next_step", h.NextStep))
	}
	if len(h.FailedSteps) > 0 {
		attrs = append(attrs, slog.Any("failed_steps", h.FailedSteps))
	}

	switch h.Status {
	case engine.HealthCritical:
		m.logger.Error("workflow health", attrs...)
	case engine.HealthWarning:
		m.logger.Warn("workflow health", attrs...)
	default:
		m.logger.Info("workflow health", attrs...)
	}

	if m.reporter != nil {
		m.reporter(ctx, name, h)
	}
}
