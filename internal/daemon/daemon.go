// Package daemon implements the long-running control loop (C13) shared by
// the posttrade and OHLCV CLI surfaces: PID-file liveness checking, signal
// handling, trading-hours gating with an initial-fetch exception, and a
// maintenance cadence wrapped around a fetch cycle.
//
// Grounded on _examples/chenjiangme-jupitor/internal/gather/us/alpaca.go's
// DailyBarGatherer.Run for the Go-side loop/select shape, and
// _examples/original_source/src/yf_parqed/xetra_cli.py's daemon branch for
// the PID-file and initial-fetch semantics.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"marketvault/internal/tradinghours"
)

// Cadence controls how often maintenance (e.g. registry sweeps) runs
// alongside the regular fetch cycle.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
	CadenceNever   Cadence = "never"
)

// due reports whether maintenance should run again given when it last ran.
func (c Cadence) due(lastRun, now time.Time) bool {
	switch c {
	case CadenceDaily:
		return now.Sub(lastRun) >= 24*time.Hour
	case CadenceWeekly:
		return now.Sub(lastRun) >= 7*24*time.Hour
	case CadenceMonthly:
		return now.Sub(lastRun) >= 30*24*time.Hour
	default:
		return false
	}
}

// Config parameterizes a Daemon run.
type Config struct {
	FetchInterval time.Duration // sleep between fetch cycles
	Hours         *tradinghours.Checker
	Cadence       Cadence
	PIDFile       string // empty disables PID-file liveness checking

	// FetchCycle performs one fetch (C6's FetchAndStoreMissing or C9's
	// Scheduler.Run). Its error is logged, never fatal to the daemon.
	FetchCycle func(ctx context.Context) error

	// Maintenance runs registry sweeps. Nil disables maintenance
	// regardless of Cadence.
	Maintenance func(ctx context.Context) error

	// HasAnyData implements the posttrade-only initial-fetch exception
	// (§4.13 step 3): when non-nil and it reports false, one fetch cycle
	// runs immediately regardless of trading hours.
	HasAnyData func(ctx context.Context) (bool, error)

	Now func() time.Time // defaults to time.Now
}

// Daemon drives Config.FetchCycle on a schedule until its context is
// cancelled, honoring trading hours and a maintenance cadence.
type Daemon struct {
	cfg         Config
	log         *slog.Logger
	lastMaint   time.Time
	pidWritten  bool
	nowFn       func() time.Time
	shutdownMsg string
}

// New constructs a Daemon. cfg.FetchCycle must be non-nil.
func New(cfg Config, log *slog.Logger) (*Daemon, error) {
	if cfg.FetchCycle == nil {
		return nil, fmt.Errorf("daemon: FetchCycle is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Cadence == "" {
		cfg.Cadence = CadenceNever
	}
	return &Daemon{cfg: cfg, log: log, nowFn: now}, nil
}

// Run executes the control loop described in §4.13 until ctx is cancelled.
// The caller is expected to have arranged for ctx to be cancelled on
// SIGTERM/SIGINT (e.g. via signal.NotifyContext).
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.PIDFile != "" {
		if err := d.acquirePIDFile(); err != nil {
			return err
		}
		defer d.releasePIDFile()
	}

	if err := d.maybeInitialFetch(ctx); err != nil {
		d.log.Error("initial fetch failed", "error", err)
	}

	for ctx.Err() == nil {
		if d.cfg.Hours != nil && !d.cfg.Hours.IsWithinHours() {
			wait := d.cfg.Hours.SecondsUntilActive()
			d.log.Info("outside trading hours, waiting", "seconds", wait)
			if !d.sleepSlices(ctx, time.Duration(wait*float64(time.Second)), 60*time.Second) {
				break
			}
			continue
		}

		if d.cfg.Maintenance != nil && d.cfg.Cadence.due(d.lastMaint, d.nowFn()) {
			d.log.Info("running maintenance", "cadence", d.cfg.Cadence)
			if err := d.cfg.Maintenance(ctx); err != nil {
				d.log.Error("maintenance failed", "error", err)
			}
			d.lastMaint = d.nowFn()
		}

		if err := d.cfg.FetchCycle(ctx); err != nil {
			d.log.Error("fetch cycle failed", "error", err)
		}

		if ctx.Err() != nil {
			break
		}
		if !d.sleepSlices(ctx, d.cfg.FetchInterval, 10*time.Second) {
			break
		}
	}

	d.log.Info("daemon shutting down cleanly")
	return nil
}

// maybeInitialFetch implements the posttrade-only exception: if the store
// holds nothing at all, fetch once now regardless of trading hours.
func (d *Daemon) maybeInitialFetch(ctx context.Context) error {
	if d.cfg.HasAnyData == nil {
		return nil
	}
	hasData, err := d.cfg.HasAnyData(ctx)
	if err != nil {
		return fmt.Errorf("checking for existing data: %w", err)
	}
	if hasData {
		return nil
	}
	d.log.Info("no existing data found, performing initial fetch regardless of trading hours")
	return d.cfg.FetchCycle(ctx)
}

// sleepSlices sleeps for total, checking ctx.Done() every slice. Returns
// false if the sleep was cut short by cancellation.
func (d *Daemon) sleepSlices(ctx context.Context, total, slice time.Duration) bool {
	if total <= 0 {
		return ctx.Err() == nil
	}
	deadline := d.nowFn().Add(total)
	for {
		remaining := deadline.Sub(d.nowFn())
		if remaining <= 0 {
			return ctx.Err() == nil
		}
		step := slice
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(step):
		}
	}
}

func (d *Daemon) acquirePIDFile() error {
	if data, err := os.ReadFile(d.cfg.PIDFile); err == nil {
		oldPID, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil && processAlive(oldPID) {
			return fmt.Errorf("daemon: another instance is already running (PID %d); remove %s if stale", oldPID, d.cfg.PIDFile)
		}
		d.log.Warn("removing stale PID file", "path", d.cfg.PIDFile)
		_ = os.Remove(d.cfg.PIDFile)
	}

	if err := os.WriteFile(d.cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("daemon: writing PID file: %w", err)
	}
	d.pidWritten = true
	d.log.Info("PID file created", "path", d.cfg.PIDFile, "pid", os.Getpid())
	return nil
}

func (d *Daemon) releasePIDFile() {
	if !d.pidWritten {
		return
	}
	_ = os.Remove(d.cfg.PIDFile)
	d.log.Info("PID file removed", "path", d.cfg.PIDFile)
}

// processAlive reports whether pid names a live process, using signal 0 —
// it sends nothing but surfaces ESRCH if the process doesn't exist.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil
}
