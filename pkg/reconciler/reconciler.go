// Package reconciler periodically audits engine state for the
// invariants arbitration is supposed to maintain, logging and counting
// violations without ever mutating state itself. It never corrects
// anything it finds — a violation means a bug in arbitration, not a
// condition to heal — so it carries no remediation logic at all, only
// detection.
package reconciler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/arbiter/pkg/engine"
	"github.com/cuemby/arbiter/pkg/log"
	"github.com/cuemby/arbiter/pkg/metrics"
	"github.com/cuemby/arbiter/pkg/table"
)

// Reconciler runs a fixed-interval invariant audit over an engine.
type Reconciler struct {
	engine   *engine.Engine
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// New creates a reconciler over eng, auditing every interval.
func New(eng *engine.Engine, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		engine:   eng,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the audit loop in a background goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the audit loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			r.Audit()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// Audit runs one invariant-audit cycle and returns every violation
// found, having already logged and counted each one.
func (r *Reconciler) Audit() []string {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	runID := uuid.NewString()

	var violations []string
	violations = append(violations, r.auditOwnerTables()...)
	violations = append(violations, r.auditMandatoryMasks()...)

	for _, v := range violations {
		r.logger.Warn().Str("run_id", runID).Str("violation", v).Msg("invariant violation detected")
	}
	return violations
}

// auditOwnerTables checks that every resource's owner table holds at
// most one row per zone — "one owner per (zone, resource)".
func (r *Reconciler) auditOwnerTables() []string {
	var violations []string
	for _, def := range r.engine.Registry.Resources() {
		rows, err := r.engine.Registry.Store().Select(def.OwnerTable.Name(), table.All{}, table.EvalCtx{}, nil)
		if err != nil {
			continue
		}
		seen := make(map[uint32]int)
		for _, row := range rows {
			seen[row[0].U32]++
		}
		for zoneID, count := range seen {
			if count > 1 {
				v := fmt.Sprintf("resource %q has %d owner rows for zone %d, want at most 1", def.Name, count, zoneID)
				violations = append(violations, v)
				metrics.InvariantViolationsTotal.WithLabelValues("duplicate_owner_row").Inc()
			}
		}
	}
	return violations
}

// auditMandatoryMasks checks that every live set's mandatory mask is
// contained in its full resource mask — a set cannot require a resource
// it was never given.
func (r *Reconciler) auditMandatoryMasks() []string {
	var violations []string
	for _, s := range r.engine.Sets.Sets() {
		if s.Mandatory&^s.All != 0 {
			v := fmt.Sprintf("set %d: mandatory mask %#x not contained in resource mask %#x", s.ID, s.Mandatory, s.All)
			violations = append(violations, v)
			metrics.InvariantViolationsTotal.WithLabelValues("mandatory_not_contained").Inc()
		}
		if s.Grant&^s.All != 0 {
			v := fmt.Sprintf("set %d: grant mask %#x not contained in resource mask %#x", s.ID, s.Grant, s.All)
			violations = append(violations, v)
			metrics.InvariantViolationsTotal.WithLabelValues("grant_not_contained").Inc()
		}
	}
	return violations
}
