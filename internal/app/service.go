// Package service provides the supervisor that owns one competition's
// schedulers and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carvectf/canary/internal/adapters/eventlog"
	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/internal/domain/credentials"
	"github.com/carvectf/canary/internal/runner"
	"github.com/carvectf/canary/internal/scheduler"
	"github.com/carvectf/canary/pkg/logger"
	"github.com/carvectf/canary/pkg/metrics"
)

// Service supervises one competition: one aligned scheduler per check,
// all publishing through one log store client.
type Service struct {
	mu sync.Mutex

	// Wiring
	comp  *config.Competition
	store eventlog.Store
	creds credentials.Provider
	eval  runner.Prober

	// Configuration
	maxInflight int
	replicaID   string

	// State
	started    bool
	cancel     context.CancelFunc
	schedulers []*scheduler.Scheduler

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithMaxInflight bounds concurrent probes per firing.
func WithMaxInflight(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxInflight = n
		}
	}
}

// WithCredentials sets the credential provider handed to runners.
func WithCredentials(p credentials.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.creds = p
		}
	}
}

// WithEvaluator overrides the probe evaluator handed to runners.
func WithEvaluator(e runner.Prober) Option {
	return func(s *Service) {
		if e != nil {
			s.eval = e
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a supervisor for one competition and its log store.
func New(comp *config.Competition, store eventlog.Store, opts ...Option) *Service {
	s := &Service{
		comp:        comp,
		store:       store,
		creds:       credentials.None,
		maxInflight: runner.DefaultMaxInflight,
		replicaID:   uuid.NewString(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start spawns one scheduler per check. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("supervisor")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	opts := []runner.Option{
		runner.WithMaxInflight(s.maxInflight),
		runner.WithCredentials(s.creds),
	}
	if s.eval != nil {
		opts = append(opts, runner.WithEvaluator(s.eval))
	}
	r := runner.New(s.comp, s.store, opts...)

	for _, check := range s.comp.Checks {
		check := check
		sched := scheduler.New(check.Name, check.Interval(), func(ctx context.Context, alignedTSMS int64) {
			r.Run(ctx, check, alignedTSMS)
		})
		s.schedulers = append(s.schedulers, sched)
		go sched.Run(runCtx)
	}

	s.started = true
	metrics.UpdateSchedulersRunning(len(s.schedulers))
	s.logger.Info(ctx, "supervisor started",
		logger.String("competition", s.comp.Name),
		logger.String("replica_id", s.replicaID),
		logger.Int("checks", len(s.schedulers)),
		logger.Int("teams", len(s.comp.Teams)),
	)

	return nil
}

// Stop cancels scheduling and waits up to one probe budget for in-flight
// firings. Unfinished runners are abandoned.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping supervisor", logger.String("competition", s.comp.Name))
	s.cancel()

	deadline := time.Now().Add(s.drainBudget())
	for _, sched := range s.schedulers {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if !sched.Drain(remaining) {
			s.logger.Warn(ctx, "abandoning unfinished firing", logger.String("check", sched.Name()))
		}
	}

	s.schedulers = nil
	s.started = false
	metrics.UpdateSchedulersRunning(0)
	s.logger.Info(ctx, "supervisor stopped", logger.String("competition", s.comp.Name))
}

// drainBudget is the longest probe budget across checks; the shutdown
// wait never exceeds one probe timeout.
func (s *Service) drainBudget() time.Duration {
	budget := config.DefaultProbeTimeout
	for _, check := range s.comp.Checks {
		if b := check.Spec.Budget(); b > budget {
			budget = b
		}
	}
	return budget
}

// Health reports healthy iff the log store responds and no scheduler is
// wedged.
func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Health(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	schedulers := s.schedulers
	s.mu.Unlock()

	for _, sched := range schedulers {
		if sched.Wedged() {
			return fmt.Errorf("check %s wedged: no firing completed within %d intervals", sched.Name(), scheduler.WedgeFactor)
		}
	}
	return nil
}

// ReplicaID identifies this process in logs and diagnostics. It is
// never part of entry ids; cross-replica dedup is by id prefix.
func (s *Service) ReplicaID() string {
	return s.replicaID
}

// Stats returns supervisor statistics for monitoring.
func (s *Service) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"started":     s.started,
		"competition": s.comp.Name,
		"replicaID":   s.replicaID,
		"checks":      len(s.comp.Checks),
		"teams":       len(s.comp.Teams),
		"maxInflight": s.maxInflight,
	}
}
