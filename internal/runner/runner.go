// Package runner executes one firing of one check: expand targets,
// probe them with bounded concurrency, reduce per team, and publish the
// scoring events.
package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carvectf/canary/internal/adapters/eventlog"
	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/internal/domain/credentials"
	"github.com/carvectf/canary/internal/domain/model"
	"github.com/carvectf/canary/internal/domain/probe"
	"github.com/carvectf/canary/internal/domain/target"
	"github.com/carvectf/canary/internal/domain/template"
	"github.com/carvectf/canary/pkg/logger"
	"github.com/carvectf/canary/pkg/metrics"
)

// DefaultMaxInflight bounds concurrent probes per firing.
const DefaultMaxInflight = 32

// appendBackoff is slept after each failed append attempt; the attempt
// after the last backoff is the final one.
var appendBackoff = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

// Prober evaluates one resolved spec against one target. Satisfied by
// *probe.Evaluator.
type Prober interface {
	Evaluate(ctx context.Context, spec config.ProbeSpec, hostname string) probe.Outcome
}

// Runner fans one check firing out over the competition matrix.
type Runner struct {
	comp        *config.Competition
	log         eventlog.Store
	creds       credentials.Provider
	eval        Prober
	maxInflight int
	backoff     []time.Duration
	logger      logger.Logger
}

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithMaxInflight bounds concurrent probes per firing.
func WithMaxInflight(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxInflight = n
		}
	}
}

// WithCredentials sets the credential provider.
func WithCredentials(p credentials.Provider) Option {
	return func(r *Runner) {
		if p != nil {
			r.creds = p
		}
	}
}

// WithEvaluator sets the probe evaluator.
func WithEvaluator(e Prober) Option {
	return func(r *Runner) {
		if e != nil {
			r.eval = e
		}
	}
}

// WithBackoff overrides the append retry backoff schedule.
func WithBackoff(backoff []time.Duration) Option {
	return func(r *Runner) {
		if len(backoff) > 0 {
			r.backoff = backoff
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New constructs a Runner for one competition.
func New(comp *config.Competition, log eventlog.Store, opts ...Option) *Runner {
	r := &Runner{
		comp:        comp,
		log:         log,
		creds:       credentials.None,
		eval:        probe.New(),
		maxInflight: DefaultMaxInflight,
		backoff:     appendBackoff,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logger.Named("runner")
	}

	return r
}

// probeJob is one (team, target) probe within a firing.
type probeJob struct {
	teamIdx int
	tgtIdx  int
	tgt     target.Target
}

// Run executes one firing of check at alignedTSMS. Probe failures become
// events; only an unaligned timestamp aborts the firing.
func (r *Runner) Run(ctx context.Context, check config.CheckDef, alignedTSMS int64) {
	if !model.Aligned(alignedTSMS, check.IntervalMS()) {
		r.logger.Error(ctx, "refusing unaligned firing timestamp",
			logger.String("check", check.Name),
			logger.Int64("aligned_ts_ms", alignedTSMS),
		)
		return
	}

	// Expand the matrix in competition team order.
	targets := make([][]target.Target, len(r.comp.Teams))
	var jobs []probeJob
	for i, team := range r.comp.Teams {
		resolved, err := target.Resolve(ctx, r.comp, check, team)
		if err != nil {
			r.logger.Error(ctx, "target resolution failed",
				logger.String("check", check.Name),
				logger.String("team", team.Name),
				logger.Error(err),
			)
			continue
		}
		targets[i] = resolved
		for j, tgt := range resolved {
			jobs = append(jobs, probeJob{teamIdx: i, tgtIdx: j, tgt: tgt})
		}
	}

	outcomes := make([][]probe.Outcome, len(targets))
	for i := range targets {
		outcomes[i] = make([]probe.Outcome, len(targets[i]))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxInflight)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			start := time.Now()
			out := r.probeTarget(gctx, check, job.tgt)
			outcomes[job.teamIdx][job.tgtIdx] = out
			metrics.RecordProbe(check.Name, check.Spec.Family(), out.Success, time.Since(start).Seconds())
			return nil
		})
	}
	_ = g.Wait()

	// Reduce per team and publish. Zero matching targets emit nothing.
	for i, team := range r.comp.Teams {
		if len(targets[i]) == 0 {
			continue
		}
		event := reduce(r.comp.Name, check.Name, team.Name, alignedTSMS, targets[i], outcomes[i])
		r.append(ctx, event)
	}
}

// probeTarget resolves the spec template for one target and evaluates it.
func (r *Runner) probeTarget(ctx context.Context, check config.CheckDef, tgt target.Target) probe.Outcome {
	values := template.Values{
		TeamName: tgt.Team,
		BoxName:  tgt.Box,
		IP:       tgt.Hostname,
	}
	creds, err := r.creds.Lookup(ctx, tgt.Team, tgt.Box)
	switch {
	case err == nil:
		values.Username = creds.Username
		values.Password = creds.Password
		values.HasCreds = true
	case errors.Is(err, credentials.ErrNotFound):
		// probes without credential placeholders proceed
	default:
		r.logger.Warn(ctx, "credential lookup failed",
			logger.String("team", tgt.Team),
			logger.String("box", tgt.Box),
			logger.Error(err),
		)
	}

	spec, err := template.ResolveSpec(ctx, check.Name, check.Spec, values)
	if err != nil {
		if errors.Is(err, template.ErrNoCredentials) {
			return probe.Outcome{Success: false, Message: "no creds"}
		}
		return probe.Outcome{Success: false, Message: "template error"}
	}

	return r.eval.Evaluate(ctx, spec, tgt.Hostname)
}

// reduce folds per-box outcomes into the team's scoring event. Any
// success wins; ties break to the lowest target index.
func reduce(competition, check, team string, alignedTSMS int64, targets []target.Target, outcomes []probe.Outcome) model.ScoringEvent {
	event := model.ScoringEvent{
		Competition: competition,
		Check:       check,
		Team:        team,
		AlignedTSMS: alignedTSMS,
	}

	for i, out := range outcomes {
		if out.Success {
			event.Success = true
			event.Box = targets[i].Box
			event.Message = out.Message
			return event
		}
	}

	var failures []string
	for i, out := range outcomes {
		failures = append(failures, targets[i].Box+": "+out.Message)
	}
	event.Message = model.Truncate(strings.Join(failures, " | "), model.MaxMessageBytes)
	return event
}

// append publishes one event, retrying transient store failures before
// dropping the event; the next firing is the retry of record.
func (r *Runner) append(ctx context.Context, event model.ScoringEvent) {
	start := time.Now()
	defer func() {
		metrics.RecordAppendDuration(time.Since(start).Seconds())
	}()

	for attempt := 0; ; attempt++ {
		id, err := r.log.Append(ctx, event.StreamKey(), event.AlignedTSMS, event.Fields())
		if err == nil {
			metrics.RecordEventEmitted()
			r.logger.Debug(ctx, "event appended",
				logger.String("stream", event.StreamKey()),
				logger.String("entry_id", string(id)),
				logger.Bool("success", event.Success),
			)
			return
		}
		if attempt >= len(r.backoff) {
			metrics.RecordEventDropped()
			r.logger.Error(ctx, "event dropped after retries",
				logger.String("stream", event.StreamKey()),
				logger.Int64("aligned_ts_ms", event.AlignedTSMS),
				logger.Error(err),
			)
			return
		}
		metrics.RecordAppendRetry()
		select {
		case <-time.After(r.backoff[attempt]):
		case <-ctx.Done():
			metrics.RecordEventDropped()
			return
		}
	}
}
