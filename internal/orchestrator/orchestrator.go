// Package orchestrator interprets pattern definitions: it resolves each
// step's templated args, routes the step to its registered capability
// handler, threads the immutable request context through every call, and
// assembles the declared outputs into a provenance-annotated result.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfolio/quantfolio/internal/pattern"
	"github.com/quantfolio/quantfolio/internal/registry"
	"github.com/quantfolio/quantfolio/internal/reqctx"
	"github.com/quantfolio/quantfolio/internal/template"
)

// Status is the terminal state of one step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StepTrace is one entry of the run's execution trace.
type StepTrace struct {
	Capability string `json:"capability"`
	DurationMS int64  `json:"duration_ms"`
	Status     Status `json:"status"`
}

// Result is the envelope returned by a successful run: the pattern's declared
// outputs plus the full step trace in declaration order.
type Result struct {
	Data  map[string]any `json:"data"`
	Trace []StepTrace    `json:"trace"`
}

// StepExecutionError wraps whatever a step failed with, naming the failing
// capability and carrying the trace of everything that completed before it.
// A failed run never surfaces partial data.
type StepExecutionError struct {
	Capability string
	Trace      []StepTrace
	Err        error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("orchestrator: step %q failed: %v", e.Capability, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// Config bounds step execution.
type Config struct {
	// StepTimeout caps each handler invocation. A timed-out step fails the
	// whole run.
	StepTimeout time.Duration `yaml:"step_timeout"`

	// MaxParallel bounds how many independent steps dispatch concurrently.
	// 1 disables concurrency entirely.
	MaxParallel int `yaml:"max_parallel"`
}

func (c Config) withDefaults() Config {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 30 * time.Second
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	return c
}

// Runner executes patterns against a capability registry. Safe for
// concurrent use: all mutable state lives in the per-run execution scope.
type Runner struct {
	library  *pattern.Library
	registry *registry.Registry
	cfg      Config
}

// NewRunner creates a pattern runner.
func NewRunner(lib *pattern.Library, reg *registry.Registry, cfg Config) *Runner {
	return &Runner{library: lib, registry: reg, cfg: cfg.withDefaults()}
}

// stepOutcome is the record kept per step while a run is in flight.
type stepOutcome struct {
	started  bool
	done     bool
	result   any
	err      error
	duration time.Duration
}

// Run executes one pattern. Steps run in declaration order; steps whose args
// reference no unfinished step's alias are dispatched concurrently in waves,
// bounded by MaxParallel. Trace entries are reported in declaration order
// regardless of completion order, so two runs of the same pattern produce
// identical traces.
//
// Any step failure aborts the run: the returned error is a
// *StepExecutionError naming the earliest-declared failing capability and
// carrying the declaration-ordered trace of the steps that completed before
// it. Cancelling ctx stops in-flight steps and skips the rest.
func (r *Runner) Run(ctx context.Context, rctx reqctx.Ctx, patternID string, inputs map[string]any) (*Result, error) {
	p, err := r.library.Get(patternID)
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	start := time.Now()
	log.Info().EmbedObject(rctx).Str("pattern", p.ID).Int("steps", len(p.Steps)).Msg("pattern run started")

	deps := p.Dependencies()
	state := make(map[string]any, len(p.Steps))
	outcomes := make([]stepOutcome, len(p.Steps))

	for !allDone(outcomes) {
		if err := ctx.Err(); err != nil {
			runTotal.WithLabelValues(p.ID, string(StatusFailed)).Inc()
			return nil, fmt.Errorf("orchestrator: pattern %q aborted: %w", p.ID, err)
		}

		wave := readySteps(deps, outcomes)
		if len(wave) == 0 {
			// Cannot happen for a validated pattern: dependencies only point
			// backwards, so some unfinished step is always ready.
			return nil, fmt.Errorf("orchestrator: pattern %q stalled with unfinished steps", p.ID)
		}

		r.runWave(ctx, rctx, p, wave, inputs, state, outcomes)

		// Merge results and check for failures between waves so that template
		// scopes stay stable while steps are in flight.
		for _, i := range wave {
			if outcomes[i].err != nil {
				failed := earliestFailure(outcomes)
				trace := buildTrace(p, outcomes, failed)
				runTotal.WithLabelValues(p.ID, string(StatusFailed)).Inc()
				log.Error().EmbedObject(rctx).Str("pattern", p.ID).
					Str("capability", p.Steps[failed].Capability).
					Err(outcomes[failed].err).
					Msg("pattern run failed")
				return nil, &StepExecutionError{
					Capability: p.Steps[failed].Capability,
					Trace:      trace,
					Err:        outcomes[failed].err,
				}
			}
		}
		for _, i := range wave {
			state[p.Steps[i].As] = outcomes[i].result
		}
	}

	data := make(map[string]any, len(p.Outputs))
	for _, out := range p.Outputs {
		data[out] = state[out]
	}

	runTotal.WithLabelValues(p.ID, string(StatusSuccess)).Inc()
	log.Info().EmbedObject(rctx).Str("pattern", p.ID).
		Dur("elapsed", time.Since(start)).
		Msg("pattern run completed")

	return &Result{Data: data, Trace: buildTrace(p, outcomes, -1)}, nil
}

// runWave dispatches one wave of ready steps, bounded by MaxParallel.
func (r *Runner) runWave(ctx context.Context, rctx reqctx.Ctx, p *pattern.Pattern, wave []int, inputs, state map[string]any, outcomes []stepOutcome) {
	scopes := buildScopes(rctx, inputs, state)

	sem := make(chan struct{}, r.cfg.MaxParallel)
	var wg sync.WaitGroup
	for _, i := range wave {
		outcomes[i].started = true
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			res, dur, err := r.runStep(ctx, rctx, p.Steps[i], scopes)
			outcomes[i].result = res
			outcomes[i].duration = dur
			outcomes[i].err = err
			outcomes[i].done = true
		}(i)
	}
	wg.Wait()
}

// runStep walks one step through RESOLVING_ARGS and DISPATCHED.
func (r *Runner) runStep(ctx context.Context, rctx reqctx.Ctx, step pattern.Step, scopes template.Scopes) (any, time.Duration, error) {
	start := time.Now()

	resolved, err := template.Resolve(step.Args, scopes)
	if err != nil {
		return nil, time.Since(start), err
	}
	args, _ := resolved.(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	handler, err := r.registry.Resolve(step.Capability)
	if err != nil {
		return nil, time.Since(start), err
	}

	stepCtx, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
	defer cancel()

	log.Debug().Str("trace_id", rctx.TraceID).Str("capability", step.Capability).Str("as", step.As).Msg("dispatching step")
	result, err := handler(stepCtx, rctx, args)
	dur := time.Since(start)

	status := StatusSuccess
	if err != nil {
		status = StatusFailed
		if stepCtx.Err() != nil {
			err = fmt.Errorf("%w (after %s)", stepCtx.Err(), dur.Round(time.Millisecond))
		}
	}
	stepDuration.WithLabelValues(step.Capability).Observe(dur.Seconds())
	stepTotal.WithLabelValues(step.Capability, string(status)).Inc()

	return result, dur, err
}

// buildScopes exposes inputs, ctx, state, and every finished step's alias.
// The state map is not written while a wave is in flight, so handing it to
// concurrent resolvers is safe.
func buildScopes(rctx reqctx.Ctx, inputs, state map[string]any) template.Scopes {
	scopes := template.Scopes{
		"inputs": inputs,
		"ctx":    rctx.Scope(),
		"state":  state,
	}
	for alias, val := range state {
		scopes[alias] = val
	}
	return scopes
}

func allDone(outcomes []stepOutcome) bool {
	for i := range outcomes {
		if !outcomes[i].done {
			return false
		}
	}
	return true
}

// readySteps returns, in declaration order, every unstarted step whose
// dependencies have all finished.
func readySteps(deps [][]int, outcomes []stepOutcome) []int {
	var ready []int
	for i := range outcomes {
		if outcomes[i].started {
			continue
		}
		ok := true
		for _, d := range deps[i] {
			if !outcomes[d].done {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, i)
		}
	}
	return ready
}

// earliestFailure picks the lowest-declared failed step so that failure
// reporting is deterministic even when several same-wave steps fail.
func earliestFailure(outcomes []stepOutcome) int {
	for i := range outcomes {
		if outcomes[i].done && outcomes[i].err != nil {
			return i
		}
	}
	return -1
}

// buildTrace assembles trace entries in declaration order. When failedAt is
// non-negative the trace covers only the successful steps declared before the
// failure plus the failed entry itself, so a failed run reads as "everything
// up to here worked".
func buildTrace(p *pattern.Pattern, outcomes []stepOutcome, failedAt int) []StepTrace {
	var trace []StepTrace
	for i := range outcomes {
		if failedAt >= 0 && i > failedAt {
			break
		}
		if !outcomes[i].done {
			continue
		}
		status := StatusSuccess
		if outcomes[i].err != nil {
			status = StatusFailed
		}
		trace = append(trace, StepTrace{
			Capability: p.Steps[i].Capability,
			DurationMS: outcomes[i].duration.Milliseconds(),
			Status:     status,
		})
	}
	return trace
}
