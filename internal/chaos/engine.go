// internal/chaos/engine.go
// Package chaos runs resilience experiments against a live lost-and-found
// deployment: inject a fault or a burst of contention, watch the steady-state
// metrics, and report whether the hypothesis held.
package chaos

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Experiment defines a chaos engineering test.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	Duration    time.Duration
	BlastRadius float64 // 0.0 to 1.0
}

// Metric defines a measurable system property.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Action is a fault injection or recovery step.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion validates the last observation of a metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

type Result struct {
	ExperimentName   string                 `json:"experimentName"`
	StartTime        time.Time              `json:"startTime"`
	EndTime          time.Time              `json:"endTime"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesisHeld"`
	SteadyStateValid bool                   `json:"steadyStateValid"`
	Violations       []Violation            `json:"violations"`
	Failed           []string               `json:"failedAssertions,omitempty"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"errorEvents"`
	MTTR             *time.Duration         `json:"mttr,omitempty"`
}

type Violation struct {
	MetricName string    `json:"metricName"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// ErrSteadyStateInvalid aborts an experiment before any fault is injected.
var ErrSteadyStateInvalid = errors.New("steady state invalid - aborting experiment")

// Engine orchestrates chaos experiments.
type Engine struct {
	env      Env
	tracer   trace.Tracer
	logger   zerolog.Logger
	interval time.Duration

	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

// NewEngine creates an engine sampling metrics every interval; a zero
// interval means one second.
func NewEngine(env Env, interval time.Duration, logger zerolog.Logger) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		env:      env,
		tracer:   otel.Tracer("lostfound/chaos"),
		logger:   logger.With().Str("component", "chaos").Logger(),
		interval: interval,
	}
}

func (e *Engine) Register(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Run executes a single experiment: validate steady state, inject, observe
// for exp.Duration, roll back and check assertions.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)))
	defer span.End()

	result := &Result{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
	}

	span.AddEvent("validating_steady_state")
	if violations := e.steadyStateViolations(ctx, exp.SteadyState); len(violations) > 0 {
		result.Violations = violations
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: action.Target})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: action.Target})
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_assertions")
	result.Failed = failedAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.Failed) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	observationCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	var recoveryStart time.Time
	recovered := false

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-observationCtx.Done():
			return
		case <-ticker.C:
		}

		for _, metric := range exp.SteadyState {
			value, err := metric.Query(ctx)
			now := time.Now()
			if err != nil {
				result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{Timestamp: now, Error: err.Error(), Component: metric.Name})
				continue
			}
			result.Observations[metric.Name] = append(result.Observations[metric.Name], DataPoint{Timestamp: now, Value: value})

			if !metric.Threshold.Holds(value) {
				if recoveryStart.IsZero() {
					recoveryStart = now
				}
				result.Violations = append(result.Violations, Violation{
					MetricName: metric.Name,
					Expected:   metric.Threshold.Value,
					Actual:     value,
					Timestamp:  now,
				})
			} else if !recoveryStart.IsZero() && !recovered {
				mttr := now.Sub(recoveryStart)
				result.MTTR = &mttr
				recovered = true
			}
		}
	}
}

func (e *Engine) steadyStateViolations(ctx context.Context, metrics []Metric) []Violation {
	var violations []Violation
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			value = -1
		}
		if err != nil || !metric.Threshold.Holds(value) {
			violations = append(violations, Violation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}
	return violations
}

// failedAssertions returns the messages of assertions whose metric was never
// observed or whose final observation fails the condition.
func failedAssertions(assertions []Assertion, result *Result) []string {
	var failed []string
	for _, a := range assertions {
		points := result.Observations[a.Metric]
		if len(points) == 0 || !a.Condition(points[len(points)-1].Value) {
			failed = append(failed, a.Message)
		}
	}
	return failed
}

// GameDay is a named series of experiments run back to back.
type GameDay struct {
	Name         string
	Date         time.Time
	Scenarios    []Experiment
	Participants []string
	Pause        time.Duration
}

// ExecuteGameDay runs every scenario, logging each outcome. It returns the
// number of scenarios whose hypothesis did not hold or that aborted.
func (e *Engine) ExecuteGameDay(ctx context.Context, day GameDay) (int, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", day.Name)))
	defer span.End()

	e.logger.Info().Str("game_day", day.Name).Time("date", day.Date).
		Strs("participants", day.Participants).Int("scenarios", len(day.Scenarios)).Msg("starting game day")

	failures := 0
	for i, scenario := range day.Scenarios {
		log := e.logger.With().Str("experiment", scenario.Name).Int("index", i+1).Logger()
		log.Info().Str("hypothesis", scenario.Hypothesis).Msg("running experiment")

		result, err := e.Run(ctx, scenario)
		if err != nil {
			failures++
			log.Error().Err(err).Msg("experiment aborted")
		} else {
			if !result.HypothesisHeld {
				failures++
			}
			report(log, result)
		}

		if i < len(day.Scenarios)-1 && day.Pause > 0 {
			select {
			case <-ctx.Done():
				return failures, ctx.Err()
			case <-time.After(day.Pause):
			}
		}
	}
	return failures, nil
}

func report(log zerolog.Logger, result *Result) {
	event := log.Info()
	if !result.HypothesisHeld {
		event = log.Warn().Strs("failed_assertions", result.Failed)
	}
	if result.MTTR != nil {
		event = event.Dur("mttr", *result.MTTR)
	}
	event.Bool("hypothesis_held", result.HypothesisHeld).
		Int("violations", len(result.Violations)).
		Int("errors", len(result.ErrorEvents)).
		Dur("duration", result.Duration).
		Msg("experiment finished")

	for _, v := range result.Violations {
		log.Warn().Str("metric", v.MetricName).Float64("expected", v.Expected).Float64("actual", v.Actual).Msg("steady state violated")
	}
}
