// Package recovery turns raw failures into bounded recovery decisions.
//
// The engine is three layers: a pure message classifier, a contextual
// strategy selector, and an executor that owns the side effects
// (backoff sleeps and error bookkeeping). Every path terminates in a
// bounded number of steps; nothing here retries unboundedly.
package recovery

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/clauderelay/clauderelay/internal/event"
	"github.com/clauderelay/clauderelay/internal/logging"
	"github.com/clauderelay/clauderelay/pkg/types"
)

const (
	baseDelay = 1 * time.Second
	maxDelay  = 30 * time.Second
)

const (
	abortMessage = "Operation aborted due to unrecoverable error"
	deferMessage = "Manual intervention required - please check system status"
)

// SessionTracker is the slice of the tracker the engine consults.
type SessionTracker interface {
	ValidateForContinuation(sessionID string) types.ContinuationDecision
	MarkError(sessionID, message string)
	Stats() types.TrackerStats
}

// SessionStore is the slice of the persistent store the engine writes
// error marks to.
type SessionStore interface {
	MarkError(sessionID, message string) bool
	Stats() types.StoreStats
}

// Options configures an Engine.
type Options struct {
	Tracker SessionTracker
	Store   SessionStore
	// Bus receives recovery events. The global bus is used when nil.
	Bus *event.Bus
	// Sleep overrides the backoff wait (tests). The default honors
	// context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine is the error recovery engine. Safe for concurrent use; it
// holds no per-failure state of its own.
type Engine struct {
	tracker SessionTracker
	store   SessionStore
	bus     *event.Bus
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Engine{
		tracker: opts.Tracker,
		store:   opts.Store,
		bus:     opts.Bus,
		sleep:   sleep,
		log:     logging.Component("recovery"),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) publish(ev event.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
		return
	}
	event.Publish(ev)
}

// backoffDelay computes the deterministic exponential delay for the
// given attempt: baseDelay doubled per retry, capped at maxDelay.
func backoffDelay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0
	// The constructor seeds the current interval from the default
	// InitialInterval; Reset reseeds it from the value set above.
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < retryCount; i++ {
		d = b.NextBackOff()
	}
	return d
}

// DetermineStrategy maps a classification plus retry context onto
// exactly one strategy. Pure; the executor owns all side effects.
func (e *Engine) DetermineStrategy(c types.ErrorClassification, ctx types.RecoveryContext) types.Strategy {
	switch c.Type {
	case types.ErrorTypeUser:
		return types.StrategyAbort
	case types.ErrorTypeSession:
		// One free pass for a session that validated but failed anyway.
		if ctx.RetryCount == 0 && ctx.SessionID != "" {
			return types.StrategyRetry
		}
		return types.StrategyFallback
	case types.ErrorTypeNetwork:
		if ctx.RetryCount < ctx.MaxRetries {
			return types.StrategyRetry
		}
		return types.StrategyAbort
	case types.ErrorTypeSystem:
		// The classifier never emits critical for system errors today;
		// the branch stays for classifier growth.
		if c.Severity == types.SeverityCritical {
			return types.StrategyDefer
		}
		limit := ctx.MaxRetries
		if limit > 2 {
			limit = 2
		}
		if ctx.RetryCount < limit {
			return types.StrategyRetry
		}
		return types.StrategyDefer
	default:
		if ctx.RetryCount < ctx.MaxRetries {
			return types.StrategyRetry
		}
		return types.StrategyFallback
	}
}

// Execute carries out a strategy's side effects and produces the
// result the caller acts on.
//
// The retry path owns the backoff sleep, then re-validates chat
// continuations against the tracker. A session that can no longer
// continue diverts to the fallback path at execution time even though
// the decision layer said retry.
func (e *Engine) Execute(ctx context.Context, strategy types.Strategy, rctx types.RecoveryContext) types.RecoveryResult {
	switch strategy {
	case types.StrategyRetry:
		delay := backoffDelay(rctx.RetryCount)
		e.log.Info().
			Str("sessionId", rctx.SessionID).
			Int("retryCount", rctx.RetryCount).
			Dur("delay", delay).
			Msg("waiting before retry")

		if err := e.sleep(ctx, delay); err != nil {
			e.log.Warn().Err(err).Str("sessionId", rctx.SessionID).Msg("backoff interrupted")
		}

		if rctx.SessionID != "" && rctx.OperationType == types.OperationContinuation && e.tracker != nil {
			decision := e.tracker.ValidateForContinuation(rctx.SessionID)
			if !decision.CanContinue {
				e.log.Info().
					Str("sessionId", rctx.SessionID).
					Str("reason", decision.Error).
					Msg("session no longer continuable, diverting retry to fallback")
				return e.Execute(ctx, types.StrategyFallback, rctx)
			}
		}

		return types.RecoveryResult{
			Success:    true,
			Strategy:   types.StrategyRetry,
			RetryAfter: delay.Milliseconds(),
		}

	case types.StrategyFallback:
		e.markSession(rctx.SessionID, "Fallback triggered: "+rctx.ErrorMessage)
		return types.RecoveryResult{Success: true, Strategy: types.StrategyFallback}

	case types.StrategyAbort:
		e.markSession(rctx.SessionID, "Operation aborted: "+rctx.ErrorMessage)
		return types.RecoveryResult{Strategy: types.StrategyAbort, Error: abortMessage}

	case types.StrategyDefer:
		e.markSession(rctx.SessionID, "Manual intervention required: "+rctx.ErrorMessage)
		return types.RecoveryResult{Strategy: types.StrategyDefer, Error: deferMessage}

	default:
		e.log.Error().Str("strategy", string(strategy)).Msg("unknown recovery strategy")
		return types.RecoveryResult{Strategy: types.StrategyAbort, Error: abortMessage}
	}
}

// markSession records the failure against both views of the session.
// The tracker and the store each enforce their own retry ceiling.
func (e *Engine) markSession(sessionID, message string) {
	if sessionID == "" {
		return
	}
	if e.tracker != nil {
		e.tracker.MarkError(sessionID, message)
	}
	if e.store != nil {
		e.store.MarkError(sessionID, message)
	}
}

// HandleError is the single public orchestration entry point:
// classify, decide, execute, report.
func (e *Engine) HandleError(ctx context.Context, err error, rctx types.RecoveryContext) types.RecoveryResult {
	classification := Classify(err)
	strategy := e.DetermineStrategy(classification, rctx)

	e.log.Info().
		Str("sessionId", rctx.SessionID).
		Str("operation", string(rctx.OperationType)).
		Str("errorType", string(classification.Type)).
		Str("severity", string(classification.Severity)).
		Str("strategy", string(strategy)).
		Int("retryCount", rctx.RetryCount).
		Msg("handling error")

	e.publish(event.Event{
		Type: event.RecoveryStarted,
		Data: event.RecoveryStartedData{
			SessionID:      rctx.SessionID,
			OperationType:  rctx.OperationType,
			Classification: classification,
			RetryCount:     rctx.RetryCount,
		},
	})

	result := e.Execute(ctx, strategy, rctx)

	e.log.Info().
		Str("sessionId", rctx.SessionID).
		Str("strategy", string(result.Strategy)).
		Bool("success", result.Success).
		Msg("recovery complete")

	e.publish(event.Event{
		Type: event.RecoveryCompleted,
		Data: event.RecoveryCompletedData{SessionID: rctx.SessionID, Result: result},
	})

	return result
}

// HealthCheck probes that both collaborators answer with sane stats.
// It is a liveness check for the subsystem, not a correctness check.
func (e *Engine) HealthCheck() bool {
	if e.tracker == nil || e.store == nil {
		return false
	}

	ts := e.tracker.Stats()
	if ts.TotalSessions < 0 || ts.ActiveSessions < 0 {
		return false
	}

	ss := e.store.Stats()
	if ss.TotalSessions < 0 || ss.ActiveSessions < 0 {
		return false
	}

	return true
}
