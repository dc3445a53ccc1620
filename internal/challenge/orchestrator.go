// File: internal/challenge/orchestrator.go
// Description: Drives the detect, attempt, verify and escalate loop for one
// session until the page is navigable or the retry policy is spent.

package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/internal/browser/humanoid"
	"github.com/xkilldash9x/hurdle/internal/config"
)

// Orchestrator runs resolution episodes. It keeps no per-session state, so
// one instance serves every session of a run concurrently.
type Orchestrator struct {
	detector    *Detector
	oracle      *Oracle
	registry    Registry
	gateway     Gateway
	sink        Sink
	screenshots ScreenshotStore
	sleeper     humanoid.Sleeper
	now         func() time.Time
	logger      *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithGateway enables the manual fallback.
func WithGateway(g Gateway) Option { return func(o *Orchestrator) { o.gateway = g } }

// WithSink sets the event sink.
func WithSink(s Sink) Option { return func(o *Orchestrator) { o.sink = s } }

// WithScreenshotStore persists the screenshot taken before a manual handover.
func WithScreenshotStore(s ScreenshotStore) Option {
	return func(o *Orchestrator) { o.screenshots = s }
}

// WithBackoffSleeper replaces the clock used for backoff waits.
func WithBackoffSleeper(s humanoid.Sleeper) Option { return func(o *Orchestrator) { o.sleeper = s } }

// WithRegistry replaces the strategy table.
func WithRegistry(r Registry) Option { return func(o *Orchestrator) { o.registry = r } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// NewOrchestrator wires the detector and oracle with the optional collaborators.
func NewOrchestrator(detector *Detector, oracle *Oracle, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if detector == nil || oracle == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		detector: detector,
		oracle:   oracle,
		registry: DefaultRegistry(),
		sink:     NopSink{},
		sleeper:  humanoid.RealSleeper,
		now:      time.Now,
		logger:   logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = NopSink{}
	}
	return o, nil
}

// ResolveChallenges resolves with a detector and oracle built from the
// configuration defaults.
func ResolveChallenges(ctx context.Context, sess *Session, policy RetryPolicy, logger *zap.Logger, opts ...Option) Outcome {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := config.NewDefaultConfig().Challenge()
	detector := NewDetector(logger, defaults.AmbiguityThreshold)
	o, err := NewOrchestrator(detector, NewOracle(detector, defaults.PollInterval, nil, logger), logger, opts...)
	if err != nil {
		return Outcome{Status: StatusExhausted, Err: err}
	}
	return o.Resolve(ctx, sess, policy)
}

// Resolve clears every challenge on the session's current page. Only an
// Outcome with StatusExhausted is a failure.
func (o *Orchestrator) Resolve(ctx context.Context, sess *Session, policy RetryPolicy) Outcome {
	if err := policy.Validate(); err != nil {
		return Outcome{Status: StatusExhausted, Err: err}
	}
	ep := &episode{
		o:      o,
		sess:   sess,
		policy: policy,
		start:  o.now(),
		state:  StateIdle,
		logger: o.logger.With(zap.String("session_id", sess.ID)),
	}
	return ep.run(ctx)
}

// episode is the mutable state of one Resolve call.
type episode struct {
	o      *Orchestrator
	sess   *Session
	policy RetryPolicy
	logger *zap.Logger
	start  time.Time

	state State
	clear bool
	err   error
	// manual is set once an operator resolved anything in this episode.
	manual   bool
	resolved []Kind
	attempts []Attempt

	detectFailures int
	detectBackoff  *backoff.ExponentialBackOff

	inst       Instance
	strategies []Strategy
	stratIdx   int
	tried      int
	ordinal    int
	backoff    *backoff.ExponentialBackOff
	pending    Attempt
}

func (e *episode) run(ctx context.Context) Outcome {
	e.transition(ctx, StateDetecting, "")
	for {
		switch e.state {
		case StateDetecting:
			e.detect(ctx)
		case StateAttempting:
			e.attempt(ctx)
		case StateVerifying:
			e.verify(ctx)
		case StateRetrying:
			e.retry(ctx)
		case StateEscalating:
			e.escalate(ctx)
		case StateManualFallback:
			e.handover(ctx)
		case StateResolved:
			if e.clear {
				return e.outcome()
			}
			e.transition(ctx, StateDetecting, "chain")
		case StateExhausted:
			return e.outcome()
		default:
			e.fail(ctx, fmt.Errorf("challenge: unexpected state %s", e.state))
		}
	}
}

func (e *episode) outcome() Outcome {
	out := Outcome{
		ChainDepth: len(e.resolved),
		Resolved:   e.resolved,
		Attempts:   e.attempts,
		Elapsed:    e.o.now().Sub(e.start),
	}
	switch {
	case e.state == StateExhausted:
		out.Status = StatusExhausted
		out.Err = e.err
	case e.manual:
		out.Status = StatusManualResolved
	default:
		out.Status = StatusResolved
	}
	return out
}

func (e *episode) transition(ctx context.Context, to State, reason string) {
	from := e.state
	e.state = to
	e.o.sink.Emit(ctx, Event{
		Type:      EventTransition,
		SessionID: e.sess.ID,
		From:      from,
		To:        to,
		Kind:      e.inst.Kind,
		Reason:    reason,
		At:        e.o.now(),
	})
}

func (e *episode) fail(ctx context.Context, err error) {
	e.err = err
	e.transition(ctx, StateExhausted, err.Error())
}

func (e *episode) record(ctx context.Context, a Attempt) {
	e.attempts = append(e.attempts, a)
	e.o.sink.Emit(ctx, Event{
		Type:      EventAttempt,
		SessionID: e.sess.ID,
		From:      e.state,
		To:        e.state,
		Kind:      a.Kind,
		Attempt:   &e.attempts[len(e.attempts)-1],
		At:        e.o.now(),
	})
}

func (e *episode) detect(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		e.fail(ctx, err)
		return
	}
	found, err := e.o.detector.Detect(ctx, e.sess.Page())
	if err != nil {
		if ctx.Err() != nil {
			e.fail(ctx, ctx.Err())
			return
		}
		e.detectFailures++
		if e.detectFailures >= e.policy.MaxAttempts {
			e.fail(ctx, fmt.Errorf("challenge: detection failed %d times: %w", e.detectFailures, err))
			return
		}
		if e.detectBackoff == nil {
			e.detectBackoff = e.policy.newBackoff()
		}
		wait := e.detectBackoff.NextBackOff()
		e.logger.Warn("Detection failed, retrying", zap.Error(err), zap.Duration("backoff", wait))
		if err := e.o.sleeper.Sleep(ctx, wait); err != nil {
			e.fail(ctx, err)
		}
		return
	}
	e.detectFailures = 0
	e.detectBackoff = nil

	if len(found) == 0 {
		e.clear = true
		e.transition(ctx, StateResolved, "page clear")
		return
	}
	if len(e.resolved) >= e.policy.MaxChainDepth {
		e.inst = found[0]
		e.fail(ctx, fmt.Errorf("%w: %d challenges cleared, %s still present",
			ErrChainDepthExceeded, len(e.resolved), found[0].Kind))
		return
	}
	if e.o.detector.Ambiguous(found) {
		e.o.sink.Emit(ctx, Event{
			Type:      EventDetectionAmbiguous,
			SessionID: e.sess.ID,
			From:      e.state,
			To:        e.state,
			Kind:      found[0].Kind,
			Reason:    fmt.Sprintf("%d candidates below threshold", len(found)),
			At:        e.o.now(),
		})
	}

	e.inst = found[0]
	e.strategies = e.o.registry.For(e.inst.Kind)
	e.stratIdx = -1
	if e.inst.Kind.ManualOnly() {
		e.transition(ctx, StateManualFallback, "manual-only kind")
		return
	}
	if !e.nextStrategy() {
		e.transition(ctx, StateEscalating, "no strategy available")
		return
	}
	e.transition(ctx, StateAttempting, e.strategies[e.stratIdx].Name())
}

// nextStrategy advances to the next untried strategy for the current kind,
// within the episode's strategy budget.
func (e *episode) nextStrategy() bool {
	next := e.stratIdx + 1
	if next >= len(e.strategies) || e.tried >= e.policy.MaxStrategies {
		return false
	}
	e.stratIdx = next
	e.tried++
	e.ordinal = 0
	e.backoff = e.policy.newBackoff()
	return true
}

func (e *episode) attempt(ctx context.Context) {
	strat := e.strategies[e.stratIdx]
	e.ordinal++
	actx, cancel := context.WithTimeout(ctx, e.policy.AttemptTimeout)
	started := e.o.now()
	err := strat.Attempt(actx, e.inst, e.sess)
	cancel()

	a := Attempt{
		Strategy: strat.Name(),
		Kind:     e.inst.Kind,
		Ordinal:  e.ordinal,
		Duration: e.o.now().Sub(started),
		Err:      err,
	}
	switch {
	case ctx.Err() != nil:
		a.Outcome = AttemptFailure
		e.record(ctx, a)
		e.fail(ctx, ctx.Err())
	case errors.Is(err, ErrManualRequired):
		a.Outcome = AttemptFailure
		e.record(ctx, a)
		e.transition(ctx, StateManualFallback, "strategy requested an operator")
	case err != nil:
		a.Outcome = AttemptFailure
		if errors.Is(err, context.DeadlineExceeded) {
			a.Outcome = AttemptTimeout
		}
		e.record(ctx, a)
		e.transition(ctx, StateRetrying, err.Error())
	default:
		e.pending = a
		e.transition(ctx, StateVerifying, "")
	}
}

func (e *episode) verify(ctx context.Context) {
	started := e.o.now()
	ok := e.o.oracle.Verify(ctx, e.inst, e.sess, e.policy.AttemptTimeout)
	a := e.pending
	a.Duration += e.o.now().Sub(started)
	if ok {
		a.Outcome = AttemptSuccess
		e.record(ctx, a)
		e.resolved = append(e.resolved, e.inst.Kind)
		e.transition(ctx, StateResolved, a.Strategy)
		return
	}
	a.Outcome = AttemptTimeout
	a.Err = fmt.Errorf("challenge: %s still present after %s", e.inst.Kind, e.policy.AttemptTimeout)
	e.record(ctx, a)
	if err := ctx.Err(); err != nil {
		e.fail(ctx, err)
		return
	}
	e.transition(ctx, StateRetrying, "verification timed out")
}

func (e *episode) retry(ctx context.Context) {
	if e.ordinal >= e.policy.MaxAttempts {
		e.transition(ctx, StateEscalating, fmt.Sprintf("%d attempts failed", e.ordinal))
		return
	}
	wait := e.backoff.NextBackOff()
	if err := e.o.sleeper.Sleep(ctx, wait); err != nil {
		e.fail(ctx, err)
		return
	}
	e.transition(ctx, StateAttempting, fmt.Sprintf("after %s", wait))
}

func (e *episode) escalate(ctx context.Context) {
	if e.nextStrategy() {
		e.transition(ctx, StateAttempting, e.strategies[e.stratIdx].Name())
		return
	}
	if e.o.gateway != nil {
		e.transition(ctx, StateManualFallback, "strategies exhausted")
		return
	}
	e.fail(ctx, fmt.Errorf("%w for %s", ErrStrategiesExhausted, e.inst.Kind))
}

func (e *episode) handover(ctx context.Context) {
	if e.o.gateway == nil {
		e.fail(ctx, fmt.Errorf("%w: no operator gateway configured", ErrManualAbandoned))
		return
	}
	page := e.sess.Page()
	req := ManualRequest{
		SessionID: e.sess.ID,
		Instance:  e.inst,
		URL:       e.inst.URL,
		Page:      page,
	}
	png, err := page.Screenshot(ctx)
	if err != nil {
		e.logger.Warn("Could not capture screenshot for operator", zap.Error(err))
	}
	req.Screenshot = png
	if e.o.screenshots != nil && len(png) > 0 {
		path, err := e.o.screenshots.Save(ctx, e.sess.ID, e.inst.Kind.String(), png)
		if err != nil {
			e.logger.Warn("Could not save screenshot", zap.Error(err))
		}
		req.ScreenshotPath = path
	}

	e.logger.Info("Handing challenge to operator",
		zap.Stringer("kind", e.inst.Kind),
		zap.String("url", req.URL),
		zap.String("screenshot", req.ScreenshotPath))
	sig, err := e.o.gateway.Request(ctx, req)
	switch {
	case err != nil:
		e.fail(ctx, fmt.Errorf("%w: %w", ErrManualAbandoned, err))
	case sig == SignalResolved:
		e.manual = true
		e.resolved = append(e.resolved, e.inst.Kind)
		e.transition(ctx, StateResolved, "operator")
	default:
		e.fail(ctx, fmt.Errorf("%w for %s", ErrManualAbandoned, e.inst.Kind))
	}
}
