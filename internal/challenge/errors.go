package challenge

import (
	"errors"
	"fmt"
)

var (
	// ErrElementNotFound means a strategy could not locate the control it drives.
	ErrElementNotFound = errors.New("challenge: element not found")
	// ErrCapabilityMissing means the page driver lacks an optional capability.
	ErrCapabilityMissing = errors.New("challenge: driver capability missing")
	// ErrManualRequired is returned by strategies that can only hand over.
	ErrManualRequired = errors.New("challenge: manual intervention required")

	// ErrStrategiesExhausted ends an episode when every strategy failed and no
	// operator is available.
	ErrStrategiesExhausted = errors.New("challenge: all strategies exhausted")
	// ErrManualAbandoned ends an episode when the operator gave up or never answered.
	ErrManualAbandoned = errors.New("challenge: manual intervention abandoned")
	// ErrChainDepthExceeded ends an episode when challenges keep appearing.
	ErrChainDepthExceeded = errors.New("challenge: chain depth exceeded")
)

// StrategyError wraps a failure inside a strategy attempt. It is always
// recovered by the orchestrator through a retry.
type StrategyError struct {
	Strategy string
	Kind     Kind
	Op       string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s (%s): %s: %v", e.Strategy, e.Kind, e.Op, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

func strategyErr(s Strategy, kind Kind, op string, err error) error {
	return &StrategyError{Strategy: s.Name(), Kind: kind, Op: op, Err: err}
}
