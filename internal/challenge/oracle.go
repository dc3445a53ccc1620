// File: internal/challenge/oracle.go
package challenge

import (
	"context"
	"time"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"go.uber.org/zap"
)

// Oracle decides whether an attempt actually cleared a challenge.
type Oracle struct {
	detector     *Detector
	pollInterval time.Duration
	markers      []schemas.Query
	logger       *zap.Logger
}

// NewOracle creates an oracle polling every pollInterval. Markers are queries
// whose presence proves the protected content loaded.
func NewOracle(detector *Detector, pollInterval time.Duration, markers []string, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	qs := make([]schemas.Query, 0, len(markers))
	for _, m := range markers {
		if m != "" {
			qs = append(qs, css(m))
		}
	}
	return &Oracle{
		detector:     detector,
		pollInterval: pollInterval,
		markers:      qs,
		logger:       logger.Named("oracle"),
	}
}

// Verify polls until the challenge is gone or timeout elapses. It returns
// false on timeout and on cancellation of ctx. Driver errors during a poll
// count as "not yet".
func (o *Oracle) Verify(ctx context.Context, inst Instance, sess *Session, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for {
		if reason, ok := o.check(ctx, inst, sess.Page()); ok {
			o.logger.Debug("Challenge cleared",
				zap.String("session_id", sess.ID),
				zap.Stringer("kind", inst.Kind),
				zap.String("reason", reason))
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (o *Oracle) check(ctx context.Context, inst Instance, page Page) (string, bool) {
	if url, err := page.CurrentURL(ctx); err == nil && inst.URL != "" && url != inst.URL {
		return "navigated", true
	}
	for _, m := range o.markers {
		refs, err := page.QueryElements(ctx, m)
		if err == nil && len(visibleRefs(refs)) > 0 {
			return "success marker", true
		}
	}
	if len(inst.Elements) == 0 {
		present, err := o.detector.Present(ctx, page, inst.Kind)
		return "kind no longer detected", err == nil && !present
	}
	gone, err := o.elementsGone(ctx, page, inst.Elements)
	return "elements gone", err == nil && gone
}

// elementsGone reports whether none of refs is still visible.
func (o *Oracle) elementsGone(ctx context.Context, page Page, refs []schemas.ElementRef) (bool, error) {
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		key := r.Query.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		current, err := page.QueryElements(ctx, r.Query)
		if err != nil {
			return false, err
		}
		if len(visibleRefs(current)) > 0 {
			return false, nil
		}
	}
	return true, nil
}
