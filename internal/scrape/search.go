package scrape

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"github.com/xkilldash9x/hurdle/internal/challenge"
)

// ErrSearchInputMissing is returned when no attempt found the search box.
var ErrSearchInputMissing = errors.New("scrape: search input not found")

// searchInputs locate the site search box, most specific first.
var searchInputs = []schemas.Query{
	{CSS: `input[aria-label="Enter an address, neighborhood, city, or ZIP code"]`},
	{CSS: `input[placeholder*="address"]`},
	{CSS: `input[placeholder*="city"]`},
	{CSS: `input[placeholder*="ZIP"]`},
	{CSS: `[data-test="search-input"]`},
	{CSS: `input[type="search"]`},
	{CSS: `input[type="text"]`},
}

var closeButtons = []schemas.Query{
	{CSS: `button[aria-label="Close"]`},
	{CSS: `[role="dialog"] button[aria-label="close"]`},
}

// listingTypePrompt is the dialog asking whether to show homes for sale or
// for rent.
var listingTypePrompt = schemas.Query{CSS: "body", Text: "What type of listings would you like to see"}

var forSaleButtons = []schemas.Query{
	{CSS: `[data-test="for-sale-button"]`},
	{CSS: "button", Text: "For sale"},
	{CSS: "a", Text: "For sale"},
}

// firstVisible returns the first visible element matched by any of queries.
func firstVisible(ctx context.Context, page challenge.Page, queries []schemas.Query) (schemas.ElementRef, bool, error) {
	for _, q := range queries {
		refs, err := page.QueryElements(ctx, q)
		if err != nil {
			return schemas.ElementRef{}, false, err
		}
		for _, ref := range refs {
			if ref.Visible && !ref.Box.Empty() {
				return ref, true, nil
			}
		}
	}
	return schemas.ElementRef{}, false, nil
}

// runSearch submits the configured query, then clears whatever challenge the
// results page raises. The returned outcome covers both episodes.
func (r *Runner) runSearch(ctx context.Context, sess *challenge.Session, logger *zap.Logger, landing challenge.Outcome) challenge.Outcome {
	if err := r.search(ctx, sess, logger); err != nil {
		logger.Warn("Search failed.", zap.String("query", r.cfg.Query), zap.Error(err))
		landing.Status = challenge.StatusExhausted
		landing.Err = fmt.Errorf("search %q: %w", r.cfg.Query, err)
		return landing
	}
	if err := r.sleeper.Sleep(ctx, r.settleDelay()); err != nil {
		landing.Status = challenge.StatusExhausted
		landing.Err = err
		return landing
	}

	after := r.orchestrator.Resolve(ctx, sess, r.cfg.Policy)
	if after.Succeeded() {
		r.dismissModals(ctx, sess, logger)
	}
	return mergeOutcomes(landing, after)
}

// search types the query into the site search box and presses Enter. When the
// box is missing the page is reloaded and the lookup repeated, up to
// SearchAttempts times.
func (r *Runner) search(ctx context.Context, sess *challenge.Session, logger *zap.Logger) error {
	page := sess.Page()
	keys, ok := page.(challenge.KeyPresser)
	if !ok {
		return errors.New("browser session cannot type")
	}
	motor := sess.Motor()

	attempts := max(r.cfg.SearchAttempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		r.dismissModals(ctx, sess, logger)

		input, found, err := firstVisible(ctx, page, searchInputs)
		if err != nil {
			return fmt.Errorf("locate search input: %w", err)
		}
		if !found {
			logger.Info("Search input not found.", zap.Int("attempt", attempt), zap.Int("of", attempts))
			if attempt == attempts {
				break
			}
			if rl, ok := page.(challenge.Reloader); ok {
				if err := rl.Reload(ctx); err != nil {
					return fmt.Errorf("reload: %w", err)
				}
			}
			if err := r.sleeper.Sleep(ctx, r.settleDelay()); err != nil {
				return err
			}
			continue
		}

		if err := motor.Click(ctx, input.Box); err != nil {
			return fmt.Errorf("focus search input: %w", err)
		}
		// Clear whatever the site prefilled.
		if prefilled, err := page.ReadText(ctx, input); err == nil {
			for range []rune(prefilled) {
				if err := pressKey(ctx, keys, motor.KeyPause, "Backspace"); err != nil {
					return err
				}
			}
		}
		for _, ch := range r.cfg.Query {
			if err := pressKey(ctx, keys, motor.KeyPause, string(ch)); err != nil {
				return err
			}
		}
		if err := motor.Pause(ctx, 500*time.Millisecond, 1500*time.Millisecond); err != nil {
			return err
		}
		if err := keys.PressKey(ctx, "Enter"); err != nil {
			return fmt.Errorf("submit search: %w", err)
		}
		logger.Info("Search submitted.", zap.String("query", r.cfg.Query), zap.Int("attempt", attempt))
		return nil
	}
	return ErrSearchInputMissing
}

func pressKey(ctx context.Context, keys challenge.KeyPresser, pause func(context.Context) error, key string) error {
	if err := keys.PressKey(ctx, key); err != nil {
		return fmt.Errorf("type %q: %w", key, err)
	}
	return pause(ctx)
}

// dismissModals closes a generic dialog and answers the listing type prompt
// with "for sale". Failures are logged and otherwise ignored.
func (r *Runner) dismissModals(ctx context.Context, sess *challenge.Session, logger *zap.Logger) {
	page := sess.Page()
	motor := sess.Motor()

	if ref, ok, err := firstVisible(ctx, page, closeButtons); err == nil && ok {
		if err := motor.Click(ctx, ref.Box); err != nil {
			logger.Debug("Could not close modal.", zap.Error(err))
		} else {
			logger.Debug("Closed modal.", zap.Stringer("button", ref))
			_ = motor.Pause(ctx, 500*time.Millisecond, 1200*time.Millisecond)
		}
	}

	prompt, err := page.QueryElements(ctx, listingTypePrompt)
	if err != nil || len(prompt) == 0 {
		return
	}
	ref, ok, err := firstVisible(ctx, page, forSaleButtons)
	if err != nil || !ok {
		logger.Info("Listing type prompt has no for-sale choice.")
		return
	}
	if err := motor.Click(ctx, ref.Box); err != nil {
		logger.Debug("Could not choose for-sale listings.", zap.Error(err))
		return
	}
	logger.Debug("Chose for-sale listings.")
	_ = motor.Pause(ctx, 2*time.Second, 3*time.Second)
}

// mergeOutcomes folds the episode after the search into the landing episode.
func mergeOutcomes(landing, after challenge.Outcome) challenge.Outcome {
	out := after
	out.ChainDepth = max(landing.ChainDepth, after.ChainDepth)
	out.Resolved = append(slices.Clip(landing.Resolved), after.Resolved...)
	out.Attempts = append(slices.Clip(landing.Attempts), after.Attempts...)
	out.Elapsed = landing.Elapsed + after.Elapsed
	if out.Status == challenge.StatusResolved && landing.Status == challenge.StatusManualResolved {
		out.Status = challenge.StatusManualResolved
	}
	return out
}
