// File: internal/challenge/detector.go
package challenge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"go.uber.org/zap"
)

// Detector classifies the current page. Structural signatures are checked
// first; rendered text is consulted only for kinds with no structural hit.
type Detector struct {
	logger             *zap.Logger
	signatures         [numKinds]signatureSet
	ambiguityThreshold float64
	now                func() time.Time
}

// NewDetector creates a Detector with the built-in signature tables.
func NewDetector(logger *zap.Logger, ambiguityThreshold float64) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		logger:             logger.Named("detector"),
		signatures:         defaultSignatures,
		ambiguityThreshold: ambiguityThreshold,
		now:                time.Now,
	}
}

// Detect returns every challenge found on the page, highest priority first.
// An empty result means the page is navigable. Errors are driver faults.
func (d *Detector) Detect(ctx context.Context, page Page) ([]Instance, error) {
	url, err := page.CurrentURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("detector: could not read current url: %w", err)
	}

	var found []Instance
	matched := [numKinds]bool{}
	for _, kind := range Kinds() {
		inst, ok, err := d.structural(ctx, page, kind)
		if err != nil {
			return nil, err
		}
		if ok {
			inst.URL = url
			found = append(found, inst)
			matched[kind] = true
		}
	}

	if len(found) < len(Kinds()) {
		text, err := d.pageText(ctx, page)
		if err != nil {
			return nil, err
		}
		if text != "" {
			for _, kind := range Kinds() {
				if matched[kind] {
					continue
				}
				inst, ok, err := d.textual(ctx, page, kind, text)
				if err != nil {
					return nil, err
				}
				if ok {
					inst.URL = url
					found = append(found, inst)
				}
			}
		}
	}

	Prioritize(found)
	if d.Ambiguous(found) {
		d.logger.Info("Detection ambiguous; falling back to kind priority",
			zap.Int("candidates", len(found)),
			zap.Stringer("chosen", found[0].Kind))
	}
	for _, inst := range found {
		d.logger.Debug("Challenge detected",
			zap.Stringer("kind", inst.Kind),
			zap.Float64("confidence", inst.Confidence),
			zap.String("source", string(inst.Source)),
			zap.Int("elements", len(inst.Elements)))
	}
	return found, nil
}

// Present reports whether kind is still detectable on the page.
func (d *Detector) Present(ctx context.Context, page Page, kind Kind) (bool, error) {
	if _, ok, err := d.structural(ctx, page, kind); err != nil || ok {
		return ok, err
	}
	text, err := d.pageText(ctx, page)
	if err != nil || text == "" {
		return false, err
	}
	_, ok, err := d.textual(ctx, page, kind, text)
	return ok, err
}

// Ambiguous reports whether several candidates were found and none of them
// is confident enough to stand on its own.
func (d *Detector) Ambiguous(instances []Instance) bool {
	if len(instances) < 2 {
		return false
	}
	for _, inst := range instances {
		if inst.Confidence >= d.ambiguityThreshold {
			return false
		}
	}
	return true
}

func (d *Detector) structural(ctx context.Context, page Page, kind Kind) (Instance, bool, error) {
	for _, sig := range d.signatures[kind].Structural {
		refs, err := page.QueryElements(ctx, sig.Query)
		if err != nil {
			return Instance{}, false, fmt.Errorf("detector: query %s failed: %w", sig.Query, err)
		}
		if visible := visibleRefs(refs); len(visible) > 0 {
			return Instance{
				Kind:       kind,
				Confidence: sig.Confidence,
				Source:     SourceStructural,
				Elements:   visible,
				DetectedAt: d.now(),
			}, true, nil
		}
	}
	return Instance{}, false, nil
}

func (d *Detector) textual(ctx context.Context, page Page, kind Kind, text string) (Instance, bool, error) {
	set := d.signatures[kind]
	best := 0.0
	for _, p := range set.Phrases {
		if p.Confidence > best && strings.Contains(text, p.Text) {
			best = p.Confidence
		}
	}
	if best == 0 {
		return Instance{}, false, nil
	}

	var located []schemas.ElementRef
	for _, q := range set.Locators {
		refs, err := page.QueryElements(ctx, q)
		if err != nil {
			return Instance{}, false, fmt.Errorf("detector: locator %s failed: %w", q, err)
		}
		if ref, ok := smallest(visibleRefs(refs)); ok {
			located = []schemas.ElementRef{ref}
			break
		}
	}
	if len(located) == 0 && set.RequireLocated {
		return Instance{}, false, nil
	}
	return Instance{
		Kind:       kind,
		Confidence: best,
		Source:     SourceText,
		Elements:   located,
		DetectedAt: d.now(),
	}, true, nil
}

// pageText returns the lower-cased rendered text of the document body.
func (d *Detector) pageText(ctx context.Context, page Page) (string, error) {
	bodies, err := page.QueryElements(ctx, css("body"))
	if err != nil {
		return "", fmt.Errorf("detector: could not locate body: %w", err)
	}
	if len(bodies) == 0 {
		return "", nil
	}
	text, err := page.ReadText(ctx, bodies[0])
	if err != nil {
		return "", fmt.Errorf("detector: could not read page text: %w", err)
	}
	return strings.ToLower(text), nil
}

func visibleRefs(refs []schemas.ElementRef) []schemas.ElementRef {
	out := refs[:0:0]
	for _, r := range refs {
		if r.Visible && !r.Box.Empty() {
			out = append(out, r)
		}
	}
	return out
}

// smallest returns the ref with the smallest box. Text queries match every
// ancestor of the text node, and the innermost one is the control.
func smallest(refs []schemas.ElementRef) (schemas.ElementRef, bool) {
	if len(refs) == 0 {
		return schemas.ElementRef{}, false
	}
	sorted := append([]schemas.ElementRef(nil), refs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Box.Width*sorted[i].Box.Height < sorted[j].Box.Width*sorted[j].Box.Height
	})
	return sorted[0], true
}
