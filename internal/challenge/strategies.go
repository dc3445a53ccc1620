// File: internal/challenge/strategies.go
package challenge

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"github.com/xkilldash9x/hurdle/internal/browser/humanoid"
)

// locate returns the instance's own element when it still matches, or the
// first visible match of the fallback queries.
func locate(ctx context.Context, page Page, inst Instance, fallbacks []schemas.Query) (schemas.ElementRef, error) {
	if ref, ok := inst.Primary(); ok {
		return ref, nil
	}
	return firstVisible(ctx, page, fallbacks)
}

func firstVisible(ctx context.Context, page Page, queries []schemas.Query) (schemas.ElementRef, error) {
	for _, q := range queries {
		refs, err := page.QueryElements(ctx, q)
		if err != nil {
			return schemas.ElementRef{}, err
		}
		if ref, ok := smallest(visibleRefs(refs)); ok {
			return ref, nil
		}
	}
	return schemas.ElementRef{}, ErrElementNotFound
}

// -- Cookie consent --

type cookieConsentStrategy struct{}

func (cookieConsentStrategy) Name() string              { return "cookie_consent_accept" }
func (cookieConsentStrategy) Applicable(kind Kind) bool { return kind == KindCookieConsent }

// Attempt activates the accept control. The detected element is usually the
// banner, so accept controls are looked up first.
func (s cookieConsentStrategy) Attempt(ctx context.Context, inst Instance, sess *Session) error {
	page := sess.Page()
	ref, err := firstVisible(ctx, page, acceptControls)
	if err != nil {
		return strategyErr(s, inst.Kind, "locate accept control", err)
	}
	if err := page.Click(ctx, ref); err != nil {
		return strategyErr(s, inst.Kind, "click accept control", err)
	}
	return nil
}

// -- Checkbox --

type checkboxStrategy struct{}

func (checkboxStrategy) Name() string              { return "checkbox_click" }
func (checkboxStrategy) Applicable(kind Kind) bool { return kind == KindCheckbox }

// Attempt approaches the checkbox, hovers for a moment and clicks it.
func (s checkboxStrategy) Attempt(ctx context.Context, inst Instance, sess *Session) error {
	ref, err := locate(ctx, sess.Page(), inst, defaultSignatures[KindCheckbox].Locators)
	if err != nil {
		return strategyErr(s, inst.Kind, "locate checkbox", err)
	}
	box := ref.Box
	// Widget iframes put the box near the left edge; aim there rather than
	// at the middle of the frame.
	if ref.TagName == "IFRAME" && box.Width > 2*box.Height {
		box = schemas.Rect{X: box.X + box.Height*0.25, Y: box.Y + box.Height*0.25, Width: box.Height * 0.5, Height: box.Height * 0.5}
	}
	if err := sess.Motor().Click(ctx, box); err != nil {
		return strategyErr(s, inst.Kind, "click checkbox", err)
	}
	return nil
}

// keyboardCheckboxStrategy focuses the widget with Tab and toggles it with
// Space. Some widgets ignore synthesized pointer input but accept keys.
type keyboardCheckboxStrategy struct{}

func (keyboardCheckboxStrategy) Name() string              { return "checkbox_keyboard" }
func (keyboardCheckboxStrategy) Applicable(kind Kind) bool { return kind == KindCheckbox }

func (s keyboardCheckboxStrategy) Attempt(ctx context.Context, inst Instance, sess *Session) error {
	keys, ok := sess.Page().(KeyPresser)
	if !ok {
		return strategyErr(s, inst.Kind, "keyboard input", ErrCapabilityMissing)
	}
	motor := sess.Motor()
	for _, key := range []string{"Tab", " "} {
		if err := motor.KeyPause(ctx); err != nil {
			return strategyErr(s, inst.Kind, "pause", err)
		}
		if err := keys.PressKey(ctx, key); err != nil {
			return strategyErr(s, inst.Kind, fmt.Sprintf("press %q", key), err)
		}
	}
	return nil
}

// -- Press and hold --

type pressAndHoldStrategy struct{}

func (pressAndHoldStrategy) Name() string              { return "press_and_hold" }
func (pressAndHoldStrategy) Applicable(kind Kind) bool { return kind == KindPressAndHold }

// Attempt presses the target and holds for a duration that never repeats the
// previous attempt's.
func (s pressAndHoldStrategy) Attempt(ctx context.Context, inst Instance, sess *Session) error {
	ref, err := locate(ctx, sess.Page(), inst, defaultSignatures[KindPressAndHold].Locators)
	if err != nil {
		return strategyErr(s, inst.Kind, "locate hold target", err)
	}
	if _, err := sess.Motor().PressAndHold(ctx, ref.Box); err != nil {
		return strategyErr(s, inst.Kind, "press and hold", err)
	}
	return nil
}

// -- Slider --

// errGeometry is wrapped when slider geometry leaves nothing to drag.
var errGeometry = errors.New("challenge: slider geometry leaves no travel")

type sliderStrategy struct{}

func (sliderStrategy) Name() string              { return "slider_drag" }
func (sliderStrategy) Applicable(kind Kind) bool { return kind == KindSlider }

// Attempt drags the handle to the far end of its track.
func (s sliderStrategy) Attempt(ctx context.Context, inst Instance, sess *Session) error {
	handle, track, err := sliderGeometry(ctx, sess.Page())
	if err != nil {
		return strategyErr(s, inst.Kind, "read slider geometry", err)
	}
	motor := sess.Motor()
	offset := SliderOffset(handle, track, motor.DragMargin())
	if offset <= 0 {
		return strategyErr(s, inst.Kind, "compute offset", errGeometry)
	}
	start := humanoid.FromPoint(handle.Center())
	if err := motor.DragBy(ctx, start, offset); err != nil {
		return strategyErr(s, inst.Kind, "drag", err)
	}
	return nil
}

// SliderOffset is the horizontal distance that brings the centre of handle
// to margin pixels short of the track's right edge. A range input is its own
// track, with a thumb as wide as the input is tall at the left end.
func SliderOffset(handle, track schemas.Rect, margin float64) float64 {
	if handle == track {
		thumb := handle.Height
		return handle.Width - thumb - margin
	}
	return track.Right() - handle.Width/2 - margin - handle.Center().X
}

func sliderGeometry(ctx context.Context, page Page) (schemas.Rect, schemas.Rect, error) {
	for _, family := range sliderParts {
		handleRef, err := firstVisible(ctx, page, family.Handle)
		if errors.Is(err, ErrElementNotFound) {
			continue
		}
		if err != nil {
			return schemas.Rect{}, schemas.Rect{}, err
		}
		if len(family.Track) == 0 {
			return handleRef.Box, handleRef.Box, nil
		}
		track, err := trackFor(ctx, page, handleRef.Box, family.Track)
		if err != nil {
			return schemas.Rect{}, schemas.Rect{}, err
		}
		return handleRef.Box, track, nil
	}
	return schemas.Rect{}, schemas.Rect{}, fmt.Errorf("slider handle: %w", ErrElementNotFound)
}

// trackFor picks the narrowest candidate that contains the handle's centre
// line and extends to its right.
func trackFor(ctx context.Context, page Page, handle schemas.Rect, queries []schemas.Query) (schemas.Rect, error) {
	hc := handle.Center()
	var best schemas.Rect
	found := false
	for _, q := range queries {
		refs, err := page.QueryElements(ctx, q)
		if err != nil {
			return schemas.Rect{}, err
		}
		for _, r := range visibleRefs(refs) {
			b := r.Box
			if hc.Y < b.Y || hc.Y > b.Bottom() || b.Right() <= handle.Right() || b.X > hc.X {
				continue
			}
			if !found || b.Width < best.Width {
				best, found = b, true
			}
		}
	}
	if !found {
		return schemas.Rect{}, fmt.Errorf("slider track: %w", ErrElementNotFound)
	}
	return best, nil
}

// -- Image captcha --

type imageCaptchaStrategy struct{}

func (imageCaptchaStrategy) Name() string              { return "image_captcha_handover" }
func (imageCaptchaStrategy) Applicable(kind Kind) bool { return kind == KindImageCaptcha }

// Attempt never solves anything; image puzzles always go to an operator.
func (imageCaptchaStrategy) Attempt(context.Context, Instance, *Session) error {
	return ErrManualRequired
}
