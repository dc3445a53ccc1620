// File: internal/challenge/strategy.go
package challenge

import "context"

// Strategy defeats one kind of challenge.
type Strategy interface {
	Name() string
	Applicable(kind Kind) bool
	// Attempt performs the interaction. It returns a *StrategyError when the
	// attempt could not be carried out and ErrManualRequired when only an
	// operator can proceed. A nil error does not mean the challenge is gone;
	// the oracle decides that.
	Attempt(ctx context.Context, inst Instance, sess *Session) error
}

// Registry maps every kind to its strategies in the order they are tried.
// It is indexed by Kind so a new kind cannot be added without a slot.
type Registry [numKinds][]Strategy

// DefaultRegistry returns the built-in strategy table.
func DefaultRegistry() Registry {
	return Registry{
		KindCookieConsent: {cookieConsentStrategy{}},
		KindCheckbox:      {checkboxStrategy{}, keyboardCheckboxStrategy{}},
		KindPressAndHold:  {pressAndHoldStrategy{}},
		KindSlider:        {sliderStrategy{}},
		KindImageCaptcha:  {imageCaptchaStrategy{}},
	}
}

// For returns the strategies registered for kind.
func (r Registry) For(kind Kind) []Strategy {
	if kind < 0 || kind >= numKinds {
		return nil
	}
	return r[kind]
}
