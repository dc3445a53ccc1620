// File: internal/challenge/kind.go
package challenge

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the closed set of challenge types the engine recognizes. The
// numeric order of the resolvable kinds is also their resolution priority.
type Kind int

const (
	KindNone Kind = iota
	KindCookieConsent
	KindCheckbox
	KindPressAndHold
	KindSlider
	KindImageCaptcha

	numKinds
)

var kindNames = [numKinds]string{
	KindNone:          "none",
	KindCookieConsent: "cookie_consent",
	KindCheckbox:      "checkbox",
	KindPressAndHold:  "press_and_hold",
	KindSlider:        "slider",
	KindImageCaptcha:  "image_captcha",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return Kind(k), nil
		}
	}
	return KindNone, fmt.Errorf("challenge: unknown kind %q", s)
}

// Kinds returns every resolvable kind in priority order.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds-1)
	for k := KindCookieConsent; k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

// Priority is lower for kinds that must be cleared first. Consent overlays
// sit on top of everything else, so they always go first.
func (k Kind) Priority() int { return int(k) }

// ManualOnly reports whether the kind is never attempted automatically.
func (k Kind) ManualOnly() bool { return k == KindImageCaptcha }

// Prioritize sorts instances by kind priority, then by confidence.
func Prioritize(instances []Instance) {
	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].Kind != instances[j].Kind {
			return instances[i].Kind.Priority() < instances[j].Kind.Priority()
		}
		return instances[i].Confidence > instances[j].Confidence
	})
}
