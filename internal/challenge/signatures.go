// File: internal/challenge/signatures.go
package challenge

import "github.com/xkilldash9x/hurdle/api/schemas"

// signature is a structural marker: an element whose presence identifies a
// challenge vendor's widget.
type signature struct {
	Query      schemas.Query
	Confidence float64
}

// phrase is a fragment of rendered text typical of a challenge.
type phrase struct {
	Text       string
	Confidence float64
}

// signatureSet holds everything the detector knows about one kind.
type signatureSet struct {
	// Structural signatures, strongest first.
	Structural []signature
	// Phrases for the text layer. Confidences stay below every structural one.
	Phrases []phrase
	// Locators find the interactive element after a text-only hit.
	Locators []schemas.Query
	// RequireLocated drops text-only hits with no located element. Consent
	// wording appears in most page footers, so a phrase alone proves little.
	RequireLocated bool
}

func css(s string) schemas.Query { return schemas.Query{CSS: s} }

func withText(s, text string) schemas.Query { return schemas.Query{CSS: s, Text: text} }

const clickables = "button, [role=button], a, input[type=button], input[type=submit]"

var defaultSignatures = [numKinds]signatureSet{
	KindCookieConsent: {
		Structural: []signature{
			{css("#onetrust-accept-btn-handler"), 0.97},
			{css(`[data-testid="accept-cookies"]`), 0.96},
			{css("#onetrust-banner-sdk"), 0.95},
			{css("#CybotCookiebotDialog"), 0.95},
			{css(".fc-consent-root"), 0.93},
			{css(".cc-window.cc-banner"), 0.92},
			{css("#truste-consent-track"), 0.92},
		},
		Phrases: []phrase{
			{"accept cookies", 0.7},
			{"we use cookies", 0.65},
			{"cookie policy", 0.55},
			{"cookie settings", 0.55},
		},
		Locators: []schemas.Query{
			withText(clickables, "accept all"),
			withText(clickables, "accept"),
			withText(clickables, "i agree"),
			withText(clickables, "allow all"),
			withText(clickables, "got it"),
		},
		RequireLocated: true,
	},
	KindCheckbox: {
		Structural: []signature{
			{css("#recaptcha-anchor"), 0.97},
			{css(`iframe[src*="recaptcha"][src*="anchor"]`), 0.96},
			{css(`iframe[src*="challenges.cloudflare.com"]`), 0.95},
			{css(`iframe[src*="hcaptcha.com"][src*="frame=checkbox"]`), 0.95},
			{css(".cf-turnstile"), 0.94},
		},
		Phrases: []phrase{
			{"i'm not a robot", 0.75},
			{"i am not a robot", 0.75},
			{"check this box", 0.7},
			{"verify you are human", 0.6},
		},
		Locators: []schemas.Query{
			css(`[role=checkbox][aria-checked="false"]`),
			css(`input[type=checkbox]`),
			css(`[role=checkbox]`),
		},
		RequireLocated: true,
	},
	KindPressAndHold: {
		Structural: []signature{
			{css("#px-captcha"), 0.97},
			{css(`[id^="px-captcha"]`), 0.95},
			{css(`[aria-label*="Press & Hold" i]`), 0.93},
			{css(`[aria-label*="press and hold" i]`), 0.93},
		},
		Phrases: []phrase{
			{"press & hold", 0.75},
			{"press and hold", 0.75},
			{"hold to confirm", 0.7},
		},
		Locators: []schemas.Query{
			withText("button, [role=button]", "hold"),
			withText("div, p, span", "press & hold"),
			withText("div, p, span", "press and hold"),
		},
		RequireLocated: true,
	},
	KindSlider: {
		Structural: []signature{
			{css(".geetest_slider_button"), 0.96},
			{css("#nc_1_n1z"), 0.96},
			{css(".geetest_btn"), 0.94},
			{css(".tc-slider-normal"), 0.93},
			{css(`[class*="captcha"] [role="slider"]`), 0.92},
		},
		Phrases: []phrase{
			{"slide to verify", 0.72},
			{"drag the slider", 0.72},
			{"slide to complete", 0.7},
			{"swipe to verify", 0.65},
		},
		Locators: []schemas.Query{
			css(`[role=slider]`),
			css(`input[type=range]`),
			css(`.slider-handle`),
			css(`[draggable=true]`),
		},
		RequireLocated: true,
	},
	KindImageCaptcha: {
		Structural: []signature{
			{css(".rc-imageselect"), 0.97},
			{css(`iframe[src*="recaptcha"][src*="bframe"]`), 0.96},
			{css(`iframe[src*="hcaptcha.com"][src*="frame=challenge"]`), 0.95},
			{css(`img[alt*="captcha" i]`), 0.9},
		},
		Phrases: []phrase{
			{"select all images", 0.7},
			{"select all squares", 0.7},
			{"click each image", 0.65},
			{"type the characters", 0.6},
			{"robot check", 0.5},
		},
		Locators: []schemas.Query{
			css(`img[src*="captcha" i]`),
			css("canvas"),
		},
	},
}

// sliderParts pairs handle selectors with the track selectors of the same widget family.
var sliderParts = []struct {
	Handle []schemas.Query
	Track  []schemas.Query
}{
	{
		Handle: []schemas.Query{css(".geetest_slider_button"), css(".geetest_btn")},
		Track:  []schemas.Query{css(".geetest_slider"), css(".geetest_track"), css(".geetest_slider_track")},
	},
	{
		Handle: []schemas.Query{css("#nc_1_n1z")},
		Track:  []schemas.Query{css("#nc_1__scale_text"), css(".nc_scale")},
	},
	{
		Handle: []schemas.Query{css(".tc-slider-normal")},
		Track:  []schemas.Query{css(".tc-drag-track"), css(".tc-slider-bg")},
	},
	{
		Handle: []schemas.Query{css(`[role=slider]`), css(".slider-handle"), css(`[draggable=true]`)},
		Track:  []schemas.Query{css(".slider-track"), css(`[class*="slider"][class*="track"]`), css(".slider"), css(`[class*="captcha"]`)},
	},
	{
		// A range input is its own track.
		Handle: []schemas.Query{css(`input[type=range]`)},
	},
}

// acceptControls locate the control that dismisses a consent overlay.
var acceptControls = []schemas.Query{
	css("#onetrust-accept-btn-handler"),
	css(`[data-testid="accept-cookies"]`),
	css("#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll"),
	css(".fc-cta-consent"),
	css(".cc-window .cc-allow"),
	withText(clickables, "accept all"),
	withText(clickables, "i accept"),
	withText(clickables, "accept"),
	withText(clickables, "i agree"),
	withText(clickables, "allow all"),
	withText(clickables, "got it"),
}
