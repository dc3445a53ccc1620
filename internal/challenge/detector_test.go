package challenge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/hurdle/api/schemas"
)

var (
	bannerBox = schemas.Rect{X: 0, Y: 600, Width: 1280, Height: 200}
	buttonBox = schemas.Rect{X: 1000, Y: 700, Width: 120, Height: 36}
	holdBox   = schemas.Rect{X: 540, Y: 360, Width: 240, Height: 60}
)

func newTestDetector(t *testing.T) *Detector {
	return NewDetector(zaptest.NewLogger(t), 0.75)
}

func TestDetector_EmptyPageIsNavigable(t *testing.T) {
	page := newFakePage("https://example.com/")
	page.body = "Homes for sale in Austin"

	found, err := newTestDetector(t).Detect(context.Background(), page)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDetector_StructuralSignature(t *testing.T) {
	page := newFakePage("https://example.com/")
	page.set("#onetrust-banner-sdk", fakeElement{Tag: "DIV", Box: bannerBox})

	found, err := newTestDetector(t).Detect(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, found, 1)
	inst := found[0]
	assert.Equal(t, KindCookieConsent, inst.Kind)
	assert.Equal(t, SourceStructural, inst.Source)
	assert.InDelta(t, 0.95, inst.Confidence, 1e-9)
	assert.Equal(t, "https://example.com/", inst.URL)
	assert.False(t, inst.DetectedAt.IsZero())
	require.Len(t, inst.Elements, 1)
	assert.Equal(t, bannerBox, inst.Elements[0].Box)
}

func TestDetector_PrioritizesConsentOverHold(t *testing.T) {
	page := newFakePage("https://example.com/")
	page.set("#px-captcha", fakeElement{Tag: "DIV", Box: holdBox})
	page.set("#onetrust-accept-btn-handler", fakeElement{Tag: "BUTTON", Box: buttonBox, Text: "Accept All"})

	found, err := newTestDetector(t).Detect(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, KindCookieConsent, found[0].Kind)
	assert.Equal(t, KindPressAndHold, found[1].Kind)
}

func TestDetector_IgnoresHiddenElements(t *testing.T) {
	page := newFakePage("https://example.com/")
	page.set("#px-captcha", fakeElement{Tag: "DIV", Box: holdBox, Hidden: true})
	page.set("#recaptcha-anchor", fakeElement{Tag: "SPAN"})

	found, err := newTestDetector(t).Detect(context.Background(), page)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDetector_TextLayer(t *testing.T) {
	t.Run("phrase without a control is not a challenge", func(t *testing.T) {
		page := newFakePage("https://example.com/")
		page.body = "We use cookies to improve your experience. Read our cookie policy."

		found, err := newTestDetector(t).Detect(context.Background(), page)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("phrase with a located control", func(t *testing.T) {
		page := newFakePage("https://example.com/")
		page.body = "We use cookies to improve your experience."
		page.set(clickables,
			fakeElement{Tag: "DIV", Box: bannerBox, Text: "We use cookies. Accept all"},
			fakeElement{Tag: "BUTTON", Box: buttonBox, Text: "Accept all"},
		)

		found, err := newTestDetector(t).Detect(context.Background(), page)
		require.NoError(t, err)
		require.Len(t, found, 1)
		inst := found[0]
		assert.Equal(t, KindCookieConsent, inst.Kind)
		assert.Equal(t, SourceText, inst.Source)
		assert.InDelta(t, 0.65, inst.Confidence, 1e-9)
		require.Len(t, inst.Elements, 1)
		assert.Equal(t, buttonBox, inst.Elements[0].Box, "the innermost match is the control")
	})

	t.Run("image captcha needs no control", func(t *testing.T) {
		page := newFakePage("https://example.com/")
		page.body = "Please select all images with a bus"

		found, err := newTestDetector(t).Detect(context.Background(), page)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, KindImageCaptcha, found[0].Kind)
		assert.Empty(t, found[0].Elements)
		assert.Less(t, found[0].Confidence, 0.9)
	})

	t.Run("structural hit suppresses text for the same kind", func(t *testing.T) {
		page := newFakePage("https://example.com/")
		page.body = "Press & Hold to confirm you are a human"
		page.set("#px-captcha", fakeElement{Tag: "DIV", Box: holdBox})

		found, err := newTestDetector(t).Detect(context.Background(), page)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, SourceStructural, found[0].Source)
	})
}

func TestDetector_Present(t *testing.T) {
	page := newFakePage("https://example.com/")
	page.set("#px-captcha", fakeElement{Tag: "DIV", Box: holdBox})
	d := newTestDetector(t)

	present, err := d.Present(context.Background(), page, KindPressAndHold)
	require.NoError(t, err)
	assert.True(t, present)

	present, err = d.Present(context.Background(), page, KindSlider)
	require.NoError(t, err)
	assert.False(t, present)

	page.remove("#px-captcha")
	present, err = d.Present(context.Background(), page, KindPressAndHold)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestDetector_Ambiguous(t *testing.T) {
	d := newTestDetector(t)
	low := []Instance{{Kind: KindPressAndHold, Confidence: 0.7}, {Kind: KindImageCaptcha, Confidence: 0.5}}
	assert.True(t, d.Ambiguous(low))

	confident := []Instance{{Kind: KindPressAndHold, Confidence: 0.97}, {Kind: KindImageCaptcha, Confidence: 0.5}}
	assert.False(t, d.Ambiguous(confident))
	assert.False(t, d.Ambiguous(low[:1]))
	assert.False(t, d.Ambiguous(nil))
}

func TestDetector_DriverErrorPropagates(t *testing.T) {
	page := newFakePage("https://example.com/")
	boom := errors.New("cdp: target closed")
	page.setQueryErr(boom)

	_, err := newTestDetector(t).Detect(context.Background(), page)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPrioritize(t *testing.T) {
	in := []Instance{
		{Kind: KindImageCaptcha, Confidence: 0.97},
		{Kind: KindSlider, Confidence: 0.7},
		{Kind: KindCheckbox, Confidence: 0.6},
		{Kind: KindCheckbox, Confidence: 0.95},
		{Kind: KindCookieConsent, Confidence: 0.5},
	}
	Prioritize(in)
	var got []Kind
	for _, i := range in {
		got = append(got, i.Kind)
	}
	assert.Equal(t, []Kind{KindCookieConsent, KindCheckbox, KindCheckbox, KindSlider, KindImageCaptcha}, got)
	assert.Equal(t, 0.95, in[1].Confidence)
}
