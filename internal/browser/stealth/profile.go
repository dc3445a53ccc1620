package stealth

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/chromedp/cdproto/emulation"
)

// Viewport is the size of the page area in CSS pixels.
type Viewport struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Screen describes the physical display the viewport lives on.
type Screen struct {
	Width            int64   `json:"width"`
	Height           int64   `json:"height"`
	AvailWidth       int64   `json:"availWidth"`
	AvailHeight      int64   `json:"availHeight"`
	ColorDepth       int     `json:"colorDepth"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
}

// Geolocation is the spoofed physical position.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// ClientHints mirrors the Sec-CH-UA metadata reported alongside the user agent.
type ClientHints struct {
	Brands          []*emulation.UserAgentBrandVersion `json:"brands"`
	FullVersionList []*emulation.UserAgentBrandVersion `json:"fullVersionList,omitempty"`
	Mobile          bool                               `json:"mobile"`
	Platform        string                             `json:"platform"`
	PlatformVersion string                             `json:"platformVersion"`
	Architecture    string                             `json:"architecture,omitempty"`
	Bitness         string                             `json:"bitness,omitempty"`
}

// Profile is a complete browser fingerprint. A profile is assigned to exactly
// one session and is never modified after generation; use Clone when a copy
// that outlives the session is needed.
type Profile struct {
	UserAgent           string      `json:"userAgent"`
	Platform            string      `json:"platform"`
	ClientHints         ClientHints `json:"clientHints"`
	Languages           []string    `json:"languages"`
	Viewport            Viewport    `json:"viewport"`
	Screen              Screen      `json:"screen"`
	HardwareConcurrency int         `json:"hardwareConcurrency"`
	DeviceMemory        int         `json:"deviceMemory"`
	Timezone            string      `json:"timezoneId"`
	Locale              string      `json:"locale"`
	Geolocation         Geolocation `json:"geolocation"`

	// Group and Device name the pools the profile was drawn from.
	Group  string `json:"group"`
	Device string `json:"device"`
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	c := p
	c.Languages = slices.Clone(p.Languages)
	c.ClientHints.Brands = cloneBrands(p.ClientHints.Brands)
	c.ClientHints.FullVersionList = cloneBrands(p.ClientHints.FullVersionList)
	return c
}

func cloneBrands(in []*emulation.UserAgentBrandVersion) []*emulation.UserAgentBrandVersion {
	if in == nil {
		return nil
	}
	out := make([]*emulation.UserAgentBrandVersion, len(in))
	for i, b := range in {
		cp := *b
		out[i] = &cp
	}
	return out
}

// AcceptLanguage renders Languages as an Accept-Language header value with
// descending quality factors.
func (p Profile) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(p.Languages[0])
	for i := 1; i < len(p.Languages); i++ {
		q := math.Max(1.0-float64(i)*0.1, 0.7)
		fmt.Fprintf(&b, ",%s;q=%.1f", p.Languages[i], q)
	}
	return b.String()
}

// Consistent verifies that the timezone, locale and geolocation of p belong to
// one consistency group and that the user agent, platform and viewport belong
// to one device family.
func Consistent(p Profile) error {
	g, ok := groupByName(p.Group)
	if !ok {
		return fmt.Errorf("stealth: unknown consistency group %q", p.Group)
	}
	if p.Timezone != g.Timezone {
		return fmt.Errorf("stealth: timezone %q does not belong to group %q", p.Timezone, g.Name)
	}
	if !slices.Contains(g.Locales, p.Locale) {
		return fmt.Errorf("stealth: locale %q does not belong to group %q", p.Locale, g.Name)
	}
	if len(p.Languages) == 0 || p.Languages[0] != p.Locale {
		return fmt.Errorf("stealth: primary language must match locale %q", p.Locale)
	}
	if _, near := g.nearestCity(p.Geolocation); !near {
		return fmt.Errorf("stealth: geolocation (%.4f, %.4f) is outside group %q",
			p.Geolocation.Latitude, p.Geolocation.Longitude, g.Name)
	}

	d, ok := deviceByName(p.Device)
	if !ok {
		return fmt.Errorf("stealth: unknown device family %q", p.Device)
	}
	if p.Platform != d.Platform || p.ClientHints.Platform != d.HintPlatform {
		return fmt.Errorf("stealth: platform %q does not match device family %q", p.Platform, d.Name)
	}
	if !slices.ContainsFunc(d.UserAgents, func(ua userAgent) bool { return ua.Value == p.UserAgent }) {
		return fmt.Errorf("stealth: user agent is not part of device family %q", d.Name)
	}
	if !slices.ContainsFunc(d.Displays, func(dp display) bool { return dp.Viewport == p.Viewport }) {
		return fmt.Errorf("stealth: viewport %dx%d is not used by device family %q",
			p.Viewport.Width, p.Viewport.Height, d.Name)
	}
	return nil
}
