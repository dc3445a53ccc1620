package stealth

import (
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/chromedp/cdproto/emulation"
)

// Generator draws profiles from the curated pools. It is not safe for
// concurrent use; give each goroutine its own.
type Generator struct {
	rng    *rand.Rand
	locale string
	groups []consistencyGroup
}

// NewGenerator wraps rng. The caller keeps ownership of determinism.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate returns the profile for seed. Equal seeds give equal profiles.
func Generate(seed int64) Profile {
	return NewGenerator(rand.New(rand.NewSource(seed))).Generate()
}

// GenerateForLocale returns the profile for seed, drawn only from the
// consistency groups that use locale. An empty locale behaves like Generate.
func GenerateForLocale(seed int64, locale string) (Profile, error) {
	g := NewGenerator(rand.New(rand.NewSource(seed)))
	if err := g.FixLocale(locale); err != nil {
		return Profile{}, err
	}
	return g.Generate(), nil
}

// SupportsLocale reports whether any consistency group uses locale.
func SupportsLocale(locale string) bool {
	return len(groupsForLocale(locale)) > 0
}

// FixLocale pins the locale of every later profile. Timezone and
// geolocation still come from a group that uses it.
func (g *Generator) FixLocale(locale string) error {
	if locale == "" {
		g.locale, g.groups = "", nil
		return nil
	}
	groups := groupsForLocale(locale)
	if len(groups) == 0 {
		return fmt.Errorf("stealth: no consistency group uses locale %q", locale)
	}
	g.locale, g.groups = locale, groups
	return nil
}

func groupsForLocale(locale string) []consistencyGroup {
	var out []consistencyGroup
	for _, c := range consistencyGroups {
		if slices.Contains(c.Locales, locale) {
			out = append(out, c)
		}
	}
	return out
}

// GenerateRandom returns a profile drawn from a time-seeded source.
func GenerateRandom() Profile {
	return Generate(time.Now().UnixNano())
}

// Generate draws one profile.
func (g *Generator) Generate() Profile {
	groups := consistencyGroups
	if g.locale != "" {
		groups = g.groups
	}
	group := pickWeighted(g.rng, groups, func(c consistencyGroup) int { return c.Weight })
	device := pickWeighted(g.rng, deviceFamilies, func(d deviceFamily) int { return d.Weight })

	locale := group.Locales[g.rng.Intn(len(group.Locales))]
	if g.locale != "" {
		locale = g.locale
	}
	place := group.Cities[g.rng.Intn(len(group.Cities))]
	ua := device.UserAgents[g.rng.Intn(len(device.UserAgents))]
	disp := device.Displays[g.rng.Intn(len(device.Displays))]

	languages := append([]string{locale}, secondaryLanguages[locale]...)

	return Profile{
		UserAgent:   ua.Value,
		Platform:    device.Platform,
		ClientHints: clientHintsFor(device, ua),
		Languages:   slices.Clip(languages),
		Viewport:    disp.Viewport,
		Screen:      disp.Screen,

		HardwareConcurrency: device.Cores[g.rng.Intn(len(device.Cores))],
		DeviceMemory:        device.Memory[g.rng.Intn(len(device.Memory))],

		Timezone: group.Timezone,
		Locale:   locale,
		Geolocation: Geolocation{
			Latitude:  place.Latitude + g.offset(),
			Longitude: place.Longitude + g.offset(),
			Accuracy:  20 + g.rng.Float64()*100,
		},

		Group:  group.Name,
		Device: device.Name,
	}
}

// offset returns a uniform value in [-maxGeoOffset, maxGeoOffset].
func (g *Generator) offset() float64 {
	return (g.rng.Float64()*2 - 1) * maxGeoOffset
}

func clientHintsFor(d deviceFamily, ua userAgent) ClientHints {
	return ClientHints{
		Brands: []*emulation.UserAgentBrandVersion{
			{Brand: "Google Chrome", Version: ua.MajorVersion},
			{Brand: "Chromium", Version: ua.MajorVersion},
			{Brand: "Not?A_Brand", Version: "99"},
		},
		FullVersionList: []*emulation.UserAgentBrandVersion{
			{Brand: "Google Chrome", Version: ua.FullVersion},
			{Brand: "Chromium", Version: ua.FullVersion},
			{Brand: "Not?A_Brand", Version: "99.0.0.0"},
		},
		Platform:        d.HintPlatform,
		PlatformVersion: d.HintPlatformVersion,
		Architecture:    d.Architecture,
		Bitness:         "64",
	}
}

func pickWeighted[T any](rng *rand.Rand, items []T, weight func(T) int) T {
	total := 0
	for _, it := range items {
		total += weight(it)
	}
	n := rng.Intn(total)
	for _, it := range items {
		n -= weight(it)
		if n < 0 {
			return it
		}
	}
	return items[len(items)-1]
}
