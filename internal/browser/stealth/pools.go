package stealth

import "math"

// maxGeoOffset is the largest per-axis offset (degrees) applied to a city
// centre. About 5km, which keeps the position inside the metro area.
const maxGeoOffset = 0.05

type city struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// consistencyGroup binds a timezone to the locales and places that are
// plausible for it. A profile draws all three from a single group.
type consistencyGroup struct {
	Name     string
	Timezone string
	Locales  []string
	Cities   []city
	// Weight biases selection toward the regions the target sites serve.
	Weight int
}

func (g consistencyGroup) nearestCity(geo Geolocation) (city, bool) {
	for _, c := range g.Cities {
		if math.Abs(c.Latitude-geo.Latitude) <= maxGeoOffset+1e-9 &&
			math.Abs(c.Longitude-geo.Longitude) <= maxGeoOffset+1e-9 {
			return c, true
		}
	}
	return city{}, false
}

var consistencyGroups = []consistencyGroup{
	{
		Name: "us-eastern", Timezone: "America/New_York", Locales: []string{"en-US"}, Weight: 6,
		Cities: []city{
			{"New York", 40.7128, -74.0060},
			{"Boston", 42.3601, -71.0589},
			{"Atlanta", 33.7490, -84.3880},
			{"Miami", 25.7617, -80.1918},
			{"Philadelphia", 39.9526, -75.1652},
		},
	},
	{
		Name: "us-central", Timezone: "America/Chicago", Locales: []string{"en-US"}, Weight: 5,
		Cities: []city{
			{"Chicago", 41.8781, -87.6298},
			{"Houston", 29.7604, -95.3698},
			{"Austin", 30.2672, -97.7431},
			{"Dallas", 32.7767, -96.7970},
			{"Minneapolis", 44.9778, -93.2650},
		},
	},
	{
		Name: "us-mountain", Timezone: "America/Denver", Locales: []string{"en-US"}, Weight: 2,
		Cities: []city{
			{"Denver", 39.7392, -104.9903},
			{"Salt Lake City", 40.7608, -111.8910},
			{"Albuquerque", 35.0844, -106.6504},
		},
	},
	{
		// Arizona does not observe daylight saving time.
		Name: "us-arizona", Timezone: "America/Phoenix", Locales: []string{"en-US"}, Weight: 1,
		Cities: []city{
			{"Phoenix", 33.4484, -112.0740},
			{"Tucson", 32.2226, -110.9747},
		},
	},
	{
		Name: "us-pacific", Timezone: "America/Los_Angeles", Locales: []string{"en-US"}, Weight: 5,
		Cities: []city{
			{"Los Angeles", 34.0522, -118.2437},
			{"San Francisco", 37.7749, -122.4194},
			{"Seattle", 47.6062, -122.3321},
			{"San Diego", 32.7157, -117.1611},
		},
	},
	{
		Name: "ca-eastern", Timezone: "America/Toronto", Locales: []string{"en-CA", "fr-CA"}, Weight: 1,
		Cities: []city{
			{"Toronto", 43.6532, -79.3832},
			{"Ottawa", 45.4215, -75.6972},
			{"Montreal", 45.5019, -73.5674},
		},
	},
	{
		Name: "gb", Timezone: "Europe/London", Locales: []string{"en-GB"}, Weight: 2,
		Cities: []city{
			{"London", 51.5074, -0.1278},
			{"Manchester", 53.4808, -2.2426},
			{"Birmingham", 52.4862, -1.8904},
		},
	},
	{
		Name: "de", Timezone: "Europe/Berlin", Locales: []string{"de-DE"}, Weight: 1,
		Cities: []city{
			{"Berlin", 52.5200, 13.4050},
			{"Munich", 48.1351, 11.5820},
			{"Hamburg", 53.5511, 9.9937},
		},
	},
	{
		Name: "fr", Timezone: "Europe/Paris", Locales: []string{"fr-FR"}, Weight: 1,
		Cities: []city{
			{"Paris", 48.8566, 2.3522},
			{"Lyon", 45.7640, 4.8357},
		},
	},
}

// secondaryLanguages lists what follows the locale in navigator.languages.
var secondaryLanguages = map[string][]string{
	"en-US": {"en"},
	"en-GB": {"en"},
	"en-CA": {"en", "fr-CA"},
	"fr-CA": {"fr", "en-CA", "en"},
	"de-DE": {"de", "en-US", "en"},
	"fr-FR": {"fr", "en-US", "en"},
}

type userAgent struct {
	Value        string
	MajorVersion string
	FullVersion  string
}

type display struct {
	Viewport Viewport
	Screen   Screen
}

// deviceFamily binds user agents to the platform strings and display sizes
// a real install of that browser would report.
type deviceFamily struct {
	Name                string
	Platform            string
	HintPlatform        string
	HintPlatformVersion string
	Architecture        string
	UserAgents          []userAgent
	Displays            []display
	Cores               []int
	Memory              []int
	Weight              int
}

func scr(w, h, availH int64, dpr float64) Screen {
	return Screen{Width: w, Height: h, AvailWidth: w, AvailHeight: availH, ColorDepth: 24, DevicePixelRatio: dpr}
}

var deviceFamilies = []deviceFamily{
	{
		Name: "windows-chrome", Platform: "Win32", HintPlatform: "Windows", HintPlatformVersion: "15.0.0",
		Architecture: "x86", Weight: 6,
		UserAgents: []userAgent{
			{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36", "129", "129.0.6668.90"},
			{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36", "130", "130.0.6723.117"},
			{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36", "131", "131.0.6778.86"},
		},
		Displays: []display{
			{Viewport{1366, 657}, scr(1366, 768, 728, 1)},
			{Viewport{1536, 730}, scr(1536, 864, 824, 1.25)},
			{Viewport{1920, 969}, scr(1920, 1080, 1040, 1)},
			{Viewport{1280, 609}, scr(1280, 720, 680, 1.5)},
		},
		Cores:  []int{4, 8, 12, 16},
		Memory: []int{8, 16},
	},
	{
		Name: "macos-chrome", Platform: "MacIntel", HintPlatform: "macOS", HintPlatformVersion: "14.6.1",
		Architecture: "arm", Weight: 3,
		UserAgents: []userAgent{
			{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36", "130", "130.0.6723.117"},
			{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36", "131", "131.0.6778.86"},
		},
		Displays: []display{
			{Viewport{1440, 789}, scr(1440, 900, 875, 2)},
			{Viewport{1512, 862}, scr(1512, 982, 944, 2)},
			{Viewport{1728, 1000}, scr(1728, 1117, 1079, 2)},
		},
		Cores:  []int{8, 10, 12},
		Memory: []int{8, 16},
	},
	{
		Name: "linux-chrome", Platform: "Linux x86_64", HintPlatform: "Linux", HintPlatformVersion: "6.8.0",
		Architecture: "x86", Weight: 1,
		UserAgents: []userAgent{
			{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36", "130", "130.0.6723.116"},
			{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36", "131", "131.0.6778.85"},
		},
		Displays: []display{
			{Viewport{1920, 975}, scr(1920, 1080, 1053, 1)},
			{Viewport{2560, 1295}, scr(2560, 1440, 1413, 1)},
			{Viewport{1280, 615}, scr(1280, 720, 693, 1)},
		},
		Cores:  []int{4, 8, 16},
		Memory: []int{8, 16, 32},
	},
}

func groupByName(name string) (consistencyGroup, bool) {
	for _, g := range consistencyGroups {
		if g.Name == name {
			return g, true
		}
	}
	return consistencyGroup{}, false
}

func deviceByName(name string) (deviceFamily, bool) {
	for _, d := range deviceFamilies {
		if d.Name == name {
			return d, true
		}
	}
	return deviceFamily{}, false
}

// GroupForTimezone returns the consistency group name owning tz.
func GroupForTimezone(tz string) (string, bool) {
	for _, g := range consistencyGroups {
		if g.Timezone == tz {
			return g.Name, true
		}
	}
	return "", false
}

// GroupForLocation returns the consistency group whose cities contain geo.
func GroupForLocation(geo Geolocation) (string, bool) {
	for _, g := range consistencyGroups {
		if _, ok := g.nearestCity(geo); ok {
			return g.Name, true
		}
	}
	return "", false
}
