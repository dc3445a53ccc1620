package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
	"github.com/xkilldash9x/hurdle/internal/config"
)

// flagValue returns the last value set for name, mirroring how the exec
// allocator resolves repeated flags.
func flagValue(flags []chromeFlag, name string) (interface{}, bool) {
	var v interface{}
	found := false
	for _, f := range flags {
		if f.name == name {
			v, found = f.value, true
		}
	}
	return v, found
}

func TestChromeFlags(t *testing.T) {
	profile := stealth.Generate(7)

	t.Run("StealthDefaults", func(t *testing.T) {
		flags := chromeFlags(config.BrowserConfig{}, stealth.Profile{}, "")
		v, ok := flagValue(flags, "disable-blink-features")
		assert.True(t, ok)
		assert.Equal(t, "AutomationControlled", v)
		_, ok = flagValue(flags, "enable-automation")
		assert.False(t, ok, "automation switch must not be passed")
		_, ok = flagValue(flags, "headless")
		assert.False(t, ok)
		_, ok = flagValue(flags, "proxy-server")
		assert.False(t, ok)
	})

	t.Run("Headless", func(t *testing.T) {
		v, ok := flagValue(chromeFlags(config.BrowserConfig{Headless: true}, stealth.Profile{}, ""), "headless")
		assert.True(t, ok)
		assert.Equal(t, "new", v)
	})

	t.Run("ProfileAndProxy", func(t *testing.T) {
		flags := chromeFlags(config.BrowserConfig{}, profile, "http://10.0.0.1:8080")

		v, _ := flagValue(flags, "user-agent")
		assert.Equal(t, profile.UserAgent, v)
		v, _ = flagValue(flags, "lang")
		assert.Equal(t, profile.Locale, v)
		v, ok := flagValue(flags, "window-size")
		assert.True(t, ok)
		assert.Regexp(t, `^\d+,\d+$`, v)
		v, _ = flagValue(flags, "proxy-server")
		assert.Equal(t, "http://10.0.0.1:8080", v)
	})

	t.Run("CustomArgs", func(t *testing.T) {
		cfg := config.BrowserConfig{Args: []string{"--custom-arg1", "window-size=800,600", "--", "--lang=fr-FR"}}
		flags := chromeFlags(cfg, profile, "")

		v, ok := flagValue(flags, "custom-arg1")
		assert.True(t, ok)
		assert.Equal(t, true, v)
		v, _ = flagValue(flags, "window-size")
		assert.Equal(t, "800,600", v, "configured args override profile switches")
		v, _ = flagValue(flags, "lang")
		assert.Equal(t, "fr-FR", v)
		_, ok = flagValue(flags, "")
		assert.False(t, ok)
	})
}

func TestDefaultAllocatorOptions(t *testing.T) {
	cfg := config.BrowserConfig{Headless: true, Args: []string{"--a", "b=c"}}
	profile := stealth.Generate(1)
	assert.Len(t, DefaultAllocatorOptions(cfg, profile, "socks5://h:1"), len(chromeFlags(cfg, profile, "socks5://h:1")))
}
