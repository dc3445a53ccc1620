package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
	"github.com/xkilldash9x/hurdle/internal/config"
)

// chromeFlag is a single command-line switch. A bool value of false drops it.
type chromeFlag struct {
	name  string
	value interface{}
}

func chromeFlags(cfg config.BrowserConfig, profile stealth.Profile, proxyServer string) []chromeFlag {
	flags := []chromeFlag{
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"no-sandbox", true},
		{"disable-dev-shm-usage", true},
		{"disable-infobars", true},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-features", "IsolateOrigins,site-per-process,Translate"},
		{"disable-background-timer-throttling", true},
		{"disable-backgrounding-occluded-windows", true},
		{"disable-renderer-backgrounding", true},
		{"password-store", "basic"},
		{"use-mock-keychain", true},
	}

	if cfg.Headless {
		// The new headless mode shares the headed browser's code paths.
		flags = append(flags,
			chromeFlag{"headless", "new"},
			chromeFlag{"hide-scrollbars", true},
			chromeFlag{"mute-audio", true},
		)
	}

	if profile.Viewport.Width > 0 && profile.Viewport.Height > 0 {
		flags = append(flags, chromeFlag{"window-size", fmt.Sprintf("%d,%d", profile.Viewport.Width, profile.Viewport.Height)})
	}
	if profile.UserAgent != "" {
		flags = append(flags, chromeFlag{"user-agent", profile.UserAgent})
	}
	if profile.Locale != "" {
		flags = append(flags, chromeFlag{"lang", profile.Locale})
	}
	if proxyServer != "" {
		flags = append(flags, chromeFlag{"proxy-server", proxyServer})
	}

	// Configured args come last so they can override anything above.
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags = append(flags, chromeFlag{key, value})
		} else {
			flags = append(flags, chromeFlag{key, true})
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the exec allocator options for one browser
// process wearing profile, optionally behind proxyServer. The automation
// switches chromedp normally adds are left out.
func DefaultAllocatorOptions(cfg config.BrowserConfig, profile stealth.Profile, proxyServer string) []chromedp.ExecAllocatorOption {
	flags := chromeFlags(cfg, profile, proxyServer)
	opts := make([]chromedp.ExecAllocatorOption, 0, len(flags))
	for _, f := range flags {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts
}
