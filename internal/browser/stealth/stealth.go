package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// Apply returns the CDP actions that push p into the current target. The
// profile is re-checked for consistency before anything is sent.
func Apply(p Profile, logger *zap.Logger) chromedp.Action {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := logger.Named("stealth")
	return chromedp.Tasks{
		chromedp.ActionFunc(func(context.Context) error {
			if err := Consistent(p); err != nil {
				return err
			}
			l.Debug("Applying stealth profile",
				zap.String("group", p.Group),
				zap.String("device", p.Device),
				zap.String("timezone", p.Timezone),
			)
			return nil
		}),

		network.Enable(),
		setExtraHTTPHeaders(p, l),
		setUserAgentAndClientHints(p, l),
		setDeviceMetrics(p, l),
		setEnvironmentOverrides(p, l),
		injectEvasionScript(p, l),
	}
}

// EvasionScript returns the bootstrap script with the profile bound to it.
func EvasionScript(p Profile) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("stealth: failed to marshal profile: %w", err)
	}
	return fmt.Sprintf("const HURDLE_PROFILE = %s;\n%s", raw, evasionsScript), nil
}

func injectEvasionScript(p Profile, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		script, err := EvasionScript(p)
		if err != nil {
			return err
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			logger.Error("Failed to register evasion script", zap.Error(err))
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}
		return nil
	})
}

func setUserAgentAndClientHints(p Profile, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ch := p.ClientHints
		err := emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(strings.Join(p.Languages, ",")).
			WithUserAgentMetadata(&emulation.UserAgentMetadata{
				Brands:          ch.Brands,
				FullVersionList: ch.FullVersionList,
				Mobile:          ch.Mobile,
				Platform:        ch.Platform,
				PlatformVersion: ch.PlatformVersion,
				Architecture:    ch.Architecture,
				Bitness:         ch.Bitness,
			}).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set user agent override", zap.Error(err))
			return fmt.Errorf("stealth: failed to set user agent override: %w", err)
		}
		return nil
	})
}

func setExtraHTTPHeaders(p Profile, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		lang := p.AcceptLanguage()
		if lang == "" {
			return nil
		}
		if err := network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": lang}).Do(ctx); err != nil {
			logger.Error("Failed to set extra HTTP headers", zap.Error(err))
			return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
		}
		return nil
	})
}

func setDeviceMetrics(p Profile, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if p.Viewport.Width <= 0 || p.Viewport.Height <= 0 {
			return nil
		}
		orientation := emulation.OrientationTypeLandscapePrimary
		if p.Viewport.Height > p.Viewport.Width {
			orientation = emulation.OrientationTypePortraitPrimary
		}
		err := emulation.SetDeviceMetricsOverride(p.Viewport.Width, p.Viewport.Height, p.Screen.DevicePixelRatio, false).
			WithScreenWidth(p.Screen.Width).
			WithScreenHeight(p.Screen.Height).
			WithScreenOrientation(&emulation.ScreenOrientation{Type: orientation, Angle: 0}).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set device metrics override", zap.Error(err))
			return fmt.Errorf("stealth: failed to set device metrics: %w", err)
		}
		return nil
	})
}

// setEnvironmentOverrides applies the timezone, locale and geolocation drawn
// from the profile's consistency group.
func setEnvironmentOverrides(p Profile, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := emulation.SetTimezoneOverride(p.Timezone).Do(ctx); err != nil {
			logger.Error("Failed to set timezone override", zap.Error(err))
			return fmt.Errorf("stealth: failed to set timezone: %w", err)
		}
		if err := emulation.SetLocaleOverride().WithLocale(p.Locale).Do(ctx); err != nil {
			logger.Error("Failed to set locale override", zap.Error(err))
			return fmt.Errorf("stealth: failed to set locale: %w", err)
		}
		geo := p.Geolocation
		if err := emulation.SetGeolocationOverride().
			WithLatitude(geo.Latitude).
			WithLongitude(geo.Longitude).
			WithAccuracy(geo.Accuracy).
			Do(ctx); err != nil {
			logger.Error("Failed to set geolocation override", zap.Error(err))
			return fmt.Errorf("stealth: failed to set geolocation: %w", err)
		}
		return nil
	})
}
