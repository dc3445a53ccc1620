package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
	"github.com/xkilldash9x/hurdle/internal/config"
	"github.com/xkilldash9x/hurdle/internal/observability"
	"github.com/xkilldash9x/hurdle/internal/results"
	"github.com/xkilldash9x/hurdle/internal/scrape"
	"github.com/xkilldash9x/hurdle/internal/store"
)

func TestMain(m *testing.M) {
	// Claim the process logger first so commands under test neither print
	// nor create a log file.
	observability.Initialize(config.LoggerConfig{Level: "fatal", Format: "json"}, zapcore.AddSync(io.Discard))
	os.Exit(m.Run())
}

// execute runs a fresh command tree with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestProfileCmd(t *testing.T) {
	t.Run("seeded profiles are reproducible", func(t *testing.T) {
		out, err := execute(t, "profile", "--seed", "11", "--count", "2")
		require.NoError(t, err)

		var profiles []stealth.Profile
		require.NoError(t, json.Unmarshal([]byte(out), &profiles))
		require.Len(t, profiles, 2)
		assert.Equal(t, stealth.Generate(11).UserAgent, profiles[0].UserAgent)
		assert.Equal(t, stealth.Generate(12).Group, profiles[1].Group)
	})

	t.Run("locale pins every profile", func(t *testing.T) {
		out, err := execute(t, "profile", "--seed", "3", "--count", "5", "--locale", "fr-CA")
		require.NoError(t, err)

		var profiles []stealth.Profile
		require.NoError(t, json.Unmarshal([]byte(out), &profiles))
		require.Len(t, profiles, 5)
		for _, p := range profiles {
			assert.Equal(t, "fr-CA", p.Locale)
			assert.Equal(t, "America/Toronto", p.Timezone)
		}
	})

	t.Run("unknown locale", func(t *testing.T) {
		_, err := execute(t, "profile", "--locale", "xx-XX")
		assert.ErrorContains(t, err, "xx-XX")
	})

	t.Run("count must be positive", func(t *testing.T) {
		_, err := execute(t, "profile", "--count", "0")
		assert.ErrorContains(t, err, "--count")
	})
}

func TestConfigCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "hurdle.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("browser:\n  concurrency: 5\nmanual:\n  mode: none\n"), 0o644))
	t.Setenv("HURDLE_OUTPUT_MAX_RECORDS", "7")
	t.Setenv("HURDLE_DATABASE_URL", "postgres://user:secret@db/hurdle")

	out, err := execute(t, "--config", cfgPath, "config")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 5, cfg.Browser().Concurrency)
	assert.Equal(t, 7, cfg.Output().MaxRecords)
	assert.Equal(t, config.ManualModeNone, cfg.Manual().Mode)
	assert.Equal(t, "<redacted>", cfg.Database().URL)
}

func TestConfigFileErrors(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config")
	assert.ErrorContains(t, err, "error reading config file")

	bad := filepath.Join(t.TempDir(), "hurdle.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("browser:\n  concurrency: 0\n"), 0o644))
	_, err = execute(t, "--config", bad, "config")
	assert.ErrorContains(t, err, "browser.concurrency")
}

func TestScrapeRequiresURL(t *testing.T) {
	_, err := execute(t, "scrape")
	assert.Error(t, err)
}

func TestStatsRequiresDatabase(t *testing.T) {
	t.Setenv("HURDLE_DATABASE_URL", "")
	_, err := execute(t, "stats")
	assert.ErrorContains(t, err, "database URL is not configured")
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printStats(&buf, nil))
	assert.Equal(t, "No attempts recorded.\n", buf.String())

	buf.Reset()
	require.NoError(t, printStats(&buf, []store.StrategyStat{
		{Strategy: "press_and_hold", Kind: "press_and_hold", Attempts: 10, Successes: 7, AvgDuration: 812.4},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "STRATEGY")
	assert.Contains(t, lines[1], "press_and_hold")
	assert.Contains(t, lines[1], "70%")
	assert.Contains(t, lines[1], "812")
}

func TestStartOperatorIgnoresModeCase(t *testing.T) {
	for _, mode := range []string{"Console", "CONSOLE", "Http"} {
		t.Run(mode, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			var g errgroup.Group
			mc := config.ManualConfig{Mode: mode, WaitTimeout: time.Second, ListenAddr: "127.0.0.1:0"}

			gw := startOperator(ctx, &g, mc, strings.NewReader(""), io.Discard, zap.NewNop())
			assert.NotNil(t, gw)
			cancel()
			assert.NoError(t, g.Wait())
		})
	}

	var g errgroup.Group
	assert.Nil(t, startOperator(context.Background(), &g, config.ManualConfig{Mode: "None"}, nil, io.Discard, zap.NewNop()))
}

// listingPage is a challenge-free page serving a fixed document.
type listingPage struct{ url string }

const listingDoc = `<html><body>
<div data-test="property-card" aria-label="4 Birch Rd $615,000 4 bds 3 ba 2,100 sqft"><a href="/homedetails/4">view</a></div>
</body></html>`

func (p *listingPage) Navigate(_ context.Context, url string) error { p.url = url; return nil }
func (p *listingPage) QueryElements(context.Context, schemas.Query) ([]schemas.ElementRef, error) {
	return nil, nil
}
func (p *listingPage) ReadText(context.Context, schemas.ElementRef) (string, error) { return "", nil }
func (p *listingPage) PointerDown(context.Context, schemas.Point) error             { return nil }
func (p *listingPage) PointerMove(context.Context, schemas.Point) error             { return nil }
func (p *listingPage) PointerUp(context.Context, schemas.Point) error               { return nil }
func (p *listingPage) Click(context.Context, schemas.ElementRef) error              { return nil }
func (p *listingPage) CurrentURL(context.Context) (string, error)                   { return p.url, nil }
func (p *listingPage) Screenshot(context.Context) ([]byte, error)                   { return []byte("png"), nil }
func (p *listingPage) HTML(context.Context) (string, error)                         { return listingDoc, nil }
func (p *listingPage) Close()                                                       {}

func testScrapeConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.ManualCfg.Mode = mode
	cfg.OutputCfg.Path = filepath.Join(dir, "out", "records.json")
	cfg.ArtifactsCfg.Dir = filepath.Join(dir, "artifacts")
	cfg.BrowserCfg.SettleMin = 0
	cfg.BrowserCfg.SettleMax = 0
	cfg.BrowserCfg.NavigationRate = 0
	cfg.DatabaseCfg.URL = ""
	return cfg
}

func TestRunScrape(t *testing.T) {
	for _, mode := range []string{config.ManualModeNone, config.ManualModeConsole} {
		t.Run(mode, func(t *testing.T) {
			cfg := testScrapeConfig(t, mode)
			opener := scrape.OpenerFunc(func(context.Context, stealth.Profile, string) (scrape.Page, error) {
				return &listingPage{}, nil
			})

			report, err := runScrape(context.Background(), cfg, []string{"https://listings.example/search"},
				opener, strings.NewReader(""), io.Discard, zap.NewNop())
			require.NoError(t, err)
			require.Len(t, report.Records, 1)

			data, err := os.ReadFile(cfg.Output().Path)
			require.NoError(t, err)
			var written results.Report
			require.NoError(t, json.Unmarshal(data, &written))
			assert.Equal(t, report.RunID, written.RunID)
			require.Len(t, written.Records, 1)
			rec := written.Records[0]
			assert.Equal(t, "$615,000", rec.Price)
			assert.Equal(t, "4 bds", rec.Beds)
			assert.Equal(t, "3 ba", rec.Baths)
			assert.Equal(t, "https://listings.example/homedetails/4", rec.URL)
		})
	}
}

func TestRunScrapeWritesPartialReportOnCancel(t *testing.T) {
	cfg := testScrapeConfig(t, config.ManualModeNone)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opener := scrape.OpenerFunc(func(context.Context, stealth.Profile, string) (scrape.Page, error) {
		return &listingPage{}, nil
	})

	report, err := runScrape(ctx, cfg, []string{"https://listings.example/search"}, opener, nil, io.Discard, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.FileExists(t, cfg.Output().Path)
}
