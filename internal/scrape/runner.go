// Package scrape runs sessions against a list of targets: launch a browser
// wearing a fresh profile, navigate, clear any challenges and extract.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/hurdle/internal/browser"
	"github.com/xkilldash9x/hurdle/internal/browser/humanoid"
	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
	"github.com/xkilldash9x/hurdle/internal/challenge"
	"github.com/xkilldash9x/hurdle/internal/config"
	"github.com/xkilldash9x/hurdle/internal/extract"
	"github.com/xkilldash9x/hurdle/internal/results"
)

// Page is the browser capability a run needs beyond challenge handling.
type Page interface {
	challenge.Page
	challenge.HTMLSource
	Close()
}

// Opener launches a browser for a profile, behind proxy when not empty.
type Opener interface {
	Open(ctx context.Context, profile stealth.Profile, proxy string) (Page, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, profile stealth.Profile, proxy string) (Page, error)

func (f OpenerFunc) Open(ctx context.Context, profile stealth.Profile, proxy string) (Page, error) {
	return f(ctx, profile, proxy)
}

// Config tunes a run.
type Config struct {
	Concurrency     int
	Proxies         []string
	SettleMin       time.Duration
	SettleMax       time.Duration
	NavigationRate  float64
	NavigationBurst int
	// StealthSeed, when non-zero, makes target i use stealth.Generate(seed+i).
	StealthSeed int64
	// Locale, when set, pins the locale of every profile.
	Locale         string
	Policy         challenge.RetryPolicy
	Humanoid       config.HumanoidConfig
	Query          string
	SearchAttempts int
}

// ConfigFrom assembles a run config from the application config.
func ConfigFrom(cfg config.Interface) Config {
	b := cfg.Browser()
	return Config{
		Concurrency:     b.Concurrency,
		Proxies:         b.Proxies,
		SettleMin:       b.SettleMin,
		SettleMax:       b.SettleMax,
		NavigationRate:  b.NavigationRate,
		NavigationBurst: b.NavigationBurst,
		StealthSeed:     cfg.Stealth().Seed,
		Locale:          cfg.Stealth().Locale,
		Policy:          challenge.PolicyFromConfig(cfg.Challenge()),
		Humanoid:        cfg.Humanoid(),
		Query:           cfg.Search().Query,
		SearchAttempts:  cfg.Search().Attempts,
	}
}

// Runner drives one session per target, several at a time.
type Runner struct {
	cfg          Config
	opener       Opener
	orchestrator *challenge.Orchestrator
	extractor    *extract.Extractor
	collector    *results.Collector
	screenshots  challenge.ScreenshotStore
	sleeper      humanoid.Sleeper
	logger       *zap.Logger

	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	proxyIdx atomic.Uint64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option customizes New.
type Option func(*Runner)

// WithScreenshots stores a debug screenshot when a page yields no cards.
func WithScreenshots(s challenge.ScreenshotStore) Option {
	return func(r *Runner) { r.screenshots = s }
}

// WithSleeper replaces the clock used for the settle delay.
func WithSleeper(s humanoid.Sleeper) Option { return func(r *Runner) { r.sleeper = s } }

// New creates a runner.
func New(cfg Config, opener Opener, orch *challenge.Orchestrator, extractor *extract.Extractor, collector *results.Collector, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if opener == nil || orch == nil || extractor == nil || collector == nil {
		return nil, errors.New("cannot initialize runner with nil dependencies")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}
	if cfg.Locale != "" && !stealth.SupportsLocale(cfg.Locale) {
		return nil, fmt.Errorf("scrape: unsupported stealth locale %q", cfg.Locale)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	limit := rate.Inf
	if cfg.NavigationRate > 0 {
		limit = rate.Limit(cfg.NavigationRate)
	}
	burst := cfg.NavigationBurst
	if burst < 1 {
		burst = 1
	}

	r := &Runner{
		cfg:          cfg,
		opener:       opener,
		orchestrator: orch,
		extractor:    extractor,
		collector:    collector,
		sleeper:      humanoid.RealSleeper,
		logger:       logger.Named("runner"),
		sem:          semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter:      rate.NewLimiter(limit, burst),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run visits every target and returns the run report. Failures on one target
// are recorded in the report and do not stop the others; only cancellation
// of ctx ends the run early, in which case ctx's error is returned along
// with whatever was collected.
func (r *Runner) Run(ctx context.Context, targets []string) (*results.Report, error) {
	r.logger.Info("Starting run.",
		zap.String("run_id", r.collector.RunID()),
		zap.Int("targets", len(targets)),
		zap.Int("concurrency", r.cfg.Concurrency),
		zap.Int("proxies", len(r.cfg.Proxies)),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		if gctx.Err() != nil {
			break
		}
		if err := r.sem.Acquire(gctx, 1); err != nil {
			break
		}
		if r.collector.Full() {
			r.sem.Release(1)
			r.logger.Info("Record limit reached, skipping remaining targets.", zap.Int("skipped", len(targets)-i))
			break
		}
		g.Go(func() error {
			defer r.sem.Release(1)
			r.visit(gctx, i, target)
			return nil
		})
	}
	_ = g.Wait()

	report := r.collector.Report()
	r.logger.Info("Run finished.",
		zap.String("run_id", report.RunID),
		zap.Int("records", len(report.Records)),
		zap.Any("summary", report.Summary),
	)
	return report, ctx.Err()
}

func (r *Runner) profileFor(i int) stealth.Profile {
	seed := r.cfg.StealthSeed + int64(i)
	if r.cfg.StealthSeed == 0 {
		r.rngMu.Lock()
		seed = r.rng.Int63()
		r.rngMu.Unlock()
	}
	// New rejected unknown locales.
	p, _ := stealth.GenerateForLocale(seed, r.cfg.Locale)
	return p
}

// nextProxy hands out proxies round robin; an empty string means direct.
func (r *Runner) nextProxy() string {
	if len(r.cfg.Proxies) == 0 {
		return ""
	}
	i := r.proxyIdx.Add(1) - 1
	return r.cfg.Proxies[i%uint64(len(r.cfg.Proxies))]
}

func (r *Runner) settleDelay() time.Duration {
	lo, hi := r.cfg.SettleMin, r.cfg.SettleMax
	if hi <= lo {
		return lo
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return lo + time.Duration(r.rng.Int63n(int64(hi-lo)))
}

func redact(proxy string) string {
	if proxy == "" {
		return ""
	}
	p, err := browser.ParseProxy(proxy)
	if err != nil {
		return "invalid"
	}
	return p.String()
}

func (r *Runner) visit(ctx context.Context, i int, target string) {
	proxy := r.nextProxy()
	logger := r.logger.With(zap.String("target", target), zap.String("proxy", redact(proxy)))
	failed := func(sessionID string, err error) {
		logger.Warn("Target failed.", zap.Error(err))
		r.collector.Add(results.TargetResult{
			URL:       target,
			SessionID: sessionID,
			Proxy:     redact(proxy),
			Status:    challenge.StatusExhausted,
			Error:     err.Error(),
		}, nil)
	}

	profile := r.profileFor(i)
	page, err := r.opener.Open(ctx, profile, proxy)
	if err != nil {
		failed("", fmt.Errorf("open browser: %w", err))
		return
	}
	defer page.Close()

	sess := challenge.NewSession(page, profile,
		challenge.WithProxy(proxy),
		challenge.WithTarget(target),
		challenge.WithHumanoidConfig(r.cfg.Humanoid),
		challenge.WithSleeper(r.sleeper),
		challenge.WithSessionLogger(logger),
	)
	logger = logger.With(zap.String("session_id", sess.ID))

	if err := r.limiter.Wait(ctx); err != nil {
		failed(sess.ID, fmt.Errorf("waiting for navigation slot: %w", err))
		return
	}
	if err := page.Navigate(ctx, target); err != nil {
		failed(sess.ID, fmt.Errorf("navigate: %w", err))
		return
	}
	if err := r.sleeper.Sleep(ctx, r.settleDelay()); err != nil {
		failed(sess.ID, err)
		return
	}

	out := r.orchestrator.Resolve(ctx, sess, r.cfg.Policy)
	if out.Succeeded() && r.cfg.Query != "" {
		out = r.runSearch(ctx, sess, logger, out)
	}
	tr := results.NewTargetResult(target, sess.ID, out)
	tr.Proxy = redact(proxy)
	if !out.Succeeded() {
		logger.Warn("Challenges not cleared, skipping extraction.",
			zap.Error(out.Err),
			zap.Int("attempts", len(out.Attempts)),
		)
		r.collector.Add(tr, nil)
		return
	}

	recs, shot := r.extract(ctx, logger, sess.ID, page, target)
	tr.Screenshot = shot
	kept := r.collector.Add(tr, recs)
	logger.Info("Target done.",
		zap.String("status", string(out.Status)),
		zap.Int("chain_depth", out.ChainDepth),
		zap.Int("records", kept),
	)
}

// extract pulls records from the current document. When no cards are found
// a screenshot is saved and its path returned.
func (r *Runner) extract(ctx context.Context, logger *zap.Logger, sessionID string, page Page, target string) ([]extract.Record, string) {
	doc, err := page.HTML(ctx)
	if err != nil {
		logger.Warn("Could not read page HTML.", zap.Error(err))
		return nil, ""
	}
	pageURL, err := page.CurrentURL(ctx)
	if err != nil || pageURL == "" {
		pageURL = target
	}
	res, err := r.extractor.Extract(doc, pageURL)
	if err != nil {
		logger.Warn("Extraction failed.", zap.Error(err))
		return nil, ""
	}
	if res.Cards > 0 || r.screenshots == nil {
		return res.Records, ""
	}

	png, err := page.Screenshot(ctx)
	if err != nil {
		logger.Debug("Debug screenshot failed.", zap.Error(err))
		return nil, ""
	}
	path, err := r.screenshots.Save(ctx, sessionID, "no_cards", png)
	if err != nil {
		logger.Debug("Could not save debug screenshot.", zap.Error(err))
		return nil, ""
	}
	logger.Info("No listing cards found, debug screenshot saved.", zap.String("path", path))
	return nil, path
}
