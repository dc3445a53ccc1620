package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/internal/browser/session"
	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
	"github.com/xkilldash9x/hurdle/internal/config"
)

// ErrManagerClosed is returned by Open after Close.
var ErrManagerClosed = errors.New("browser: manager is closed")

// Manager launches one browser process per session so each session can wear
// its own fingerprint and sit behind its own proxy.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu     sync.Mutex
	open   map[*session.Page]struct{}
	closed bool
}

// NewManager creates a manager. Nothing is launched until Open.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		logger:     logger.Named("browser_manager"),
		rootCtx:    ctx,
		rootCancel: cancel,
		open:       make(map[*session.Page]struct{}),
	}
}

// Open starts a browser for profile, routed through rawProxy when it is not
// empty, and returns its first tab with the profile applied. ctx bounds the
// launch only; the browser lives until the page is closed or the manager is.
func (m *Manager) Open(ctx context.Context, profile stealth.Profile, rawProxy string) (*session.Page, error) {
	var proxy Proxy
	if rawProxy != "" {
		var err error
		if proxy, err = ParseProxy(rawProxy); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	allocCtx, allocCancel := chromedp.NewExecAllocator(m.rootCtx, DefaultAllocatorOptions(m.cfg, profile, proxy.Server)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	var page *session.Page
	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			tabCancel()
			allocCancel()
			m.mu.Lock()
			delete(m.open, page)
			m.mu.Unlock()
		})
	}

	actions := chromedp.Tasks{}
	if proxy.HasCredentials() {
		actions = append(actions, answerProxyAuth(tabCtx, proxy, m.logger))
	}
	actions = append(actions, stealth.Apply(profile, m.logger))

	// The first Run starts the browser and must use the tab context itself,
	// otherwise the process would die with the launch deadline.
	stop := context.AfterFunc(ctx, shutdown)
	err := chromedp.Run(tabCtx, actions...)
	launchAborted := !stop()
	if err != nil || launchAborted {
		shutdown()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("browser: launch failed (proxy %s): %w", proxy, err)
	}

	page = session.NewPage(tabCtx, shutdown, m.logger,
		session.WithNavigationTimeout(m.cfg.NavigationTimeout),
	)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		shutdown()
		return nil, ErrManagerClosed
	}
	m.open[page] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("Browser launched.",
		zap.String("proxy", proxy.String()),
		zap.String("group", profile.Group),
		zap.String("device", profile.Device),
	)
	return page, nil
}

// answerProxyAuth pauses requests through the Fetch domain so proxy auth
// challenges can be answered with the configured credentials.
func answerProxyAuth(tabCtx context.Context, proxy Proxy, logger *zap.Logger) chromedp.Action {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				execCtx := cdp.WithExecutor(tabCtx, chromedp.FromContext(tabCtx).Target)
				resp := &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				}
				if err := fetch.ContinueWithAuth(e.RequestID, resp).Do(execCtx); err != nil {
					logger.Debug("Failed to answer proxy auth.", zap.Error(err))
				}
			}()
		case *fetch.EventRequestPaused:
			go func() {
				execCtx := cdp.WithExecutor(tabCtx, chromedp.FromContext(tabCtx).Target)
				if err := fetch.ContinueRequest(e.RequestID).Do(execCtx); err != nil {
					logger.Debug("Failed to continue paused request.", zap.Error(err))
				}
			}()
		}
	})
	return fetch.Enable().WithHandleAuthRequests(true)
}

// OpenCount reports how many browsers are running.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Close kills every browser the manager started. It is safe to call twice.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pages := make([]*session.Page, 0, len(m.open))
	for p := range m.open {
		pages = append(pages, p)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browsers.", zap.Int("open", len(pages)))
	for _, p := range pages {
		p.Close()
	}
	m.rootCancel()
}
