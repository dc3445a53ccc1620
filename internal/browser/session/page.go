package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"github.com/xkilldash9x/hurdle/internal/challenge"
)

const (
	defaultOperationTimeout  = 10 * time.Second
	defaultNavigationTimeout = 45 * time.Second
	maxElementText           = 4096
)

var (
	_ challenge.Page       = (*Page)(nil)
	_ challenge.KeyPresser = (*Page)(nil)
	_ challenge.Reloader   = (*Page)(nil)
	_ challenge.HTMLSource = (*Page)(nil)
)

// Page drives a single browser tab over CDP.
type Page struct {
	ctx               context.Context // tab context returned by chromedp.NewContext
	cancel            context.CancelFunc
	logger            *zap.Logger
	opTimeout         time.Duration
	navigationTimeout time.Duration

	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
	evaluateFunc   func(ctx context.Context, script string) ([]byte, error)

	mu      sync.Mutex
	buttons int64 // pressed-button bitmask reported on move events
}

// Option customizes NewPage.
type Option func(*Page)

// WithOperationTimeout bounds every non-navigation CDP round trip.
func WithOperationTimeout(d time.Duration) Option {
	return func(p *Page) {
		if d > 0 {
			p.opTimeout = d
		}
	}
}

// WithNavigationTimeout bounds Navigate and Reload.
func WithNavigationTimeout(d time.Duration) Option {
	return func(p *Page) {
		if d > 0 {
			p.navigationTimeout = d
		}
	}
}

// NewPage wraps a chromedp tab context. cancel, if non-nil, is called by Close.
func NewPage(tabCtx context.Context, cancel context.CancelFunc, logger *zap.Logger, opts ...Option) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Page{
		ctx:               tabCtx,
		cancel:            cancel,
		logger:            logger.Named("page"),
		opTimeout:         defaultOperationTimeout,
		navigationTimeout: defaultNavigationTimeout,
	}
	p.runActionsFunc = p.RunActions
	p.evaluateFunc = p.evaluate
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunActions runs actions against the tab, stopping early if ctx ends.
func (p *Page) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Close tears down the tab.
func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Page) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.runActionsFunc(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		p.logger.Debug("CDP operation timed out.", zap.String("op", op), zap.Duration("timeout", timeout))
		return fmt.Errorf("session: %s timed out after %v: %w", op, timeout, opCtx.Err())
	}
	return fmt.Errorf("session: %s failed: %w", op, err)
}

func (p *Page) evaluate(ctx context.Context, script string) ([]byte, error) {
	var res []byte
	err := p.run(ctx, "evaluate", p.opTimeout,
		chromedp.Evaluate(script, &res, func(e *runtime.EvaluateParams) *runtime.EvaluateParams {
			return e.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	return res, err
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	return p.run(ctx, "navigate", p.navigationTimeout, chromedp.Navigate(url))
}

// Reload reloads the current document.
func (p *Page) Reload(ctx context.Context) error {
	return p.run(ctx, "reload", p.navigationTimeout, chromedp.Reload())
}

// CurrentURL returns the location of the top-level document.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, "location", p.opTimeout, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, "screenshot", p.opTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, "outer html", p.opTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// -- Element location --

// rawElement mirrors the objects built by queryScript.
type rawElement struct {
	Index   int     `json:"index"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Tag     string  `json:"tag"`
	Text    string  `json:"text"`
	Visible bool    `json:"visible"`
}

const queryScript = `(function(sel, needle, limit) {
	let nodes;
	try { nodes = Array.from(document.querySelectorAll(sel)); } catch (e) { return []; }
	needle = needle.toLowerCase();
	const out = [];
	nodes.forEach((n, i) => {
		const text = (n.innerText || n.textContent || '').trim();
		if (needle && !text.toLowerCase().includes(needle)) return;
		const r = n.getBoundingClientRect();
		const s = window.getComputedStyle(n);
		out.push({
			index: i, x: r.left, y: r.top, width: r.width, height: r.height,
			tag: n.tagName || '', text: text.slice(0, limit),
			visible: r.width > 0 && r.height > 0 && s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0'
		});
	});
	return out;
})(%s, %s, %d)`

// readTextScript returns the value of form fields and the rendered text of
// anything else.
const readTextScript = `(function(sel, i) {
	const n = document.querySelectorAll(sel)[i];
	if (!n) return null;
	if (n.tagName === 'INPUT' || n.tagName === 'TEXTAREA') return n.value || '';
	return n.innerText || n.textContent || '';
})(%s, %d)`

const clickTargetScript = `(function(sel, i) {
	const n = document.querySelectorAll(sel)[i];
	if (!n) return null;
	n.scrollIntoView({block: 'center', inline: 'center'});
	const r = n.getBoundingClientRect();
	return {x: r.left, y: r.top, width: r.width, height: r.height};
})(%s, %d)`

// QueryElements returns every element matching q in document order.
func (p *Page) QueryElements(ctx context.Context, q schemas.Query) ([]schemas.ElementRef, error) {
	raw, err := p.evaluateFunc(ctx, fmt.Sprintf(queryScript, jsString(q.CSS), jsString(q.Text), maxElementText))
	if err != nil {
		return nil, fmt.Errorf("session: query %s: %w", q, err)
	}
	return decodeElements(q, raw)
}

func decodeElements(q schemas.Query, raw []byte) ([]schemas.ElementRef, error) {
	var found []rawElement
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &found); err != nil {
			return nil, fmt.Errorf("session: decode elements for %s: %w", q, err)
		}
	}
	refs := make([]schemas.ElementRef, 0, len(found))
	for _, e := range found {
		refs = append(refs, schemas.ElementRef{
			Query:   q,
			Index:   e.Index,
			Box:     schemas.Rect{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height},
			TagName: strings.ToUpper(e.Tag),
			Text:    e.Text,
			Visible: e.Visible,
		})
	}
	return refs, nil
}

// ReadText returns the full rendered text of ref.
func (p *Page) ReadText(ctx context.Context, ref schemas.ElementRef) (string, error) {
	raw, err := p.evaluateFunc(ctx, fmt.Sprintf(readTextScript, jsString(ref.Query.CSS), ref.Index))
	if err != nil {
		return "", fmt.Errorf("session: read text of %s: %w", ref, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("session: %s is gone: %w", ref, challenge.ErrElementNotFound)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("session: decode text of %s: %w", ref, err)
	}
	return text, nil
}

// -- Input --

func mouseEvent(data schemas.MouseEventData) *input.DispatchMouseEventParams {
	return input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))
}

// PointerDown presses the primary button at at.
func (p *Page) PointerDown(ctx context.Context, at schemas.Point) error {
	p.mu.Lock()
	p.buttons = 1
	p.mu.Unlock()
	return p.run(ctx, "pointer down", p.opTimeout, mouseEvent(schemas.MouseEventData{
		Type: schemas.MousePress, X: at.X, Y: at.Y, Button: schemas.ButtonLeft, Buttons: 1, ClickCount: 1,
	}))
}

// PointerMove moves the pointer to to, keeping any pressed button held.
func (p *Page) PointerMove(ctx context.Context, to schemas.Point) error {
	p.mu.Lock()
	buttons := p.buttons
	p.mu.Unlock()
	button := schemas.ButtonNone
	if buttons != 0 {
		button = schemas.ButtonLeft
	}
	return p.run(ctx, "pointer move", p.opTimeout, mouseEvent(schemas.MouseEventData{
		Type: schemas.MouseMove, X: to.X, Y: to.Y, Button: button, Buttons: buttons,
	}))
}

// PointerUp releases the primary button at at.
func (p *Page) PointerUp(ctx context.Context, at schemas.Point) error {
	p.mu.Lock()
	p.buttons = 0
	p.mu.Unlock()
	return p.run(ctx, "pointer up", p.opTimeout, mouseEvent(schemas.MouseEventData{
		Type: schemas.MouseRelease, X: at.X, Y: at.Y, Button: schemas.ButtonLeft, ClickCount: 1,
	}))
}

// Click scrolls ref into view and clicks its centre in one batch.
func (p *Page) Click(ctx context.Context, ref schemas.ElementRef) error {
	raw, err := p.evaluateFunc(ctx, fmt.Sprintf(clickTargetScript, jsString(ref.Query.CSS), ref.Index))
	if err != nil {
		return fmt.Errorf("session: locate %s: %w", ref, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("session: %s is gone: %w", ref, challenge.ErrElementNotFound)
	}
	var box schemas.Rect
	if err := json.Unmarshal(raw, &box); err != nil {
		return fmt.Errorf("session: decode box of %s: %w", ref, err)
	}
	at := box.Center()
	return p.run(ctx, "click", p.opTimeout,
		mouseEvent(schemas.MouseEventData{Type: schemas.MouseMove, X: at.X, Y: at.Y, Button: schemas.ButtonNone}),
		mouseEvent(schemas.MouseEventData{Type: schemas.MousePress, X: at.X, Y: at.Y, Button: schemas.ButtonLeft, Buttons: 1, ClickCount: 1}),
		mouseEvent(schemas.MouseEventData{Type: schemas.MouseRelease, X: at.X, Y: at.Y, Button: schemas.ButtonLeft, ClickCount: 1}),
	)
}

var namedKeys = map[string]string{
	"Tab":        kb.Tab,
	"Enter":      kb.Enter,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Space":      " ",
}

func resolveKey(key string) string {
	if k, ok := namedKeys[key]; ok {
		return k
	}
	return key
}

// PressKey sends a key press to the focused element. Named keys such as
// "Tab" are translated; anything else is typed literally.
func (p *Page) PressKey(ctx context.Context, key string) error {
	return p.run(ctx, "press key", p.opTimeout, chromedp.KeyEvent(resolveKey(key)))
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
