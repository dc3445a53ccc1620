package challenge

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
)

// fakeElement is one element of a fakePage, keyed by the exact CSS selector
// the engine queries.
type fakeElement struct {
	Tag    string
	Box    schemas.Rect
	Text   string
	Hidden bool
}

// fakePage is an in-memory Page. Sleeps are recorded instead of waited, so
// it doubles as the session's humanoid.Sleeper.
type fakePage struct {
	mu       sync.Mutex
	url      string
	body     string
	elements map[string][]fakeElement
	queryErr error
	shot     []byte

	slept   time.Duration
	downAt  time.Duration
	holds   []time.Duration
	clicks  []schemas.ElementRef
	keys    []string
	ups     []schemas.Point
	reloads int

	onClick   func(p *fakePage, ref schemas.ElementRef)
	onRelease func(p *fakePage, held time.Duration)
	onKey     func(p *fakePage, key string)
}

func newFakePage(url string) *fakePage {
	return &fakePage{url: url, elements: map[string][]fakeElement{}, shot: []byte("png")}
}

func (p *fakePage) set(css string, els ...fakeElement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[css] = els
}

func (p *fakePage) remove(css ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range css {
		delete(p.elements, c)
	}
}

func (p *fakePage) setURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *fakePage) setQueryErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queryErr = err
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.setURL(url)
	return nil
}

func (p *fakePage) QueryElements(ctx context.Context, q schemas.Query) ([]schemas.ElementRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if q.CSS == "body" {
		return []schemas.ElementRef{{
			Query: q, Box: schemas.Rect{Width: 1280, Height: 800},
			TagName: "BODY", Text: p.body, Visible: true,
		}}, nil
	}
	var out []schemas.ElementRef
	for i, el := range p.elements[q.CSS] {
		if !q.MatchesText(el.Text) {
			continue
		}
		out = append(out, schemas.ElementRef{
			Query: q, Index: i, Box: el.Box, TagName: el.Tag, Text: el.Text, Visible: !el.Hidden,
		})
	}
	return out, nil
}

func (p *fakePage) ReadText(_ context.Context, ref schemas.ElementRef) (string, error) {
	if ref.Query.CSS == "body" {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.body, nil
	}
	return ref.Text, nil
}

func (p *fakePage) PointerDown(ctx context.Context, _ schemas.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downAt = p.slept
	return ctx.Err()
}

func (p *fakePage) PointerMove(ctx context.Context, _ schemas.Point) error { return ctx.Err() }

func (p *fakePage) PointerUp(_ context.Context, at schemas.Point) error {
	p.mu.Lock()
	held := p.slept - p.downAt
	p.holds = append(p.holds, held)
	p.ups = append(p.ups, at)
	hook := p.onRelease
	p.mu.Unlock()
	if hook != nil {
		hook(p, held)
	}
	return nil
}

func (p *fakePage) Click(ctx context.Context, ref schemas.ElementRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.clicks = append(p.clicks, ref)
	hook := p.onClick
	p.mu.Unlock()
	if hook != nil {
		hook(p, ref)
	}
	return nil
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, ctx.Err()
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return p.shot, nil }

func (p *fakePage) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	p.keys = append(p.keys, key)
	hook := p.onKey
	p.mu.Unlock()
	if hook != nil {
		hook(p, key)
	}
	return ctx.Err()
}

func (p *fakePage) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	return nil
}

func (p *fakePage) Sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.slept += d
	p.mu.Unlock()
	return ctx.Err()
}

func (p *fakePage) Holds() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.holds...)
}

func (p *fakePage) Clicks() []schemas.ElementRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schemas.ElementRef(nil), p.clicks...)
}

var _ Page = (*fakePage)(nil)
var _ KeyPresser = (*fakePage)(nil)
var _ Reloader = (*fakePage)(nil)

// pointerOnlyPage hides the optional capabilities of the wrapped page.
type pointerOnlyPage struct{ Page }

// newTestSession binds page to a deterministic session whose gestures sleep
// on the page's fake clock.
func newTestSession(page *fakePage, seed int64) *Session {
	return NewSession(page, stealth.Generate(seed),
		WithSessionID("sess-test"),
		WithSleeper(page),
		WithMotionSeed(seed))
}

// recordingSleeper records backoff waits without blocking.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// transitions returns the visited states in order.
func (s *recordingSink) transitions() []State {
	var out []State
	for _, ev := range s.Events() {
		if ev.Type == EventTransition {
			out = append(out, ev.To)
		}
	}
	return out
}

// fakeGateway answers every request with signal and err.
type fakeGateway struct {
	mu        sync.Mutex
	signal    Signal
	err       error
	requests  []ManualRequest
	onRequest func(req ManualRequest)
}

func (g *fakeGateway) Request(_ context.Context, req ManualRequest) (Signal, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	hook := g.onRequest
	g.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	return g.signal, g.err
}

func (g *fakeGateway) Requests() []ManualRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ManualRequest(nil), g.requests...)
}

// memScreenshots keeps saved screenshots in memory.
type memScreenshots struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (m *memScreenshots) Save(_ context.Context, sessionID, label string, png []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	path := "mem://" + sessionID + "/" + label + ".png"
	m.saved[path] = png
	return path, nil
}
