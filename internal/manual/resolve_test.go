package manual

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/hurdle/api/schemas"
	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
	"github.com/xkilldash9x/hurdle/internal/challenge"
)

// captchaPage shows an image captcha until cleared.
type captchaPage struct {
	mu      sync.Mutex
	blocked bool
}

func (p *captchaPage) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocked = false
}

func (p *captchaPage) QueryElements(ctx context.Context, q schemas.Query) ([]schemas.ElementRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case q.CSS == "body":
		return []schemas.ElementRef{{Query: q, Box: schemas.Rect{Width: 1280, Height: 800}, TagName: "BODY", Visible: true}}, nil
	case q.CSS == ".rc-imageselect" && p.blocked:
		return []schemas.ElementRef{{Query: q, Box: schemas.Rect{X: 400, Y: 300, Width: 300, Height: 400}, TagName: "DIV", Visible: true}}, nil
	}
	return nil, nil
}

func (p *captchaPage) Navigate(context.Context, string) error                       { return nil }
func (p *captchaPage) ReadText(context.Context, schemas.ElementRef) (string, error) { return "", nil }
func (p *captchaPage) PointerDown(context.Context, schemas.Point) error             { return nil }
func (p *captchaPage) PointerMove(context.Context, schemas.Point) error             { return nil }
func (p *captchaPage) PointerUp(context.Context, schemas.Point) error               { return nil }
func (p *captchaPage) Click(context.Context, schemas.ElementRef) error              { return nil }
func (p *captchaPage) CurrentURL(context.Context) (string, error) {
	return "https://example.com/search", nil
}
func (p *captchaPage) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

func newResolveFixture(t *testing.T, wait time.Duration) (*Gateway, *challenge.Orchestrator, *captchaPage, *challenge.Session) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	gw := NewGateway(wait, logger)
	detector := challenge.NewDetector(logger, 0.75)
	orch, err := challenge.NewOrchestrator(detector, challenge.NewOracle(detector, 5*time.Millisecond, nil, logger), logger,
		challenge.WithGateway(gw))
	require.NoError(t, err)
	page := &captchaPage{blocked: true}
	sess := challenge.NewSession(page, stealth.Generate(1), challenge.WithSessionID("s1"), challenge.WithMotionSeed(1))
	return gw, orch, page, sess
}

func TestResolveThroughGateway_NoOperatorExhausts(t *testing.T) {
	gw, orch, _, sess := newResolveFixture(t, 20*time.Millisecond)

	start := time.Now()
	out := orch.Resolve(context.Background(), sess, challenge.DefaultRetryPolicy())
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, challenge.StatusExhausted, out.Status)
	assert.ErrorIs(t, out.Err, challenge.ErrManualAbandoned)
	assert.Empty(t, out.Attempts)
	assert.Empty(t, gw.Pending())
}

func TestResolveThroughGateway_OperatorResolves(t *testing.T) {
	gw, orch, page, sess := newResolveFixture(t, 2*time.Second)
	gw.AddNotifier(notifierFunc(func(_ context.Context, tk Ticket) {
		go func() {
			page.clear()
			assert.NoError(t, gw.Resolve(tk.ID, challenge.SignalResolved))
		}()
	}))

	out := orch.Resolve(context.Background(), sess, challenge.DefaultRetryPolicy())
	require.Equal(t, challenge.StatusManualResolved, out.Status, "err: %v", out.Err)
	assert.Equal(t, []challenge.Kind{challenge.KindImageCaptcha}, out.Resolved)
	assert.Empty(t, out.Attempts)
}
