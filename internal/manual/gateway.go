// File: internal/manual/gateway.go
// Description: Hands challenges to human operators. Each request becomes a
// ticket; the requesting session blocks on the ticket's channel until an
// operator decides or the wait deadline passes.

package manual

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/internal/challenge"
)

var (
	// ErrUnknownTicket is returned for ids that are not pending.
	ErrUnknownTicket = errors.New("manual: unknown or expired ticket")
	// ErrAlreadyDecided is returned when a ticket already has a decision.
	ErrAlreadyDecided = errors.New("manual: ticket already decided")
	// ErrInvalidSignal is returned for decisions other than resolved or abandoned.
	ErrInvalidSignal = errors.New("manual: invalid signal")
)

// Ticket is the operator-facing view of a pending request.
type Ticket struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Kind           string    `json:"kind"`
	URL            string    `json:"url"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	HasScreenshot  bool      `json:"has_screenshot"`
	CreatedAt      time.Time `json:"created_at"`
	Deadline       time.Time `json:"deadline"`
}

// Notifier is told about every new ticket. Notify must not block for long;
// the requesting session is already waiting.
type Notifier interface {
	Notify(ctx context.Context, t Ticket)
}

type pending struct {
	ticket     Ticket
	screenshot []byte
	page       challenge.Page
	decision   chan challenge.Signal
}

// Gateway implements challenge.Gateway. It is shared by every session of a
// run and safe for concurrent use.
type Gateway struct {
	mu        sync.Mutex
	tickets   map[string]*pending
	notifiers []Notifier
	wait      time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewGateway creates a gateway whose requests give up after wait.
func NewGateway(wait time.Duration, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		tickets: make(map[string]*pending),
		wait:    wait,
		logger:  logger.Named("manual_gateway"),
		now:     time.Now,
	}
}

// AddNotifier registers an operator front end.
func (g *Gateway) AddNotifier(n Notifier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notifiers = append(g.notifiers, n)
}

// Request registers a ticket and waits for its decision. A deadline yields
// SignalAbandoned with a nil error; cancellation of ctx yields
// SignalAbandoned with ctx's error.
func (g *Gateway) Request(ctx context.Context, req challenge.ManualRequest) (challenge.Signal, error) {
	now := g.now()
	p := &pending{
		ticket: Ticket{
			ID:             uuid.NewString(),
			SessionID:      req.SessionID,
			Kind:           req.Instance.Kind.String(),
			URL:            req.URL,
			ScreenshotPath: req.ScreenshotPath,
			HasScreenshot:  len(req.Screenshot) > 0,
			CreatedAt:      now,
			Deadline:       now.Add(g.wait),
		},
		screenshot: req.Screenshot,
		page:       req.Page,
		decision:   make(chan challenge.Signal, 1),
	}

	g.mu.Lock()
	g.tickets[p.ticket.ID] = p
	notifiers := append([]Notifier(nil), g.notifiers...)
	g.mu.Unlock()
	defer g.remove(p.ticket.ID)

	// The deadline runs from registration, so a slow notifier eats into it.
	timer := time.NewTimer(g.wait)
	defer timer.Stop()

	g.logger.Info("Waiting for operator",
		zap.String("ticket_id", p.ticket.ID),
		zap.String("session_id", p.ticket.SessionID),
		zap.String("kind", p.ticket.Kind),
		zap.Duration("wait", g.wait))
	for _, n := range notifiers {
		n.Notify(ctx, p.ticket)
	}

	select {
	case sig := <-p.decision:
		g.logger.Info("Operator decided", zap.String("ticket_id", p.ticket.ID), zap.String("signal", string(sig)))
		return sig, nil
	case <-timer.C:
		g.logger.Warn("Operator did not answer in time", zap.String("ticket_id", p.ticket.ID))
		return challenge.SignalAbandoned, nil
	case <-ctx.Done():
		return challenge.SignalAbandoned, ctx.Err()
	}
}

// Resolve delivers an operator decision for ticket id.
func (g *Gateway) Resolve(id string, sig challenge.Signal) error {
	if sig != challenge.SignalResolved && sig != challenge.SignalAbandoned {
		return ErrInvalidSignal
	}
	g.mu.Lock()
	p, ok := g.tickets[id]
	g.mu.Unlock()
	if !ok {
		return ErrUnknownTicket
	}
	select {
	case p.decision <- sig:
		return nil
	default:
		return ErrAlreadyDecided
	}
}

// Pending lists open tickets, oldest first.
func (g *Gateway) Pending() []Ticket {
	g.mu.Lock()
	out := make([]Ticket, 0, len(g.tickets))
	for _, p := range g.tickets {
		out = append(out, p.ticket)
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns one pending ticket.
func (g *Gateway) Get(id string) (Ticket, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return p.ticket, true
}

// Screenshot returns the PNG captured for a pending ticket.
func (g *Gateway) Screenshot(id string) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.tickets[id]
	if !ok || len(p.screenshot) == 0 {
		return nil, false
	}
	return p.screenshot, true
}

// page returns the live page of a pending ticket.
func (g *Gateway) page(id string) (challenge.Page, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.tickets[id]
	if !ok || p.page == nil {
		return nil, false
	}
	return p.page, true
}

func (g *Gateway) remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tickets, id)
}

var _ challenge.Gateway = (*Gateway)(nil)
