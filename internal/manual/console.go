// File: internal/manual/console.go
package manual

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/internal/challenge"
)

// ConsoleOperator asks a human at the terminal about each ticket, one at a
// time. Answers:
//
//	<enter> or done  the challenge was solved in the browser window
//	skip             give up on this ticket
//	reload           reload the page, then treat it as solved
//	quit             give up on this and every later ticket
type ConsoleOperator struct {
	gateway *Gateway
	in      io.Reader
	out     io.Writer
	queue   chan Ticket
	logger  *zap.Logger
}

// NewConsoleOperator creates an operator and registers it with g.
func NewConsoleOperator(g *Gateway, in io.Reader, out io.Writer, logger *zap.Logger) *ConsoleOperator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ConsoleOperator{
		gateway: g,
		in:      in,
		out:     out,
		queue:   make(chan Ticket, consoleQueueSize),
		logger:  logger.Named("console_operator"),
	}
	g.AddNotifier(c)
	return c
}

// consoleQueueSize bounds the tickets waiting for the prompt loop.
const consoleQueueSize = 64

// Notify queues t for the prompt loop. It never blocks: when the queue is
// full the ticket is dropped and left to expire at its deadline.
func (c *ConsoleOperator) Notify(_ context.Context, t Ticket) {
	select {
	case c.queue <- t:
	default:
		c.logger.Warn("Operator queue full, ticket will expire unanswered",
			zap.String("ticket_id", t.ID),
			zap.Time("deadline", t.Deadline))
	}
}

// Run prompts for queued tickets until ctx is done or input ends.
func (c *ConsoleOperator) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	quitting := false
	for {
		var t Ticket
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t = <-c.queue:
		}
		if _, ok := c.gateway.Get(t.ID); !ok {
			continue
		}
		if quitting {
			c.decide(t, challenge.SignalAbandoned)
			continue
		}

		c.prompt(t)
		expired := time.NewTimer(time.Until(t.Deadline))
		for answered := false; !answered; {
			var line string
			var open bool
			select {
			case <-ctx.Done():
				expired.Stop()
				return ctx.Err()
			case <-expired.C:
				fmt.Fprintln(c.out, "\nToo late, the ticket expired.")
				answered = true
				continue
			case line, open = <-lines:
			}
			if !open {
				expired.Stop()
				c.decide(t, challenge.SignalAbandoned)
				return nil
			}
			answered = true
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "", "done", "y", "yes":
				c.decide(t, challenge.SignalResolved)
			case "skip", "s":
				c.decide(t, challenge.SignalAbandoned)
			case "quit", "q":
				quitting = true
				c.decide(t, challenge.SignalAbandoned)
			case "reload", "r":
				c.reload(ctx, t)
				c.decide(t, challenge.SignalResolved)
			default:
				fmt.Fprintln(c.out, "Please answer done, skip, reload or quit.")
				answered = false
			}
		}
		expired.Stop()
	}
}

func (c *ConsoleOperator) prompt(t Ticket) {
	fmt.Fprintf(c.out, "\n[%s] %s challenge on %s (session %s)\n", t.ID[:8], t.Kind, t.URL, t.SessionID)
	if t.ScreenshotPath != "" {
		fmt.Fprintf(c.out, "Screenshot: %s\n", t.ScreenshotPath)
	}
	fmt.Fprintf(c.out, "Solve it in the browser, then press Enter (or type skip, reload, quit) before %s: ",
		t.Deadline.Format("15:04:05"))
}

func (c *ConsoleOperator) reload(ctx context.Context, t Ticket) {
	page, ok := c.gateway.page(t.ID)
	if !ok {
		return
	}
	r, ok := page.(challenge.Reloader)
	if !ok {
		fmt.Fprintln(c.out, "This browser session cannot reload.")
		return
	}
	if err := r.Reload(ctx); err != nil {
		c.logger.Warn("Reload failed", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func (c *ConsoleOperator) decide(t Ticket, sig challenge.Signal) {
	err := c.gateway.Resolve(t.ID, sig)
	switch {
	case errors.Is(err, ErrUnknownTicket):
		fmt.Fprintln(c.out, "Too late, the ticket expired.")
	case err != nil:
		c.logger.Warn("Could not deliver decision", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}
