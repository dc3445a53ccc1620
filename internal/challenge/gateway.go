// File: internal/challenge/gateway.go
package challenge

import "context"

// ManualRequest hands a challenge over to a human operator.
type ManualRequest struct {
	SessionID string
	Instance  Instance
	URL       string
	// Screenshot is the PNG captured when the request was made. It may be
	// empty when the driver could not capture one.
	Screenshot     []byte
	ScreenshotPath string
	// Page lets operators act on the live page (a console reload, say).
	Page Page
}

// Gateway blocks the calling session until an operator answers or the
// gateway's own deadline passes. A deadline is reported as SignalAbandoned.
type Gateway interface {
	Request(ctx context.Context, req ManualRequest) (Signal, error)
}

// ScreenshotStore persists screenshots and returns where they were written.
type ScreenshotStore interface {
	Save(ctx context.Context, sessionID, label string, png []byte) (string, error)
}
