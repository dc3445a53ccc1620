package session

import "context"

// CombineContext returns a context carrying the values of tab (where chromedp
// keeps its target) that is cancelled when either tab or op is done.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(op, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Detach returns a context that keeps the values of ctx but not its
// cancellation. Cleanup against a tab uses it after the caller gave up.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
