package challenge

import (
	"context"

	"github.com/xkilldash9x/hurdle/api/schemas"
)

// Page is the browser capability the engine consumes. It is implemented by
// the CDP session in internal/browser/session and by fakes in tests.
type Page interface {
	Navigate(ctx context.Context, url string) error
	QueryElements(ctx context.Context, q schemas.Query) ([]schemas.ElementRef, error)
	ReadText(ctx context.Context, ref schemas.ElementRef) (string, error)
	PointerDown(ctx context.Context, at schemas.Point) error
	PointerMove(ctx context.Context, to schemas.Point) error
	PointerUp(ctx context.Context, at schemas.Point) error
	Click(ctx context.Context, ref schemas.ElementRef) error
	CurrentURL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// KeyPresser is implemented by drivers able to send key presses to the
// focused element.
type KeyPresser interface {
	PressKey(ctx context.Context, key string) error
}

// Reloader is implemented by drivers able to reload the current document.
type Reloader interface {
	Reload(ctx context.Context) error
}

// HTMLSource is implemented by drivers able to return the serialized DOM.
type HTMLSource interface {
	HTML(ctx context.Context) (string, error)
}
