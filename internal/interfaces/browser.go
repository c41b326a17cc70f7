package interfaces

import (
	"context"
	"errors"
)

// ErrBrowserClosed is returned by page operations after the handle was released
var ErrBrowserClosed = errors.New("browser handle released")

// Page is the live-page contract used by extraction, the application walker and the checkpoint relay
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// HTML returns the outer HTML of the first node matching selector ("" for the document)
	HTML(ctx context.Context, selector string) (string, error)
	WaitVisible(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
	Upload(ctx context.Context, selector, path string) error
	Scroll(ctx context.Context) error
	Evaluate(ctx context.Context, expression string, result interface{}) error
	// Screenshot captures the viewport as JPEG at the given quality
	Screenshot(ctx context.Context, quality int) ([]byte, error)
	// DispatchClick clicks at page coordinates
	DispatchClick(ctx context.Context, x, y float64) error
	// InsertText types into the focused element
	InsertText(ctx context.Context, text string) error
	// PressKey dispatches a named key ("Enter", "Tab", "Escape", ...)
	PressKey(ctx context.Context, key string) error
	Viewport() (width, height int)
}

// BrowserHandle is one browser process plus its authenticated context, owned by one session
type BrowserHandle interface {
	Page
	UserID() string
	// Release terminates the process; safe to call more than once
	Release() error
	Released() bool
}

// BrowserLauncher acquires browser handles
type BrowserLauncher interface {
	Acquire(ctx context.Context, userID string) (BrowserHandle, error)
	// Active returns the number of unreleased handles
	Active() int
}
