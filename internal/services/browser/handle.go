package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

// Handle owns one browser process and its authenticated context
type Handle struct {
	userID          string
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	pid             int

	killTimeout   time.Duration
	navTimeout    time.Duration
	actionTimeout time.Duration
	width         int
	height        int

	retry     *RetryPolicy
	logger    arbor.ILogger
	onRelease func()

	releaseOnce sync.Once
	released    atomic.Bool
}

var _ interfaces.BrowserHandle = (*Handle)(nil)

func (h *Handle) UserID() string { return h.userID }

// PID is the browser process id, 0 if unknown
func (h *Handle) PID() int { return h.pid }

func (h *Handle) Released() bool { return h.released.Load() }

// Release terminates the browser. Safe to call more than once and from any goroutine.
// If the process does not exit within the kill timeout it is killed outright.
func (h *Handle) Release() error {
	var err error
	h.releaseOnce.Do(func() {
		h.released.Store(true)
		err = h.shutdown()
		if h.onRelease != nil {
			h.onRelease()
		}
	})
	return err
}

func (h *Handle) shutdown() error {
	start := time.Now()
	done := make(chan struct{})
	go func() {
		// Cancelling the browser context closes the tab, the allocator waits for the process
		h.browserCancel()
		h.allocatorCancel()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Debug().Str("user_id", h.userID).Dur("elapsed", time.Since(start)).Msg("Browser released")
		return nil
	case <-time.After(h.killTimeout):
	}

	h.logger.Warn().
		Str("user_id", h.userID).
		Int("pid", h.pid).
		Dur("kill_timeout", h.killTimeout).
		Msg("Browser did not exit in time, force killing")

	if h.pid <= 0 {
		return fmt.Errorf("browser for %s did not exit and pid is unknown", h.userID)
	}
	proc, err := os.FindProcess(h.pid)
	if err != nil {
		return fmt.Errorf("failed to find browser process %d: %w", h.pid, err)
	}
	if err := proc.Kill(); err != nil && err != os.ErrProcessDone {
		return fmt.Errorf("failed to kill browser process %d: %w", h.pid, err)
	}
	return nil
}

// run executes actions on the browser tab, bounded by both ctx and the handle lifetime
func (h *Handle) run(ctx context.Context, actions ...chromedp.Action) error {
	if h.Released() {
		return interfaces.ErrBrowserClosed
	}

	runCtx, cancel := context.WithCancel(h.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case h.Released():
		return interfaces.ErrBrowserClosed
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return err
}

// element runs actions that wait for a DOM node. chromedp polls for a missing
// node until its context ends, so a caller without a deadline gets actionTimeout.
func (h *Handle) element(ctx context.Context, actions ...chromedp.Action) error {
	ctx, cancel := h.bound(ctx)
	defer cancel()
	return h.run(ctx, actions...)
}

func (h *Handle) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || h.actionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.actionTimeout)
}

func (h *Handle) Navigate(ctx context.Context, url string) error {
	return h.retry.Execute(ctx, h.logger, func(ctx context.Context) error {
		navCtx, cancel := context.WithTimeout(ctx, h.navTimeout)
		defer cancel()
		if err := h.run(navCtx, chromedp.Navigate(url)); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		return nil
	})
}

func (h *Handle) URL(ctx context.Context) (string, error) {
	var location string
	err := h.run(ctx, chromedp.Location(&location))
	return location, err
}

func (h *Handle) HTML(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		selector = "html"
	}
	var html string
	err := h.element(ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery))
	return html, err
}

func (h *Handle) WaitVisible(ctx context.Context, selector string) error {
	return h.element(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (h *Handle) Exists(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	var found bool
	err = h.run(ctx, chromedp.Evaluate(fmt.Sprintf("document.querySelector(%s) !== null", quoted), &found))
	return found, err
}

func (h *Handle) Click(ctx context.Context, selector string) error {
	return h.element(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// SetValue sets the value and fires input/change so framework-bound forms notice
func (h *Handle) SetValue(ctx context.Context, selector, value string) error {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	notify := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, quoted)

	return h.element(ctx,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(notify, nil),
	)
}

func (h *Handle) Upload(ctx context.Context, selector, path string) error {
	return h.element(ctx, chromedp.SetUploadFiles(selector, []string{path}, chromedp.ByQuery))
}

// Scroll advances the listings pane and the window by one viewport to trigger lazy loading
func (h *Handle) Scroll(ctx context.Context) error {
	const script = `(() => {
		const pane = document.querySelector('.jobs-search-results-list, .scaffold-layout__list');
		if (pane) pane.scrollTop = pane.scrollHeight;
		window.scrollBy(0, window.innerHeight);
		return true;
	})()`
	return h.run(ctx, chromedp.Evaluate(script, nil))
}

func (h *Handle) Evaluate(ctx context.Context, expression string, result interface{}) error {
	return h.run(ctx, chromedp.Evaluate(expression, result))
}

func (h *Handle) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	var buf []byte
	err := h.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			Do(ctx)
		return err
	}))
	return buf, err
}

func (h *Handle) DispatchClick(ctx context.Context, x, y float64) error {
	return h.run(ctx, chromedp.MouseClickXY(x, y))
}

func (h *Handle) InsertText(ctx context.Context, text string) error {
	return h.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

func (h *Handle) PressKey(ctx context.Context, key string) error {
	return h.run(ctx, chromedp.KeyEvent(namedKey(key)))
}

func (h *Handle) Viewport() (int, int) {
	return h.width, h.height
}

var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"Space":      " ",
}

// namedKey maps a DOM key name to the chromedp key sequence; single characters pass through
func namedKey(key string) string {
	if mapped, ok := namedKeys[key]; ok {
		return mapped
	}
	return key
}
