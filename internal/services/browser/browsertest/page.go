// Package browsertest provides scriptable in-memory pages and launchers for tests.
package browsertest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

const blankHTML = "<html><head></head><body></body></html>"

// Point is a recorded click position
type Point struct {
	X, Y float64
}

// FakePage is a BrowserHandle backed by static HTML documents.
// Routes map URLs to markup; click handlers swap documents to model navigation.
type FakePage struct {
	mu sync.Mutex

	userID  string
	routes  map[string]string
	onClick map[string]func(p *FakePage)
	failing map[string]error
	onPoint func(p *FakePage, pt Point)
	url     string
	html    string

	width, height int

	// HangNavigate blocks Navigate until the caller's context ends or the page is released
	HangNavigate bool

	Values   map[string]string
	Uploads  map[string]string
	Clicks   []string
	Points   []Point
	Typed    []string
	Keys     []string
	Visited  []string
	Scrolls  int
	Captures int

	released     bool
	releaseCount int
	closed       chan struct{}
	onRelease    func()
}

var _ interfaces.BrowserHandle = (*FakePage)(nil)

// NewFakePage creates a page with the given viewport
func NewFakePage(userID string, width, height int) *FakePage {
	return &FakePage{
		userID:  userID,
		routes:  make(map[string]string),
		onClick: make(map[string]func(p *FakePage)),
		failing: make(map[string]error),
		url:     "about:blank",
		html:    blankHTML,
		width:   width,
		height:  height,
		Values:  make(map[string]string),
		Uploads: make(map[string]string),
		closed:  make(chan struct{}),
	}
}

// Route serves html at url
func (p *FakePage) Route(url, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[url] = html
}

// OnClick registers a handler run after a click on selector
func (p *FakePage) OnClick(selector string, fn func(p *FakePage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = fn
}

// FailClick makes clicks on selector return err; a nil err clears it
func (p *FakePage) FailClick(selector string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failing, selector)
		return
	}
	p.failing[selector] = err
}

// OnPoint registers a handler run after a coordinate click
func (p *FakePage) OnPoint(fn func(p *FakePage, pt Point)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPoint = fn
}

// Show replaces the current document and location without going through routes
func (p *FakePage) Show(url, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.html = html
}

// Load moves to a routed url
func (p *FakePage) Load(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.load(url)
}

func (p *FakePage) load(url string) {
	p.url = url
	if html, ok := p.routes[url]; ok {
		p.html = html
	} else {
		p.html = blankHTML
	}
	p.Visited = append(p.Visited, url)
}

// SetHangNavigate toggles HangNavigate while the page is in use
func (p *FakePage) SetHangNavigate(hang bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HangNavigate = hang
}

// Value returns the last value set on selector
func (p *FakePage) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Values[selector]
}

// ClickCount returns how many times selector was clicked
func (p *FakePage) ClickCount(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// VisitCount returns how many times url was loaded
func (p *FakePage) VisitCount(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, v := range p.Visited {
		if v == url {
			n++
		}
	}
	return n
}

// ReleaseCount returns how many times Release was called
func (p *FakePage) ReleaseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseCount
}

func (p *FakePage) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.released {
		return interfaces.ErrBrowserClosed
	}
	return nil
}

func (p *FakePage) document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(p.html))
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	if err := p.check(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	hang := p.HangNavigate
	closed := p.closed
	p.mu.Unlock()

	if hang {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return interfaces.ErrBrowserClosed
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.load(url)
	return nil
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", err
	}
	return p.url, nil
}

func (p *FakePage) HTML(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", err
	}
	if selector == "" {
		return p.html, nil
	}

	doc, err := p.document()
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("selector %q not found", selector)
	}
	return goquery.OuterHtml(sel)
}

func (p *FakePage) WaitVisible(ctx context.Context, selector string) error {
	found, err := p.Exists(ctx, selector)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("selector %q not visible: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

func (p *FakePage) Exists(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return false, err
	}
	doc, err := p.document()
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	if err := p.check(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	doc, err := p.document()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if doc.Find(selector).Length() == 0 {
		p.mu.Unlock()
		return fmt.Errorf("click: selector %q not found", selector)
	}
	if err := p.failing[selector]; err != nil {
		p.mu.Unlock()
		return fmt.Errorf("click %q: %w", selector, err)
	}
	p.Clicks = append(p.Clicks, selector)
	handler := p.onClick[selector]
	p.mu.Unlock()

	if handler != nil {
		handler(p)
	}
	return nil
}

func (p *FakePage) SetValue(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	p.Values[selector] = value
	return nil
}

func (p *FakePage) Upload(ctx context.Context, selector, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	p.Uploads[selector] = path
	return nil
}

func (p *FakePage) Scroll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	p.Scrolls++
	return nil
}

func (p *FakePage) Evaluate(ctx context.Context, expression string, result interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.check(ctx)
}

// Screenshot renders a flat JPEG at the viewport size
func (p *FakePage) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	p.mu.Lock()
	if err := p.check(ctx); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.Captures++
	w, h := p.width, p.height
	p.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 8 {
		for x := 0; x < w; x += 8 {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *FakePage) DispatchClick(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	if err := p.check(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	pt := Point{X: x, Y: y}
	p.Points = append(p.Points, pt)
	handler := p.onPoint
	p.mu.Unlock()

	if handler != nil {
		handler(p, pt)
	}
	return nil
}

func (p *FakePage) InsertText(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	p.Typed = append(p.Typed, text)
	return nil
}

func (p *FakePage) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return err
	}
	p.Keys = append(p.Keys, key)
	return nil
}

func (p *FakePage) Viewport() (int, int) {
	return p.width, p.height
}

func (p *FakePage) UserID() string { return p.userID }

func (p *FakePage) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *FakePage) Release() error {
	p.mu.Lock()
	p.releaseCount++
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	close(p.closed)
	hook := p.onRelease
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}
