package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/services/browser"
)

// FakeLauncher hands out FakePages and counts live handles
type FakeLauncher struct {
	mu sync.Mutex

	// NewPage builds the page for a user; defaults to a blank 1280x720 page
	NewPage func(userID string) *FakePage
	// AcquireErr fails every Acquire when set
	AcquireErr error
	// Gate, when set, blocks Acquire until closed or ctx ends
	Gate chan struct{}

	active   map[string]*FakePage
	acquired int
	pages    []*FakePage
}

var _ interfaces.BrowserLauncher = (*FakeLauncher)(nil)

// NewFakeLauncher creates a launcher using newPage for each acquisition
func NewFakeLauncher(newPage func(userID string) *FakePage) *FakeLauncher {
	return &FakeLauncher{
		NewPage: newPage,
		active:  make(map[string]*FakePage),
	}
}

func (l *FakeLauncher) Acquire(ctx context.Context, userID string) (interfaces.BrowserHandle, error) {
	l.mu.Lock()
	gate := l.Gate
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.AcquireErr != nil {
		return nil, l.AcquireErr
	}
	if _, exists := l.active[userID]; exists {
		return nil, fmt.Errorf("%s: %w", userID, browser.ErrProfileInUse)
	}

	var page *FakePage
	if l.NewPage != nil {
		page = l.NewPage(userID)
	} else {
		page = NewFakePage(userID, 1280, 720)
	}
	page.onRelease = func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.active[userID] == page {
			delete(l.active, userID)
		}
	}

	l.active[userID] = page
	l.acquired++
	l.pages = append(l.pages, page)
	return page, nil
}

// Active returns the number of unreleased handles
func (l *FakeLauncher) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// Acquired returns the total number of handles ever handed out
func (l *FakeLauncher) Acquired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}

// Pages returns every page handed out, in order
func (l *FakeLauncher) Pages() []*FakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakePage(nil), l.pages...)
}

// Page returns the live page for a user
func (l *FakeLauncher) Page(userID string) *FakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[userID]
}
