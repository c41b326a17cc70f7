package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

// ErrProfileInUse is returned when a user's profile directory already backs a live browser
var ErrProfileInUse = errors.New("browser profile already in use")

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Launcher starts one chromedp browser per user with a persistent profile directory
type Launcher struct {
	config *common.BrowserConfig
	logger arbor.ILogger

	mu     sync.Mutex
	active map[string]*Handle

	// OnCountChange observes the number of live handles (metrics gauge)
	OnCountChange func(active int)
}

// NewLauncher creates a new browser launcher
func NewLauncher(config *common.BrowserConfig, logger arbor.ILogger) *Launcher {
	return &Launcher{
		config: config,
		logger: logger,
		active: make(map[string]*Handle),
	}
}

// Acquire launches a browser for userID with the fixed fingerprint applied.
// The returned handle must be released on every exit path.
func (l *Launcher) Acquire(ctx context.Context, userID string) (interfaces.BrowserHandle, error) {
	l.mu.Lock()
	if _, exists := l.active[userID]; exists {
		l.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", userID, ErrProfileInUse)
	}
	// Reserve the slot so a concurrent Acquire for the same profile fails fast
	l.active[userID] = nil
	l.mu.Unlock()

	handle, err := l.launch(ctx, userID)

	l.mu.Lock()
	if err != nil {
		delete(l.active, userID)
	} else {
		l.active[userID] = handle
	}
	count := len(l.active)
	l.mu.Unlock()

	if err != nil {
		return nil, err
	}

	l.notify(count)
	return handle, nil
}

// Active returns the number of unreleased handles
func (l *Launcher) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// ReleaseAll releases every live handle; used on shutdown
func (l *Launcher) ReleaseAll() {
	l.mu.Lock()
	handles := make([]*Handle, 0, len(l.active))
	for _, h := range l.active {
		if h != nil {
			handles = append(handles, h)
		}
	}
	l.mu.Unlock()

	for _, h := range handles {
		if err := h.Release(); err != nil {
			l.logger.Warn().Err(err).Str("user_id", h.userID).Msg("Failed to release browser on shutdown")
		}
	}
}

func (l *Launcher) forget(userID string) {
	l.mu.Lock()
	delete(l.active, userID)
	count := len(l.active)
	l.mu.Unlock()
	l.notify(count)
}

func (l *Launcher) notify(count int) {
	if l.OnCountChange != nil {
		l.OnCountChange(count)
	}
}

// ProfileDir returns the per-user data directory holding cookies and local storage
func (l *Launcher) ProfileDir(userID string) string {
	return filepath.Join(l.config.UserDataRoot, unsafePathChars.ReplaceAllString(userID, "_"))
}

func (l *Launcher) launch(ctx context.Context, userID string) (*Handle, error) {
	profileDir := l.ProfileDir(userID)
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	opts := l.buildAllocatorOptions(profileDir)

	// The allocator outlives the Acquire call; it is bound to the handle, not to ctx
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			l.logger.Debug().Msgf("chromedp: "+s, i...)
		}),
	)

	handle := &Handle{
		userID:          userID,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		killTimeout:     common.ParseDurationOr(l.config.KillTimeout, 5*time.Second),
		navTimeout:      common.ParseDurationOr(l.config.NavigationTimeout, 30*time.Second),
		actionTimeout:   common.ParseDurationOr(l.config.ActionTimeout, 10*time.Second),
		width:           l.config.ViewportWidth,
		height:          l.config.ViewportHeight,
		retry:           NewRetryPolicy(l.config.RetryAttempts),
		logger:          l.logger,
		onRelease:       func() { l.forget(userID) },
	}

	startCtx, cancel := context.WithTimeout(ctx, handle.navTimeout)
	defer cancel()

	err := handle.run(startCtx,
		emulation.SetDeviceMetricsOverride(int64(l.config.ViewportWidth), int64(l.config.ViewportHeight), 1, false),
		emulation.SetTimezoneOverride(l.config.Timezone),
		emulation.SetLocaleOverride().WithLocale(l.config.Locale),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript(l.config.Locale)).Do(ctx)
			return err
		}),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		handle.shutdown()
		return nil, fmt.Errorf("browser failed startup: %w", err)
	}

	if c := chromedp.FromContext(browserCtx); c != nil && c.Browser != nil {
		if proc := c.Browser.Process(); proc != nil {
			handle.pid = proc.Pid
		}
	}

	l.logger.Info().
		Str("user_id", userID).
		Int("pid", handle.pid).
		Str("profile", profileDir).
		Msg("Browser acquired")

	return handle, nil
}

// chromeFlags are Chrome command-line switches; chromedp passes each as --name[=value]
func (l *Launcher) chromeFlags() map[string]interface{} {
	return map[string]interface{}{
		"disable-blink-features": "AutomationControlled",
		"disable-dev-shm-usage":  true,
		"disable-infobars":       true,
		"disable-popup-blocking": true,
		"lang":                   l.config.Locale,
		"enable-webgl":           true,
	}
}

// buildAllocatorOptions fixes a realistic fingerprint and suppresses automation signals
func (l *Launcher) buildAllocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(profileDir),
		chromedp.UserAgent(l.config.UserAgent),
		chromedp.WindowSize(l.config.ViewportWidth, l.config.ViewportHeight),
	}
	for name, value := range l.chromeFlags() {
		opts = append(opts, chromedp.Flag(name, value))
	}

	if l.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.config.ExecPath))
	}

	if os.Geteuid() == 0 {
		opts = append(opts, chromedp.NoSandbox)
	}

	if l.config.Headless {
		// New headless mode is less detectable than the legacy one
		opts = append(opts, chromedp.Flag("headless", "new"))
	}

	return opts
}
