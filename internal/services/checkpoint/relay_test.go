package checkpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/browser/browsertest"
)

type recorder struct {
	mu       sync.Mutex
	frames   []models.FramePayload
	progress []string
}

func (r *recorder) Frame(f models.FramePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recorder) Progress(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, text)
}

func (r *recorder) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func testConfig() Config {
	return Config{FrameInterval: 20 * time.Millisecond, JPEGQuality: 50, ActionRate: 1000, ActionBurst: 100}
}

func TestRelay_FramesCarryPixelDimensions(t *testing.T) {
	page := browsertest.NewFakePage("u", 640, 360)
	rec := &recorder{}
	relay := NewRelay(page, rec, func(ctx context.Context, p interfaces.Page) (bool, error) { return false, nil }, testConfig(), arbor.NewLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := relay.Run(ctx, make(chan models.CheckpointAction))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.GreaterOrEqual(t, rec.frameCount(), 2)
	for i, f := range rec.frames {
		assert.Equal(t, 640, f.Width)
		assert.Equal(t, 360, f.Height)
		assert.Equal(t, uint64(i+1), f.Seq)
		assert.NotEmpty(t, f.Image)
	}
}

func TestRelay_AppliesActionsInOrderAndCompletes(t *testing.T) {
	page := browsertest.NewFakePage("u", 1366, 768)
	rec := &recorder{}
	solved := false
	page.OnPoint(func(p *browsertest.FakePage, pt browsertest.Point) { solved = true })

	validate := func(ctx context.Context, p interfaces.Page) (bool, error) { return solved, nil }
	relay := NewRelay(page, rec, validate, testConfig(), arbor.NewLogger())

	actions := make(chan models.CheckpointAction, 8)
	actions <- models.CheckpointAction{Kind: models.ActionComplete} // not solved yet
	actions <- models.CheckpointAction{Kind: models.ActionType, Text: "123456"}
	actions <- models.CheckpointAction{Kind: models.ActionKey, Key: "Enter"}
	actions <- models.CheckpointAction{Kind: models.ActionWait, DurationMS: 5}
	actions <- models.CheckpointAction{Kind: models.ActionClick, X: 683, Y: 384} // frame is 1366x768
	actions <- models.CheckpointAction{Kind: models.ActionComplete}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, relay.Run(ctx, actions))

	assert.Equal(t, []string{"123456"}, page.Typed)
	assert.Equal(t, []string{"Enter"}, page.Keys)
	require.Len(t, page.Points, 1)
	assert.InDelta(t, 683.0, page.Points[0].X, 1e-9)
	assert.InDelta(t, 384.0, page.Points[0].Y, 1e-9)
	assert.Contains(t, rec.progress, "verification is still pending")
}

func TestRelay_ClickScalesFromDeliveredFrame(t *testing.T) {
	// Page viewport 1366x768 but screenshots are 683x384 (device scale 0.5)
	page := browsertest.NewFakePage("u", 683, 384)
	rec := &recorder{}
	relay := NewRelay(page, rec, func(ctx context.Context, p interfaces.Page) (bool, error) { return true, nil }, testConfig(), arbor.NewLogger())

	viewport := &scaledViewport{FakePage: page, w: 1366, h: 768}
	relay.page = viewport

	actions := make(chan models.CheckpointAction, 2)
	actions <- models.CheckpointAction{Kind: models.ActionClick, X: 341.5, Y: 192}
	actions <- models.CheckpointAction{Kind: models.ActionComplete}

	require.NoError(t, relay.Run(context.Background(), actions))
	require.Len(t, page.Points, 1)
	assert.InDelta(t, 683.0, page.Points[0].X, 1e-9)
	assert.InDelta(t, 384.0, page.Points[0].Y, 1e-9)
}

func TestRelay_StopsWhenBrowserReleased(t *testing.T) {
	page := browsertest.NewFakePage("u", 320, 200)
	rec := &recorder{}
	relay := NewRelay(page, rec, func(ctx context.Context, p interfaces.Page) (bool, error) { return false, nil }, testConfig(), arbor.NewLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		page.Release()
	}()

	err := relay.Run(context.Background(), make(chan models.CheckpointAction))
	assert.ErrorIs(t, err, interfaces.ErrBrowserClosed)
}

type scaledViewport struct {
	*browsertest.FakePage
	w, h int
}

func (s *scaledViewport) Viewport() (int, int) { return s.w, s.h }
