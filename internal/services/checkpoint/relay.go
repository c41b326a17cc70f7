package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"golang.org/x/time/rate"
)

// Emitter receives relay output in order
type Emitter interface {
	Frame(frame models.FramePayload)
	Progress(text string)
}

// Validator re-checks login once the human reports the challenge solved
type Validator func(ctx context.Context, page interfaces.Page) (bool, error)

// Config tunes frame cadence and action throttling
type Config struct {
	FrameInterval time.Duration
	JPEGQuality   int
	ActionRate    float64
	ActionBurst   int
}

// Relay mirrors a checkpoint page to the human and forwards their input
type Relay struct {
	page     interfaces.Page
	emitter  Emitter
	validate Validator
	config   Config
	limiter  *rate.Limiter
	logger   arbor.ILogger

	frameW, frameH int
	seq            uint64
}

// NewRelay creates a relay over page
func NewRelay(page interfaces.Page, emitter Emitter, validate Validator, config Config, logger arbor.ILogger) *Relay {
	if config.FrameInterval <= 0 {
		config.FrameInterval = time.Second
	}
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = 60
	}
	if config.ActionRate <= 0 {
		config.ActionRate = 10
	}
	if config.ActionBurst <= 0 {
		config.ActionBurst = 5
	}

	return &Relay{
		page:     page,
		emitter:  emitter,
		validate: validate,
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(config.ActionRate), config.ActionBurst),
		logger:   logger,
	}
}

// Run streams frames and applies actions in receipt order until a complete action
// is validated (returns nil) or ctx ends. A closed browser ends the relay with its error.
func (r *Relay) Run(ctx context.Context, actions <-chan models.CheckpointAction) error {
	ticker := time.NewTicker(r.config.FrameInterval)
	defer ticker.Stop()

	if err := r.sendFrame(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := r.sendFrame(ctx); err != nil {
				return err
			}

		case action, ok := <-actions:
			if !ok {
				return fmt.Errorf("checkpoint action stream closed")
			}
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}

			resolved, err := r.apply(ctx, action)
			if err != nil {
				if errors.Is(err, interfaces.ErrBrowserClosed) || ctx.Err() != nil {
					return err
				}
				r.logger.Warn().Err(err).Str("kind", string(action.Kind)).Msg("Checkpoint action failed")
				r.emitter.Progress(fmt.Sprintf("checkpoint action %s failed", action.Kind))
			}
			if resolved {
				return nil
			}
			if action.Kind != models.ActionComplete {
				if err := r.sendFrame(ctx); err != nil {
					return err
				}
			}
		}
	}
}

func (r *Relay) apply(ctx context.Context, action models.CheckpointAction) (bool, error) {
	switch action.Kind {
	case models.ActionClick:
		viewW, viewH := r.page.Viewport()
		x, y := ScalePoint(action.X, action.Y, r.frameW, r.frameH, viewW, viewH)
		return false, r.page.DispatchClick(ctx, x, y)

	case models.ActionType:
		return false, r.page.InsertText(ctx, action.Text)

	case models.ActionKey:
		return false, r.page.PressKey(ctx, action.Key)

	case models.ActionWait:
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(action.DurationMS) * time.Millisecond):
		}
		return false, nil

	case models.ActionComplete:
		ok, err := r.validate(ctx, r.page)
		if err != nil {
			return false, err
		}
		if !ok {
			r.emitter.Progress("verification is still pending")
			return false, r.sendFrame(ctx)
		}
		return true, nil
	}

	return false, fmt.Errorf("unknown checkpoint action %q", action.Kind)
}

// sendFrame captures a JPEG and reports its real pixel size so clicks scale correctly
func (r *Relay) sendFrame(ctx context.Context) error {
	image, err := r.page.Screenshot(ctx, r.config.JPEGQuality)
	if err != nil {
		if errors.Is(err, interfaces.ErrBrowserClosed) || ctx.Err() != nil {
			return err
		}
		r.logger.Debug().Err(err).Msg("Checkpoint frame capture failed")
		return nil
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(image))
	if err != nil {
		r.logger.Debug().Err(err).Msg("Checkpoint frame is not a decodable JPEG")
		return nil
	}

	r.frameW, r.frameH = cfg.Width, cfg.Height
	r.seq++
	r.emitter.Frame(models.FramePayload{
		Image:  image,
		Width:  cfg.Width,
		Height: cfg.Height,
		Seq:    r.seq,
	})
	return nil
}
