// internal/camera/controller.go - Animated camera flights with cooperative cancellation
package camera

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/valpere/r4c-viewport/internal"
	"github.com/valpere/r4c-viewport/internal/scene"
)

// DefaultFrameInterval is the animation frame period (about 60 frames per second)
const DefaultFrameInterval = 16 * time.Millisecond

// ErrFlightCancelled is returned by Flight.Wait when the flight was cancelled
var ErrFlightCancelled = errors.New("camera flight cancelled")

// Callbacks are the terminal continuations of a flight; exactly one of them runs, once
type Callbacks struct {
	OnComplete  func(err error)
	OnCancelled func()
}

// Controller animates the renderer camera and keeps a snapshot for rollback
type Controller struct {
	renderer      scene.Renderer
	logger        zerolog.Logger
	frameInterval time.Duration

	mu       sync.Mutex
	captured *scene.CameraPose
	active   *Flight
}

// NewController creates a camera controller driving renderer
func NewController(renderer scene.Renderer, frameInterval time.Duration, logger zerolog.Logger) *Controller {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}
	return &Controller{
		renderer:      renderer,
		logger:        logger.With().Str("component", "camera").Logger(),
		frameInterval: frameInterval,
	}
}

// CaptureCurrentState snapshots the current camera pose, replacing any earlier snapshot
func (c *Controller) CaptureCurrentState() scene.CameraPose {
	pose := c.renderer.CameraPose()

	c.mu.Lock()
	c.captured = &pose
	c.mu.Unlock()

	c.logger.Debug().Str("pose", pose.String()).Msg("Captured camera state")
	return pose
}

// Captured returns the current snapshot, if any
func (c *Controller) Captured() (scene.CameraPose, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.captured == nil {
		return scene.CameraPose{}, false
	}
	return *c.captured, true
}

// RestoreCapturedState puts the camera back to the snapshot.
// With nothing captured it logs a warning and returns false.
func (c *Controller) RestoreCapturedState() bool {
	pose, ok := c.Captured()
	if !ok {
		c.logger.Warn().Msg("No captured camera state to restore")
		return false
	}

	if err := c.renderer.SetCameraView(pose); err != nil {
		c.logger.Error().Err(err).Msg("Failed to restore camera state")
		return false
	}

	c.logger.Debug().Str("pose", pose.String()).Msg("Restored camera state")
	return true
}

// CancelFlight requests cancellation of the active flight.
// It returns false when there is no flight or cancellation is already pending.
func (c *Controller) CancelFlight() bool {
	c.mu.Lock()
	f := c.active
	c.mu.Unlock()

	if f == nil {
		return false
	}
	return f.CancelFlight()
}

// Flying reports whether a flight is in progress
func (c *Controller) Flying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// FlyTo starts an animated transition to dest and returns its handle.
// A flight already in progress is cancelled first.
func (c *Controller) FlyTo(ctx context.Context, dest scene.Position, orientation scene.Orientation, duration time.Duration, cb Callbacks) *Flight {
	f := &Flight{
		ctrl: c,
		from: c.renderer.CameraPose(),
		to:   scene.CameraPose{Position: dest, Orientation: orientation},
		dur:  duration,
		cb:   cb,
		done: make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.active
	c.active = f
	c.mu.Unlock()

	if prev != nil {
		prev.CancelFlight()
	}

	c.logger.Debug().
		Str("from", f.from.String()).
		Str("to", f.to.String()).
		Dur("duration", duration).
		Msg("Starting camera flight")

	go f.run(ctx, c.frameInterval)
	return f
}

// finished clears per-flight controller state once f has settled
func (c *Controller) finished(f *Flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == f {
		c.active = nil
		c.captured = nil
	}
}

// Flight is the handle of one camera animation
type Flight struct {
	ctrl *Controller
	from scene.CameraPose
	to   scene.CameraPose
	dur  time.Duration
	cb   Callbacks

	status atomic.Int32
	once   sync.Once
	done   chan struct{}
	err    error
}

// Flight status values
const (
	flightRunning int32 = iota
	flightCancelRequested
	flightSettled
)

// CancelFlight sets the cooperative cancel flag read on every frame.
// A second call while cancellation is pending, or a call after the flight settled, returns false.
// When it returns true the flight ends cancelled, even if the last frame was already drawn.
func (f *Flight) CancelFlight() bool {
	return f.status.CAS(flightRunning, flightCancelRequested)
}

// Done is closed after the terminal continuation has run
func (f *Flight) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the flight settles: nil on arrival, ErrFlightCancelled, or a camera animation error
func (f *Flight) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives the animation frame by frame
func (f *Flight) run(ctx context.Context, frameInterval time.Duration) {
	start := time.Now()
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		if f.status.Load() == flightCancelRequested {
			f.settle(ErrFlightCancelled)
			return
		}

		progress := 1.0
		if f.dur > 0 {
			progress = math.Min(1, float64(time.Since(start))/float64(f.dur))
		}

		pose := f.to
		if progress < 1 {
			pose = interpolate(f.from, f.to, easeInOut(progress))
		}
		if err := f.ctrl.renderer.SetCameraView(pose); err != nil {
			f.finish(internal.NewError(internal.ErrorCodeCameraAnimation, "camera flight failed", err))
			return
		}
		if progress >= 1 {
			f.finish(nil)
			return
		}

		select {
		case <-ctx.Done():
			f.status.CAS(flightRunning, flightCancelRequested)
		case <-ticker.C:
		}
	}
}

// finish settles a flight that ended on its own; a cancel accepted after the last checkpoint still wins
func (f *Flight) finish(err error) {
	if !f.status.CAS(flightRunning, flightSettled) {
		err = ErrFlightCancelled
	}
	f.settle(err)
}

// settle runs exactly one terminal continuation, then clears controller state
func (f *Flight) settle(err error) {
	f.once.Do(func() {
		f.status.Store(flightSettled)
		f.err = err

		logger := f.ctrl.logger
		if errors.Is(err, ErrFlightCancelled) {
			logger.Debug().Msg("Camera flight cancelled")
			if f.cb.OnCancelled != nil {
				f.cb.OnCancelled()
			}
		} else {
			if err != nil {
				logger.Warn().Err(err).Msg("Camera flight failed")
			} else {
				logger.Debug().Msg("Camera flight complete")
			}
			if f.cb.OnComplete != nil {
				f.cb.OnComplete(err)
			}
		}

		f.ctrl.finished(f)
		close(f.done)
	})
}

// interpolate blends two poses; heading takes the shorter way round
func interpolate(from, to scene.CameraPose, t float64) scene.CameraPose {
	return scene.CameraPose{
		Position: scene.Position{
			Lon:    lerp(from.Position.Lon, to.Position.Lon, t),
			Lat:    lerp(from.Position.Lat, to.Position.Lat, t),
			Height: lerp(from.Position.Height, to.Position.Height, t),
		},
		Orientation: scene.Orientation{
			Heading: lerpAngle(from.Orientation.Heading, to.Orientation.Heading, t),
			Pitch:   lerp(from.Orientation.Pitch, to.Orientation.Pitch, t),
			Roll:    lerp(from.Orientation.Roll, to.Orientation.Roll, t),
		},
	}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerpAngle(a, b, t float64) float64 {
	delta := math.Mod(b-a+540, 360) - 180
	return a + delta*t
}

// easeInOut is a smoothstep curve on [0, 1]
func easeInOut(t float64) float64 {
	return t * t * (3 - 2*t)
}
