// internal/click/coordinator.go - Click-to-drill-down state machine
package click

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/valpere/r4c-viewport/internal"
	"github.com/valpere/r4c-viewport/internal/camera"
	"github.com/valpere/r4c-viewport/internal/config"
	"github.com/valpere/r4c-viewport/internal/geo"
	"github.com/valpere/r4c-viewport/internal/metrics"
	"github.com/valpere/r4c-viewport/internal/region"
	"github.com/valpere/r4c-viewport/internal/scene"
)

// DataErrorMessage is the user-facing message of a failed region load
const DataErrorMessage = "Failed to load postal code data"

var (
	// ErrBusy is returned when a click arrives while an interaction is in progress
	ErrBusy = errors.New("click processing already in progress")
	// ErrNothingToRetry is returned by Retry outside the error stage
	ErrNothingToRetry = errors.New("no failed interaction to retry")

	errTaskPanicked = errors.New("task panicked")
)

// RegionLoader fetches the dataset of a region
type RegionLoader interface {
	LoadRegion(ctx context.Context, regionID string, bounds geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error)
}

// Options configures a Coordinator
type Options struct {
	FlightDuration time.Duration
	GracePeriod    time.Duration
	RetryBaseDelay time.Duration
	MaxRetries     int
}

// OptionsFromConfig extracts coordinator options from the click configuration
func OptionsFromConfig(cfg config.ClickConfig) Options {
	return Options{
		FlightDuration: cfg.FlightDuration,
		GracePeriod:    cfg.GracePeriod,
		RetryBaseDelay: cfg.RetryBaseDelay,
		MaxRetries:     cfg.MaxRetries,
	}
}

// Coordinator runs one click interaction at a time: a camera flight and a
// region data load in parallel, with retries, cancellation and rollback.
type Coordinator struct {
	opts    Options
	camera  *camera.Controller
	regions RegionLoader
	store   Store
	metrics *metrics.Metrics
	logger  zerolog.Logger

	// OnRegionLoaded receives the dataset of every successful interaction
	OnRegionLoaded func(target Target, fc *geojson.FeatureCollection)

	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	state       State
	generation  uint64
	interaction string
	cancelData  context.CancelFunc
	flight      *camera.Flight
	lastTarget  *Target
	resetTimer  *time.Timer
}

// NewCoordinator creates a coordinator publishing into store
func NewCoordinator(opts Options, cam *camera.Controller, regions RegionLoader, store Store, m *metrics.Metrics, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		opts:    opts,
		camera:  cam,
		regions: regions,
		store:   store,
		metrics: m,
		logger:  logger.With().Str("component", "click").Logger(),
		sleep:   sleepContext,
		state:   IdleState(),
	}
}

// State returns a snapshot of the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// HandlePick resolves a picking result against dir and starts an interaction.
// A pick that hit nothing is ignored.
func (c *Coordinator) HandlePick(ctx context.Context, pick *scene.Pick, dir Directory) error {
	id, ok := pick.TargetID()
	if !ok {
		c.logger.Debug().Msg("Click did not hit a selectable region")
		return nil
	}

	target, ok := dir.Lookup(id)
	if !ok {
		return internal.NewError(internal.ErrorCodeNotFound, fmt.Sprintf("unknown region %s", id), nil)
	}
	return c.HandleClick(ctx, target)
}

// HandleClick runs one interaction to settlement.
// It returns an error only when the click is refused.
func (c *Coordinator) HandleClick(ctx context.Context, target Target) error {
	if target.ID == "" {
		return internal.NewError(internal.ErrorCodeValidation, "click target has no id", nil)
	}
	if err := target.Bounds.Validate(); err != nil {
		return internal.NewError(internal.ErrorCodeValidation, "click target has invalid bounds", err)
	}

	c.mu.Lock()
	if c.state.Stage.Busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.stopResetTimerLocked()

	c.generation++
	gen := c.generation
	c.interaction = uuid.NewString()
	c.lastTarget = &target

	pose := c.camera.CaptureCurrentState()
	c.state = State{
		Stage:          StageLoading,
		TargetID:       target.ID,
		TargetName:     target.Name,
		StartTime:      time.Now(),
		CanCancel:      false,
		RetryCount:     0,
		PreviousCamera: &pose,
	}
	c.publishLocked()

	dataCtx, cancelData := context.WithCancel(ctx)
	c.cancelData = cancelData
	logger := c.logger.With().Str("interaction", c.interaction).Str("region", target.ID).Logger()
	c.mu.Unlock()

	logger.Info().Str("name", target.Name).Msg("Processing click")

	camErr, dataErr := errTaskPanicked, errTaskPanicked
	var fc *geojson.FeatureCollection

	var wg conc.WaitGroup
	wg.Go(func() {
		camErr = c.runCamera(ctx, gen, target)
	})
	wg.Go(func() {
		fc, dataErr = c.loadWithRetry(dataCtx, gen, target, logger)
	})
	if recovered := wg.WaitAndRecover(); recovered != nil {
		logger.Error().Err(recovered.AsError()).Msg("Click task panicked")
	}

	c.reconcile(gen, target, fc, camErr, dataErr, logger)
	return nil
}

// runCamera flies to the target and waits for the flight to settle
func (c *Coordinator) runCamera(ctx context.Context, gen uint64, target Target) error {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil
	}
	c.state.Stage = StageAnimating
	c.state.CanCancel = true
	c.publishLocked()

	flight := c.camera.FlyTo(ctx, target.Destination, target.Orientation, c.opts.FlightDuration, camera.Callbacks{
		OnCancelled: func() { c.onFlightCancelled(gen) },
	})
	c.flight = flight
	c.mu.Unlock()

	err := flight.Wait(context.Background())
	if errors.Is(err, camera.ErrFlightCancelled) {
		return err
	}

	// the camera has arrived; the interaction is no longer cancellable
	c.mu.Lock()
	if c.generation == gen && c.state.Stage == StageAnimating {
		c.state.CanCancel = false
		c.flight = nil
		c.publishLocked()
	}
	c.mu.Unlock()

	return err
}

// onFlightCancelled rolls the camera back and drops the interaction
func (c *Coordinator) onFlightCancelled(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return
	}

	c.camera.RestoreCapturedState()
	c.generation++
	if c.cancelData != nil {
		c.cancelData()
		c.cancelData = nil
	}
	c.flight = nil
	c.state = IdleState()
	c.publishLocked()

	c.metrics.IncClickInteraction("cancelled")
	c.logger.Info().Str("interaction", c.interaction).Msg("Click processing cancelled")
}

// loadWithRetry loads the region, retrying transient failures with exponential backoff
func (c *Coordinator) loadWithRetry(ctx context.Context, gen uint64, target Target, logger zerolog.Logger) (*geojson.FeatureCollection, error) {
	progress := func(current, total int) {
		c.updateLoadingProgress(gen, current, total)
	}

	for attempt := 0; ; attempt++ {
		fc, err := c.regions.LoadRegion(ctx, target.ID, target.Bounds, progress)
		if err == nil {
			return fc, nil
		}

		if !internal.IsRetriable(err) || attempt >= c.opts.MaxRetries || ctx.Err() != nil {
			return nil, err
		}
		if !c.setRetryCount(gen, attempt+1) {
			return nil, err
		}
		c.metrics.IncDataRetry()

		delay := c.opts.RetryBaseDelay * time.Duration(1<<attempt)
		logger.Warn().
			Err(err).
			Int("retry", attempt+1).
			Dur("delay", delay).
			Msg("Retrying region data load")

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, err
		}
	}
}

// updateLoadingProgress publishes data task progress for the live interaction
func (c *Coordinator) updateLoadingProgress(gen uint64, current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen || !c.state.Stage.Busy() {
		return
	}
	c.state.LoadingProgress = &Progress{Current: current, Total: total}
	c.publishLocked()
}

// setRetryCount publishes the retry counter; false when the interaction is gone
func (c *Coordinator) setRetryCount(gen uint64, n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}
	c.state.RetryCount = n
	c.publishLocked()
	return true
}

// reconcile settles the interaction once both tasks have finished
func (c *Coordinator) reconcile(gen uint64, target Target, fc *geojson.FeatureCollection, camErr, dataErr error, logger zerolog.Logger) {
	c.mu.Lock()

	if c.generation != gen {
		c.mu.Unlock()
		logger.Debug().Msg("Discarding results of a cancelled interaction")
		return
	}

	if c.cancelData != nil {
		c.cancelData()
		c.cancelData = nil
	}
	c.flight = nil

	if camErr != nil {
		logger.Warn().Err(camErr).Msg("Camera flight did not complete")
	}

	c.state.CanCancel = false
	elapsed := time.Since(c.state.StartTime)
	if dataErr == nil {
		c.state.Stage = StageComplete
		c.state.Error = nil
		c.publishLocked()
		c.scheduleResetLocked(gen)
		c.mu.Unlock()

		features := 0
		if fc != nil {
			features = len(fc.Features)
		}
		c.metrics.IncClickInteraction(string(StageComplete))
		logger.Info().
			Int("features", features).
			Dur("elapsed", elapsed).
			Msg("Click processing complete")

		if c.OnRegionLoaded != nil {
			c.OnRegionLoaded(target, fc)
		}
		return
	}

	c.state.Stage = StageError
	c.state.Error = &ErrorInfo{
		Message:  DataErrorMessage,
		Details:  dataErr.Error(),
		CanRetry: internal.IsRetriable(dataErr),
	}
	c.publishLocked()
	c.mu.Unlock()

	c.metrics.IncClickInteraction(string(StageError))
	logger.Error().
		Err(multierr.Combine(dataErr, camErr)).
		Bool("can_retry", internal.IsRetriable(dataErr)).
		Dur("elapsed", elapsed).
		Msg(DataErrorMessage)
}

// Cancel requests cancellation of the running flight; false when nothing is cancellable
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	flight := c.flight
	canCancel := c.state.CanCancel
	c.mu.Unlock()

	if !canCancel || flight == nil {
		return false
	}
	return flight.CancelFlight()
}

// Retry re-runs the last interaction from the error stage
func (c *Coordinator) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Stage != StageError || c.lastTarget == nil {
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	target := *c.lastTarget
	c.mu.Unlock()

	return c.HandleClick(ctx, target)
}

// Reset dismisses a finished interaction immediately; false while one is running
func (c *Coordinator) Reset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Stage.Busy() {
		return false
	}
	c.stopResetTimerLocked()
	c.state = IdleState()
	c.publishLocked()
	return true
}

// Close stops a pending grace-period reset
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopResetTimerLocked()
}

// scheduleResetLocked returns a successful interaction to idle after the grace period
func (c *Coordinator) scheduleResetLocked(gen uint64) {
	c.stopResetTimerLocked()
	c.resetTimer = time.AfterFunc(c.opts.GracePeriod, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.generation != gen || c.state.Stage != StageComplete {
			return
		}
		c.state = IdleState()
		c.publishLocked()
	})
}

func (c *Coordinator) stopResetTimerLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
}

func (c *Coordinator) publishLocked() {
	if c.store != nil {
		c.store.Publish(c.state.Clone())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
