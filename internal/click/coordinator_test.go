// internal/click/coordinator_test.go - Unit tests for the click processing state machine
package click

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/valpere/r4c-viewport/internal"
	"github.com/valpere/r4c-viewport/internal/camera"
	"github.com/valpere/r4c-viewport/internal/geo"
	"github.com/valpere/r4c-viewport/internal/metrics"
	"github.com/valpere/r4c-viewport/internal/region"
	"github.com/valpere/r4c-viewport/internal/scene"
)

var homePose = scene.CameraPose{
	Position:    scene.Position{Lon: 24.9384, Lat: 60.1699, Height: 15000.123456789},
	Orientation: scene.Orientation{Heading: 12.5, Pitch: -89.9, Roll: 0.001},
}

var kallio = NewTarget("00530", "Kallio", geo.NewBounds(24.94, 60.18, 24.96, 60.19), 2500, -35)

// regionFunc adapts a function to RegionLoader
type regionFunc func(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error)

func (f regionFunc) LoadRegion(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error) {
	return f(ctx, id, b, progress)
}

// recorder keeps every published state
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) Publish(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func oneBuilding() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{24.95, 60.185}))
	return fc
}

func succeed(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error) {
	progress(0, 2)
	progress(1, 2)
	progress(2, 2)
	return oneBuilding(), nil
}

type harness struct {
	coord    *Coordinator
	renderer *scene.MemoryRenderer
	store    *recorder
	delays   []time.Duration
}

func newHarness(t *testing.T, opts Options, loader RegionLoader) *harness {
	t.Helper()
	h := &harness{
		renderer: scene.NewMemoryRenderer(homePose),
		store:    &recorder{},
	}
	cam := camera.NewController(h.renderer, time.Millisecond, zerolog.Nop())
	h.coord = NewCoordinator(opts, cam, loader, h.store, metrics.New(), zerolog.Nop())
	h.coord.sleep = func(ctx context.Context, d time.Duration) error {
		h.delays = append(h.delays, d)
		return ctx.Err()
	}
	t.Cleanup(h.coord.Close)
	return h
}

func defaultOptions() Options {
	return Options{
		FlightDuration: 5 * time.Millisecond,
		GracePeriod:    time.Hour,
		RetryBaseDelay: time.Second,
		MaxRetries:     3,
	}
}

func waitForStage(t *testing.T, c *Coordinator, stage Stage) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.State().Stage != stage {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for stage %s, at %s", stage, c.State().Stage)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandleClickSuccess(t *testing.T) {
	h := newHarness(t, defaultOptions(), regionFunc(succeed))

	var loaded *geojson.FeatureCollection
	h.coord.OnRegionLoaded = func(target Target, fc *geojson.FeatureCollection) {
		loaded = fc
	}

	if err := h.coord.HandleClick(context.Background(), kallio); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	st := h.coord.State()
	if st.Stage != StageComplete || st.Error != nil || st.CanCancel {
		t.Errorf("Unexpected final state %+v", st)
	}
	if st.TargetID != "00530" || st.TargetName != "Kallio" {
		t.Errorf("Unexpected target %q/%q", st.TargetID, st.TargetName)
	}
	if st.PreviousCamera == nil || *st.PreviousCamera != homePose {
		t.Errorf("Expected previous camera %v, got %v", homePose, st.PreviousCamera)
	}
	if st.LoadingProgress == nil || *st.LoadingProgress != (Progress{Current: 2, Total: 2}) {
		t.Errorf("Unexpected progress %v", st.LoadingProgress)
	}
	if loaded == nil || len(loaded.Features) != 1 {
		t.Error("Expected region hook to receive the dataset")
	}
	if h.renderer.CameraPose().Position != kallio.Destination {
		t.Errorf("Expected camera at %v, got %v", kallio.Destination, h.renderer.CameraPose())
	}

	states := h.store.all()
	first := states[0]
	if first.Stage != StageLoading || first.CanCancel || first.RetryCount != 0 || first.Error != nil {
		t.Errorf("Unexpected first state %+v", first)
	}
	var animating []State
	for _, s := range states {
		if s.Stage == StageLoading && len(animating) > 0 {
			t.Error("Expected no return to loading after the flight started")
		}
		if s.Stage == StageAnimating {
			animating = append(animating, s)
		}
	}
	if len(animating) < 2 {
		t.Fatalf("Expected animating states during and after the flight, got %d", len(animating))
	}
	if !animating[0].CanCancel {
		t.Error("Expected the flight to be cancellable")
	}
	if animating[len(animating)-1].CanCancel {
		t.Error("Expected arrival to end cancellability")
	}
}

func TestRetryTwiceThenSucceed(t *testing.T) {
	var attempts int32
	loader := regionFunc(func(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			return nil, errors.New("Network timeout")
		}
		return oneBuilding(), nil
	})
	h := newHarness(t, defaultOptions(), loader)

	if err := h.coord.HandleClick(context.Background(), kallio); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(h.delays) != 2 || h.delays[0] != time.Second || h.delays[1] != 2*time.Second {
		t.Errorf("Expected backoff 1s, 2s; got %v", h.delays)
	}

	var counts []int
	for _, s := range h.store.all() {
		if len(counts) == 0 || counts[len(counts)-1] != s.RetryCount {
			counts = append(counts, s.RetryCount)
		}
	}
	if len(counts) != 3 || counts[0] != 0 || counts[1] != 1 || counts[2] != 2 {
		t.Errorf("Expected retry count 0, 1, 2; got %v", counts)
	}

	if st := h.coord.State(); st.Stage != StageComplete || st.Error != nil {
		t.Errorf("Unexpected final state %+v", st)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	var attempts int32
	loader := regionFunc(func(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("Network timeout")
	})
	h := newHarness(t, defaultOptions(), loader)

	if err := h.coord.HandleClick(context.Background(), kallio); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", attempts)
	}
	if len(h.delays) != 3 || h.delays[2] != 4*time.Second {
		t.Errorf("Expected backoff 1s, 2s, 4s; got %v", h.delays)
	}

	st := h.coord.State()
	if st.Stage != StageError || st.Error == nil {
		t.Fatalf("Expected error stage, got %+v", st)
	}
	if st.Error.Message != DataErrorMessage || st.Error.Details != "Network timeout" || !st.Error.CanRetry {
		t.Errorf("Unexpected error info %+v", st.Error)
	}
	if st.RetryCount != 3 {
		t.Errorf("Expected retry count 3, got %d", st.RetryCount)
	}
}

func TestNonRetriableFailsOnce(t *testing.T) {
	var attempts int32
	loader := regionFunc(func(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, internal.NewError(internal.ErrorCodeClient, "HTTP 404: Not Found", nil)
	})
	h := newHarness(t, defaultOptions(), loader)

	if err := h.coord.HandleClick(context.Background(), kallio); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if attempts != 1 || len(h.delays) != 0 {
		t.Errorf("Expected 1 attempt and no backoff, got %d attempts and %v", attempts, h.delays)
	}
	for _, s := range h.store.all() {
		if s.RetryCount != 0 {
			t.Fatalf("Expected retry count to stay 0, saw %d", s.RetryCount)
		}
	}

	st := h.coord.State()
	if st.Stage != StageError || st.Error == nil || st.Error.CanRetry {
		t.Errorf("Expected non-retriable error state, got %+v", st)
	}
}

func TestCameraFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, defaultOptions(), regionFunc(succeed))
	h.renderer.FailCameraWith(errors.New("webgl context lost"))

	if err := h.coord.HandleClick(context.Background(), kallio); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if st := h.coord.State(); st.Stage != StageComplete || st.Error != nil {
		t.Errorf("Expected complete without error, got %+v", st)
	}
}

func TestCancelDuringAnimationRestoresCamera(t *testing.T) {
	opts := defaultOptions()
	opts.FlightDuration = time.Minute

	dataCancelled := make(chan struct{})
	loader := regionFunc(func(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error) {
		<-ctx.Done()
		close(dataCancelled)
		return nil, ctx.Err()
	})
	h := newHarness(t, opts, loader)

	if h.coord.Cancel() {
		t.Error("Expected nothing to cancel before a click")
	}

	done := make(chan error, 1)
	go func() { done <- h.coord.HandleClick(context.Background(), kallio) }()

	waitForStage(t, h.coord, StageAnimating)
	for h.renderer.ViewUpdates() < 3 {
		time.Sleep(time.Millisecond)
	}
	if h.renderer.CameraPose() == homePose {
		t.Fatal("Expected the camera to have moved")
	}

	if !h.coord.Cancel() {
		t.Fatal("Expected cancel to be accepted")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the interaction to settle")
	}

	select {
	case <-dataCancelled:
	default:
		t.Error("Expected the data task to be cancelled")
	}

	if got := h.renderer.CameraPose(); got != homePose {
		t.Errorf("Expected camera restored to %v, got %v", homePose, got)
	}

	st := h.coord.State()
	if st.Stage != StageIdle || st.Error != nil || st.TargetID != "" {
		t.Errorf("Expected clean idle state, got %+v", st)
	}

	states := h.store.all()
	for _, s := range states {
		if s.Stage == StageComplete || s.Stage == StageError {
			t.Errorf("Expected cancellation to skip %s", s.Stage)
		}
	}
	if last := states[len(states)-1]; last.Stage != StageIdle {
		t.Errorf("Expected idle as the last published state, got %s", last.Stage)
	}
}

func TestClickWhileBusy(t *testing.T) {
	release := make(chan struct{})
	loader := regionFunc(func(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error) {
		<-release
		return oneBuilding(), nil
	})
	h := newHarness(t, defaultOptions(), loader)

	done := make(chan error, 1)
	go func() { done <- h.coord.HandleClick(context.Background(), kallio) }()
	waitForStage(t, h.coord, StageAnimating)

	if err := h.coord.HandleClick(context.Background(), kallio); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if h.coord.Reset() {
		t.Error("Expected reset to be refused while busy")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestAutoResetAfterSuccess(t *testing.T) {
	opts := defaultOptions()
	opts.GracePeriod = 20 * time.Millisecond
	h := newHarness(t, opts, regionFunc(succeed))

	if err := h.coord.HandleClick(context.Background(), kallio); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if h.coord.State().Stage != StageComplete {
		t.Fatal("Expected complete stage")
	}

	waitForStage(t, h.coord, StageIdle)
	if st := h.coord.State(); st.TargetID != "" || st.Error != nil {
		t.Errorf("Expected clean idle state, got %+v", st)
	}
}

func TestErrorStateDoesNotAutoReset(t *testing.T) {
	opts := defaultOptions()
	opts.GracePeriod = 5 * time.Millisecond
	loader := regionFunc(func(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error) {
		return nil, errors.New("HTTP 400: bad bbox")
	})
	h := newHarness(t, opts, loader)

	if err := h.coord.HandleClick(context.Background(), kallio); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if h.coord.State().Stage != StageError {
		t.Errorf("Expected error stage to persist, got %s", h.coord.State().Stage)
	}

	if !h.coord.Reset() {
		t.Fatal("Expected reset to dismiss the error")
	}
	if h.coord.State().Stage != StageIdle {
		t.Errorf("Expected idle after reset, got %s", h.coord.State().Stage)
	}
}

func TestRetryAfterError(t *testing.T) {
	var attempts int32
	loader := regionFunc(func(ctx context.Context, id string, b geo.Bounds, progress region.ProgressFunc) (*geojson.FeatureCollection, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return nil, internal.NewError(internal.ErrorCodeValidation, "invalid region", nil)
		}
		return oneBuilding(), nil
	})
	h := newHarness(t, defaultOptions(), loader)

	if err := h.coord.Retry(context.Background()); !errors.Is(err, ErrNothingToRetry) {
		t.Errorf("Expected ErrNothingToRetry, got %v", err)
	}

	if err := h.coord.HandleClick(context.Background(), kallio); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if h.coord.State().Stage != StageError {
		t.Fatalf("Expected error stage, got %s", h.coord.State().Stage)
	}

	if err := h.coord.Retry(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if st := h.coord.State(); st.Stage != StageComplete || st.TargetID != kallio.ID {
		t.Errorf("Expected complete after retry, got %+v", st)
	}
}

func TestHandlePick(t *testing.T) {
	h := newHarness(t, defaultOptions(), regionFunc(succeed))
	dir := MapDirectory{kallio.ID: kallio}

	if err := h.coord.HandlePick(context.Background(), &scene.Pick{}, dir); err != nil {
		t.Errorf("Expected empty pick to be ignored, got %v", err)
	}
	if h.coord.State().Stage != StageIdle {
		t.Error("Expected empty pick to leave the coordinator idle")
	}

	err := h.coord.HandlePick(context.Background(), &scene.Pick{ID: scene.StringPtr("99999")}, dir)
	if internal.CodeOf(err) != internal.ErrorCodeNotFound {
		t.Errorf("Expected not found error, got %v", err)
	}

	pick := &scene.Pick{Primitive: &scene.PrimitiveRef{ID: scene.StringPtr(kallio.ID)}}
	if err := h.coord.HandlePick(context.Background(), pick, dir); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if h.coord.State().TargetID != kallio.ID {
		t.Errorf("Expected target %s, got %s", kallio.ID, h.coord.State().TargetID)
	}
}

func TestHandleClickValidatesTarget(t *testing.T) {
	h := newHarness(t, defaultOptions(), regionFunc(succeed))

	if err := h.coord.HandleClick(context.Background(), Target{}); internal.CodeOf(err) != internal.ErrorCodeValidation {
		t.Errorf("Expected validation error, got %v", err)
	}
	if len(h.store.all()) != 0 {
		t.Error("Expected no state published for a refused click")
	}
}
