// internal/click/state_test.go - Unit tests for the state store
package click

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/valpere/r4c-viewport/internal/scene"
)

func TestStateCloneIsDeep(t *testing.T) {
	pose := scene.CameraPose{Position: scene.Position{Lon: 1}}
	s := State{
		Stage:           StageError,
		Error:           &ErrorInfo{Message: "m"},
		LoadingProgress: &Progress{Current: 1, Total: 2},
		PreviousCamera:  &pose,
	}

	c := s.Clone()
	c.Error.Message = "changed"
	c.LoadingProgress.Current = 2
	c.PreviousCamera.Position.Lon = 2

	if s.Error.Message != "m" || s.LoadingProgress.Current != 1 || s.PreviousCamera.Position.Lon != 1 {
		t.Error("Expected clone not to alias the original")
	}
}

func TestIdleStateHasNullTarget(t *testing.T) {
	data, err := json.Marshal(IdleState())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "target_id") || strings.Contains(string(data), "error") {
		t.Errorf("Expected no target or error in %s", data)
	}
}

func TestStateStore(t *testing.T) {
	store := NewStateStore()
	if store.Snapshot().Stage != StageIdle {
		t.Fatal("Expected idle initial state")
	}

	ch, unsubscribe := store.Subscribe(4)
	store.Publish(State{Stage: StageLoading, TargetID: "00100"})

	got := <-ch
	if got.Stage != StageLoading || got.TargetID != "00100" {
		t.Errorf("Unexpected state %+v", got)
	}
	if store.Snapshot().TargetID != "00100" {
		t.Error("Expected snapshot to follow the last publish")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("Expected channel closed after unsubscribe")
	}
	store.Publish(IdleState())
}

func TestStateStoreDropsForSlowSubscribers(t *testing.T) {
	store := NewStateStore()
	ch, unsubscribe := store.Subscribe(1)
	defer unsubscribe()

	store.Publish(State{Stage: StageLoading})
	store.Publish(State{Stage: StageAnimating})

	if got := <-ch; got.Stage != StageLoading {
		t.Errorf("Expected the first state, got %s", got.Stage)
	}
	if store.Snapshot().Stage != StageAnimating {
		t.Error("Expected snapshot to hold the latest state")
	}
}
