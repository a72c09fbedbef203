// internal/scene/memory.go - Headless in-memory renderer
package scene

import (
	"sync"

	"github.com/paulmach/orb/geojson"
)

// MemoryRenderer is a headless Renderer that keeps entities and the camera in memory
type MemoryRenderer struct {
	mu       sync.Mutex
	next     EntityHandle
	entities map[EntityHandle]*geojson.Feature
	camera   CameraPose
	views    int
	failErr  error
}

// NewMemoryRenderer creates a renderer with the camera at pose
func NewMemoryRenderer(pose CameraPose) *MemoryRenderer {
	return &MemoryRenderer{
		entities: make(map[EntityHandle]*geojson.Feature),
		camera:   pose,
	}
}

// AddEntities stores one entity per feature
func (r *MemoryRenderer) AddEntities(fc *geojson.FeatureCollection) ([]EntityHandle, error) {
	if fc == nil {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]EntityHandle, 0, len(fc.Features))
	for _, f := range fc.Features {
		r.next++
		r.entities[r.next] = f
		handles = append(handles, r.next)
	}
	return handles, nil
}

// RemoveEntities deletes entities by handle
func (r *MemoryRenderer) RemoveEntities(handles []EntityHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range handles {
		delete(r.entities, h)
	}
}

// SetCameraView moves the camera, or returns the injected failure
func (r *MemoryRenderer) SetCameraView(pose CameraPose) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return r.failErr
	}
	r.camera = pose
	r.views++
	return nil
}

// CameraPose returns the current camera pose
func (r *MemoryRenderer) CameraPose() CameraPose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.camera
}

// EntityCount returns the number of entities on the scene
func (r *MemoryRenderer) EntityCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities)
}

// ViewUpdates returns how many camera updates have been applied
func (r *MemoryRenderer) ViewUpdates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views
}

// FailCameraWith makes every following SetCameraView return err; nil clears it
func (r *MemoryRenderer) FailCameraWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}
