// internal/scene/types.go - Scene renderer contract and camera types
package scene

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Position is a camera location in decimal degrees and metres above the ellipsoid
type Position struct {
	Lon    float64 `json:"lon"`
	Lat    float64 `json:"lat"`
	Height float64 `json:"height"`
}

// Orientation is a camera attitude in degrees
type Orientation struct {
	Heading float64 `json:"heading"`
	Pitch   float64 `json:"pitch"`
	Roll    float64 `json:"roll"`
}

// CameraPose is a full camera state. It is a plain value: copies never alias the live camera.
type CameraPose struct {
	Position    Position    `json:"position"`
	Orientation Orientation `json:"orientation"`
}

// String returns a compact representation of the pose
func (p CameraPose) String() string {
	return fmt.Sprintf("(%.6f, %.6f, %.1fm) h=%.1f p=%.1f r=%.1f",
		p.Position.Lon, p.Position.Lat, p.Position.Height,
		p.Orientation.Heading, p.Orientation.Pitch, p.Orientation.Roll)
}

// EntityHandle identifies an entity added to the scene
type EntityHandle uint64

// Renderer is the subset of the 3D scene the loaders and camera controller drive
type Renderer interface {
	// AddEntities adds one entity per feature and returns their handles
	AddEntities(fc *geojson.FeatureCollection) ([]EntityHandle, error)
	// RemoveEntities removes entities; unknown handles are ignored
	RemoveEntities(handles []EntityHandle)
	// SetCameraView moves the camera to pose immediately
	SetCameraView(pose CameraPose) error
	// CameraPose returns the current camera pose
	CameraPose() CameraPose
}
