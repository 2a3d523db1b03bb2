package mission

import "math"

type CameraAction int

const (
	CameraActionNone CameraAction = iota
	CameraActionTakePhoto
	CameraActionStartPhotoInterval
	CameraActionStopPhotoInterval
	CameraActionStartVideo
	CameraActionStopVideo
)

// Item is one user-facing mission step. Optional float fields use NaN as
// "unset"; anything finite is emitted to the wire.
type Item struct {
	LatitudeDeg          float64
	LongitudeDeg         float64
	RelativeAltitudeM    float32
	FlyThrough           bool
	SpeedMS              float32
	GimbalPitchDeg       float32
	GimbalYawDeg         float32
	LoiterTimeS          float32
	CameraAction         CameraAction
	CameraPhotoIntervalS float64
}

// NewItem returns an item with everything unset. A waypoint position also
// needs the relative altitude before it translates to the wire.
func NewItem() *Item {
	return &Item{
		LatitudeDeg:          math.NaN(),
		LongitudeDeg:         math.NaN(),
		RelativeAltitudeM:    float32(math.NaN()),
		FlyThrough:           true,
		SpeedMS:              float32(math.NaN()),
		GimbalPitchDeg:       float32(math.NaN()),
		GimbalYawDeg:         float32(math.NaN()),
		LoiterTimeS:          float32(math.NaN()),
		CameraAction:         CameraActionNone,
		CameraPhotoIntervalS: 1.0,
	}
}

func (i *Item) HasPosition() bool {
	return !math.IsNaN(i.LatitudeDeg) && !math.IsNaN(i.LongitudeDeg) &&
		!math.IsNaN(float64(i.RelativeAltitudeM))
}

func (i *Item) hasGimbal() bool {
	return isFinite32(i.GimbalPitchDeg) || isFinite32(i.GimbalYawDeg)
}

func isFinite32(f float32) bool {
	f64 := float64(f)
	return !math.IsNaN(f64) && !math.IsInf(f64, 0)
}
