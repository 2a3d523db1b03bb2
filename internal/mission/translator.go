package mission

import (
	"log"
	"math"

	"github.com/tiiuae/mission_link/internal/mavlink"
)

// The translator flattens each user item into zero or more wire items and
// keeps the index map, a vector from wire seq to user item index. Several
// consecutive wire items may map back to the same user item.

func nan32() float32 { return float32(math.NaN()) }

// assembleWireItems builds the MISSION_ITEM_INT sequence for an upload.
// The returned index map has one entry per wire item.
func assembleWireItems(items []*Item, targetSystem, targetComponent uint8) ([]mavlink.MissionItemInt, []int) {
	wire := make([]mavlink.MissionItemInt, 0, len(items))
	indexMap := make([]int, 0, len(items))

	// Loiter reuses the last waypoint position, so an invalid x/y must
	// never leak into a loiter item.
	lastPositionValid := false
	var lastFrame mavlink.Frame
	var lastX, lastY int32
	var lastZ float32

	currentFlag := func() uint8 {
		if len(wire) == 0 {
			return 1
		}
		return 0
	}
	push := func(m mavlink.MissionItemInt, userIndex int) {
		wire = append(wire, m)
		indexMap = append(indexMap, userIndex)
	}

	for i, item := range items {
		if item.HasPosition() {
			param1 := float32(0) // fly through
			if !item.FlyThrough {
				param1 = 0.5 // hold at the waypoint
			}
			x := int32(math.Round(item.LatitudeDeg * 1e7))
			y := int32(math.Round(item.LongitudeDeg * 1e7))
			push(mavlink.NewMissionItemInt(targetSystem, targetComponent,
				uint16(len(wire)), mavlink.FrameGlobalRelativeAltInt, mavlink.CmdNavWaypoint,
				currentFlag(), 1,
				param1, 0, 0, nan32(),
				x, y, item.RelativeAltitudeM), i)

			lastPositionValid = true
			lastFrame = mavlink.FrameGlobalRelativeAltInt
			lastX, lastY, lastZ = x, y, item.RelativeAltitudeM
		}

		if isFinite32(item.SpeedMS) {
			push(mavlink.NewMissionItemInt(targetSystem, targetComponent,
				uint16(len(wire)), mavlink.FrameMission, mavlink.CmdDoChangeSpeed,
				currentFlag(), 1,
				1.0, // ground speed
				item.SpeedMS,
				-1.0, // no throttle change
				0.0,  // absolute
				0, 0, nan32()), i)
		}

		if item.hasGimbal() {
			push(mavlink.NewMissionItemInt(targetSystem, targetComponent,
				uint16(len(wire)), mavlink.FrameMission, mavlink.CmdDoMountControl,
				currentFlag(), 1,
				item.GimbalPitchDeg,
				0.0, // roll
				item.GimbalYawDeg,
				nan32(),
				0, 0, mavlink.MountModeMavlinkTargeting), i)
		}

		if isFinite32(item.LoiterTimeS) {
			if !lastPositionValid {
				log.Printf("Dropping loiter time without a previous position")
			} else {
				push(mavlink.NewMissionItemInt(targetSystem, targetComponent,
					uint16(len(wire)), lastFrame, mavlink.CmdNavLoiterTime,
					currentFlag(), 1,
					item.LoiterTimeS,
					nan32(),
					0.0, // loiter radius
					0.0, // loiter at center
					lastX, lastY, lastZ), i)
			}
		}

		if item.CameraAction != CameraActionNone {
			command, param1, param2, param3 := cameraWireParams(item)
			push(mavlink.NewMissionItemInt(targetSystem, targetComponent,
				uint16(len(wire)), mavlink.FrameMission, command,
				currentFlag(), 1,
				param1, param2, param3, nan32(),
				0, 0, nan32()), i)
		}
	}

	return wire, indexMap
}

func cameraWireParams(item *Item) (command mavlink.Command, param1, param2, param3 float32) {
	param1, param2, param3 = nan32(), nan32(), nan32()
	switch item.CameraAction {
	case CameraActionTakePhoto:
		command = mavlink.CmdImageStartCapture
		param1 = 0 // all camera ids
		param2 = 0 // no interval
		param3 = 1 // single picture
	case CameraActionStartPhotoInterval:
		command = mavlink.CmdImageStartCapture
		param1 = 0
		param2 = float32(item.CameraPhotoIntervalS)
		param3 = 0 // unlimited photos
	case CameraActionStopPhotoInterval:
		command = mavlink.CmdImageStopCapture
		param1 = 0
	case CameraActionStartVideo:
		command = mavlink.CmdVideoStartCapture
		param1 = 0
	case CameraActionStopVideo:
		command = mavlink.CmdVideoStopCapture
		param1 = 0
	}
	return
}

// assembleMissionItems reconstructs user items from a downloaded wire
// sequence. It also rebuilds the index map so progress and set-current keep
// working after a download.
func assembleMissionItems(wire []mavlink.MissionItemInt) ([]*Item, []int, Result) {
	if len(wire) == 0 {
		log.Printf("No downloaded mission items")
		return nil, nil, ResultNoMissionAvailable
	}

	if wire[0].Command != mavlink.CmdNavWaypoint {
		log.Printf("First mission item is not a waypoint")
		return nil, nil, ResultUnsupported
	}

	items := make([]*Item, 0, len(wire))
	indexMap := make([]int, 0, len(wire))
	current := NewItem()
	havePosition := false

	for _, w := range wire {
		switch w.Command {
		case mavlink.CmdNavWaypoint:
			if w.Frame != mavlink.FrameGlobalRelativeAltInt {
				log.Printf("Waypoint frame %d not supported", w.Frame)
				return nil, nil, ResultUnsupported
			}
			if havePosition {
				// A new position starts the next user item.
				items = append(items, current)
				current = NewItem()
				havePosition = false
			}
			current.LatitudeDeg = float64(w.X) * 1e-7
			current.LongitudeDeg = float64(w.Y) * 1e-7
			current.RelativeAltitudeM = w.Z
			current.FlyThrough = !(w.Param1 > 0)
			havePosition = true

		case mavlink.CmdDoMountControl:
			if int(w.Z) != int(mavlink.MountModeMavlinkTargeting) {
				log.Printf("Gimbal mount mode %v not supported", w.Z)
				return nil, nil, ResultUnsupported
			}
			current.GimbalPitchDeg = w.Param1
			current.GimbalYawDeg = w.Param3

		case mavlink.CmdImageStartCapture:
			if w.Param2 > 0 && int(w.Param3) == 0 {
				current.CameraAction = CameraActionStartPhotoInterval
				current.CameraPhotoIntervalS = float64(w.Param2)
			} else if int(w.Param2) == 0 && int(w.Param3) == 1 {
				current.CameraAction = CameraActionTakePhoto
			} else {
				log.Printf("IMAGE_START_CAPTURE params not supported")
				return nil, nil, ResultUnsupported
			}

		case mavlink.CmdImageStopCapture:
			current.CameraAction = CameraActionStopPhotoInterval

		case mavlink.CmdVideoStartCapture:
			current.CameraAction = CameraActionStartVideo

		case mavlink.CmdVideoStopCapture:
			current.CameraAction = CameraActionStopVideo

		case mavlink.CmdDoChangeSpeed:
			if int(w.Param1) == 1 && w.Param3 < 0 && int(w.Param4) == 0 {
				current.SpeedMS = w.Param2
			} else {
				log.Printf("DO_CHANGE_SPEED params not supported")
				return nil, nil, ResultUnsupported
			}

		case mavlink.CmdNavLoiterTime:
			current.LoiterTimeS = w.Param1

		default:
			log.Printf("Mission item command %d not supported", w.Command)
			return nil, nil, ResultUnsupported
		}

		indexMap = append(indexMap, len(items))
	}

	// The last accumulated item is always part of the mission.
	items = append(items, current)

	return items, indexMap, ResultSuccess
}
