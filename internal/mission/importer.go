package mission

import (
	"encoding/json"
	"log"
	"os"

	"github.com/tiiuae/mission_link/internal/mavlink"
)

// QGroundControl plan documents carry the mission as flat command records;
// only the command id and its seven params matter here.

type planDocument struct {
	Mission planMission `json:"mission"`
}

type planMission struct {
	Items []planItem `json:"items"`
}

type planItem struct {
	Command int       `json:"command"`
	Params  []float64 `json:"params"`
}

// ImportQGCPlan reads a plan file and converts it to mission items. On any
// result other than success the returned items are what could be assembled
// up to that point and should not be flown.
func ImportQGCPlan(path string) ([]*Item, Result) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Could not open plan file %s: %v", path, err)
		return nil, ResultFailedToOpenPlan
	}

	var doc planDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("Could not parse plan file %s: %v", path, err)
		return nil, ResultFailedToParsePlan
	}

	return importMissionItems(doc.Mission.Items)
}

func importMissionItems(planItems []planItem) ([]*Item, Result) {
	items := make([]*Item, 0, len(planItems))
	current := NewItem()
	result := ResultSuccess

	for _, p := range planItems {
		if len(p.Params) < 7 {
			log.Printf("Plan item command %d has %d params, skipped", p.Command, len(p.Params))
			continue
		}
		current, items, result = buildMissionItem(mavlink.Command(p.Command), p.Params, current, items)
		if result != ResultSuccess {
			break
		}
	}

	// The last accumulated item may not have had a position yet and still
	// belongs to the mission.
	items = append(items, current)
	return items, result
}

func buildMissionItem(command mavlink.Command, params []float64, current *Item, items []*Item) (*Item, []*Item, Result) {
	switch command {
	case mavlink.CmdNavWaypoint, mavlink.CmdNavTakeoff, mavlink.CmdNavLand:
		if current.HasPosition() {
			items = append(items, current)
			current = NewItem()
		}
		if command == mavlink.CmdNavWaypoint {
			current.FlyThrough = !(params[0] > 0)
		}
		current.LatitudeDeg = params[4]
		current.LongitudeDeg = params[5]
		current.RelativeAltitudeM = float32(params[6])

	case mavlink.CmdDoMountControl:
		current.GimbalPitchDeg = float32(params[0])
		current.GimbalYawDeg = float32(params[2])

	case mavlink.CmdNavLoiterTime:
		current.LoiterTimeS = float32(params[0])

	case mavlink.CmdImageStartCapture:
		interval, count := params[1], int(params[2])
		if interval > 0 && count == 0 {
			current.CameraAction = CameraActionStartPhotoInterval
			current.CameraPhotoIntervalS = interval
		} else if int(interval) == 0 && count == 1 {
			current.CameraAction = CameraActionTakePhoto
		} else {
			log.Printf("Plan item IMAGE_START_CAPTURE params not supported")
			return current, items, ResultUnsupported
		}

	case mavlink.CmdImageStopCapture:
		current.CameraAction = CameraActionStopPhotoInterval

	case mavlink.CmdVideoStartCapture:
		current.CameraAction = CameraActionStartVideo

	case mavlink.CmdVideoStopCapture:
		current.CameraAction = CameraActionStopVideo

	case mavlink.CmdDoChangeSpeed:
		speedType, throttle, relative := int(params[0]), params[2], params[3]
		if speedType == 1 && throttle < 0 && relative == 0 {
			current.SpeedMS = float32(params[1])
		} else {
			log.Printf("Plan item DO_CHANGE_SPEED params not supported")
			return current, items, ResultUnsupported
		}

	default:
		log.Printf("Plan item command %d not supported, skipped", command)
	}

	return current, items, ResultSuccess
}
