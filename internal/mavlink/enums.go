package mavlink

// Message ids of the mission microservice (mission_type = MISSION only).
const (
	MsgIDMissionRequest     uint32 = 40
	MsgIDMissionSetCurrent  uint32 = 41
	MsgIDMissionCurrent     uint32 = 42
	MsgIDMissionRequestList uint32 = 43
	MsgIDMissionCount       uint32 = 44
	MsgIDMissionItemReached uint32 = 46
	MsgIDMissionAck         uint32 = 47
	MsgIDMissionRequestInt  uint32 = 51
	MsgIDMissionItemInt     uint32 = 73
)

type Frame uint8

const (
	FrameGlobal               Frame = 0
	FrameMission              Frame = 2
	FrameGlobalRelativeAltInt Frame = 6
)

type Command uint16

const (
	CmdNavWaypoint       Command = 16
	CmdNavLoiterTime     Command = 19
	CmdNavLand           Command = 21
	CmdNavTakeoff        Command = 22
	CmdDoChangeSpeed     Command = 178
	CmdDoMountControl    Command = 205
	CmdImageStartCapture Command = 2000
	CmdImageStopCapture  Command = 2001
	CmdVideoStartCapture Command = 2500
	CmdVideoStopCapture  Command = 2501
)

// MAV_MISSION_RESULT, carried in MISSION_ACK.
type MissionResult uint8

const (
	MissionAccepted    MissionResult = 0
	MissionError       MissionResult = 1
	MissionUnsupported MissionResult = 3
	MissionNoSpace     MissionResult = 4
)

// MAV_MISSION_TYPE. Everything here is a flight mission.
const MissionTypeMission uint8 = 0

// MAV_MOUNT_MODE value for gimbal commands driven over MAVLink.
const MountModeMavlinkTargeting float32 = 2

type FlightMode int

const (
	FlightModeMission FlightMode = iota
	FlightModeHold
)
