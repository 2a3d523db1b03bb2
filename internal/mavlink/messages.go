package mavlink

// Message is one decoded mission-protocol message. The concrete types below
// mirror the wire payloads field for field.
type Message interface {
	MsgID() uint32
}

type MissionCount struct {
	TargetSystem    uint8
	TargetComponent uint8
	Count           uint16
	MissionType     uint8
}

type MissionRequest struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	MissionType     uint8
}

type MissionRequestInt struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	MissionType     uint8
}

type MissionRequestList struct {
	TargetSystem    uint8
	TargetComponent uint8
	MissionType     uint8
}

type MissionItemInt struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
	Frame           Frame
	Command         Command
	Current         uint8
	Autocontinue    uint8
	Param1          float32
	Param2          float32
	Param3          float32
	Param4          float32
	X               int32
	Y               int32
	Z               float32
	MissionType     uint8
}

type MissionAck struct {
	TargetSystem    uint8
	TargetComponent uint8
	Type            MissionResult
	MissionType     uint8
}

type MissionSetCurrent struct {
	TargetSystem    uint8
	TargetComponent uint8
	Seq             uint16
}

type MissionCurrent struct {
	Seq uint16
}

type MissionItemReached struct {
	Seq uint16
}

func (MissionCount) MsgID() uint32       { return MsgIDMissionCount }
func (MissionRequest) MsgID() uint32     { return MsgIDMissionRequest }
func (MissionRequestInt) MsgID() uint32  { return MsgIDMissionRequestInt }
func (MissionRequestList) MsgID() uint32 { return MsgIDMissionRequestList }
func (MissionItemInt) MsgID() uint32     { return MsgIDMissionItemInt }
func (MissionAck) MsgID() uint32         { return MsgIDMissionAck }
func (MissionSetCurrent) MsgID() uint32  { return MsgIDMissionSetCurrent }
func (MissionCurrent) MsgID() uint32     { return MsgIDMissionCurrent }
func (MissionItemReached) MsgID() uint32 { return MsgIDMissionItemReached }

// Typed constructors for the messages the engine sends. Target ids are the
// autopilot's; source ids travel in the frame header.

func NewMissionCount(targetSystem, targetComponent uint8, count uint16) MissionCount {
	return MissionCount{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Count:           count,
		MissionType:     MissionTypeMission,
	}
}

func NewMissionRequestInt(targetSystem, targetComponent uint8, seq uint16) MissionRequestInt {
	return MissionRequestInt{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Seq:             seq,
		MissionType:     MissionTypeMission,
	}
}

func NewMissionRequestList(targetSystem, targetComponent uint8) MissionRequestList {
	return MissionRequestList{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		MissionType:     MissionTypeMission,
	}
}

func NewMissionAck(targetSystem, targetComponent uint8, result MissionResult) MissionAck {
	return MissionAck{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Type:            result,
		MissionType:     MissionTypeMission,
	}
}

func NewMissionSetCurrent(targetSystem, targetComponent uint8, seq uint16) MissionSetCurrent {
	return MissionSetCurrent{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Seq:             seq,
	}
}

func NewMissionItemInt(targetSystem, targetComponent uint8, seq uint16, frame Frame, command Command,
	current, autocontinue uint8, param1, param2, param3, param4 float32, x, y int32, z float32) MissionItemInt {
	return MissionItemInt{
		TargetSystem:    targetSystem,
		TargetComponent: targetComponent,
		Seq:             seq,
		Frame:           frame,
		Command:         command,
		Current:         current,
		Autocontinue:    autocontinue,
		Param1:          param1,
		Param2:          param2,
		Param3:          param3,
		Param4:          param4,
		X:               x,
		Y:               y,
		Z:               z,
		MissionType:     MissionTypeMission,
	}
}

// Vehicle-side messages, built by the autopilot peer. Constructors exist so
// test doubles and simulators speak the same types.

func NewMissionCurrent(seq uint16) MissionCurrent { return MissionCurrent{Seq: seq} }

func NewMissionItemReached(seq uint16) MissionItemReached { return MissionItemReached{Seq: seq} }
