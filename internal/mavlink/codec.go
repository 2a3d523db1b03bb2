package mavlink

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// MAVLink v2 framing for the mission microservice. Payloads are packed in
// wire field order (sorted by size, extensions last) with trailing zeros
// truncated, as the protocol requires.

const (
	magicV2      = 0xFD
	headerLenV2  = 10
	maxPayload   = 255
	minFrameSize = headerLenV2 + 2
)

var ErrShortFrame = errors.New("mavlink: short frame")
var ErrBadMagic = errors.New("mavlink: bad magic byte")
var ErrBadChecksum = errors.New("mavlink: checksum mismatch")
var ErrUnknownMessage = errors.New("mavlink: unknown message id")

// crcExtra seeds per message id, from the mission message definitions.
var crcExtra = map[uint32]uint8{
	MsgIDMissionRequest:     230,
	MsgIDMissionSetCurrent:  28,
	MsgIDMissionCurrent:     28,
	MsgIDMissionRequestList: 132,
	MsgIDMissionCount:       221,
	MsgIDMissionItemReached: 11,
	MsgIDMissionAck:         153,
	MsgIDMissionRequestInt:  196,
	MsgIDMissionItemInt:     38,
}

// Packet is a frame ready for (or fresh off) the wire: the decoded message
// plus the header fields the engine cares about.
type Packet struct {
	SysID   uint8
	CompID  uint8
	Message Message
}

// Codec encodes and decodes v2 frames. The sequence counter is owned by the
// sending side; Decode is stateless.
type Codec struct {
	seq uint8
}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(sysID, compID uint8, msg Message) ([]byte, error) {
	payload := packPayload(msg)
	if payload == nil {
		return nil, errors.Wrapf(ErrUnknownMessage, "id %d", msg.MsgID())
	}

	// Trailing zero truncation, keeping at least one byte.
	n := len(payload)
	for n > 1 && payload[n-1] == 0 {
		n--
	}
	payload = payload[:n]

	id := msg.MsgID()
	buf := make([]byte, headerLenV2+len(payload)+2)
	buf[0] = magicV2
	buf[1] = uint8(len(payload))
	buf[2] = 0 // incompat flags
	buf[3] = 0 // compat flags
	buf[4] = c.seq
	buf[5] = sysID
	buf[6] = compID
	buf[7] = uint8(id)
	buf[8] = uint8(id >> 8)
	buf[9] = uint8(id >> 16)
	copy(buf[headerLenV2:], payload)

	crc := x25(buf[1:headerLenV2+len(payload)], crcExtra[id])
	binary.LittleEndian.PutUint16(buf[headerLenV2+len(payload):], crc)

	c.seq++
	return buf, nil
}

func (c *Codec) Decode(frame []byte) (Packet, error) {
	if len(frame) < minFrameSize {
		return Packet{}, ErrShortFrame
	}
	if frame[0] != magicV2 {
		return Packet{}, ErrBadMagic
	}
	payloadLen := int(frame[1])
	if len(frame) < headerLenV2+payloadLen+2 {
		return Packet{}, ErrShortFrame
	}

	id := uint32(frame[7]) | uint32(frame[8])<<8 | uint32(frame[9])<<16
	extra, known := crcExtra[id]
	if !known {
		return Packet{}, errors.Wrapf(ErrUnknownMessage, "id %d", id)
	}

	want := binary.LittleEndian.Uint16(frame[headerLenV2+payloadLen:])
	if x25(frame[1:headerLenV2+payloadLen], extra) != want {
		return Packet{}, ErrBadChecksum
	}

	msg, err := unpackPayload(id, frame[headerLenV2:headerLenV2+payloadLen])
	if err != nil {
		return Packet{}, err
	}
	return Packet{SysID: frame[5], CompID: frame[6], Message: msg}, nil
}

// x25 is the CRC-16/MCRF4XX used by MAVLink, seeded with the per-message
// crc_extra byte.
func x25(data []byte, extra uint8) uint16 {
	crc := uint16(0xFFFF)
	update := func(b uint8) {
		tmp := b ^ uint8(crc&0xFF)
		tmp ^= tmp << 4
		crc = (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
	}
	for _, b := range data {
		update(b)
	}
	update(extra)
	return crc
}

func packPayload(msg Message) []byte {
	switch m := msg.(type) {
	case MissionCount:
		b := make([]byte, 5)
		binary.LittleEndian.PutUint16(b[0:], m.Count)
		b[2] = m.TargetSystem
		b[3] = m.TargetComponent
		b[4] = m.MissionType
		return b
	case MissionRequest:
		b := make([]byte, 5)
		binary.LittleEndian.PutUint16(b[0:], m.Seq)
		b[2] = m.TargetSystem
		b[3] = m.TargetComponent
		b[4] = m.MissionType
		return b
	case MissionRequestInt:
		b := make([]byte, 5)
		binary.LittleEndian.PutUint16(b[0:], m.Seq)
		b[2] = m.TargetSystem
		b[3] = m.TargetComponent
		b[4] = m.MissionType
		return b
	case MissionRequestList:
		return []byte{m.TargetSystem, m.TargetComponent, m.MissionType}
	case MissionAck:
		return []byte{m.TargetSystem, m.TargetComponent, uint8(m.Type), m.MissionType}
	case MissionSetCurrent:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint16(b[0:], m.Seq)
		b[2] = m.TargetSystem
		b[3] = m.TargetComponent
		return b
	case MissionCurrent:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b[0:], m.Seq)
		return b
	case MissionItemReached:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b[0:], m.Seq)
		return b
	case MissionItemInt:
		b := make([]byte, 38)
		binary.LittleEndian.PutUint32(b[0:], math.Float32bits(m.Param1))
		binary.LittleEndian.PutUint32(b[4:], math.Float32bits(m.Param2))
		binary.LittleEndian.PutUint32(b[8:], math.Float32bits(m.Param3))
		binary.LittleEndian.PutUint32(b[12:], math.Float32bits(m.Param4))
		binary.LittleEndian.PutUint32(b[16:], uint32(m.X))
		binary.LittleEndian.PutUint32(b[20:], uint32(m.Y))
		binary.LittleEndian.PutUint32(b[24:], math.Float32bits(m.Z))
		binary.LittleEndian.PutUint16(b[28:], m.Seq)
		binary.LittleEndian.PutUint16(b[30:], uint16(m.Command))
		b[32] = m.TargetSystem
		b[33] = m.TargetComponent
		b[34] = uint8(m.Frame)
		b[35] = m.Current
		b[36] = m.Autocontinue
		b[37] = m.MissionType
		return b
	}
	return nil
}

func unpackPayload(id uint32, payload []byte) (Message, error) {
	// Zero-extend truncated payloads before field extraction.
	b := make([]byte, maxPayload)
	copy(b, payload)

	switch id {
	case MsgIDMissionCount:
		return MissionCount{
			Count:           binary.LittleEndian.Uint16(b[0:]),
			TargetSystem:    b[2],
			TargetComponent: b[3],
			MissionType:     b[4],
		}, nil
	case MsgIDMissionRequest:
		return MissionRequest{
			Seq:             binary.LittleEndian.Uint16(b[0:]),
			TargetSystem:    b[2],
			TargetComponent: b[3],
			MissionType:     b[4],
		}, nil
	case MsgIDMissionRequestInt:
		return MissionRequestInt{
			Seq:             binary.LittleEndian.Uint16(b[0:]),
			TargetSystem:    b[2],
			TargetComponent: b[3],
			MissionType:     b[4],
		}, nil
	case MsgIDMissionRequestList:
		return MissionRequestList{
			TargetSystem:    b[0],
			TargetComponent: b[1],
			MissionType:     b[2],
		}, nil
	case MsgIDMissionAck:
		return MissionAck{
			TargetSystem:    b[0],
			TargetComponent: b[1],
			Type:            MissionResult(b[2]),
			MissionType:     b[3],
		}, nil
	case MsgIDMissionSetCurrent:
		return MissionSetCurrent{
			Seq:             binary.LittleEndian.Uint16(b[0:]),
			TargetSystem:    b[2],
			TargetComponent: b[3],
		}, nil
	case MsgIDMissionCurrent:
		return MissionCurrent{Seq: binary.LittleEndian.Uint16(b[0:])}, nil
	case MsgIDMissionItemReached:
		return MissionItemReached{Seq: binary.LittleEndian.Uint16(b[0:])}, nil
	case MsgIDMissionItemInt:
		return MissionItemInt{
			Param1:          math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
			Param2:          math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
			Param3:          math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
			Param4:          math.Float32frombits(binary.LittleEndian.Uint32(b[12:])),
			X:               int32(binary.LittleEndian.Uint32(b[16:])),
			Y:               int32(binary.LittleEndian.Uint32(b[20:])),
			Z:               math.Float32frombits(binary.LittleEndian.Uint32(b[24:])),
			Seq:             binary.LittleEndian.Uint16(b[28:]),
			Command:         Command(binary.LittleEndian.Uint16(b[30:])),
			TargetSystem:    b[32],
			TargetComponent: b[33],
			Frame:           Frame(b[34]),
			Current:         b[35],
			Autocontinue:    b[36],
			MissionType:     b[37],
		}, nil
	}
	return nil, errors.Wrapf(ErrUnknownMessage, "id %d", id)
}
