package mission

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiiuae/mission_link/internal/mavlink"
	"github.com/tiiuae/mission_link/internal/timeout"
)

const (
	gcsSystemID    = 245
	gcsComponentID = 190
	vehicleID      = 1
	autopilotID    = 1
)

// fakeSystem records sent messages and hands timeout control to the test.
type fakeSystem struct {
	mu         sync.Mutex
	sent       []mavlink.Message
	handlers   map[uint32][]mavlink.HandlerFn
	sendOK     bool
	missionInt bool

	timeoutFn       func()
	timeoutDuration time.Duration
	refreshed       int

	flightModeErr  error
	flightModeMode mavlink.FlightMode
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		handlers:   make(map[uint32][]mavlink.HandlerFn),
		sendOK:     true,
		missionInt: true,
	}
}

func (f *fakeSystem) SendMessage(msg mavlink.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sendOK {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeSystem) RegisterHandler(msgID uint32, fn mavlink.HandlerFn, owner interface{}) {
	f.handlers[msgID] = append(f.handlers[msgID], fn)
}

func (f *fakeSystem) UnregisterAllHandlers(owner interface{}) {
	f.handlers = make(map[uint32][]mavlink.HandlerFn)
}

func (f *fakeSystem) RegisterTimeout(fn func(), d time.Duration) timeout.Cookie {
	f.timeoutFn = fn
	f.timeoutDuration = d
	return timeout.Cookie{}
}

func (f *fakeSystem) RefreshTimeout(cookie timeout.Cookie) { f.refreshed++ }

func (f *fakeSystem) UnregisterTimeout(cookie timeout.Cookie) {}

func (f *fakeSystem) SetFlightModeAsync(mode mavlink.FlightMode, fn func(err error)) {
	f.flightModeMode = mode
	fn(f.flightModeErr)
}

func (f *fakeSystem) SystemID() uint8          { return vehicleID }
func (f *fakeSystem) AutopilotID() uint8       { return autopilotID }
func (f *fakeSystem) GCSSystemID() uint8       { return gcsSystemID }
func (f *fakeSystem) GCSComponentID() uint8    { return gcsComponentID }
func (f *fakeSystem) SupportsMissionInt() bool { return f.missionInt }

func (f *fakeSystem) deliver(msg mavlink.Message) {
	for _, fn := range f.handlers[msg.MsgID()] {
		fn(msg)
	}
}

func (f *fakeSystem) sentMessages() []mavlink.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mavlink.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSystem) lastSent() mavlink.Message {
	msgs := f.sentMessages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// fireTimeout triggers the most recently armed timer.
func (f *fakeSystem) fireTimeout(t *testing.T) {
	require.NotNil(t, f.timeoutFn, "no timeout armed")
	f.timeoutFn()
}

func twoWaypoints() []*Item {
	return []*Item{
		waypoint(47.3977, 8.5456, 10, true),
		waypoint(47.3980, 8.5460, 10, true),
	}
}

func TestUploadTwoWaypoints(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	var result Result
	called := 0
	e.UploadMissionAsync(twoWaypoints(), func(r Result) { result = r; called++ })

	count, ok := sys.lastSent().(mavlink.MissionCount)
	require.True(t, ok)
	assert.Equal(t, uint16(2), count.Count)

	sys.deliver(mavlink.MissionRequestInt{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Seq: 0})
	item, ok := sys.lastSent().(mavlink.MissionItemInt)
	require.True(t, ok)
	assert.Equal(t, uint16(0), item.Seq)
	assert.Equal(t, mavlink.CmdNavWaypoint, item.Command)
	assert.Equal(t, int32(473977000), item.X)
	assert.Equal(t, int32(85456000), item.Y)
	assert.Equal(t, float32(10), item.Z)
	assert.Equal(t, uint8(1), item.Current)
	assert.Equal(t, float32(0), item.Param1)

	sys.deliver(mavlink.MissionRequestInt{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Seq: 1})
	item, ok = sys.lastSent().(mavlink.MissionItemInt)
	require.True(t, ok)
	assert.Equal(t, uint16(1), item.Seq)
	assert.Equal(t, uint8(0), item.Current)

	sys.deliver(mavlink.MissionAck{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Type: mavlink.MissionAccepted})
	assert.Equal(t, 1, called)
	assert.Equal(t, ResultSuccess, result)
	assert.Equal(t, 2, e.TotalMissionItems())
}

func TestUploadBusy(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	e.UploadMissionAsync(twoWaypoints(), func(Result) {})

	var second Result
	e.UploadMissionAsync(twoWaypoints(), func(r Result) { second = r })
	assert.Equal(t, ResultBusy, second)

	var download Result
	e.DownloadMissionAsync(func(r Result, _ []*Item) { download = r })
	assert.Equal(t, ResultBusy, download)
}

func TestUploadWithoutMissionIntSupport(t *testing.T) {
	sys := newFakeSystem()
	sys.missionInt = false
	e := NewEngine(sys, DefaultSettings())

	var result Result
	e.UploadMissionAsync(twoWaypoints(), func(r Result) { result = r })
	assert.Equal(t, ResultError, result)
	assert.Empty(t, sys.sentMessages())
}

func TestUploadSendFailure(t *testing.T) {
	sys := newFakeSystem()
	sys.sendOK = false
	e := NewEngine(sys, DefaultSettings())

	var result Result
	e.UploadMissionAsync(twoWaypoints(), func(r Result) { result = r })
	assert.Equal(t, ResultError, result)

	// The engine must be idle again.
	e.UploadMissionAsync(twoWaypoints(), func(r Result) { result = r })
	assert.Equal(t, ResultError, result)
}

func TestUploadLegacyRequestNacked(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	called := 0
	e.UploadMissionAsync(twoWaypoints(), func(Result) { called++ })

	sys.deliver(mavlink.MissionRequest{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Seq: 0})

	ack, ok := sys.lastSent().(mavlink.MissionAck)
	require.True(t, ok)
	assert.Equal(t, mavlink.MissionUnsupported, ack.Type)
	assert.Equal(t, 0, called)

	// Upload continues on the int variant.
	sys.deliver(mavlink.MissionRequestInt{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Seq: 0})
	_, ok = sys.lastSent().(mavlink.MissionItemInt)
	assert.True(t, ok)
}

func TestUploadIgnoresForeignAddressing(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	e.UploadMissionAsync(twoWaypoints(), func(Result) {})
	before := len(sys.sentMessages())

	// Both ids differ from ours: dropped.
	sys.deliver(mavlink.MissionRequestInt{TargetSystem: 99, TargetComponent: 99, Seq: 0})
	assert.Len(t, sys.sentMessages(), before)

	// One id matches: accepted, per the original filter.
	sys.deliver(mavlink.MissionRequestInt{TargetSystem: gcsSystemID, TargetComponent: 99, Seq: 0})
	assert.Len(t, sys.sentMessages(), before+1)
}

func TestUploadOutOfRangeRequestDropped(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	e.UploadMissionAsync(twoWaypoints(), func(Result) {})
	before := len(sys.sentMessages())

	sys.deliver(mavlink.MissionRequestInt{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Seq: 7})
	assert.Len(t, sys.sentMessages(), before)
}

func TestUploadAckNoSpace(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	var result Result
	e.UploadMissionAsync(twoWaypoints(), func(r Result) { result = r })
	sys.deliver(mavlink.MissionAck{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Type: mavlink.MissionNoSpace})
	assert.Equal(t, ResultTooManyMissionItems, result)
}

func TestUploadAckUnknownCode(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	var result Result
	e.UploadMissionAsync(twoWaypoints(), func(r Result) { result = r })
	sys.deliver(mavlink.MissionAck{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Type: mavlink.MissionResult(13)})
	assert.Equal(t, ResultError, result)
}

func TestUploadTimeoutSilentlyReturnsToIdle(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	called := 0
	e.UploadMissionAsync(twoWaypoints(), func(Result) { called++ })
	assert.Equal(t, DefaultSettings().ProcessTimeout, sys.timeoutDuration)

	sys.fireTimeout(t)

	// No result is reported; the engine is idle again.
	assert.Equal(t, 0, called)
	var second Result
	e.DownloadMissionAsync(func(r Result, _ []*Item) { second = r })
	assert.NotEqual(t, ResultBusy, second)
}

func downloadedWaypoint(seq uint16) mavlink.MissionItemInt {
	return mavlink.MissionItemInt{
		Seq:     seq,
		Command: mavlink.CmdNavWaypoint,
		Frame:   mavlink.FrameGlobalRelativeAltInt,
		X:       473977000,
		Y:       85456000,
		Z:       10,
	}
}

func TestDownloadSingleItem(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	var result Result
	var items []*Item
	e.DownloadMissionAsync(func(r Result, it []*Item) { result = r; items = it })

	_, ok := sys.lastSent().(mavlink.MissionRequestList)
	require.True(t, ok)
	assert.Equal(t, DefaultSettings().RetryTimeout, sys.timeoutDuration)

	sys.deliver(mavlink.MissionCount{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Count: 1})
	req, ok := sys.lastSent().(mavlink.MissionRequestInt)
	require.True(t, ok)
	assert.Equal(t, uint16(0), req.Seq)

	sys.deliver(downloadedWaypoint(0))

	ack, ok := sys.lastSent().(mavlink.MissionAck)
	require.True(t, ok)
	assert.Equal(t, mavlink.MissionAccepted, ack.Type)

	require.Equal(t, ResultSuccess, result)
	require.Len(t, items, 1)
	assert.InDelta(t, 47.3977, items[0].LatitudeDeg, 1e-7)
	assert.InDelta(t, 8.5456, items[0].LongitudeDeg, 1e-7)
	assert.Equal(t, float32(10), items[0].RelativeAltitudeM)
	assert.True(t, items[0].FlyThrough)
}

func TestDownloadOutOfOrderItemRerequested(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	e.DownloadMissionAsync(func(Result, []*Item) {})
	sys.deliver(mavlink.MissionCount{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Count: 2})

	// Item 1 arrives while 0 is expected: request 0 again.
	sys.deliver(downloadedWaypoint(1))
	req, ok := sys.lastSent().(mavlink.MissionRequestInt)
	require.True(t, ok)
	assert.Equal(t, uint16(0), req.Seq)
}

func TestDownloadRetriesThenTimeout(t *testing.T) {
	sys := newFakeSystem()
	settings := DefaultSettings()
	settings.MaxRetries = 2
	e := NewEngine(sys, settings)

	var result Result
	called := 0
	e.DownloadMissionAsync(func(r Result, _ []*Item) { result = r; called++ })
	sys.deliver(mavlink.MissionCount{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Count: 1})

	requests := func() int {
		n := 0
		for _, m := range sys.sentMessages() {
			if _, ok := m.(mavlink.MissionRequestInt); ok {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, requests())

	sys.fireTimeout(t)
	assert.Equal(t, 2, requests())
	sys.fireTimeout(t)
	assert.Equal(t, 3, requests())

	// Retries exhausted.
	sys.fireTimeout(t)
	assert.Equal(t, 3, requests())
	assert.Equal(t, 1, called)
	assert.Equal(t, ResultTimeout, result)
}

func TestDownloadZeroCount(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	var result Result
	var items []*Item
	e.DownloadMissionAsync(func(r Result, it []*Item) { result = r; items = it })
	sys.deliver(mavlink.MissionCount{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Count: 0})

	assert.Equal(t, ResultNoMissionAvailable, result)
	assert.Nil(t, items)

	ack, ok := sys.lastSent().(mavlink.MissionAck)
	require.True(t, ok)
	assert.Equal(t, mavlink.MissionAccepted, ack.Type)
}

func TestStartAndPauseMission(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	var result Result
	e.StartMissionAsync(func(r Result) { result = r })
	assert.Equal(t, ResultSuccess, result)
	assert.Equal(t, mavlink.FlightModeMission, sys.flightModeMode)

	e.PauseMissionAsync(func(r Result) { result = r })
	assert.Equal(t, ResultSuccess, result)
	assert.Equal(t, mavlink.FlightModeHold, sys.flightModeMode)
}

func TestStartMissionFlightModeError(t *testing.T) {
	sys := newFakeSystem()
	sys.flightModeErr = assert.AnError
	e := NewEngine(sys, DefaultSettings())

	var result Result
	e.StartMissionAsync(func(r Result) { result = r })
	assert.Equal(t, ResultError, result)

	// Back to idle after the failure.
	e.PauseMissionAsync(func(r Result) { result = r })
	assert.Equal(t, ResultError, result)
}

func uploadAccepted(t *testing.T, sys *fakeSystem, e *Engine, items []*Item) {
	t.Helper()
	var result Result
	e.UploadMissionAsync(items, func(r Result) { result = r })
	sys.deliver(mavlink.MissionAck{TargetSystem: gcsSystemID, TargetComponent: gcsComponentID, Type: mavlink.MissionAccepted})
	require.Equal(t, ResultSuccess, result)
}

func TestSetCurrentMissionItem(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	// One user item flattening to three wire items, then a plain waypoint.
	first := waypoint(47.3977, 8.5456, 10, true)
	first.SpeedMS = 5
	first.CameraAction = CameraActionTakePhoto
	uploadAccepted(t, sys, e, []*Item{first, waypoint(47.4, 8.6, 10, true)})

	var result Result
	e.SetCurrentMissionItemAsync(1, func(r Result) { result = r })

	set, ok := sys.lastSent().(mavlink.MissionSetCurrent)
	require.True(t, ok)
	// User item 1 begins at wire seq 3.
	assert.Equal(t, uint16(3), set.Seq)

	sys.deliver(mavlink.MissionCurrent{Seq: 3})
	assert.Equal(t, ResultSuccess, result)

	// Engine is idle again.
	e.SetCurrentMissionItemAsync(0, func(r Result) { result = r })
	assert.NotEqual(t, ResultBusy, result)
}

func TestSetCurrentMissionItemInvalid(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	uploadAccepted(t, sys, e, twoWaypoints())
	before := len(sys.sentMessages())

	var result Result
	e.SetCurrentMissionItemAsync(7, func(r Result) { result = r })
	assert.Equal(t, ResultInvalidArgument, result)
	assert.Len(t, sys.sentMessages(), before)
}

func TestProgressAndCompletion(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	uploadAccepted(t, sys, e, twoWaypoints())

	type progress struct{ current, total int }
	var events []progress
	e.SubscribeProgress(func(current, total int) {
		events = append(events, progress{current, total})
	})

	sys.deliver(mavlink.MissionCurrent{Seq: 0})
	require.Len(t, events, 1)
	assert.Equal(t, progress{0, 2}, events[0])

	// Repeated current for the same seq: no new event.
	sys.deliver(mavlink.MissionCurrent{Seq: 0})
	assert.Len(t, events, 1)

	sys.deliver(mavlink.MissionItemReached{Seq: 0})
	require.Len(t, events, 2)
	assert.False(t, e.IsMissionFinished())

	sys.deliver(mavlink.MissionCurrent{Seq: 1})
	sys.deliver(mavlink.MissionItemReached{Seq: 1})
	require.Len(t, events, 4)

	assert.True(t, e.IsMissionFinished())
	// Finished missions report the total as the current item.
	assert.Equal(t, progress{2, 2}, events[3])
	assert.Equal(t, 2, e.CurrentMissionItem())
}

func TestProgressResetOnNewUploadAccepted(t *testing.T) {
	sys := newFakeSystem()
	e := NewEngine(sys, DefaultSettings())

	uploadAccepted(t, sys, e, twoWaypoints())
	sys.deliver(mavlink.MissionCurrent{Seq: 1})
	sys.deliver(mavlink.MissionItemReached{Seq: 1})
	require.True(t, e.IsMissionFinished())

	uploadAccepted(t, sys, e, twoWaypoints())
	assert.False(t, e.IsMissionFinished())
	assert.Equal(t, -1, e.CurrentMissionItem())
}
