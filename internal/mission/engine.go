package mission

import (
	"log"
	"sync"
	"time"

	"github.com/tiiuae/mission_link/internal/mavlink"
	"github.com/tiiuae/mission_link/internal/timeout"
)

// Activity is the single in-flight operation of an engine. Any request made
// while the engine is not idle is refused with busy.
type Activity int

const (
	ActivityNone Activity = iota
	ActivitySetMission
	ActivityGetMission
	ActivitySetCurrent
	ActivitySendCommand
)

// System is the parent the engine lives in: non-blocking message sending,
// handler registration, timeout bookkeeping, flight mode commands and the
// addressing identities of both ends of the link.
type System interface {
	SendMessage(msg mavlink.Message) bool
	RegisterHandler(msgID uint32, fn mavlink.HandlerFn, owner interface{})
	UnregisterAllHandlers(owner interface{})
	RegisterTimeout(fn func(), d time.Duration) timeout.Cookie
	RefreshTimeout(cookie timeout.Cookie)
	UnregisterTimeout(cookie timeout.Cookie)
	SetFlightModeAsync(mode mavlink.FlightMode, fn func(err error))
	SystemID() uint8
	AutopilotID() uint8
	GCSSystemID() uint8
	GCSComponentID() uint8
	SupportsMissionInt() bool
}

// Settings are the protocol deadlines. RetryTimeout paces item requests
// during download; ProcessTimeout covers the autopilot starting to pull
// items during upload.
type Settings struct {
	RetryTimeout   time.Duration
	ProcessTimeout time.Duration
	MaxRetries     int
}

func DefaultSettings() Settings {
	return Settings{
		RetryTimeout:   time.Second,
		ProcessTimeout: 10 * time.Second,
		MaxRetries:     3,
	}
}

// Engine drives the MAVLink mission transfer protocol for one vehicle.
// All state is serialized through a single mutex; handlers run on the
// transport receive goroutine, timeouts on timer goroutines, operations on
// caller goroutines.
type Engine struct {
	sys      System
	settings Settings

	mu       sync.Mutex
	activity Activity

	resultCallback   ResultCallback
	downloadCallback DownloadCallback
	progressCallback ProgressCallback

	// Upload cache. Persists past the upload so progress queries and
	// set-current can consult the index map.
	missionItems []*Item
	wireItems    []mavlink.MissionItemInt
	indexMap     []int

	// Download accumulator.
	downloadedItems []mavlink.MissionItemInt
	numToDownload   int
	nextToDownload  int
	retries         int

	lastCurrentSeq int
	lastReachedSeq int

	timeoutCookie timeout.Cookie
}

func NewEngine(sys System, settings Settings) *Engine {
	e := &Engine{
		sys:            sys,
		settings:       settings,
		lastCurrentSeq: -1,
		lastReachedSeq: -1,
	}

	sys.RegisterHandler(mavlink.MsgIDMissionRequest, e.processMissionRequest, e)
	sys.RegisterHandler(mavlink.MsgIDMissionRequestInt, e.processMissionRequestInt, e)
	sys.RegisterHandler(mavlink.MsgIDMissionAck, e.processMissionAck, e)
	sys.RegisterHandler(mavlink.MsgIDMissionCurrent, e.processMissionCurrent, e)
	sys.RegisterHandler(mavlink.MsgIDMissionItemReached, e.processMissionItemReached, e)
	sys.RegisterHandler(mavlink.MsgIDMissionCount, e.processMissionCount, e)
	sys.RegisterHandler(mavlink.MsgIDMissionItemInt, e.processMissionItemInt, e)

	return e
}

// Close unregisters the engine from its parent. Outstanding callbacks are
// abandoned.
func (e *Engine) Close() {
	e.mu.Lock()
	cookie := e.timeoutCookie
	e.timeoutCookie = timeout.NoCookie
	e.mu.Unlock()

	e.sys.UnregisterTimeout(cookie)
	e.sys.UnregisterAllHandlers(e)
}

// UploadMissionAsync translates the items and offers them to the autopilot,
// which pulls them one at a time. The callback fires once on the final ack,
// on a send failure, or not at all if the upload stalls out.
func (e *Engine) UploadMissionAsync(items []*Item, callback ResultCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activity != ActivityNone {
		reportResult(callback, ResultBusy)
		return
	}

	if !e.sys.SupportsMissionInt() {
		log.Printf("Mission int messages not supported")
		reportResult(callback, ResultError)
		return
	}

	e.missionItems = items
	e.wireItems, e.indexMap = assembleWireItems(items, e.sys.SystemID(), e.sys.AutopilotID())

	count := mavlink.NewMissionCount(e.sys.SystemID(), e.sys.AutopilotID(), uint16(len(e.wireItems)))
	if !e.sys.SendMessage(count) {
		reportResult(callback, ResultError)
		return
	}

	// The long timeout: the autopilot may take a while to start pulling.
	e.timeoutCookie = e.sys.RegisterTimeout(e.processTimeout, e.settings.ProcessTimeout)
	e.activity = ActivitySetMission
	e.resultCallback = callback
}

// DownloadMissionAsync pulls the stored mission off the vehicle and
// translates it back to user items.
func (e *Engine) DownloadMissionAsync(callback DownloadCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activity != ActivityNone {
		reportDownload(callback, ResultBusy, nil)
		return
	}

	req := mavlink.NewMissionRequestList(e.sys.SystemID(), e.sys.AutopilotID())
	if !e.sys.SendMessage(req) {
		reportDownload(callback, ResultError, nil)
		return
	}

	// Downloads run on the lower timeout. On expiry the item request for
	// the next seq is repeated; the list request itself is not resent.
	e.timeoutCookie = e.sys.RegisterTimeout(e.processTimeout, e.settings.RetryTimeout)

	e.downloadedItems = nil
	e.numToDownload = 0
	e.nextToDownload = 0
	e.retries = 0
	e.activity = ActivityGetMission
	e.downloadCallback = callback
}

// StartMissionAsync switches the vehicle into mission flight mode.
func (e *Engine) StartMissionAsync(callback ResultCallback) {
	e.sendFlightModeCommand(mavlink.FlightModeMission, callback)
}

// PauseMissionAsync holds the vehicle in place without clearing the mission.
func (e *Engine) PauseMissionAsync(callback ResultCallback) {
	e.sendFlightModeCommand(mavlink.FlightModeHold, callback)
}

func (e *Engine) sendFlightModeCommand(mode mavlink.FlightMode, callback ResultCallback) {
	e.mu.Lock()
	if e.activity != ActivityNone {
		defer e.mu.Unlock()
		reportResult(callback, ResultBusy)
		return
	}
	e.activity = ActivitySendCommand
	e.resultCallback = callback
	e.mu.Unlock()

	e.sys.SetFlightModeAsync(mode, func(err error) {
		e.receiveCommandResult(err, callback)
	})
}

func (e *Engine) receiveCommandResult(err error, callback ResultCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activity == ActivitySendCommand {
		e.activity = ActivityNone
	}

	if err != nil {
		log.Printf("Flight mode command failed: %v", err)
		reportResult(callback, ResultError)
		return
	}
	reportResult(callback, ResultSuccess)
}

// SetCurrentMissionItemAsync jumps the running mission to the given user
// item. Completion is an inbound MISSION_CURRENT echoing the wire seq.
func (e *Engine) SetCurrentMissionItemAsync(userIndex int, callback ResultCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activity != ActivityNone {
		reportResult(callback, ResultBusy)
		return
	}

	// The first wire item mapping to the user item is where to jump.
	wireSeq := -1
	for seq, idx := range e.indexMap {
		if idx == userIndex {
			wireSeq = seq
			break
		}
	}
	if wireSeq < 0 {
		reportResult(callback, ResultInvalidArgument)
		return
	}

	msg := mavlink.NewMissionSetCurrent(e.sys.SystemID(), e.sys.AutopilotID(), uint16(wireSeq))
	if !e.sys.SendMessage(msg) {
		reportResult(callback, ResultError)
		return
	}

	e.activity = ActivitySetCurrent
	e.resultCallback = callback
}

// SubscribeProgress installs the progress subscription. Pass nil to remove.
func (e *Engine) SubscribeProgress(callback ProgressCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progressCallback = callback
}

func (e *Engine) CurrentMissionItem() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentMissionItemLocked()
}

func (e *Engine) TotalMissionItems() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.missionItems)
}

func (e *Engine) IsMissionFinished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isMissionFinishedLocked()
}

func (e *Engine) currentMissionItemLocked() int {
	// Once finished, report the total: "current" wraps back to 0 on the
	// vehicle and would look like a restart.
	if e.isMissionFinishedLocked() {
		return len(e.missionItems)
	}

	if e.lastCurrentSeq >= 0 && e.lastCurrentSeq < len(e.indexMap) {
		return e.indexMap[e.lastCurrentSeq]
	}
	return -1
}

func (e *Engine) isMissionFinishedLocked() bool {
	if e.lastCurrentSeq < 0 || e.lastReachedSeq < 0 {
		return false
	}
	if len(e.wireItems) == 0 {
		return false
	}
	// "current" resets to 0 after the last item, so completion is judged
	// on "reached".
	return e.lastReachedSeq+1 == len(e.wireItems)
}

// addressedToUs mirrors the original filter: a message is dropped only when
// BOTH ids differ from ours.
func (e *Engine) addressedToUs(targetSystem, targetComponent uint8) bool {
	return !(targetSystem != e.sys.GCSSystemID() && targetComponent != e.sys.GCSComponentID())
}

// Legacy float-based pull. Nacked unconditionally so the autopilot falls
// back to the int variant.
func (e *Engine) processMissionRequest(msg mavlink.Message) {
	ack := mavlink.NewMissionAck(e.sys.SystemID(), e.sys.AutopilotID(), mavlink.MissionUnsupported)
	e.sys.SendMessage(ack)

	e.mu.Lock()
	defer e.mu.Unlock()
	// Still communicating, keep the upload alive.
	e.sys.RefreshTimeout(e.timeoutCookie)
}

func (e *Engine) processMissionRequestInt(msg mavlink.Message) {
	req, ok := msg.(mavlink.MissionRequestInt)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.addressedToUs(req.TargetSystem, req.TargetComponent) {
		log.Printf("Ignoring mission request int that is not for us")
		return
	}

	if e.activity != ActivitySetMission {
		log.Printf("Ignoring mission request int, not uploading")
		return
	}

	e.retries = 0
	e.uploadMissionItem(req.Seq)

	e.sys.RefreshTimeout(e.timeoutCookie)
}

func (e *Engine) uploadMissionItem(seq uint16) {
	if int(seq) >= len(e.wireItems) {
		log.Printf("Mission item %d requested out of bounds", seq)
		return
	}
	e.sys.SendMessage(e.wireItems[seq])
}

func (e *Engine) processMissionAck(msg mavlink.Message) {
	ack, ok := msg.(mavlink.MissionAck)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activity != ActivitySetMission {
		log.Printf("Ignoring unexpected mission ack")
		return
	}

	if !e.addressedToUs(ack.TargetSystem, ack.TargetComponent) {
		log.Printf("Ignoring mission ack that is not for us")
		return
	}

	// A response arrived, so this is no timeout.
	e.sys.UnregisterTimeout(e.timeoutCookie)
	e.timeoutCookie = timeout.NoCookie
	e.activity = ActivityNone

	switch ack.Type {
	case mavlink.MissionAccepted:
		// Forget earlier progress so the fresh mission starts clean.
		e.lastCurrentSeq = -1
		e.lastReachedSeq = -1
		log.Printf("Mission accepted")
		reportResult(e.resultCallback, ResultSuccess)
	case mavlink.MissionNoSpace:
		log.Printf("Mission rejected: too many mission items")
		reportResult(e.resultCallback, ResultTooManyMissionItems)
	default:
		log.Printf("Mission rejected: ack %d", ack.Type)
		reportResult(e.resultCallback, ResultError)
	}
}

func (e *Engine) processMissionCurrent(msg mavlink.Message) {
	cur, ok := msg.(mavlink.MissionCurrent)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastCurrentSeq != int(cur.Seq) {
		e.lastCurrentSeq = int(cur.Seq)
		e.reportProgressLocked()
	}

	if e.activity == ActivitySetCurrent && e.lastCurrentSeq == int(cur.Seq) {
		reportResult(e.resultCallback, ResultSuccess)
		e.lastCurrentSeq = -1
		e.sys.UnregisterTimeout(e.timeoutCookie)
		e.timeoutCookie = timeout.NoCookie
		e.activity = ActivityNone
	}
}

func (e *Engine) processMissionItemReached(msg mavlink.Message) {
	reached, ok := msg.(mavlink.MissionItemReached)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastReachedSeq != int(reached.Seq) {
		e.lastReachedSeq = int(reached.Seq)
		e.reportProgressLocked()
	}
}

func (e *Engine) processMissionCount(msg mavlink.Message) {
	count, ok := msg.(mavlink.MissionCount)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activity != ActivityGetMission {
		return
	}

	if count.Count == 0 {
		// Nothing stored on the vehicle; close the transaction.
		e.sys.UnregisterTimeout(e.timeoutCookie)
		e.timeoutCookie = timeout.NoCookie
		e.sys.SendMessage(mavlink.NewMissionAck(e.sys.SystemID(), e.sys.AutopilotID(), mavlink.MissionAccepted))
		e.activity = ActivityNone
		reportDownload(e.downloadCallback, ResultNoMissionAvailable, nil)
		return
	}

	e.numToDownload = int(count.Count)
	e.nextToDownload = 0

	// Item requests are retried, switch to the lower timeout.
	e.sys.UnregisterTimeout(e.timeoutCookie)
	e.timeoutCookie = e.sys.RegisterTimeout(e.processTimeout, e.settings.RetryTimeout)
	e.downloadNextMissionItem()
}

func (e *Engine) processMissionItemInt(msg mavlink.Message) {
	item, ok := msg.(mavlink.MissionItemInt)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activity != ActivityGetMission {
		return
	}

	if int(item.Seq) != e.nextToDownload {
		log.Printf("Received mission item %d instead of %d (ignored)", item.Seq, e.nextToDownload)
		// Still alive; assume our request got lost and repeat it.
		e.sys.RefreshTimeout(e.timeoutCookie)
		e.downloadNextMissionItem()
		return
	}

	e.downloadedItems = append(e.downloadedItems, item)
	e.retries = 0

	if e.nextToDownload+1 == e.numToDownload {
		// Transaction done: ack, translate, deliver.
		e.sys.UnregisterTimeout(e.timeoutCookie)
		e.timeoutCookie = timeout.NoCookie
		e.sys.SendMessage(mavlink.NewMissionAck(e.sys.SystemID(), e.sys.AutopilotID(), mavlink.MissionAccepted))

		items, indexMap, result := assembleMissionItems(e.downloadedItems)
		if result == ResultSuccess {
			e.missionItems = items
			e.indexMap = indexMap
		}
		e.downloadedItems = nil
		e.activity = ActivityNone
		reportDownload(e.downloadCallback, result, items)
		return
	}

	e.nextToDownload++
	e.sys.RefreshTimeout(e.timeoutCookie)
	e.downloadNextMissionItem()
}

func (e *Engine) downloadNextMissionItem() {
	req := mavlink.NewMissionRequestInt(e.sys.SystemID(), e.sys.AutopilotID(), uint16(e.nextToDownload))
	e.sys.SendMessage(req)
}

func (e *Engine) processTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.activity {
	case ActivitySetMission:
		// No retry possible here; the autopilot drives the pulls. The
		// request ends without a result for the caller.
		e.activity = ActivityNone
		e.timeoutCookie = timeout.NoCookie
		log.Printf("Mission handling timed out while uploading mission")

	case ActivityGetMission:
		if e.retries < e.settings.MaxRetries {
			e.retries++
			log.Printf("Retrying mission item request %d", e.nextToDownload)
			e.timeoutCookie = e.sys.RegisterTimeout(e.processTimeout, e.settings.RetryTimeout)
			e.downloadNextMissionItem()
		} else {
			e.activity = ActivityNone
			e.retries = 0
			e.timeoutCookie = timeout.NoCookie
			log.Printf("Mission handling timed out while downloading mission")
			reportDownload(e.downloadCallback, ResultTimeout, nil)
		}

	default:
		log.Printf("Unexpected mission timeout")
	}
}

func (e *Engine) reportProgressLocked() {
	if e.progressCallback == nil {
		return
	}
	e.progressCallback(e.currentMissionItemLocked(), len(e.missionItems))
}

func reportResult(callback ResultCallback, result Result) {
	if callback == nil {
		log.Printf("Result callback not set")
		return
	}
	callback(result)
}

func reportDownload(callback DownloadCallback, result Result, items []*Item) {
	if callback == nil {
		log.Printf("Download callback not set")
		return
	}
	if result != ResultSuccess {
		items = nil
	}
	callback(result, items)
}
