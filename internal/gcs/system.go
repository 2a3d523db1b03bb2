// Package gcs is the ground-station side of one vehicle connection: it owns
// the link read loop, frame codec, message dispatch and timeout bookkeeping
// that the mission engine builds on.
package gcs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tiiuae/mission_link/internal/config"
	"github.com/tiiuae/mission_link/internal/link"
	"github.com/tiiuae/mission_link/internal/mavlink"
	"github.com/tiiuae/mission_link/internal/timeout"
)

// FlightModeFn switches the vehicle flight mode. The connection layer that
// owns command long / command ack lives outside this module and is plugged
// in here.
type FlightModeFn func(mode mavlink.FlightMode, fn func(err error))

type System struct {
	cfg      config.Config
	link     link.Link
	codec    *mavlink.Codec
	dispatch *mavlink.Dispatcher
	timeouts *timeout.Handler

	flightMode FlightModeFn

	sendMu sync.Mutex
}

func New(cfg config.Config, l link.Link, flightMode FlightModeFn) *System {
	return &System{
		cfg:        cfg,
		link:       l,
		codec:      mavlink.NewCodec(),
		dispatch:   mavlink.NewDispatcher(),
		timeouts:   timeout.New(),
		flightMode: flightMode,
	}
}

// Run pumps inbound frames into the dispatcher until the context ends or the
// link dies.
func (s *System) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			frame, err := s.link.Receive()
			if err != nil {
				select {
				case <-ctx.Done():
					log.Println("GCS system shutting down")
				default:
					log.Printf("Link receive failed: %v", err)
				}
				return
			}

			pkt, err := s.codec.Decode(frame)
			if err != nil {
				if !errors.Is(err, mavlink.ErrUnknownMessage) {
					log.Printf("Dropping frame: %v", err)
				}
				continue
			}
			s.dispatch.Dispatch(pkt.Message)
		}
	}()

	go func() {
		<-ctx.Done()
		s.link.Close()
	}()
}

func (s *System) SendMessage(msg mavlink.Message) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	frame, err := s.codec.Encode(s.cfg.GCSSystemID, s.cfg.GCSComponentID, msg)
	if err != nil {
		log.Printf("Could not encode message: %v", err)
		return false
	}
	if err := s.link.Send(frame); err != nil {
		log.Printf("Could not send message: %v", err)
		return false
	}
	return true
}

func (s *System) RegisterHandler(msgID uint32, fn mavlink.HandlerFn, owner interface{}) {
	s.dispatch.RegisterHandler(msgID, fn, owner)
}

func (s *System) UnregisterAllHandlers(owner interface{}) {
	s.dispatch.UnregisterAllHandlers(owner)
}

func (s *System) RegisterTimeout(fn func(), d time.Duration) timeout.Cookie {
	return s.timeouts.Register(fn, d)
}

func (s *System) RefreshTimeout(cookie timeout.Cookie) {
	s.timeouts.Refresh(cookie)
}

func (s *System) UnregisterTimeout(cookie timeout.Cookie) {
	s.timeouts.Unregister(cookie)
}

func (s *System) SetFlightModeAsync(mode mavlink.FlightMode, fn func(err error)) {
	if s.flightMode == nil {
		fn(errors.New("no flight mode interface configured"))
		return
	}
	s.flightMode(mode, fn)
}

func (s *System) SystemID() uint8         { return s.cfg.TargetSystemID }
func (s *System) AutopilotID() uint8      { return s.cfg.AutopilotCompID }
func (s *System) GCSSystemID() uint8      { return s.cfg.GCSSystemID }
func (s *System) GCSComponentID() uint8   { return s.cfg.GCSComponentID }
func (s *System) SupportsMissionInt() bool { return s.cfg.MissionInt }
