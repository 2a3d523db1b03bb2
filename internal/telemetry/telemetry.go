// Package telemetry publishes mission progress events to the cloud broker so
// the fleet backend can follow a flight without polling the vehicle.
package telemetry

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	qos    = 1
	retain = false
)

type missionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"message_id"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Finished  bool      `json:"finished"`
}

// Publisher forwards progress callbacks as MQTT events. It drops events when
// the broker is unreachable; progress is advisory.
type Publisher struct {
	client   mqtt.Client
	deviceID string

	mu   sync.Mutex
	last missionEvent
}

func NewPublisher(client mqtt.Client, deviceID string) *Publisher {
	return &Publisher{client: client, deviceID: deviceID}
}

// HandleProgress is shaped to be passed to the engine's progress
// subscription.
func (p *Publisher) HandleProgress(current, total int) {
	event := missionEvent{
		Timestamp: time.Now().UTC(),
		MessageID: uuid.New().String(),
		Current:   current,
		Total:     total,
		Finished:  total > 0 && current == total,
	}

	p.mu.Lock()
	p.last = event
	p.mu.Unlock()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Could not marshal mission event: %v", err)
		return
	}

	topic := "/devices/" + p.deviceID + "/events/mission"
	tok := p.client.Publish(topic, qos, retain, payload)
	go func() {
		if !tok.WaitTimeout(10 * time.Second) {
			log.Printf("Could not publish mission event within 10s")
			return
		}
		if err := tok.Error(); err != nil {
			log.Printf("Could not publish mission event: %v", err)
		}
	}()
}

// Last returns the most recent event for diagnostics.
func (p *Publisher) Last() (current, total int, finished bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last.Current, p.last.Total, p.last.Finished
}
