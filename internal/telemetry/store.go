// Package telemetry accumulates the most recent device metrics observed on
// the broker. The store is passive: values arrive by push and are read
// locally when a statistics tool runs, never fetched on demand.
package telemetry

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/smartfactory/agent-service/internal/mqtt"
)

// Reading is the last-value record for one device. Last value wins; there
// is no history retention here.
type Reading struct {
	DeviceID string

	// Speed metrics (conveyor-style payloads).
	Average      float64
	CurrentSpeed float64
	HasSpeed     bool

	// Count metrics (feeder/robot-style payloads).
	Total     int
	Pass      int
	Fail      int
	HasCounts bool

	UpdatedAt time.Time
}

// FailureRate derives the failure percentage from the counts. Zero totals
// yield zero.
func (r Reading) FailureRate() float64 {
	if !r.HasCounts || r.Total == 0 {
		return 0
	}
	return float64(r.Fail) / float64(r.Total) * 100
}

// Store holds one Reading per device id.
type Store struct {
	mu       sync.RWMutex
	readings map[string]Reading
}

func NewStore() *Store {
	return &Store{readings: make(map[string]Reading)}
}

type payload struct {
	Average      *float64 `json:"average"`
	CurrentSpeed *float64 `json:"current_speed"`
	Total        *int     `json:"total"`
	Pass         *int     `json:"pass"`
	Fail         *int     `json:"fail"`
	Failure      *int     `json:"failure"`
}

// Ingest applies one telemetry payload for a device. Unknown fields are
// ignored; a payload with no recognized numeric field is dropped.
func (s *Store) Ingest(deviceID string, body []byte) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		slog.Warn("telemetry payload dropped", "device", deviceID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.readings[deviceID]
	r.DeviceID = deviceID

	touched := false
	if p.Average != nil {
		r.Average = *p.Average
		r.HasSpeed = true
		touched = true
	}
	if p.CurrentSpeed != nil {
		r.CurrentSpeed = *p.CurrentSpeed
		r.HasSpeed = true
		touched = true
	}
	if p.Total != nil {
		r.Total = *p.Total
		r.HasCounts = true
		touched = true
	}
	if p.Pass != nil {
		r.Pass = *p.Pass
		r.HasCounts = true
		touched = true
	}
	// Some firmwares report "fail", others "failure".
	if p.Fail != nil {
		r.Fail = *p.Fail
		r.HasCounts = true
		touched = true
	} else if p.Failure != nil {
		r.Fail = *p.Failure
		r.HasCounts = true
		touched = true
	}

	if !touched {
		return
	}
	r.UpdatedAt = time.Now()
	s.readings[deviceID] = r
}

// Get returns the last reading for a device. The second return is false
// when no telemetry has ever arrived for it.
func (s *Store) Get(deviceID string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[deviceID]
	return r, ok
}

// All returns a snapshot of every reading, for the status endpoint.
func (s *Store) All() []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reading, 0, len(s.readings))
	for _, r := range s.readings {
		out = append(out, r)
	}
	return out
}

// Attach subscribes the store to the per-device telemetry topics under
// topicBase (topicBase/<device>/telemetry).
func (s *Store) Attach(client mqtt.ClientAPI, topicBase string) error {
	topic := topicBase + "/+/telemetry"
	return client.Subscribe(topic, func(_ mqtt.Conn, msg mqtt.Message) {
		id := deviceFromTopic(msg.Topic())
		if id == "" {
			return
		}
		s.Ingest(id, msg.Payload())
	})
}

func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}
