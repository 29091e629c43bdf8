package dispatch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartfactory/agent-service/internal/devices"
	"github.com/smartfactory/agent-service/internal/dispatch"
	"github.com/smartfactory/agent-service/internal/interpret"
	"github.com/smartfactory/agent-service/internal/mqtt"
	"github.com/smartfactory/agent-service/internal/telemetry"
)

// fakeBroker implements mqtt.ClientAPI for handshake tests.
type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.Handler
	published []publishedMsg
	notify    chan publishedMsg
}

type publishedMsg struct {
	topic   string
	payload string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		handlers: make(map[string]mqtt.Handler),
		notify:   make(chan publishedMsg, 16),
	}
}

func (b *fakeBroker) Subscribe(topic string, cb mqtt.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = cb
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error { return nil }

func (b *fakeBroker) Publish(topic string, payload []byte) error {
	m := publishedMsg{topic: topic, payload: string(payload)}
	b.mu.Lock()
	b.published = append(b.published, m)
	b.mu.Unlock()
	b.notify <- m
	return nil
}

func (b *fakeBroker) publishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// deliver routes a message through the wildcard subscription handler.
func (b *fakeBroker) deliver(topic, payload string) {
	b.mu.Lock()
	var handler mqtt.Handler
	for pattern, h := range b.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	b.mu.Unlock()
	if handler != nil {
		handler(nil, fakeMessage{topic: topic, payload: []byte(payload)})
	}
}

func topicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != "+" && pp[i] != tp[i] {
			return false
		}
	}
	return true
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newDispatcher(t *testing.T, broker *fakeBroker, mcpURL string) (*dispatch.Dispatcher, *telemetry.Store) {
	t.Helper()
	store := telemetry.NewStore()
	d := dispatch.New(dispatch.Options{
		Registry:       devices.NewRegistry(),
		Telemetry:      store,
		Broker:         broker,
		TopicBase:      "factory",
		ControlTimeout: 150 * time.Millisecond,
		MCPBaseURL:     mcpURL,
		ExecuteTimeout: 5 * time.Second,
	})
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return d, store
}

func controlDecision(device, command string) interpret.Decision {
	return interpret.Decision{
		RequiresToolExecution: true,
		SelectedTool:          "mqtt_device_control",
		ToolParameters:        map[string]interface{}{"device": device, "command": command},
	}
}

func TestDeviceControl_Handshake(t *testing.T) {
	broker := newFakeBroker()
	d, _ := newDispatcher(t, broker, "")

	broker.deliver("factory/feeder_02/status", "off")

	done := make(chan struct{})
	var res dispatch.Result
	var err error
	go func() {
		res, err = d.Dispatch(context.Background(), controlDecision("feeder 2", "on"))
		close(done)
	}()

	select {
	case m := <-broker.notify:
		if m.topic != "factory/feeder_02/cmd" || m.payload != "on" {
			t.Fatalf("published %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("no publish observed")
	}

	broker.deliver("factory/feeder_02/status", "on")

	<-done
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !strings.Contains(res.Final, "Feeder 2") || !strings.Contains(res.Final, "now on") {
		t.Errorf("Final = %q", res.Final)
	}

	// The pending record is gone: an identical follow-up does not ride an
	// old timer but short-circuits on the cached state instead.
	res, err = d.Dispatch(context.Background(), controlDecision("feeder 2", "on"))
	if err != nil {
		t.Fatalf("follow-up Dispatch() error = %v", err)
	}
	if !strings.Contains(res.Final, "already on") {
		t.Errorf("follow-up Final = %q", res.Final)
	}
	if broker.publishCount() != 1 {
		t.Errorf("publishes = %d, want 1 (idempotent short-circuit)", broker.publishCount())
	}
}

func TestDeviceControl_AlreadyInState(t *testing.T) {
	broker := newFakeBroker()
	d, _ := newDispatcher(t, broker, "")

	broker.deliver("factory/conveyor_01/status", "off")

	res, err := d.Dispatch(context.Background(), controlDecision("컨베이어1", "정지"))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !strings.Contains(res.Final, "already off") {
		t.Errorf("Final = %q", res.Final)
	}
	if broker.publishCount() != 0 {
		t.Errorf("publishes = %d, want 0", broker.publishCount())
	}
}

func TestDeviceControl_Timeout(t *testing.T) {
	broker := newFakeBroker()
	d, _ := newDispatcher(t, broker, "")

	_, err := d.Dispatch(context.Background(), controlDecision("feeder_02", "on"))
	if !errors.Is(err, dispatch.ErrControlTimeout) {
		t.Fatalf("Dispatch() error = %v, want ErrControlTimeout", err)
	}

	// The pending record was cleared: the same request may run again and
	// publishes a second command.
	_, err = d.Dispatch(context.Background(), controlDecision("feeder_02", "on"))
	if !errors.Is(err, dispatch.ErrControlTimeout) {
		t.Fatalf("second Dispatch() error = %v, want ErrControlTimeout", err)
	}
	if broker.publishCount() != 2 {
		t.Errorf("publishes = %d, want 2", broker.publishCount())
	}
}

func TestDeviceControl_PendingGuard(t *testing.T) {
	broker := newFakeBroker()
	d, _ := newDispatcher(t, broker, "")

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = d.Dispatch(context.Background(), controlDecision("robot_01", "on"))
	}()
	<-started
	<-broker.notify // first command is in flight

	_, err := d.Dispatch(context.Background(), controlDecision("robot_01", "on"))
	if !errors.Is(err, dispatch.ErrControlPending) {
		t.Fatalf("Dispatch() error = %v, want ErrControlPending", err)
	}
	if broker.publishCount() != 1 {
		t.Errorf("publishes = %d, want 1 (no second timer)", broker.publishCount())
	}
}

func TestDeviceControl_UnsupportedDevice(t *testing.T) {
	broker := newFakeBroker()
	d, _ := newDispatcher(t, broker, "")

	_, err := d.Dispatch(context.Background(), controlDecision("conveyor 2", "on"))
	if !errors.Is(err, dispatch.ErrUnsupportedDevice) {
		t.Fatalf("Dispatch() error = %v, want ErrUnsupportedDevice", err)
	}
}

func statsDecision(tool, device string) interpret.Decision {
	return interpret.Decision{
		RequiresToolExecution: true,
		SelectedTool:          tool,
		ToolParameters:        map[string]interface{}{"device": device},
	}
}

func TestStatistics(t *testing.T) {
	broker := newFakeBroker()
	d, store := newDispatcher(t, broker, "")

	store.Ingest("conveyor_01", []byte(`{"average":42.0,"current_speed":40.5}`))
	store.Ingest("feeder_02", []byte(`{"total":100,"pass":92,"fail":8}`))

	res, err := d.Dispatch(context.Background(), statsDecision("conveyor_failure_stats", "컨베이어1"))
	if err != nil {
		t.Fatalf("conveyor stats error = %v", err)
	}
	if !strings.Contains(res.Final, "42.0") || !strings.Contains(res.Final, "Conveyor 1") {
		t.Errorf("conveyor stats = %q", res.Final)
	}

	res, err = d.Dispatch(context.Background(), statsDecision("device_statistics", "피더 2번"))
	if err != nil {
		t.Fatalf("feeder stats error = %v", err)
	}
	if !strings.Contains(res.Final, "8.0%") {
		t.Errorf("feeder stats missing failure rate: %q", res.Final)
	}

	// Supported device without telemetry yet.
	res, err = d.Dispatch(context.Background(), statsDecision("device_statistics", "feeder 1"))
	if err != nil {
		t.Fatalf("no-data stats error = %v", err)
	}
	if !strings.Contains(res.Final, "No telemetry") {
		t.Errorf("no-data stats = %q", res.Final)
	}

	// Recognized but not installed: the rejection is stats-specific, not
	// the control-path error.
	_, err = d.Dispatch(context.Background(), statsDecision("device_statistics", "conveyor 2"))
	if !errors.Is(err, dispatch.ErrStatsUnsupported) {
		t.Fatalf("unsupported stats error = %v, want ErrStatsUnsupported", err)
	}
	if errors.Is(err, dispatch.ErrUnsupportedDevice) {
		t.Fatal("stats rejection must not carry the control-path sentinel")
	}

	// Unrecognized id is reflected back, not an error.
	res, err = d.Dispatch(context.Background(), statsDecision("device_statistics", "mixer 7"))
	if err != nil {
		t.Fatalf("unknown stats error = %v", err)
	}
	if !strings.Contains(res.Final, "mixer 7") {
		t.Errorf("unknown stats = %q", res.Final)
	}
	if broker.publishCount() != 0 {
		t.Error("statistics must never publish")
	}
}

func TestRemoteCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tools/call" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"isError":false,"content":[{"text":"raw tool output 3건"}]}`))
	}))
	defer srv.Close()

	broker := newFakeBroker()
	d, _ := newDispatcher(t, broker, srv.URL)

	res, err := d.Dispatch(context.Background(), interpret.Decision{
		RequiresToolExecution: true,
		SelectedTool:          "db_find",
		ToolParameters:        map[string]interface{}{"device": "conveyor_01"},
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Raw != "raw tool output 3건" {
		t.Errorf("Raw = %q", res.Raw)
	}
	if !strings.Contains(res.Final, "**3 건**") {
		t.Errorf("Final not formatted: %q", res.Final)
	}
}

func TestRemoteCall_Failures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		wantErr error
	}{
		{"tool error", `{"isError":true,"content":[{"text":"query failed"}]}`, 200, dispatch.ErrToolFailed},
		{"empty content", `{"isError":false,"content":[]}`, 200, dispatch.ErrEmptyResult},
		{"http error", `boom`, 500, dispatch.ErrToolUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			broker := newFakeBroker()
			d, _ := newDispatcher(t, broker, srv.URL)

			_, err := d.Dispatch(context.Background(), interpret.Decision{
				RequiresToolExecution: true,
				SelectedTool:          "db_aggregate",
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Dispatch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
