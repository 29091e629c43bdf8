// Package dispatch routes a structured tool decision onto one of three
// execution paths: an MQTT device-control handshake, a cached-telemetry
// lookup, or a remote MCP tool call.
package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smartfactory/agent-service/internal/devices"
	"github.com/smartfactory/agent-service/internal/format"
	"github.com/smartfactory/agent-service/internal/interpret"
	"github.com/smartfactory/agent-service/internal/mqtt"
	"github.com/smartfactory/agent-service/internal/observability"
	"github.com/smartfactory/agent-service/internal/telemetry"
)

var (
	// ErrControlTimeout is surfaced when no status acknowledgment arrives
	// within the control window.
	ErrControlTimeout = errors.New("device did not acknowledge the command in time")

	// ErrControlPending rejects a second control for a device that already
	// has one in flight.
	ErrControlPending = errors.New("a control command is already pending for this device")

	// ErrUnsupportedDevice marks a recognized unit that is not installed
	// in this deployment.
	ErrUnsupportedDevice = errors.New("device is not installed in this deployment")

	// ErrStatsUnsupported marks a statistics request for a recognized unit
	// that is not installed, so no telemetry is ever collected for it.
	ErrStatsUnsupported = errors.New("statistics are not collected for this device")

	// ErrEmptyResult marks a tool reply with no content items.
	ErrEmptyResult = errors.New("tool returned no content")

	// ErrToolUnavailable marks a transport failure toward the tool server.
	ErrToolUnavailable = errors.New("tool server unavailable")

	// ErrToolFailed marks a tool-level failure reported by the server.
	ErrToolFailed = errors.New("tool execution failed")
)

// Result is what one dispatch produced: the raw tool output and the final
// user-facing text. The two are equal on paths that format inline.
type Result struct {
	Raw   string
	Final string
}

// Dispatcher owns the three execution paths and the state they share:
// last-seen device states, pending control records, and the telemetry
// store populated by the broker.
type Dispatcher struct {
	registry  *devices.Registry
	telemetry *telemetry.Store
	broker    mqtt.ClientAPI
	topicBase string

	controlTimeout time.Duration

	mcpBaseURL string
	httpClient *http.Client

	mu      sync.Mutex
	states  map[string]string          // device id -> last seen on/off
	pending map[string]*pendingControl // device id -> in-flight control
}

type pendingControl struct {
	expected string
	ack      chan struct{}
}

// Options bundles the dispatcher's construction parameters.
type Options struct {
	Registry       *devices.Registry
	Telemetry      *telemetry.Store
	Broker         mqtt.ClientAPI
	TopicBase      string
	ControlTimeout time.Duration
	MCPBaseURL     string
	ExecuteTimeout time.Duration
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{
		registry:       opts.Registry,
		telemetry:      opts.Telemetry,
		broker:         opts.Broker,
		topicBase:      opts.TopicBase,
		controlTimeout: opts.ControlTimeout,
		mcpBaseURL:     opts.MCPBaseURL,
		httpClient:     &http.Client{Timeout: opts.ExecuteTimeout},
		states:         make(map[string]string),
		pending:        make(map[string]*pendingControl),
	}
}

// Start subscribes the dispatcher to the per-device status topics. Status
// messages both refresh the last-seen state cache and resolve pending
// controls.
func (d *Dispatcher) Start() error {
	topic := d.topicBase + "/+/status"
	return d.broker.Subscribe(topic, func(_ mqtt.Conn, msg mqtt.Message) {
		d.onStatus(deviceFromTopic(msg.Topic()), string(msg.Payload()))
	})
}

func deviceFromTopic(topic string) string {
	// topicBase/<device>/status
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}

func (d *Dispatcher) onStatus(deviceID, state string) {
	if deviceID == "" {
		return
	}
	d.mu.Lock()
	d.states[deviceID] = state
	if p, ok := d.pending[deviceID]; ok && p.expected == state {
		delete(d.pending, deviceID)
		close(p.ack)
	}
	d.mu.Unlock()
}

// Dispatch executes the decision's tool and returns the final text. The
// caller is expected to have checked RequiresToolExecution already.
func (d *Dispatcher) Dispatch(ctx context.Context, decision interpret.Decision) (Result, error) {
	observability.ToolExecutions.WithLabelValues(decision.SelectedTool).Inc()

	switch decision.SelectedTool {
	case "mqtt_device_control":
		return d.deviceControl(ctx, decision.ToolParameters)
	case "conveyor_failure_stats", "device_statistics":
		return d.statistics(decision.ToolParameters)
	default:
		raw, err := d.remoteCall(ctx, decision.SelectedTool, decision.ToolParameters)
		if err != nil {
			return Result{}, err
		}
		return Result{Raw: raw, Final: format.Format(decision.SelectedTool, raw)}, nil
	}
}
