package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartfactory/agent-service/internal/devices"
	"github.com/smartfactory/agent-service/internal/observability"
)

// deviceControl runs the asynchronous control handshake: publish the
// command, then wait for the device to echo the new state on its status
// topic before the configured window lapses.
func (d *Dispatcher) deviceControl(ctx context.Context, params map[string]interface{}) (Result, error) {
	rawDevice, _ := params["device"].(string)
	rawCommand, _ := params["command"].(string)

	deviceID := d.registry.Normalize(rawDevice)
	dev, known := d.registry.Lookup(deviceID)
	if !known {
		return Result{}, fmt.Errorf("unknown device %q", rawDevice)
	}
	if !dev.Supported {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedDevice, dev.DisplayName)
	}

	command, ok := devices.NormalizeCommand(rawCommand)
	if !ok {
		return Result{}, fmt.Errorf("unrecognized command %q", rawCommand)
	}

	d.mu.Lock()
	if d.states[deviceID] == command {
		d.mu.Unlock()
		text := fmt.Sprintf("%s is already %s.", dev.DisplayName, command)
		return Result{Raw: text, Final: text}, nil
	}
	if _, exists := d.pending[deviceID]; exists {
		d.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrControlPending, dev.DisplayName)
	}
	p := &pendingControl{expected: command, ack: make(chan struct{})}
	d.pending[deviceID] = p
	d.mu.Unlock()

	topic := d.topicBase + "/" + deviceID + "/cmd"
	if err := d.broker.Publish(topic, []byte(command)); err != nil {
		d.removePending(deviceID, p)
		return Result{}, fmt.Errorf("publish to %s: %w", topic, err)
	}
	slog.Info("control published", "device", deviceID, "command", command)

	timer := time.NewTimer(d.controlTimeout)
	defer timer.Stop()

	select {
	case <-p.ack:
		text := fmt.Sprintf("%s is now %s.", dev.DisplayName, command)
		return Result{Raw: text, Final: text}, nil
	case <-timer.C:
		// The ack may have raced the timer; losing the pending record to
		// the status handler means the ack won.
		if !d.removePending(deviceID, p) {
			text := fmt.Sprintf("%s is now %s.", dev.DisplayName, command)
			return Result{Raw: text, Final: text}, nil
		}
		observability.ControlTimeouts.WithLabelValues(deviceID).Inc()
		return Result{}, fmt.Errorf("%w: %s after %s", ErrControlTimeout, dev.DisplayName, d.controlTimeout)
	case <-ctx.Done():
		d.removePending(deviceID, p)
		return Result{}, ctx.Err()
	}
}

// removePending deletes the record if it is still the same in-flight
// control, reporting whether it was present.
func (d *Dispatcher) removePending(deviceID string, p *pendingControl) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.pending[deviceID]; ok && cur == p {
		delete(d.pending, deviceID)
		return true
	}
	return false
}

// State returns the last seen on/off state for a device id, if any.
func (d *Dispatcher) State(deviceID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[deviceID]
	return s, ok
}
