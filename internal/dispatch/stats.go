package dispatch

import "fmt"

// statistics answers the statistics tools from locally accumulated
// telemetry. This path never touches the network; freshness depends
// entirely on broker push volume.
func (d *Dispatcher) statistics(params map[string]interface{}) (Result, error) {
	rawDevice, _ := params["device"].(string)

	deviceID := d.registry.Normalize(rawDevice)
	dev, known := d.registry.Lookup(deviceID)
	if !known {
		// Unrecognized input is reflected back as-is so the user sees what
		// was actually looked up.
		text := fmt.Sprintf("No statistics are tracked for %q.", rawDevice)
		return Result{Raw: text, Final: text}, nil
	}
	if !dev.Supported {
		return Result{}, fmt.Errorf("%w: %s", ErrStatsUnsupported, dev.DisplayName)
	}

	reading, ok := d.telemetry.Get(deviceID)
	if !ok {
		text := fmt.Sprintf("No telemetry received from %s yet.", dev.DisplayName)
		return Result{Raw: text, Final: text}, nil
	}

	var text string
	switch {
	case reading.HasSpeed && reading.HasCounts:
		text = fmt.Sprintf("**%s statistics**\n- current speed: %.1f\n- average speed: %.1f\n- total: %d, pass: %d, fail: %d (%.1f%% failure)\n- updated: %s",
			dev.DisplayName, reading.CurrentSpeed, reading.Average,
			reading.Total, reading.Pass, reading.Fail, reading.FailureRate(),
			reading.UpdatedAt.Format("15:04:05"))
	case reading.HasSpeed:
		text = fmt.Sprintf("**%s statistics**\n- current speed: %.1f\n- average speed: %.1f\n- updated: %s",
			dev.DisplayName, reading.CurrentSpeed, reading.Average,
			reading.UpdatedAt.Format("15:04:05"))
	default:
		text = fmt.Sprintf("**%s statistics**\n- total: %d\n- pass: %d\n- fail: %d\n- failure rate: %.1f%%\n- updated: %s",
			dev.DisplayName, reading.Total, reading.Pass, reading.Fail,
			reading.FailureRate(), reading.UpdatedAt.Format("15:04:05"))
	}
	return Result{Raw: text, Final: text}, nil
}
