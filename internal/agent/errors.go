package agent

import (
	"errors"

	"github.com/smartfactory/agent-service/internal/catalog"
	"github.com/smartfactory/agent-service/internal/dispatch"
	"github.com/smartfactory/agent-service/internal/interpret"
)

// UserMessage translates a pipeline error into the single human-readable
// line shown to the client. Every failure path surfaces through here so
// the UI never sees raw wrapped errors.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return "I'm still working on your previous request. Please wait a moment."
	case errors.Is(err, catalog.ErrUnavailable):
		return "The tool server is not responding right now. Please try again shortly."
	case errors.Is(err, interpret.ErrMalformedResponse):
		return "I couldn't make sense of the model's reply. Please try rephrasing your request."
	case errors.Is(err, dispatch.ErrControlPending):
		return "A command for that device is still waiting for confirmation. Please try again in a moment."
	case errors.Is(err, dispatch.ErrControlTimeout):
		return "The device did not confirm the command in time. It may be offline."
	case errors.Is(err, dispatch.ErrUnsupportedDevice):
		return "That device cannot be controlled remotely."
	case errors.Is(err, dispatch.ErrStatsUnsupported):
		return "Statistics are not collected for that device; it is not installed on this line."
	case errors.Is(err, dispatch.ErrEmptyResult):
		return "No data is available for that device yet."
	case errors.Is(err, dispatch.ErrToolUnavailable):
		return "The tool server is not responding right now. Please try again shortly."
	case errors.Is(err, dispatch.ErrToolFailed):
		return "The requested operation failed on the tool server."
	default:
		return "Something went wrong while handling your request. Please try again."
	}
}
