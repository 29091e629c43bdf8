package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type callRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type callEnvelope struct {
	IsError bool `json:"isError"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// remoteCall executes a tool on the MCP server and returns the first
// content item's text.
func (d *Dispatcher) remoteCall(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	body, err := json.Marshal(callRequest{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.mcpBaseURL+"/tools/call", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrToolUnavailable, resp.StatusCode, string(b))
	}

	var env callEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("%w: bad envelope: %v", ErrToolFailed, err)
	}
	if env.IsError {
		msg := "unspecified tool error"
		if len(env.Content) > 0 && env.Content[0].Text != "" {
			msg = env.Content[0].Text
		}
		return "", fmt.Errorf("%w: %s: %s", ErrToolFailed, name, msg)
	}
	if len(env.Content) == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyResult, name)
	}
	return env.Content[0].Text, nil
}
