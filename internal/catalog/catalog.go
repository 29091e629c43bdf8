// Package catalog caches the tool list advertised by the MCP tool server.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ErrUnavailable indicates the registry endpoint could not be reached or
// returned a non-success status.
var ErrUnavailable = errors.New("tool registry unavailable")

// ErrBadPayload indicates the registry responded with a body that does not
// match the expected tools document.
var ErrBadPayload = errors.New("tool registry returned malformed payload")

// Tool describes one remotely advertised capability.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	// Examples are locally curated invocation samples merged in by name;
	// the registry itself does not serve them.
	Examples []string `json:"examples,omitempty"`
}

// Cache fetches and holds the tool list with a staleness window. A failed
// refresh never clobbers previously fetched tools; stale data is preferred
// over nothing.
type Cache struct {
	baseURL  string
	maxAge   time.Duration
	client   *http.Client
	examples map[string][]string

	mu        sync.Mutex
	tools     []Tool
	fetchedAt time.Time
}

// New creates a cache against the given registry base URL. examples maps
// tool names to locally known example invocations.
func New(baseURL string, maxAge, timeout time.Duration, examples map[string][]string) *Cache {
	return &Cache{
		baseURL:  baseURL,
		maxAge:   maxAge,
		client:   &http.Client{Timeout: timeout},
		examples: examples,
	}
}

type toolsDocument struct {
	Tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	} `json:"tools"`
}

// Fetch returns the tool list. When a previous fetch exists and is younger
// than the staleness window, the cached snapshot is returned without a
// round trip unless force is set.
func (c *Cache) Fetch(ctx context.Context, force bool) ([]Tool, error) {
	c.mu.Lock()
	if !force && c.tools != nil && time.Since(c.fetchedAt) < c.maxAge {
		cached := c.snapshotLocked()
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var doc toolsDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if doc.Tools == nil {
		return nil, fmt.Errorf("%w: missing tools array", ErrBadPayload)
	}

	tools := make([]Tool, 0, len(doc.Tools))
	for _, t := range doc.Tools {
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Examples:    c.examples[t.Name],
		})
	}

	c.mu.Lock()
	c.tools = tools
	c.fetchedAt = time.Now()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	slog.Info("tool catalog refreshed", "tools", len(tools))
	return snapshot, nil
}

// Cached returns the current snapshot without any freshness check. The
// second return is false when no fetch has ever succeeded.
func (c *Cache) Cached() ([]Tool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tools == nil {
		return nil, false
	}
	return c.snapshotLocked(), true
}

// Age reports how old the cached snapshot is.
func (c *Cache) Age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tools == nil {
		return 0
	}
	return time.Since(c.fetchedAt)
}

func (c *Cache) snapshotLocked() []Tool {
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// DefaultExamples is the locally curated example set for the tools the
// reference MCP server exposes.
func DefaultExamples() map[string][]string {
	return map[string][]string{
		"db_find": {
			"show today's conveyor error logs",
			"오늘 컨베이어 에러 로그 보여줘",
			"list feeder logs from yesterday",
		},
		"db_aggregate": {
			"which device had the most errors this month",
			"이번 달 에러 많은 순서로 집계해줘",
		},
		"mqtt_device_control": {
			"turn on feeder 1",
			"피더 1번 켜줘",
			"컨베이어 정지",
		},
		"conveyor_failure_stats": {
			"conveyor failure rate",
			"컨베이어 불량률 알려줘",
		},
		"device_statistics": {
			"feeder 2 statistics",
			"피더 2번 통계",
		},
	}
}
