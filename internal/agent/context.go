package agent

import (
	"sync"
	"time"

	"github.com/smartfactory/agent-service/internal/catalog"
	"github.com/smartfactory/agent-service/internal/prompt"
)

// Message is one entry in the conversation audit trail.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Context is the per-session mutable record threading one utterance
// through tool selection, execution, and formatting. At most one pipeline
// run may be active per context; overlapping submissions are rejected.
// Fields are mutated only through the methods below so Clear may run
// concurrently with an in-flight pipeline run.
type Context struct {
	mu   sync.Mutex
	busy bool

	UserQuery       string
	AvailableTools  []catalog.Tool
	SelectedTool    string
	ToolParameters  map[string]interface{}
	ExecutionResult string
	FormattedResult string
	History         []Message
}

func NewContext() *Context {
	return &Context{}
}

// Begin marks the context busy for a pipeline run. It returns false when a
// run is already in flight.
func (c *Context) Begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

// End releases the busy flag.
func (c *Context) End() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// Busy reports whether a pipeline run is in flight.
func (c *Context) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Append adds a message to the history.
func (c *Context) Append(role, content string) {
	c.mu.Lock()
	c.History = append(c.History, Message{Role: role, Content: content, CreatedAt: time.Now()})
	c.mu.Unlock()
}

// SetQuery records the utterance driving the current run.
func (c *Context) SetQuery(q string) {
	c.mu.Lock()
	c.UserQuery = q
	c.mu.Unlock()
}

// SetTools records the tool listing the run was synthesized against.
func (c *Context) SetTools(tools []catalog.Tool) {
	c.mu.Lock()
	c.AvailableTools = tools
	c.mu.Unlock()
}

// SetDecision records the tool selection of the current run.
func (c *Context) SetDecision(tool string, params map[string]interface{}) {
	c.mu.Lock()
	c.SelectedTool = tool
	c.ToolParameters = params
	c.mu.Unlock()
}

// SetExecutionResult records the raw tool output of the current run.
func (c *Context) SetExecutionResult(raw string) {
	c.mu.Lock()
	c.ExecutionResult = raw
	c.mu.Unlock()
}

// SetFormattedResult records the final user-facing text of the run.
func (c *Context) SetFormattedResult(text string) {
	c.mu.Lock()
	c.FormattedResult = text
	c.mu.Unlock()
}

// ToolOutcome returns the last run's tool selection and raw output.
func (c *Context) ToolOutcome() (tool string, params map[string]interface{}, raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.SelectedTool, c.ToolParameters, c.ExecutionResult
}

// LastTurns returns up to n most recent history entries as prompt turns,
// oldest first. The bounded window is what gets re-serialized into later
// prompts; the full history stays in the context as the audit trail.
func (c *Context) LastTurns(n int) []prompt.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := len(c.History) - n
	if start < 0 {
		start = 0
	}
	turns := make([]prompt.Turn, 0, len(c.History)-start)
	for _, m := range c.History[start:] {
		turns = append(turns, prompt.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// Messages returns a copy of the full history.
func (c *Context) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.History))
	copy(out, c.History)
	return out
}

// Clear resets everything except the busy flag.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UserQuery = ""
	c.AvailableTools = nil
	c.SelectedTool = ""
	c.ToolParameters = nil
	c.ExecutionResult = ""
	c.FormattedResult = ""
	c.History = nil
}
