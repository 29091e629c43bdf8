package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartfactory/agent-service/internal/catalog"
	"github.com/smartfactory/agent-service/internal/dispatch"
	"github.com/smartfactory/agent-service/internal/interpret"
	"github.com/smartfactory/agent-service/internal/llm"
	"github.com/smartfactory/agent-service/internal/observability"
	"github.com/smartfactory/agent-service/internal/prompt"
)

// ErrBusy is returned when a submission arrives while a run is in flight
// on the same context.
var ErrBusy = errors.New("agent: a request is already being processed")

// State describes where a pipeline run currently is. The UI layer relays
// state changes to the client so it can show typing indicators.
type State string

const (
	StateIdle      State = "idle"
	StateThinking  State = "thinking"
	StateExecuting State = "executing"
)

// Notifier receives state transitions during a run. May be nil.
type Notifier func(State)

// CatalogSource supplies the tool listing used for prompt synthesis.
type CatalogSource interface {
	Fetch(ctx context.Context, force bool) ([]catalog.Tool, error)
	Cached() ([]catalog.Tool, bool)
}

// Executor carries out a tool decision and returns the formatted result.
type Executor interface {
	Dispatch(ctx context.Context, d interpret.Decision) (dispatch.Result, error)
}

// Pipeline wires catalog, prompt synthesis, the LLM, interpretation,
// dispatch, and formatting into a single Process call.
type Pipeline struct {
	catalog      CatalogSource
	llm          llm.Client
	executor     Executor
	historyLimit int
	log          *slog.Logger
}

type Options struct {
	Catalog      CatalogSource
	LLM          llm.Client
	Executor     Executor
	HistoryLimit int
	Logger       *slog.Logger
}

func New(opts Options) *Pipeline {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 6
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		catalog:      opts.Catalog,
		llm:          opts.LLM,
		executor:     opts.Executor,
		historyLimit: opts.HistoryLimit,
		log:          opts.Logger,
	}
}

// Process runs one utterance through the pipeline. On success it returns
// the formatted reply; on failure the error carries the stage that broke,
// and UserMessage translates it for the client. Either way the context's
// history records the user turn, and on success the assistant turn too.
func (p *Pipeline) Process(ctx context.Context, conv *Context, userQuery string, notify Notifier) (string, error) {
	if !conv.Begin() {
		return "", ErrBusy
	}
	defer conv.End()

	emit := func(s State) {
		if notify != nil {
			notify(s)
		}
	}
	emit(StateThinking)
	defer emit(StateIdle)

	started := time.Now()
	conv.SetQuery(userQuery)
	history := conv.LastTurns(p.historyLimit)
	conv.Append("user", userQuery)

	decision, matched := prompt.MatchSpecialCase(userQuery)
	if !matched {
		tools, err := p.catalog.Fetch(ctx, false)
		if err != nil {
			if cached, ok := p.catalog.Cached(); ok {
				p.log.Warn("catalog refresh failed, using stale listing", "error", err)
				tools = cached
			} else {
				observability.PipelineRuns.WithLabelValues("catalog_error").Inc()
				return "", fmt.Errorf("fetching tool catalog: %w", err)
			}
		}
		conv.SetTools(tools)

		promptText := prompt.Build(userQuery, tools, time.Now(), history)
		raw, err := p.llm.Complete(ctx, promptText)
		if err != nil {
			observability.PipelineRuns.WithLabelValues("llm_error").Inc()
			return "", fmt.Errorf("querying model: %w", err)
		}
		decision, err = interpret.Parse(raw)
		if err != nil {
			observability.PipelineRuns.WithLabelValues("malformed").Inc()
			return "", err
		}
	} else {
		p.log.Info("special case matched, skipping model", "query", userQuery)
	}

	conv.SetDecision(decision.SelectedTool, decision.ToolParameters)

	final := decision.UserMessage
	if decision.RequiresToolExecution {
		emit(StateExecuting)
		res, err := p.executor.Dispatch(ctx, decision)
		if err != nil {
			observability.PipelineRuns.WithLabelValues("dispatch_error").Inc()
			return "", fmt.Errorf("executing %s: %w", decision.SelectedTool, err)
		}
		conv.SetExecutionResult(res.Raw)
		final = res.Final
	}

	conv.SetFormattedResult(final)
	conv.Append("assistant", final)
	observability.PipelineRuns.WithLabelValues("ok").Inc()
	p.log.Info("pipeline run complete",
		"tool", decision.SelectedTool,
		"tool_executed", decision.RequiresToolExecution,
		"duration", time.Since(started))
	return final, nil
}
