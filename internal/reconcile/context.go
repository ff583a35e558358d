package reconcile

import (
	"context"

	"github.com/openbiome/stratagem/internal/domain"
)

// ToolResult is the parsed form of a tool call's result payload. The
// parser contract: never panic, return nil when nothing useful can
// be extracted.
type ToolResult struct {
	GraphSnapshot map[string]any
}

// StrategyOps are the externally owned strategy mutators a turn can
// invoke. Any func may be nil; handlers skip absent capabilities.
type StrategyOps struct {
	SetStrategyID       func(id string)
	AddStrategySummary  func(s domain.StrategySummary)
	AddExecutedStrategy func(s *domain.Strategy)
	SetWDKLink          func(wdkID int64, url, name, description string)
	SetStrategy         func(s *domain.Strategy)
	SetStrategyMeta     func(meta domain.StrategyMeta)
	ClearStrategy       func(id string)
	AddStep             func(strategyID string, step domain.Step)
	LoadGraph           func(id string)
	GetStrategy         func(ctx context.Context, id string) (*domain.Strategy, error)
	ApplyGraphSnapshot  func(snapshot map[string]any)
	SnapshotStrategy    func(id string) *StrategySnapshot
}

// Hooks are optional notification callbacks fired as events are
// reconciled. Effects only; handlers never inspect results.
type Hooks struct {
	OnPlanSessionID        func(id string)
	OnArtifactUpdate       func(artifact map[string]any)
	OnExecutorBuildRequest func(message string)
	OnTitleUpdate          func(title string)
	OnAPIError             func(message string)
}

// LiveTracker receives ephemeral in-turn state for rendering:
// reasoning text, active tool calls, and delegated sub-agent
// lifecycle updates.
type LiveTracker interface {
	SetReasoning(text string)
	SetActiveToolCalls(calls []domain.ToolCall)
	SubKaniTaskStarted(task string)
	SubKaniToolCallStarted(task string, call domain.ToolCall)
	SubKaniToolCallEnded(task, callID string, result any)
	SubKaniTaskEnded(task, status string)
}

// Context is the dependency bundle handed to every handler for one
// turn. Handlers own the Session and Turn buffers exclusively;
// everything else is an effect boundary.
type Context struct {
	Session *Session
	Turn    *TurnBuffers

	Transcript  Sink[[]Message]
	UndoByIndex Sink[map[int]*StrategySnapshot]

	SetOptimizationProgress func(p *domain.OptimizationProgress)

	Strategy StrategyOps
	Hooks    Hooks
	Live     LiveTracker

	ParseToolArguments func(raw any) map[string]any
	ParseToolResult    func(raw any) *ToolResult

	// SiteID and StartStrategyID pin the turn: strategy events
	// targeting a different id than the turn started with are
	// dropped.
	SiteID          string
	StartStrategyID string
	CurrentStrategy *domain.Strategy

	// Spawn runs a detached best-effort task. Defaults to a bare
	// goroutine; tests substitute a synchronous runner.
	Spawn func(fn func())
}

func NewContext(transcript Sink[[]Message], undo Sink[map[int]*StrategySnapshot]) *Context {
	return &Context{
		Session:     NewSession(),
		Turn:        NewTurnBuffers(),
		Transcript:  transcript,
		UndoByIndex: undo,
	}
}

// spawnBestEffort runs fn detached. Failures inside fn stay inside
// fn; nothing is awaited.
func (c *Context) spawnBestEffort(fn func()) {
	if c.Spawn != nil {
		c.Spawn(fn)
		return
	}
	go fn()
}
