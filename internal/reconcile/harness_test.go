package reconcile

import (
	"context"

	"github.com/openbiome/stratagem/internal/domain"
)

// recordingOps captures every strategy mutation a turn performs.
type recordingOps struct {
	strategyIDs        []string
	summaries          []domain.StrategySummary
	executed           []*domain.Strategy
	wdkLinks           []wdkLink
	setStrategies      []*domain.Strategy
	metas              []domain.StrategyMeta
	cleared            []string
	steps              []addedStep
	loadedGraphs       []string
	appliedSnapshots   []map[string]any
	snapshotSource     *domain.Strategy
	getStrategyResult  *domain.Strategy
	getStrategyErr     error
	getStrategyCalls   []string
}

type wdkLink struct {
	id          int64
	url         string
	name        string
	description string
}

type addedStep struct {
	strategyID string
	step       domain.Step
}

func (r *recordingOps) ops() StrategyOps {
	return StrategyOps{
		SetStrategyID:      func(id string) { r.strategyIDs = append(r.strategyIDs, id) },
		AddStrategySummary: func(s domain.StrategySummary) { r.summaries = append(r.summaries, s) },
		AddExecutedStrategy: func(s *domain.Strategy) {
			r.executed = append(r.executed, s)
		},
		SetWDKLink: func(id int64, url, name, description string) {
			r.wdkLinks = append(r.wdkLinks, wdkLink{id, url, name, description})
		},
		SetStrategy:     func(s *domain.Strategy) { r.setStrategies = append(r.setStrategies, s) },
		SetStrategyMeta: func(m domain.StrategyMeta) { r.metas = append(r.metas, m) },
		ClearStrategy:   func(id string) { r.cleared = append(r.cleared, id) },
		AddStep: func(strategyID string, step domain.Step) {
			r.steps = append(r.steps, addedStep{strategyID, step})
		},
		LoadGraph: func(id string) { r.loadedGraphs = append(r.loadedGraphs, id) },
		GetStrategy: func(_ context.Context, id string) (*domain.Strategy, error) {
			r.getStrategyCalls = append(r.getStrategyCalls, id)
			return r.getStrategyResult, r.getStrategyErr
		},
		ApplyGraphSnapshot: func(snapshot map[string]any) {
			r.appliedSnapshots = append(r.appliedSnapshots, snapshot)
		},
		SnapshotStrategy: func(id string) *StrategySnapshot {
			if r.snapshotSource == nil {
				return nil
			}
			return &StrategySnapshot{Strategy: r.snapshotSource.Clone()}
		},
	}
}

// fakeLive records everything forwarded to the live tracker.
type fakeLive struct {
	reasoning   []string
	activeCalls [][]domain.ToolCall
	taskStarts  []string
	taskEnds    map[string]string
	callStarts  map[string][]domain.ToolCall
	callEnds    map[string][]string
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		taskEnds:   make(map[string]string),
		callStarts: make(map[string][]domain.ToolCall),
		callEnds:   make(map[string][]string),
	}
}

func (f *fakeLive) SetReasoning(text string) { f.reasoning = append(f.reasoning, text) }
func (f *fakeLive) SetActiveToolCalls(calls []domain.ToolCall) {
	f.activeCalls = append(f.activeCalls, calls)
}
func (f *fakeLive) SubKaniTaskStarted(task string) { f.taskStarts = append(f.taskStarts, task) }
func (f *fakeLive) SubKaniToolCallStarted(task string, call domain.ToolCall) {
	f.callStarts[task] = append(f.callStarts[task], call)
}
func (f *fakeLive) SubKaniToolCallEnded(task, callID string, _ any) {
	f.callEnds[task] = append(f.callEnds[task], callID)
}
func (f *fakeLive) SubKaniTaskEnded(task, status string) { f.taskEnds[task] = status }

type harness struct {
	ctx        *Context
	transcript *Direct[[]Message]
	undo       *Direct[map[int]*StrategySnapshot]
	ops        *recordingOps
	live       *fakeLive
	progress   []*domain.OptimizationProgress
	titles     []string
	apiErrors  []string
	artifacts  []map[string]any
	buildReqs  []string
	sessions   []string
}

// newHarness wires a context with direct (non-batching) sinks and a
// synchronous spawn so detached work runs inline.
func newHarness() *harness {
	h := &harness{
		transcript: NewDirect[[]Message](nil),
		undo:       NewDirect(map[int]*StrategySnapshot{}),
		ops:        &recordingOps{},
		live:       newFakeLive(),
	}
	c := NewContext(h.transcript, h.undo)
	c.Strategy = h.ops.ops()
	c.Live = h.live
	c.ParseToolArguments = DefaultParseToolArguments
	c.ParseToolResult = DefaultParseToolResult
	c.SetOptimizationProgress = func(p *domain.OptimizationProgress) { h.progress = append(h.progress, p) }
	c.Hooks = Hooks{
		OnPlanSessionID:        func(id string) { h.sessions = append(h.sessions, id) },
		OnArtifactUpdate:       func(a map[string]any) { h.artifacts = append(h.artifacts, a) },
		OnExecutorBuildRequest: func(m string) { h.buildReqs = append(h.buildReqs, m) },
		OnTitleUpdate:          func(title string) { h.titles = append(h.titles, title) },
		OnAPIError:             func(m string) { h.apiErrors = append(h.apiErrors, m) },
	}
	c.Spawn = func(fn func()) { fn() }
	h.ctx = c
	return h
}

func (h *harness) messages() []Message {
	return h.transcript.State()
}
