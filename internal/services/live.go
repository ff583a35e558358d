package services

import (
	"sync"

	"github.com/openbiome/stratagem/internal/domain"
)

// LiveView is a read-only snapshot of the in-flight turn state.
type LiveView struct {
	Reasoning       string                       `json:"reasoning,omitempty"`
	ActiveToolCalls []domain.ToolCall            `json:"active_tool_calls,omitempty"`
	SubKaniCalls    map[string][]domain.ToolCall `json:"sub_kani_calls,omitempty"`
	SubKaniStatus   map[string]string            `json:"sub_kani_status,omitempty"`
}

// liveState implements reconcile.LiveTracker: ephemeral per-turn
// state the UI polls between transcript updates.
type liveState struct {
	mu            sync.Mutex
	reasoning     string
	activeCalls   []domain.ToolCall
	subKaniCalls  map[string][]domain.ToolCall
	subKaniStatus map[string]string
}

func newLiveState() *liveState {
	return &liveState{
		subKaniCalls:  make(map[string][]domain.ToolCall),
		subKaniStatus: make(map[string]string),
	}
}

func (l *liveState) SetReasoning(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasoning = text
}

func (l *liveState) SetActiveToolCalls(calls []domain.ToolCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeCalls = calls
}

func (l *liveState) SubKaniTaskStarted(task string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subKaniStatus[task] = "running"
}

func (l *liveState) SubKaniToolCallStarted(task string, call domain.ToolCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subKaniCalls[task] = append(l.subKaniCalls[task], call)
}

func (l *liveState) SubKaniToolCallEnded(task, callID string, result any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	calls := l.subKaniCalls[task]
	for i := range calls {
		if calls[i].ID == callID {
			calls[i].Result = result
			return
		}
	}
}

func (l *liveState) SubKaniTaskEnded(task, status string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subKaniStatus[task] = status
}

// reset clears turn-scoped state at turn start.
func (l *liveState) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasoning = ""
	l.activeCalls = nil
	l.subKaniCalls = make(map[string][]domain.ToolCall)
	l.subKaniStatus = make(map[string]string)
}

func (l *liveState) View() LiveView {
	l.mu.Lock()
	defer l.mu.Unlock()
	view := LiveView{Reasoning: l.reasoning}
	if len(l.activeCalls) > 0 {
		view.ActiveToolCalls = append([]domain.ToolCall(nil), l.activeCalls...)
	}
	if len(l.subKaniCalls) > 0 {
		view.SubKaniCalls = make(map[string][]domain.ToolCall, len(l.subKaniCalls))
		for task, calls := range l.subKaniCalls {
			view.SubKaniCalls[task] = append([]domain.ToolCall(nil), calls...)
		}
	}
	if len(l.subKaniStatus) > 0 {
		view.SubKaniStatus = make(map[string]string, len(l.subKaniStatus))
		for task, st := range l.subKaniStatus {
			view.SubKaniStatus[task] = st
		}
	}
	return view
}
