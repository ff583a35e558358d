package reconcile

import (
	"github.com/openbiome/stratagem/internal/domain"
)

// Sentinel values for Session index fields. indexPending marks an
// append that has been requested but not yet applied by the sink.
const (
	indexNone    = -1
	indexPending = -2
)

// Session tracks the streaming cursor for one conversational turn.
type Session struct {
	streamingIndex     int
	streamingMessageID string

	// turnIndex outlives streamingIndex: it survives finalize so
	// late turn-scoped events can still find their owner.
	turnIndex int

	reasoning    string
	optimization *domain.OptimizationProgress

	undo        *StrategySnapshot
	undoApplied bool
}

func NewSession() *Session {
	return &Session{
		streamingIndex: indexNone,
		turnIndex:      indexNone,
	}
}

func (s *Session) StreamingIndex() int        { return s.streamingIndex }
func (s *Session) StreamingMessageID() string { return s.streamingMessageID }
func (s *Session) TurnIndex() int             { return s.turnIndex }
func (s *Session) Reasoning() string          { return s.reasoning }

// CaptureUndo stores a snapshot unless one is already pending this
// turn. First capture wins.
func (s *Session) CaptureUndo(snap *StrategySnapshot) {
	if s.undo != nil || snap == nil {
		return
	}
	s.undo = snap
	s.undoApplied = false
}

// HasUndo reports whether a snapshot is pending.
func (s *Session) HasUndo() bool {
	return s.undo != nil
}

// MarkUndoApplied records that a structural change happened since
// capture.
func (s *Session) MarkUndoApplied() {
	if s.undo != nil {
		s.undoApplied = true
	}
}

// ConsumeUndo reads and clears the pending snapshot. Called exactly
// once per turn, at finalize.
func (s *Session) ConsumeUndo() (snap *StrategySnapshot, applied bool) {
	snap, applied = s.undo, s.undoApplied
	s.undo = nil
	s.undoApplied = false
	return snap, applied
}

// TurnBuffers accumulate per-turn state between turn start and
// finalize. The three message buffers are drained into the finalized
// assistant message; the sub-agent maps are snapshotted from.
type TurnBuffers struct {
	ToolCalls []domain.ToolCall
	Citations []map[string]any
	Artifacts []map[string]any

	SubKaniCalls  map[string][]domain.ToolCall
	SubKaniStatus map[string]string
}

func NewTurnBuffers() *TurnBuffers {
	return &TurnBuffers{
		SubKaniCalls:  make(map[string][]domain.ToolCall),
		SubKaniStatus: make(map[string]string),
	}
}

// snapshotSubKani builds an immutable copy of sub-agent activity, or
// nil when no delegated call happened this turn.
func (b *TurnBuffers) snapshotSubKani() *SubKaniActivity {
	total := 0
	for _, calls := range b.SubKaniCalls {
		total += len(calls)
	}
	if total == 0 {
		return nil
	}
	calls := make(map[string][]domain.ToolCall, len(b.SubKaniCalls))
	for task, list := range b.SubKaniCalls {
		copied := make([]domain.ToolCall, len(list))
		copy(copied, list)
		calls[task] = copied
	}
	status := make(map[string]string, len(b.SubKaniStatus))
	for task, st := range b.SubKaniStatus {
		status[task] = st
	}
	return &SubKaniActivity{CallsByTask: calls, StatusByTask: status}
}

// drainMessageBuffers copies the three message buffers and empties
// them. Empty buffers yield nil so a finalize with no new data never
// overwrites prior non-empty message fields.
func (b *TurnBuffers) drainMessageBuffers() (calls []domain.ToolCall, citations, artifacts []map[string]any) {
	if len(b.ToolCalls) > 0 {
		calls = make([]domain.ToolCall, len(b.ToolCalls))
		copy(calls, b.ToolCalls)
	}
	if len(b.Citations) > 0 {
		citations = make([]map[string]any, len(b.Citations))
		copy(citations, b.Citations)
	}
	if len(b.Artifacts) > 0 {
		artifacts = make([]map[string]any, len(b.Artifacts))
		copy(artifacts, b.Artifacts)
	}
	b.ToolCalls = nil
	b.Citations = nil
	b.Artifacts = nil
	return calls, citations, artifacts
}
