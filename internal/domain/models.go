// Package domain contains the core data models shared between the
// reconciliation engine, the store, and the API surface.
package domain

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation statuses.
const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
)

// Step kinds understood by the strategy graph.
const (
	StepKindSearch    = "search"
	StepKindTransform = "transform"
	StepKindCombine   = "combine"
)

// Conversation is a persisted chat between a user and the assistant.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	SiteID       string    `json:"site_id"`
	Status       string    `json:"status"`
	TipMessageID string    `json:"tip_message_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StoredMessage is the persisted form of a transcript entry.
type StoredMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           string     `json:"role"`
	Content        string     `json:"content"`
	Reasoning      string     `json:"reasoning,omitempty"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ToolCall records a single tool invocation made by the assistant
// during a turn. Result stays nil until the call completes.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
}

// Strategy is the full form of a query strategy graph.
type Strategy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SiteID      string `json:"site_id,omitempty"`
	RecordType  string `json:"record_type,omitempty"`
	Steps       []Step `json:"steps,omitempty"`
	WDKID       int64  `json:"wdk_id,omitempty"`
	WDKURL      string `json:"wdk_url,omitempty"`
}

// Step is a single node in a strategy graph. Combine steps reference
// their two inputs by step id.
type Step struct {
	ID                   string         `json:"id"`
	Kind                 string         `json:"kind"`
	DisplayName          string         `json:"display_name"`
	SearchName           string         `json:"search_name,omitempty"`
	Operator             string         `json:"operator,omitempty"`
	PrimaryInputStepID   string         `json:"primary_input_step_id,omitempty"`
	SecondaryInputStepID string         `json:"secondary_input_step_id,omitempty"`
	Parameters           map[string]any `json:"parameters,omitempty"`
}

// StrategySummary is the lightweight listing form of a strategy.
type StrategySummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SiteID     string `json:"site_id,omitempty"`
	RecordType string `json:"record_type,omitempty"`
}

// StrategyMeta carries metadata updates for an existing strategy.
// Empty fields mean "leave unchanged".
type StrategyMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	RecordType  string `json:"record_type,omitempty"`
}

// OptimizationRun is a persisted parameter-optimization run.
type OptimizationRun struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	StrategyID     string    `json:"strategy_id,omitempty"`
	Status         string    `json:"status"`
	BestScore      float64   `json:"best_score"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OptimizationTrial is one evaluated parameter set within a run.
type OptimizationTrial struct {
	Number            int            `json:"number"`
	Score             float64        `json:"score"`
	Recall            float64        `json:"recall,omitempty"`
	FalsePositiveRate float64        `json:"false_positive_rate,omitempty"`
	ResultCount       int64          `json:"result_count,omitempty"`
	Parameters        map[string]any `json:"parameters,omitempty"`
}

// OptimizationProgress is the rolling view of an in-flight run as
// reported by progress events: trials accumulate across events.
type OptimizationProgress struct {
	RunID     string              `json:"run_id,omitempty"`
	Status    string              `json:"status,omitempty"`
	BestScore float64             `json:"best_score,omitempty"`
	Trials    []OptimizationTrial `json:"trials,omitempty"`
}

// Clone returns a deep copy of the strategy, including steps and
// their parameter maps.
func (s *Strategy) Clone() *Strategy {
	if s == nil {
		return nil
	}
	out := *s
	if s.Steps != nil {
		out.Steps = make([]Step, len(s.Steps))
		for i, st := range s.Steps {
			out.Steps[i] = st
			if st.Parameters != nil {
				params := make(map[string]any, len(st.Parameters))
				for k, v := range st.Parameters {
					params[k] = v
				}
				out.Steps[i].Parameters = params
			}
		}
	}
	return &out
}
