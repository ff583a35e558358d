package protocol

type MessageType uint16

const (
	TypeError          MessageType = 1
	TypeUserMessage    MessageType = 2
	TypeAssistantMsg   MessageType = 3
	TypeChatEvent      MessageType = 4
	TypeAck            MessageType = 8
	TypeGenRequest     MessageType = 33
	TypeTitleUpdate    MessageType = 35
	TypeSubscribe      MessageType = 40
	TypeUnsubscribe    MessageType = 41
	TypeSubscribeAck   MessageType = 42
	TypeUnsubscribeAck MessageType = 43

	TypeTranscriptSync     MessageType = 60
	TypeOptimizationUpdate MessageType = 61
	TypeStrategyUpdate     MessageType = 62
	TypeExecutorBuild      MessageType = 63

	TypeAgentHeartbeat     MessageType = 72
	TypeGenerationComplete MessageType = 80
)

type Error struct {
	Code           string `msgpack:"code" json:"code"`
	Message        string `msgpack:"message" json:"message"`
	ConversationID string `msgpack:"conversationId,omitempty" json:"conversationId,omitempty"`
}

type UserMessage struct {
	ID             string `msgpack:"id" json:"id"`
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Content        string `msgpack:"content" json:"content"`
	PreviousID     string `msgpack:"previousId,omitempty" json:"previousId,omitempty"`
}

type AssistantMessage struct {
	ID             string `msgpack:"id" json:"id"`
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Content        string `msgpack:"content" json:"content"`
	PreviousID     string `msgpack:"previousId,omitempty" json:"previousId,omitempty"`
	Reasoning      string `msgpack:"reasoning,omitempty" json:"reasoning,omitempty"`
	Timestamp      int64  `msgpack:"timestamp,omitempty" json:"timestamp,omitempty"`
}

type Ack struct {
	ID             string `msgpack:"id" json:"id"`
	ConversationID string `msgpack:"conversationId,omitempty" json:"conversationId,omitempty"`
}

// GenRequest asks the agent to produce the next assistant turn.
type GenRequest struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	MessageID      string `msgpack:"messageId" json:"messageId"`
	SiteID         string `msgpack:"siteId,omitempty" json:"siteId,omitempty"`
	StrategyID     string `msgpack:"strategyId,omitempty" json:"strategyId,omitempty"`
}

// ExecutorBuild forwards a build request from the planning agent to
// the strategy executor backend.
type ExecutorBuild struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Message        string `msgpack:"message" json:"message"`
	StrategyID     string `msgpack:"strategyId,omitempty" json:"strategyId,omitempty"`
}

type TitleUpdate struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Title          string `msgpack:"title" json:"title"`
}

type Subscribe struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Mode           string `msgpack:"mode,omitempty" json:"mode,omitempty"`
}

type SubscribeAck struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Success        bool   `msgpack:"success" json:"success"`
	Error          string `msgpack:"error,omitempty" json:"error,omitempty"`
}

type Unsubscribe struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
}

type GenerationComplete struct {
	MessageID      string `msgpack:"messageId" json:"messageId"`
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Success        bool   `msgpack:"success" json:"success"`
	Error          string `msgpack:"error,omitempty" json:"error,omitempty"`
}
