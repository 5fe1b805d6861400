package events

import (
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
)

// Now returns the current UTC time in the envelope timestamp format.
func Now() strfmt.DateTime {
	return strfmt.DateTime(time.Now().UTC())
}

// Event is the closed union of all conversation envelopes. The private marker
// method keeps the variant set exhaustive so routing code can rely on a type
// switch covering every case.
type Event interface {
	conversationEvent()

	// Conversation returns the id of the conversation this envelope belongs to.
	Conversation() string
}

// Scope addresses the node an error envelope targets. All fields are
// optional; an empty scope targets the session itself. A message-level tool
// call sets ExchangeID, MessageID and ToolCallID, a session-level one only
// ToolCallID.
type Scope struct {
	ExchangeID    string `json:"exchange_id,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
	ContentPartID string `json:"content_part_id,omitempty"`
	InputStreamID string `json:"input_stream_id,omitempty"`
	ToolCallID    string `json:"tool_call_id,omitempty"`
}

// IsSession reports whether the scope targets the session node itself.
func (s Scope) IsSession() bool {
	return s == Scope{}
}

// SessionStarted announces that the session for a conversation is live.
type SessionStarted struct {
	ConversationID string          `json:"conversation_id"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (SessionStarted) conversationEvent()     {}
func (e SessionStarted) Conversation() string { return e.ConversationID }

// SessionEnding is a server-driven advisory that the session is about to end.
// The transport layer deprecates the conversation's socket when it sees one.
type SessionEnding struct {
	ConversationID string          `json:"conversation_id"`
	Reason         string          `json:"reason,omitempty"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (SessionEnding) conversationEvent()     {}
func (e SessionEnding) Conversation() string { return e.ConversationID }

// EndSession terminates the session for a conversation.
type EndSession struct {
	ConversationID string          `json:"conversation_id"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (EndSession) conversationEvent()     {}
func (e EndSession) Conversation() string { return e.ConversationID }

// MetaEvent carries an opaque structured payload scoped to the session.
type MetaEvent struct {
	ConversationID string          `json:"conversation_id"`
	Payload        gjson.Result    `json:"payload,omitempty"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (MetaEvent) conversationEvent()     {}
func (e MetaEvent) Conversation() string { return e.ConversationID }

// LabelUpdated announces a new display label for the conversation.
type LabelUpdated struct {
	ConversationID string          `json:"conversation_id"`
	Label          string          `json:"label"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (LabelUpdated) conversationEvent()     {}
func (e LabelUpdated) Conversation() string { return e.ConversationID }

// StartExchange opens one conversational turn.
type StartExchange struct {
	ConversationID string          `json:"conversation_id"`
	ExchangeID     string          `json:"exchange_id"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (StartExchange) conversationEvent()     {}
func (e StartExchange) Conversation() string { return e.ConversationID }

// EndExchange closes a conversational turn.
type EndExchange struct {
	ConversationID string          `json:"conversation_id"`
	ExchangeID     string          `json:"exchange_id"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (EndExchange) conversationEvent()     {}
func (e EndExchange) Conversation() string { return e.ConversationID }

// StartMessage opens a message within an exchange. Role is "user" when the
// sender did not specify one.
type StartMessage struct {
	ConversationID string          `json:"conversation_id"`
	ExchangeID     string          `json:"exchange_id"`
	MessageID      string          `json:"message_id"`
	Role           string          `json:"role"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (StartMessage) conversationEvent()     {}
func (e StartMessage) Conversation() string { return e.ConversationID }

// EndMessage closes a message. Observing one materializes the completed
// message snapshot at the exchange level.
type EndMessage struct {
	ConversationID string          `json:"conversation_id"`
	ExchangeID     string          `json:"exchange_id"`
	MessageID      string          `json:"message_id"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (EndMessage) conversationEvent()     {}
func (e EndMessage) Conversation() string { return e.ConversationID }

// StartContentPart opens a chunked unit of message data.
type StartContentPart struct {
	ConversationID string          `json:"conversation_id"`
	ExchangeID     string          `json:"exchange_id"`
	MessageID      string          `json:"message_id"`
	ContentPartID  string          `json:"content_part_id"`
	ContentType    string          `json:"content_type,omitempty"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (StartContentPart) conversationEvent()     {}
func (e StartContentPart) Conversation() string { return e.ConversationID }

// ContentPartChunk carries one streamed fragment of a content part.
type ContentPartChunk struct {
	ConversationID string          `json:"conversation_id"`
	ExchangeID     string          `json:"exchange_id"`
	MessageID      string          `json:"message_id"`
	ContentPartID  string          `json:"content_part_id"`
	Data           string          `json:"data"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (ContentPartChunk) conversationEvent()     {}
func (e ContentPartChunk) Conversation() string { return e.ConversationID }

// EndContentPart closes a content part.
type EndContentPart struct {
	ConversationID string          `json:"conversation_id"`
	ExchangeID     string          `json:"exchange_id"`
	MessageID      string          `json:"message_id"`
	ContentPartID  string          `json:"content_part_id"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (EndContentPart) conversationEvent()     {}
func (e EndContentPart) Conversation() string { return e.ConversationID }

// StartInputStream opens an asynchronous input stream on the session.
type StartInputStream struct {
	ConversationID string          `json:"conversation_id"`
	InputStreamID  string          `json:"input_stream_id"`
	MimeType       string          `json:"mime_type,omitempty"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (StartInputStream) conversationEvent()     {}
func (e StartInputStream) Conversation() string { return e.ConversationID }

// InputStreamChunk carries one streamed fragment of an input stream.
type InputStreamChunk struct {
	ConversationID string          `json:"conversation_id"`
	InputStreamID  string          `json:"input_stream_id"`
	Data           string          `json:"data"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (InputStreamChunk) conversationEvent()     {}
func (e InputStreamChunk) Conversation() string { return e.ConversationID }

// EndInputStream closes an input stream.
type EndInputStream struct {
	ConversationID string          `json:"conversation_id"`
	InputStreamID  string          `json:"input_stream_id"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (EndInputStream) conversationEvent()     {}
func (e EndInputStream) Conversation() string { return e.ConversationID }

// StartToolCall opens a tool invocation. With ExchangeID and MessageID set it
// belongs to a message; with both empty it is an asynchronous session-level
// call.
type StartToolCall struct {
	ConversationID string          `json:"conversation_id"`
	ExchangeID     string          `json:"exchange_id,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	ToolCallID     string          `json:"tool_call_id"`
	Name           string          `json:"name,omitempty"`
	Arguments      string          `json:"arguments,omitempty"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (StartToolCall) conversationEvent()     {}
func (e StartToolCall) Conversation() string { return e.ConversationID }

// EndToolCall closes a tool invocation with its final output.
type EndToolCall struct {
	ConversationID string          `json:"conversation_id"`
	ExchangeID     string          `json:"exchange_id,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	ToolCallID     string          `json:"tool_call_id"`
	Output         string          `json:"output,omitempty"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (EndToolCall) conversationEvent()     {}
func (e EndToolCall) Conversation() string { return e.ConversationID }

// StartError opens a protocol error scoped to any node level. The error is
// data, not a Go error: it travels through dispatch like every other
// envelope and stays open until the matching EndError arrives.
type StartError struct {
	ConversationID string          `json:"conversation_id"`
	Scope          Scope           `json:"scope,omitempty"`
	ErrorID        string          `json:"error_id"`
	Message        string          `json:"message,omitempty"`
	Details        gjson.Result    `json:"details,omitempty"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (StartError) conversationEvent()     {}
func (e StartError) Conversation() string { return e.ConversationID }

// EndError closes a previously opened protocol error.
type EndError struct {
	ConversationID string          `json:"conversation_id"`
	Scope          Scope           `json:"scope,omitempty"`
	ErrorID        string          `json:"error_id"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (EndError) conversationEvent()     {}
func (e EndError) Conversation() string { return e.ConversationID }
