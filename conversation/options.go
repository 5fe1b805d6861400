package conversation

import (
	"github.com/fogfish/opts"
	"github.com/tidwall/gjson"
)

// SessionOptions configures Manager.StartSession.
type SessionOptions struct {
	// ConversationID keys the session in the manager registry. Required.
	ConversationID string
	// Echo feeds every locally sent envelope back through the session's own
	// dispatch, so local handlers observe self-originated events.
	Echo bool
	// Properties seeds the session's opaque metadata bag.
	Properties map[string]any
}

// SessionOption mutates SessionOptions.
type SessionOption = opts.Option[SessionOptions]

var (
	// WithConversationID sets the conversation id for a new session.
	WithConversationID = opts.ForName[SessionOptions, string]("ConversationID")
	// WithEcho enables local echo for a new session.
	WithEcho = opts.ForName[SessionOptions, bool]("Echo")
	// WithSessionProperties seeds the session properties bag.
	WithSessionProperties = opts.ForName[SessionOptions, map[string]any]("Properties")
)

// ExchangeOptions configures Session.StartExchange.
type ExchangeOptions struct {
	ExchangeID string
}

// ExchangeOption mutates ExchangeOptions.
type ExchangeOption = opts.Option[ExchangeOptions]

// WithExchangeID sets the id of a new exchange; one is generated otherwise.
var WithExchangeID = opts.ForName[ExchangeOptions, string]("ExchangeID")

// MessageOptions configures Exchange.StartMessage.
type MessageOptions struct {
	MessageID string
	Role      string
}

// MessageOption mutates MessageOptions.
type MessageOption = opts.Option[MessageOptions]

var (
	// WithMessageID sets the id of a new message; one is generated otherwise.
	WithMessageID = opts.ForName[MessageOptions, string]("MessageID")
	// WithRole sets the message role. Defaults to "user".
	WithRole = opts.ForName[MessageOptions, string]("Role")
)

// ContentPartOptions configures Message.StartContentPart.
type ContentPartOptions struct {
	ContentPartID string
	ContentType   string
}

// ContentPartOption mutates ContentPartOptions.
type ContentPartOption = opts.Option[ContentPartOptions]

var (
	// WithContentPartID sets the id of a new content part.
	WithContentPartID = opts.ForName[ContentPartOptions, string]("ContentPartID")
	// WithContentType sets the media type of a new content part.
	WithContentType = opts.ForName[ContentPartOptions, string]("ContentType")
)

// InputStreamOptions configures Session.StartInputStream.
type InputStreamOptions struct {
	InputStreamID string
	MimeType      string
}

// InputStreamOption mutates InputStreamOptions.
type InputStreamOption = opts.Option[InputStreamOptions]

var (
	// WithInputStreamID sets the id of a new input stream.
	WithInputStreamID = opts.ForName[InputStreamOptions, string]("InputStreamID")
	// WithMimeType sets the media type of a new input stream.
	WithMimeType = opts.ForName[InputStreamOptions, string]("MimeType")
)

// ToolCallOptions configures Session.StartToolCall and Message.StartToolCall.
type ToolCallOptions struct {
	ToolCallID string
	Name       string
	Arguments  string
}

// ToolCallOption mutates ToolCallOptions.
type ToolCallOption = opts.Option[ToolCallOptions]

var (
	// WithToolCallID sets the id of a new tool call.
	WithToolCallID = opts.ForName[ToolCallOptions, string]("ToolCallID")
	// WithToolName sets the tool name of a new tool call.
	WithToolName = opts.ForName[ToolCallOptions, string]("Name")
	// WithToolArguments sets the serialized arguments of a new tool call.
	WithToolArguments = opts.ForName[ToolCallOptions, string]("Arguments")
)

// ProtocolError is the caller-facing shape of a startError envelope. It is
// data travelling through dispatch, not a Go error.
type ProtocolError struct {
	// ID pairs the start with its end. Generated when empty.
	ID string
	// Message is a human-readable description.
	Message string
	// Details carries optional structured context, e.g. {"cause": ...}.
	Details gjson.Result
}
