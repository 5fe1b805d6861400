package events

import (
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Wire discriminators. Every envelope serializes with a "type" field holding
// one of these values.
const (
	TypeSessionStarted   = "sessionStarted"
	TypeSessionEnding    = "sessionEnding"
	TypeEndSession       = "endSession"
	TypeMetaEvent        = "metaEvent"
	TypeLabelUpdated     = "labelUpdated"
	TypeStartExchange    = "startExchange"
	TypeEndExchange      = "endExchange"
	TypeStartMessage     = "startMessage"
	TypeEndMessage       = "endMessage"
	TypeStartContentPart = "startContentPart"
	TypeContentPartChunk = "contentPartChunk"
	TypeEndContentPart   = "endContentPart"
	TypeStartInputStream = "startInputStream"
	TypeInputStreamChunk = "inputStreamChunk"
	TypeEndInputStream   = "endInputStream"
	TypeStartToolCall    = "startToolCall"
	TypeEndToolCall      = "endToolCall"
	TypeStartError       = "errorStart"
	TypeEndError         = "errorEnd"
)

var (
	sessionStartedJSON   = []byte(`{"type":"sessionStarted"}`)
	sessionEndingJSON    = []byte(`{"type":"sessionEnding"}`)
	endSessionJSON       = []byte(`{"type":"endSession"}`)
	metaEventJSON        = []byte(`{"type":"metaEvent"}`)
	labelUpdatedJSON     = []byte(`{"type":"labelUpdated"}`)
	startExchangeJSON    = []byte(`{"type":"startExchange"}`)
	endExchangeJSON      = []byte(`{"type":"endExchange"}`)
	startMessageJSON     = []byte(`{"type":"startMessage"}`)
	endMessageJSON       = []byte(`{"type":"endMessage"}`)
	startContentPartJSON = []byte(`{"type":"startContentPart"}`)
	contentPartChunkJSON = []byte(`{"type":"contentPartChunk"}`)
	endContentPartJSON   = []byte(`{"type":"endContentPart"}`)
	startInputStreamJSON = []byte(`{"type":"startInputStream"}`)
	inputStreamChunkJSON = []byte(`{"type":"inputStreamChunk"}`)
	endInputStreamJSON   = []byte(`{"type":"endInputStream"}`)
	startToolCallJSON    = []byte(`{"type":"startToolCall"}`)
	endToolCallJSON      = []byte(`{"type":"endToolCall"}`)
	startErrorJSON       = []byte(`{"type":"errorStart"}`)
	endErrorJSON         = []byte(`{"type":"errorEnd"}`)
)

func setString(data []byte, err error, path, value string) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(data, path, value)
}

func setOptString(data []byte, err error, path, value string) ([]byte, error) {
	if err != nil || value == "" {
		return data, err
	}
	return sjson.SetBytes(data, path, value)
}

func setTimestamp(data []byte, err error, ts strfmt.DateTime) ([]byte, error) {
	if err != nil || ts.IsZero() {
		return data, err
	}
	return sjson.SetBytes(data, "timestamp", ts.String())
}

func setRaw(data []byte, err error, path string, value gjson.Result) ([]byte, error) {
	if err != nil || !value.Exists() {
		return data, err
	}
	return sjson.SetRawBytes(data, path, []byte(value.Raw))
}

func checkType(data []byte, want string) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	tpe := gjson.GetBytes(data, "type")
	if !tpe.Exists() || tpe.String() != want {
		return fmt.Errorf("missing or invalid type, expected %q", want)
	}
	return nil
}

func reqString(data []byte, field string) (string, error) {
	v := gjson.GetBytes(data, field)
	if !v.Exists() {
		return "", fmt.Errorf("missing required field %q", field)
	}
	return v.String(), nil
}

func optString(data []byte, field string) string {
	return gjson.GetBytes(data, field).String()
}

func readTimestamp(data []byte, ts *strfmt.DateTime) error {
	v := gjson.GetBytes(data, "timestamp")
	if !v.Exists() {
		return nil
	}
	if err := ts.UnmarshalText([]byte(v.String())); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	return nil
}

func setScope(data []byte, err error, s Scope) ([]byte, error) {
	data, err = setOptString(data, err, "exchange_id", s.ExchangeID)
	data, err = setOptString(data, err, "message_id", s.MessageID)
	data, err = setOptString(data, err, "content_part_id", s.ContentPartID)
	data, err = setOptString(data, err, "input_stream_id", s.InputStreamID)
	return setOptString(data, err, "tool_call_id", s.ToolCallID)
}

func readScope(data []byte) Scope {
	return Scope{
		ExchangeID:    optString(data, "exchange_id"),
		MessageID:     optString(data, "message_id"),
		ContentPartID: optString(data, "content_part_id"),
		InputStreamID: optString(data, "input_stream_id"),
		ToolCallID:    optString(data, "tool_call_id"),
	}
}

// MarshalJSON implements custom JSON marshaling for SessionStarted.
func (e SessionStarted) MarshalJSON() ([]byte, error) {
	result, err := setString(sessionStartedJSON, nil, "conversation_id", e.ConversationID)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for SessionStarted.
func (e *SessionStarted) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeSessionStarted); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for SessionEnding.
func (e SessionEnding) MarshalJSON() ([]byte, error) {
	result, err := setString(sessionEndingJSON, nil, "conversation_id", e.ConversationID)
	result, err = setOptString(result, err, "reason", e.Reason)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for SessionEnding.
func (e *SessionEnding) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeSessionEnding); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	e.Reason = optString(data, "reason")
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for EndSession.
func (e EndSession) MarshalJSON() ([]byte, error) {
	result, err := setString(endSessionJSON, nil, "conversation_id", e.ConversationID)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for EndSession.
func (e *EndSession) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeEndSession); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for MetaEvent.
func (e MetaEvent) MarshalJSON() ([]byte, error) {
	result, err := setString(metaEventJSON, nil, "conversation_id", e.ConversationID)
	result, err = setRaw(result, err, "payload", e.Payload)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for MetaEvent.
func (e *MetaEvent) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeMetaEvent); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if payload := gjson.GetBytes(data, "payload"); payload.Exists() {
		e.Payload = payload
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for LabelUpdated.
func (e LabelUpdated) MarshalJSON() ([]byte, error) {
	result, err := setString(labelUpdatedJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "label", e.Label)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for LabelUpdated.
func (e *LabelUpdated) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeLabelUpdated); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.Label, err = reqString(data, "label"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for StartExchange.
func (e StartExchange) MarshalJSON() ([]byte, error) {
	result, err := setString(startExchangeJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "exchange_id", e.ExchangeID)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for StartExchange.
func (e *StartExchange) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeStartExchange); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ExchangeID, err = reqString(data, "exchange_id"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for EndExchange.
func (e EndExchange) MarshalJSON() ([]byte, error) {
	result, err := setString(endExchangeJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "exchange_id", e.ExchangeID)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for EndExchange.
func (e *EndExchange) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeEndExchange); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ExchangeID, err = reqString(data, "exchange_id"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for StartMessage.
func (e StartMessage) MarshalJSON() ([]byte, error) {
	result, err := setString(startMessageJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "exchange_id", e.ExchangeID)
	result, err = setString(result, err, "message_id", e.MessageID)
	result, err = setString(result, err, "role", e.Role)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for StartMessage.
func (e *StartMessage) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeStartMessage); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ExchangeID, err = reqString(data, "exchange_id"); err != nil {
		return err
	}
	if e.MessageID, err = reqString(data, "message_id"); err != nil {
		return err
	}
	e.Role = optString(data, "role")
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for EndMessage.
func (e EndMessage) MarshalJSON() ([]byte, error) {
	result, err := setString(endMessageJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "exchange_id", e.ExchangeID)
	result, err = setString(result, err, "message_id", e.MessageID)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for EndMessage.
func (e *EndMessage) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeEndMessage); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ExchangeID, err = reqString(data, "exchange_id"); err != nil {
		return err
	}
	if e.MessageID, err = reqString(data, "message_id"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for StartContentPart.
func (e StartContentPart) MarshalJSON() ([]byte, error) {
	result, err := setString(startContentPartJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "exchange_id", e.ExchangeID)
	result, err = setString(result, err, "message_id", e.MessageID)
	result, err = setString(result, err, "content_part_id", e.ContentPartID)
	result, err = setOptString(result, err, "content_type", e.ContentType)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for StartContentPart.
func (e *StartContentPart) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeStartContentPart); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ExchangeID, err = reqString(data, "exchange_id"); err != nil {
		return err
	}
	if e.MessageID, err = reqString(data, "message_id"); err != nil {
		return err
	}
	if e.ContentPartID, err = reqString(data, "content_part_id"); err != nil {
		return err
	}
	e.ContentType = optString(data, "content_type")
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for ContentPartChunk.
func (e ContentPartChunk) MarshalJSON() ([]byte, error) {
	result, err := setString(contentPartChunkJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "exchange_id", e.ExchangeID)
	result, err = setString(result, err, "message_id", e.MessageID)
	result, err = setString(result, err, "content_part_id", e.ContentPartID)
	result, err = setString(result, err, "data", e.Data)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for ContentPartChunk.
func (e *ContentPartChunk) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeContentPartChunk); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ExchangeID, err = reqString(data, "exchange_id"); err != nil {
		return err
	}
	if e.MessageID, err = reqString(data, "message_id"); err != nil {
		return err
	}
	if e.ContentPartID, err = reqString(data, "content_part_id"); err != nil {
		return err
	}
	if e.Data, err = reqString(data, "data"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for EndContentPart.
func (e EndContentPart) MarshalJSON() ([]byte, error) {
	result, err := setString(endContentPartJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "exchange_id", e.ExchangeID)
	result, err = setString(result, err, "message_id", e.MessageID)
	result, err = setString(result, err, "content_part_id", e.ContentPartID)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for EndContentPart.
func (e *EndContentPart) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeEndContentPart); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ExchangeID, err = reqString(data, "exchange_id"); err != nil {
		return err
	}
	if e.MessageID, err = reqString(data, "message_id"); err != nil {
		return err
	}
	if e.ContentPartID, err = reqString(data, "content_part_id"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for StartInputStream.
func (e StartInputStream) MarshalJSON() ([]byte, error) {
	result, err := setString(startInputStreamJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "input_stream_id", e.InputStreamID)
	result, err = setOptString(result, err, "mime_type", e.MimeType)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for StartInputStream.
func (e *StartInputStream) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeStartInputStream); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.InputStreamID, err = reqString(data, "input_stream_id"); err != nil {
		return err
	}
	e.MimeType = optString(data, "mime_type")
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for InputStreamChunk.
func (e InputStreamChunk) MarshalJSON() ([]byte, error) {
	result, err := setString(inputStreamChunkJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "input_stream_id", e.InputStreamID)
	result, err = setString(result, err, "data", e.Data)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for InputStreamChunk.
func (e *InputStreamChunk) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeInputStreamChunk); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.InputStreamID, err = reqString(data, "input_stream_id"); err != nil {
		return err
	}
	if e.Data, err = reqString(data, "data"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for EndInputStream.
func (e EndInputStream) MarshalJSON() ([]byte, error) {
	result, err := setString(endInputStreamJSON, nil, "conversation_id", e.ConversationID)
	result, err = setString(result, err, "input_stream_id", e.InputStreamID)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for EndInputStream.
func (e *EndInputStream) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeEndInputStream); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.InputStreamID, err = reqString(data, "input_stream_id"); err != nil {
		return err
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for StartToolCall.
func (e StartToolCall) MarshalJSON() ([]byte, error) {
	result, err := setString(startToolCallJSON, nil, "conversation_id", e.ConversationID)
	result, err = setOptString(result, err, "exchange_id", e.ExchangeID)
	result, err = setOptString(result, err, "message_id", e.MessageID)
	result, err = setString(result, err, "tool_call_id", e.ToolCallID)
	result, err = setOptString(result, err, "name", e.Name)
	result, err = setOptString(result, err, "arguments", e.Arguments)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for StartToolCall.
func (e *StartToolCall) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeStartToolCall); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ToolCallID, err = reqString(data, "tool_call_id"); err != nil {
		return err
	}
	e.ExchangeID = optString(data, "exchange_id")
	e.MessageID = optString(data, "message_id")
	e.Name = optString(data, "name")
	e.Arguments = optString(data, "arguments")
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for EndToolCall.
func (e EndToolCall) MarshalJSON() ([]byte, error) {
	result, err := setString(endToolCallJSON, nil, "conversation_id", e.ConversationID)
	result, err = setOptString(result, err, "exchange_id", e.ExchangeID)
	result, err = setOptString(result, err, "message_id", e.MessageID)
	result, err = setString(result, err, "tool_call_id", e.ToolCallID)
	result, err = setOptString(result, err, "output", e.Output)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for EndToolCall.
func (e *EndToolCall) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeEndToolCall); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ToolCallID, err = reqString(data, "tool_call_id"); err != nil {
		return err
	}
	e.ExchangeID = optString(data, "exchange_id")
	e.MessageID = optString(data, "message_id")
	e.Output = optString(data, "output")
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for StartError.
func (e StartError) MarshalJSON() ([]byte, error) {
	result, err := setString(startErrorJSON, nil, "conversation_id", e.ConversationID)
	result, err = setScope(result, err, e.Scope)
	result, err = setString(result, err, "error_id", e.ErrorID)
	result, err = setOptString(result, err, "message", e.Message)
	result, err = setRaw(result, err, "details", e.Details)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for StartError.
func (e *StartError) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeStartError); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ErrorID, err = reqString(data, "error_id"); err != nil {
		return err
	}
	e.Scope = readScope(data)
	e.Message = optString(data, "message")
	if details := gjson.GetBytes(data, "details"); details.Exists() {
		e.Details = details
	}
	return readTimestamp(data, &e.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for EndError.
func (e EndError) MarshalJSON() ([]byte, error) {
	result, err := setString(endErrorJSON, nil, "conversation_id", e.ConversationID)
	result, err = setScope(result, err, e.Scope)
	result, err = setString(result, err, "error_id", e.ErrorID)
	return setTimestamp(result, err, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for EndError.
func (e *EndError) UnmarshalJSON(data []byte) error {
	if err := checkType(data, TypeEndError); err != nil {
		return err
	}
	var err error
	if e.ConversationID, err = reqString(data, "conversation_id"); err != nil {
		return err
	}
	if e.ErrorID, err = reqString(data, "error_id"); err != nil {
		return err
	}
	e.Scope = readScope(data)
	return readTimestamp(data, &e.Timestamp)
}

// ToJSON serializes an envelope for the wire.
func ToJSON(e Event) ([]byte, error) {
	if e == nil {
		return nil, errors.New("cannot marshal nil event")
	}
	switch event := e.(type) {
	case SessionStarted:
		return event.MarshalJSON()
	case SessionEnding:
		return event.MarshalJSON()
	case EndSession:
		return event.MarshalJSON()
	case MetaEvent:
		return event.MarshalJSON()
	case LabelUpdated:
		return event.MarshalJSON()
	case StartExchange:
		return event.MarshalJSON()
	case EndExchange:
		return event.MarshalJSON()
	case StartMessage:
		return event.MarshalJSON()
	case EndMessage:
		return event.MarshalJSON()
	case StartContentPart:
		return event.MarshalJSON()
	case ContentPartChunk:
		return event.MarshalJSON()
	case EndContentPart:
		return event.MarshalJSON()
	case StartInputStream:
		return event.MarshalJSON()
	case InputStreamChunk:
		return event.MarshalJSON()
	case EndInputStream:
		return event.MarshalJSON()
	case StartToolCall:
		return event.MarshalJSON()
	case EndToolCall:
		return event.MarshalJSON()
	case StartError:
		return event.MarshalJSON()
	case EndError:
		return event.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown event type: %T", e)
	}
}

// TypeOf returns the wire discriminator of an envelope, as written in its
// "type" JSON field. Unknown variants yield the empty string.
func TypeOf(e Event) string {
	switch e.(type) {
	case SessionStarted:
		return TypeSessionStarted
	case SessionEnding:
		return TypeSessionEnding
	case EndSession:
		return TypeEndSession
	case MetaEvent:
		return TypeMetaEvent
	case LabelUpdated:
		return TypeLabelUpdated
	case StartExchange:
		return TypeStartExchange
	case EndExchange:
		return TypeEndExchange
	case StartMessage:
		return TypeStartMessage
	case EndMessage:
		return TypeEndMessage
	case StartContentPart:
		return TypeStartContentPart
	case ContentPartChunk:
		return TypeContentPartChunk
	case EndContentPart:
		return TypeEndContentPart
	case StartInputStream:
		return TypeStartInputStream
	case InputStreamChunk:
		return TypeInputStreamChunk
	case EndInputStream:
		return TypeEndInputStream
	case StartToolCall:
		return TypeStartToolCall
	case EndToolCall:
		return TypeEndToolCall
	case StartError:
		return TypeStartError
	case EndError:
		return TypeEndError
	default:
		return ""
	}
}

// FromJSON deserializes a wire envelope into its concrete variant, selected
// by the "type" discriminator.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	tpe := gjson.GetBytes(data, "type")
	if !tpe.Exists() {
		return nil, errors.New("missing required field 'type'")
	}

	switch tpe.String() {
	case TypeSessionStarted:
		var e SessionStarted
		return e, e.UnmarshalJSON(data)
	case TypeSessionEnding:
		var e SessionEnding
		return e, e.UnmarshalJSON(data)
	case TypeEndSession:
		var e EndSession
		return e, e.UnmarshalJSON(data)
	case TypeMetaEvent:
		var e MetaEvent
		return e, e.UnmarshalJSON(data)
	case TypeLabelUpdated:
		var e LabelUpdated
		return e, e.UnmarshalJSON(data)
	case TypeStartExchange:
		var e StartExchange
		return e, e.UnmarshalJSON(data)
	case TypeEndExchange:
		var e EndExchange
		return e, e.UnmarshalJSON(data)
	case TypeStartMessage:
		var e StartMessage
		return e, e.UnmarshalJSON(data)
	case TypeEndMessage:
		var e EndMessage
		return e, e.UnmarshalJSON(data)
	case TypeStartContentPart:
		var e StartContentPart
		return e, e.UnmarshalJSON(data)
	case TypeContentPartChunk:
		var e ContentPartChunk
		return e, e.UnmarshalJSON(data)
	case TypeEndContentPart:
		var e EndContentPart
		return e, e.UnmarshalJSON(data)
	case TypeStartInputStream:
		var e StartInputStream
		return e, e.UnmarshalJSON(data)
	case TypeInputStreamChunk:
		var e InputStreamChunk
		return e, e.UnmarshalJSON(data)
	case TypeEndInputStream:
		var e EndInputStream
		return e, e.UnmarshalJSON(data)
	case TypeStartToolCall:
		var e StartToolCall
		return e, e.UnmarshalJSON(data)
	case TypeEndToolCall:
		var e EndToolCall
		return e, e.UnmarshalJSON(data)
	case TypeStartError:
		var e StartError
		return e, e.UnmarshalJSON(data)
	case TypeEndError:
		var e EndError
		return e, e.UnmarshalJSON(data)
	default:
		return nil, fmt.Errorf("unknown event type %q", tpe.String())
	}
}
