package events

import json "github.com/goccy/go-json"

// HistoricalExchange is the persisted record of one completed conversational
// turn. Session.Replay expands a slice of these into the exact envelope
// sequence a live exchange would have produced, so consumers cannot tell
// replayed history from a live stream.
type HistoricalExchange struct {
	ExchangeID string              `json:"exchange_id"`
	Messages   []HistoricalMessage `json:"messages,omitempty"`
}

// HistoricalMessage is the persisted record of one message within an
// exchange, with its content parts and tool calls already fully accumulated.
type HistoricalMessage struct {
	MessageID    string                  `json:"message_id"`
	Role         string                  `json:"role,omitempty"`
	ContentParts []HistoricalContentPart `json:"content_parts,omitempty"`
	ToolCalls    []HistoricalToolCall    `json:"tool_calls,omitempty"`
}

// HistoricalContentPart holds the concatenation of every chunk a content
// part streamed between its start and end.
type HistoricalContentPart struct {
	ContentPartID string `json:"content_part_id"`
	ContentType   string `json:"content_type,omitempty"`
	Data          string `json:"data"`
}

// HistoricalToolCall holds a tool invocation and its final output.
type HistoricalToolCall struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Output     string `json:"output,omitempty"`
}

// MarshalHistory serializes persisted exchanges for storage.
func MarshalHistory(history []HistoricalExchange) ([]byte, error) {
	return json.Marshal(history)
}

// UnmarshalHistory parses persisted exchanges back into replayable form.
func UnmarshalHistory(data []byte) ([]HistoricalExchange, error) {
	var history []HistoricalExchange
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}
