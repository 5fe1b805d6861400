package events

import (
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestChunkRoundTrip(t *testing.T) {
	ts := strfmt.DateTime(time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC))
	in := ContentPartChunk{
		ConversationID: "conv-1",
		ExchangeID:     "exch-1",
		MessageID:      "msg-1",
		ContentPartID:  "part-1",
		Data:           "Hello",
		Timestamp:      ts,
	}

	data, err := ToJSON(in)
	require.NoError(t, err)
	assert.Equal(t, TypeContentPartChunk, gjson.GetBytes(data, "type").String())

	out, err := FromJSON(data)
	require.NoError(t, err)
	chunk, ok := out.(ContentPartChunk)
	require.True(t, ok, "expected a ContentPartChunk, got %T", out)
	assert.Equal(t, in.ConversationID, chunk.ConversationID)
	assert.Equal(t, in.ExchangeID, chunk.ExchangeID)
	assert.Equal(t, in.MessageID, chunk.MessageID)
	assert.Equal(t, in.ContentPartID, chunk.ContentPartID)
	assert.Equal(t, in.Data, chunk.Data)
	assert.Equal(t, in.Timestamp.String(), chunk.Timestamp.String())
}

func TestStartErrorScope(t *testing.T) {
	in := StartError{
		ConversationID: "conv-1",
		Scope:          Scope{ExchangeID: "exch-1", MessageID: "msg-1", ToolCallID: "tc-1"},
		ErrorID:        "err-1",
		Message:        "tool exploded",
		Details:        gjson.Parse(`{"cause":"timeout"}`),
	}

	data, err := ToJSON(in)
	require.NoError(t, err)

	// scope ids are flattened onto the envelope, absent ids stay off the wire
	assert.Equal(t, "exch-1", gjson.GetBytes(data, "exchange_id").String())
	assert.Equal(t, "tc-1", gjson.GetBytes(data, "tool_call_id").String())
	assert.False(t, gjson.GetBytes(data, "content_part_id").Exists())
	assert.Equal(t, "timeout", gjson.GetBytes(data, "details.cause").String())

	out, err := FromJSON(data)
	require.NoError(t, err)
	se, ok := out.(StartError)
	require.True(t, ok)
	assert.Equal(t, in.Scope, se.Scope)
	assert.Equal(t, in.ErrorID, se.ErrorID)
	assert.Equal(t, in.Message, se.Message)
	assert.False(t, se.Scope.IsSession())
}

func TestSessionScopeIsSession(t *testing.T) {
	assert.True(t, Scope{}.IsSession())
	assert.False(t, Scope{InputStreamID: "is-1"}.IsSession())
}

func TestOptionalFieldsOmitted(t *testing.T) {
	data, err := ToJSON(StartToolCall{ConversationID: "conv-1", ToolCallID: "tc-1"})
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(data, "exchange_id").Exists())
	assert.False(t, gjson.GetBytes(data, "message_id").Exists())
	assert.False(t, gjson.GetBytes(data, "timestamp").Exists())

	out, err := FromJSON(data)
	require.NoError(t, err)
	tc, ok := out.(StartToolCall)
	require.True(t, ok)
	assert.Empty(t, tc.ExchangeID)
	assert.Empty(t, tc.MessageID)
}

func TestSessionLifecycleRoundTrip(t *testing.T) {
	for _, in := range []Event{
		SessionStarted{ConversationID: "conv-1"},
		SessionEnding{ConversationID: "conv-1", Reason: "idle"},
		EndSession{ConversationID: "conv-1"},
		LabelUpdated{ConversationID: "conv-1", Label: "Trip planning"},
	} {
		data, err := ToJSON(in)
		require.NoError(t, err)
		out, err := FromJSON(data)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestMetaEventPayload(t *testing.T) {
	in := MetaEvent{
		ConversationID: "conv-1",
		Payload:        gjson.Parse(`{"latency_ms":12,"model":"small"}`),
	}
	data, err := ToJSON(in)
	require.NoError(t, err)
	assert.Equal(t, int64(12), gjson.GetBytes(data, "payload.latency_ms").Int())

	out, err := FromJSON(data)
	require.NoError(t, err)
	meta, ok := out.(MetaEvent)
	require.True(t, ok)
	assert.Equal(t, "small", meta.Payload.Get("model").String())
}

func TestFromJSONErrors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		_, err := FromJSON([]byte(`{not json`))
		assert.Error(t, err)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"conversation_id":"conv-1"}`))
		assert.ErrorContains(t, err, "type")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"type":"bogus"}`))
		assert.ErrorContains(t, err, "unknown event type")
	})

	t.Run("missing conversation id", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"type":"startExchange","exchange_id":"exch-1"}`))
		assert.ErrorContains(t, err, "conversation_id")
	})

	t.Run("missing nested id", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"type":"startMessage","conversation_id":"conv-1","exchange_id":"exch-1"}`))
		assert.ErrorContains(t, err, "message_id")
	})

	t.Run("invalid timestamp", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"type":"endSession","conversation_id":"conv-1","timestamp":"not-a-time"}`))
		assert.ErrorContains(t, err, "timestamp")
	})
}

func TestToJSONNil(t *testing.T) {
	_, err := ToJSON(nil)
	assert.Error(t, err)
}

func TestWrongDiscriminator(t *testing.T) {
	var e EndExchange
	err := e.UnmarshalJSON([]byte(`{"type":"startExchange","conversation_id":"c","exchange_id":"e"}`))
	assert.ErrorContains(t, err, `expected "endExchange"`)
}
