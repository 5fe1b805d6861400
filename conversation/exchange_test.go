package conversation

import (
	"testing"

	"github.com/casualjim/parley/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeMessageCompletedSnapshot(t *testing.T) {
	_, session, _ := newTestSession(t)
	x, err := session.StartExchange(WithExchangeID("e1"))
	require.NoError(t, err)

	var snapshots []MessageSnapshot
	x.OnMessageCompleted(func(s MessageSnapshot) { snapshots = append(snapshots, s) })

	base := events.StartMessage{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", Role: "assistant", Timestamp: now()}
	session.Dispatch(base)
	session.Dispatch(events.StartContentPart{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", ContentPartID: "p1", ContentType: "text/markdown", Timestamp: now()})
	session.Dispatch(events.ContentPartChunk{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", ContentPartID: "p1", Data: "Hello ", Timestamp: now()})
	session.Dispatch(events.ContentPartChunk{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", ContentPartID: "p1", Data: "world", Timestamp: now()})
	session.Dispatch(events.EndContentPart{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", ContentPartID: "p1", Timestamp: now()})
	session.Dispatch(events.StartToolCall{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", ToolCallID: "tc1", Name: "search", Arguments: `{"q":"go"}`, Timestamp: now()})
	session.Dispatch(events.EndToolCall{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", ToolCallID: "tc1", Output: `{"hits":3}`, Timestamp: now()})
	session.Dispatch(events.EndMessage{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", Timestamp: now()})

	require.Len(t, snapshots, 1)
	snap := snapshots[0]
	assert.Equal(t, "m1", snap.MessageID)
	assert.Equal(t, "assistant", snap.Role)
	require.Len(t, snap.ContentParts, 1)
	assert.Equal(t, "p1", snap.ContentParts[0].ContentPartID)
	assert.Equal(t, "text/markdown", snap.ContentParts[0].ContentType)
	assert.Equal(t, "Hello world", snap.ContentParts[0].Data)
	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, "tc1", snap.ToolCalls[0].ToolCallID)
	assert.Equal(t, "search", snap.ToolCalls[0].Name)
	assert.Equal(t, `{"hits":3}`, snap.ToolCalls[0].Output)

	// a duplicate end never produces a second snapshot
	session.Dispatch(events.EndMessage{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", Timestamp: now()})
	assert.Len(t, snapshots, 1)
}

func TestExchangeSendMessageWithContentPart(t *testing.T) {
	_, session, sink := newTestSession(t)
	x, err := session.StartExchange(WithExchangeID("e1"))
	require.NoError(t, err)

	require.NoError(t, x.SendMessageWithContentPart("hi there", WithRole("assistant")))

	assert.Equal(t, []string{
		events.TypeStartExchange,
		events.TypeStartMessage,
		events.TypeStartContentPart,
		events.TypeContentPartChunk,
		events.TypeEndContentPart,
		events.TypeEndMessage,
	}, sink.types())

	start, ok := sink.events[1].(events.StartMessage)
	require.True(t, ok)
	assert.Equal(t, "assistant", start.Role)
	chunk, ok := sink.events[3].(events.ContentPartChunk)
	require.True(t, ok)
	assert.Equal(t, "hi there", chunk.Data)
}

func TestExchangeEndIsSingleFire(t *testing.T) {
	_, session, _ := newTestSession(t)
	x, err := session.StartExchange()
	require.NoError(t, err)

	require.NoError(t, x.SendEnd())
	require.ErrorIs(t, x.SendEnd(), ErrHelperEnded)

	_, err = x.StartMessage()
	require.ErrorIs(t, err, ErrHelperEnded)

	require.NoError(t, x.SendErrorEnd("err_1"))
}

func TestExchangeDefaultRole(t *testing.T) {
	_, session, sink := newTestSession(t)
	x, err := session.StartExchange()
	require.NoError(t, err)

	msg, err := x.StartMessage()
	require.NoError(t, err)
	assert.Equal(t, DefaultRole, msg.Role())

	start, ok := sink.events[1].(events.StartMessage)
	require.True(t, ok)
	assert.Equal(t, DefaultRole, start.Role)
}

func TestExchangeWithMessageSkipsEndOnFailure(t *testing.T) {
	_, session, sink := newTestSession(t)
	x, err := session.StartExchange()
	require.NoError(t, err)

	boom := assert.AnError
	err = x.WithMessage(func(*Message) error { return boom })
	require.ErrorIs(t, err, boom)

	// no endMessage follows the failed callback
	assert.Equal(t, []string{events.TypeStartExchange, events.TypeStartMessage}, sink.types())
}

func TestExchangeErrorScopeIsInherited(t *testing.T) {
	_, session, _ := newTestSession(t, WithEcho(true))
	x, err := session.StartExchange(WithExchangeID("e1"))
	require.NoError(t, err)

	require.NoError(t, session.SendErrorStart(ProtocolError{ID: "err_1", Message: "capacity"}))

	assert.True(t, session.InErrorScope())
	assert.True(t, x.InErrorScope())

	require.NoError(t, session.SendErrorEnd("err_1"))
	assert.False(t, session.InErrorScope())
	assert.False(t, x.InErrorScope())
}

func TestExchangeLocalErrorRegistry(t *testing.T) {
	_, session, _ := newTestSession(t, WithEcho(true))
	x, err := session.StartExchange(WithExchangeID("e1"))
	require.NoError(t, err)

	var opened, closed []string
	x.OnErrorStart(func(e events.StartError) { opened = append(opened, e.ErrorID) })
	x.OnErrorEnd(func(e events.EndError) { closed = append(closed, e.ErrorID) })

	require.NoError(t, x.SendErrorStart(ProtocolError{ID: "err_1", Message: "tool exploded"}))
	assert.Equal(t, []string{"err_1"}, opened)
	assert.True(t, x.InErrorScope())
	assert.False(t, session.InErrorScope())

	require.NoError(t, x.SendErrorEnd("err_1"))
	assert.Equal(t, []string{"err_1"}, closed)
	assert.False(t, x.InErrorScope())
}
