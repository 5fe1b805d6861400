package conversation

import (
	"testing"

	"github.com/casualjim/parley/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHistory() []events.HistoricalExchange {
	return []events.HistoricalExchange{
		{
			ExchangeID: "e1",
			Messages: []events.HistoricalMessage{
				{
					MessageID: "m1",
					Role:      "user",
					ContentParts: []events.HistoricalContentPart{
						{ContentPartID: "p1", ContentType: "text/plain", Data: "what's the weather?"},
					},
				},
				{
					MessageID: "m2",
					Role:      "assistant",
					ContentParts: []events.HistoricalContentPart{
						{ContentPartID: "p2", ContentType: "text/markdown", Data: "Sunny, 21C."},
					},
					ToolCalls: []events.HistoricalToolCall{
						{ToolCallID: "tc1", Name: "get_weather", Arguments: `{"city":"berlin"}`, Output: `{"temp":21}`},
					},
				},
			},
		},
	}
}

func TestReplayRebuildsTree(t *testing.T) {
	manager := NewManager(nil)
	session, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	session.Replay(sampleHistory())

	x, ok := session.Exchange("e1")
	require.True(t, ok)
	assert.True(t, x.Ended())

	start, err := x.StartEvent()
	require.NoError(t, err)
	assert.Equal(t, "e1", start.ExchangeID)

	user, ok := x.Message("m1")
	require.True(t, ok)
	assert.Equal(t, "user", user.Role())
	assert.True(t, user.Ended())

	part, ok := user.ContentPart("p1")
	require.True(t, ok)
	assert.Equal(t, "what's the weather?", part.Data())
	assert.True(t, part.Ended())

	reply, ok := x.Message("m2")
	require.True(t, ok)
	call, ok := reply.ToolCall("tc1")
	require.True(t, ok)
	assert.Equal(t, `{"temp":21}`, call.Output())

	callStart, err := call.StartEvent()
	require.NoError(t, err)
	assert.Equal(t, "get_weather", callStart.Name)
	assert.Equal(t, `{"city":"berlin"}`, callStart.Arguments)
}

func TestReplayFiresHandlersLikeLive(t *testing.T) {
	manager := NewManager(nil)
	session, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	var completed []string
	var chunks []string
	session.OnExchangeStart(func(e events.StartExchange) {
		x, ok := session.Exchange(e.ExchangeID)
		require.True(t, ok)
		x.OnMessageCompleted(func(s MessageSnapshot) { completed = append(completed, s.MessageID) })
		x.OnMessageStart(func(m events.StartMessage) {
			msg, ok := x.Message(m.MessageID)
			require.True(t, ok)
			msg.OnContentPartStart(func(p events.StartContentPart) {
				part, ok := msg.ContentPart(p.ContentPartID)
				require.True(t, ok)
				part.OnChunk(func(c events.ContentPartChunk) { chunks = append(chunks, c.Data) })
			})
		})
	})

	session.Replay(sampleHistory())

	assert.Equal(t, []string{"m1", "m2"}, completed)
	assert.Equal(t, []string{"what's the weather?", "Sunny, 21C."}, chunks)
}

func TestReplayMatchesLiveEnvelopeSequence(t *testing.T) {
	sink := &recordingSink{}
	manager := NewManager(sink.emit)
	session, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	// drive the same content live
	err = session.WithExchange(func(x *Exchange) error {
		if err := x.WithMessage(func(m *Message) error {
			return m.WithContentPart(func(p *ContentPart) error {
				return p.SendChunk("what's the weather?")
			}, WithContentPartID("p1"), WithContentType("text/plain"))
		}, WithMessageID("m1"), WithRole("user")); err != nil {
			return err
		}
		return x.WithMessage(func(m *Message) error {
			if err := m.WithContentPart(func(p *ContentPart) error {
				return p.SendChunk("Sunny, 21C.")
			}, WithContentPartID("p2"), WithContentType("text/markdown")); err != nil {
				return err
			}
			return m.WithToolCall(func(*ToolCall) (string, error) {
				return `{"temp":21}`, nil
			}, WithToolCallID("tc1"), WithToolName("get_weather"), WithToolArguments(`{"city":"berlin"}`))
		}, WithMessageID("m2"), WithRole("assistant"))
	}, WithExchangeID("e1"))
	require.NoError(t, err)

	live := sink.types()
	replayed := replayEvents("conv-1", sampleHistory())

	require.Len(t, replayed, len(live))
	for i, ev := range replayed {
		assert.Equal(t, live[i], events.TypeOf(ev), "envelope %d", i)
	}
}
