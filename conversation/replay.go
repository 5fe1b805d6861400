package conversation

import "github.com/casualjim/parley/events"

// Replay rehydrates the session's helper tree from persisted history. It
// synthesizes the exact envelope sequence a live run would have produced,
// start to end per exchange, and feeds it through the session's own dispatch
// path. Handlers registered before the call observe the replay as if it
// happened live. Nothing is emitted to the peer.
func (s *Session) Replay(history []events.HistoricalExchange) {
	for _, ev := range replayEvents(s.id, history) {
		s.Dispatch(ev)
	}
}

func replayEvents(conversationID string, history []events.HistoricalExchange) []events.Event {
	var out []events.Event
	for _, exchange := range history {
		out = append(out, events.StartExchange{
			ConversationID: conversationID,
			ExchangeID:     exchange.ExchangeID,
			Timestamp:      now(),
		})
		for _, msg := range exchange.Messages {
			out = append(out, events.StartMessage{
				ConversationID: conversationID,
				ExchangeID:     exchange.ExchangeID,
				MessageID:      msg.MessageID,
				Role:           msg.Role,
				Timestamp:      now(),
			})
			for _, part := range msg.ContentParts {
				out = append(out,
					events.StartContentPart{
						ConversationID: conversationID,
						ExchangeID:     exchange.ExchangeID,
						MessageID:      msg.MessageID,
						ContentPartID:  part.ContentPartID,
						ContentType:    part.ContentType,
						Timestamp:      now(),
					},
					events.ContentPartChunk{
						ConversationID: conversationID,
						ExchangeID:     exchange.ExchangeID,
						MessageID:      msg.MessageID,
						ContentPartID:  part.ContentPartID,
						Data:           part.Data,
						Timestamp:      now(),
					},
					events.EndContentPart{
						ConversationID: conversationID,
						ExchangeID:     exchange.ExchangeID,
						MessageID:      msg.MessageID,
						ContentPartID:  part.ContentPartID,
						Timestamp:      now(),
					},
				)
			}
			for _, call := range msg.ToolCalls {
				out = append(out,
					events.StartToolCall{
						ConversationID: conversationID,
						ExchangeID:     exchange.ExchangeID,
						MessageID:      msg.MessageID,
						ToolCallID:     call.ToolCallID,
						Name:           call.Name,
						Arguments:      call.Arguments,
						Timestamp:      now(),
					},
					events.EndToolCall{
						ConversationID: conversationID,
						ExchangeID:     exchange.ExchangeID,
						MessageID:      msg.MessageID,
						ToolCallID:     call.ToolCallID,
						Output:         call.Output,
						Timestamp:      now(),
					},
				)
			}
			out = append(out, events.EndMessage{
				ConversationID: conversationID,
				ExchangeID:     exchange.ExchangeID,
				MessageID:      msg.MessageID,
				Timestamp:      now(),
			})
		}
		out = append(out, events.EndExchange{
			ConversationID: conversationID,
			ExchangeID:     exchange.ExchangeID,
			Timestamp:      now(),
		})
	}
	return out
}
