package slogx

import (
	"log/slog"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Conversation returns a slog.Attr carrying a conversation identifier.
// Every log line produced while routing envelopes includes this attribute so
// log output can be filtered per conversation.
func Conversation(id string) slog.Attr {
	return slog.String("conversation_id", id)
}

// Socket returns a slog.Attr carrying a transport socket identifier.
func Socket(id string) slog.Attr {
	return slog.String("socket_id", id)
}

// EventType returns a slog.Attr carrying the wire discriminator of an
// envelope, as written in its "type" JSON field.
func EventType(tpe string) slog.Attr {
	return slog.String("event_type", tpe)
}
