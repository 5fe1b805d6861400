package parley

import (
	"context"

	"github.com/casualjim/parley/conversation"
	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/transport"
)

// Engine wires a conversation manager to a transport multiplexer: session
// emits flow out through the mux, inbound envelopes and synthetic transport
// errors flow back into the manager's dispatch.
type Engine struct {
	manager *conversation.Manager
	mux     *transport.Mux
}

// New creates an engine over the given transport.
func New(t transport.Transport) *Engine {
	e := &Engine{}
	e.mux = transport.NewMux(t, func(ev events.Event) {
		e.manager.Dispatch(ev)
	})
	e.manager = conversation.NewManager(func(ev events.Event) error {
		return e.mux.EmitEvent(context.Background(), ev)
	})
	return e
}

// Manager returns the conversation manager.
func (e *Engine) Manager() *conversation.Manager {
	return e.manager
}

// StartSession registers a new session keyed by conversation id.
func (e *Engine) StartSession(options ...conversation.SessionOption) (*conversation.Session, error) {
	return e.manager.StartSession(options...)
}

// Session looks up a session by conversation id.
func (e *Engine) Session(conversationID string) (*conversation.Session, bool) {
	return e.manager.Session(conversationID)
}

// Status returns the transport's connection status.
func (e *Engine) Status() transport.ConnectionStatus {
	return e.mux.Status()
}

// OnStatusChanged registers a connection status observer.
func (e *Engine) OnStatusChanged(fn func(transport.ConnectionStatus)) func() {
	return e.mux.OnStatusChanged(fn)
}

// Close deletes every session and tears down the transport.
func (e *Engine) Close() error {
	e.manager.Close()
	return e.mux.Disconnect()
}
