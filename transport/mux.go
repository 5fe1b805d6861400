package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/pkg/slogx"
)

// Fixed error identifiers for synthetic envelopes the mux fabricates when
// the physical layer fails.
const (
	ErrIDDisconnected     = "WEBSOCKET_DISCONNECTED"
	ErrIDConnectionFailed = "WEBSOCKET_CONNECTION_FAILED"
)

// DispatchFunc feeds an envelope into the inbound routing path, typically
// conversation.Manager.Dispatch.
type DispatchFunc func(events.Event)

// Mux maps conversation ids onto shared sockets. Sends acquire a socket
// lazily and reuse it until it disconnects; acquisition failures and socket
// drops surface as synthetic startError envelopes through dispatch instead
// of errors to the caller.
type Mux struct {
	mu        sync.Mutex
	transport Transport
	dispatch  DispatchFunc

	// conversation id -> mapped socket
	sockets map[string]Socket
	// socket id -> unregister funcs for the single receive/disconnect
	// handler pair registered on that socket instance
	taps map[string]func()
	// sockets deprecated but still tracked, torn down on Disconnect
	deprecated map[string]Socket
}

// NewMux creates a multiplexer over the given transport. Inbound envelopes
// and synthetic errors are fed through dispatch.
func NewMux(t Transport, dispatch DispatchFunc) *Mux {
	return &Mux{
		transport:  t,
		dispatch:   dispatch,
		sockets:    make(map[string]Socket),
		taps:       make(map[string]func()),
		deprecated: make(map[string]Socket),
	}
}

// EmitEvent writes one envelope to the socket mapped to its conversation,
// acquiring a socket first if none is mapped or the mapped one has since
// disconnected. An endSession envelope releases the mapping after the write.
// Acquisition failures synthesize a startError through dispatch and return
// nil: the protocol surface reports the failure, not the call site.
func (m *Mux) EmitEvent(ctx context.Context, ev events.Event) error {
	conversationID := ev.Conversation()

	sock, err := m.socketFor(ctx, conversationID)
	if err != nil {
		m.dispatch(events.StartError{
			ConversationID: conversationID,
			ErrorID:        ErrIDConnectionFailed,
			Message:        fmt.Sprintf("socket acquisition failed: %v", err),
			Timestamp:      events.Now(),
		})
		return nil
	}

	payload, err := events.ToJSON(ev)
	if err != nil {
		return err
	}
	if err := sock.Emit(EventName, payload); err != nil {
		return err
	}

	if _, ended := ev.(events.EndSession); ended {
		m.ReleaseSocket(conversationID)
	}
	return nil
}

// ReleaseSocket drops the conversation's socket mapping. The next send for
// that conversation re-acquires. Unknown ids are a no-op.
func (m *Mux) ReleaseSocket(conversationID string) {
	m.mu.Lock()
	delete(m.sockets, conversationID)
	m.mu.Unlock()
}

// Disconnect tears down the transport session, clears every mapping, and
// explicitly disconnects sockets that were deprecated but still tracked.
func (m *Mux) Disconnect() error {
	m.mu.Lock()
	for _, off := range m.taps {
		off()
	}
	retired := make([]Socket, 0, len(m.deprecated))
	for _, sock := range m.deprecated {
		retired = append(retired, sock)
	}
	m.sockets = make(map[string]Socket)
	m.taps = make(map[string]func())
	m.deprecated = make(map[string]Socket)
	m.mu.Unlock()

	for _, sock := range retired {
		if err := sock.Disconnect(); err != nil {
			slog.Warn("failed to disconnect retired socket", slogx.Error(err), slogx.Socket(sock.ID()))
		}
	}
	return m.transport.Disconnect()
}

// Status proxies the underlying transport's connection status.
func (m *Mux) Status() ConnectionStatus {
	return m.transport.Status()
}

// OnStatusChanged proxies status subscriptions to the underlying transport.
func (m *Mux) OnStatusChanged(fn func(ConnectionStatus)) func() {
	return m.transport.OnStatusChanged(fn)
}

func (m *Mux) socketFor(ctx context.Context, conversationID string) (Socket, error) {
	m.mu.Lock()
	if sock, ok := m.sockets[conversationID]; ok && sock.Connected() {
		m.mu.Unlock()
		return sock, nil
	}
	m.mu.Unlock()

	sock, err := m.transport.ConnectedSocket(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sockets[conversationID] = sock
	if _, tapped := m.taps[sock.ID()]; !tapped {
		m.taps[sock.ID()] = m.tap(sock)
	}
	m.mu.Unlock()
	return sock, nil
}

// tap registers the receive and disconnect handlers on a socket instance.
// Exactly one pair exists per socket no matter how many conversations map to
// it. Must be called with m.mu held.
func (m *Mux) tap(sock Socket) func() {
	offRecv := sock.On(EventName, func(payload []byte) {
		ev, err := events.FromJSON(payload)
		if err != nil {
			slog.Error("failed to decode inbound envelope", slogx.Error(err), slogx.Socket(sock.ID()))
			return
		}
		if ending, ok := ev.(events.SessionEnding); ok {
			m.deprecateFor(ending.ConversationID)
		}
		m.dispatch(ev)
	})
	offDrop := sock.OnDisconnect(func(reason string) {
		m.fanOutDisconnect(sock, reason)
	})
	return func() {
		offRecv()
		offDrop()
	}
}

// deprecateFor marks the socket currently mapped to the conversation as
// retiring, keeping the mapping so in-flight sends complete.
func (m *Mux) deprecateFor(conversationID string) {
	m.mu.Lock()
	sock, ok := m.sockets[conversationID]
	if ok {
		m.deprecated[sock.ID()] = sock
	}
	m.mu.Unlock()
	if ok {
		m.transport.DeprecateSocket(sock)
	}
}

// fanOutDisconnect synthesizes a disconnect error for every conversation
// mapped to the dropped socket, not just the most recently active one.
func (m *Mux) fanOutDisconnect(sock Socket, reason string) {
	m.mu.Lock()
	var affected []string
	for conversationID, mapped := range m.sockets {
		if mapped.ID() == sock.ID() {
			affected = append(affected, conversationID)
		}
	}
	m.mu.Unlock()

	for _, conversationID := range affected {
		m.dispatch(events.StartError{
			ConversationID: conversationID,
			ErrorID:        ErrIDDisconnected,
			Message:        fmt.Sprintf("socket disconnected: %s", reason),
			Timestamp:      events.Now(),
		})
	}
}
