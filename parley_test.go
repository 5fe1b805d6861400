package parley

import (
	"context"
	"sync"
	"testing"

	"github.com/casualjim/parley/conversation"
	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopbackSocket struct {
	mu   sync.Mutex
	sent [][]byte
	recv []func([]byte)
}

func (s *loopbackSocket) ID() string { return "loopback" }

func (s *loopbackSocket) Emit(_ string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, payload)
	return nil
}

func (s *loopbackSocket) On(_ string, handler func([]byte)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recv = append(s.recv, handler)
	return func() {}
}

func (s *loopbackSocket) OnDisconnect(func(string)) func() { return func() {} }
func (s *loopbackSocket) Connected() bool                  { return true }
func (s *loopbackSocket) Disconnect() error                { return nil }

func (s *loopbackSocket) receive(payload []byte) {
	s.mu.Lock()
	handlers := append([]func([]byte){}, s.recv...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

type loopbackTransport struct {
	socket *loopbackSocket
}

func (t *loopbackTransport) ConnectedSocket(context.Context) (transport.Socket, error) {
	return t.socket, nil
}
func (t *loopbackTransport) DeprecateSocket(transport.Socket) {}
func (t *loopbackTransport) Disconnect() error                { return nil }
func (t *loopbackTransport) Status() transport.ConnectionStatus {
	return transport.StatusConnected
}
func (t *loopbackTransport) OnStatusChanged(func(transport.ConnectionStatus)) func() {
	return func() {}
}

func TestEngineRoundTrip(t *testing.T) {
	sock := &loopbackSocket{}
	engine := New(&loopbackTransport{socket: sock})

	session, err := engine.StartSession(conversation.WithConversationID("conv-1"))
	require.NoError(t, err)

	var exchanges []string
	session.OnExchangeStart(func(e events.StartExchange) {
		exchanges = append(exchanges, e.ExchangeID)
	})

	require.NoError(t, session.SendStarted())
	require.Len(t, sock.sent, 1)

	decoded, err := events.FromJSON(sock.sent[0])
	require.NoError(t, err)
	_, ok := decoded.(events.SessionStarted)
	assert.True(t, ok)

	// the peer opens an exchange
	payload, err := events.ToJSON(events.StartExchange{ConversationID: "conv-1", ExchangeID: "e1", Timestamp: events.Now()})
	require.NoError(t, err)
	sock.receive(payload)

	assert.Equal(t, []string{"e1"}, exchanges)
	got, found := engine.Session("conv-1")
	require.True(t, found)
	_, found = got.Exchange("e1")
	assert.True(t, found)
}
