package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/casualjim/parley/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu           sync.Mutex
	id           string
	connected    bool
	disconnected bool
	sent         [][]byte
	recv         map[string][]func([]byte)
	onDrop       []func(string)
}

func newFakeSocket(id string) *fakeSocket {
	return &fakeSocket{id: id, connected: true, recv: make(map[string][]func([]byte))}
}

func (s *fakeSocket) ID() string { return s.id }

func (s *fakeSocket) Emit(name string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errors.New("socket closed")
	}
	s.sent = append(s.sent, payload)
	return nil
}

func (s *fakeSocket) On(name string, handler func([]byte)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recv[name] = append(s.recv[name], handler)
	return func() {}
}

func (s *fakeSocket) OnDisconnect(handler func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrop = append(s.onDrop, handler)
	return func() {}
}

func (s *fakeSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSocket) Disconnect() error {
	s.mu.Lock()
	s.connected = false
	s.disconnected = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) receive(name string, payload []byte) {
	s.mu.Lock()
	handlers := append([]func([]byte){}, s.recv[name]...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (s *fakeSocket) drop(reason string) {
	s.mu.Lock()
	s.connected = false
	handlers := append([]func(string){}, s.onDrop...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(reason)
	}
}

type fakeTransport struct {
	mu           sync.Mutex
	next         int
	dialErr      error
	acquired     []*fakeSocket
	deprecated   []string
	disconnected bool
}

func (t *fakeTransport) ConnectedSocket(context.Context) (Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	t.next++
	sock := newFakeSocket(fmt.Sprintf("sock-%d", t.next))
	t.acquired = append(t.acquired, sock)
	return sock, nil
}

func (t *fakeTransport) DeprecateSocket(s Socket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deprecated = append(t.deprecated, s.ID())
}

func (t *fakeTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected = true
	return nil
}

func (t *fakeTransport) Status() ConnectionStatus { return StatusConnected }

func (t *fakeTransport) OnStatusChanged(func(ConnectionStatus)) func() { return func() {} }

type dispatchRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *dispatchRecorder) dispatch(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *dispatchRecorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event{}, r.events...)
}

func TestMuxReusesMappedSocket(t *testing.T) {
	tr := &fakeTransport{}
	mux := NewMux(tr, (&dispatchRecorder{}).dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))
	require.NoError(t, mux.EmitEvent(context.Background(), events.MetaEvent{ConversationID: "conv-1", Timestamp: events.Now()}))

	require.Len(t, tr.acquired, 1)
	assert.Len(t, tr.acquired[0].sent, 2)
}

func TestMuxReacquiresAfterDisconnect(t *testing.T) {
	tr := &fakeTransport{}
	mux := NewMux(tr, (&dispatchRecorder{}).dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))
	tr.acquired[0].drop("gone")

	require.NoError(t, mux.EmitEvent(context.Background(), events.MetaEvent{ConversationID: "conv-1", Timestamp: events.Now()}))
	require.Len(t, tr.acquired, 2)
	assert.Len(t, tr.acquired[1].sent, 1)
}

func TestMuxReleasesMappingOnEndSession(t *testing.T) {
	tr := &fakeTransport{}
	mux := NewMux(tr, (&dispatchRecorder{}).dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))
	require.NoError(t, mux.EmitEvent(context.Background(), events.EndSession{ConversationID: "conv-1", Timestamp: events.Now()}))
	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))

	// the end released the mapping, so the third send re-acquired
	require.Len(t, tr.acquired, 2)
}

func TestMuxReleaseSocketUntrackedIsNoop(t *testing.T) {
	tr := &fakeTransport{}
	mux := NewMux(tr, (&dispatchRecorder{}).dispatch)
	mux.ReleaseSocket("never-seen")
}

func TestMuxAcquisitionFailureSynthesizesError(t *testing.T) {
	tr := &fakeTransport{dialErr: errors.New("pool exhausted")}
	rec := &dispatchRecorder{}
	mux := NewMux(tr, rec.dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))

	evs := rec.all()
	require.Len(t, evs, 1)
	start, ok := evs[0].(events.StartError)
	require.True(t, ok)
	assert.Equal(t, "conv-1", start.ConversationID)
	assert.Equal(t, ErrIDConnectionFailed, start.ErrorID)
	assert.Contains(t, start.Message, "pool exhausted")
}

func TestMuxDisconnectFansOutToAllConversations(t *testing.T) {
	tr := &fakeTransport{}
	rec := &dispatchRecorder{}
	mux := NewMux(tr, rec.dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-a", Timestamp: events.Now()}))
	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-b", Timestamp: events.Now()}))
	require.Len(t, tr.acquired, 1, "both conversations share one socket")

	tr.acquired[0].drop("read: connection reset")

	var affected []string
	for _, ev := range rec.all() {
		start, ok := ev.(events.StartError)
		require.True(t, ok)
		assert.Equal(t, ErrIDDisconnected, start.ErrorID)
		assert.Contains(t, start.Message, "connection reset")
		affected = append(affected, start.ConversationID)
	}
	assert.ElementsMatch(t, []string{"conv-a", "conv-b"}, affected)
}

func TestMuxInboundEnvelopesReachDispatch(t *testing.T) {
	tr := &fakeTransport{}
	rec := &dispatchRecorder{}
	mux := NewMux(tr, rec.dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))

	payload, err := events.ToJSON(events.MetaEvent{ConversationID: "conv-1", Timestamp: events.Now()})
	require.NoError(t, err)
	tr.acquired[0].receive(EventName, payload)

	evs := rec.all()
	require.Len(t, evs, 1)
	_, ok := evs[0].(events.MetaEvent)
	assert.True(t, ok)
}

func TestMuxInboundGarbageIsDropped(t *testing.T) {
	tr := &fakeTransport{}
	rec := &dispatchRecorder{}
	mux := NewMux(tr, rec.dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))
	tr.acquired[0].receive(EventName, []byte("{not json"))

	assert.Empty(t, rec.all())
}

func TestMuxSessionEndingDeprecatesSocket(t *testing.T) {
	tr := &fakeTransport{}
	rec := &dispatchRecorder{}
	mux := NewMux(tr, rec.dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))

	payload, err := events.ToJSON(events.SessionEnding{ConversationID: "conv-1", Reason: "draining", Timestamp: events.Now()})
	require.NoError(t, err)
	tr.acquired[0].receive(EventName, payload)

	assert.Equal(t, []string{tr.acquired[0].ID()}, tr.deprecated)
	// the mapping survives deprecation so in-flight sends complete
	require.NoError(t, mux.EmitEvent(context.Background(), events.MetaEvent{ConversationID: "conv-1", Timestamp: events.Now()}))
	require.Len(t, tr.acquired, 1)

	// and the advisory itself still reached dispatch
	found := false
	for _, ev := range rec.all() {
		if _, ok := ev.(events.SessionEnding); ok {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMuxDisconnectTearsDownDeprecated(t *testing.T) {
	tr := &fakeTransport{}
	mux := NewMux(tr, (&dispatchRecorder{}).dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))

	payload, err := events.ToJSON(events.SessionEnding{ConversationID: "conv-1", Timestamp: events.Now()})
	require.NoError(t, err)
	tr.acquired[0].receive(EventName, payload)

	require.NoError(t, mux.Disconnect())

	assert.True(t, tr.disconnected)
	assert.True(t, tr.acquired[0].disconnected)

	// mappings are gone, the next send starts fresh
	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))
	require.Len(t, tr.acquired, 2)
}

func TestMuxWriteFailureSurfacesToCaller(t *testing.T) {
	tr := &fakeTransport{}
	mux := NewMux(tr, (&dispatchRecorder{}).dispatch)

	require.NoError(t, mux.EmitEvent(context.Background(), events.SessionStarted{ConversationID: "conv-1", Timestamp: events.Now()}))

	// connected socket whose writes fail
	tr.acquired[0].mu.Lock()
	tr.acquired[0].connected = false
	tr.acquired[0].mu.Unlock()
	tr.dialErr = errors.New("no capacity")

	rec := &dispatchRecorder{}
	mux.dispatch = rec.dispatch
	require.NoError(t, mux.EmitEvent(context.Background(), events.MetaEvent{ConversationID: "conv-1", Timestamp: events.Now()}))

	evs := rec.all()
	require.Len(t, evs, 1)
	start, ok := evs[0].(events.StartError)
	require.True(t, ok)
	assert.Equal(t, ErrIDConnectionFailed, start.ErrorID)
}
