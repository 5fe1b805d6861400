package conversation

import (
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/pkg/slogx"
	"github.com/fogfish/opts"
)

// EmitFunc carries outbound envelopes toward a peer. Sessions funnel every
// send through their manager's sink.
type EmitFunc func(events.Event) error

// Manager owns the sessions of one endpoint, keyed by conversation id. It
// routes inbound envelopes to the right session, funnels outbound emits into
// a single sink, and carries the cross-session error taps.
type Manager struct {
	sink     EmitFunc
	sessions *haxmap.Map[string, *Session]

	anyErrorStart       handlers[events.StartError]
	anyErrorEnd         handlers[events.EndError]
	unhandledErrorStart handlers[events.StartError]
}

// NewManager creates a manager whose sessions emit through sink. A nil sink
// discards outbound envelopes, which is useful for inbound-only consumers.
func NewManager(sink EmitFunc) *Manager {
	return &Manager{
		sink:     sink,
		sessions: haxmap.New[string, *Session](),
	}
}

// StartSession registers a new session for the given conversation id and
// returns it. Starting a session for an id that already has one replaces the
// previous session, which is deleted first.
func (m *Manager) StartSession(options ...SessionOption) (*Session, error) {
	var o SessionOptions
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}
	if o.ConversationID == "" {
		return nil, ErrMissingConversationID
	}

	if prev, ok := m.sessions.Get(o.ConversationID); ok {
		prev.Delete()
	}

	session := newSession(m, o)
	m.sessions.Set(session.id, session)
	return session, nil
}

// Session looks up a session by conversation id.
func (m *Manager) Session(conversationID string) (*Session, bool) {
	return m.sessions.Get(conversationID)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return int(m.sessions.Len())
}

// Dispatch routes an inbound envelope to the session it belongs to.
// Envelopes for an unknown conversation are dropped.
func (m *Manager) Dispatch(ev events.Event) {
	if ev == nil {
		return
	}
	session, ok := m.sessions.Get(ev.Conversation())
	if !ok {
		slog.Debug("dropping event for unknown conversation",
			slogx.Conversation(ev.Conversation()),
			slogx.EventType(events.TypeOf(ev)),
		)
		return
	}
	session.Dispatch(ev)
}

// Emit forwards an outbound envelope to the manager's sink.
func (m *Manager) Emit(ev events.Event) error {
	if m.sink == nil {
		return nil
	}
	return m.sink(ev)
}

// OnAnyErrorStart registers a tap observing every protocol error opened on
// any session. While at least one tap is registered, the unhandled fallback
// never fires.
func (m *Manager) OnAnyErrorStart(fn func(events.StartError)) func() {
	return m.anyErrorStart.add(fn)
}

// OnAnyErrorEnd registers a tap observing every protocol error closed on any
// session.
func (m *Manager) OnAnyErrorEnd(fn func(events.EndError)) func() {
	return m.anyErrorEnd.add(fn)
}

// OnUnhandledErrorStart registers the fallback for protocol errors no node
// in the target session handled locally. It fires only when the session had
// no error handler anywhere on the scope's ancestor chain and no
// OnAnyErrorStart tap is registered.
func (m *Manager) OnUnhandledErrorStart(fn func(events.StartError)) func() {
	return m.unhandledErrorStart.add(fn)
}

// Close deletes every session.
func (m *Manager) Close() {
	m.sessions.ForEach(func(_ string, session *Session) bool {
		session.Delete()
		return true
	})
}

func (m *Manager) removeSession(s *Session) {
	if current, ok := m.sessions.Get(s.id); ok && current == s {
		m.sessions.Del(s.id)
	}
}

func (m *Manager) notifyErrorStart(e events.StartError, locallyHandled bool) {
	tapped := m.anyErrorStart.registered()
	if tapped {
		m.anyErrorStart.invoke(e)
	}
	if !locallyHandled && !tapped {
		m.unhandledErrorStart.invoke(e)
	}
}

func (m *Manager) notifyErrorEnd(e events.EndError) {
	m.anyErrorEnd.invoke(e)
}
