package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casualjim/parley/events"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// InputStream is the leaf helper for asynchronous input streamed directly to
// the session, outside any exchange (e.g. microphone audio).
type InputStream struct {
	mu      sync.Mutex
	id      string
	session *Session
	start   *events.StartInputStream
	data    strings.Builder
	ended   bool
	deleted bool

	errs       *orderedmap.OrderedMap[string, events.StartError]
	properties map[string]any

	onChunk      handlers[events.InputStreamChunk]
	onEnded      handlers[events.EndInputStream]
	onErrorStart handlers[events.StartError]
	onErrorEnd   handlers[events.EndError]
	onDeleted    handlers[struct{}]
}

func newInputStream(session *Session, id string, start *events.StartInputStream) *InputStream {
	return &InputStream{
		id:      id,
		session: session,
		start:   start,
		errs:    orderedmap.New[string, events.StartError](),
	}
}

// ID returns the input stream identifier.
func (s *InputStream) ID() string { return s.id }

// StartEvent returns the envelope that opened this stream, or
// ErrNoStartEvent when the node was materialized purely from dispatch state.
func (s *InputStream) StartEvent() (events.StartInputStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start == nil {
		return events.StartInputStream{}, ErrNoStartEvent
	}
	return *s.start, nil
}

// Data returns the concatenation of every chunk observed so far.
func (s *InputStream) Data() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.String()
}

// Ended reports whether the stream has processed its end.
func (s *InputStream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Deleted reports whether the stream was removed by a cascading delete.
func (s *InputStream) Deleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

// InErrorScope reports whether any protocol error is open on this stream.
func (s *InputStream) InErrorScope() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.Len() > 0
}

// Properties returns the stream's opaque metadata bag.
func (s *InputStream) Properties() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.properties == nil {
		s.properties = make(map[string]any)
	}
	return s.properties
}

// SetProperties replaces the stream's opaque metadata bag.
func (s *InputStream) SetProperties(props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if props == nil {
		props = make(map[string]any)
	}
	s.properties = props
}

func (s *InputStream) scope() events.Scope {
	return events.Scope{InputStreamID: s.id}
}

func (s *InputStream) guardSend(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return fmt.Errorf("%s: %w", op, ErrHelperDeleted)
	}
	if s.ended {
		return fmt.Errorf("%s: %w", op, ErrHelperEnded)
	}
	return nil
}

// SendChunk emits one streamed fragment of input.
func (s *InputStream) SendChunk(data string) error {
	if err := s.guardSend("send input stream chunk"); err != nil {
		return err
	}
	return s.session.emit(events.InputStreamChunk{
		ConversationID: s.session.id,
		InputStreamID:  s.id,
		Data:           data,
		Timestamp:      now(),
	})
}

// SendEnd closes the stream. A second call fails with ErrHelperEnded.
func (s *InputStream) SendEnd() error {
	if err := s.guardSend("end input stream"); err != nil {
		return err
	}
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	return s.session.emit(events.EndInputStream{
		ConversationID: s.session.id,
		InputStreamID:  s.id,
		Timestamp:      now(),
	})
}

// SendErrorStart opens a protocol error scoped to this stream.
func (s *InputStream) SendErrorStart(perr ProtocolError) error {
	if err := s.guardSend("start input stream error"); err != nil {
		return err
	}
	return s.session.emit(startErrorEvent(s.session.id, s.scope(), perr))
}

// SendErrorEnd closes a protocol error on this stream. Allowed after end.
func (s *InputStream) SendErrorEnd(errorID string) error {
	return s.session.emit(events.EndError{
		ConversationID: s.session.id,
		Scope:          s.scope(),
		ErrorID:        errorID,
		Timestamp:      now(),
	})
}

// OnChunk registers a handler for streamed fragments.
func (s *InputStream) OnChunk(fn func(events.InputStreamChunk)) func() {
	return s.onChunk.add(fn)
}

// OnEnded registers a handler fired when the stream's end is processed.
func (s *InputStream) OnEnded(fn func(events.EndInputStream)) func() {
	return s.onEnded.add(fn)
}

// OnErrorStart registers a local protocol error handler.
func (s *InputStream) OnErrorStart(fn func(events.StartError)) func() {
	return s.onErrorStart.add(fn)
}

// OnErrorEnd registers a handler for protocol error ends.
func (s *InputStream) OnErrorEnd(fn func(events.EndError)) func() {
	return s.onErrorEnd.add(fn)
}

// OnDeleted registers a handler fired once when the stream is deleted.
func (s *InputStream) OnDeleted(fn func()) func() {
	return s.onDeleted.add(func(struct{}) { fn() })
}

func (s *InputStream) dispatch(ev events.Event) {
	switch event := ev.(type) {
	case events.InputStreamChunk:
		if event.InputStreamID != s.id {
			return
		}
		s.mu.Lock()
		s.data.WriteString(event.Data)
		s.mu.Unlock()
		s.onChunk.invoke(event)
	case events.EndInputStream:
		if event.InputStreamID != s.id {
			return
		}
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
		s.onEnded.invoke(event)
	}
}

func (s *InputStream) trackErrorStart(e events.StartError) {
	s.mu.Lock()
	s.errs.Set(e.ErrorID, e)
	s.mu.Unlock()
}

func (s *InputStream) trackErrorEnd(e events.EndError) {
	s.mu.Lock()
	s.errs.Delete(e.ErrorID)
	s.mu.Unlock()
}

func (s *InputStream) localErrorStart(e events.StartError) bool {
	if !s.onErrorStart.registered() {
		return false
	}
	s.onErrorStart.invoke(e)
	return true
}

func (s *InputStream) localErrorEnd(e events.EndError) {
	s.onErrorEnd.invoke(e)
}

func (s *InputStream) delete() {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return
	}
	s.deleted = true
	s.mu.Unlock()
	s.onDeleted.invoke(struct{}{})
}
