package conversation

import (
	"fmt"
	"sync"

	"github.com/casualjim/parley/events"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ToolCall is the leaf helper for one tool invocation. It serves both
// nesting positions: inside a message (scope carries exchange and message
// ids) and directly under the session as an asynchronous call (empty scope
// ids besides its own).
type ToolCall struct {
	mu      sync.Mutex
	id      string
	session *Session
	scope   events.Scope
	start   *events.StartToolCall
	output  string
	ended   bool
	deleted bool

	errs       *orderedmap.OrderedMap[string, events.StartError]
	properties map[string]any

	onEnded      handlers[events.EndToolCall]
	onErrorStart handlers[events.StartError]
	onErrorEnd   handlers[events.EndError]
	onDeleted    handlers[struct{}]
}

func newToolCall(session *Session, scope events.Scope, start *events.StartToolCall) *ToolCall {
	return &ToolCall{
		id:      scope.ToolCallID,
		session: session,
		scope:   scope,
		start:   start,
		errs:    orderedmap.New[string, events.StartError](),
	}
}

// ID returns the tool call identifier.
func (t *ToolCall) ID() string { return t.id }

// StartEvent returns the envelope that opened this call, or ErrNoStartEvent
// when the node was materialized purely from dispatch state.
func (t *ToolCall) StartEvent() (events.StartToolCall, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.start == nil {
		return events.StartToolCall{}, ErrNoStartEvent
	}
	return *t.start, nil
}

// Output returns the final output observed on the end envelope, empty until
// the call ends.
func (t *ToolCall) Output() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output
}

// Ended reports whether the call has processed its end.
func (t *ToolCall) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

// Deleted reports whether the call was removed by a cascading delete.
func (t *ToolCall) Deleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleted
}

// InErrorScope reports whether any protocol error is open on this call.
func (t *ToolCall) InErrorScope() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errs.Len() > 0
}

// Properties returns the call's opaque metadata bag.
func (t *ToolCall) Properties() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.properties == nil {
		t.properties = make(map[string]any)
	}
	return t.properties
}

// SetProperties replaces the call's opaque metadata bag.
func (t *ToolCall) SetProperties(props map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if props == nil {
		props = make(map[string]any)
	}
	t.properties = props
}

func (t *ToolCall) guardSend(op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return fmt.Errorf("%s: %w", op, ErrHelperDeleted)
	}
	if t.ended {
		return fmt.Errorf("%s: %w", op, ErrHelperEnded)
	}
	return nil
}

// SendEnd closes the call with its final output. A second call fails with
// ErrHelperEnded.
func (t *ToolCall) SendEnd(output string) error {
	if err := t.guardSend("end tool call"); err != nil {
		return err
	}
	t.mu.Lock()
	t.ended = true
	t.output = output
	t.mu.Unlock()
	return t.session.emit(events.EndToolCall{
		ConversationID: t.session.id,
		ExchangeID:     t.scope.ExchangeID,
		MessageID:      t.scope.MessageID,
		ToolCallID:     t.id,
		Output:         output,
		Timestamp:      now(),
	})
}

// SendErrorStart opens a protocol error scoped to this call.
func (t *ToolCall) SendErrorStart(perr ProtocolError) error {
	if err := t.guardSend("start tool call error"); err != nil {
		return err
	}
	return t.session.emit(startErrorEvent(t.session.id, t.scope, perr))
}

// SendErrorEnd closes a protocol error on this call. Allowed after end.
func (t *ToolCall) SendErrorEnd(errorID string) error {
	return t.session.emit(events.EndError{
		ConversationID: t.session.id,
		Scope:          t.scope,
		ErrorID:        errorID,
		Timestamp:      now(),
	})
}

// OnEnded registers a handler fired when the call's end is processed.
func (t *ToolCall) OnEnded(fn func(events.EndToolCall)) func() {
	return t.onEnded.add(fn)
}

// OnErrorStart registers a local protocol error handler.
func (t *ToolCall) OnErrorStart(fn func(events.StartError)) func() {
	return t.onErrorStart.add(fn)
}

// OnErrorEnd registers a handler for protocol error ends.
func (t *ToolCall) OnErrorEnd(fn func(events.EndError)) func() {
	return t.onErrorEnd.add(fn)
}

// OnDeleted registers a handler fired once when the call is deleted.
func (t *ToolCall) OnDeleted(fn func()) func() {
	return t.onDeleted.add(func(struct{}) { fn() })
}

func (t *ToolCall) dispatch(ev events.Event) {
	end, ok := ev.(events.EndToolCall)
	if !ok || end.ToolCallID != t.id {
		return
	}
	t.mu.Lock()
	t.ended = true
	t.output = end.Output
	t.mu.Unlock()
	t.onEnded.invoke(end)
}

func (t *ToolCall) trackErrorStart(e events.StartError) {
	t.mu.Lock()
	t.errs.Set(e.ErrorID, e)
	t.mu.Unlock()
}

func (t *ToolCall) trackErrorEnd(e events.EndError) {
	t.mu.Lock()
	t.errs.Delete(e.ErrorID)
	t.mu.Unlock()
}

func (t *ToolCall) localErrorStart(e events.StartError) bool {
	if !t.onErrorStart.registered() {
		return false
	}
	t.onErrorStart.invoke(e)
	return true
}

func (t *ToolCall) localErrorEnd(e events.EndError) {
	t.onErrorEnd.invoke(e)
}

func (t *ToolCall) delete() {
	t.mu.Lock()
	if t.deleted {
		t.mu.Unlock()
		return
	}
	t.deleted = true
	t.mu.Unlock()
	t.onDeleted.invoke(struct{}{})
}
