package conversation

import (
	"fmt"
	"sync"

	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultRole is assumed for messages started without an explicit role.
const DefaultRole = "user"

// MessageSnapshot is the fully materialized view of a completed message,
// handed to Exchange.OnMessageCompleted when the endMessage envelope is
// processed.
type MessageSnapshot struct {
	MessageID    string
	Role         string
	ContentParts []ContentPartSnapshot
	ToolCalls    []ToolCallSnapshot
}

// ContentPartSnapshot holds one content part's accumulated data, the
// concatenation of all chunks received between its start and end.
type ContentPartSnapshot struct {
	ContentPartID string
	ContentType   string
	Data          string
}

// ToolCallSnapshot holds one tool call's final output.
type ToolCallSnapshot struct {
	ToolCallID string
	Name       string
	Output     string
}

// Message owns the ordered content parts and tool calls of one message
// within an exchange turn.
type Message struct {
	mu       sync.Mutex
	id       string
	role     string
	exchange *Exchange
	start    *events.StartMessage
	ended    bool
	deleted  bool

	parts      *orderedmap.OrderedMap[string, *ContentPart]
	toolCalls  *orderedmap.OrderedMap[string, *ToolCall]
	errs       *orderedmap.OrderedMap[string, events.StartError]
	properties map[string]any

	onContentPartStart handlers[events.StartContentPart]
	onToolCallStart    handlers[events.StartToolCall]
	onEnded            handlers[events.EndMessage]
	onErrorStart       handlers[events.StartError]
	onErrorEnd         handlers[events.EndError]
	onDeleted          handlers[struct{}]
}

func newMessage(exchange *Exchange, id, role string, start *events.StartMessage) *Message {
	return &Message{
		id:        id,
		role:      role,
		exchange:  exchange,
		start:     start,
		parts:     orderedmap.New[string, *ContentPart](),
		toolCalls: orderedmap.New[string, *ToolCall](),
		errs:      orderedmap.New[string, events.StartError](),
	}
}

// ID returns the message identifier.
func (m *Message) ID() string { return m.id }

// Role returns the message role, "user" unless specified otherwise.
func (m *Message) Role() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// StartEvent returns the envelope that opened this message, or
// ErrNoStartEvent when the node was materialized purely from dispatch state.
func (m *Message) StartEvent() (events.StartMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.start == nil {
		return events.StartMessage{}, ErrNoStartEvent
	}
	return *m.start, nil
}

// Ended reports whether the message has processed its end.
func (m *Message) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended
}

// Deleted reports whether the message was removed by a cascading delete.
func (m *Message) Deleted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted
}

// InErrorScope reports whether an error is open on this message or anywhere
// above it.
func (m *Message) InErrorScope() bool {
	m.mu.Lock()
	open := m.errs.Len() > 0
	m.mu.Unlock()
	return open || m.exchange.InErrorScope()
}

// Properties returns the message's opaque metadata bag.
func (m *Message) Properties() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.properties == nil {
		m.properties = make(map[string]any)
	}
	return m.properties
}

// SetProperties replaces the message's opaque metadata bag.
func (m *Message) SetProperties(props map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if props == nil {
		props = make(map[string]any)
	}
	m.properties = props
}

// ContentPart looks up a child content part by id.
func (m *Message) ContentPart(id string) (*ContentPart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parts.Get(id)
}

// ToolCall looks up a child tool call by id.
func (m *Message) ToolCall(id string) (*ToolCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toolCalls.Get(id)
}

func (m *Message) scope() events.Scope {
	return events.Scope{ExchangeID: m.exchange.id, MessageID: m.id}
}

func (m *Message) emit(ev events.Event) error {
	return m.exchange.emit(ev)
}

func (m *Message) guardSend(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted {
		return fmt.Errorf("%s: %w", op, ErrHelperDeleted)
	}
	if m.ended {
		return fmt.Errorf("%s: %w", op, ErrHelperEnded)
	}
	return nil
}

// StartContentPart creates and registers a content part, emits its start
// envelope and returns the helper.
func (m *Message) StartContentPart(options ...ContentPartOption) (*ContentPart, error) {
	if err := m.guardSend("start content part"); err != nil {
		return nil, err
	}

	var o ContentPartOptions
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}
	if o.ContentPartID == "" {
		o.ContentPartID = uuidx.Prefixed("part")
	}

	start := events.StartContentPart{
		ConversationID: m.exchange.session.id,
		ExchangeID:     m.exchange.id,
		MessageID:      m.id,
		ContentPartID:  o.ContentPartID,
		ContentType:    o.ContentType,
		Timestamp:      now(),
	}
	part := newContentPart(m, o.ContentPartID, &start)
	m.mu.Lock()
	m.parts.Set(part.id, part)
	m.mu.Unlock()

	if err := m.emit(start); err != nil {
		return nil, err
	}
	return part, nil
}

// WithContentPart starts a content part, invokes fn, and sends the part's
// end after fn returns successfully. A failing fn propagates to the caller
// without ending the part.
func (m *Message) WithContentPart(fn func(*ContentPart) error, options ...ContentPartOption) error {
	part, err := m.StartContentPart(options...)
	if err != nil {
		return err
	}
	if err := fn(part); err != nil {
		return err
	}
	return part.SendEnd()
}

// StartToolCall creates and registers a tool call under this message, emits
// its start envelope and returns the helper.
func (m *Message) StartToolCall(options ...ToolCallOption) (*ToolCall, error) {
	if err := m.guardSend("start tool call"); err != nil {
		return nil, err
	}

	var o ToolCallOptions
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}
	if o.ToolCallID == "" {
		o.ToolCallID = uuidx.Prefixed("tool")
	}

	start := events.StartToolCall{
		ConversationID: m.exchange.session.id,
		ExchangeID:     m.exchange.id,
		MessageID:      m.id,
		ToolCallID:     o.ToolCallID,
		Name:           o.Name,
		Arguments:      o.Arguments,
		Timestamp:      now(),
	}
	scope := events.Scope{ExchangeID: m.exchange.id, MessageID: m.id, ToolCallID: o.ToolCallID}
	call := newToolCall(m.exchange.session, scope, &start)
	m.mu.Lock()
	m.toolCalls.Set(call.id, call)
	m.mu.Unlock()

	if err := m.emit(start); err != nil {
		return nil, err
	}
	return call, nil
}

// WithToolCall starts a tool call, invokes fn, and ends the call with fn's
// output after it returns successfully.
func (m *Message) WithToolCall(fn func(*ToolCall) (string, error), options ...ToolCallOption) error {
	call, err := m.StartToolCall(options...)
	if err != nil {
		return err
	}
	output, err := fn(call)
	if err != nil {
		return err
	}
	return call.SendEnd(output)
}

// SendEnd closes the message. A second call fails with ErrHelperEnded.
func (m *Message) SendEnd() error {
	if err := m.guardSend("end message"); err != nil {
		return err
	}
	m.mu.Lock()
	m.ended = true
	m.mu.Unlock()
	return m.emit(events.EndMessage{
		ConversationID: m.exchange.session.id,
		ExchangeID:     m.exchange.id,
		MessageID:      m.id,
		Timestamp:      now(),
	})
}

// SendErrorStart opens a protocol error scoped to this message.
func (m *Message) SendErrorStart(perr ProtocolError) error {
	if err := m.guardSend("start message error"); err != nil {
		return err
	}
	return m.emit(startErrorEvent(m.exchange.session.id, m.scope(), perr))
}

// SendErrorEnd closes a protocol error on this message. Allowed after end.
func (m *Message) SendErrorEnd(errorID string) error {
	return m.emit(events.EndError{
		ConversationID: m.exchange.session.id,
		Scope:          m.scope(),
		ErrorID:        errorID,
		Timestamp:      now(),
	})
}

// OnContentPartStart registers a handler fired when a content part opens on
// this message.
func (m *Message) OnContentPartStart(fn func(events.StartContentPart)) func() {
	return m.onContentPartStart.add(fn)
}

// OnToolCallStart registers a handler fired when a tool call opens on this
// message.
func (m *Message) OnToolCallStart(fn func(events.StartToolCall)) func() {
	return m.onToolCallStart.add(fn)
}

// OnEnded registers a handler fired when the message's end is processed.
func (m *Message) OnEnded(fn func(events.EndMessage)) func() {
	return m.onEnded.add(fn)
}

// OnErrorStart registers a local protocol error handler.
func (m *Message) OnErrorStart(fn func(events.StartError)) func() {
	return m.onErrorStart.add(fn)
}

// OnErrorEnd registers a handler for protocol error ends.
func (m *Message) OnErrorEnd(fn func(events.EndError)) func() {
	return m.onErrorEnd.add(fn)
}

// OnDeleted registers a handler fired once when the message is deleted.
func (m *Message) OnDeleted(fn func()) func() {
	return m.onDeleted.add(func(struct{}) { fn() })
}

// Snapshot materializes the current accumulated state of this message.
func (m *Message) Snapshot() MessageSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MessageSnapshot{MessageID: m.id, Role: m.role}
	for pair := m.parts.Oldest(); pair != nil; pair = pair.Next() {
		part := pair.Value
		ps := ContentPartSnapshot{ContentPartID: part.ID(), Data: part.Data()}
		if start, err := part.StartEvent(); err == nil {
			ps.ContentType = start.ContentType
		}
		snap.ContentParts = append(snap.ContentParts, ps)
	}
	for pair := m.toolCalls.Oldest(); pair != nil; pair = pair.Next() {
		call := pair.Value
		ts := ToolCallSnapshot{ToolCallID: call.ID(), Output: call.Output()}
		if start, err := call.StartEvent(); err == nil {
			ts.Name = start.Name
		}
		snap.ToolCalls = append(snap.ToolCalls, ts)
	}
	return snap
}

func (m *Message) partFor(id string, start *events.StartContentPart) (*ContentPart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	part, ok := m.parts.Get(id)
	if !ok {
		part = newContentPart(m, id, start)
		m.parts.Set(id, part)
		return part, true
	}
	if start != nil {
		part.mu.Lock()
		if part.start == nil {
			part.start = start
		}
		part.mu.Unlock()
	}
	return part, false
}

func (m *Message) toolCallFor(id string, start *events.StartToolCall) (*ToolCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.toolCalls.Get(id)
	if !ok {
		scope := events.Scope{ExchangeID: m.exchange.id, MessageID: m.id, ToolCallID: id}
		call = newToolCall(m.exchange.session, scope, start)
		m.toolCalls.Set(id, call)
		return call, true
	}
	if start != nil {
		call.mu.Lock()
		if call.start == nil {
			call.start = start
		}
		call.mu.Unlock()
	}
	return call, false
}

func (m *Message) dispatch(ev events.Event) {
	switch event := ev.(type) {
	case events.StartContentPart:
		if event.MessageID != m.id {
			return
		}
		start := event
		m.partFor(event.ContentPartID, &start)
		m.onContentPartStart.invoke(event)
	case events.ContentPartChunk:
		if event.MessageID != m.id {
			return
		}
		part, _ := m.partFor(event.ContentPartID, nil)
		part.dispatch(event)
	case events.EndContentPart:
		if event.MessageID != m.id {
			return
		}
		part, _ := m.partFor(event.ContentPartID, nil)
		part.dispatch(event)
	case events.StartToolCall:
		if event.MessageID != m.id {
			return
		}
		start := event
		m.toolCallFor(event.ToolCallID, &start)
		m.onToolCallStart.invoke(event)
	case events.EndToolCall:
		if event.MessageID != m.id {
			return
		}
		call, _ := m.toolCallFor(event.ToolCallID, nil)
		call.dispatch(event)
	case events.EndMessage:
		if event.MessageID != m.id {
			return
		}
		m.mu.Lock()
		m.ended = true
		m.mu.Unlock()
		m.onEnded.invoke(event)
	}
}

func (m *Message) trackErrorStart(e events.StartError) {
	m.mu.Lock()
	m.errs.Set(e.ErrorID, e)
	m.mu.Unlock()
}

func (m *Message) trackErrorEnd(e events.EndError) {
	m.mu.Lock()
	m.errs.Delete(e.ErrorID)
	m.mu.Unlock()
}

func (m *Message) localErrorStart(e events.StartError) bool {
	if !m.onErrorStart.registered() {
		return false
	}
	m.onErrorStart.invoke(e)
	return true
}

func (m *Message) localErrorEnd(e events.EndError) {
	m.onErrorEnd.invoke(e)
}

func (m *Message) delete() {
	m.mu.Lock()
	if m.deleted {
		m.mu.Unlock()
		return
	}
	m.deleted = true
	parts := make([]*ContentPart, 0, m.parts.Len())
	for pair := m.parts.Oldest(); pair != nil; pair = pair.Next() {
		parts = append(parts, pair.Value)
	}
	calls := make([]*ToolCall, 0, m.toolCalls.Len())
	for pair := m.toolCalls.Oldest(); pair != nil; pair = pair.Next() {
		calls = append(calls, pair.Value)
	}
	m.mu.Unlock()

	for _, part := range parts {
		part.delete()
	}
	for _, call := range calls {
		call.delete()
	}
	m.onDeleted.invoke(struct{}{})
}
