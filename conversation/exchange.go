package conversation

import (
	"fmt"
	"sync"

	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Exchange owns the ordered messages of one conversational turn and
// aggregates completed-message snapshots as endMessage envelopes arrive.
type Exchange struct {
	mu      sync.Mutex
	id      string
	session *Session
	start   *events.StartExchange
	ended   bool
	deleted bool

	messages   *orderedmap.OrderedMap[string, *Message]
	errs       *orderedmap.OrderedMap[string, events.StartError]
	completed  map[string]bool
	properties map[string]any

	onMessageStart     handlers[events.StartMessage]
	onMessageCompleted handlers[MessageSnapshot]
	onEnded            handlers[events.EndExchange]
	onErrorStart       handlers[events.StartError]
	onErrorEnd         handlers[events.EndError]
	onDeleted          handlers[struct{}]
}

func newExchange(session *Session, id string, start *events.StartExchange) *Exchange {
	return &Exchange{
		id:        id,
		session:   session,
		start:     start,
		messages:  orderedmap.New[string, *Message](),
		errs:      orderedmap.New[string, events.StartError](),
		completed: make(map[string]bool),
	}
}

// ID returns the exchange identifier.
func (x *Exchange) ID() string { return x.id }

// StartEvent returns the envelope that opened this exchange, or
// ErrNoStartEvent when the node was materialized purely from dispatch state.
func (x *Exchange) StartEvent() (events.StartExchange, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.start == nil {
		return events.StartExchange{}, ErrNoStartEvent
	}
	return *x.start, nil
}

// Ended reports whether the exchange has processed its end.
func (x *Exchange) Ended() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.ended
}

// Deleted reports whether the exchange was removed by a cascading delete.
func (x *Exchange) Deleted() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.deleted
}

// InErrorScope reports whether an error is open on this exchange or on the
// owning session. The scope is inherited transitively.
func (x *Exchange) InErrorScope() bool {
	x.mu.Lock()
	open := x.errs.Len() > 0
	x.mu.Unlock()
	return open || x.session.InErrorScope()
}

// Properties returns the exchange's opaque metadata bag.
func (x *Exchange) Properties() map[string]any {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.properties == nil {
		x.properties = make(map[string]any)
	}
	return x.properties
}

// SetProperties replaces the exchange's opaque metadata bag.
func (x *Exchange) SetProperties(props map[string]any) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if props == nil {
		props = make(map[string]any)
	}
	x.properties = props
}

// Message looks up a child message by id.
func (x *Exchange) Message(id string) (*Message, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.messages.Get(id)
}

func (x *Exchange) scope() events.Scope {
	return events.Scope{ExchangeID: x.id}
}

func (x *Exchange) emit(ev events.Event) error {
	return x.session.emit(ev)
}

func (x *Exchange) guardSend(op string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.deleted {
		return fmt.Errorf("%s: %w", op, ErrHelperDeleted)
	}
	if x.ended {
		return fmt.Errorf("%s: %w", op, ErrHelperEnded)
	}
	return nil
}

// StartMessage creates and registers a message, emits its start envelope and
// returns the helper. Role defaults to "user".
func (x *Exchange) StartMessage(options ...MessageOption) (*Message, error) {
	if err := x.guardSend("start message"); err != nil {
		return nil, err
	}

	var o MessageOptions
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}
	if o.MessageID == "" {
		o.MessageID = uuidx.Prefixed("msg")
	}
	if o.Role == "" {
		o.Role = DefaultRole
	}

	start := events.StartMessage{
		ConversationID: x.session.id,
		ExchangeID:     x.id,
		MessageID:      o.MessageID,
		Role:           o.Role,
		Timestamp:      now(),
	}
	msg := newMessage(x, o.MessageID, o.Role, &start)
	x.mu.Lock()
	x.messages.Set(msg.id, msg)
	x.mu.Unlock()

	if err := x.emit(start); err != nil {
		return nil, err
	}
	return msg, nil
}

// WithMessage starts a message, invokes fn, and sends the message end after
// fn returns successfully. A failing fn propagates to the caller without
// ending the message.
func (x *Exchange) WithMessage(fn func(*Message) error, options ...MessageOption) error {
	msg, err := x.StartMessage(options...)
	if err != nil {
		return err
	}
	if err := fn(msg); err != nil {
		return err
	}
	return msg.SendEnd()
}

// SendMessageWithContentPart performs the full start-message, start-part,
// chunk, end-part, end-message sequence as one logical unit, ending the
// message only after the content part write completed.
func (x *Exchange) SendMessageWithContentPart(data string, options ...MessageOption) error {
	msg, err := x.StartMessage(options...)
	if err != nil {
		return err
	}
	part, err := msg.StartContentPart()
	if err != nil {
		return err
	}
	if err := part.SendChunk(data); err != nil {
		return err
	}
	if err := part.SendEnd(); err != nil {
		return err
	}
	return msg.SendEnd()
}

// SendEnd closes the exchange. A second call fails with ErrHelperEnded.
func (x *Exchange) SendEnd() error {
	if err := x.guardSend("end exchange"); err != nil {
		return err
	}
	x.mu.Lock()
	x.ended = true
	x.mu.Unlock()
	return x.emit(events.EndExchange{
		ConversationID: x.session.id,
		ExchangeID:     x.id,
		Timestamp:      now(),
	})
}

// SendErrorStart opens a protocol error scoped to this exchange.
func (x *Exchange) SendErrorStart(perr ProtocolError) error {
	if err := x.guardSend("start exchange error"); err != nil {
		return err
	}
	return x.emit(startErrorEvent(x.session.id, x.scope(), perr))
}

// SendErrorEnd closes a protocol error on this exchange. Allowed after end.
func (x *Exchange) SendErrorEnd(errorID string) error {
	return x.emit(events.EndError{
		ConversationID: x.session.id,
		Scope:          x.scope(),
		ErrorID:        errorID,
		Timestamp:      now(),
	})
}

// OnMessageStart registers a handler fired when a message opens on this
// exchange.
func (x *Exchange) OnMessageStart(fn func(events.StartMessage)) func() {
	return x.onMessageStart.add(fn)
}

// OnMessageCompleted registers a handler fired exactly once per message, at
// the moment its endMessage envelope is processed, with the fully
// materialized snapshot.
func (x *Exchange) OnMessageCompleted(fn func(MessageSnapshot)) func() {
	return x.onMessageCompleted.add(fn)
}

// OnEnded registers a handler fired when the exchange's end is processed.
func (x *Exchange) OnEnded(fn func(events.EndExchange)) func() {
	return x.onEnded.add(fn)
}

// OnErrorStart registers a local protocol error handler.
func (x *Exchange) OnErrorStart(fn func(events.StartError)) func() {
	return x.onErrorStart.add(fn)
}

// OnErrorEnd registers a handler for protocol error ends.
func (x *Exchange) OnErrorEnd(fn func(events.EndError)) func() {
	return x.onErrorEnd.add(fn)
}

// OnDeleted registers a handler fired once when the exchange is deleted.
func (x *Exchange) OnDeleted(fn func()) func() {
	return x.onDeleted.add(func(struct{}) { fn() })
}

func (x *Exchange) messageFor(id string, start *events.StartMessage) (*Message, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	msg, ok := x.messages.Get(id)
	if !ok {
		role := DefaultRole
		if start != nil && start.Role != "" {
			role = start.Role
		}
		msg = newMessage(x, id, role, start)
		x.messages.Set(id, msg)
		return msg, true
	}
	if start != nil {
		msg.mu.Lock()
		if msg.start == nil {
			msg.start = start
		}
		if start.Role != "" {
			msg.role = start.Role
		}
		msg.mu.Unlock()
	}
	return msg, false
}

func (x *Exchange) dispatch(ev events.Event) {
	switch event := ev.(type) {
	case events.StartMessage:
		if event.ExchangeID != x.id {
			return
		}
		start := event
		x.messageFor(event.MessageID, &start)
		x.onMessageStart.invoke(event)
	case events.EndMessage:
		if event.ExchangeID != x.id {
			return
		}
		msg, _ := x.messageFor(event.MessageID, nil)
		msg.dispatch(event)

		x.mu.Lock()
		done := x.completed[event.MessageID]
		if !done {
			x.completed[event.MessageID] = true
		}
		x.mu.Unlock()
		if !done {
			x.onMessageCompleted.invoke(msg.Snapshot())
		}
	case events.EndExchange:
		if event.ExchangeID != x.id {
			return
		}
		x.mu.Lock()
		x.ended = true
		x.mu.Unlock()
		x.onEnded.invoke(event)
	case events.StartContentPart:
		if event.ExchangeID != x.id {
			return
		}
		msg, _ := x.messageFor(event.MessageID, nil)
		msg.dispatch(event)
	case events.ContentPartChunk:
		if event.ExchangeID != x.id {
			return
		}
		msg, _ := x.messageFor(event.MessageID, nil)
		msg.dispatch(event)
	case events.EndContentPart:
		if event.ExchangeID != x.id {
			return
		}
		msg, _ := x.messageFor(event.MessageID, nil)
		msg.dispatch(event)
	case events.StartToolCall:
		if event.ExchangeID != x.id || event.MessageID == "" {
			return
		}
		msg, _ := x.messageFor(event.MessageID, nil)
		msg.dispatch(event)
	case events.EndToolCall:
		if event.ExchangeID != x.id || event.MessageID == "" {
			return
		}
		msg, _ := x.messageFor(event.MessageID, nil)
		msg.dispatch(event)
	}
}

func (x *Exchange) trackErrorStart(e events.StartError) {
	x.mu.Lock()
	x.errs.Set(e.ErrorID, e)
	x.mu.Unlock()
}

func (x *Exchange) trackErrorEnd(e events.EndError) {
	x.mu.Lock()
	x.errs.Delete(e.ErrorID)
	x.mu.Unlock()
}

func (x *Exchange) localErrorStart(e events.StartError) bool {
	if !x.onErrorStart.registered() {
		return false
	}
	x.onErrorStart.invoke(e)
	return true
}

func (x *Exchange) localErrorEnd(e events.EndError) {
	x.onErrorEnd.invoke(e)
}

func (x *Exchange) messageForScope(scope events.Scope) (*Message, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.messages.Get(scope.MessageID)
}

func (x *Exchange) delete() {
	x.mu.Lock()
	if x.deleted {
		x.mu.Unlock()
		return
	}
	x.deleted = true
	msgs := make([]*Message, 0, x.messages.Len())
	for pair := x.messages.Oldest(); pair != nil; pair = pair.Next() {
		msgs = append(msgs, pair.Value)
	}
	x.mu.Unlock()

	for _, msg := range msgs {
		msg.delete()
	}
	x.onDeleted.invoke(struct{}{})
}
