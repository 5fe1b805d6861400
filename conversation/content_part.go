package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func now() strfmt.DateTime {
	return events.Now()
}

// ContentPart is the leaf helper for one chunked unit of message data. It
// accumulates every chunk observed between its start and end so the owning
// exchange can materialize a completed-message snapshot.
type ContentPart struct {
	mu      sync.Mutex
	id      string
	msg     *Message
	start   *events.StartContentPart
	data    strings.Builder
	ended   bool
	deleted bool

	errs       *orderedmap.OrderedMap[string, events.StartError]
	properties map[string]any

	onChunk      handlers[events.ContentPartChunk]
	onEnded      handlers[events.EndContentPart]
	onErrorStart handlers[events.StartError]
	onErrorEnd   handlers[events.EndError]
	onDeleted    handlers[struct{}]
}

func newContentPart(msg *Message, id string, start *events.StartContentPart) *ContentPart {
	return &ContentPart{
		id:    id,
		msg:   msg,
		start: start,
		errs:  orderedmap.New[string, events.StartError](),
	}
}

// ID returns the content part identifier.
func (p *ContentPart) ID() string { return p.id }

// StartEvent returns the envelope that opened this part. Reading it on a
// node materialized purely from dispatch state returns ErrNoStartEvent.
func (p *ContentPart) StartEvent() (events.StartContentPart, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.start == nil {
		return events.StartContentPart{}, ErrNoStartEvent
	}
	return *p.start, nil
}

// Data returns the concatenation of every chunk observed so far.
func (p *ContentPart) Data() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data.String()
}

// Ended reports whether the part has processed its end.
func (p *ContentPart) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

// Deleted reports whether the part was removed by a cascading delete.
func (p *ContentPart) Deleted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleted
}

// InErrorScope reports whether any protocol error is open on this part.
func (p *ContentPart) InErrorScope() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs.Len() > 0
}

// Properties returns the part's opaque metadata bag.
func (p *ContentPart) Properties() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.properties == nil {
		p.properties = make(map[string]any)
	}
	return p.properties
}

// SetProperties replaces the part's opaque metadata bag.
func (p *ContentPart) SetProperties(props map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if props == nil {
		props = make(map[string]any)
	}
	p.properties = props
}

func (p *ContentPart) scope() events.Scope {
	return events.Scope{
		ExchangeID:    p.msg.exchange.id,
		MessageID:     p.msg.id,
		ContentPartID: p.id,
	}
}

func (p *ContentPart) guardSend(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		return fmt.Errorf("%s: %w", op, ErrHelperDeleted)
	}
	if p.ended {
		return fmt.Errorf("%s: %w", op, ErrHelperEnded)
	}
	return nil
}

// SendChunk emits one streamed fragment of this part.
func (p *ContentPart) SendChunk(data string) error {
	if err := p.guardSend("send content part chunk"); err != nil {
		return err
	}
	return p.msg.emit(events.ContentPartChunk{
		ConversationID: p.msg.exchange.session.id,
		ExchangeID:     p.msg.exchange.id,
		MessageID:      p.msg.id,
		ContentPartID:  p.id,
		Data:           data,
		Timestamp:      now(),
	})
}

// SendEnd closes the part. A second call fails with ErrHelperEnded.
func (p *ContentPart) SendEnd() error {
	if err := p.guardSend("end content part"); err != nil {
		return err
	}
	p.mu.Lock()
	p.ended = true
	p.mu.Unlock()
	return p.msg.emit(events.EndContentPart{
		ConversationID: p.msg.exchange.session.id,
		ExchangeID:     p.msg.exchange.id,
		MessageID:      p.msg.id,
		ContentPartID:  p.id,
		Timestamp:      now(),
	})
}

// SendErrorStart opens a protocol error scoped to this part.
func (p *ContentPart) SendErrorStart(perr ProtocolError) error {
	if err := p.guardSend("start content part error"); err != nil {
		return err
	}
	return p.msg.emit(startErrorEvent(p.msg.exchange.session.id, p.scope(), perr))
}

// SendErrorEnd closes a protocol error on this part. Allowed after end.
func (p *ContentPart) SendErrorEnd(errorID string) error {
	return p.msg.emit(events.EndError{
		ConversationID: p.msg.exchange.session.id,
		Scope:          p.scope(),
		ErrorID:        errorID,
		Timestamp:      now(),
	})
}

// OnChunk registers a handler for streamed fragments.
func (p *ContentPart) OnChunk(fn func(events.ContentPartChunk)) func() {
	return p.onChunk.add(fn)
}

// OnEnded registers a handler fired when the part's end is processed.
func (p *ContentPart) OnEnded(fn func(events.EndContentPart)) func() {
	return p.onEnded.add(fn)
}

// OnErrorStart registers a local protocol error handler.
func (p *ContentPart) OnErrorStart(fn func(events.StartError)) func() {
	return p.onErrorStart.add(fn)
}

// OnErrorEnd registers a handler for protocol error ends.
func (p *ContentPart) OnErrorEnd(fn func(events.EndError)) func() {
	return p.onErrorEnd.add(fn)
}

// OnDeleted registers a handler fired once when the part is deleted.
func (p *ContentPart) OnDeleted(fn func()) func() {
	return p.onDeleted.add(func(struct{}) { fn() })
}

func (p *ContentPart) dispatch(ev events.Event) {
	switch event := ev.(type) {
	case events.ContentPartChunk:
		if event.ContentPartID != p.id {
			return
		}
		p.mu.Lock()
		p.data.WriteString(event.Data)
		p.mu.Unlock()
		p.onChunk.invoke(event)
	case events.EndContentPart:
		if event.ContentPartID != p.id {
			return
		}
		p.mu.Lock()
		p.ended = true
		p.mu.Unlock()
		p.onEnded.invoke(event)
	}
}

func (p *ContentPart) trackErrorStart(e events.StartError) {
	p.mu.Lock()
	p.errs.Set(e.ErrorID, e)
	p.mu.Unlock()
}

func (p *ContentPart) trackErrorEnd(e events.EndError) {
	p.mu.Lock()
	p.errs.Delete(e.ErrorID)
	p.mu.Unlock()
}

func (p *ContentPart) localErrorStart(e events.StartError) bool {
	if !p.onErrorStart.registered() {
		return false
	}
	p.onErrorStart.invoke(e)
	return true
}

func (p *ContentPart) localErrorEnd(e events.EndError) {
	p.onErrorEnd.invoke(e)
}

func (p *ContentPart) delete() {
	p.mu.Lock()
	if p.deleted {
		p.mu.Unlock()
		return
	}
	p.deleted = true
	p.mu.Unlock()
	p.onDeleted.invoke(struct{}{})
}

func startErrorEvent(conversationID string, scope events.Scope, perr ProtocolError) events.StartError {
	if perr.ID == "" {
		perr.ID = uuidx.Prefixed("err")
	}
	return events.StartError{
		ConversationID: conversationID,
		Scope:          scope,
		ErrorID:        perr.ID,
		Message:        perr.Message,
		Details:        perr.Details,
		Timestamp:      now(),
	}
}
