package conversation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/parley/events"
	"github.com/casualjim/parley/pkg/slogx"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/fogfish/opts"
	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Session is the root per-conversation state machine. It owns exchanges,
// async input streams and async tool calls, buffers inbound dispatch while
// paused and outbound emits while emit-paused, and optionally echoes locally
// sent envelopes back through its own dispatch.
type Session struct {
	mu      sync.Mutex
	id      string
	echo    bool
	manager *Manager

	started bool
	ending  bool
	ended   bool
	deleted bool

	// inbound dispatch buffer; paused stays true until the drain loop runs dry
	paused   bool
	draining bool
	inbox    []events.Event

	// outbound emit buffer, independent of the dispatch buffer
	emitPaused   bool
	emitDraining bool
	outbox       []events.Event

	properties map[string]any

	exchanges *orderedmap.OrderedMap[string, *Exchange]
	streams   *orderedmap.OrderedMap[string, *InputStream]
	toolCalls *orderedmap.OrderedMap[string, *ToolCall]
	errs      *orderedmap.OrderedMap[string, events.StartError]

	onStarted          handlers[events.SessionStarted]
	onEnding           handlers[events.SessionEnding]
	onEnded            handlers[events.EndSession]
	onMeta             handlers[events.MetaEvent]
	onLabelUpdated     handlers[events.LabelUpdated]
	onExchangeStart    handlers[events.StartExchange]
	onInputStreamStart handlers[events.StartInputStream]
	onToolCallStart    handlers[events.StartToolCall]
	onErrorStart       handlers[events.StartError]
	onErrorEnd         handlers[events.EndError]
	onDeleted          handlers[struct{}]
}

func newSession(manager *Manager, o SessionOptions) *Session {
	props := o.Properties
	if props == nil {
		props = make(map[string]any)
	}
	return &Session{
		id:         o.ConversationID,
		echo:       o.Echo,
		manager:    manager,
		properties: props,
		exchanges:  orderedmap.New[string, *Exchange](),
		streams:    orderedmap.New[string, *InputStream](),
		toolCalls:  orderedmap.New[string, *ToolCall](),
		errs:       orderedmap.New[string, events.StartError](),
	}
}

// ID returns the conversation id this session is keyed by.
func (s *Session) ID() string { return s.id }

// Started reports whether the sessionStarted envelope has been processed.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Ending reports whether a server-driven sessionEnding advisory arrived.
func (s *Session) Ending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ending
}

// Ended reports whether the session has ended.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Deleted reports whether the session was deleted.
func (s *Session) Deleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

// Paused reports whether inbound dispatch is being buffered. It stays true
// until Resume has fully drained the buffer, including events queued while
// draining.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// EmitsPaused reports whether outbound emits are being buffered.
func (s *Session) EmitsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitPaused
}

// InErrorScope reports whether any protocol error is open directly on this
// session.
func (s *Session) InErrorScope() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.Len() > 0
}

// Properties returns the session's opaque metadata bag.
func (s *Session) Properties() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.properties
}

// SetProperties replaces the session's opaque metadata bag.
func (s *Session) SetProperties(props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if props == nil {
		props = make(map[string]any)
	}
	s.properties = props
}

// Exchange looks up a child exchange by id.
func (s *Session) Exchange(id string) (*Exchange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges.Get(id)
}

// InputStream looks up a child input stream by id.
func (s *Session) InputStream(id string) (*InputStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams.Get(id)
}

// ToolCall looks up a session-level async tool call by id.
func (s *Session) ToolCall(id string) (*ToolCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolCalls.Get(id)
}

func (s *Session) guardSend(op string) error {
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

// SendStarted announces the session as live.
func (s *Session) SendStarted() error {
	if err := s.guardSend("start session"); err != nil {
		return err
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s.emit(events.SessionStarted{ConversationID: s.id, Timestamp: now()})
}

// SendEnd terminates the session. Single-fire: a second call fails with
// ErrHelperEnded.
func (s *Session) SendEnd() error {
	if err := s.guardSend("end session"); err != nil {
		return err
	}
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	return s.emit(events.EndSession{ConversationID: s.id, Timestamp: now()})
}

// SendMeta emits an opaque structured payload scoped to the session.
func (s *Session) SendMeta(payload gjson.Result) error {
	if err := s.guardSend("send meta event"); err != nil {
		return err
	}
	return s.emit(events.MetaEvent{ConversationID: s.id, Payload: payload, Timestamp: now()})
}

// SendErrorStart opens a protocol error scoped to the session.
func (s *Session) SendErrorStart(perr ProtocolError) error {
	if err := s.guardSend("start session error"); err != nil {
		return err
	}
	return s.emit(startErrorEvent(s.id, events.Scope{}, perr))
}

// SendErrorEnd closes a protocol error on the session. This is the one send
// still allowed after the session ended, but not after deletion.
func (s *Session) SendErrorEnd(errorID string) error {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return fmt.Errorf("end session error: %w", ErrHelperDeleted)
	}
	s.mu.Unlock()
	return s.emit(events.EndError{ConversationID: s.id, ErrorID: errorID, Timestamp: now()})
}

// StartExchange creates and registers a child exchange, emits its start
// envelope and returns the helper.
func (s *Session) StartExchange(options ...ExchangeOption) (*Exchange, error) {
	if err := s.guardSend("start exchange"); err != nil {
		return nil, err
	}

	var o ExchangeOptions
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}
	if o.ExchangeID == "" {
		o.ExchangeID = uuidx.Prefixed("exch")
	}

	start := events.StartExchange{ConversationID: s.id, ExchangeID: o.ExchangeID, Timestamp: now()}
	x := newExchange(s, o.ExchangeID, &start)
	s.mu.Lock()
	s.exchanges.Set(x.id, x)
	s.mu.Unlock()

	if err := s.emit(start); err != nil {
		return nil, err
	}
	return x, nil
}

// WithExchange starts an exchange, invokes fn, and sends the exchange end
// after fn returns successfully. A failing fn propagates to the caller
// without ending the exchange.
func (s *Session) WithExchange(fn func(*Exchange) error, options ...ExchangeOption) error {
	x, err := s.StartExchange(options...)
	if err != nil {
		return err
	}
	if err := fn(x); err != nil {
		return err
	}
	return x.SendEnd()
}

// StartInputStream creates and registers an async input stream, emits its
// start envelope and returns the helper.
func (s *Session) StartInputStream(options ...InputStreamOption) (*InputStream, error) {
	if err := s.guardSend("start input stream"); err != nil {
		return nil, err
	}

	var o InputStreamOptions
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}
	if o.InputStreamID == "" {
		o.InputStreamID = uuidx.Prefixed("stream")
	}

	start := events.StartInputStream{
		ConversationID: s.id,
		InputStreamID:  o.InputStreamID,
		MimeType:       o.MimeType,
		Timestamp:      now(),
	}
	stream := newInputStream(s, o.InputStreamID, &start)
	s.mu.Lock()
	s.streams.Set(stream.id, stream)
	s.mu.Unlock()

	if err := s.emit(start); err != nil {
		return nil, err
	}
	return stream, nil
}

// WithInputStream starts an input stream, invokes fn, and sends the stream
// end after fn returns successfully.
func (s *Session) WithInputStream(fn func(*InputStream) error, options ...InputStreamOption) error {
	stream, err := s.StartInputStream(options...)
	if err != nil {
		return err
	}
	if err := fn(stream); err != nil {
		return err
	}
	return stream.SendEnd()
}

// StartToolCall creates and registers a session-level async tool call, emits
// its start envelope and returns the helper.
func (s *Session) StartToolCall(options ...ToolCallOption) (*ToolCall, error) {
	if err := s.guardSend("start tool call"); err != nil {
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
		ConversationID: s.id,
		ToolCallID:     o.ToolCallID,
		Name:           o.Name,
		Arguments:      o.Arguments,
		Timestamp:      now(),
	}
	call := newToolCall(s, events.Scope{ToolCallID: o.ToolCallID}, &start)
	s.mu.Lock()
	s.toolCalls.Set(call.id, call)
	s.mu.Unlock()

	if err := s.emit(start); err != nil {
		return nil, err
	}
	return call, nil
}

// WithToolCall starts an async tool call, invokes fn, and ends the call with
// fn's output after it returns successfully.
func (s *Session) WithToolCall(fn func(*ToolCall) (string, error), options ...ToolCallOption) error {
	call, err := s.StartToolCall(options...)
	if err != nil {
		return err
	}
	output, err := fn(call)
	if err != nil {
		return err
	}
	return call.SendEnd(output)
}

// Pause buffers every inbound dispatched envelope, echoed self-originated
// ones included, until Resume. Calling Pause repeatedly is idempotent.
func (s *Session) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume replays the dispatch buffer in original arrival order, then clears
// it. Events queued by handlers during the drain join the back of the queue
// and are drained too. Resume on a session that is not paused is a no-op.
func (s *Session) Resume() {
	s.mu.Lock()
	if !s.paused || s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.inbox) == 0 {
			s.paused = false
			s.draining = false
			s.mu.Unlock()
			return
		}
		ev := s.inbox[0]
		s.inbox = s.inbox[1:]
		s.mu.Unlock()
		s.deliver(ev)
	}
}

// PauseEmits buffers every outbound emit until ResumeEmits. The echoed
// dispatch of a locally sent envelope is unaffected: echo bypasses the emit
// buffer.
func (s *Session) PauseEmits() {
	s.mu.Lock()
	s.emitPaused = true
	s.mu.Unlock()
}

// ResumeEmits flushes the emit buffer in order, then clears it. Flushing
// includes events buffered while the flush is in progress.
func (s *Session) ResumeEmits() {
	s.mu.Lock()
	if !s.emitPaused || s.emitDraining {
		s.mu.Unlock()
		return
	}
	s.emitDraining = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.emitPaused = false
			s.emitDraining = false
			s.mu.Unlock()
			return
		}
		ev := s.outbox[0]
		s.outbox = s.outbox[1:]
		s.mu.Unlock()
		if err := s.forward(ev); err != nil {
			slog.Error("failed to flush buffered emit", slogx.Error(err), slogx.Conversation(s.id))
		}
	}
}

// Delete cascades delete to every child exchange, input stream and tool
// call, then fires this session's own OnDeleted handlers.
func (s *Session) Delete() {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return
	}
	s.deleted = true
	exchanges := make([]*Exchange, 0, s.exchanges.Len())
	for pair := s.exchanges.Oldest(); pair != nil; pair = pair.Next() {
		exchanges = append(exchanges, pair.Value)
	}
	streams := make([]*InputStream, 0, s.streams.Len())
	for pair := s.streams.Oldest(); pair != nil; pair = pair.Next() {
		streams = append(streams, pair.Value)
	}
	calls := make([]*ToolCall, 0, s.toolCalls.Len())
	for pair := s.toolCalls.Oldest(); pair != nil; pair = pair.Next() {
		calls = append(calls, pair.Value)
	}
	s.mu.Unlock()

	for _, x := range exchanges {
		x.delete()
	}
	for _, stream := range streams {
		stream.delete()
	}
	for _, call := range calls {
		call.delete()
	}
	s.onDeleted.invoke(struct{}{})

	if s.manager != nil {
		s.manager.removeSession(s)
	}
}

// OnStarted registers a handler for the sessionStarted envelope.
func (s *Session) OnStarted(fn func(events.SessionStarted)) func() {
	return s.onStarted.add(fn)
}

// OnEnding registers a handler for the server-driven sessionEnding advisory.
func (s *Session) OnEnding(fn func(events.SessionEnding)) func() {
	return s.onEnding.add(fn)
}

// OnEnded registers a handler fired when the endSession envelope is
// processed.
func (s *Session) OnEnded(fn func(events.EndSession)) func() {
	return s.onEnded.add(fn)
}

// OnMeta registers a handler for meta events.
func (s *Session) OnMeta(fn func(events.MetaEvent)) func() {
	return s.onMeta.add(fn)
}

// OnLabelUpdated registers a handler for label updates.
func (s *Session) OnLabelUpdated(fn func(events.LabelUpdated)) func() {
	return s.onLabelUpdated.add(fn)
}

// OnExchangeStart registers a handler fired when an exchange opens on this
// session.
func (s *Session) OnExchangeStart(fn func(events.StartExchange)) func() {
	return s.onExchangeStart.add(fn)
}

// OnInputStreamStart registers a handler fired when an input stream opens.
func (s *Session) OnInputStreamStart(fn func(events.StartInputStream)) func() {
	return s.onInputStreamStart.add(fn)
}

// OnToolCallStart registers a handler fired when a session-level async tool
// call opens.
func (s *Session) OnToolCallStart(fn func(events.StartToolCall)) func() {
	return s.onToolCallStart.add(fn)
}

// OnErrorStart registers a local protocol error handler. A session with a
// registered handler counts as having handled its errors locally, keeping
// them away from the manager's unhandled fallback.
func (s *Session) OnErrorStart(fn func(events.StartError)) func() {
	return s.onErrorStart.add(fn)
}

// OnErrorEnd registers a handler for protocol error ends.
func (s *Session) OnErrorEnd(fn func(events.EndError)) func() {
	return s.onErrorEnd.add(fn)
}

// OnDeleted registers a handler fired once when the session is deleted.
func (s *Session) OnDeleted(fn func()) func() {
	return s.onDeleted.add(func(struct{}) { fn() })
}

func (s *Session) emit(ev events.Event) error {
	s.mu.Lock()
	buffered := s.emitPaused
	if buffered {
		s.outbox = append(s.outbox, ev)
	}
	echo := s.echo
	s.mu.Unlock()

	var err error
	if !buffered {
		err = s.forward(ev)
	}
	if echo {
		s.Dispatch(ev)
	}
	return err
}

func (s *Session) forward(ev events.Event) error {
	if s.manager == nil {
		return nil
	}
	return s.manager.Emit(ev)
}

// Dispatch routes an inbound envelope through this session. Envelopes for a
// different conversation are ignored. While paused, envelopes queue in
// arrival order instead of reaching handlers.
func (s *Session) Dispatch(ev events.Event) {
	if ev == nil || ev.Conversation() != s.id {
		return
	}
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return
	}
	if s.paused {
		s.inbox = append(s.inbox, ev)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.deliver(ev)
}

func (s *Session) deliver(ev events.Event) {
	switch event := ev.(type) {
	case events.SessionStarted:
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		s.onStarted.invoke(event)
	case events.SessionEnding:
		s.mu.Lock()
		s.ending = true
		s.mu.Unlock()
		s.onEnding.invoke(event)
	case events.EndSession:
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
		s.onEnded.invoke(event)
	case events.MetaEvent:
		s.onMeta.invoke(event)
	case events.LabelUpdated:
		s.onLabelUpdated.invoke(event)
	case events.StartExchange:
		start := event
		s.exchangeFor(event.ExchangeID, &start)
		s.onExchangeStart.invoke(event)
	case events.EndExchange:
		x, _ := s.exchangeFor(event.ExchangeID, nil)
		x.dispatch(event)
	case events.StartMessage:
		x, _ := s.exchangeFor(event.ExchangeID, nil)
		x.dispatch(event)
	case events.EndMessage:
		x, _ := s.exchangeFor(event.ExchangeID, nil)
		x.dispatch(event)
	case events.StartContentPart:
		x, _ := s.exchangeFor(event.ExchangeID, nil)
		x.dispatch(event)
	case events.ContentPartChunk:
		x, _ := s.exchangeFor(event.ExchangeID, nil)
		x.dispatch(event)
	case events.EndContentPart:
		x, _ := s.exchangeFor(event.ExchangeID, nil)
		x.dispatch(event)
	case events.StartInputStream:
		start := event
		s.streamFor(event.InputStreamID, &start)
		s.onInputStreamStart.invoke(event)
	case events.InputStreamChunk:
		stream, _ := s.streamFor(event.InputStreamID, nil)
		stream.dispatch(event)
	case events.EndInputStream:
		stream, _ := s.streamFor(event.InputStreamID, nil)
		stream.dispatch(event)
	case events.StartToolCall:
		if event.ExchangeID == "" {
			start := event
			s.sessionToolCallFor(event.ToolCallID, &start)
			s.onToolCallStart.invoke(event)
			return
		}
		x, _ := s.exchangeFor(event.ExchangeID, nil)
		x.dispatch(event)
	case events.EndToolCall:
		if event.ExchangeID == "" {
			call, _ := s.sessionToolCallFor(event.ToolCallID, nil)
			call.dispatch(event)
			return
		}
		x, _ := s.exchangeFor(event.ExchangeID, nil)
		x.dispatch(event)
	case events.StartError:
		s.deliverErrorStart(event)
	case events.EndError:
		s.deliverErrorEnd(event)
	}
}

func (s *Session) exchangeFor(id string, start *events.StartExchange) (*Exchange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.exchanges.Get(id)
	if !ok {
		x = newExchange(s, id, start)
		s.exchanges.Set(id, x)
		return x, true
	}
	if start != nil {
		x.mu.Lock()
		if x.start == nil {
			x.start = start
		}
		x.mu.Unlock()
	}
	return x, false
}

func (s *Session) streamFor(id string, start *events.StartInputStream) (*InputStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, ok := s.streams.Get(id)
	if !ok {
		stream = newInputStream(s, id, start)
		s.streams.Set(id, stream)
		return stream, true
	}
	if start != nil {
		stream.mu.Lock()
		if stream.start == nil {
			stream.start = start
		}
		stream.mu.Unlock()
	}
	return stream, false
}

func (s *Session) sessionToolCallFor(id string, start *events.StartToolCall) (*ToolCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.toolCalls.Get(id)
	if !ok {
		call = newToolCall(s, events.Scope{ToolCallID: id}, start)
		s.toolCalls.Set(id, call)
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

// deliverErrorStart walks from the scope's target node up to the session,
// tracking the error registry only on the exact target and invoking local
// error handlers leaf to root.
func (s *Session) deliverErrorStart(e events.StartError) {
	handled := false
	sc := e.Scope

	switch {
	case sc.IsSession():
		s.trackErrorStart(e)
	case sc.InputStreamID != "":
		if stream, ok := s.InputStream(sc.InputStreamID); ok {
			stream.trackErrorStart(e)
			if stream.localErrorStart(e) {
				handled = true
			}
		}
	case sc.ToolCallID != "" && sc.ExchangeID == "":
		if call, ok := s.ToolCall(sc.ToolCallID); ok {
			call.trackErrorStart(e)
			if call.localErrorStart(e) {
				handled = true
			}
		}
	case sc.ExchangeID != "":
		if x, ok := s.Exchange(sc.ExchangeID); ok {
			if sc.MessageID != "" {
				if msg, mok := x.messageForScope(sc); mok {
					switch {
					case sc.ContentPartID != "":
						if part, pok := msg.ContentPart(sc.ContentPartID); pok {
							part.trackErrorStart(e)
							if part.localErrorStart(e) {
								handled = true
							}
						}
					case sc.ToolCallID != "":
						if call, cok := msg.ToolCall(sc.ToolCallID); cok {
							call.trackErrorStart(e)
							if call.localErrorStart(e) {
								handled = true
							}
						}
					default:
						msg.trackErrorStart(e)
					}
					if msg.localErrorStart(e) {
						handled = true
					}
				}
			} else {
				x.trackErrorStart(e)
			}
			if x.localErrorStart(e) {
				handled = true
			}
		}
	}

	if s.onErrorStart.registered() {
		s.onErrorStart.invoke(e)
		handled = true
	}

	if s.manager != nil {
		s.manager.notifyErrorStart(e, handled)
	}
}

func (s *Session) deliverErrorEnd(e events.EndError) {
	sc := e.Scope

	switch {
	case sc.IsSession():
		s.trackErrorEnd(e)
	case sc.InputStreamID != "":
		if stream, ok := s.InputStream(sc.InputStreamID); ok {
			stream.trackErrorEnd(e)
			stream.localErrorEnd(e)
		}
	case sc.ToolCallID != "" && sc.ExchangeID == "":
		if call, ok := s.ToolCall(sc.ToolCallID); ok {
			call.trackErrorEnd(e)
			call.localErrorEnd(e)
		}
	case sc.ExchangeID != "":
		if x, ok := s.Exchange(sc.ExchangeID); ok {
			if sc.MessageID != "" {
				if msg, mok := x.messageForScope(sc); mok {
					switch {
					case sc.ContentPartID != "":
						if part, pok := msg.ContentPart(sc.ContentPartID); pok {
							part.trackErrorEnd(e)
							part.localErrorEnd(e)
						}
					case sc.ToolCallID != "":
						if call, cok := msg.ToolCall(sc.ToolCallID); cok {
							call.trackErrorEnd(e)
							call.localErrorEnd(e)
						}
					default:
						msg.trackErrorEnd(e)
					}
					msg.localErrorEnd(e)
				}
			} else {
				x.trackErrorEnd(e)
			}
			x.localErrorEnd(e)
		}
	}

	s.onErrorEnd.invoke(e)

	if s.manager != nil {
		s.manager.notifyErrorEnd(e)
	}
}

func (s *Session) trackErrorStart(e events.StartError) {
	s.mu.Lock()
	s.errs.Set(e.ErrorID, e)
	s.mu.Unlock()
}

func (s *Session) trackErrorEnd(e events.EndError) {
	s.mu.Lock()
	s.errs.Delete(e.ErrorID)
	s.mu.Unlock()
}
