// Package natsnet provides a NATS-backed socket provider. NATS multiplexes
// internally, so a socket here is a logical channel over one shared
// connection: emits publish to a prefixed subject and handlers subscribe to
// it.
package natsnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/parley/pkg/slogx"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/casualjim/parley/transport"
	"github.com/fogfish/opts"
	"github.com/nats-io/nats.go"
)

// Options configures a NATS transport.
type Options struct {
	// SubjectPrefix namespaces the subjects sockets publish and subscribe
	// on. Defaults to "parley".
	SubjectPrefix string
}

// Option mutates Options.
type Option = opts.Option[Options]

// WithSubjectPrefix namespaces the subjects sockets use.
var WithSubjectPrefix = opts.ForName[Options, string]("SubjectPrefix")

// Transport adapts one NATS connection to the socket pool contract.
type Transport struct {
	client  *nats.Conn
	options Options

	mu         sync.Mutex
	current    *natsSocket
	statusSubs map[uint64]func(transport.ConnectionStatus)
	nextSub    uint64
}

// New creates a NATS transport over an established connection.
func New(client *nats.Conn, options ...Option) (*Transport, error) {
	def := Options{SubjectPrefix: "parley"}
	if err := opts.Apply(&def, options); err != nil {
		return nil, err
	}
	t := &Transport{
		client:     client,
		options:    def,
		statusSubs: make(map[uint64]func(transport.ConnectionStatus)),
	}

	client.SetDisconnectErrHandler(func(_ *nats.Conn, cause error) {
		reason := "connection lost"
		if cause != nil {
			reason = cause.Error()
		}
		t.dropCurrent(reason)
		t.notifyStatus(transport.StatusDisconnected)
	})
	client.SetReconnectHandler(func(*nats.Conn) {
		t.notifyStatus(transport.StatusConnected)
	})
	client.SetClosedHandler(func(*nats.Conn) {
		t.dropCurrent("connection closed")
		t.notifyStatus(transport.StatusDisconnected)
	})
	return t, nil
}

// ConnectedSocket returns the current logical socket, creating one when none
// exists or the previous one was deprecated or dropped.
func (t *Transport) ConnectedSocket(_ context.Context) (transport.Socket, error) {
	if !t.client.IsConnected() {
		return nil, errors.New("nats connection is not established")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.current.Connected() {
		return t.current, nil
	}
	t.current = newNATSSocket(t.client, t.options.SubjectPrefix)
	return t.current, nil
}

// DeprecateSocket stops handing out the socket for new acquisitions. The
// socket keeps serving in-flight use until disconnected.
func (t *Transport) DeprecateSocket(s transport.Socket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.current.ID() == s.ID() {
		t.current = nil
	}
}

// Disconnect drains the NATS connection.
func (t *Transport) Disconnect() error {
	t.dropCurrent("transport disconnected")
	t.mu.Lock()
	t.current = nil
	t.mu.Unlock()
	return t.client.Drain()
}

// Status maps the NATS connection state onto the transport contract.
func (t *Transport) Status() transport.ConnectionStatus {
	switch t.client.Status() {
	case nats.CONNECTED:
		return transport.StatusConnected
	case nats.CONNECTING, nats.RECONNECTING:
		return transport.StatusConnecting
	default:
		return transport.StatusDisconnected
	}
}

// OnStatusChanged registers a status observer.
func (t *Transport) OnStatusChanged(fn func(transport.ConnectionStatus)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.statusSubs[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.statusSubs, id)
			t.mu.Unlock()
		})
	}
}

func (t *Transport) notifyStatus(status transport.ConnectionStatus) {
	t.mu.Lock()
	fns := make([]func(transport.ConnectionStatus), 0, len(t.statusSubs))
	for _, fn := range t.statusSubs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(status)
	}
}

func (t *Transport) dropCurrent(reason string) {
	t.mu.Lock()
	sock := t.current
	t.mu.Unlock()
	if sock != nil {
		sock.drop(reason)
	}
}

type natsSocket struct {
	id     string
	client *nats.Conn
	prefix string

	mu        sync.Mutex
	connected bool
	subs      []*nats.Subscription
	onDrop    map[uint64]func(string)
	nextID    uint64
	dropOnce  sync.Once
}

func newNATSSocket(client *nats.Conn, prefix string) *natsSocket {
	return &natsSocket{
		id:        uuidx.Prefixed("nats"),
		client:    client,
		prefix:    prefix,
		connected: true,
		onDrop:    make(map[uint64]func(string)),
	}
}

func (s *natsSocket) ID() string { return s.id }

func (s *natsSocket) subject(name string) string {
	return fmt.Sprintf("%s.%s", s.prefix, name)
}

func (s *natsSocket) Emit(name string, payload []byte) error {
	if !s.Connected() {
		return errors.New("socket closed")
	}
	return s.client.Publish(s.subject(name), payload)
}

func (s *natsSocket) On(name string, handler func([]byte)) func() {
	sub, err := s.client.Subscribe(s.subject(name), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		slog.Error("failed to subscribe", slogx.Error(err), slogx.Socket(s.id))
		return func() {}
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				slog.Error("failed to unsubscribe", slogx.Error(err), slogx.Socket(s.id))
			}
		})
	}
}

func (s *natsSocket) OnDisconnect(handler func(string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.onDrop[id] = handler
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.onDrop, id)
			s.mu.Unlock()
		})
	}
}

func (s *natsSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Disconnect tears down this logical socket's subscriptions. The shared NATS
// connection stays up for other sockets.
func (s *natsSocket) Disconnect() error {
	s.drop("closed locally")
	return nil
}

func (s *natsSocket) drop(reason string) {
	s.dropOnce.Do(func() {
		s.mu.Lock()
		s.connected = false
		subs := s.subs
		s.subs = nil
		handlers := make([]func(string), 0, len(s.onDrop))
		for _, fn := range s.onDrop {
			handlers = append(handlers, fn)
		}
		s.mu.Unlock()

		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				slog.Error("failed to unsubscribe", slogx.Error(err), slogx.Socket(s.id))
			}
		}
		for _, fn := range handlers {
			fn(reason)
		}
	})
}
