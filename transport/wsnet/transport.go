// Package wsnet provides a websocket-backed socket pool. Each socket frames
// named payloads as JSON text messages and fans inbound frames out to the
// handlers registered for their event name.
package wsnet

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/casualjim/parley/pkg/slogx"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/casualjim/parley/transport"
	"github.com/coder/websocket"
	"github.com/fogfish/opts"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Options configures a websocket transport.
type Options struct {
	// PoolSize caps the number of concurrently open sockets. Defaults to 1.
	PoolSize int
	// HTTPClient is used for the websocket handshake.
	HTTPClient *http.Client
	// Header carries extra handshake headers, e.g. authorization.
	Header http.Header
}

// Option mutates Options.
type Option = opts.Option[Options]

var (
	// WithPoolSize caps the number of concurrently open sockets.
	WithPoolSize = opts.ForName[Options, int]("PoolSize")
	// WithHTTPClient sets the handshake HTTP client.
	WithHTTPClient = opts.ForName[Options, *http.Client]("HTTPClient")
	// WithHeader sets extra handshake headers.
	WithHeader = opts.ForName[Options, http.Header]("Header")
)

// Transport dials websocket connections to a single endpoint and hands them
// out round-robin up to the pool size.
type Transport struct {
	url     string
	options Options

	mu         sync.Mutex
	sockets    []*wsSocket
	next       int
	status     transport.ConnectionStatus
	statusSubs *statusHandlers
}

// New creates a websocket transport for the given endpoint URL.
func New(url string, options ...Option) (*Transport, error) {
	def := Options{PoolSize: 1}
	if err := opts.Apply(&def, options); err != nil {
		return nil, err
	}
	return &Transport{
		url:        url,
		options:    def,
		status:     transport.StatusDisconnected,
		statusSubs: newStatusHandlers(),
	}, nil
}

// ConnectedSocket returns a connected socket, dialing a fresh one while the
// pool has headroom and rotating through the pool otherwise. Sockets that
// dropped since they were pooled are pruned on the way.
func (t *Transport) ConnectedSocket(ctx context.Context) (transport.Socket, error) {
	t.mu.Lock()
	live := t.sockets[:0]
	for _, sock := range t.sockets {
		if sock.Connected() {
			live = append(live, sock)
		}
	}
	t.sockets = live

	if len(t.sockets) >= t.options.PoolSize {
		t.next = (t.next + 1) % len(t.sockets)
		sock := t.sockets[t.next]
		t.mu.Unlock()
		return sock, nil
	}
	t.mu.Unlock()

	t.setStatus(transport.StatusConnecting)
	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		HTTPClient: t.options.HTTPClient,
		HTTPHeader: t.options.Header,
	})
	if err != nil {
		t.setStatus(transport.StatusDisconnected)
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	sock := newWSSocket(conn)
	sock.OnDisconnect(func(string) { t.prune(sock) })

	t.mu.Lock()
	t.sockets = append(t.sockets, sock)
	t.mu.Unlock()
	t.setStatus(transport.StatusConnected)
	return sock, nil
}

// DeprecateSocket removes the socket from the pool without closing it, so
// in-flight use completes while new acquisitions go elsewhere.
func (t *Transport) DeprecateSocket(s transport.Socket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, sock := range t.sockets {
		if sock.ID() == s.ID() {
			t.sockets = append(t.sockets[:i], t.sockets[i+1:]...)
			return
		}
	}
}

// Disconnect closes every pooled socket and marks the transport down.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	sockets := t.sockets
	t.sockets = nil
	t.mu.Unlock()

	for _, sock := range sockets {
		if err := sock.Disconnect(); err != nil {
			slog.Warn("failed to close websocket", slogx.Error(err), slogx.Socket(sock.ID()))
		}
	}
	t.setStatus(transport.StatusDisconnected)
	return nil
}

// Status returns the current connection status.
func (t *Transport) Status() transport.ConnectionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// OnStatusChanged registers a status observer.
func (t *Transport) OnStatusChanged(fn func(transport.ConnectionStatus)) func() {
	return t.statusSubs.add(fn)
}

func (t *Transport) setStatus(status transport.ConnectionStatus) {
	t.mu.Lock()
	changed := t.status != status
	t.status = status
	t.mu.Unlock()
	if changed {
		t.statusSubs.invoke(status)
	}
}

func (t *Transport) prune(dropped *wsSocket) {
	t.mu.Lock()
	for i, sock := range t.sockets {
		if sock == dropped {
			t.sockets = append(t.sockets[:i], t.sockets[i+1:]...)
			break
		}
	}
	empty := len(t.sockets) == 0
	t.mu.Unlock()
	if empty {
		t.setStatus(transport.StatusDisconnected)
	}
}

type statusHandlers struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(transport.ConnectionStatus)
}

func newStatusHandlers() *statusHandlers {
	return &statusHandlers{fns: make(map[uint64]func(transport.ConnectionStatus))}
}

func (h *statusHandlers) add(fn func(transport.ConnectionStatus)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.fns[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.fns, id)
			h.mu.Unlock()
		})
	}
}

func (h *statusHandlers) invoke(status transport.ConnectionStatus) {
	h.mu.Lock()
	fns := make([]func(transport.ConnectionStatus), 0, len(h.fns))
	for _, fn := range h.fns {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(status)
	}
}

// wsSocket frames named payloads as {"event": name, "payload": ...} text
// messages over one websocket connection.
type wsSocket struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	connected bool
	recv      map[string]map[uint64]func([]byte)
	onDrop    map[uint64]func(string)
	nextID    uint64
	dropOnce  sync.Once
}

func newWSSocket(conn *websocket.Conn) *wsSocket {
	ctx, cancel := context.WithCancel(context.Background())
	s := &wsSocket{
		id:        uuidx.Prefixed("ws"),
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
		connected: true,
		recv:      make(map[string]map[uint64]func([]byte)),
		onDrop:    make(map[uint64]func(string)),
	}
	go s.readLoop()
	return s
}

func (s *wsSocket) ID() string { return s.id }

func (s *wsSocket) Emit(name string, payload []byte) error {
	frame, err := sjson.SetBytes([]byte(`{}`), "event", name)
	if err != nil {
		return err
	}
	if frame, err = sjson.SetRawBytes(frame, "payload", payload); err != nil {
		return err
	}
	return s.conn.Write(s.ctx, websocket.MessageText, frame)
}

func (s *wsSocket) On(name string, handler func([]byte)) func() {
	s.mu.Lock()
	if s.recv[name] == nil {
		s.recv[name] = make(map[uint64]func([]byte))
	}
	id := s.nextID
	s.nextID++
	s.recv[name][id] = handler
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.recv[name], id)
			s.mu.Unlock()
		})
	}
}

func (s *wsSocket) OnDisconnect(handler func(string)) func() {
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

func (s *wsSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *wsSocket) Disconnect() error {
	s.cancel()
	err := s.conn.Close(websocket.StatusNormalClosure, "bye")
	s.drop("closed locally")
	return err
}

func (s *wsSocket) readLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.drop(err.Error())
			return
		}

		name := gjson.GetBytes(data, "event")
		if !name.Exists() {
			slog.Debug("dropping unnamed websocket frame", slogx.Socket(s.id))
			continue
		}
		payload := gjson.GetBytes(data, "payload")

		s.mu.Lock()
		handlers := make([]func([]byte), 0, len(s.recv[name.String()]))
		for _, fn := range s.recv[name.String()] {
			handlers = append(handlers, fn)
		}
		s.mu.Unlock()
		for _, fn := range handlers {
			fn([]byte(payload.Raw))
		}
	}
}

func (s *wsSocket) drop(reason string) {
	s.dropOnce.Do(func() {
		s.mu.Lock()
		s.connected = false
		handlers := make([]func(string), 0, len(s.onDrop))
		for _, fn := range s.onDrop {
			handlers = append(handlers, fn)
		}
		s.mu.Unlock()
		for _, fn := range handlers {
			fn(reason)
		}
	})
}
