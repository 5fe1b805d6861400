package transport

import "context"

// EventName is the single well-known event every conversation envelope
// travels under, regardless of which socket carries it.
const EventName = "conversation.event"

// ConnectionStatus describes the health of the underlying transport session.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Socket is one physical duplex channel. Several conversations may share a
// single socket.
type Socket interface {
	// ID identifies this socket instance.
	ID() string
	// Emit writes one named payload to the peer.
	Emit(name string, payload []byte) error
	// On registers a handler for inbound payloads with the given name and
	// returns an unregister func.
	On(name string, handler func(payload []byte)) func()
	// OnDisconnect registers a handler fired once when the socket drops,
	// with the disconnect reason. Returns an unregister func.
	OnDisconnect(handler func(reason string)) func()
	// Connected reports whether the socket is still usable.
	Connected() bool
	// Disconnect tears the socket down.
	Disconnect() error
}

// Transport hands out connected sockets from a shared pool and reports the
// session's health.
type Transport interface {
	// ConnectedSocket returns a connected socket, dialing if needed.
	ConnectedSocket(ctx context.Context) (Socket, error)
	// DeprecateSocket marks a socket as retiring: in-flight use completes
	// but it is no longer handed out for new acquisitions.
	DeprecateSocket(Socket)
	// Disconnect tears down the whole transport session.
	Disconnect() error
	// Status returns the current connection status.
	Status() ConnectionStatus
	// OnStatusChanged registers a status observer and returns an unregister
	// func.
	OnStatusChanged(fn func(ConnectionStatus)) func()
}
