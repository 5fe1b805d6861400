// Package transport multiplexes many conversations over a small pool of
// physical sockets. The Mux maps conversation ids to acquired sockets,
// acquires lazily on first send, steers new conversations away from sockets
// that are retiring, and turns physical disconnects into synthetic protocol
// errors fanned out to every conversation sharing the socket.
//
// Concrete socket providers live in the wsnet and natsnet subpackages.
package transport
