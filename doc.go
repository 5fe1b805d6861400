// Package parley implements a bidirectional event protocol for
// conversational agents. Both peers of a reliable, ordered, full-duplex
// channel exchange self-describing envelopes and mirror each other's
// conversation state through a tree of helpers: session, exchange, message,
// content part, input stream and tool call.
//
// The conversation package holds the protocol engine, the events package the
// wire envelopes, and the transport package multiplexes many conversations
// over a shared socket pool. This package ties them together into an Engine
// ready to drive a conversation end to end.
package parley
