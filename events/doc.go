// Package events defines the wire envelopes exchanged during a conversation
// session. Every envelope is a variant of a closed tagged union keyed by the
// identifier it targets, carrying the owning conversation id plus the ids of
// any nesting levels between the conversation and the target node.
//
// Design decisions:
//   - Closed union: a private marker method keeps the variant set exhaustive,
//     so dispatch is an explicit type switch rather than property sniffing
//   - Efficient JSON: custom marshaling with pre-allocated type markers,
//     writing only the identifier fields a variant actually carries
//   - Error context: protocol errors are envelopes like any other, scoped to
//     an arbitrary nesting level through their Scope ids
//
// Envelope hierarchy:
//   - Event: base interface for all conversation envelopes
//     ├── SessionStarted / SessionEnding / EndSession: session lifecycle
//     ├── MetaEvent / LabelUpdated: session metadata
//     ├── StartExchange / EndExchange: one conversational turn
//     ├── StartMessage / EndMessage: one message within an exchange
//     ├── StartContentPart / ContentPartChunk / EndContentPart: chunked data
//     ├── StartInputStream / InputStreamChunk / EndInputStream: async input
//     ├── StartToolCall / EndToolCall: tool invocations, message or session scoped
//     └── StartError / EndError: protocol errors, scoped to any level
//
// The package also holds the historical exchange records that Session.Replay
// expands into the same envelope sequence a live exchange produces.
package events
