// Package conversation implements the client-side state machine for
// real-time conversational sessions. A Manager owns one Session per active
// conversation; each Session owns Exchanges, async InputStreams and async
// ToolCalls; an Exchange owns Messages; a Message owns ContentParts and
// ToolCalls. Parents own children exclusively: deleting a parent cascades to
// every descendant, and a child only holds a non-owning back-reference used
// to reach the emit path and the ancestor error scope.
//
// Outbound send* calls funnel upward through parent emit calls until they
// reach the Manager's sink; inbound envelopes enter through Manager.Dispatch
// and are routed down the tree by nested id. Dispatch for an id that does not
// match the receiving node is a silent no-op, never a failure.
//
// Sessions support two independent FIFO buffers: Pause/Resume holds inbound
// dispatch, PauseEmits/ResumeEmits holds outbound emits. With echo enabled,
// locally sent envelopes are fed back through the session's own dispatch so
// local handlers observe them exactly as if the transport had echoed them;
// the echoed dispatch bypasses the emit buffer.
//
// Protocol errors are envelopes, not Go errors. They are tracked per node
// between errorStart and errorEnd, bubble from leaf to root, and fall back to
// the Manager's unhandled-error tap when no node in the ancestor chain
// registered a local handler.
package conversation
