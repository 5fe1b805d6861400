package conversation

import (
	"testing"

	"github.com/casualjim/parley/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStartSessionRequiresID(t *testing.T) {
	manager := NewManager(nil)
	_, err := manager.StartSession()
	require.ErrorIs(t, err, ErrMissingConversationID)
}

func TestManagerStartSessionReplacesDuplicate(t *testing.T) {
	manager := NewManager(nil)

	first, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	var deleted bool
	first.OnDeleted(func() { deleted = true })

	second, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	assert.True(t, deleted)
	assert.True(t, first.Deleted())

	got, ok := manager.Session("conv-1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, manager.Len())
}

func TestManagerDispatchRoutesByConversation(t *testing.T) {
	manager := NewManager(nil)
	one, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)
	two, err := manager.StartSession(WithConversationID("conv-2"))
	require.NoError(t, err)

	var hits []string
	one.OnExchangeStart(func(events.StartExchange) { hits = append(hits, "one") })
	two.OnExchangeStart(func(events.StartExchange) { hits = append(hits, "two") })

	manager.Dispatch(events.StartExchange{ConversationID: "conv-2", ExchangeID: "e1", Timestamp: now()})
	// unknown conversations are dropped without side effects
	manager.Dispatch(events.StartExchange{ConversationID: "conv-9", ExchangeID: "e1", Timestamp: now()})

	assert.Equal(t, []string{"two"}, hits)
}

func TestManagerClose(t *testing.T) {
	manager := NewManager(nil)
	for _, id := range []string{"conv-1", "conv-2"} {
		_, err := manager.StartSession(WithConversationID(id))
		require.NoError(t, err)
	}

	manager.Close()
	assert.Equal(t, 0, manager.Len())
}

func errorAt(scope events.Scope) events.StartError {
	return events.StartError{
		ConversationID: "conv-1",
		Scope:          scope,
		ErrorID:        "err_1",
		Message:        "boom",
		Timestamp:      now(),
	}
}

func TestManagerUnhandledErrorFiresWithoutLocalHandlers(t *testing.T) {
	manager := NewManager(nil)
	_, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	var unhandled []string
	manager.OnUnhandledErrorStart(func(e events.StartError) { unhandled = append(unhandled, e.ErrorID) })

	manager.Dispatch(errorAt(events.Scope{}))
	assert.Equal(t, []string{"err_1"}, unhandled)
}

func TestManagerLocalHandlerSuppressesUnhandled(t *testing.T) {
	manager := NewManager(nil)
	session, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	var local, unhandled int
	session.OnErrorStart(func(events.StartError) { local++ })
	manager.OnUnhandledErrorStart(func(events.StartError) { unhandled++ })

	manager.Dispatch(errorAt(events.Scope{}))

	assert.Equal(t, 1, local)
	assert.Zero(t, unhandled)
}

func TestManagerAnyTapSuppressesUnhandled(t *testing.T) {
	manager := NewManager(nil)
	_, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	var any, unhandled int
	manager.OnAnyErrorStart(func(events.StartError) { any++ })
	manager.OnUnhandledErrorStart(func(events.StartError) { unhandled++ })

	manager.Dispatch(errorAt(events.Scope{}))

	assert.Equal(t, 1, any)
	assert.Zero(t, unhandled)
}

func TestManagerAnyTapMirrorsHandledErrors(t *testing.T) {
	manager := NewManager(nil)
	session, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	var local, any, unhandled int
	session.OnErrorStart(func(events.StartError) { local++ })
	manager.OnAnyErrorStart(func(events.StartError) { any++ })
	manager.OnUnhandledErrorStart(func(events.StartError) { unhandled++ })

	manager.Dispatch(errorAt(events.Scope{}))

	// the tap observes every error, handled or not
	assert.Equal(t, 1, local)
	assert.Equal(t, 1, any)
	assert.Zero(t, unhandled)
}

func TestManagerAncestorHandlerCountsAsHandled(t *testing.T) {
	manager := NewManager(nil)
	session, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	// materialize exchange -> message -> content part from the wire
	manager.Dispatch(events.StartExchange{ConversationID: "conv-1", ExchangeID: "e1", Timestamp: now()})
	manager.Dispatch(events.StartMessage{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", Role: "assistant", Timestamp: now()})
	manager.Dispatch(events.StartContentPart{ConversationID: "conv-1", ExchangeID: "e1", MessageID: "m1", ContentPartID: "p1", Timestamp: now()})

	x, ok := session.Exchange("e1")
	require.True(t, ok)
	msg, ok := x.Message("m1")
	require.True(t, ok)

	var seen []string
	msg.OnErrorStart(func(e events.StartError) { seen = append(seen, e.ErrorID) })

	var unhandled int
	manager.OnUnhandledErrorStart(func(events.StartError) { unhandled++ })

	scope := events.Scope{ExchangeID: "e1", MessageID: "m1", ContentPartID: "p1"}
	manager.Dispatch(errorAt(scope))

	assert.Equal(t, []string{"err_1"}, seen)
	assert.Zero(t, unhandled)

	part, ok := msg.ContentPart("p1")
	require.True(t, ok)
	assert.True(t, part.InErrorScope())

	manager.Dispatch(events.EndError{ConversationID: "conv-1", Scope: scope, ErrorID: "err_1", Timestamp: now()})
	assert.False(t, part.InErrorScope())
}

func TestManagerAnyErrorEndTap(t *testing.T) {
	manager := NewManager(nil)
	_, err := manager.StartSession(WithConversationID("conv-1"))
	require.NoError(t, err)

	var closed []string
	manager.OnAnyErrorEnd(func(e events.EndError) { closed = append(closed, e.ErrorID) })

	manager.Dispatch(errorAt(events.Scope{}))
	manager.Dispatch(events.EndError{ConversationID: "conv-1", ErrorID: "err_1", Timestamp: now()})

	assert.Equal(t, []string{"err_1"}, closed)
}
