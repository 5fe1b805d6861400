package conversation

import "errors"

var (
	// ErrHelperEnded is returned by send and start calls on a node that has
	// already processed its end event. SendErrorEnd is the one exception.
	ErrHelperEnded = errors.New("helper already ended")

	// ErrHelperDeleted is returned by send and start calls on a node that was
	// removed by a cascading delete.
	ErrHelperDeleted = errors.New("helper already deleted")

	// ErrNoStartEvent is returned when reading the start event of a node that
	// was materialized purely to hold dispatch state.
	ErrNoStartEvent = errors.New("helper has no start event")

	// ErrMissingConversationID is returned by Manager.StartSession when no
	// conversation id option was supplied.
	ErrMissingConversationID = errors.New("conversation id is required")
)
