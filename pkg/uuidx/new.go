package uuidx

import (
	"fmt"

	"github.com/google/uuid"
)

// New generates a new UUID using the version 7 format and returns it.
// It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new UUID using the version 7 format and returns it as a string.
// It utilizes the New function to create the UUID and then converts it to a string.
func NewString() string {
	return New().String()
}

// Prefixed returns a new v7 UUID string prefixed with the given tag and an
// underscore. Helper nodes use this so an identifier reveals the node kind
// it was generated for (e.g. "exch", "msg", "part").
func Prefixed(tag string) string {
	return fmt.Sprintf("%s_%s", tag, NewString())
}
