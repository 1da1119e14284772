package core

import "github.com/google/uuid"

// NewID returns a random identifier for a new editing session.
func NewID() string {
	return uuid.NewString()
}
