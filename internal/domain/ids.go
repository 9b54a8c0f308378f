package domain

import "github.com/google/uuid"

// NewID returns a random identifier with the given prefix, e.g. "ev_3f2a...".
func NewID(prefix string) string {
	if prefix == "" {
		return uuid.New().String()
	}
	return prefix + "_" + uuid.New().String()
}
