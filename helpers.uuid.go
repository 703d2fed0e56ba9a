package main

import (
	"strings"

	"github.com/gofrs/uuid"
)

var _ UIDHandler = (*IDsHandler)(nil) // ensure IDsHandler implements UIDHandler.

// UIDHandler is an interface for getting and checking uids.
type UIDHandler interface {
	Generate(prefix string) string
	IsValid(id, prefix string) bool
	Stamp() string
}

// IDsHandler implements the UIDHandler interface.
type IDsHandler struct{}

// NewIDsHandler returns a ready to use IDsHandler.
func NewIDsHandler() *IDsHandler {
	return &IDsHandler{}
}

// Generate provides a random unique identifier. The prefix is
// joined with a colon unless it is empty.
func (idh *IDsHandler) Generate(prefix string) string {
	id, _ := uuid.NewV4()
	if prefix == "" {
		return id.String()
	}
	return prefix + ":" + id.String()
}

// IsValid checks if a given string is a valid uuid after removal of custom prefix.
func (idh *IDsHandler) IsValid(id, prefix string) bool {
	if prefix != "" {
		id = strings.TrimPrefix(id, prefix+":")
	}
	if u := uuid.FromStringOrNil(id); u != uuid.Nil {
		return true
	}
	return false
}

// Stamp provides a new concurrency stamp made of 32 hex characters.
func (idh *IDsHandler) Stamp() string {
	id, _ := uuid.NewV4()
	return strings.ReplaceAll(id.String(), "-", "")
}
