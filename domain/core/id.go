package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	SessionID ID
	ColumnID  ID
	OutputID  ID
)

func (id SessionID) String() string { return ID(id).String() }
func (id ColumnID) String() string  { return ID(id).String() }
func (id OutputID) String() string  { return ID(id).String() }

// NewSessionID creates a fresh session identifier
func NewSessionID() SessionID {
	return SessionID(NewID())
}

// ParseSessionID validates a session identifier received from a client
func ParseSessionID(s string) (SessionID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("session ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("session ID %q is not a UUID: %w", s, err)
	}
	return SessionID(s), nil
}

// ParseColumnID parses a column name. Surrounding whitespace is removed,
// matching how dataset headers are trimmed on load.
func ParseColumnID(s string) (ColumnID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("column name cannot be empty")
	}
	return ColumnID(s), nil
}

// ColumnIDs converts raw names to column IDs, dropping blanks
func ColumnIDs(names []string) []ColumnID {
	ids := make([]ColumnID, 0, len(names))
	for _, n := range names {
		if id, err := ParseColumnID(n); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// ColumnNames converts column IDs back to plain strings
func ColumnNames(ids []ColumnID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return names
}
