package domain

import (
	"strings"
	"time"
)

const MaxDisplayNameLen = 36

// ConnectionID identifies a live channel subscription. Display names are not
// unique; two participants may share a name and are told apart by this id.
type ConnectionID string

type Participant struct {
	ConnectionID ConnectionID
	Name         string
	JoinedAt     time.Time
}

// NormalizeDisplayName trims and validates a user-supplied name.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return "", ErrNameTooLong
	}
	return name, nil
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(connID ConnectionID, name string) (*Participant, error) {
	name, err := NormalizeDisplayName(name)
	if err != nil {
		return nil, err
	}
	return &Participant{ConnectionID: connID, Name: name, JoinedAt: time.Now()}, nil
}
