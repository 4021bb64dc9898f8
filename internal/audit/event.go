package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	KindOpened    Kind = "opened"
	KindLogin     Kind = "login"
	KindViolation Kind = "violation"
	KindClosed    Kind = "closed"
	KindFault     Kind = "fault"
)

// Event is one row of the connection_events table.
type Event struct {
	ID         uuid.UUID
	ConnID     uuid.UUID
	Kind       Kind
	LoginID    string // Empty before login
	RemoteAddr string
	Error      string // Only for KindFault
	At         time.Time
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind Kind, connID uuid.UUID, loginID, remoteAddr string) Event {
	return Event{
		ID:         uuid.New(),
		ConnID:     connID,
		Kind:       kind,
		LoginID:    loginID,
		RemoteAddr: remoteAddr,
		At:         time.Now().UTC(),
	}
}

// Recorder accepts lifecycle events. Record must not block the caller.
type Recorder interface {
	Record(e Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(Event) {}
