package core

import (
	"time"

	"kahve-ruleti-server/internal/domain"
)

// Frame is a marshaled outbound event payload.
type Frame []byte

// Subscriber abstracts the transport endpoint a room fans out to.
// Owned by the adapter; the adapter must Close() it.
type Subscriber interface {
	TrySend(Frame) error
	Close()
}

// ParticipantDTO is a read-only roster view for APIs (no transport fields).
type ParticipantDTO struct {
	ID       domain.ConnectionID `json:"id"`
	Name     string              `json:"name"`
	JoinedAt time.Time           `json:"joinedAt"`
}

// Summary is the snapshot served on page load, before a realtime
// connection exists. The owner field name is what the client reads.
type Summary struct {
	Owner        string           `json:"owner"`
	Participants []ParticipantDTO `json:"participants"`
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped int
}
