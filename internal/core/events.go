package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Outbound event types fanned out by a room. The joining ack and error
// envelopes are connection-scoped and live in the signal adapter.
const (
	EventParticipantsUpdate = "participants_update"
	EventRouletteResult     = "roulette_result"
	EventRoomExpired        = "room_expired"
)

type rosterEvent struct {
	Type         string           `json:"type"`
	Participants []ParticipantDTO `json:"participants"`
}

type resultEvent struct {
	Type   string         `json:"type"`
	Winner ParticipantDTO `json:"winner"`
}

type expiredEvent struct {
	Type string `json:"type"`
}

func mustFrame(v any) Frame {
	b, err := json.Marshal(v)
	if err != nil {
		// Plain structs over json never fail to marshal; log and move on.
		log.Error().Str("module", "core.events").Err(err).Msg("marshal event")
		return nil
	}
	return b
}

func rosterFrame(ps []ParticipantDTO) Frame {
	return mustFrame(rosterEvent{Type: EventParticipantsUpdate, Participants: ps})
}

func resultFrame(w ParticipantDTO) Frame {
	return mustFrame(resultEvent{Type: EventRouletteResult, Winner: w})
}

func expiredFrame() Frame {
	return mustFrame(expiredEvent{Type: EventRoomExpired})
}
