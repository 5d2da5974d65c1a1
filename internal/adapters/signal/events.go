package signal

// Connection-scoped wire messages. Room-wide events (roster updates, the
// selection result, the expiry notice) are built and fanned out by the core.

type envelope struct {
	Type string `json:"type"`
}

type joinPayload struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type startPayload struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type joinedAck struct {
	Type string `json:"type"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	msgJoinRoom      = "join_room"
	msgStartRoulette = "start_roulette"
	msgPing          = "ping"

	msgJoined        = "joined"
	msgJoinError     = "join_error"
	msgRouletteError = "roulette_error"
	msgPong          = "pong"
)
