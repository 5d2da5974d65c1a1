package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"kahve-ruleti-server/internal/app"
	"kahve-ruleti-server/internal/core"
	"kahve-ruleti-server/internal/domain"
)

var (
	ErrBackpressure = errors.New("subscriber send buffer full")
	ErrConnClosed   = errors.New("subscriber connection closed")
)

const writeTimeout = 5 * time.Second

// Controller is the realtime gateway: it upgrades connections, pumps frames
// and routes inbound messages into the lifecycle manager. No business
// validation happens here.
type Controller struct {
	lifecycle *app.Lifecycle
	registry  *app.Registry
	limiter   *RateLimiter
	readLimit int64
}

func NewController(lifecycle *app.Lifecycle, registry *app.Registry, limiter *RateLimiter, readLimit int64) *Controller {
	return &Controller{
		lifecycle: lifecycle,
		registry:  registry,
		limiter:   limiter,
		readLimit: readLimit,
	}
}

// wsConn adapts a websocket connection into a core.Subscriber with a
// buffered send queue. TrySend never blocks; a full queue is backpressure.
// Close may race with TrySend from other goroutines, so both serialize on
// the mutex and a closed connection rejects sends instead of panicking on
// the closed channel.
type wsConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan core.Frame
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("module", "adapters.signal").Err(err).Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	connID := domain.ConnectionID(uuid.NewString())
	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.registry.Bind(connID, conn)
	log.Info().Str("module", "adapters.signal").Str("conn", string(connID)).Msg("ws connected")

	go ctl.writePump(ctx, connID, conn)
	go ctl.readPump(ctx, cancel, connID, token, conn)
}

func (ctl *Controller) writePump(ctx context.Context, connID domain.ConnectionID, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Warn().Str("module", "adapters.signal").Str("conn", string(connID)).Err(err).Msg("set write deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Str("module", "adapters.signal").Str("conn", string(connID)).Err(err).Msg("write")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, connID domain.ConnectionID, token string, c *wsConn) {
	defer func() {
		cancel()
		ctl.lifecycle.OnDisconnect(connID)
		c.Close()
		log.Info().Str("module", "adapters.signal").Str("conn", string(connID)).Msg("ws closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleMessage(connID, token, c, data)
		}
	}
}

func (ctl *Controller) handleMessage(connID domain.ConnectionID, token string, c *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Str("module", "adapters.signal").Str("conn", string(connID)).Err(err).Msg("bad json")
		return
	}

	switch env.Type {
	case msgPing:
		ctl.sendJSON(c, envelope{Type: msgPong})
	case msgJoinRoom:
		if !ctl.limiter.Allow(token) {
			log.Warn().Str("module", "adapters.signal").Str("conn", string(connID)).Msg("rate limited")
			return
		}
		ctl.handleJoin(connID, c, data)
	case msgStartRoulette:
		if !ctl.limiter.Allow(token) {
			log.Warn().Str("module", "adapters.signal").Str("conn", string(connID)).Msg("rate limited")
			return
		}
		ctl.handleStart(connID, c, data)
	default:
		log.Warn().Str("module", "adapters.signal").Str("type", env.Type).Msg("unknown message")
	}
}

func (ctl *Controller) handleJoin(connID domain.ConnectionID, c *wsConn, data []byte) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Str("module", "adapters.signal").Err(err).Msg("bad join payload")
		return
	}
	roomID := domain.RoomID(p.RoomID)

	// A retried join from the same connection is acked, not re-admitted.
	if bound, _, ok := ctl.registry.RoomOf(connID); ok {
		if bound == roomID {
			ctl.sendJSON(c, joinedAck{Type: msgJoined})
		} else {
			ctl.sendJSON(c, errorMessage{Type: msgJoinError, Message: "already joined another room"})
		}
		return
	}

	if _, err := ctl.lifecycle.Join(roomID, p.Name, connID); err != nil {
		ctl.sendJSON(c, errorMessage{Type: msgJoinError, Message: joinErrorText(err)})
		return
	}
	ctl.sendJSON(c, joinedAck{Type: msgJoined})
}

func (ctl *Controller) handleStart(connID domain.ConnectionID, c *wsConn, data []byte) {
	var p startPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Str("module", "adapters.signal").Err(err).Msg("bad start payload")
		return
	}

	roomID := domain.RoomID(p.RoomID)
	boundRoom, name, ok := ctl.registry.RoomOf(connID)
	if !ok || boundRoom != roomID {
		// Unjoined connections cannot be attributed a requester name.
		log.Debug().Str("module", "adapters.signal").Str("conn", string(connID)).Msg("trigger from unjoined connection")
		return
	}

	_, err := ctl.lifecycle.StartSelection(roomID, name)
	if err == nil {
		// Result already fanned out to the room.
		return
	}
	if msg, notify := startErrorText(err); notify {
		ctl.sendJSON(c, errorMessage{Type: msgRouletteError, Message: msg})
	} else {
		// Silent rejections: no state change, nothing to re-broadcast.
		log.Debug().Str("module", "adapters.signal").Str("conn", string(connID)).Err(err).Msg("trigger rejected")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "adapters.signal").Err(err).Msg("marshal")
		return
	}
	_ = c.TrySend(b)
}

// startErrorText maps a trigger rejection to its client message. The second
// return is false for rejections the client is not told about.
func startErrorText(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrNotAuthorized), errors.Is(err, domain.ErrAlreadyResolved):
		return "", false
	case errors.Is(err, domain.ErrNotEnoughParticipants):
		return "at least two participants required", true
	case errors.Is(err, domain.ErrRoomClosed):
		return "room expired", true
	default:
		return "room not found", true
	}
}

func joinErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, domain.ErrRoomClosed):
		return "room closed for joining"
	case errors.Is(err, domain.ErrNameEmpty), errors.Is(err, domain.ErrNameTooLong):
		return "invalid name"
	default:
		return "join failed"
	}
}
