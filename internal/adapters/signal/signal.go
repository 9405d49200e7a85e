package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Settings are the transport knobs taken from config.
type Settings struct {
	AllowedOrigin string
	ReadLimit     int64
	PingPeriod    time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	SendBuffer    int
}

func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		AllowedOrigin: cfg.AllowedOrigin,
		ReadLimit:     cfg.ReadLimit,
		PingPeriod:    cfg.PingPeriod,
		PongWait:      cfg.PongWait,
		WriteWait:     cfg.WriteWait,
		SendBuffer:    cfg.SendBuffer,
	}
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	settings Settings
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, s Settings) *SignalWSController {
	return &SignalWSController{
		Orch:     o,
		settings: s,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(s.AllowedOrigin),
		},
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || origin == allowed
	}
}

// WsSignalConn is one websocket with a bounded outbound queue.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client", client).Msg("new WS connection")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.settings.SendBuffer),
	}

	sess := core.NewMemberSession(sid, client, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
