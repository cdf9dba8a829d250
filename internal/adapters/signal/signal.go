package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/app/orch"
	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Options tune the socket; zero values fall back to sane defaults.
type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{Orch: o, Limiter: limiter, opts: opts.withDefaults()}
}

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
		return ErrClosed
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the pumps. Every connection
// is a new ephemeral member.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.NewMemberID()
	meta, err := domain.NewMember(id, c.GetString("display_name"))
	if err != nil {
		meta, _ = domain.NewMember(id, "")
	}
	log.Info().Str("module", "signal").Str("member", string(id)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	sess := core.NewMemberSession(meta, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}
