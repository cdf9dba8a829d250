// Package client is a headless room member: a signal socket feeding a
// reconciler that drives a media sink.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/client/reconcile"
	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/protocol"
)

var (
	ErrNotInRoom = errors.New("not in a room")
	ErrClosed    = errors.New("connection closed")
)

type Options struct {
	Clock            clockwork.Clock
	Reconcile        reconcile.Config
	ReportInterval   time.Duration
	SnapshotInterval time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	RequestTimeout   time.Duration
}

func DefaultOptions() Options {
	return Options{
		Clock:            clockwork.NewRealClock(),
		Reconcile:        reconcile.DefaultConfig(),
		ReportInterval:   time.Second,
		SnapshotInterval: 5 * time.Second,
		PingInterval:     5 * time.Second,
		WriteTimeout:     10 * time.Second,
		RequestTimeout:   5 * time.Second,
	}
}

// offsetSamples bounds the ping history used for the clock offset estimate.
const offsetSamples = 8

type offsetSample struct {
	rtt    time.Duration
	offset time.Duration
}

type Member struct {
	conn  *websocket.Conn
	opts  Options
	clock clockwork.Clock
	rec   *reconcile.Reconciler

	writeMu sync.Mutex

	mu        sync.Mutex
	you       domain.MemberID
	code      domain.RoomCode
	info      protocol.RoomInfo
	indicator protocol.SyncIndicator
	waiters   map[string]chan json.RawMessage
	samples   []offsetSample

	reqSeq atomic.Uint64
	done   chan struct{}
	once   sync.Once
}

// Dial connects to the signal endpoint and wires a reconciler over sink.
func Dial(ctx context.Context, url string, sink reconcile.MediaSink, opts Options) (*Member, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = opts.RequestTimeout
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial signal (status: %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial signal: %w", err)
	}
	m := &Member{
		conn:    conn,
		opts:    opts,
		clock:   opts.Clock,
		waiters: make(map[string]chan json.RawMessage),
		done:    make(chan struct{}),
	}
	m.rec = reconcile.New(opts.Reconcile, opts.Clock, sink, m)
	return m, nil
}

func (m *Member) Reconciler() *reconcile.Reconciler { return m.rec }

func (m *Member) Code() domain.RoomCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code
}

func (m *Member) ID() domain.MemberID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.you
}

func (m *Member) RoomInfo() protocol.RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

func (m *Member) Indicator() protocol.SyncIndicator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indicator
}

// Done is closed once the read loop exits.
func (m *Member) Done() <-chan struct{} { return m.done }

func (m *Member) Close() error {
	m.once.Do(func() { close(m.done) })
	return m.conn.Close()
}

// Run reads until ctx is cancelled or the socket fails, while emitting
// reports, snapshot pulls and pings on their own tickers.
func (m *Member) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.loop(ctx)

	errc := make(chan error, 1)
	go func() { errc <- m.readLoop() }()

	select {
	case <-ctx.Done():
		_ = m.Close()
		<-errc
		return ctx.Err()
	case err := <-errc:
		_ = m.Close()
		return err
	}
}

func (m *Member) loop(ctx context.Context) {
	report := m.clock.NewTicker(m.opts.ReportInterval)
	snapshot := m.clock.NewTicker(m.opts.SnapshotInterval)
	ping := m.clock.NewTicker(m.opts.PingInterval)
	defer report.Stop()
	defer snapshot.Stop()
	defer ping.Stop()

	m.sendPing()
	for {
		select {
		case <-ctx.Done():
			return
		case <-report.Chan():
			m.sendReport()
		case <-snapshot.Chan():
			m.requestSnapshot()
		case <-ping.Chan():
			m.sendPing()
		}
	}
}

func (m *Member) readLoop() error {
	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrClosed
			}
			return fmt.Errorf("read signal: %w", err)
		}
		m.handle(data)
	}
}

func (m *Member) handle(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad frame")
		return
	}
	// Room entry is settled here, before the reply is handed to the waiting
	// request, so states that follow on the wire hit a reset reconciler.
	switch env.Type {
	case protocol.TypeRoomCreated:
		var resp protocol.RoomCreated
		if json.Unmarshal(data, &resp) == nil {
			m.enterRoom(resp.Code, true)
		}
	case protocol.TypeRoomJoined:
		var resp protocol.RoomJoined
		if json.Unmarshal(data, &resp) == nil {
			m.enterRoom(resp.Code, false)
			m.mu.Lock()
			m.you = resp.You
			m.info = protocol.RoomInfo{Type: protocol.TypeRoomInfo, Code: resp.Code, HostID: resp.HostID, MemberCount: resp.MemberCount}
			m.mu.Unlock()
			m.applyState(resp.State)
		}
	}
	if env.ReqID != "" && m.deliver(env.ReqID, data) {
		return
	}
	switch env.Type {
	case protocol.TypePlaybackState, protocol.TypePlaybackSnapshot:
		var s protocol.PlaybackState
		if json.Unmarshal(data, &s) == nil && m.Code() != "" {
			m.applyState(s)
		}
	case protocol.TypePlaybackCorrect:
		var c protocol.PlaybackCorrect
		if json.Unmarshal(data, &c) == nil && m.Code() != "" {
			if err := m.rec.ApplyCorrection(c); err != nil {
				log.Debug().Err(err).Str("module", "client").Uint64("seq", c.Seq).Msg("correction discarded")
			}
		}
	case protocol.TypeSyncIndicator:
		var in protocol.SyncIndicator
		if json.Unmarshal(data, &in) == nil {
			m.mu.Lock()
			m.indicator = in
			m.mu.Unlock()
		}
	case protocol.TypeRoomInfo:
		var info protocol.RoomInfo
		if json.Unmarshal(data, &info) == nil {
			m.mu.Lock()
			m.info = info
			m.mu.Unlock()
		}
	case protocol.TypeRoomClosed:
		m.mu.Lock()
		m.code = ""
		m.info = protocol.RoomInfo{}
		m.mu.Unlock()
		m.rec.Reset()
		log.Info().Str("module", "client").Msg("room closed")
	case protocol.TypePong:
		var p protocol.Pong
		if json.Unmarshal(data, &p) == nil {
			m.onPong(p)
		}
	case protocol.TypeMemberLeft:
		// room-info follows
	case protocol.TypeError:
		var e protocol.Error
		_ = json.Unmarshal(data, &e)
		log.Warn().Str("module", "client").Str("error", e.Error).Msg("server error")
	}
}

// enterRoom records the current room. Seq restarts in every room, so the
// reconciler is reset unless this is a rejoin of the same room.
func (m *Member) enterRoom(code domain.RoomCode, fresh bool) {
	m.mu.Lock()
	prev := m.code
	m.code = code
	m.mu.Unlock()
	if fresh || prev != code {
		m.rec.Reset()
	}
}

func (m *Member) applyState(s protocol.PlaybackState) {
	if err := m.rec.ApplyState(s); err != nil && !errors.Is(err, domain.ErrStaleUpdate) {
		log.Warn().Err(err).Str("module", "client").Msg("apply state")
	}
}

func (m *Member) deliver(reqID string, data []byte) bool {
	m.mu.Lock()
	ch, ok := m.waiters[reqID]
	delete(m.waiters, reqID)
	m.mu.Unlock()
	if ok {
		ch <- data
	}
	return ok
}

// request sends v stamped with a fresh reqId and waits for the echoed reply.
func (m *Member) request(ctx context.Context, build func(reqID string) any) (json.RawMessage, error) {
	reqID := strconv.FormatUint(m.reqSeq.Add(1), 10)
	ch := make(chan json.RawMessage, 1)
	m.mu.Lock()
	m.waiters[reqID] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.waiters, reqID)
		m.mu.Unlock()
	}()

	if err := m.write(build(reqID)); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	select {
	case data := <-ch:
		var e protocol.Error
		if json.Unmarshal(data, &e) == nil && e.Type == protocol.TypeError {
			if e.Error == protocol.ErrCodeRoomNotFound {
				return nil, domain.ErrRoomNotFound
			}
			return nil, fmt.Errorf("server: %s", e.Error)
		}
		return data, nil
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CreateRoom creates a room and joins it as host.
func (m *Member) CreateRoom(ctx context.Context) (domain.RoomCode, error) {
	data, err := m.request(ctx, func(id string) any {
		return protocol.CreateRoom{Type: protocol.TypeCreateRoom, ReqID: id}
	})
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	var resp protocol.RoomCreated
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	// the creator starts from the initial state
	m.requestSnapshot()
	log.Info().Str("module", "client").Str("code", string(resp.Code)).Msg("room created")
	return resp.Code, nil
}

// JoinRoom joins code. The snapshot in the reply is applied by the read loop.
func (m *Member) JoinRoom(ctx context.Context, code domain.RoomCode) error {
	data, err := m.request(ctx, func(id string) any {
		return protocol.JoinRoom{Type: protocol.TypeJoinRoom, ReqID: id, Code: code}
	})
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	var resp protocol.RoomJoined
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	log.Info().Str("module", "client").Str("code", string(resp.Code)).Int("members", resp.MemberCount).Msg("room joined")
	return nil
}

func (m *Member) Leave() error {
	m.mu.Lock()
	m.code = ""
	m.info = protocol.RoomInfo{}
	m.mu.Unlock()
	m.rec.Reset()
	return m.write(protocol.Envelope{Type: protocol.TypeLeaveRoom})
}

// WhoAmI asks the server for this connection's identity.
func (m *Member) WhoAmI(ctx context.Context) (protocol.WhoAmI, error) {
	data, err := m.request(ctx, func(id string) any {
		return protocol.Envelope{Type: protocol.TypeWhoAmI, ReqID: id}
	})
	if err != nil {
		return protocol.WhoAmI{}, fmt.Errorf("whoami: %w", err)
	}
	var w protocol.WhoAmI
	if err := json.Unmarshal(data, &w); err != nil {
		return protocol.WhoAmI{}, fmt.Errorf("whoami: %w", err)
	}
	m.mu.Lock()
	m.you = w.ID
	m.mu.Unlock()
	return w, nil
}

func (m *Member) Rename(name string) error {
	return m.write(protocol.Rename{Type: protocol.TypeRename, Name: name})
}

// SendAction implements reconcile.Outbound.
func (m *Member) SendAction(t domain.ActionType, timeSeconds *float64, rate float64) {
	code := m.Code()
	if code == "" {
		return
	}
	err := m.write(protocol.PlaybackAction{
		Type:         protocol.TypePlaybackAction,
		Code:         code,
		Action:       string(t),
		TimeSeconds:  timeSeconds,
		PlaybackRate: rate,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Str("action", string(t)).Msg("send action")
	}
}

func (m *Member) sendReport() {
	code := m.Code()
	if code == "" {
		return
	}
	rep, ok := m.rec.Report()
	if !ok {
		return
	}
	_ = m.write(protocol.PlaybackReport{
		Type:         protocol.TypePlaybackReport,
		Code:         code,
		TimeSeconds:  rep.TimeSeconds,
		IsPlaying:    rep.IsPlaying,
		PlaybackRate: rep.PlaybackRate,
	})
}

func (m *Member) requestSnapshot() {
	code := m.Code()
	if code == "" {
		return
	}
	_ = m.write(protocol.PlaybackRequest{Type: protocol.TypePlaybackRequest, Code: code})
}

func (m *Member) sendPing() {
	_ = m.write(protocol.Ping{Type: protocol.TypePing, ClientTimeMs: protocol.Millis(m.clock.Now())})
}

// onPong keeps the offset of the lowest-RTT sample among recent pings.
func (m *Member) onPong(p protocol.Pong) {
	now := m.clock.Now()
	sent := protocol.FromMillis(p.ClientTimeMs)
	rtt := now.Sub(sent)
	if rtt < 0 {
		return
	}
	offset := protocol.FromMillis(p.ServerTimeMs).Sub(sent.Add(rtt / 2))

	m.mu.Lock()
	m.samples = append(m.samples, offsetSample{rtt: rtt, offset: offset})
	if len(m.samples) > offsetSamples {
		m.samples = m.samples[len(m.samples)-offsetSamples:]
	}
	best := m.samples[0]
	for _, s := range m.samples[1:] {
		if s.rtt < best.rtt {
			best = s
		}
	}
	m.mu.Unlock()
	m.rec.SetClockOffset(best.offset)
}

func (m *Member) write(v any) error {
	b, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = m.conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
	if err := m.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("write signal: %w", err)
	}
	return nil
}
