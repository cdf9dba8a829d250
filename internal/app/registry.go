package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/metrics"
)

// RoomRegistry exclusively owns the live rooms. Its lock guards only the
// code map and member index; room state is behind each room's own lock.
type RoomRegistry struct {
	clock    clockwork.Clock
	codes    CodeGenerator
	attempts int
	codeLen  int
	policy   RoomPolicy
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	rooms    map[domain.RoomCode]*core.Room
	memberOf map[domain.MemberID]domain.RoomCode
}

type RegistryOptions struct {
	Clock        clockwork.Clock
	Codes        CodeGenerator
	CodeAttempts int
	CodeLength   int
	Policy       RoomPolicy
	Metrics      *metrics.Metrics
}

func NewRoomRegistry(opts RegistryOptions) *RoomRegistry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = 6
	}
	if opts.Codes == nil {
		opts.Codes = NewAlphabetGenerator(opts.CodeLength)
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = 8
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &RoomRegistry{
		clock:    opts.Clock,
		codes:    opts.Codes,
		attempts: opts.CodeAttempts,
		codeLen:  opts.CodeLength,
		policy:   opts.Policy,
		metrics:  opts.Metrics,
		rooms:    make(map[domain.RoomCode]*core.Room),
		memberOf: make(map[domain.MemberID]domain.RoomCode),
	}
}

func (r *RoomRegistry) Policy() RoomPolicy { return r.policy }

// Create opens a room with host as its only member. The caller must have
// removed host from any previous room.
func (r *RoomRegistry) Create(host core.MemberSession) *core.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	code := r.freeCodeLocked(now)
	room := core.NewRoom(code, host, now)
	r.rooms[code] = room
	r.memberOf[host.Meta().ID] = code
	r.metrics.RoomsActive.Set(float64(len(r.rooms)))
	log.Info().Str("module", "app.registry").Str("code", string(code)).Str("host", string(host.Meta().ID)).Msg("room created")
	return room
}

func (r *RoomRegistry) freeCodeLocked(now time.Time) domain.RoomCode {
	for i := 0; i < r.attempts; i++ {
		code, err := r.codes.Generate()
		if err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Msg("code generator failed")
			break
		}
		if _, taken := r.rooms[code]; !taken && code != "" {
			return code
		}
	}
	for i := 0; ; i++ {
		code := fallbackCode(now, r.codeLen, i)
		if _, taken := r.rooms[code]; !taken {
			log.Warn().Str("module", "app.registry").Str("code", string(code)).Msg("using time-derived room code")
			return code
		}
	}
}

// Join adds ms to the room named code.
func (r *RoomRegistry) Join(code domain.RoomCode, ms core.MemberSession) (*core.Room, domain.PlaybackState, domain.RoomInfo, error) {
	r.mu.RLock()
	room, ok := r.rooms[code]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.PlaybackState{}, domain.RoomInfo{}, domain.ErrRoomNotFound
	}
	state, info, err := room.Join(ms, r.clock.Now())
	if err != nil {
		return nil, domain.PlaybackState{}, domain.RoomInfo{}, err
	}
	r.mu.Lock()
	r.memberOf[ms.Meta().ID] = code
	r.mu.Unlock()
	return room, state, info, nil
}

// Departure describes what a removal did to the room.
type Departure struct {
	Room   *core.Room
	Result core.LeaveResult
}

// RemoveMember takes id out of every room containing it, applying the
// host-departure policy and destroying rooms that end up empty or closed.
func (r *RoomRegistry) RemoveMember(id domain.MemberID) (Departure, bool) {
	r.mu.Lock()
	code, ok := r.memberOf[id]
	delete(r.memberOf, id)
	room := r.rooms[code]
	r.mu.Unlock()
	if !ok || room == nil {
		return Departure{}, false
	}

	res := room.Leave(id, r.policy.HostDeparture)
	if res.Empty || res.Closed {
		r.mu.Lock()
		if r.rooms[code] == room {
			delete(r.rooms, code)
		}
		for _, m := range res.Released {
			if mid := m.Meta().ID; r.memberOf[mid] == code {
				delete(r.memberOf, mid)
			}
		}
		r.metrics.RoomsActive.Set(float64(len(r.rooms)))
		r.mu.Unlock()
		log.Info().Str("module", "app.registry").Str("code", string(code)).Bool("closed_by_host", res.Closed).Msg("room destroyed")
	}
	return Departure{Room: room, Result: res}, res.Removed
}

// Close removes the room and releases all of its members.
func (r *RoomRegistry) Close(code domain.RoomCode) ([]core.MemberSession, bool) {
	r.mu.Lock()
	room, ok := r.rooms[code]
	if ok {
		delete(r.rooms, code)
	}
	r.metrics.RoomsActive.Set(float64(len(r.rooms)))
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	released := room.Close()
	r.mu.Lock()
	for _, m := range released {
		if mid := m.Meta().ID; r.memberOf[mid] == code {
			delete(r.memberOf, mid)
		}
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("code", string(code)).Int("released", len(released)).Msg("room evicted")
	return released, true
}

func (r *RoomRegistry) Get(code domain.RoomCode) (*core.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[code]
	return room, ok
}

func (r *RoomRegistry) RoomOf(id domain.MemberID) (*core.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.memberOf[id]
	if !ok {
		return nil, false
	}
	room, ok := r.rooms[code]
	return room, ok
}

// Rooms returns a point-in-time list for the scheduler.
func (r *RoomRegistry) Rooms() []*core.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

func (r *RoomRegistry) List() []domain.RoomInfo {
	rooms := r.Rooms()
	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Info())
	}
	return out
}

func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
