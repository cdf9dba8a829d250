package core

import (
	"sync"
	"time"

	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is a threadsafe in-memory synchronization session. All of its
// mutable state sits behind one lock so seq bumps and snapshot reads
// never interleave. It never closes adapter-owned resources.
type Room struct {
	code domain.RoomCode

	mu       sync.Mutex
	hostID   domain.MemberID
	members  map[domain.MemberID]MemberSession
	order    []domain.MemberID
	playback domain.PlaybackState
	reports  map[domain.MemberID]*domain.ClientReport
	closed   bool
}

func NewRoom(code domain.RoomCode, host MemberSession, now time.Time) *Room {
	id := host.Meta().ID
	return &Room{
		code:     code,
		hostID:   id,
		members:  map[domain.MemberID]MemberSession{id: host},
		order:    []domain.MemberID{id},
		playback: domain.InitialPlayback(now),
		reports:  make(map[domain.MemberID]*domain.ClientReport),
	}
}

func (r *Room) Code() domain.RoomCode { return r.code }

func (r *Room) Info() domain.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

func (r *Room) infoLocked() domain.RoomInfo {
	return domain.RoomInfo{Code: r.code, HostID: r.hostID, MemberCount: len(r.members)}
}

func (r *Room) IsMember(id domain.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[id]
	return ok
}

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) MembersSnapshot() []MemberDTO {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MemberDTO, 0, len(r.order))
	for _, id := range r.order {
		m := r.members[id].Meta()
		out = append(out, MemberDTO{ID: m.ID, Name: m.Name(), Host: id == r.hostID})
	}
	return out
}

// Join adds ms and returns the projected state. A closed room behaves as
// if it never existed.
func (r *Room) Join(ms MemberSession, now time.Time) (domain.PlaybackState, domain.RoomInfo, error) {
	id := ms.Meta().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.PlaybackState{}, domain.RoomInfo{}, domain.ErrRoomNotFound
	}
	if _, ok := r.members[id]; !ok {
		r.order = append(r.order, id)
	}
	r.members[id] = ms
	log.Info().Str("module", "core.room").Str("code", string(r.code)).Str("member", string(id)).Msg("member added")
	return Project(r.playback, now), r.infoLocked(), nil
}

// Leave removes id and applies the host-departure policy.
func (r *Room) Leave(id domain.MemberID, policy domain.HostDeparture) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok || r.closed {
		return LeaveResult{}
	}
	delete(r.members, id)
	delete(r.reports, id)
	for i, m := range r.order {
		if m == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	res := LeaveResult{Removed: true}
	log.Info().Str("module", "core.room").Str("code", string(r.code)).Str("member", string(id)).Msg("member removed")

	switch {
	case len(r.members) == 0:
		r.closed = true
		res.Empty = true
	case id == r.hostID && policy == domain.HostClose:
		for _, m := range r.order {
			res.Released = append(res.Released, r.members[m])
		}
		r.members = map[domain.MemberID]MemberSession{}
		r.reports = map[domain.MemberID]*domain.ClientReport{}
		r.order = nil
		r.closed = true
		res.Closed = true
	case id == r.hostID:
		r.hostID = r.order[0]
		res.HostChanged = true
		log.Info().Str("module", "core.room").Str("code", string(r.code)).Str("host", string(r.hostID)).Msg("host promoted")
	}
	res.Info = r.infoLocked()
	return res
}

// Close ends the room for everyone and returns the members it released.
func (r *Room) Close() []MemberSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	out := make([]MemberSession, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	r.members = map[domain.MemberID]MemberSession{}
	r.reports = map[domain.MemberID]*domain.ClientReport{}
	r.order = nil
	r.closed = true
	return out
}

// Snapshot is a pure projection of the authoritative state.
func (r *Room) Snapshot(now time.Time) domain.PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Project(r.playback, now)
}

// Act applies a to the authoritative state when policy allows it.
func (r *Room) Act(id domain.MemberID, now time.Time, a domain.Action, policy domain.ActionPolicy) (domain.PlaybackState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok || r.closed {
		return domain.PlaybackState{}, domain.ErrUnauthorized
	}
	if policy == domain.HostOnly && id != r.hostID {
		return domain.PlaybackState{}, domain.ErrUnauthorized
	}
	r.playback = Apply(r.playback, now, id, a)
	return r.playback, nil
}

// Report upserts the member's self-reported position. Non-members are ignored.
func (r *Room) Report(id domain.MemberID, timeSeconds float64, isPlaying bool, rate float64, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	rep, ok := r.reports[id]
	if !ok {
		rep = &domain.ClientReport{}
		r.reports[id] = rep
	}
	rep.TimeSeconds = domain.ClampPosition(timeSeconds)
	rep.IsPlaying = isPlaying
	rep.PlaybackRate = domain.ClampRate(rate)
	rep.ReceivedAt = now
	return true
}

// Evaluate runs one drift pass and records the corrections it emits.
func (r *Room) Evaluate(now time.Time, p SyncParams) Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := evaluate(Project(r.playback, now), r.order, r.reports, now, p)
	ev.Code = r.code
	return ev
}

// Broadcast fans f out to every member except from (empty from means all).
func (r *Room) Broadcast(from domain.MemberID, f Frame) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := PublishResult{}
	for _, id := range r.order {
		if id == from {
			continue
		}
		m := r.members[id]
		if err := m.Signal().TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("code", string(r.code)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// SendTo delivers f to a single member.
func (r *Room) SendTo(id domain.MemberID, f Frame) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return PublishResult{}
	}
	if err := m.Signal().TrySend(f); err != nil {
		return PublishResult{Dropped: []MemberSession{m}}
	}
	return PublishResult{SendTo: 1}
}
