// Package reconcile keeps a local media sink aligned with the room's
// authoritative playback state.
package reconcile

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/domain"
	"github.com/dkeye/WatchSync/internal/protocol"
)

// target is an authoritative state anchored at a server timestamp.
type target struct {
	isPlaying    bool
	position     float64
	rate         float64
	seq          uint64
	serverTimeMs int64
}

func fromState(s protocol.PlaybackState) target {
	return target{
		isPlaying:    s.IsPlaying,
		position:     s.PositionSeconds,
		rate:         domain.ClampRate(s.PlaybackRate),
		seq:          s.Seq,
		serverTimeMs: s.ServerTimeMs,
	}
}

func fromCorrection(c protocol.PlaybackCorrect) target {
	return target{
		isPlaying:    c.IsPlaying,
		position:     c.TargetTimeSeconds,
		rate:         domain.ClampRate(c.PlaybackRate),
		seq:          c.Seq,
		serverTimeMs: c.ServerTimeMs,
	}
}

// Report is what the member tells the server about its own playback.
type Report struct {
	TimeSeconds  float64
	IsPlaying    bool
	PlaybackRate float64
}

type Reconciler struct {
	cfg   Config
	clock clockwork.Clock
	sink  MediaSink
	out   Outbound

	mu             sync.Mutex
	lastAppliedSeq int64
	last           *target
	pending        *target
	suppressUntil  time.Time
	scrubbing      bool
	baseRate       float64
	clockOffset    time.Duration

	nudging bool
	timer   clockwork.Timer
	gen     uint64

	blocked   bool
	desired   *target
	onBlocked func()
	notify    bool
}

func New(cfg Config, clock clockwork.Clock, sink MediaSink, out Outbound) *Reconciler {
	return &Reconciler{
		cfg:            cfg,
		clock:          clock,
		sink:           sink,
		out:            out,
		lastAppliedSeq: -1,
		baseRate:       domain.DefaultRate,
	}
}

// OnAutoplayBlocked registers a hook raised when the sink refuses to play
// without a user gesture. It runs outside the reconciler lock.
func (r *Reconciler) OnAutoplayBlocked(fn func()) {
	r.mu.Lock()
	r.onBlocked = fn
	r.mu.Unlock()
}

// SetClockOffset records the estimated server minus local clock difference.
func (r *Reconciler) SetClockOffset(d time.Duration) {
	r.mu.Lock()
	r.clockOffset = d
	r.mu.Unlock()
}

func (r *Reconciler) ClockOffset() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clockOffset
}

func (r *Reconciler) LastAppliedSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAppliedSeq
}

func (r *Reconciler) NeedsGesture() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocked
}

// ApplyState applies a broadcast or snapshot. States not newer than the last
// applied one return domain.ErrStaleUpdate.
func (r *Reconciler) ApplyState(s protocol.PlaybackState) error {
	r.mu.Lock()
	if int64(s.Seq) <= r.lastAppliedSeq {
		r.mu.Unlock()
		return domain.ErrStaleUpdate
	}
	t := fromState(s)
	if !r.sink.Ready() || r.scrubbing {
		if r.pending == nil || t.seq > r.pending.seq {
			r.pending = &t
		}
		r.mu.Unlock()
		return nil
	}
	r.applyLocked(t)
	r.unlockAndNotify()
	return nil
}

// SetReady is called once the sink can accept commands, e.g. after a new
// file finished loading. The buffered state, or failing that the last
// applied one, is re-applied.
func (r *Reconciler) SetReady() {
	r.mu.Lock()
	if !r.sink.Ready() || r.scrubbing {
		r.mu.Unlock()
		return
	}
	r.flushLocked()
	r.unlockAndNotify()
}

// Reset forgets everything learned from the current room. Seq restarts in
// every room, so it must run whenever the member enters or leaves one.
// The clock offset is kept.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	nudging := r.nudging
	r.cancelTimerLocked()
	if nudging && r.sink.Rate() != r.baseRate {
		r.suppressLocked()
		r.sink.SetRate(r.baseRate)
	}
	r.lastAppliedSeq = -1
	r.last = nil
	r.pending = nil
	r.desired = nil
	r.blocked = false
	r.notify = false
}

func (r *Reconciler) BeginScrub() {
	r.mu.Lock()
	r.scrubbing = true
	r.cancelTimerLocked()
	r.mu.Unlock()
}

func (r *Reconciler) EndScrub() {
	r.mu.Lock()
	r.scrubbing = false
	if r.pending == nil || !r.sink.Ready() {
		r.mu.Unlock()
		return
	}
	r.applyLocked(*r.pending)
	r.unlockAndNotify()
}

func (r *Reconciler) flushLocked() {
	switch {
	case r.pending != nil:
		r.applyLocked(*r.pending)
	case r.last != nil:
		r.applyLocked(*r.last)
	}
}

func (r *Reconciler) applyLocked(t target) {
	r.cancelTimerLocked()
	if int64(t.seq) > r.lastAppliedSeq {
		r.lastAppliedSeq = int64(t.seq)
	}
	r.pending = nil
	r.last = &t
	r.baseRate = t.rate

	pos := r.projectLocked(t)
	threshold := r.cfg.PausedSeekThreshold
	if t.isPlaying {
		threshold = r.cfg.PlayingSeekThreshold
	}
	r.suppressLocked()
	if math.Abs(pos-r.sink.CurrentTime()) > threshold {
		r.sink.Seek(pos)
	}
	if r.sink.Rate() != r.baseRate {
		r.sink.SetRate(r.baseRate)
	}
	r.resolvePlayLocked(t)
	log.Debug().Str("module", "client.reconcile").Uint64("seq", t.seq).
		Bool("playing", t.isPlaying).Float64("pos", pos).Msg("state applied")
}

// ApplyCorrection applies a targeted correction from the scheduler.
func (r *Reconciler) ApplyCorrection(c protocol.PlaybackCorrect) error {
	r.mu.Lock()
	if int64(c.Seq) < r.lastAppliedSeq {
		r.mu.Unlock()
		return domain.ErrStaleUpdate
	}
	if !r.sink.Ready() || r.scrubbing {
		// the next tick will retry
		r.mu.Unlock()
		return nil
	}
	t := fromCorrection(c)
	r.cancelTimerLocked()
	if int64(t.seq) > r.lastAppliedSeq {
		r.lastAppliedSeq = int64(t.seq)
	}
	r.last = &t
	r.baseRate = t.rate
	r.suppressLocked()

	pos := r.projectLocked(t)
	if c.Mode == domain.CorrectionHard {
		r.sink.Seek(pos)
		r.sink.SetRate(r.baseRate)
	} else {
		r.softLocked(t, pos)
	}
	r.resolvePlayLocked(t)
	log.Debug().Str("module", "client.reconcile").Str("mode", string(c.Mode)).
		Uint64("seq", t.seq).Float64("target", pos).Msg("correction applied")
	r.unlockAndNotify()
	return nil
}

func (r *Reconciler) softLocked(t target, pos float64) {
	cur := r.sink.CurrentTime()
	drift := pos - cur
	if !t.isPlaying {
		if math.Abs(drift) > r.cfg.PausedSeekThreshold {
			r.sink.Seek(pos)
		}
		r.sink.SetRate(r.baseRate)
		return
	}
	if math.Abs(drift) > r.cfg.SoftSeekTrigger {
		step := clamp(drift, r.cfg.SoftSeekCap)
		r.sink.Seek(math.Max(0, cur+step))
		drift -= step
	}
	rate := domain.ClampRate(r.baseRate + clamp(drift*r.cfg.NudgeFactor, r.cfg.NudgeCap))
	r.sink.SetRate(rate)
	if rate == r.baseRate {
		return
	}
	r.nudging = true
	r.gen++
	gen := r.gen
	r.timer = r.clock.AfterFunc(r.cfg.NudgeWindow, func() { r.endNudge(gen) })
}

func (r *Reconciler) endNudge(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || !r.nudging {
		return
	}
	r.nudging = false
	r.timer = nil
	r.sink.SetRate(r.baseRate)
}

func (r *Reconciler) cancelTimerLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.nudging = false
}

func (r *Reconciler) resolvePlayLocked(t target) {
	if !t.isPlaying {
		if !r.sink.Paused() {
			r.sink.Pause()
		}
		r.blocked = false
		r.desired = nil
		return
	}
	if r.sink.Paused() {
		if err := r.sink.Play(); err != nil {
			if errors.Is(err, domain.ErrAutoplayBlocked) {
				if !r.blocked {
					r.notify = true
				}
				r.blocked = true
				r.desired = &t
				log.Info().Str("module", "client.reconcile").Msg("autoplay blocked, waiting for gesture")
				return
			}
			log.Warn().Err(err).Str("module", "client.reconcile").Msg("play failed")
			return
		}
	}
	r.blocked = false
	r.desired = nil
}

// ResumeFromGesture must be called from within a user gesture. It seeks to
// the freshly projected target and plays.
func (r *Reconciler) ResumeFromGesture() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.blocked || r.desired == nil {
		return nil
	}
	t := *r.desired
	pos := r.projectLocked(t)
	r.suppressLocked()
	r.sink.Seek(pos)
	r.sink.SetRate(r.baseRate)
	if err := r.sink.Play(); err != nil {
		return err
	}
	r.blocked = false
	r.desired = nil
	return nil
}

// OnMediaEvent turns genuine user interaction into outbound actions.
// Programmatic events and anything inside the suppression window are dropped.
func (r *Reconciler) OnMediaEvent(ev MediaEvent) {
	r.mu.Lock()
	if !ev.Trusted || r.clock.Now().Before(r.suppressUntil) {
		r.mu.Unlock()
		return
	}
	if ev.Kind == EventSeeked {
		// superseded by the user's own seek
		r.pending = nil
	}
	r.mu.Unlock()

	pos := domain.ClampPosition(ev.TimeSeconds)
	switch ev.Kind {
	case EventPlay:
		r.out.SendAction(domain.ActionPlay, &pos, 0)
	case EventPause:
		r.out.SendAction(domain.ActionPause, &pos, 0)
	case EventSeeked:
		r.out.SendAction(domain.ActionSeek, &pos, 0)
	case EventRateChange:
		r.out.SendAction(domain.ActionRate, nil, domain.ClampRate(ev.Rate))
	}
}

// Report returns the local playback for a playback-report. ok is false
// while the sink is not ready. During a nudge the base rate is reported.
func (r *Reconciler) Report() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sink.Ready() {
		return Report{}, false
	}
	rate := r.sink.Rate()
	if r.nudging {
		rate = r.baseRate
	}
	return Report{
		TimeSeconds:  domain.ClampPosition(r.sink.CurrentTime()),
		IsPlaying:    !r.sink.Paused(),
		PlaybackRate: domain.ClampRate(rate),
	}, true
}

func (r *Reconciler) projectLocked(t target) float64 {
	if !t.isPlaying {
		return domain.ClampPosition(t.position)
	}
	serverNow := r.clock.Now().Add(r.clockOffset)
	elapsed := serverNow.Sub(protocol.FromMillis(t.serverTimeMs)).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return domain.ClampPosition(t.position + elapsed*t.rate)
}

func (r *Reconciler) suppressLocked() {
	r.suppressUntil = r.clock.Now().Add(r.cfg.SuppressWindow)
}

func (r *Reconciler) unlockAndNotify() {
	var fn func()
	if r.notify {
		fn = r.onBlocked
		r.notify = false
	}
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
