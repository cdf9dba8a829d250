package client

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dkeye/WatchSync/internal/client/reconcile"
	"github.com/dkeye/WatchSync/internal/domain"
)

// SimSink is a virtual media element advancing on the injected clock.
// Skew scales the real advance rate to model a device that drifts.
type SimSink struct {
	clock clockwork.Clock

	mu        sync.Mutex
	ready     bool
	paused    bool
	rate      float64
	skew      float64
	pos       float64
	at        time.Time
	duration  float64
	autoplay  bool
	activated bool
	gesture   bool
	listener  func(reconcile.MediaEvent)
}

func NewSimSink(clock clockwork.Clock) *SimSink {
	return &SimSink{
		clock:    clock,
		paused:   true,
		rate:     domain.DefaultRate,
		skew:     1,
		autoplay: true,
		at:       clock.Now(),
	}
}

// OnEvent registers the event listener. Events are delivered on their own
// goroutine, like media element events are queued as separate tasks.
func (s *SimSink) OnEvent(fn func(reconcile.MediaEvent)) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// Load resets the element with a new file and makes it ready.
func (s *SimSink) Load(durationSeconds float64) {
	s.mu.Lock()
	s.duration = durationSeconds
	s.pos = 0
	s.at = s.clock.Now()
	s.paused = true
	s.ready = true
	s.mu.Unlock()
}

// SetSkew sets how fast local playback really runs relative to its rate.
func (s *SimSink) SetSkew(skew float64) {
	s.mu.Lock()
	s.settleLocked()
	s.skew = skew
	s.mu.Unlock()
}

// SetAutoplayAllowed controls whether Play outside a gesture succeeds.
func (s *SimSink) SetAutoplayAllowed(ok bool) {
	s.mu.Lock()
	s.autoplay = ok
	s.mu.Unlock()
}

// Gesture runs fn as if inside a user gesture; it also grants sticky activation.
func (s *SimSink) Gesture(fn func()) {
	s.mu.Lock()
	s.gesture = true
	s.activated = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.gesture = false
		s.mu.Unlock()
	}()
	fn()
}

func (s *SimSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *SimSink) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *SimSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *SimSink) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

func (s *SimSink) Seek(t float64) { s.seek(t, false) }

func (s *SimSink) Play() error { return s.play(false) }

func (s *SimSink) Pause() { s.pause(false) }

func (s *SimSink) SetRate(r float64) { s.setRate(r, false) }

// UserSeek and friends model genuine interaction and emit trusted events.
func (s *SimSink) UserSeek(t float64) { s.seek(t, true) }

func (s *SimSink) UserPlay() error {
	var err error
	s.Gesture(func() { err = s.play(true) })
	return err
}

func (s *SimSink) UserPause() { s.pause(true) }

func (s *SimSink) UserSetRate(r float64) { s.setRate(r, true) }

func (s *SimSink) seek(t float64, trusted bool) {
	s.mu.Lock()
	t = domain.ClampPosition(t)
	if s.duration > 0 && t > s.duration {
		t = s.duration
	}
	s.pos = t
	s.at = s.clock.Now()
	ev := reconcile.MediaEvent{Kind: reconcile.EventSeeked, Trusted: trusted, TimeSeconds: t, Rate: s.rate}
	s.emitLocked(ev)
	s.mu.Unlock()
}

func (s *SimSink) play(trusted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.autoplay && !s.activated && !s.gesture {
		return domain.ErrAutoplayBlocked
	}
	if !s.paused {
		return nil
	}
	s.settleLocked()
	s.paused = false
	s.emitLocked(reconcile.MediaEvent{Kind: reconcile.EventPlay, Trusted: trusted, TimeSeconds: s.pos, Rate: s.rate})
	return nil
}

func (s *SimSink) pause(trusted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.settleLocked()
	s.paused = true
	s.emitLocked(reconcile.MediaEvent{Kind: reconcile.EventPause, Trusted: trusted, TimeSeconds: s.pos, Rate: s.rate})
}

func (s *SimSink) setRate(r float64, trusted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == s.rate {
		return
	}
	s.settleLocked()
	s.rate = r
	s.emitLocked(reconcile.MediaEvent{Kind: reconcile.EventRateChange, Trusted: trusted, TimeSeconds: s.pos, Rate: r})
}

// settleLocked folds elapsed playback into pos.
func (s *SimSink) settleLocked() {
	s.pos = s.positionLocked()
	s.at = s.clock.Now()
}

func (s *SimSink) positionLocked() float64 {
	if s.paused {
		return s.pos
	}
	p := s.pos + s.clock.Since(s.at).Seconds()*s.rate*s.skew
	if s.duration > 0 && p > s.duration {
		return s.duration
	}
	return p
}

func (s *SimSink) emitLocked(ev reconcile.MediaEvent) {
	if s.listener == nil {
		return
	}
	fn := s.listener
	go fn(ev)
}
