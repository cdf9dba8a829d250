// Package sched drives the periodic drift check across every room.
package sched

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/WatchSync/internal/core"
	"github.com/dkeye/WatchSync/internal/metrics"
)

// RoomSource lists the rooms to evaluate on a tick.
type RoomSource interface {
	Rooms() []*core.Room
}

// Publisher delivers a room's evaluation to its members.
type Publisher interface {
	PublishEvaluation(room *core.Room, ev core.Evaluation)
}

type Options struct {
	Clock    clockwork.Clock
	Interval time.Duration
	Params   core.SyncParams
	Workers  int
	Metrics  *metrics.Metrics
}

// Scheduler is the CorrectionScheduler: one ticker, every room evaluated
// under its own lock, rooms processed concurrently.
type Scheduler struct {
	rooms    RoomSource
	pub      Publisher
	clock    clockwork.Clock
	interval time.Duration
	params   core.SyncParams
	workers  int
	metrics  *metrics.Metrics
}

func New(rooms RoomSource, pub Publisher, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &Scheduler{
		rooms:    rooms,
		pub:      pub,
		clock:    opts.Clock,
		interval: opts.Interval,
		params:   opts.Params,
		workers:  opts.Workers,
		metrics:  opts.Metrics,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	log.Info().Str("module", "sched").Dur("interval", s.interval).Msg("correction scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "sched").Msg("correction scheduler stopped")
			return
		case <-ticker.Chan():
			s.Tick(s.clock.Now())
		}
	}
}

// Tick evaluates every room at now and publishes the results.
func (s *Scheduler) Tick(now time.Time) []core.Evaluation {
	started := s.clock.Now()
	rooms := s.rooms.Rooms()
	p := pool.NewWithResults[core.Evaluation]().WithMaxGoroutines(s.workers)
	for _, room := range rooms {
		p.Go(func() core.Evaluation {
			ev := room.Evaluate(now, s.params)
			s.pub.PublishEvaluation(room, ev)
			return ev
		})
	}
	evs := p.Wait()

	synced := 0
	for _, ev := range evs {
		if ev.Indicator.IsSynced {
			synced++
		}
		for _, d := range ev.Drifts {
			s.metrics.Drift.Observe(math.Abs(d.Drift))
		}
	}
	s.metrics.RoomsSynced.Set(float64(synced))
	s.metrics.TickDuration.Observe(s.clock.Since(started).Seconds())
	if len(rooms) > 0 {
		log.Debug().Str("module", "sched").Int("rooms", len(rooms)).Int("synced", synced).Msg("tick")
	}
	return evs
}
