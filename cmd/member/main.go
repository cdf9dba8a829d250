package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/WatchSync/internal/client"
	"github.com/dkeye/WatchSync/internal/client/reconcile"
	"github.com/dkeye/WatchSync/internal/domain"
)

type memberFlags struct {
	url        string
	name       string
	duration   float64
	skew       float64
	noAutoplay bool
	play       bool
	status     time.Duration
	report     time.Duration
	verbose    bool
	reconcile  reconcile.Config
}

// options turns the flags into client options, validating the heuristics.
func (f *memberFlags) options() (client.Options, error) {
	opts := client.DefaultOptions()
	if err := f.reconcile.Validate(); err != nil {
		return client.Options{}, err
	}
	if f.report <= 0 {
		return client.Options{}, fmt.Errorf("report interval must be positive, got %s", f.report)
	}
	opts.Reconcile = f.reconcile
	opts.ReportInterval = f.report
	return opts, nil
}

func main() {
	if err := newRootCmd(newMemberFlags()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newMemberFlags() *memberFlags {
	return &memberFlags{reconcile: reconcile.DefaultConfig()}
}

func newRootCmd(f *memberFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "watchsync-member",
		Short:         "Headless WatchSync room member",
		Long:          "Joins a WatchSync room with a simulated player and keeps it in sync with the room.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if f.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.url, "url", "ws://localhost:8080/api/ws/signal", "signal endpoint")
	pf.StringVar(&f.name, "name", "", "display name")
	pf.Float64Var(&f.duration, "duration", 7200, "simulated media length in seconds")
	pf.Float64Var(&f.skew, "skew", 1, "real speed of the simulated player relative to its rate")
	pf.BoolVar(&f.noAutoplay, "no-autoplay", false, "refuse programmatic play until a gesture")
	pf.DurationVar(&f.status, "status-every", 2*time.Second, "status log interval")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	pf.DurationVar(&f.report, "report-every", client.DefaultOptions().ReportInterval, "playback report interval")

	rc := &f.reconcile
	pf.Float64Var(&rc.PlayingSeekThreshold, "seek-threshold-playing", rc.PlayingSeekThreshold, "drift in seconds that forces a seek while playing")
	pf.Float64Var(&rc.PausedSeekThreshold, "seek-threshold-paused", rc.PausedSeekThreshold, "drift in seconds that forces a seek while paused")
	pf.DurationVar(&rc.SuppressWindow, "suppress-window", rc.SuppressWindow, "ignore local media events this long after a remote update")
	pf.Float64Var(&rc.SoftSeekTrigger, "soft-seek-trigger", rc.SoftSeekTrigger, "soft correction drift in seconds that triggers a partial seek")
	pf.Float64Var(&rc.SoftSeekCap, "soft-seek-cap", rc.SoftSeekCap, "largest partial seek in seconds")
	pf.Float64Var(&rc.NudgeFactor, "nudge-factor", rc.NudgeFactor, "rate change per second of drift")
	pf.Float64Var(&rc.NudgeCap, "nudge-cap", rc.NudgeCap, "largest rate change of a nudge")
	pf.DurationVar(&rc.NudgeWindow, "nudge-window", rc.NudgeWindow, "how long a rate nudge lasts")

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a room and host it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, "")
		},
	}
	create.Flags().BoolVar(&f.play, "play", false, "start playback right after creating")

	join := &cobra.Command{
		Use:   "join CODE",
		Short: "Join an existing room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, domain.RoomCode(args[0]))
		},
	}

	root.AddCommand(create, join)
	return root
}

func run(parent context.Context, f *memberFlags, code domain.RoomCode) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, err := f.options()
	if err != nil {
		return err
	}
	clock := opts.Clock
	sink := client.NewSimSink(clock)
	sink.SetSkew(f.skew)
	sink.SetAutoplayAllowed(!f.noAutoplay)

	m, err := client.Dial(ctx, f.url, sink, opts)
	if err != nil {
		return err
	}
	rec := m.Reconciler()
	sink.OnEvent(rec.OnMediaEvent)
	rec.OnAutoplayBlocked(func() {
		log.Warn().Str("module", "member").Msg("autoplay blocked, simulating a click")
		go sink.Gesture(func() {
			if err := rec.ResumeFromGesture(); err != nil {
				log.Error().Err(err).Str("module", "member").Msg("resume")
			}
		})
	})

	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()

	if f.name != "" {
		if err := m.Rename(f.name); err != nil {
			return err
		}
	}
	if code == "" {
		if code, err = m.CreateRoom(ctx); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "room %s\n", code)
	} else if err := m.JoinRoom(ctx, code); err != nil {
		return err
	}
	sink.Load(f.duration)
	rec.SetReady()
	if f.play {
		if err := sink.UserPlay(); err != nil {
			log.Warn().Err(err).Str("module", "member").Msg("play")
		}
	}

	go logStatus(ctx, clock, f.status, m, sink)
	if err := <-errc; err != nil && ctx.Err() == nil {
		return err
	}
	log.Info().Str("module", "member").Msg("bye")
	return nil
}

func logStatus(ctx context.Context, clock clockwork.Clock, every time.Duration, m *client.Member, sink *client.SimSink) {
	t := clock.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			in := m.Indicator()
			info := m.RoomInfo()
			log.Info().Str("module", "member").
				Str("code", string(info.Code)).
				Int("members", info.MemberCount).
				Float64("pos", sink.CurrentTime()).
				Bool("playing", !sink.Paused()).
				Float64("rate", sink.Rate()).
				Bool("synced", in.IsSynced).
				Float64("worst_drift", in.WorstAbsDriftSeconds).
				Dur("offset", m.Reconciler().ClockOffset()).
				Msg("status")
		}
	}
}
