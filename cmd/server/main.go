package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/WatchSync/internal/adapters/http"
	sig "github.com/dkeye/WatchSync/internal/adapters/signal"
	"github.com/dkeye/WatchSync/internal/app"
	"github.com/dkeye/WatchSync/internal/app/orch"
	"github.com/dkeye/WatchSync/internal/app/sched"
	"github.com/dkeye/WatchSync/internal/config"
	"github.com/dkeye/WatchSync/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clock := clockwork.NewRealClock()

	rooms := app.NewRoomRegistry(app.RegistryOptions{
		Clock:        clock,
		Codes:        app.NewAlphabetGenerator(cfg.Rooms.CodeLength),
		CodeAttempts: cfg.Rooms.CodeAttempts,
		CodeLength:   cfg.Rooms.CodeLength,
		Policy: app.RoomPolicy{
			HostDeparture: cfg.Rooms.HostDeparture,
			Actions:       cfg.Rooms.ActionPolicy,
		},
		Metrics: m,
	})
	o := orch.New(app.NewSessions(), rooms, app.SimplePolicy{}, clock, m)

	scheduler := sched.New(rooms, o, sched.Options{
		Clock:    clock,
		Interval: cfg.Sync.TickInterval,
		Params:   cfg.Sync.Params(),
		Workers:  cfg.Sync.Workers,
		Metrics:  m,
	})
	go scheduler.Run(ctx)

	limiter := sig.NewRoomRateLimiter(clock, cfg.Limits.Actions, cfg.Limits.ActionInterval)
	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: o, Limiter: limiter, Gatherer: reg})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("WatchSync server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
