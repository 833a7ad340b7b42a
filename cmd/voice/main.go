package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/partyline/voice/internal/adapters/http"
	"github.com/partyline/voice/internal/adapters/media"
	"github.com/partyline/voice/internal/adapters/rtc"
	signaladapter "github.com/partyline/voice/internal/adapters/signal"
	"github.com/partyline/voice/internal/app"
	"github.com/partyline/voice/internal/app/session"
	"github.com/partyline/voice/internal/config"
	"github.com/partyline/voice/internal/core"
	"github.com/partyline/voice/internal/domain"
	"github.com/partyline/voice/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	self, err := domain.NewPeer(cfg.PeerName)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid peer name")
	}

	relays := make([]rtc.RelayServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		relays = append(relays, rtc.RelayServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	rtcConfig := rtc.Configuration(relays)

	bus := core.NewBus()
	dial := signaladapter.NewDialer(cfg.Signal.URL)

	sessionCfg := session.Config{
		StatsInterval:     cfg.Voice.StatsInterval,
		SpeakingThreshold: cfg.Voice.Threshold,
		Reconnect: session.ReconnectConfig{
			InitialDelay: cfg.Reconnect.InitialDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
		},
	}
	newSession := func(room domain.Room, ch core.SignalChannel) *session.Session {
		newMedia := func() (core.MediaConnection, error) {
			return rtc.NewConnection(rtcConfig, room.ID)
		}
		newCapture := func() core.CaptureSource {
			return media.NewCapturer(media.CaptureConfig{
				DeviceID:   cfg.Capture.DeviceID,
				SampleRate: cfg.Capture.SampleRate,
				Latency:    cfg.Capture.Latency,
			})
		}
		return session.New(room, self.ID, ch, newMedia, newCapture, bus, sessionCfg)
	}

	policy := app.PhasePolicy{
		Phases:     cfg.Telemetry.Phases,
		MinMembers: cfg.Telemetry.MinMembers,
	}
	coord := app.NewCoordinator(self.ID, self.Name, dial, newSession, policy, bus)

	if cfg.Telemetry.URL != "" {
		poller := telemetry.NewPoller(cfg.Telemetry.URL, cfg.Telemetry.Interval, coord.OnTelemetry)
		go poller.Run(ctx)
	} else {
		log.Warn().Msg("no telemetry url configured, automatic rooms disabled")
	}

	r := router.SetupRouter(cfg, coord)
	addr := fmt.Sprintf(":%d", cfg.DiagPort)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("peer", string(self.ID)).Msg("voice engine started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	coord.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Engine exited gracefully")
}
