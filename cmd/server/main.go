package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"sleipnir/internal/config"
	"sleipnir/internal/engine"
	"sleipnir/internal/feed"
	exchnet "sleipnir/internal/net"
)

func main() {
	envPath := flag.String("env", "", "Path to an optional .env file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg := config.Load(*envPath)

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	backend := engine.NewBackend(cfg.Symbols)
	orderSrv := exchnet.New(cfg.ListenAddr, backend)
	feedSrv := feed.New(cfg.FeedAddr, backend)

	log.Info().
		Strs("symbols", cfg.Symbols).
		Str("listen", cfg.ListenAddr).
		Str("feed", cfg.FeedAddr).
		Msg("starting exchange")

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error { return backend.Run(ctx) })
	t.Go(func() error { return orderSrv.Run(ctx) })
	t.Go(func() error { return feedSrv.Run(ctx) })

	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("exchange exited with error")
		os.Exit(1)
	}
	log.Info().Msg("exchange stopped")
}
