package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tcpexchange/pkg/exchange"
)

func main() {
	cfg, err := exchange.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	addr := flag.String("addr", cfg.BindAddress, "bind address (empty for all interfaces)")
	port := flag.Int("port", cfg.BindPort, "bind port")
	trace := flag.Bool("trace", cfg.WireTrace, "log a synthetic per-layer wire trace for each exchange")
	flag.Parse()

	cfg.BindAddress = *addr
	cfg.BindPort = *port
	cfg.WireTrace = *trace

	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	responder := exchange.NewResponder(cfg)
	if err := responder.Start(); err != nil {
		log.Fatal().Err(err).Msg("responder failed to start")
	}

	// Закрытие слушающего сокета разблокирует accept и завершает Serve
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		if err := responder.Close(); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := responder.Serve(); err != nil {
		log.Fatal().Err(err).Msg("responder failed")
	}

	log.Info().Msgf("final statistics:\n%s", responder.GetSnapshot())
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
