package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/carebridge/realtime/devserver"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	addr := os.Getenv("DEVSERVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := devserver.New(logger)
	if err := srv.Start(addr); err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("listen failed")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	srv.Stop()
	logger.Info().Msg("devserver stopped")
}
