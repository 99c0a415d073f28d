package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Execute(ctx)
	stop()
	check(err)
}

func check(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("zonediff failed")
	}
}
