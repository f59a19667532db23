package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"roam/relay/internal/app"
)

func main() {
	var cfg app.Config
	flag.StringVar(&cfg.Addr, "addr", ":8080", "server listen address, e.g. :8080")
	flag.StringVar(&cfg.LogPath, "log", "relay.log", "rotated log file path (empty disables file logging)")
	flag.StringVar(&cfg.ClientDir, "client", "", "directory of the browser client bundle to serve at /")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
