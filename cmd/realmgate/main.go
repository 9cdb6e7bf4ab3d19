package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	realmgatecmd "github.com/realmgate/realmgate/internal/cmd/realmgate"
	"github.com/realmgate/realmgate/internal/platform/config"
)

func main() {
	cfg, err := realmgatecmd.ParseConfig(flag.CommandLine, os.Args[1:], func(key string) (string, bool) {
		value, ok := os.LookupEnv(key)
		return value, ok
	})
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[REALMGATE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := realmgatecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
