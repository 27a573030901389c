package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/roomlink/internal/app"
	"github.com/danmuck/roomlink/internal/config"
	"github.com/danmuck/roomlink/internal/logging"
	"github.com/danmuck/roomlink/internal/transport/wsroom"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "", "config path (.toml or .yaml); defaults to $"+envConfig+" or "+defaultConfigPath)
	initPath := flag.String("init-config", "", "write a default config template to this path and exit")
	force := flag.Bool("force", false, "overwrite an existing template with -init-config")
	flag.Parse()

	if *initPath != "" {
		if err := config.WriteTemplate(*initPath, *force); err != nil {
			fmt.Fprintf(os.Stderr, "roomctl: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("roomctl: wrote config template to %s\n", *initPath)
		return
	}

	if err := run(resolveConfigPath(*path)); err != nil {
		fmt.Fprintf(os.Stderr, "roomctl: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	logging.ConfigureRuntime()
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	logger := log.Logger.With().Str("app", "roomctl").Logger()
	logger.Info().
		Str("config", path).
		Str("room_url", cfg.RoomURL).
		Str("room", cfg.RoomName).
		Str("identity", cfg.Identity).
		Msg("roomctl starting")

	wsCfg := wsroom.Config{
		URL:              cfg.RoomURL,
		HandshakeTimeout: cfg.HandshakeTimeout,
		PingInterval:     cfg.PingInterval,
		ICEServers:       cfg.ICEServers,
		Logger:           logger,
	}
	if cfg.TLSCAFile != "" {
		pool, err := wsroom.LoadRootCAs(cfg.TLSCAFile)
		if err != nil {
			return err
		}
		wsCfg.RootCAs = pool
	}
	transport := wsroom.NewTransport(wsCfg)
	svc, err := app.NewService(cfg, transport, logger)
	if err != nil {
		return err
	}
	return svc.Run(context.Background())
}
