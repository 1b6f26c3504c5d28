package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/bot"
	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/logger"
	"github.com/keshon/jukebox/internal/music/resolver"
	"github.com/keshon/jukebox/internal/settings"
	"github.com/keshon/jukebox/internal/stats"
	"github.com/keshon/jukebox/internal/webkey"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})

	db, err := stats.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open statistics store")
	}
	defer db.Close()

	st, err := settings.New(cfg.SettingsPath, cfg.DeveloperID, cfg.CommandPrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open settings store")
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	wk := webkey.NewService(db, cfg.WebBaseURL())
	go webkey.RunServer(ctx, wk, fmt.Sprintf(":%d", cfg.WebPort))

	log.Info().Msg("starting jukebox bot")
	if err := bot.Run(ctx, cfg, st, db, resolver.New(), wk); err != nil {
		log.Fatal().Err(err).Msg("bot exited")
	}
}
