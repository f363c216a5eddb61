package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"intellilight/app"
	"intellilight/config"
	"intellilight/journal"
	"intellilight/kasa"
	"intellilight/logger"
	"intellilight/mqtt"
	"intellilight/ntfy"
	"intellilight/power"
	"intellilight/sensor"
	"intellilight/status"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	log := logger.New(cfg.Log)
	defer log.Sync()

	if err != nil {
		log.Fatalw("Failed to load config", "err", err)
	}
	log.Debugf("Effective config: %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []app.Option

	// Command journal
	var recent status.Journal
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, log)
		if err != nil {
			log.Fatalw("Failed to open journal", "path", cfg.Journal.Path, "err", err)
		}
		defer j.Close()

		recent = j
		opts = append(opts, app.WithObserver(j))
	}

	// Status API
	srv := status.New(cfg.HTTP, recent, log)
	defer srv.Close()
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Errorw("Status server stopped", "err", err)
		}
	}()
	opts = append(opts, app.WithObserver(srv))

	// MQTT
	if cfg.MQTT.Enabled() {
		client, err := mqtt.New(cfg.MQTT, log)
		if err != nil {
			log.Fatalw("Failed to connect to MQTT broker", "err", err)
		}
		defer mqtt.Delete(cfg.MQTT, client, log)

		opts = append(opts, app.WithObserver(mqtt.NewPublisher(client, cfg.MQTT, log)))
	}

	// ntfy.sh
	opts = append(opts, app.WithNotifier(ntfy.New(cfg.Ntfy)))

	open := func() (app.Board, error) {
		board, err := sensor.Open(cfg.Sensor)
		if err != nil {
			return nil, err
		}
		return board, nil
	}

	a := app.New(cfg.Control, open, kasa.New(cfg.Bulb, log), power.New(cfg.Power, log), log, opts...)

	log.Infow("Starting intellilight", "pid", os.Getpid())
	if err := a.Run(ctx); err != nil {
		log.Fatalw("Halting", "err", err)
	}
	log.Info("Shutting down")
}
