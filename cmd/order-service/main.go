package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/app"
	"github.com/vladislavdragonenkov/storefront-ids/internal/config"
	"github.com/vladislavdragonenkov/storefront-ids/internal/version"
)

// loadConfig читает конфигурацию и настраивает логгер под неё.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := app.SetupLogger(cfg.Log); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPC.Addr,
		"http_addr":      cfg.HTTP.Addr,
		"storage_driver": cfg.Storage.Driver,
		"kafka_enabled":  cfg.KafkaEnabled(),
		"build":          version.String(),
	}).Info("запускаем storefront-ids")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront-ids остановлен")
}
