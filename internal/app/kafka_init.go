package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/config"
	"github.com/vladislavdragonenkov/storefront-ids/internal/messaging/kafka"
)

// connectKafka возвращает nil, nil при пустом списке брокеров: outbox тогда только копится.
func connectKafka(cfg config.KafkaConfig, logger *log.Entry) (*kafka.Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Brokers,
		ClientID:   cfg.ClientID,
		MaxRetries: cfg.MaxRetries,
	}, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).WithField("brokers", cfg.Brokers).Warn("kafka unavailable, outbox publishing disabled")
		return nil, err
	}
	logger.WithField("brokers", cfg.Brokers).Info("kafka producer connected")
	return producer, nil
}

func disconnectKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer close failed")
		return
	}
	logger.Info("kafka producer closed")
}
