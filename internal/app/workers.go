package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/vladislavdragonenkov/storefront-ids/internal/config"
	"github.com/vladislavdragonenkov/storefront-ids/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront-ids/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/outbox"
)

// startWorkers запускает фоновые воркеры в wg; они завершаются по отмене ctx.
// Без Kafka outbox worker не запускается, события копятся до подключения брокера.
func startWorkers(
	ctx context.Context,
	wg *conc.WaitGroup,
	deps *Dependencies,
	producer *kafka.Producer,
	cfg config.Config,
	registerer prometheus.Registerer,
	logger *log.Entry,
) {
	outboxMetrics := metrics.NewOutboxMetrics(registerer)

	if producer != nil {
		worker := outbox.NewWorker(
			deps.Outbox,
			kafka.NewOutboxPublisher(producer, cfg.Kafka.Topic),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(outboxMetrics),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.Kafka.DLQTopic)),
			outbox.WithPollInterval(cfg.Outbox.PollInterval),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
			outbox.WithRetryBaseDelay(cfg.Outbox.RetryDelay),
		)
		wg.Go(func() { worker.Run(ctx) })
	} else {
		logger.Info("outbox publisher disabled: kafka brokers are not configured")
	}

	cleanup := idempotency.NewCleanupWorker(
		deps.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithMetrics(outboxMetrics),
		idempotency.WithInterval(cfg.Idempotency.CleanupInterval),
		idempotency.WithBatchSize(cfg.Idempotency.CleanupBatchSize),
	)
	wg.Go(func() { cleanup.Run(ctx) })
}
