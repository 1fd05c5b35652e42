// Package kafka публикует события transactional outbox в Kafka через sarama.
package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultClientID   = "storefront-ids"
	defaultMaxRetries = 5
)

// ProducerConfig задаёт параметры подключения к Kafka.
type ProducerConfig struct {
	Brokers  []string
	ClientID string
	// MaxRetries — повторы внутри sarama до того, как ошибка вернётся outbox worker'у.
	MaxRetries int
}

func (c ProducerConfig) sarama() *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = defaultClientID
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}
	sc.Producer.Retry.Max = defaultMaxRetries
	if c.MaxRetries > 0 {
		sc.Producer.Retry.Max = c.MaxRetries
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Compression = sarama.CompressionSnappy
	// Idempotent требует одного in-flight запроса на брокер.
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	return sc
}

// Producer — синхронный producer: Send возвращается после подтверждения всеми репликами.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// NewProducer подключается к брокерам из cfg.
func NewProducer(cfg ProducerConfig, logger *log.Entry) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	sp, err := sarama.NewSyncProducer(cfg.Brokers, cfg.sarama())
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	return newProducer(sp, logger), nil
}

func newProducer(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{sync: sp, logger: logger}
}

// Send пишет value в topic с ключом партиционирования key.
func (p *Producer) Send(topic, key string, value []byte, headers map[string]string) error {
	record := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   recordHeaders(headers),
		Timestamp: time.Now(),
	}

	fields := log.Fields{"topic": topic, "key": key}
	partition, offset, err := p.sync.SendMessage(record)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka record acknowledged")
	return nil
}

func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return out
}

// Close дожидается отправки буферизованных сообщений и закрывает соединения.
func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
