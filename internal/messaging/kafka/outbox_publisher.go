package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

// Envelope — JSON-значение записи в топике событий.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// TopicPublisher реализует domain.OutboxPublisher поверх одного топика.
type TopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher возвращает publisher для topic; пустой topic означает TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	return newTopicPublisher(producer, topic)
}

func newTopicPublisher(producer *Producer, topic string) *TopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &TopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// Publish партиционирует по агрегату: события одного заказа или аккаунта
// попадают в одну партицию и читаются в порядке записи.
func (p *TopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	value, err := json.Marshal(p.envelope(msg))
	if err != nil {
		return fmt.Errorf("encode outbox message %s: %w", msg.ID, err)
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	return p.producer.Send(p.topic, key, value, map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
		HeaderOutboxID:      msg.ID,
	})
}

func (p *TopicPublisher) envelope(msg domain.OutboxMessage) Envelope {
	payload := json.RawMessage("null")
	if len(msg.Payload) > 0 {
		payload = json.RawMessage(msg.Payload)
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   p.now().UTC(),
	}
}

var _ domain.OutboxPublisher = (*TopicPublisher)(nil)
