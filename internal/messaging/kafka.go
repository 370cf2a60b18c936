package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/pkg/models"
)

// InteractionEvent is the wire shape published for every processed feedback.
// Downstream consumers (analytics, offline evaluation) subscribe to the
// interaction-events topic.
type InteractionEvent struct {
	SessionID   string    `json:"session_id"`
	ProductID   string    `json:"product_id"`
	Action      string    `json:"action"`
	Reward      float64   `json:"reward"`
	ScoreBefore float64   `json:"score_before"`
	ScoreAfter  float64   `json:"score_after"`
	Timestamp   time.Time `json:"timestamp"`
}

// Producer publishes interaction events. A nil writer (no brokers
// configured) turns every publish into a no-op; event delivery is best
// effort and never blocks the feedback path on broker failure.
type Producer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewProducer(cfg config.KafkaConfig, logger *logrus.Logger) *Producer {
	p := &Producer{logger: logger}
	if len(cfg.Brokers) == 0 {
		logger.Info("Kafka brokers not configured, interaction events disabled")
		return p
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topics.InteractionEvents,
		Balancer:     &kafka.Hash{}, // Key by session for per-session ordering
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return p
}

// PublishInteraction emits one event. Errors are logged, never returned.
func (p *Producer) PublishInteraction(ctx context.Context, in *models.Interaction) {
	if p == nil || p.writer == nil {
		return
	}

	event := InteractionEvent{
		SessionID:   in.SessionID.String(),
		ProductID:   in.ProductID,
		Action:      string(in.Action),
		Reward:      in.Reward,
		ScoreBefore: in.ScoreBefore,
		ScoreAfter:  in.ScoreAfter,
		Timestamp:   in.Timestamp,
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal interaction event")
		return
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}
	if err := p.writer.WriteMessages(wctx, msg); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": event.SessionID,
			"product_id": event.ProductID,
		}).Warn("Failed to publish interaction event")
	}
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
