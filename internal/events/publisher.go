// README: Kafka publisher for ride state changes and location samples.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"twende/internal/observability"
	"twende/internal/types"
)

type RideEvent struct {
	RideID     types.ID     `json:"ride_id"`
	CustomerID types.ID     `json:"customer_id"`
	DriverID   *types.ID    `json:"driver_id,omitempty"`
	Event      string       `json:"event"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Fare       *types.Money `json:"fare,omitempty"`
	At         time.Time    `json:"at"`
}

type LocationEvent struct {
	UserID   types.ID    `json:"user_id"`
	IsDriver bool        `json:"is_driver"`
	Position types.Point `json:"position"`
	At       time.Time   `json:"at"`
}

type Publisher interface {
	PublishRide(ctx context.Context, e RideEvent) error
	PublishLocation(ctx context.Context, e LocationEvent) error
	Close() error
}

// KafkaPublisher routes each message to its topic on a single writer.
// Writes are asynchronous: Publish* only enqueues, and delivery failures are
// reported through the writer's completion callback.
type KafkaPublisher struct {
	writer        *kafka.Writer
	rideTopic     string
	locationTopic string
	log           logrus.FieldLogger
}

func NewKafkaPublisher(brokers []string, rideTopic, locationTopic string, log logrus.FieldLogger) *KafkaPublisher {
	k := &KafkaPublisher{rideTopic: rideTopic, locationTopic: locationTopic, log: log}
	k.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		Completion:             k.completed,
	}
	return k
}

func (k *KafkaPublisher) PublishRide(ctx context.Context, e RideEvent) error {
	msg, err := encode(k.rideTopic, string(e.RideID), e)
	if err != nil {
		return err
	}
	return k.write(ctx, msg)
}

func (k *KafkaPublisher) PublishLocation(ctx context.Context, e LocationEvent) error {
	msg, err := encode(k.locationTopic, string(e.UserID), e)
	if err != nil {
		return err
	}
	return k.write(ctx, msg)
}

func (k *KafkaPublisher) write(ctx context.Context, msg kafka.Message) error {
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaPublisher) completed(messages []kafka.Message, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "error"
	}
	for _, m := range messages {
		observability.EventsPublishedTotal.WithLabelValues(m.Topic, outcome).Inc()
		if err != nil {
			k.log.WithError(err).WithFields(logrus.Fields{"topic": m.Topic, "key": string(m.Key)}).Error("kafka delivery failed")
		}
	}
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// encode keys messages by aggregate id so one ride's events stay ordered.
func encode(topic, key string, v any) (kafka.Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Topic: topic, Key: []byte(key), Value: b}, nil
}

// Nop discards events; used when no brokers are configured.
type Nop struct{}

func (Nop) PublishRide(context.Context, RideEvent) error         { return nil }
func (Nop) PublishLocation(context.Context, LocationEvent) error { return nil }
func (Nop) Close() error                                         { return nil }

// New returns a Kafka publisher, or Nop when brokers is empty.
func New(brokers []string, rideTopic, locationTopic string, log logrus.FieldLogger) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(brokers, rideTopic, locationTopic, log)
}
