package queue

import (
	"context"
	"encoding/json"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/sirupsen/logrus"
)

const flushTimeoutMs = 5000

var _ SessionQueue = (*KafkaSessionQueue)(nil)

// KafkaSessionQueue publishes session events keyed by session token,
// so all events of one session land on the same partition.
type KafkaSessionQueue struct {
	producer *kafka.Producer
	topic    string
	done     chan struct{}
}

func NewKafkaSessionQueue(brokers, topic string) (*KafkaSessionQueue, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
		"client.id":         "docview",
	})
	if err != nil {
		return nil, err
	}

	q := &KafkaSessionQueue{
		producer: producer,
		topic:    topic,
		done:     make(chan struct{}),
	}
	go q.deliveries()

	return q, nil
}

func (q *KafkaSessionQueue) Publish(ctx context.Context, event *SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return q.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &q.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.SessionToken),
		Value:          value,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(event.Type)}},
	}, nil)
}

// deliveries logs failed deliveries reported by the producer.
func (q *KafkaSessionQueue) deliveries() {
	defer close(q.done)

	for e := range q.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				logrus.Errorf("session event delivery failed: %v", ev.TopicPartition.Error)
			}
		case kafka.Error:
			logrus.Warnf("kafka producer error: %v", ev)
		}
	}
}

func (q *KafkaSessionQueue) Close() {
	if remaining := q.producer.Flush(flushTimeoutMs); remaining > 0 {
		logrus.Warnf("%d session events were not delivered before shutdown", remaining)
	}
	q.producer.Close()
	<-q.done
}
