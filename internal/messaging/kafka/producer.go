package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// HeaderEventType дублирует тип уведомления в заголовке, чтобы потребители фильтровали без разбора тела.
const HeaderEventType = "event_type"

// Record — одно сообщение для отправки.
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Producer синхронно отправляет записи в Kafka.
type Producer struct {
	sync   sarama.SyncProducer
	client sarama.Client // nil для обёрнутого SyncProducer
	logger *log.Entry
}

// producerConfig — idempotent producer: acks=all и одна in-flight операция на брокер.
func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Idempotent = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer подключается к брокерам. Клиент общий для отправки и Ping.
func NewProducer(brokers []string, logger *log.Entry) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	client, err := sarama.NewClient(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka: connect to %v: %w", brokers, err)
	}
	sp, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kafka: start producer: %w", err)
	}

	p := WrapSyncProducer(sp, logger)
	p.client = client
	return p, nil
}

// WrapSyncProducer оборачивает готовый SyncProducer, например из sarama/mocks.
func WrapSyncProducer(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.New().WithField("component", "kafka-producer")
	}
	return &Producer{sync: sp, logger: logger}
}

// SendJSON кодирует v в JSON и отправляет его.
func (p *Producer) SendJSON(topic, key string, v any, headers map[string]string) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kafka: marshal %T: %w", v, err)
	}
	return p.Send(Record{Topic: topic, Key: key, Value: value, Headers: headers})
}

// Send отправляет запись и ждёт подтверждения брокера.
func (p *Producer) Send(rec Record) error {
	fields := log.Fields{"topic": rec.Topic, "key": rec.Key}

	partition, offset, err := p.sync.SendMessage(buildMessage(rec, time.Now()))
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("kafka: send to %s: %w", rec.Topic, err)
	}

	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka message sent")
	return nil
}

func buildMessage(rec Record, now time.Time) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     rec.Topic,
		Key:       sarama.StringEncoder(rec.Key),
		Value:     sarama.ByteEncoder(rec.Value),
		Timestamp: now,
	}
	for _, name := range slices.Sorted(maps.Keys(rec.Headers)) {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{
			Key:   []byte(name),
			Value: []byte(rec.Headers[name]),
		})
	}
	return msg
}

// Ping обновляет метаданные кластера. Для обёрнутого SyncProducer всегда успешен.
func (p *Producer) Ping() error {
	switch {
	case p.client == nil:
		return nil
	case p.client.Closed():
		return errors.New("kafka: client closed")
	case len(p.client.Brokers()) == 0:
		return errors.New("kafka: no reachable brokers")
	}
	if err := p.client.RefreshMetadata(); err != nil {
		return fmt.Errorf("kafka: refresh metadata: %w", err)
	}
	return nil
}

// Close останавливает producer, затем клиент.
func (p *Producer) Close() error {
	err := p.sync.Close()
	if p.client != nil && !p.client.Closed() {
		err = errors.Join(err, p.client.Close())
	}
	if err != nil {
		return fmt.Errorf("kafka: close producer: %w", err)
	}
	return nil
}
