package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/health"
	"github.com/vladislavdragonenkov/agromarket/internal/messaging/kafka"
)

// notificationTransport — куда outbox worker отправляет уведомления.
type notificationTransport struct {
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher // nil без Kafka
	producer  *kafka.Producer
}

// initNotificationTransport подключает Kafka, если заданы брокеры.
// Если Kafka недоступна, сервис продолжает работу: уведомления пишутся в лог.
func initNotificationTransport(cfg Config, logger *log.Entry) notificationTransport {
	fallback := notificationTransport{
		publisher: kafka.NewLogPublisher(logger.WithField("component", "notification-log")),
	}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers are not configured, notifications go to the log")
		return fallback
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return fallback
	}

	logger.WithFields(log.Fields{
		"brokers":   cfg.KafkaBrokers,
		"topic":     cfg.KafkaTopic,
		"dlq_topic": cfg.KafkaDLQTopic,
	}).Info("kafka producer initialized")
	return notificationTransport{
		publisher: kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		dlq:       kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic),
		producer:  producer,
	}
}

// checker — необязательная проверка брокера: без Kafka outbox просто копит события.
func (t notificationTransport) checker() health.Checker {
	if t.producer == nil {
		return nil
	}
	return health.Optional("kafka", func(context.Context) error {
		return t.producer.Ping()
	})
}

func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
