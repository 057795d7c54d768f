package queue

import (
	"github.com/rabbitmq/amqp091-go"

	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// MaxRetries is how often a message is retried before it is dead lettered.
const MaxRetries = 10

// Publisher is the part of *amqp091.Channel used to reroute messages.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Acknowledger is the part of amqp091.Delivery used to settle messages.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Retries reads the retry counter of a message. The header comes back as a
// wider integer after a round trip through the broker.
func Retries(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleProcessingError sends a failed message to the retry queue, or to
// the dead letter queue once it ran out of retries.
func HandleProcessingError(ch Publisher, msg Acknowledger, body []byte, headers amqp091.Table, queueName string) {
	retries := Retries(headers)

	target := queueName + "_retry"
	out := amqp091.Table{}
	for k, v := range headers {
		out[k] = v
	}
	if retries >= MaxRetries {
		target = queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", target)
	} else {
		out["x-retries"] = int32(retries + 1)
	}

	err := ch.Publish(
		"",
		target,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Headers:      out,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if err != nil {
		logger.Error("[Queue] Failed to reroute message", "queue", target, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
