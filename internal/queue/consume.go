package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// Handler processes the body of one message taken from queueName.
type Handler func(ctx context.Context, queueName string, body []byte) error

// Consumer is the part of *amqp091.Channel Serve needs.
type Consumer interface {
	Publisher
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
}

type queuedMessage struct {
	msg       amqp091.Delivery
	queueName string
}

// Serve consumes queueNames on ch and hands the messages to handle one at a
// time until ctx ends. Set a prefetch of 1 on ch so a worker holds a single
// run.
func Serve(ctx context.Context, ch Consumer, queueNames []string, handle Handler) error {
	messages := make(chan queuedMessage)

	for _, name := range queueNames {
		msgs, err := ch.Consume(
			name,
			name+"_consumer",
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to start consuming %s: %w", name, err)
		}
		go forward(ctx, name, msgs, messages)
	}

	logger.Info("[Queue] Listening for messages", "queues", queueNames)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping message processor")
			return nil
		case qm := <-messages:
			Process(ctx, ch, qm.queueName, qm.msg, handle)
			logger.Info("[Queue] Waiting for next message")
		}
	}
}

func forward(ctx context.Context, queueName string, msgs <-chan amqp091.Delivery, out chan<- queuedMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Queue] Message channel closed", "queue", queueName)
				return
			}
			select {
			case out <- queuedMessage{msg: msg, queueName: queueName}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Process runs handle on one delivery and settles it: acked on success,
// otherwise rerouted to the retry or dead letter queue.
func Process(ctx context.Context, pub Publisher, queueName string, msg amqp091.Delivery, handle Handler) {
	start := time.Now()
	logger.Info("[Queue] Received message", "queue", queueName, "id", msg.MessageId)

	if err := handle(ctx, queueName, msg.Body); err != nil {
		logger.Error("[Queue] Error processing message", "queue", queueName, "err", err)
		HandleProcessingError(pub, msg, msg.Body, msg.Headers, queueName)
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	logger.Info("[Queue] Message processed successfully", "queue", queueName, "duration", clock(time.Since(start)))
}

// clock formats d as hh:mm:ss.
func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
