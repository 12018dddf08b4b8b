package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
)

// DefaultConcurrency — число одновременно обрабатываемых сообщений по умолчанию.
const DefaultConcurrency = 10

// ErrDiscard помечает сообщение, которое невозможно обработать повторно.
// Такое сообщение отклоняется без возврата в очередь.
var ErrDiscard = errors.New("message discarded")

// ConsumerMessage запускает чтение очереди queueName. Каждое сообщение передаётся
// в handler не более чем в concurrency горутинах одновременно. При ошибке
// обработчика сообщение возвращается в очередь (Nack с requeue), при ErrDiscard
// отклоняется без возврата, иначе подтверждается.
// Чтение прекращается при отмене ctx или закрытии канала доставки.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, concurrency int, log *slog.Logger, handler func([]byte) error) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	sem := make(chan struct{}, concurrency)
	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				go func(delivery amqp.Delivery) {
					defer func() { <-sem }()
					err := handler(delivery.Body)
					if errors.Is(err, ErrDiscard) {
						log.Error("message discarded", slog.String("queue", queueName), sl.Err(err))
						if nackErr := delivery.Nack(false, false); nackErr != nil {
							log.Error("failed to nack message", sl.Err(nackErr))
						}
						return
					}
					if err != nil {
						log.Warn("message handling failed, requeueing", slog.String("queue", queueName), sl.Err(err))
						if nackErr := delivery.Nack(false, true); nackErr != nil {
							log.Error("failed to nack message", sl.Err(nackErr))
						}
						return
					}
					if ackErr := delivery.Ack(false); ackErr != nil {
						log.Error("failed to ack message", sl.Err(ackErr))
					}
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
