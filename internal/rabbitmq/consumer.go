package rabbitmq

import (
	"context"
	"fmt"
	"log"

	"github.com/streadway/amqp"
)

// maxInFlight ограничивает число одновременно обрабатываемых уведомлений:
// каждое из них открывает SMTP-соединение.
const maxInFlight = 10

// Consume подписывается на очередь и передает тело каждого сообщения
// обработчику. Сообщение подтверждается только после успешной обработки;
// при ошибке оно возвращается в очередь, и письмо будет отправлено повторно.
func Consume(ctx context.Context, ch *amqp.Channel, queueName string, handler func([]byte) error) error {
	const op = "rabbitmq.Consume"
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

	inFlight := make(chan struct{}, maxInFlight)
	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				inFlight <- struct{}{}
				go func(d amqp.Delivery) {
					defer func() { <-inFlight }()
					if err := handler(d.Body); err != nil {
						if nackErr := d.Nack(false, true); nackErr != nil {
							log.Printf("failed to requeue notification: %v", nackErr)
						}
						return
					}
					if ackErr := d.Ack(false); ackErr != nil {
						log.Printf("failed to ack notification: %v", ackErr)
					}
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
