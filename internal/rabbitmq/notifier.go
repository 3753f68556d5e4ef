package rabbitmq

import (
	"github.com/streadway/amqp"

	"github.com/andrmaer/lora-studio/internal/models"
)

// Notifier публикует уведомления о покупках в обменник уведомлений.
type Notifier struct {
	ch *amqp.Channel
}

// NewNotifier создает Notifier поверх открытого канала.
func NewNotifier(ch *amqp.Channel) *Notifier {
	return &Notifier{ch: ch}
}

// PublishPurchase публикует уведомление о покупке.
func (n *Notifier) PublishPurchase(msg models.PurchaseNotification) error {
	return PublishMessage(n.ch, NotificationsExchange, PurchaseRoutingKey, msg)
}
