package models

import "time"

// Продукты, за которые начисляются кредиты или включаются подписки.
const (
	ProductLoraCredits  = "lora_credits"
	ProductImageCredits = "image_credits"
	ProductImageSub     = "image_subscription"
	ProductLoraSub      = "lora_subscription"
)

// CreditGrant представляет запись о начислении кредитов по оплаченной сессии.
// Служит журналом аудита: одна строка на одно обработанное событие вебхука.
type CreditGrant struct {
	ID        int       `json:"id"`
	UserUID   string    `json:"user_uid"`
	EventID   string    `json:"event_id"`
	PriceID   string    `json:"price_id"`
	Product   string    `json:"product"`
	Amount    int       `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Grant описывает результат разбора оплаченной сессии: какой счётчик
// пополнить и на сколько, либо какой флаг подписки включить.
type Grant struct {
	Product string // один из Product*-констант
	Amount  int    // количество кредитов, 0 для подписок
}

// PurchaseNotification сообщение для очереди уведомлений о покупке.
type PurchaseNotification struct {
	UserUID string `json:"user_uid"`
	Email   string `json:"email"`
	Product string `json:"product"`
	Amount  int    `json:"amount"`
}
