package paymentprovider

import (
	"encoding/json"
	"fmt"
)

// Режимы платёжной сессии.
const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

// EventCheckoutCompleted единственный тип события, по которому начисляются кредиты.
const EventCheckoutCompleted = "checkout.session.completed"

// PaymentStatusPaid статус оплаченной сессии.
const PaymentStatusPaid = "paid"

// CheckoutSession платёжная сессия провайдера.
// ClientReferenceID — ключ связи с внутренней записью пользователя.
type CheckoutSession struct {
	ID                string           `json:"id"`
	URL               string           `json:"url"`
	Mode              string           `json:"mode"`
	PaymentStatus     string           `json:"payment_status"`
	ClientReferenceID string           `json:"client_reference_id"`
	Subscription      string           `json:"subscription"`
	CustomerDetails   *CustomerDetails `json:"customer_details"`
	LineItems         *LineItemList    `json:"line_items"`
}

// CustomerDetails данные покупателя, заполненные провайдером после оплаты.
type CustomerDetails struct {
	Email string `json:"email"`
}

// LineItemList список купленных позиций сессии.
type LineItemList struct {
	Data []LineItem `json:"data"`
}

// LineItem купленная позиция; Price определяет продукт.
type LineItem struct {
	Price    *Price `json:"price"`
	Quantity int64  `json:"quantity"`
}

// Price идентификатор цены провайдера.
type Price struct {
	ID string `json:"id"`
}

// CreateCheckoutSessionParams параметры создания платёжной сессии.
type CreateCheckoutSessionParams struct {
	Mode              string
	PriceID           string
	Quantity          int64
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
}

// Event конверт события вебхука. Поле ID служит ключом идемпотентности.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession разбирает объект события как платёжную сессию.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	const op = "paymentprovider.Event.CheckoutSession"
	var session CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// ErrorResponse тело ответа провайдера при ошибке запроса.
type ErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
