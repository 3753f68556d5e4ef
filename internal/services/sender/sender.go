// Package sender реализует отправку писем-квитанций о покупках.
// Сообщения поступают из очереди уведомлений, публикуемой леджером
// после успешного начисления.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andrmaer/lora-studio/internal/lib/sl"
	"github.com/andrmaer/lora-studio/internal/lib/smtp"
	"github.com/andrmaer/lora-studio/internal/models"
)

// SenderService отправляет квитанции о покупках по SMTP.
type SenderService struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(log *slog.Logger, transport smtp.TransportInterface) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// SendPurchaseReceipt разбирает сообщение очереди и отправляет квитанцию.
// Сообщения без адреса почты подтверждаются без отправки: у автосозданных
// вебхуком записей адрес может отсутствовать.
func (s *SenderService) SendPurchaseReceipt(body []byte) error {
	const op = "sender.SendPurchaseReceipt"

	var message models.PurchaseNotification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if message.Email == "" {
		s.log.Info("purchase notification without email, skipped",
			slog.String("user_uid", message.UserUID))
		return nil
	}

	client, err := s.transport.Connect()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	from := s.transport.GetSMTPUser()
	if err = client.Mail(from); err != nil {
		s.log.Error("failed to set sender", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = client.Rcpt(message.Email); err != nil {
		s.log.Error("failed to set recipient", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to open data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := buildReceipt(from, message)
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("receipt sent", slog.String("to", message.Email))
	return nil
}

func buildReceipt(from string, message models.PurchaseNotification) string {
	var body string
	switch message.Product {
	case models.ProductLoraCredits:
		body = fmt.Sprintf("Your purchase of %d LoRA training credits has been applied to your account.", message.Amount)
	case models.ProductImageCredits:
		body = fmt.Sprintf("Your purchase of %d image generation credits has been applied to your account.", message.Amount)
	case models.ProductImageSub:
		body = "Your image generator subscription is now active."
	case models.ProductLoraSub:
		body = "Your LoRA training subscription is now active."
	default:
		body = "Your purchase has been applied to your account."
	}

	headers := []string{
		"From: " + from,
		"To: " + message.Email,
		"Subject: Purchase confirmation",
		"",
		body,
	}
	return strings.Join(headers, "\r\n")
}
