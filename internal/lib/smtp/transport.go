package smtp

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"

	"github.com/andrmaer/lora-studio/internal/config"
	"github.com/andrmaer/lora-studio/internal/lib/sl"
)

// Transport устанавливает аутентифицированные SMTP-соединения для
// отправки квитанций. Соединение открывается на каждое письмо: поток
// уведомлений о покупках невелик, и держать пул незачем.
type Transport struct {
	cfg *config.Config
	log *slog.Logger
}

// clientWrapper адаптирует *smtp.Client к интерфейсу Client.
type clientWrapper struct {
	client *smtp.Client
}

func (w *clientWrapper) Mail(from string) error {
	return w.client.Mail(from)
}

func (w *clientWrapper) Rcpt(to string) error {
	return w.client.Rcpt(to)
}

func (w *clientWrapper) Data() (io.WriteCloser, error) {
	return w.client.Data()
}

func (w *clientWrapper) Quit() error {
	return w.client.Quit()
}

func (w *clientWrapper) Close() error {
	return w.client.Close()
}

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg *config.Config, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// Connect открывает соединение с SMTP-сервером, поднимает STARTTLS и
// проходит аутентификацию. Сервер без STARTTLS отвергается: письма
// содержат адреса покупателей и открытым текстом не передаются.
func (t *Transport) Connect() (Client, error) {
	addr := t.cfg.SMTPHost + ":" + t.cfg.SMTPPort

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.log.Error("failed to dial SMTP server", sl.Err(err))
		return nil, fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, t.cfg.SMTPHost)
	if err != nil {
		t.log.Error("failed to create SMTP client", sl.Err(err))
		if closeErr := conn.Close(); closeErr != nil {
			t.log.Error("failed to close connection", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); !ok {
		t.closeClient(client)
		return nil, fmt.Errorf("smtp server does not support STARTTLS")
	}
	tlsConfig := &tls.Config{
		ServerName: t.cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		t.log.Error("failed to start TLS", sl.Err(err))
		t.closeClient(client)
		return nil, fmt.Errorf("failed to start TLS: %w", err)
	}

	auth := smtp.PlainAuth("", t.cfg.SMTPUser, t.cfg.SMTPPass, t.cfg.SMTPHost)
	if err = client.Auth(auth); err != nil {
		t.log.Error("smtp auth failed", sl.Err(err))
		t.closeClient(client)
		return nil, fmt.Errorf("smtp auth failed: %w", err)
	}

	return &clientWrapper{client: client}, nil
}

func (t *Transport) closeClient(client *smtp.Client) {
	if err := client.Close(); err != nil {
		t.log.Error("failed to close SMTP client", sl.Err(err))
	}
}

// GetSMTPUser возвращает адрес отправителя квитанций.
func (t *Transport) GetSMTPUser() string {
	return t.cfg.SMTPUser
}
