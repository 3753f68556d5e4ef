package paymentprovider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature подпись события не прошла проверку.
// Такое событие отбрасывается навсегда, без повторной доставки.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// DefaultTolerance допустимое расхождение метки времени подписи.
const DefaultTolerance = 5 * time.Minute

// ConstructEvent проверяет подпись сырого тела вебхука и разбирает конверт события.
//
// Заголовок Stripe-Signature имеет вид "t=<unix>,v1=<hex>[,v1=<hex>...]";
// подпись — HMAC-SHA256 от строки "<t>.<body>" на секрете вебхука.
// Сравнение выполняется в константное время. Устаревшая метка времени
// отклоняется, чтобы исключить повтор старых перехваченных событий.
func ConstructEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	const op = "paymentprovider.ConstructEvent"

	if err := verifySignature(payload, sigHeader, secret, time.Now()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &event, nil
}

func verifySignature(payload []byte, sigHeader, secret string, now time.Time) error {
	var timestamp int64
	var signatures [][]byte

	for _, pair := range strings.Split(sigHeader, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(parts[1])
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}
	if diff := now.Sub(time.Unix(timestamp, 0)); diff > DefaultTolerance || diff < -DefaultTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignPayload формирует значение заголовка Stripe-Signature для тела payload.
// Используется в тестах и локальной отладке вебхука.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
