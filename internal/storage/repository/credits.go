package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andrmaer/lora-studio/internal/models"
)

// ApplyGrant атомарно применяет начисление по событию вебхука.
//
// Вся работа выполняется в одной транзакции:
//  1. событие регистрируется в stripe_webhook_events; повторная доставка
//     того же event_id завершается ErrEventAlreadyProcessed без изменений;
//  2. запись пользователя создается с нулевыми остатками, если отсутствует;
//  3. счётчик читается с блокировкой строки (FOR UPDATE), новое значение
//     вычисляется и записывается — конкурентные доставки сериализуются;
//  4. в credit_grants добавляется строка журнала.
func (s *Storage) ApplyGrant(ctx context.Context, eventID, eventType, userUID string,
	email *string, priceID string, grant models.Grant) error {
	const op = "storage.ApplyGrant"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO stripe_webhook_events (event_id, event_type)
		 VALUES ($1, $2)
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	} else if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrEventAlreadyProcessed)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO users (uid, email)
		 VALUES ($1, $2)
		 ON CONFLICT (uid) DO NOTHING`,
		userUID, email); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var loraCredits, imageCredits int
	if err = tx.QueryRowContext(ctx,
		`SELECT lora_credits, image_credits FROM users WHERE uid = $1 FOR UPDATE`,
		userUID).Scan(&loraCredits, &imageCredits); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch grant.Product {
	case models.ProductLoraCredits:
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET lora_credits = $1, last_grant_at = NOW() WHERE uid = $2`,
			loraCredits+grant.Amount, userUID)
	case models.ProductImageCredits:
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET image_credits = $1, last_grant_at = NOW() WHERE uid = $2`,
			imageCredits+grant.Amount, userUID)
	case models.ProductImageSub:
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET is_subscribed = TRUE, last_grant_at = NOW() WHERE uid = $1`,
			userUID)
	case models.ProductLoraSub:
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET is_lora_training_subscribed = TRUE, last_grant_at = NOW() WHERE uid = $1`,
			userUID)
	default:
		return fmt.Errorf("%s: unknown product %q", op, grant.Product)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO credit_grants (user_uid, event_id, price_id, product, amount)
		 VALUES ($1, $2, $3, $4, $5)`,
		userUID, eventID, priceID, grant.Product, grant.Amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SpendLoraCredit списывает один кредит обучения, возвращает остаток.
// Списание выполняется одним условным UPDATE, поэтому баланс не может
// уйти в минус даже при конкурентных запросах.
func (s *Storage) SpendLoraCredit(ctx context.Context, userUID string) (int, error) {
	return s.spendCredit(ctx, userUID, "lora_credits", "storage.SpendLoraCredit")
}

// SpendImageCredit списывает один кредит генерации, возвращает остаток.
func (s *Storage) SpendImageCredit(ctx context.Context, userUID string) (int, error) {
	return s.spendCredit(ctx, userUID, "image_credits", "storage.SpendImageCredit")
}

func (s *Storage) spendCredit(ctx context.Context, userUID, column, op string) (int, error) {
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := fmt.Sprintf(
		`UPDATE users SET %[1]s = %[1]s - 1
		 WHERE uid = $1 AND %[1]s > 0
		 RETURNING %[1]s`, column)
	var remaining int
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", op, ErrInsufficientCredits)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return remaining, nil
}

// RefundLoraCredit возвращает один кредит обучения после неудачной отправки задачи.
func (s *Storage) RefundLoraCredit(ctx context.Context, userUID string) error {
	return s.refundCredit(ctx, userUID, "lora_credits", "storage.RefundLoraCredit")
}

// RefundImageCredit возвращает один кредит генерации.
func (s *Storage) RefundImageCredit(ctx context.Context, userUID string) error {
	return s.refundCredit(ctx, userUID, "image_credits", "storage.RefundImageCredit")
}

func (s *Storage) refundCredit(ctx context.Context, userUID, column, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := fmt.Sprintf(
		`UPDATE users SET %[1]s = %[1]s + 1 WHERE uid = $1`, column)
	if _, err := s.DB.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListCreditGrants возвращает журнал начислений пользователя, новые первыми.
func (s *Storage) ListCreditGrants(ctx context.Context, userUID string) ([]*models.CreditGrant, error) {
	const op = "storage.ListCreditGrants"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, event_id, price_id, product, amount, created_at
			  FROM credit_grants
			  WHERE user_uid = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.CreditGrant
	for rows.Next() {
		var g models.CreditGrant
		if err := rows.Scan(&g.ID, &g.UserUID, &g.EventID, &g.PriceID,
			&g.Product, &g.Amount, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
