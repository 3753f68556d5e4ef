// Package repository реализует хранилище данных на основе PostgreSQL
// для кредитного леджера и пользователей. Предоставляет методы регистрации,
// чтения, транзакционного начисления и списания кредитов, а также журнал
// обработанных событий вебхука для идемпотентности.
package repository

import (
	"context"
	"errors"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"database/sql"
)

// Ошибки уровня хранилища, различимые бизнес-логикой.
var (
	// ErrUserNotFound запись пользователя отсутствует
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientCredits на счету нет кредитов для списания
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrEventAlreadyProcessed событие вебхука уже было обработано ранее
	ErrEventAlreadyProcessed = errors.New("event already processed")
)

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с пользователями и кредитным леджером.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет готовность базы данных.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'users'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table users missing or query error: %w", err)
	}
	return nil
}
