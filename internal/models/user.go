// Package models содержит доменную модель пользователя системы,
// включающую данные учётной записи, счётчики кредитов и флаги подписок.
// Структуры используются в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// User представляет пользователя системы.
//
// Счётчики LoraCredits и ImageCredits изменяются только транзакционно
// через хранилище: вебхук пополняет их, отправка задач списывает.
type User struct {
	UID                      string     // Уникальный идентификатор пользователя
	Email                    *string    // Электронная почта (может отсутствовать у автосозданных записей)
	Username                 *string    // Имя пользователя (заполняется при регистрации)
	PasswordHash             *string    // Хэш пароля пользователя
	Role                     string     // Роль пользователя, admin или user
	LoraCredits              int        // Остаток кредитов на обучение LoRA
	ImageCredits             int        // Остаток кредитов на генерацию изображений
	IsSubscribed             bool       // Подписка на генератор изображений
	IsLoraTrainingSubscribed bool       // Подписка на обучение LoRA
	CreatedAt                time.Time  // Дата создания записи
	LastGrantAt              *time.Time // Дата последнего пополнения кредитов
}
