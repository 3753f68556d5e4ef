// Package poll реализует ограниченный цикл опроса внешнего асинхронного источника.
//
// Poller выполняет проверку с фиксированным интервалом и ограниченным числом
// попыток. Итог опроса всегда терминален: completed, failed или timed_out.
// Отмена контекста прерывает цикл немедленно.
package poll

import (
	"context"
	"fmt"
	"time"
)

// State состояние цикла опроса.
type State string

const (
	// StatePending задача еще выполняется, нужен следующий опрос
	StatePending State = "pending"
	// StateCompleted задача завершилась успешно
	StateCompleted State = "completed"
	// StateFailed задача завершилась с ошибкой
	StateFailed State = "failed"
	// StateTimedOut лимит попыток исчерпан, задача так и не завершилась
	StateTimedOut State = "timed_out"
)

// CheckFunc один опрос источника. Возвращает StatePending, пока задача не
// завершена, либо терминальное состояние. Ошибка трактуется как терминальный
// сбой источника.
type CheckFunc func(ctx context.Context) (State, error)

// Poller ограниченный цикл опроса с фиксированным интервалом.
type Poller struct {
	interval    time.Duration
	maxAttempts int
}

// New создает Poller с заданным интервалом и лимитом попыток.
func New(interval time.Duration, maxAttempts int) *Poller {
	return &Poller{
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Run выполняет опрос до терминального состояния, исчерпания попыток
// или отмены контекста. Первый опрос выполняется сразу, без ожидания интервала.
func (p *Poller) Run(ctx context.Context, check CheckFunc) (State, error) {
	const op = "poll.Run"

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		state, err := check(ctx)
		if err != nil {
			return StateFailed, fmt.Errorf("%s: %w", op, err)
		}
		if state != StatePending {
			return state, nil
		}
		if attempt >= p.maxAttempts {
			return StateTimedOut, nil
		}

		select {
		case <-ctx.Done():
			return StateFailed, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-ticker.C:
		}
	}
}
