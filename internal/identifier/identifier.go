// Пакет identifier — генерация коротких уникальных идентификаторов файлов.
//
// Идентификатор — 24 случайных бита в виде 6 шестнадцатеричных символов
// в нижнем регистре. Уникальность проверяется по каталогу, включая ранее
// выданные и уже удалённые идентификаторы.
package identifier

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Length — длина идентификатора в символах.
const Length = 6

// DefaultMaxAttempts — лимит попыток по умолчанию.
const DefaultMaxAttempts = 1000

// ErrCapacityExhausted — за отведённое число попыток не найден свободный идентификатор.
var ErrCapacityExhausted = errors.New("пространство идентификаторов исчерпано")

// Registry — проверка, выдавался ли идентификатор ранее.
type Registry interface {
	IdentifierIssued(ctx context.Context, id string) (bool, error)
}

// Generator выдаёт идентификаторы, ещё не встречавшиеся в каталоге.
type Generator struct {
	registry    Registry
	rand        io.Reader
	maxAttempts int
}

// Option — функциональная опция генератора.
type Option func(*Generator)

// WithRandom подменяет источник случайности (для тестов).
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.rand = r }
}

// WithMaxAttempts задаёт лимит попыток.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// New создаёт генератор поверх каталога.
func New(registry Registry, opts ...Option) *Generator {
	g := &Generator{
		registry:    registry,
		rand:        rand.Reader,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate возвращает идентификатор, который не выдавался ранее.
// Кандидат не резервируется: окончательную уникальность гарантирует
// ограничение каталога при вставке.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	buf := make([]byte, Length/2)
	for range g.maxAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("ошибка чтения источника случайности: %w", err)
		}
		candidate := hex.EncodeToString(buf)

		issued, err := g.registry.IdentifierIssued(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("ошибка проверки идентификатора %s: %w", candidate, err)
		}
		if !issued {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %d попыток", ErrCapacityExhausted, g.maxAttempts)
}

// Valid проверяет формат идентификатора: ровно 6 символов [0-9a-f].
func Valid(id string) bool {
	if len(id) != Length {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
