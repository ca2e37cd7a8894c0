// Пакет notify — уведомления о загруженных файлах.
// Доставка best-effort: ошибка уведомления не отменяет загрузку.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
)

// ErrInvalidAddress — адрес уведомления не является корректным e-mail.
var ErrInvalidAddress = errors.New("некорректный адрес уведомления")

// Notification — содержимое уведомления о загрузке.
type Notification struct {
	// Address — адрес получателя
	Address string
	// OriginalName — имя загруженного файла
	OriginalName string
	// Identifier — код файла
	Identifier string
	// URL — ссылка на файл
	URL string
	// RetentionDays — срок хранения в сутках
	RetentionDays int
}

// Notifier отправляет уведомление о загрузке.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ValidateAddress разбирает адрес (допускается "Имя <addr@host>")
// и возвращает только addr@host.
func ValidateAddress(address string) (string, error) {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return parsed.Address, nil
}

// LogNotifier только пишет уведомление в лог (SMTP не настроен).
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создаёт уведомитель без доставки.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("component", "notify"))}
}

// Notify записывает уведомление в лог.
func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.logger.Info("Уведомление о загрузке (SMTP не настроен)",
		slog.String("address", msg.Address),
		slog.String("identifier", msg.Identifier),
		slog.String("url", msg.URL),
	)
	return nil
}
