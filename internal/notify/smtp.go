package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SendFunc — сигнатура net/smtp.SendMail (подменяется в тестах).
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig — параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPNotifier отправляет уведомления письмом.
type SMTPNotifier struct {
	cfg    SMTPConfig
	send   SendFunc
	logger *slog.Logger
}

// NewSMTPNotifier создаёт SMTP-уведомитель.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger.With(slog.String("component", "notify")),
	}
}

// WithSendFunc подменяет функцию отправки.
func (n *SMTPNotifier) WithSendFunc(fn SendFunc) *SMTPNotifier {
	n.send = fn
	return n
}

// Notify отправляет письмо со ссылкой на файл.
// net/smtp не принимает context, поэтому отправка идёт в горутине,
// а отмена ctx прерывает только ожидание результата.
func (n *SMTPNotifier) Notify(ctx context.Context, msg Notification) error {
	to, err := ValidateAddress(msg.Address)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.User != "" {
		auth = smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	body := buildMessage(n.cfg.From, to, msg, time.Now())

	done := make(chan error, 1)
	go func() {
		done <- n.send(addr, auth, n.cfg.From, []string{to}, body)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("отправка уведомления прервана: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ошибка отправки уведомления на %s: %w", to, err)
		}
	}

	n.logger.Debug("Уведомление отправлено",
		slog.String("identifier", msg.Identifier),
		slog.String("address", to),
	)
	return nil
}

// buildMessage собирает письмо в формате RFC 5322 (text/plain, UTF-8).
func buildMessage(from, to string, msg Notification, now time.Time) []byte {
	subject := mime.QEncoding.Encode("utf-8", "Файл загружен: "+msg.OriginalName)

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@filedrop>\r\n", uuid.NewString())
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Файл %q загружен.\r\n\r\n", msg.OriginalName)
	fmt.Fprintf(&b, "Код: %s\r\n", msg.Identifier)
	fmt.Fprintf(&b, "Ссылка: %s\r\n\r\n", msg.URL)
	fmt.Fprintf(&b, "Файл будет удалён через %d сут.\r\n", msg.RetentionDays)
	return b.Bytes()
}
