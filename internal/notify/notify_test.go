package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"user@example.com", "user@example.com", false},
		{"Ivan Petrov <ivan@example.com>", "ivan@example.com", false},
		{"not-an-address", "", true},
		{"", "", true},
		{"a@b.c\r\nBcc: x@y.z", "", true},
	}
	for _, tt := range tests {
		got, err := ValidateAddress(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("ValidateAddress(%q): ожидалась ErrInvalidAddress, получено %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ValidateAddress(%q) = %q, %v; хотели %q", tt.in, got, err, tt.want)
		}
	}
}

func TestSMTPNotifier_Notify(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n := NewSMTPNotifier(SMTPConfig{
		Host: "smtp.example.com", Port: 587, User: "bot", Password: "secret", From: "bot@example.com",
	}, testLogger()).WithSendFunc(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if a == nil {
			t.Error("ожидалась PLAIN-аутентификация")
		}
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	})

	err := n.Notify(context.Background(), Notification{
		Address:       "User <user@example.com>",
		OriginalName:  "отчёт.pdf",
		Identifier:    "a1b2c3",
		URL:           "http://127.0.0.1:8080/file/a1b2c3",
		RetentionDays: 10,
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr: получено %q", gotAddr)
	}
	if gotFrom != "bot@example.com" || len(gotTo) != 1 || gotTo[0] != "user@example.com" {
		t.Errorf("from/to: %q %v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	for _, want := range []string{"a1b2c3", "http://127.0.0.1:8080/file/a1b2c3", "10 сут", "Subject: =?utf-8?q?"} {
		if !strings.Contains(body, want) {
			t.Errorf("письмо не содержит %q:\n%s", want, body)
		}
	}
}

func TestSMTPNotifier_SendError(t *testing.T) {
	sendErr := errors.New("550 mailbox unavailable")
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp", Port: 25, From: "bot@example.com"}, testLogger()).
		WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error { return sendErr })

	err := n.Notify(context.Background(), Notification{Address: "user@example.com"})
	if !errors.Is(err, sendErr) {
		t.Errorf("ожидалась обёрнутая ошибка отправки, получено %v", err)
	}
}

func TestSMTPNotifier_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp", Port: 25, From: "bot@example.com"}, testLogger()).
		WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
			<-release
			return nil
		})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := n.Notify(ctx, Notification{Address: "user@example.com"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ожидалась DeadlineExceeded, получено %v", err)
	}
}

func TestSMTPNotifier_InvalidAddress(t *testing.T) {
	called := false
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp", Port: 25}, testLogger()).
		WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error { called = true; return nil })

	if err := n.Notify(context.Background(), Notification{Address: "bogus"}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("ожидалась ErrInvalidAddress, получено %v", err)
	}
	if called {
		t.Error("отправка не должна вызываться для некорректного адреса")
	}
}
