package identifier

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// mockRegistry — мок каталога с функциональным полем.
type mockRegistry struct {
	issuedFn func(ctx context.Context, id string) (bool, error)
	calls    int
}

func (m *mockRegistry) IdentifierIssued(ctx context.Context, id string) (bool, error) {
	m.calls++
	return m.issuedFn(ctx, id)
}

func TestGenerate_Format(t *testing.T) {
	reg := &mockRegistry{issuedFn: func(context.Context, string) (bool, error) { return false, nil }}
	g := New(reg)

	for range 100 {
		id, err := g.Generate(context.Background())
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		if !Valid(id) {
			t.Fatalf("некорректный идентификатор %q", id)
		}
	}
}

func TestGenerate_LeadingZerosPreserved(t *testing.T) {
	reg := &mockRegistry{issuedFn: func(context.Context, string) (bool, error) { return false, nil }}
	g := New(reg, WithRandom(bytes.NewReader([]byte{0x00, 0x0a, 0x01})))

	id, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if id != "000a01" {
		t.Errorf("ожидалось 000a01, получено %q", id)
	}
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	// Первые два кандидата заняты, третий свободен.
	src := bytes.NewReader([]byte{0xaa, 0xaa, 0xaa, 0xbb, 0xbb, 0xbb, 0x12, 0x34, 0x56})
	taken := map[string]bool{"aaaaaa": true, "bbbbbb": true}
	reg := &mockRegistry{issuedFn: func(_ context.Context, id string) (bool, error) {
		return taken[id], nil
	}}

	id, err := New(reg, WithRandom(src)).Generate(context.Background())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if id != "123456" {
		t.Errorf("ожидалось 123456, получено %q", id)
	}
	if reg.calls != 3 {
		t.Errorf("ожидалось 3 проверки, получено %d", reg.calls)
	}
}

func TestGenerate_CapacityExhausted(t *testing.T) {
	reg := &mockRegistry{issuedFn: func(context.Context, string) (bool, error) { return true, nil }}
	g := New(reg, WithMaxAttempts(5))

	_, err := g.Generate(context.Background())
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("ожидалась ErrCapacityExhausted, получено %v", err)
	}
	if reg.calls != 5 {
		t.Errorf("ожидалось ровно 5 попыток, получено %d", reg.calls)
	}
}

func TestGenerate_RegistryError(t *testing.T) {
	dbErr := errors.New("connection refused")
	reg := &mockRegistry{issuedFn: func(context.Context, string) (bool, error) { return false, dbErr }}

	_, err := New(reg).Generate(context.Background())
	if !errors.Is(err, dbErr) {
		t.Fatalf("ожидалась обёрнутая ошибка каталога, получено %v", err)
	}
}

func TestGenerate_ContextCancelled(t *testing.T) {
	reg := &mockRegistry{issuedFn: func(context.Context, string) (bool, error) { return true, nil }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(reg).Generate(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидалась context.Canceled, получено %v", err)
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"a1b2c3":  true,
		"000000":  true,
		"A1B2C3":  false,
		"a1b2c":   false,
		"a1b2c3d": false,
		"g00000":  false,
		"../../":  false,
		"":        false,
	}
	for in, want := range cases {
		if got := Valid(in); got != want {
			t.Errorf("Valid(%q): ожидалось %v, получено %v", in, want, got)
		}
	}
}
