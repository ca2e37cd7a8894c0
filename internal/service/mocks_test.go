package service

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/notify"
	"github.com/bigkaa/filedrop/internal/repository"
	"github.com/bigkaa/filedrop/internal/storage/filestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memFiles — каталог в памяти. Поля *Fn подменяют поведение отдельных методов.
type memFiles struct {
	mu      sync.Mutex
	records map[string]*model.FileRecord
	issued  map[string]bool
	seq     map[string]int
	nextSeq int

	insertFn      func(ctx context.Context, rec *model.FileRecord) error
	deleteFn      func(ctx context.Context, id string) (bool, error)
	findExpiredFn func(ctx context.Context, cutoff time.Time) ([]*model.FileRecord, error)
	storedNamesFn func(ctx context.Context) (map[string]string, error)
}

func newMemFiles() *memFiles {
	return &memFiles{
		records: make(map[string]*model.FileRecord),
		issued:  make(map[string]bool),
		seq:     make(map[string]int),
	}
}

func (m *memFiles) Insert(ctx context.Context, rec *model.FileRecord) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, rec)
	}
	return m.insert(rec)
}

func (m *memFiles) insert(rec *model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issued[rec.Identifier] {
		return repository.ErrConflict
	}
	for _, r := range m.records {
		if r.StoredName == rec.StoredName {
			return repository.ErrConflict
		}
	}
	cp := *rec
	m.records[rec.Identifier] = &cp
	m.issued[rec.Identifier] = true
	m.nextSeq++
	m.seq[rec.Identifier] = m.nextSeq
	return nil
}

func (m *memFiles) GetByIdentifier(_ context.Context, id string) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memFiles) sorted() []*model.FileRecord {
	out := make([]*model.FileRecord, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.seq[out[i].Identifier] > m.seq[out[j].Identifier]
	})
	return out
}

func (m *memFiles) ListAll(_ context.Context) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

func (m *memFiles) FindLatestByOriginalName(_ context.Context, name string) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.sorted() {
		if r.OriginalName == name {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memFiles) FindExpired(ctx context.Context, cutoff time.Time) ([]*model.FileRecord, error) {
	if m.findExpiredFn != nil {
		return m.findExpiredFn(ctx, cutoff)
	}
	return m.findExpired(cutoff), nil
}

func (m *memFiles) findExpired(cutoff time.Time) []*model.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FileRecord
	for _, r := range m.sorted() {
		if r.CreatedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memFiles) Delete(ctx context.Context, id string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return m.remove(id), nil
}

func (m *memFiles) remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false
	}
	delete(m.records, id)
	return true
}

func (m *memFiles) IdentifierIssued(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issued[id], nil
}

func (m *memFiles) ListStoredNames(ctx context.Context) (map[string]string, error) {
	if m.storedNamesFn != nil {
		return m.storedNamesFn(ctx)
	}
	return m.storedNames(), nil
}

func (m *memFiles) storedNames() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.records))
	for id, r := range m.records {
		out[r.StoredName] = id
	}
	return out
}

func (m *memFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// mockBlobs — хранилище файлов поверх FileStore с подменой Delete.
type mockBlobs struct {
	*filestore.FileStore
	deleteFn func(storedName string) error
}

func (b *mockBlobs) Delete(storedName string) error {
	if b.deleteFn != nil {
		return b.deleteFn(storedName)
	}
	return b.FileStore.Delete(storedName)
}

// newMemBlobs создаёт хранилище на MemMapFs и возвращает его fs для проверок.
func newMemBlobs(t *testing.T) (*mockBlobs, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	if err := mem.MkdirAll("/data", 0o750); err != nil {
		t.Fatal(err)
	}
	base := afero.NewBasePathFs(mem, "/data")
	return &mockBlobs{FileStore: filestore.NewWithFs(base, "/data", 0)}, base
}

// mockIDs — генератор идентификаторов с заданной последовательностью.
type mockIDs struct {
	mu         sync.Mutex
	ids        []string
	generateFn func(ctx context.Context) (string, error)
}

func (g *mockIDs) Generate(ctx context.Context) (string, error) {
	if g.generateFn != nil {
		return g.generateFn(ctx)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id, nil
}

// mockNotifier записывает уведомления.
type mockNotifier struct {
	mu       sync.Mutex
	sent     []notify.Notification
	notifyFn func(ctx context.Context, n notify.Notification) error
}

func (n *mockNotifier) Notify(ctx context.Context, msg notify.Notification) error {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
	if n.notifyFn != nil {
		return n.notifyFn(ctx, msg)
	}
	return nil
}

// mockSweepState — состояние очистки в памяти.
type mockSweepState struct {
	mu          sync.Mutex
	lastSweepAt *time.Time
	holder      *string
	until       *time.Time
	marked      chan time.Time

	acquireFn func(ctx context.Context, holder string, now time.Time, ttl time.Duration) (bool, error)
}

func (s *mockSweepState) Get(_ context.Context) (*model.SweepState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.SweepState{LastSweepAt: s.lastSweepAt, LeaseHolder: s.holder, LeaseUntil: s.until}, nil
}

func (s *mockSweepState) MarkSwept(_ context.Context, t time.Time) error {
	s.mu.Lock()
	s.lastSweepAt = &t
	s.mu.Unlock()
	if s.marked != nil {
		select {
		case s.marked <- t:
		default:
		}
	}
	return nil
}

func (s *mockSweepState) AcquireLease(ctx context.Context, holder string, now time.Time, ttl time.Duration) (bool, error) {
	if s.acquireFn != nil {
		return s.acquireFn(ctx, holder, now, ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder != nil && *s.holder != holder && s.until != nil && !s.until.Before(now) {
		return false, nil
	}
	until := now.Add(ttl)
	s.holder = &holder
	s.until = &until
	return true, nil
}

func (s *mockSweepState) ReleaseLease(_ context.Context, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder != nil && *s.holder == holder {
		s.holder = nil
		s.until = nil
	}
	return nil
}

// fixedClock — управляемые часы для тестов.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
