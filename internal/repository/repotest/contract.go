// Пакет repotest — общий набор проверок для реализаций каталога.
// Вызывается из тестов драйверов postgres и sqlite.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bigkaa/filedrop/internal/domain/model"
	"github.com/bigkaa/filedrop/internal/repository"
)

// Factory создаёт пустой каталог (после миграций) для одного подтеста.
type Factory func(t *testing.T) (repository.FileRepository, repository.SweepStateRepository)

// base — опорный момент времени с точностью до микросекунд.
var base = time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)

// NewRecord собирает тестовую запись.
func NewRecord(id, original, stored string, created time.Time) *model.FileRecord {
	return &model.FileRecord{
		Identifier:   id,
		OriginalName: original,
		StoredName:   stored,
		ContentType:  "text/plain; charset=utf-8",
		Size:         int64(len(original)),
		Checksum:     fmt.Sprintf("%064x", len(stored)),
		CreatedAt:    created,
	}
}

// Run выполняет все проверки контракта.
func Run(t *testing.T, newRepos Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newRepos) })
	t.Run("InsertConflicts", func(t *testing.T) { testInsertConflicts(t, newRepos) })
	t.Run("IdentifierNeverReused", func(t *testing.T) { testIdentifierNeverReused(t, newRepos) })
	t.Run("ListAllOrder", func(t *testing.T) { testListAllOrder(t, newRepos) })
	t.Run("FindLatestByOriginalName", func(t *testing.T) { testFindLatest(t, newRepos) })
	t.Run("FindExpired", func(t *testing.T) { testFindExpired(t, newRepos) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDelete(t, newRepos) })
	t.Run("ListStoredNames", func(t *testing.T) { testListStoredNames(t, newRepos) })
	t.Run("SweepState", func(t *testing.T) { testSweepState(t, newRepos) })
	t.Run("SweepLease", func(t *testing.T) { testSweepLease(t, newRepos) })
}

func mustInsert(t *testing.T, repo repository.FileRepository, rec *model.FileRecord) {
	t.Helper()
	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert(%s) ошибка: %v", rec.Identifier, err)
	}
}

func testInsertAndGet(t *testing.T, newRepos Factory) {
	repo, _ := newRepos(t)
	ctx := context.Background()

	notify := "user@example.com"
	rec := NewRecord("a1b2c3", "photo.jpg", "photo.jpg", base)
	rec.NotifyAddress = &notify
	mustInsert(t, repo, rec)

	got, err := repo.GetByIdentifier(ctx, "a1b2c3")
	if err != nil {
		t.Fatalf("GetByIdentifier() ошибка: %v", err)
	}
	if got.OriginalName != "photo.jpg" || got.StoredName != "photo.jpg" {
		t.Errorf("имена: %q / %q", got.OriginalName, got.StoredName)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, хотели %v", got.CreatedAt, base)
	}
	if got.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt должен быть в UTC, получили %v", got.CreatedAt.Location())
	}
	if got.NotifyAddress == nil || *got.NotifyAddress != notify {
		t.Errorf("NotifyAddress = %v, хотели %q", got.NotifyAddress, notify)
	}
	if got.Size != rec.Size || got.Checksum != rec.Checksum || got.ContentType != rec.ContentType {
		t.Errorf("метаданные не совпадают: %+v", got)
	}

	_, err = repo.GetByIdentifier(ctx, "ffffff")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByIdentifier(несуществующий) = %v, хотели ErrNotFound", err)
	}

	// Запись без адреса уведомления.
	mustInsert(t, repo, NewRecord("000001", "a.txt", "a.txt", base))
	got, err = repo.GetByIdentifier(ctx, "000001")
	if err != nil {
		t.Fatalf("GetByIdentifier() ошибка: %v", err)
	}
	if got.NotifyAddress != nil {
		t.Errorf("NotifyAddress = %q, хотели nil", *got.NotifyAddress)
	}
}

func testInsertConflicts(t *testing.T, newRepos Factory) {
	repo, _ := newRepos(t)
	ctx := context.Background()

	mustInsert(t, repo, NewRecord("aaaaaa", "a.txt", "a.txt", base))

	err := repo.Insert(ctx, NewRecord("aaaaaa", "b.txt", "b.txt", base))
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("дубликат идентификатора: хотели ErrConflict, получили %v", err)
	}

	err = repo.Insert(ctx, NewRecord("bbbbbb", "a.txt", "a.txt", base))
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("дубликат имени файла: хотели ErrConflict, получили %v", err)
	}

	// Неудачная вставка не должна резервировать идентификатор.
	issued, err := repo.IdentifierIssued(ctx, "bbbbbb")
	if err != nil {
		t.Fatalf("IdentifierIssued() ошибка: %v", err)
	}
	if issued {
		t.Error("идентификатор bbbbbb не должен считаться выданным после отката")
	}

	// Повторяющееся исходное имя допустимо.
	mustInsert(t, repo, NewRecord("cccccc", "a.txt", "a(1).txt", base))
}

func testIdentifierNeverReused(t *testing.T, newRepos Factory) {
	repo, _ := newRepos(t)
	ctx := context.Background()

	mustInsert(t, repo, NewRecord("abcdef", "a.txt", "a.txt", base))
	if _, err := repo.Delete(ctx, "abcdef"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}

	issued, err := repo.IdentifierIssued(ctx, "abcdef")
	if err != nil {
		t.Fatalf("IdentifierIssued() ошибка: %v", err)
	}
	if !issued {
		t.Error("удалённый идентификатор должен оставаться выданным")
	}

	err = repo.Insert(ctx, NewRecord("abcdef", "b.txt", "b.txt", base))
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("повторная выдача удалённого идентификатора: хотели ErrConflict, получили %v", err)
	}
}

func testListAllOrder(t *testing.T, newRepos Factory) {
	repo, _ := newRepos(t)
	ctx := context.Background()

	empty, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() ошибка: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("пустой каталог: получили %d записей", len(empty))
	}

	mustInsert(t, repo, NewRecord("000001", "old.txt", "old.txt", base.Add(-time.Hour)))
	mustInsert(t, repo, NewRecord("000002", "new.txt", "new.txt", base.Add(time.Hour)))
	// Одинаковое время: позже вставленная идёт первой.
	mustInsert(t, repo, NewRecord("000003", "tie1.txt", "tie1.txt", base))
	mustInsert(t, repo, NewRecord("000004", "tie2.txt", "tie2.txt", base))

	list, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() ошибка: %v", err)
	}
	want := []string{"000002", "000004", "000003", "000001"}
	if len(list) != len(want) {
		t.Fatalf("ListAll() вернул %d записей, хотели %d", len(list), len(want))
	}
	for i, id := range want {
		if list[i].Identifier != id {
			t.Errorf("ListAll()[%d] = %s, хотели %s", i, list[i].Identifier, id)
		}
	}
}

func testFindLatest(t *testing.T, newRepos Factory) {
	repo, _ := newRepos(t)
	ctx := context.Background()

	mustInsert(t, repo, NewRecord("000001", "report.pdf", "report.pdf", base))
	mustInsert(t, repo, NewRecord("000002", "report.pdf", "report(1).pdf", base.Add(time.Minute)))
	mustInsert(t, repo, NewRecord("000003", "other.pdf", "other.pdf", base.Add(time.Hour)))

	got, err := repo.FindLatestByOriginalName(ctx, "report.pdf")
	if err != nil {
		t.Fatalf("FindLatestByOriginalName() ошибка: %v", err)
	}
	if got.Identifier != "000002" {
		t.Errorf("хотели самую новую запись 000002, получили %s", got.Identifier)
	}

	_, err = repo.FindLatestByOriginalName(ctx, "missing.pdf")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("хотели ErrNotFound, получили %v", err)
	}
}

func testFindExpired(t *testing.T, newRepos Factory) {
	repo, _ := newRepos(t)
	ctx := context.Background()

	cutoff := base
	mustInsert(t, repo, NewRecord("000001", "a", "a", cutoff.Add(-time.Microsecond)))
	mustInsert(t, repo, NewRecord("000002", "b", "b", cutoff))
	mustInsert(t, repo, NewRecord("000003", "c", "c", cutoff.Add(time.Second)))
	mustInsert(t, repo, NewRecord("000004", "d", "d", cutoff.Add(-48*time.Hour)))

	expired, err := repo.FindExpired(ctx, cutoff)
	if err != nil {
		t.Fatalf("FindExpired() ошибка: %v", err)
	}
	got := make(map[string]bool)
	for _, r := range expired {
		got[r.Identifier] = true
	}
	if len(got) != 2 || !got["000001"] || !got["000004"] {
		t.Errorf("FindExpired() = %v, хотели 000001 и 000004 (граница не включается)", got)
	}
}

func testDelete(t *testing.T, newRepos Factory) {
	repo, _ := newRepos(t)
	ctx := context.Background()

	mustInsert(t, repo, NewRecord("0000aa", "a", "a", base))

	removed, err := repo.Delete(ctx, "0000aa")
	if err != nil || !removed {
		t.Fatalf("Delete() = %v, %v; хотели true, nil", removed, err)
	}
	removed, err = repo.Delete(ctx, "0000aa")
	if err != nil || removed {
		t.Errorf("повторный Delete() = %v, %v; хотели false, nil", removed, err)
	}
	_, err = repo.GetByIdentifier(ctx, "0000aa")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("после удаления хотели ErrNotFound, получили %v", err)
	}
}

func testListStoredNames(t *testing.T, newRepos Factory) {
	repo, _ := newRepos(t)
	ctx := context.Background()

	mustInsert(t, repo, NewRecord("000001", "a.txt", "a.txt", base))
	mustInsert(t, repo, NewRecord("000002", "a.txt", "a(1).txt", base))

	names, err := repo.ListStoredNames(ctx)
	if err != nil {
		t.Fatalf("ListStoredNames() ошибка: %v", err)
	}
	if len(names) != 2 || names["a.txt"] != "000001" || names["a(1).txt"] != "000002" {
		t.Errorf("ListStoredNames() = %v", names)
	}
}

func testSweepState(t *testing.T, newRepos Factory) {
	_, state := newRepos(t)
	ctx := context.Background()

	s, err := state.Get(ctx)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if s.LastSweepAt != nil {
		t.Errorf("LastSweepAt = %v, хотели nil для новой БД", s.LastSweepAt)
	}

	if err := state.MarkSwept(ctx, base); err != nil {
		t.Fatalf("MarkSwept() ошибка: %v", err)
	}
	s, err = state.Get(ctx)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if s.LastSweepAt == nil || !s.LastSweepAt.Equal(base) {
		t.Errorf("LastSweepAt = %v, хотели %v", s.LastSweepAt, base)
	}
}

func testSweepLease(t *testing.T, newRepos Factory) {
	_, state := newRepos(t)
	ctx := context.Background()
	ttl := time.Hour

	ok, err := state.AcquireLease(ctx, "proc-a", base, ttl)
	if err != nil || !ok {
		t.Fatalf("AcquireLease(proc-a) = %v, %v; хотели true", ok, err)
	}

	ok, err = state.AcquireLease(ctx, "proc-b", base.Add(time.Minute), ttl)
	if err != nil || ok {
		t.Errorf("AcquireLease(proc-b) при активной аренде = %v, %v; хотели false", ok, err)
	}

	// Владелец может продлить аренду.
	ok, err = state.AcquireLease(ctx, "proc-a", base.Add(time.Minute), ttl)
	if err != nil || !ok {
		t.Errorf("продление аренды = %v, %v; хотели true", ok, err)
	}

	// Истёкшую аренду может забрать другой процесс.
	ok, err = state.AcquireLease(ctx, "proc-b", base.Add(2*time.Hour), ttl)
	if err != nil || !ok {
		t.Errorf("захват истёкшей аренды = %v, %v; хотели true", ok, err)
	}

	// Освобождение чужой аренды ничего не меняет.
	if err := state.ReleaseLease(ctx, "proc-a"); err != nil {
		t.Fatalf("ReleaseLease(proc-a) ошибка: %v", err)
	}
	s, err := state.Get(ctx)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if s.LeaseHolder == nil || *s.LeaseHolder != "proc-b" {
		t.Errorf("LeaseHolder = %v, хотели proc-b", s.LeaseHolder)
	}

	if err := state.ReleaseLease(ctx, "proc-b"); err != nil {
		t.Fatalf("ReleaseLease(proc-b) ошибка: %v", err)
	}
	ok, err = state.AcquireLease(ctx, "proc-a", base.Add(2*time.Hour), ttl)
	if err != nil || !ok {
		t.Errorf("захват после освобождения = %v, %v; хотели true", ok, err)
	}
}
