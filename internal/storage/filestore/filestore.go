// Пакет filestore — хранение загруженных файлов в одной директории.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// уникальные имена файлов, чтение и идемпотентное удаление.
//
// Все операции идут через afero.BasePathFs, поэтому путь к файлу
// не может выйти за пределы директории данных.
package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// DefaultMaxAttempts — лимит вариантов имени name(N).ext по умолчанию.
const DefaultMaxAttempts = 1000

// Размер заголовка, по которому определяется MIME-тип.
const sniffLen = 3072

var (
	// ErrNotFound — файл отсутствует в директории хранения.
	ErrNotFound = errors.New("файл не найден")
	// ErrStorageExhausted — исчерпаны варианты уникального имени.
	ErrStorageExhausted = errors.New("не удалось подобрать уникальное имя файла")
)

// FileStore — управление физическими файлами в директории данных.
type FileStore struct {
	fs          afero.Fs
	dataDir     string
	maxAttempts int
}

// PutResult — результат сохранения файла.
type PutResult struct {
	// StoredName — имя файла в директории хранения
	StoredName string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
	// ContentType — MIME-тип, определённый по первым байтам
	ContentType string
}

// BlobInfo — сведения о файле при листинге.
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// New создаёт FileStore поверх директории на диске.
// Создаёт директорию, если она не существует.
func New(dataDir string, maxAttempts int) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь директории данных %s: %w", dataDir, err)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), abs), abs, maxAttempts), nil
}

// NewWithFs создаёт FileStore поверх произвольной afero.Fs
// (в тестах — afero.NewMemMapFs). Корень fs считается директорией данных.
func NewWithFs(fs afero.Fs, dataDir string, maxAttempts int) *FileStore {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &FileStore{fs: fs, dataDir: dataDir, maxAttempts: maxAttempts}
}

// Put сохраняет содержимое reader под уникальным именем, производным
// от originalName.
//
// Имя резервируется созданием пустого файла с O_EXCL: атомарное создание
// в файловой системе — единственный арбитр уникальности, в том числе
// между процессами. Данные пишутся во временный файл, затем fsync
// и атомарный rename поверх зарезервированного имени.
// При любой ошибке оба файла удаляются.
func (s *FileStore) Put(originalName string, reader io.Reader) (*PutResult, error) {
	storedName, err := s.reserve(SanitizeName(originalName))
	if err != nil {
		return nil, err
	}

	res, err := s.write(storedName, reader)
	if err != nil {
		_ = s.fs.Remove(storedName)
		return nil, err
	}
	return res, nil
}

// reserve подбирает свободное имя: name.ext, name(1).ext, name(2).ext, ...
func (s *FileStore) reserve(name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := range s.maxAttempts {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s(%d)%s", base, i, ext)
		}

		f, err := s.fs.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err == nil {
			if closeErr := f.Close(); closeErr != nil {
				_ = s.fs.Remove(candidate)
				return "", fmt.Errorf("ошибка резервирования имени %s: %w", candidate, closeErr)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("ошибка резервирования имени %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("%w: %s, %d попыток", ErrStorageExhausted, name, s.maxAttempts)
}

// write — паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
func (s *FileStore) write(storedName string, reader io.Reader) (*PutResult, error) {
	// Временные файлы начинаются с точки и не попадают в List.
	tmpName := "." + storedName + "." + uuid.NewString()[:8] + ".tmp"

	f, err := s.fs.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Заголовок для определения MIME-типа читаем до записи.
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		_ = s.fs.Remove(tmpName)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()

	hasher := sha256.New()
	tee := io.TeeReader(io.MultiReader(bytes.NewReader(head), reader), hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		_ = s.fs.Remove(tmpName)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.fs.Remove(tmpName)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.fs.Rename(tmpName, storedName); err != nil {
		_ = s.fs.Remove(tmpName)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &PutResult{
		StoredName:  storedName,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		ContentType: contentType,
	}, nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
// Возвращает ErrNotFound, если файла нет.
func (s *FileStore) Open(storedName string) (afero.File, error) {
	if !validStoredName(storedName) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, storedName)
	}
	f, err := s.fs.Open(storedName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storedName)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storedName, err)
	}
	return f, nil
}

// Exists проверяет существование файла.
func (s *FileStore) Exists(storedName string) (bool, error) {
	if !validStoredName(storedName) {
		return false, nil
	}
	ok, err := afero.Exists(s.fs, storedName)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки файла %s: %w", storedName, err)
	}
	return ok, nil
}

// Delete удаляет файл. Возвращает nil, если файла уже нет.
func (s *FileStore) Delete(storedName string) error {
	if !validStoredName(storedName) {
		return nil
	}
	err := s.fs.Remove(storedName)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storedName, err)
	}
	return nil
}

// List возвращает файлы данных, отсортированные по имени.
// Временные и скрытые файлы (с точкой в начале) пропускаются.
func (s *FileStore) List() ([]BlobInfo, error) {
	entries, err := afero.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории данных: %w", err)
	}

	blobs := make([]BlobInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		blobs = append(blobs, BlobInfo{Name: e.Name(), Size: e.Size(), ModTime: e.ModTime()})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })
	return blobs, nil
}

// CheckWritable проверяет, что в директорию данных можно писать
// (для readiness probe).
func (s *FileStore) CheckWritable() error {
	name := ".probe-" + uuid.NewString()
	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("директория данных недоступна для записи: %w", err)
	}
	f.Close()
	return s.fs.Remove(name)
}

// DataDir возвращает путь к директории данных.
func (s *FileStore) DataDir() string {
	return s.dataDir
}

// validStoredName отсекает имена, которые не могли быть выданы Put.
func validStoredName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, " ") {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
