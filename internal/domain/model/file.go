// Пакет model — доменные модели filedrop.
package model

import "time"

// FileRecord — запись каталога о загруженном файле.
// Хранится в таблице files.
type FileRecord struct {
	// Identifier — 6 шестнадцатеричных символов в нижнем регистре,
	// единственная публичная ссылка на файл
	Identifier string
	// OriginalName — очищенное имя файла, указанное клиентом (может повторяться)
	OriginalName string
	// StoredName — имя файла в директории хранения (уникально)
	StoredName string
	// ContentType — MIME-тип, определённый по содержимому
	ContentType string
	// Size — размер файла в байтах
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
	// NotifyAddress — адрес для уведомления о загрузке (опционально)
	NotifyAddress *string
	// CreatedAt — момент создания записи (UTC)
	CreatedAt time.Time
}

// ExpiresAt возвращает момент, после которого запись подлежит очистке.
func (r *FileRecord) ExpiresAt(retention time.Duration) time.Time {
	return r.CreatedAt.Add(retention)
}
