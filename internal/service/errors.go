// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — записи с таким идентификатором (или именем) нет.
	ErrNotFound = errors.New("файл не найден")
	// ErrInconsistent — запись есть, а файла в хранилище нет.
	ErrInconsistent = errors.New("запись каталога ссылается на отсутствующий файл")
	// ErrUploadFailed — загрузка не удалась; частичные результаты убраны.
	ErrUploadFailed = errors.New("не удалось загрузить файл")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrSweepInProgress — очистка уже выполняется (в этом или другом процессе).
	ErrSweepInProgress = errors.New("очистка уже выполняется")
	// ErrReconcileInProgress — сверка уже выполняется.
	ErrReconcileInProgress = errors.New("сверка уже выполняется")
)
