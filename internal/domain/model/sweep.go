package model

import "time"

// SweepState — состояние очистки (одна строка в БД, id = 1).
type SweepState struct {
	// LastSweepAt — время завершения последней очистки
	LastSweepAt *time.Time
	// LeaseHolder — идентификатор процесса, удерживающего аренду
	LeaseHolder *string
	// LeaseUntil — момент истечения аренды
	LeaseUntil *time.Time
}

// SweepResult — результат одного прохода очистки.
type SweepResult struct {
	// Cutoff — записи, созданные раньше этого момента, считаются устаревшими
	Cutoff time.Time
	// Candidates — количество устаревших записей в снимке
	Candidates int
	// RowsRemoved — удалено записей каталога
	RowsRemoved int
	// BlobsRemoved — удалено файлов
	BlobsRemoved int
	// RowFailures — записи, которые не удалось удалить (файлы не трогались)
	RowFailures int
	// AlreadyRemoved — записи из снимка, удалённые параллельно (файлы не трогались)
	AlreadyRemoved int
	// BlobFailures — имена файлов, которые не удалось удалить после удаления записи
	BlobFailures []string
	// StartedAt — время начала
	StartedAt time.Time
	// Duration — длительность
	Duration time.Duration
}

// ReconcileResult — результат сверки директории хранения с каталогом.
type ReconcileResult struct {
	// BlobsChecked — файлов в директории
	BlobsChecked int
	// RecordsChecked — записей в каталоге
	RecordsChecked int
	// OrphanBlobs — файлы без записи в каталоге
	OrphanBlobs []string
	// MissingBlobs — записи, файл которых отсутствует
	MissingBlobs []string
	// OrphansRemoved — удалено файлов-сирот
	OrphansRemoved int
	// StartedAt — время начала
	StartedAt time.Time
	// Duration — длительность
	Duration time.Duration
}
