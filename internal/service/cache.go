// cache.go — LRU-кэш записей каталога с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filedrop/internal/domain/model"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей.",
	})
)

// CacheService — LRU-кэш записей по идентификатору.
// Записи неизменяемы, поэтому инвалидация нужна только при удалении.
// Нулевой указатель — отключённый кэш: Get всегда промах.
type CacheService struct {
	cache *expirable.LRU[string, *model.FileRecord]
}

// NewCacheService создаёт кэш. maxSize <= 0 отключает кэширование (возвращает nil).
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	if maxSize <= 0 {
		return nil
	}
	return &CacheService{cache: expirable.NewLRU[string, *model.FileRecord](maxSize, nil, ttl)}
}

// Get возвращает запись из кэша.
func (c *CacheService) Get(identifier string) (*model.FileRecord, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.cache.Get(identifier)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет запись в кэш.
func (c *CacheService) Set(identifier string, record *model.FileRecord) {
	if c == nil {
		return
	}
	c.cache.Add(identifier, record)
}

// Delete удаляет запись из кэша.
func (c *CacheService) Delete(identifier string) {
	if c == nil {
		return
	}
	c.cache.Remove(identifier)
}

// Len возвращает количество записей в кэше.
func (c *CacheService) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
