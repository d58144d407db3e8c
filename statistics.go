package tcpexchange

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics представляет статистику обменов запрос/ответ.
// Счётчики атомарные - соединения обрабатываются в независимых горутинах
// и не делят между собой ничего, кроме этих счётчиков
type Statistics struct {
	// Счётчики обменов
	exchangesStarted   uint64
	exchangesCompleted uint64
	exchangesFailed    uint64

	// Счётчики байтов полезной нагрузки (без заголовков кадров)
	bytesSent     uint64
	bytesReceived uint64

	// Ошибки
	timeouts uint64
	rejected uint64 // сообщения сверх лимита
	resets   uint64 // соединения, сброшенные пиром

	// Длительность обмена (в микросекундах)
	minLatency   uint64
	maxLatency   uint64
	totalLatency uint64
	latencyCount uint64

	mu            sync.RWMutex
	startTime     time.Time
	lastResetTime time.Time
}

// NewStatistics создаёт новый экземпляр статистики
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		startTime:     now,
		lastResetTime: now,
		minLatency:    ^uint64(0), // максимальное значение uint64
	}
}

// RecordExchangeStarted записывает начало обмена
func (s *Statistics) RecordExchangeStarted() {
	atomic.AddUint64(&s.exchangesStarted, 1)
}

// RecordExchangeCompleted записывает успешно завершённый обмен
// и его длительность
func (s *Statistics) RecordExchangeCompleted(elapsed time.Duration) {
	atomic.AddUint64(&s.exchangesCompleted, 1)
	s.recordLatency(uint64(elapsed.Microseconds()))
}

// RecordExchangeFailed записывает прерванный обмен
func (s *Statistics) RecordExchangeFailed() {
	atomic.AddUint64(&s.exchangesFailed, 1)
}

// RecordBytesSent записывает отправленные байты
func (s *Statistics) RecordBytesSent(n uint64) {
	atomic.AddUint64(&s.bytesSent, n)
}

// RecordBytesReceived записывает полученные байты
func (s *Statistics) RecordBytesReceived(n uint64) {
	atomic.AddUint64(&s.bytesReceived, n)
}

// RecordTimeout записывает таймаут
func (s *Statistics) RecordTimeout() {
	atomic.AddUint64(&s.timeouts, 1)
}

// RecordRejected записывает сообщение, отклонённое из-за превышения лимита
func (s *Statistics) RecordRejected() {
	atomic.AddUint64(&s.rejected, 1)
}

// RecordReset записывает соединение, сброшенное пиром
func (s *Statistics) RecordReset() {
	atomic.AddUint64(&s.resets, 1)
}

// recordLatency записывает длительность обмена в микросекундах
func (s *Statistics) recordLatency(latencyUs uint64) {
	// Обновляем минимум
	for {
		old := atomic.LoadUint64(&s.minLatency)
		if latencyUs >= old {
			break
		}
		if atomic.CompareAndSwapUint64(&s.minLatency, old, latencyUs) {
			break
		}
	}

	// Обновляем максимум
	for {
		old := atomic.LoadUint64(&s.maxLatency)
		if latencyUs <= old {
			break
		}
		if atomic.CompareAndSwapUint64(&s.maxLatency, old, latencyUs) {
			break
		}
	}

	atomic.AddUint64(&s.totalLatency, latencyUs)
	atomic.AddUint64(&s.latencyCount, 1)
}

// GetExchangesStarted возвращает количество начатых обменов
func (s *Statistics) GetExchangesStarted() uint64 {
	return atomic.LoadUint64(&s.exchangesStarted)
}

// GetExchangesCompleted возвращает количество завершённых обменов
func (s *Statistics) GetExchangesCompleted() uint64 {
	return atomic.LoadUint64(&s.exchangesCompleted)
}

// GetExchangesFailed возвращает количество прерванных обменов
func (s *Statistics) GetExchangesFailed() uint64 {
	return atomic.LoadUint64(&s.exchangesFailed)
}

// GetBytesSent возвращает количество отправленных байт
func (s *Statistics) GetBytesSent() uint64 {
	return atomic.LoadUint64(&s.bytesSent)
}

// GetBytesReceived возвращает количество полученных байт
func (s *Statistics) GetBytesReceived() uint64 {
	return atomic.LoadUint64(&s.bytesReceived)
}

// GetTimeouts возвращает количество таймаутов
func (s *Statistics) GetTimeouts() uint64 {
	return atomic.LoadUint64(&s.timeouts)
}

// GetRejected возвращает количество отклонённых сообщений
func (s *Statistics) GetRejected() uint64 {
	return atomic.LoadUint64(&s.rejected)
}

// GetResets возвращает количество сбросов
func (s *Statistics) GetResets() uint64 {
	return atomic.LoadUint64(&s.resets)
}

// GetMinLatency возвращает минимальную длительность обмена в микросекундах
func (s *Statistics) GetMinLatency() uint64 {
	lat := atomic.LoadUint64(&s.minLatency)
	if lat == ^uint64(0) {
		return 0
	}
	return lat
}

// GetMaxLatency возвращает максимальную длительность обмена в микросекундах
func (s *Statistics) GetMaxLatency() uint64 {
	return atomic.LoadUint64(&s.maxLatency)
}

// GetAvgLatency возвращает среднюю длительность обмена в микросекундах
func (s *Statistics) GetAvgLatency() uint64 {
	count := atomic.LoadUint64(&s.latencyCount)
	if count == 0 {
		return 0
	}
	return atomic.LoadUint64(&s.totalLatency) / count
}

// GetFailureRate возвращает процент прерванных обменов
func (s *Statistics) GetFailureRate() float64 {
	started := atomic.LoadUint64(&s.exchangesStarted)
	failed := atomic.LoadUint64(&s.exchangesFailed)

	if started == 0 {
		return 0.0
	}

	return float64(failed) / float64(started) * 100.0
}

// GetUptime возвращает время работы
func (s *Statistics) GetUptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// GetTimeSinceReset возвращает время с последнего сброса
func (s *Statistics) GetTimeSinceReset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastResetTime)
}

// Reset сбрасывает всю статистику
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.exchangesStarted, 0)
	atomic.StoreUint64(&s.exchangesCompleted, 0)
	atomic.StoreUint64(&s.exchangesFailed, 0)
	atomic.StoreUint64(&s.bytesSent, 0)
	atomic.StoreUint64(&s.bytesReceived, 0)
	atomic.StoreUint64(&s.timeouts, 0)
	atomic.StoreUint64(&s.rejected, 0)
	atomic.StoreUint64(&s.resets, 0)
	atomic.StoreUint64(&s.minLatency, ^uint64(0))
	atomic.StoreUint64(&s.maxLatency, 0)
	atomic.StoreUint64(&s.totalLatency, 0)
	atomic.StoreUint64(&s.latencyCount, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResetTime = time.Now()
}

// Snapshot представляет снимок статистики в определённый момент времени
type Snapshot struct {
	Timestamp time.Time

	// Обмены
	ExchangesStarted   uint64
	ExchangesCompleted uint64
	ExchangesFailed    uint64

	// Байты
	BytesSent     uint64
	BytesReceived uint64

	// Ошибки
	Timeouts uint64
	Rejected uint64
	Resets   uint64

	// Длительности (микросекунды)
	MinLatencyUs uint64
	MaxLatencyUs uint64
	AvgLatencyUs uint64

	// Производные метрики
	FailureRate float64
	Uptime      time.Duration
}

// GetSnapshot возвращает снимок текущей статистики
func (s *Statistics) GetSnapshot() Snapshot {
	return Snapshot{
		Timestamp:          time.Now(),
		ExchangesStarted:   s.GetExchangesStarted(),
		ExchangesCompleted: s.GetExchangesCompleted(),
		ExchangesFailed:    s.GetExchangesFailed(),
		BytesSent:          s.GetBytesSent(),
		BytesReceived:      s.GetBytesReceived(),
		Timeouts:           s.GetTimeouts(),
		Rejected:           s.GetRejected(),
		Resets:             s.GetResets(),
		MinLatencyUs:       s.GetMinLatency(),
		MaxLatencyUs:       s.GetMaxLatency(),
		AvgLatencyUs:       s.GetAvgLatency(),
		FailureRate:        s.GetFailureRate(),
		Uptime:             s.GetUptime(),
	}
}

// FormatBytes форматирует байты в читаемый вид
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// String возвращает строковое представление статистики
func (snap Snapshot) String() string {
	return fmt.Sprintf(`Exchange Statistics:
  Uptime: %v

  Exchanges:
    Started:   %d
    Completed: %d
    Failed:    %d (%.2f%%)

  Bytes:
    Sent:     %s
    Received: %s

  Errors:
    Timeouts: %d
    Rejected: %d
    Resets:   %d

  Latency:
    Min: %d μs
    Avg: %d μs
    Max: %d μs`,
		snap.Uptime,
		snap.ExchangesStarted, snap.ExchangesCompleted,
		snap.ExchangesFailed, snap.FailureRate,
		FormatBytes(snap.BytesSent), FormatBytes(snap.BytesReceived),
		snap.Timeouts, snap.Rejected, snap.Resets,
		snap.MinLatencyUs, snap.AvgLatencyUs, snap.MaxLatencyUs,
	)
}
