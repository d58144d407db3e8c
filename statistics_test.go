package tcpexchange

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewStatistics(t *testing.T) {
	s := NewStatistics()
	if s == nil {
		t.Fatal("NewStatistics() returned nil")
	}
	if s.GetExchangesStarted() != 0 {
		t.Errorf("GetExchangesStarted() = %d, want 0", s.GetExchangesStarted())
	}
	if s.GetMinLatency() != 0 {
		t.Errorf("GetMinLatency() on empty stats = %d, want 0", s.GetMinLatency())
	}
	if s.GetAvgLatency() != 0 {
		t.Errorf("GetAvgLatency() on empty stats = %d, want 0", s.GetAvgLatency())
	}
}

func TestStatistics_ExchangeCounters(t *testing.T) {
	s := NewStatistics()

	s.RecordExchangeStarted()
	s.RecordExchangeStarted()
	s.RecordExchangeStarted()
	s.RecordExchangeCompleted(5 * time.Millisecond)
	s.RecordExchangeCompleted(15 * time.Millisecond)
	s.RecordExchangeFailed()

	if got := s.GetExchangesStarted(); got != 3 {
		t.Errorf("GetExchangesStarted() = %d, want 3", got)
	}
	if got := s.GetExchangesCompleted(); got != 2 {
		t.Errorf("GetExchangesCompleted() = %d, want 2", got)
	}
	if got := s.GetExchangesFailed(); got != 1 {
		t.Errorf("GetExchangesFailed() = %d, want 1", got)
	}
}

func TestStatistics_ByteCounters(t *testing.T) {
	s := NewStatistics()

	s.RecordBytesSent(100)
	s.RecordBytesSent(50)
	s.RecordBytesReceived(25)

	if got := s.GetBytesSent(); got != 150 {
		t.Errorf("GetBytesSent() = %d, want 150", got)
	}
	if got := s.GetBytesReceived(); got != 25 {
		t.Errorf("GetBytesReceived() = %d, want 25", got)
	}
}

func TestStatistics_ErrorCounters(t *testing.T) {
	s := NewStatistics()

	s.RecordTimeout()
	s.RecordTimeout()
	s.RecordRejected()
	s.RecordReset()

	if got := s.GetTimeouts(); got != 2 {
		t.Errorf("GetTimeouts() = %d, want 2", got)
	}
	if got := s.GetRejected(); got != 1 {
		t.Errorf("GetRejected() = %d, want 1", got)
	}
	if got := s.GetResets(); got != 1 {
		t.Errorf("GetResets() = %d, want 1", got)
	}
}

func TestStatistics_Latency(t *testing.T) {
	s := NewStatistics()

	s.RecordExchangeCompleted(10 * time.Millisecond)
	s.RecordExchangeCompleted(30 * time.Millisecond)
	s.RecordExchangeCompleted(20 * time.Millisecond)

	if got := s.GetMinLatency(); got != 10_000 {
		t.Errorf("GetMinLatency() = %d, want 10000", got)
	}
	if got := s.GetMaxLatency(); got != 30_000 {
		t.Errorf("GetMaxLatency() = %d, want 30000", got)
	}
	if got := s.GetAvgLatency(); got != 20_000 {
		t.Errorf("GetAvgLatency() = %d, want 20000", got)
	}
}

func TestStatistics_FailureRate(t *testing.T) {
	s := NewStatistics()

	if got := s.GetFailureRate(); got != 0.0 {
		t.Errorf("GetFailureRate() on empty stats = %f, want 0", got)
	}

	s.RecordExchangeStarted()
	s.RecordExchangeStarted()
	s.RecordExchangeStarted()
	s.RecordExchangeStarted()
	s.RecordExchangeFailed()

	if got := s.GetFailureRate(); got != 25.0 {
		t.Errorf("GetFailureRate() = %f, want 25.0", got)
	}
}

func TestStatistics_ConcurrentRecording(t *testing.T) {
	// Счётчики пишутся из горутин-обработчиков без общего лока
	s := NewStatistics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordExchangeStarted()
			s.RecordBytesSent(10)
			s.RecordExchangeCompleted(time.Millisecond)
		}()
	}
	wg.Wait()

	if got := s.GetExchangesStarted(); got != 50 {
		t.Errorf("GetExchangesStarted() = %d, want 50", got)
	}
	if got := s.GetBytesSent(); got != 500 {
		t.Errorf("GetBytesSent() = %d, want 500", got)
	}
	if got := s.GetExchangesCompleted(); got != 50 {
		t.Errorf("GetExchangesCompleted() = %d, want 50", got)
	}
}

func TestStatistics_Reset(t *testing.T) {
	s := NewStatistics()

	s.RecordExchangeStarted()
	s.RecordExchangeCompleted(time.Millisecond)
	s.RecordBytesSent(100)
	s.RecordTimeout()

	s.Reset()

	if s.GetExchangesStarted() != 0 || s.GetExchangesCompleted() != 0 {
		t.Error("exchange counters not reset")
	}
	if s.GetBytesSent() != 0 || s.GetTimeouts() != 0 {
		t.Error("byte/error counters not reset")
	}
	if s.GetMinLatency() != 0 {
		t.Errorf("GetMinLatency() after Reset = %d, want 0", s.GetMinLatency())
	}
}

func TestStatistics_Snapshot(t *testing.T) {
	s := NewStatistics()

	s.RecordExchangeStarted()
	s.RecordExchangeCompleted(10 * time.Millisecond)
	s.RecordBytesSent(42)
	s.RecordBytesReceived(24)

	snap := s.GetSnapshot()

	if snap.ExchangesStarted != 1 {
		t.Errorf("Snapshot.ExchangesStarted = %d, want 1", snap.ExchangesStarted)
	}
	if snap.ExchangesCompleted != 1 {
		t.Errorf("Snapshot.ExchangesCompleted = %d, want 1", snap.ExchangesCompleted)
	}
	if snap.BytesSent != 42 || snap.BytesReceived != 24 {
		t.Errorf("Snapshot bytes = %d/%d, want 42/24", snap.BytesSent, snap.BytesReceived)
	}
	if snap.Uptime <= 0 {
		t.Errorf("Snapshot.Uptime = %v, want > 0", snap.Uptime)
	}
}

func TestSnapshot_String(t *testing.T) {
	s := NewStatistics()
	s.RecordExchangeStarted()
	s.RecordExchangeCompleted(time.Millisecond)

	out := s.GetSnapshot().String()
	for _, want := range []string{"Exchanges:", "Started:   1", "Completed: 1", "Latency:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Snapshot.String() missing %q:\n%s", want, out)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KiB"},
		{1536, "1.50 KiB"},
		{1048576, "1.00 MiB"},
		{1073741824, "1.00 GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatBytes(tt.bytes); got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}
