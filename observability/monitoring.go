// Package observability aggregates runtime telemetry for the chat server:
// connection and traffic counters merged with Go memory stats and process
// metrics, reported periodically through the structured logger.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Monitor owns the live counters. All increments are atomic so hot paths
// never contend on a lock.
type Monitor struct {
	log      *slog.Logger
	interval time.Duration
	proc     *process.Process

	connections    int64
	messagesPosted uint64
	eventsDropped  uint64
	errorCount     uint64
}

func NewMonitor(log *slog.Logger, interval time.Duration) *Monitor {
	// Process handle failures only disable CPU/RSS reporting, never startup.
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("process metrics unavailable", "error", err)
		proc = nil
	}
	return &Monitor{log: log, interval: interval, proc: proc}
}

func (m *Monitor) IncrConnections()    { atomic.AddInt64(&m.connections, 1) }
func (m *Monitor) DecrConnections()    { atomic.AddInt64(&m.connections, -1) }
func (m *Monitor) IncrMessagesPosted() { atomic.AddUint64(&m.messagesPosted, 1) }
func (m *Monitor) IncrEventsDropped()  { atomic.AddUint64(&m.eventsDropped, 1) }
func (m *Monitor) IncrErrorCount()     { atomic.AddUint64(&m.errorCount, 1) }

// Connections returns the current number of live websocket connections.
func (m *Monitor) Connections() int64 {
	return atomic.LoadInt64(&m.connections)
}

// Listen reports stats on a ticker until the context is canceled.
func (m *Monitor) Listen(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Monitoring stopped")
			return
		case <-ticker.C:
			m.report()
		}
	}
}

func (m *Monitor) report() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	attrs := []any{
		"connections", atomic.LoadInt64(&m.connections),
		"messages_posted", atomic.LoadUint64(&m.messagesPosted),
		"events_dropped", atomic.LoadUint64(&m.eventsDropped),
		"errors", atomic.LoadUint64(&m.errorCount),
		"alloc_mem_mb", memStats.Alloc / 1024 / 1024,
		"num_gc", memStats.NumGC,
		"goroutines", runtime.NumGoroutine(),
	}
	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			attrs = append(attrs, "cpu_percent", cpu)
		}
		if memInfo, err := m.proc.MemoryInfo(); err == nil {
			attrs = append(attrs, "rss_mb", memInfo.RSS/1024/1024)
		}
	}
	m.log.Info("Server stats", attrs...)
}
