package crawler

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// PressureLevel indicates memory pressure severity.
type PressureLevel int

const (
	// PressureNormal indicates heap usage below 75% of the limit.
	PressureNormal PressureLevel = iota
	// PressureWarning indicates heap usage between 75% and 90% of the limit.
	PressureWarning
	// PressureCritical indicates heap usage above 90% of the limit.
	PressureCritical
)

func (l PressureLevel) String() string {
	switch l {
	case PressureWarning:
		return "warning"
	case PressureCritical:
		return "critical"
	default:
		return "normal"
	}
}

// MemoryWatcher sets a soft memory limit for the process and reports changes
// in heap pressure relative to it. The page table grows with every visited
// page, so long crawls are the main consumer.
type MemoryWatcher struct {
	mu        sync.Mutex
	limit     int64
	previous  int64
	lastLevel PressureLevel
	onChange  func(level PressureLevel, usedPercent float64)
}

// NewMemoryWatcher installs a soft memory limit of limitMB megabytes.
// Restore puts back the limit that was active before.
func NewMemoryWatcher(limitMB int64) *MemoryWatcher {
	limit := limitMB * 1024 * 1024
	return &MemoryWatcher{
		limit:    limit,
		previous: debug.SetMemoryLimit(limit),
	}
}

// OnChange registers fn to be called whenever Check observes a new level.
func (m *MemoryWatcher) OnChange(fn func(level PressureLevel, usedPercent float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Check samples heap usage and returns it as a percentage of the limit
// together with the resulting pressure level.
func (m *MemoryWatcher) Check() (float64, PressureLevel) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.Lock()
	limit := m.limit
	m.mu.Unlock()
	if limit <= 0 {
		return 0, PressureNormal
	}

	usedPercent := float64(stats.HeapAlloc) / float64(limit) * 100

	var level PressureLevel
	switch {
	case usedPercent >= 90:
		level = PressureCritical
	case usedPercent >= 75:
		level = PressureWarning
	default:
		level = PressureNormal
	}

	m.mu.Lock()
	changed := level != m.lastLevel
	m.lastLevel = level
	fn := m.onChange
	m.mu.Unlock()

	if changed && fn != nil {
		fn(level, usedPercent)
	}
	return usedPercent, level
}

// Restore reinstates the memory limit that was active before the watcher.
func (m *MemoryWatcher) Restore() {
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.SetMemoryLimit(m.previous)
}
