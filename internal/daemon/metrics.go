package daemon

import (
	"sync"
)

type LogDaemonMetrics struct {
	FilesDiscovered int
	FilesTailing    int
	FilesSkipped    int
	FilesFailed     int
	FilesIdled      int
	LinesRead       int
	LinesSkipped    int
	MaxFiles        int
	mu              sync.RWMutex
}

func (m *LogDaemonMetrics) IncFilesDiscovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesDiscovered++
}

func (m *LogDaemonMetrics) IncFilesTailing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesTailing++
}

func (m *LogDaemonMetrics) DecFilesTailing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesTailing--
}

func (m *LogDaemonMetrics) IncFilesSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesSkipped++
}

func (m *LogDaemonMetrics) IncFilesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesFailed++
}

func (m *LogDaemonMetrics) IncFilesIdled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesIdled++
}

func (m *LogDaemonMetrics) IncLinesRead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinesRead++
}

func (m *LogDaemonMetrics) IncLinesSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinesSkipped++
}

func (m *LogDaemonMetrics) GetMetricsStamp() LogDaemonMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return LogDaemonMetrics{
		FilesDiscovered: m.FilesDiscovered,
		FilesTailing:    m.FilesTailing,
		FilesSkipped:    m.FilesSkipped,
		FilesFailed:     m.FilesFailed,
		FilesIdled:      m.FilesIdled,
		LinesRead:       m.LinesRead,
		LinesSkipped:    m.LinesSkipped,
		MaxFiles:        m.MaxFiles,
	}
}

// GetSlotUsage is the share of tail slots in use.
func (m *LogDaemonMetrics) GetSlotUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.MaxFiles == 0 {
		return 0
	}
	return float64(m.FilesTailing) / float64(m.MaxFiles)
}
