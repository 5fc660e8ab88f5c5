package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Chichichkin/EdgeCollector/internal/logging"
)

type MockDeliverer struct {
	Delivered  []logging.Batch
	mu         sync.Mutex
	ShouldFail bool
	Delay      time.Duration
	// Block, when set, holds every Deliver call until it is closed or the
	// context ends.
	Block chan struct{}
	Calls int
}

func (m *MockDeliverer) Deliver(ctx context.Context, batch logging.Batch) error {
	m.mu.Lock()
	m.Calls++
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return fmt.Errorf("mock deliver failed")
	}

	m.Delivered = append(m.Delivered, batch)
	return nil
}

func (m *MockDeliverer) GetDelivered() []logging.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logging.Batch(nil), m.Delivered...)
}

func (m *MockDeliverer) DeliveredRecords() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, b := range m.Delivered {
		total += b.Len()
	}
	return total
}

func (m *MockDeliverer) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MockIntake collects records submitted by producers.
type MockIntake struct {
	Records []logging.LogRecord
	mu      sync.Mutex
	// ClosedAfter makes Submit fail with Err once this many records arrived.
	ClosedAfter int
	Err         error
}

func (m *MockIntake) Submit(ctx context.Context, record logging.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ClosedAfter > 0 && len(m.Records) >= m.ClosedAfter {
		return m.Err
	}
	m.Records = append(m.Records, record)
	return nil
}

func (m *MockIntake) GetRecords() []logging.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logging.LogRecord(nil), m.Records...)
}

func Record(message string) logging.LogRecord {
	return logging.NewRecord("test-source", logging.LevelInfo, message)
}

func Records(n int) []logging.LogRecord {
	records := make([]logging.LogRecord, n)
	for i := range records {
		records[i] = Record(fmt.Sprintf("record-%d", i))
	}
	return records
}

func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"default_pod-1_uid123/container-1/app.log":           "log content 1\nline 2\n",
		"default_pod-1_uid123/container-2/app.log":           "log content 2\nERROR connection refused\n",
		"kube-system_pod-2_uid456/container/app.log":         "log content 3\ninfo message\n",
		"edge_gateway-0_uid789/modbus/modbus.log":            "WARN register timeout\n",
		"monitoring_pod-4_uid101/collector/collector.log":    "collector starting\n",
		"monitoring_pod-4_uid101/collector/collector.log.gz": "ignored\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
