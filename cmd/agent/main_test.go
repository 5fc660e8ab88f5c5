package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Chichichkin/EdgeCollector/internal/config"
)

type ingestServer struct {
	mu      sync.Mutex
	batches int
	records []string
	sources map[string]struct{}
}

func (s *ingestServer) handler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Logs []struct {
			Message string `json:"message"`
		} `json:"logs"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.batches++
	for _, l := range body.Logs {
		s.records = append(s.records, l.Message)
	}
	s.sources[body.Source] = struct{}{}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "accepted": len(body.Logs)})
}

func (s *ingestServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.records...)
}

func newIngestServer(t *testing.T) (*ingestServer, *httptest.Server) {
	t.Helper()
	ingest := &ingestServer{sources: map[string]struct{}{}}
	server := httptest.NewServer(http.HandlerFunc(ingest.handler))
	t.Cleanup(server.Close)
	return ingest, server
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		APIURL:               apiURL,
		IngestPath:           "/api/v1/ingest/logs",
		BatchSize:            10,
		FlushIntervalSecs:    60,
		RequestTimeoutSecs:   5,
		MaxRetries:           1,
		ChannelCapacity:      100,
		MaxBufferCapacity:    1000,
		DeliveryWorkers:      2,
		Source:               "agent-test",
		GenerationIntervalMs: 1,
		SensorsPerType:       3,
		IncludeMetadata:      true,
		TailScanIntervalSecs: 1,
		TailMaxFiles:         4,
		NodeName:             "node-1",
		LogLevel:             "info",
		ShutdownTimeoutSecs:  5,
	}
}

func runAgent(t *testing.T, ctx context.Context, cfg *config.Config) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, zaptest.NewLogger(t).Sugar())
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error, timeout time.Duration) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(timeout):
		t.Fatal("agent did not stop")
	}
}

func TestRun_GeneratorDeliversBatches(t *testing.T) {
	ingest, server := newIngestServer(t)
	cfg := testConfig(server.URL)
	cfg.GeneratorEnabled = true

	ctx, cancel := context.WithCancel(context.Background())
	done := runAgent(t, ctx, cfg)

	assert.Eventually(t, func() bool {
		return len(ingest.received()) >= 20
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	waitDone(t, done, 10*time.Second)

	ingest.mu.Lock()
	defer ingest.mu.Unlock()
	assert.Contains(t, ingest.sources, "agent-test")
	for _, msg := range ingest.records {
		assert.NotEmpty(t, msg)
	}
}

func TestRun_ShutdownFlushesRemainder(t *testing.T) {
	ingest, server := newIngestServer(t)

	root := t.TempDir()
	lines := make([]string, 25)
	for i := range lines {
		lines[i] = "line " + string(rune('a'+i))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.log"), []byte(strings.Join(lines, "\n")+"\n"), 0644))

	cfg := testConfig(server.URL)
	cfg.BatchSize = 100
	cfg.TailPath = root
	cfg.TailFromStart = true

	ctx, cancel := context.WithCancel(context.Background())
	done := runAgent(t, ctx, cfg)

	// below the size threshold and well inside the flush interval
	time.Sleep(time.Second)
	assert.Empty(t, ingest.received())

	cancel()
	waitDone(t, done, 10*time.Second)

	assert.Equal(t, lines, ingest.received())
}

func TestRun_ShutdownTimeoutAbandonsStalledDelivery(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	cfg := testConfig(server.URL)
	cfg.GeneratorEnabled = true
	cfg.RequestTimeoutSecs = 30
	cfg.ShutdownTimeoutSecs = 1

	ctx, cancel := context.WithCancel(context.Background())
	done := runAgent(t, ctx, cfg)

	time.Sleep(200 * time.Millisecond)
	cancel()

	started := time.Now()
	waitDone(t, done, 10*time.Second)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestRun_InvalidClientConfig(t *testing.T) {
	cfg := testConfig("://bad")
	cfg.GeneratorEnabled = true

	err := run(context.Background(), cfg, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}
