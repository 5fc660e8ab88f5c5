package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Chichichkin/EdgeCollector/internal/daemon"
	"github.com/Chichichkin/EdgeCollector/internal/logging/batch"
	"github.com/Chichichkin/EdgeCollector/internal/logging/ingest"
)

func testSources() Sources {
	return Sources{
		Buffer: func() batch.Stats {
			return batch.Stats{Received: 25, Flushed: 20, Dropped: 2, SizeFlushes: 3, TimeFlushes: 1, Pending: 3}
		},
		Client: func() ingest.Stats {
			return ingest.Stats{BatchesSent: 4, RecordsSent: 19, BatchesFailed: 1, Retries: 3}
		},
		Tail: func() daemon.LogDaemonMetrics {
			return daemon.LogDaemonMetrics{FilesDiscovered: 5, FilesTailing: 2, MaxFiles: 2, FilesSkipped: 3, LinesRead: 8}
		},
		Generated: func() uint64 { return 42 },
	}
}

func TestRegister_BufferMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	Register(registry, testSources())

	expected := `
# HELP edge_collector_buffer_received_total Records accepted from the intake.
# TYPE edge_collector_buffer_received_total counter
edge_collector_buffer_received_total 25
# HELP edge_collector_buffer_dropped_total Records evicted by the overflow policy.
# TYPE edge_collector_buffer_dropped_total counter
edge_collector_buffer_dropped_total 2
# HELP edge_collector_buffer_pending Records waiting in the accumulation buffer.
# TYPE edge_collector_buffer_pending gauge
edge_collector_buffer_pending 3
`
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"edge_collector_buffer_received_total",
		"edge_collector_buffer_dropped_total",
		"edge_collector_buffer_pending",
	)
	assert.NoError(t, err)
}

func TestRegister_ClientMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	Register(registry, testSources())

	expected := `
# HELP edge_collector_client_retries_total Retry attempts performed.
# TYPE edge_collector_client_retries_total counter
edge_collector_client_retries_total 3
# HELP edge_collector_client_batches_failed_total Batches abandoned after a permanent error or exhausted retries.
# TYPE edge_collector_client_batches_failed_total counter
edge_collector_client_batches_failed_total 1
`
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"edge_collector_client_retries_total",
		"edge_collector_client_batches_failed_total",
	)
	assert.NoError(t, err)
}

func TestRegister_CountsPerSource(t *testing.T) {
	registry := prometheus.NewRegistry()
	Register(registry, testSources())

	count, err := testutil.GatherAndCount(registry)
	require.NoError(t, err)
	assert.Equal(t, 6+4+8+1, count)
}

func TestRegister_SkipsNilSources(t *testing.T) {
	registry := prometheus.NewRegistry()
	sources := testSources()
	sources.Tail = nil
	sources.Generated = nil
	Register(registry, sources)

	count, err := testutil.GatherAndCount(registry)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	count, err = testutil.GatherAndCount(registry, "edge_collector_tail_lines_read_total")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegister_ReadsLiveValues(t *testing.T) {
	var received uint64
	registry := prometheus.NewRegistry()
	Register(registry, Sources{
		Buffer: func() batch.Stats { return batch.Stats{Received: received} },
	})

	received = 7
	expected := `
# HELP edge_collector_buffer_received_total Records accepted from the intake.
# TYPE edge_collector_buffer_received_total counter
edge_collector_buffer_received_total 7
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "edge_collector_buffer_received_total"))
}

func TestHandler(t *testing.T) {
	server := httptest.NewServer(Handler(NewRegistry(testSources())))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "edge_collector_tail_files_tailing 2")
	assert.Contains(t, string(body), "edge_collector_generator_records_total 42")
	assert.Contains(t, string(body), "go_goroutines")

	health, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, listener, NewRegistry(testSources()), zaptest.NewLogger(t).Sugar())
	}()

	url := "http://" + listener.Addr().String() + "/healthz"
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestListenAndServe_InvalidAddr(t *testing.T) {
	err := ListenAndServe(context.Background(), "not-an-address", prometheus.NewRegistry(), zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}
