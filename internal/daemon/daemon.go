package daemon

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Chichichkin/EdgeCollector/internal/logging"
	"github.com/Chichichkin/EdgeCollector/internal/logging/batch"
)

const (
	DefaultScanInterval   = 30 * time.Second
	DefaultMaxFiles       = 64
	DefaultReportInterval = 30 * time.Second

	maxIdleCheckInterval = time.Second
)

// Submitter accepts tailed lines; *batch.Intake satisfies it.
type Submitter interface {
	Submit(ctx context.Context, record logging.LogRecord) error
}

type Config struct {
	LogRootPath  string
	ScanInterval time.Duration
	// MaxFiles bounds how many files are tailed at once. Files found while
	// every slot is taken are retried on the next scan.
	MaxFiles int
	NodeName string
	// If > 0, stop tailing a file after this period without new lines
	FileIdleTimeout time.Duration
	// FromStart reads files present at startup from the beginning instead of
	// only following new lines.
	FromStart      bool
	ReportInterval time.Duration
}

// LogDaemonService follows *.log files under a root directory and turns every
// line into a record.
type LogDaemonService struct {
	config  Config
	intake  Submitter
	log     *zap.SugaredLogger
	metrics *LogDaemonMetrics
	slots   *semaphore.Weighted

	mu        sync.Mutex
	tailing   map[string]struct{}
	seenFiles map[string]struct{}
	// offsets remembers where an idled tail stopped so a later scan resumes
	// there.
	offsets map[string]int64

	scanned bool
	tailsWg sync.WaitGroup
	stop    context.CancelFunc
}

func NewLogDaemonService(config Config, intake Submitter, log *zap.SugaredLogger) *LogDaemonService {
	if config.ScanInterval <= 0 {
		config.ScanInterval = DefaultScanInterval
	}
	if config.MaxFiles <= 0 {
		config.MaxFiles = DefaultMaxFiles
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = DefaultReportInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &LogDaemonService{
		config:    config,
		intake:    intake,
		log:       log,
		metrics:   &LogDaemonMetrics{MaxFiles: config.MaxFiles},
		slots:     semaphore.NewWeighted(int64(config.MaxFiles)),
		tailing:   make(map[string]struct{}),
		seenFiles: make(map[string]struct{}),
		offsets:   make(map[string]int64),
		stop:      func() {},
	}
}

func (s *LogDaemonService) Metrics() LogDaemonMetrics {
	return s.metrics.GetMetricsStamp()
}

// Run scans immediately and then every ScanInterval until ctx ends or the
// intake closes. It returns once every tail has stopped.
func (s *LogDaemonService) Run(ctx context.Context) error {
	ctx, s.stop = context.WithCancel(ctx)
	defer s.stop()

	s.log.Infow("Starting log daemon service",
		"root", s.config.LogRootPath,
		"max_files", s.config.MaxFiles,
		"scan_interval", s.config.ScanInterval,
	)

	s.scanFiles(ctx)

	scanner := time.NewTicker(s.config.ScanInterval)
	defer scanner.Stop()
	reporter := time.NewTicker(s.config.ReportInterval)
	defer reporter.Stop()

	for {
		select {
		case <-scanner.C:
			s.scanFiles(ctx)
		case <-reporter.C:
			s.report()
		case <-ctx.Done():
			s.tailsWg.Wait()
			s.report()
			s.log.Info("Log daemon service stopped")
			return nil
		}
	}
}

func (s *LogDaemonService) report() {
	m := s.metrics.GetMetricsStamp()
	s.log.Infow("Tail metrics",
		"tailing", m.FilesTailing,
		"max_files", m.MaxFiles,
		"slot_usage", s.metrics.GetSlotUsage(),
		"discovered", m.FilesDiscovered,
		"skipped", m.FilesSkipped,
		"failed", m.FilesFailed,
		"idled", m.FilesIdled,
		"lines_read", m.LinesRead,
		"lines_skipped", m.LinesSkipped,
	)
}

func (s *LogDaemonService) scanFiles(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	files, err := s.discoverLogFiles()
	if err != nil {
		s.log.Warnw("Error discovering log files", "root", s.config.LogRootPath, "error", err)
		return
	}

	initial := !s.scanned
	s.scanned = true

	for _, file := range files {
		if !s.track(file) {
			continue
		}
		if !s.slots.TryAcquire(1) {
			s.untrack(file)
			s.metrics.IncFilesSkipped()
			s.log.Debugw("All tail slots taken, skipping file", "file", file, "max_files", s.config.MaxFiles)
			continue
		}

		s.tailsWg.Add(1)
		go s.tailFile(ctx, file, s.startOffset(file, initial))
	}
}

// track marks file as being tailed. It reports false when a tail is already
// running for it.
func (s *LogDaemonService) track(file string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seenFiles[file]; !ok {
		s.seenFiles[file] = struct{}{}
		s.metrics.IncFilesDiscovered()
	}
	if _, ok := s.tailing[file]; ok {
		return false
	}
	s.tailing[file] = struct{}{}
	return true
}

func (s *LogDaemonService) untrack(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tailing, file)
}

func (s *LogDaemonService) saveOffset(file string, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[file] = offset
}

// startOffset resumes from a saved offset, follows only new lines for files
// present at startup, and reads files discovered later from the beginning.
func (s *LogDaemonService) startOffset(file string, initial bool) int64 {
	s.mu.Lock()
	offset, resumed := s.offsets[file]
	s.mu.Unlock()

	info, err := os.Stat(file)
	if err != nil {
		return 0
	}

	switch {
	case resumed:
		if offset > info.Size() {
			// truncated since the last tail
			return 0
		}
		return offset
	case initial && !s.config.FromStart:
		return info.Size()
	default:
		return 0
	}
}

func (s *LogDaemonService) tailFile(ctx context.Context, filePath string, offset int64) {
	defer s.tailsWg.Done()
	defer s.slots.Release(1)
	defer s.untrack(filePath)
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("Tailing panicked", "file", filePath, "panic", r)
			s.metrics.IncFilesFailed()
		}
	}()

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		s.log.Warnw("Failed to tail file", "file", filePath, "error", err)
		s.metrics.IncFilesFailed()
		return
	}

	s.metrics.IncFilesTailing()
	position := offset
	defer func() {
		stopTail(t)
		s.saveOffset(filePath, position)
		s.metrics.DecFilesTailing()
	}()

	labels := s.extractLabels(filePath)
	metadata := make(map[string]any, len(labels))
	for k, v := range labels {
		metadata[k] = v
	}
	sourceID := sourceIDFor(labels)

	s.log.Debugw("Tailing file", "file", filePath, "offset", offset)

	checkInterval := maxIdleCheckInterval
	if s.config.FileIdleTimeout > 0 {
		checkInterval = min(checkInterval, s.config.FileIdleTimeout)
	}
	checkTicker := time.NewTicker(checkInterval)
	defer checkTicker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				s.log.Warnw("Error reading file", "file", filePath, "error", line.Err)
				continue
			}

			lastActivity = time.Now()

			if err := s.submitLine(ctx, sourceID, metadata, line); err != nil {
				if errors.Is(err, batch.ErrClosed) {
					s.log.Infow("Intake closed, stopping tails", "file", filePath)
					s.stop()
				}
				return
			}
			position += int64(len(line.Text)) + 1

		case <-checkTicker.C:
			// waking up from blocking line reading to check idle timeout
			if s.config.FileIdleTimeout > 0 && time.Since(lastActivity) > s.config.FileIdleTimeout {
				s.metrics.IncFilesIdled()
				s.log.Debugw("File idle, releasing slot", "file", filePath, "idle", s.config.FileIdleTimeout)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// stopTail drains pending lines so the tail goroutine can observe the kill.
func stopTail(t *tail.Tail) {
	go func() {
		for range t.Lines {
		}
	}()
	_ = t.Stop()
	t.Cleanup()
}

func (s *LogDaemonService) submitLine(ctx context.Context, sourceID string, metadata map[string]any, line *tail.Line) error {
	text := strings.TrimRight(line.Text, "\r")
	if strings.TrimSpace(text) == "" {
		s.metrics.IncLinesSkipped()
		return nil
	}

	record := logging.NewRecord(sourceID, logging.DetectLevel(text), text).WithMetadata(metadata)
	if !line.Time.IsZero() {
		record.Timestamp = line.Time.UTC()
	}

	if err := s.intake.Submit(ctx, record); err != nil {
		return err
	}
	s.metrics.IncLinesRead()
	return nil
}

func (s *LogDaemonService) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.WalkDir(s.config.LogRootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.config.LogRootPath {
				return err
			}
			s.log.Debugw("Error accessing path", "path", path, "error", err)
			return nil
		}

		if !d.IsDir() && strings.HasSuffix(d.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}

// extractLabels reads pod labels from <root>/<namespace>_<pod>_<uid>/<container>/<file>.
func (s *LogDaemonService) extractLabels(filePath string) map[string]string {
	labels := map[string]string{
		"node": s.config.NodeName,
		"file": filepath.Base(filePath),
	}

	rel, err := filepath.Rel(s.config.LogRootPath, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return labels
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) >= 2 {
		podParts := strings.SplitN(parts[0], "_", 3)
		if len(podParts) == 3 {
			labels["namespace"] = podParts[0]
			labels["pod"] = podParts[1]
			labels["pod_uid"] = podParts[2]
		}

		if len(parts) >= 3 {
			labels["container"] = parts[1]
		}
	}

	return labels
}

func sourceIDFor(labels map[string]string) string {
	if pod, ok := labels["pod"]; ok {
		id := labels["namespace"] + "/" + pod
		if container, ok := labels["container"]; ok {
			id += "/" + container
		}
		return id
	}
	return labels["node"] + "/" + labels["file"]
}
