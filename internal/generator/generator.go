package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Chichichkin/EdgeCollector/internal/logging"
	"github.com/Chichichkin/EdgeCollector/internal/logging/batch"
)

const (
	DefaultSensorsPerType = 3
	DefaultInterval       = 50 * time.Millisecond

	progressInterval = 30 * time.Second
	maxSequence      = 999_999
)

// levelWeights are relative weights for trace..fatal.
var levelWeights = [...]int{5, 15, 60, 12, 7, 1}

type Config struct {
	SensorsPerType  int
	IncludeMetadata bool
}

func DefaultConfig() Config {
	return Config{SensorsPerType: DefaultSensorsPerType, IncludeMetadata: true}
}

// Submitter accepts generated records; *batch.Intake satisfies it.
type Submitter interface {
	Submit(ctx context.Context, record logging.LogRecord) error
}

type Option func(*Generator)

// WithSeed makes the generated sequence reproducible.
func WithSeed(seed1, seed2 uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed1, seed2))
	}
}

// Generator produces synthetic sensor logs. It is safe for concurrent use.
type Generator struct {
	config Config
	log    *zap.SugaredLogger

	mu  sync.Mutex
	rng *rand.Rand

	generated atomic.Uint64
}

func New(config Config, log *zap.SugaredLogger, opts ...Option) *Generator {
	if config.SensorsPerType <= 0 {
		config.SensorsPerType = DefaultSensorsPerType
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	g := &Generator{
		config: config,
		log:    log,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Generate() logging.LogRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	types := SensorTypes()
	sensor := types[g.rng.IntN(len(types))]
	sourceID := fmt.Sprintf("edge-%s-%03d", sensor, g.rng.IntN(g.config.SensorsPerType)+1)
	level := g.level()

	message, metadata := g.sensorData(sensor, level)
	record := logging.NewRecord(sourceID, level, message)
	if g.config.IncludeMetadata {
		record.Metadata = metadata
	}

	g.generated.Add(1)
	return record
}

func (g *Generator) GenerateBatch(n int) []logging.LogRecord {
	records := make([]logging.LogRecord, 0, max(n, 0))
	for range n {
		records = append(records, g.Generate())
	}
	return records
}

func (g *Generator) Generated() uint64 {
	return g.generated.Load()
}

func (g *Generator) level() logging.Level {
	total := 0
	for _, w := range levelWeights {
		total += w
	}

	n := g.rng.IntN(total)
	for i, w := range levelWeights {
		if n < w {
			return logging.Level(i)
		}
		n -= w
	}
	return logging.LevelInfo
}

func (g *Generator) uniform(b band) float64 {
	return b.lo + g.rng.Float64()*(b.hi-b.lo)
}

func (g *Generator) reading(sensor SensorType, level logging.Level) float64 {
	bands := profiles[sensor].bands(severityOf(level))
	return g.uniform(bands[g.rng.IntN(len(bands))])
}

func (g *Generator) sensorData(sensor SensorType, level logging.Level) (string, map[string]any) {
	metadata := map[string]any{
		"sensor_type": sensor.String(),
		"unit":        sensor.Unit(),
	}

	var message string
	switch sensor {
	case Motion:
		detected := g.rng.Float64() < 0.3
		confidence := 70 + g.rng.IntN(31)
		metadata["motion_detected"] = detected
		metadata["confidence"] = confidence
		message = describeMotion(level, detected, confidence)
	case AirQuality:
		aqi := int(g.reading(sensor, level))
		metadata["reading"] = aqi
		metadata["pm25"] = g.uniform(band{0, 100})
		message = describe(sensor, level, float64(aqi))
	default:
		value := g.reading(sensor, level)
		metadata["reading"] = value
		switch sensor {
		case Vibration:
			metadata["frequency_hz"] = g.uniform(band{10, 500})
		case Power:
			metadata["voltage"] = g.uniform(band{118, 122})
		}
		message = describe(sensor, level, value)
	}

	metadata["sequence"] = g.rng.IntN(maxSequence) + 1
	return message, metadata
}

// Run submits one record per interval until ctx ends or the intake closes.
func (g *Generator) Run(ctx context.Context, intake Submitter, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	progress := time.NewTicker(progressInterval)
	defer progress.Stop()

	g.log.Infow("Generator started", "interval", interval, "sensors_per_type", g.config.SensorsPerType)

	var submitted, sinceReport uint64
	lastReport := time.Now()
	for {
		if err := limiter.Wait(ctx); err != nil {
			g.log.Infow("Generator stopped", "submitted", submitted)
			return nil
		}

		if err := intake.Submit(ctx, g.Generate()); err != nil {
			if errors.Is(err, batch.ErrClosed) || ctx.Err() != nil {
				g.log.Infow("Intake closed, generator stopping", "submitted", submitted)
				return nil
			}
			return fmt.Errorf("failed to submit generated record: %w", err)
		}
		submitted++
		sinceReport++

		select {
		case <-progress.C:
			elapsed := time.Since(lastReport).Seconds()
			g.log.Infow("Generator progress",
				"generated", sinceReport,
				"rate", fmt.Sprintf("%.1f/s", float64(sinceReport)/elapsed),
			)
			sinceReport = 0
			lastReport = time.Now()
		default:
		}
	}
}
