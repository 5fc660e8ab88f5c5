package logging

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type LogRecord struct {
	ID        string         `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	SourceID  string         `json:"source_id"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewRecord stamps the record with a fresh id and the current UTC time.
func NewRecord(sourceID string, level Level, message string) LogRecord {
	return LogRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		SourceID:  sourceID,
		Level:     level,
		Message:   message,
	}
}

func (r LogRecord) WithMetadata(metadata map[string]any) LogRecord {
	r.Metadata = maps.Clone(metadata)
	return r
}

// Batch is a unit of transmission. The id is generated once in NewBatch and
// resent unchanged on every retry so the server can deduplicate deliveries.
type Batch struct {
	id      string
	source  string
	records []LogRecord
}

func NewBatch(records []LogRecord, source string) Batch {
	return Batch{
		id:      uuid.NewString(),
		source:  source,
		records: records,
	}
}

func (b Batch) ID() string     { return b.id }
func (b Batch) Source() string { return b.source }
func (b Batch) Len() int       { return len(b.records) }
func (b Batch) IsEmpty() bool  { return len(b.records) == 0 }

// Records returns a copy of the batch contents in arrival order.
func (b Batch) Records() []LogRecord {
	return slices.Clone(b.records)
}

type wireBatch struct {
	Logs    []LogRecord `json:"logs"`
	BatchID string      `json:"batch_id,omitempty"`
	Source  string      `json:"source,omitempty"`
}

func (b Batch) MarshalJSON() ([]byte, error) {
	logs := b.records
	if logs == nil {
		logs = []LogRecord{}
	}
	return json.Marshal(wireBatch{
		Logs:    logs,
		BatchID: b.id,
		Source:  b.source,
	})
}

func (b *Batch) UnmarshalJSON(data []byte) error {
	var w wireBatch
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.id = w.BatchID
	b.source = w.Source
	b.records = w.Logs
	return nil
}

// Deliverer receives every batch the buffer engine finalizes.
type Deliverer interface {
	Deliver(ctx context.Context, batch Batch) error
}

// DelivererFunc adapts a plain function to Deliverer.
type DelivererFunc func(ctx context.Context, batch Batch) error

func (f DelivererFunc) Deliver(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}
