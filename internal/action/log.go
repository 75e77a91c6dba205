package action

import (
	"context"
	"sync"
	"time"

	"github.com/ShayCichocki/nimbus/pkg/models"
	"go.uber.org/zap"
)

// Record is one entry in the append-only dispatch log.
type Record struct {
	Seq       int64               `json:"seq"`
	Name      string              `json:"name"`
	Result    models.ActionResult `json:"result"`
	Timestamp time.Time           `json:"timestamp"`
}

// LogSink receives every appended record.
type LogSink interface {
	AppendActionLog(ctx context.Context, rec Record) error
}

// Log keeps dispatch records in memory and forwards them to an optional sink.
type Log struct {
	mu      sync.Mutex
	records []Record
	sink    LogSink
	logger  *zap.Logger
}

// NewLog creates an empty log. sink may be nil.
func NewLog(sink LogSink, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{sink: sink, logger: logger}
}

// Append adds rec. Sink failures are logged and do not fail the append.
func (l *Log) Append(ctx context.Context, rec Record) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	if l.sink == nil {
		return
	}
	if err := l.sink.AppendActionLog(ctx, rec); err != nil {
		l.logger.Warn("action log sink failed",
			zap.Int64("seq", rec.Seq),
			zap.String("action", rec.Name),
			zap.Error(err))
	}
}

// Records returns a copy of all records in append order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
