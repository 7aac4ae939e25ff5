package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/internal/storage"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

// Sink persists one audit row.
type Sink interface {
	SaveAudit(ctx context.Context, record storage.AuditRecord) error
}

// Logger records scan lifecycle events without ever blocking or
// failing the caller. Entries flow through a buffered channel into a
// single writer goroutine; when the buffer is full the entry is
// dropped and counted.
type Logger struct {
	sink    Sink
	log     *logrus.Logger
	entries chan storage.AuditRecord
	dropped atomic.Uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(sink Sink, bufferSize int, logger *logrus.Logger) *Logger {
	if logger == nil {
		logger = logrus.New()
	}
	if bufferSize <= 0 {
		bufferSize = 128
	}

	a := &Logger{
		sink:    sink,
		log:     logger,
		entries: make(chan storage.AuditRecord, bufferSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.writer()
	return a
}

// Log enqueues an audit entry. It never blocks; entries that do not
// fit the buffer are dropped.
func (a *Logger) Log(action, username, scanID string, details map[string]interface{}, status, errorMessage string) {
	record := storage.AuditRecord{
		Action:     action,
		Username:   username,
		ScanID:     scanID,
		Details:    encodeDetails(details),
		Status:     status,
		ErrorText:  errorMessage,
		RecordedAt: time.Now(),
	}

	select {
	case <-a.stop:
		a.dropped.Add(1)
		return
	default:
	}

	select {
	case a.entries <- record:
	default:
		a.dropped.Add(1)
	}
}

func (a *Logger) Dropped() uint64 {
	return a.dropped.Load()
}

// Close drains buffered entries and stops the writer.
func (a *Logger) Close() {
	a.closeOnce.Do(func() {
		close(a.stop)
	})
	<-a.done
}

func (a *Logger) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"buffer_capacity": cap(a.entries),
		"buffer_pending":  len(a.entries),
		"dropped":         a.dropped.Load(),
	}
}

func (a *Logger) writer() {
	defer close(a.done)
	for {
		select {
		case record := <-a.entries:
			a.persist(record)
		case <-a.stop:
			for {
				select {
				case record := <-a.entries:
					a.persist(record)
				default:
					return
				}
			}
		}
	}
}

func (a *Logger) persist(record storage.AuditRecord) {
	a.log.WithFields(logrus.Fields{
		"action":   record.Action,
		"username": record.Username,
		"scan_id":  record.ScanID,
		"status":   record.Status,
	}).Debug("Audit event")

	if a.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.sink.SaveAudit(ctx, record); err != nil {
		a.log.WithError(err).Warn("Failed to persist audit entry")
	}
}

// encodeDetails serializes the free-form detail map. Credential-shaped
// keys are redacted before the row hits durable storage.
func encodeDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	raw, err := json.Marshal(utils.RedactSecrets(details))
	if err != nil {
		return ""
	}
	return string(raw)
}
