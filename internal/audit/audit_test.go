package audit_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bl4ck0w1/profilynx/internal/audit"
	"github.com/bl4ck0w1/profilynx/internal/storage"
)

type captureSink struct {
	mu      sync.Mutex
	records []storage.AuditRecord
	block   chan struct{}
	fail    bool
}

func (s *captureSink) SaveAudit(_ context.Context, record storage.AuditRecord) error {
	if s.block != nil {
		<-s.block
	}
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *captureSink) at(i int) storage.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[i]
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestLogPersistsThroughSink(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &captureSink{}
	trail := audit.New(sink, 8, quietLogger())

	trail.Log("scan_task_completed", "alice", "scan_00000000000000aa",
		map[string]interface{}{"task_id": "t1", "api_key": "plaintext"}, "success", "")
	trail.Log("scan_task_failed", "bob", "", nil, "failed", "boom")

	require.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	first := sink.at(0)
	assert.Equal(t, "scan_task_completed", first.Action)
	assert.Equal(t, "alice", first.Username)
	assert.Equal(t, "scan_00000000000000aa", first.ScanID)
	assert.Contains(t, first.Details, `"task_id":"t1"`)
	assert.Contains(t, first.Details, `"api_key":"[REDACTED]"`)
	assert.NotContains(t, first.Details, "plaintext")
	assert.Equal(t, "success", first.Status)
	assert.False(t, first.RecordedAt.IsZero())

	second := sink.at(1)
	assert.Equal(t, "scan_task_failed", second.Action)
	assert.Empty(t, second.Details)
	assert.Equal(t, "boom", second.ErrorText)

	trail.Close()
}

func TestDropsWhenBufferFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	sink := &captureSink{block: release}
	trail := audit.New(sink, 2, quietLogger())

	// First entry occupies the writer, the next two fill the buffer,
	// anything after that is dropped.
	trail.Log("e1", "alice", "", nil, "", "")
	require.Eventually(t, func() bool {
		stats := trail.GetStats()
		return stats["buffer_pending"] == 0
	}, 2*time.Second, time.Millisecond)

	trail.Log("e2", "alice", "", nil, "", "")
	trail.Log("e3", "alice", "", nil, "", "")
	trail.Log("e4", "alice", "", nil, "", "")
	trail.Log("e5", "alice", "", nil, "", "")

	assert.EqualValues(t, 2, trail.Dropped())

	close(release)
	trail.Close()

	assert.Equal(t, 3, sink.count())
}

func TestCloseDrainsBuffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &captureSink{}
	trail := audit.New(sink, 16, quietLogger())

	for i := 0; i < 5; i++ {
		trail.Log("event", "alice", "", nil, "", "")
	}
	trail.Close()

	assert.Equal(t, 5, sink.count())

	// After close, logging just counts drops.
	trail.Log("late", "alice", "", nil, "", "")
	assert.Equal(t, 5, sink.count())
	assert.EqualValues(t, 1, trail.Dropped())

	trail.Close()
}

func TestSinkFailureDoesNotPropagate(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &captureSink{fail: true}
	trail := audit.New(sink, 4, quietLogger())

	trail.Log("event", "alice", "", nil, "", "")
	trail.Close()

	assert.Zero(t, sink.count())
}

func TestNilSinkIsLogOnly(t *testing.T) {
	defer goleak.VerifyNone(t)

	trail := audit.New(nil, 4, quietLogger())
	trail.Log("event", "alice", "", nil, "", "")
	trail.Close()

	assert.Zero(t, trail.Dropped())
}
