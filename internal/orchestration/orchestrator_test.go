package orchestration_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/internal/analysis"
	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/internal/evasion"
	"github.com/bl4ck0w1/profilynx/internal/orchestration"
	"github.com/bl4ck0w1/profilynx/internal/probing"
	"github.com/bl4ck0w1/profilynx/internal/scanning"
	"github.com/bl4ck0w1/profilynx/pkg/models"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

func newTestOrchestrator(t *testing.T, baseURL string, cfg models.OrchestratorConfig) *orchestration.Orchestrator {
	t.Helper()

	doc := fmt.Sprintf(`version: "1.0.0"
platforms:
  - id: found
    name: Found
    url_template: "%[1]s/found/{username}"
    category: social
    audience: public
    risk_weight: 0.6
    exposure_tags: [real_name]
    detection: {method: status_code, found_status: 200, not_found_status: 404}
  - id: missing
    name: Missing
    url_template: "%[1]s/missing/{username}"
    category: development
    audience: public
    risk_weight: 0.5
    exposure_tags: [email]
    detection: {method: status_code, found_status: 200, not_found_status: 404}
`, baseURL)

	path := filepath.Join(t.TempDir(), "platforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cat, err := catalog.LoadFile(path, logger)
	require.NoError(t, err)

	probeCfg := &models.ProbeConfig{
		MaxConcurrentRequests: 8,
		Timeout:               5 * time.Second,
		RetryBackoffBase:      5 * time.Millisecond,
		RetryBackoffMax:       50 * time.Millisecond,
		PreviewBytes:          128,
		Identity: models.IdentityConfig{
			Profiles: []string{"chrome_win"},
		},
	}

	suite, err := evasion.NewSuite(probeCfg, logger)
	require.NoError(t, err)
	t.Cleanup(suite.Close)

	metrics := utils.NewMetricsCollector("orchtest", false)
	engine := probing.NewEngine(cat, probeCfg, suite, metrics, logger)
	t.Cleanup(engine.Close)

	coord := scanning.NewCoordinator(engine, cat, metrics, logger)
	analyzer := analysis.NewAnalyzer(cat, nil, 0, metrics, logger)

	return orchestration.NewOrchestrator(coord, analyzer, cfg, metrics, logger)
}

func foundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/found/") {
			fmt.Fprint(w, "profile")
			return
		}
		http.NotFound(w, r)
	})
}

func waitTerminal(t *testing.T, o *orchestration.Orchestrator, taskID string) models.ScanTask {
	t.Helper()
	var snap models.ScanTask
	require.Eventually(t, func() bool {
		s, err := o.Status(taskID)
		if err != nil {
			return false
		}
		snap = s
		return s.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestSubmitAndComplete(t *testing.T) {
	srv := httptest.NewServer(foundHandler())
	defer srv.Close()

	orch := newTestOrchestrator(t, srv.URL, models.OrchestratorConfig{Workers: 1})
	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	taskID, err := orch.Submit("alice", nil, models.PriorityMedium)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	snap := waitTerminal(t, orch, taskID)

	assert.Equal(t, models.TaskCompleted, snap.Status)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "alice", snap.Result.Username)
	assert.Equal(t, 2, snap.Result.TotalPlatforms)
	assert.Equal(t, 1, snap.Result.ProfilesFound)
	assert.Greater(t, snap.Result.RiskScore, 0.0)
	assert.NotNil(t, snap.Result.Correlation)

	assert.False(t, snap.SubmittedAt.After(snap.StartedAt))
	assert.False(t, snap.StartedAt.After(snap.CompletedAt))
}

func TestPriorityThenSubmissionOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/found/") {
			mu.Lock()
			order = append(order, strings.TrimPrefix(r.URL.Path, "/found/"))
			mu.Unlock()
			fmt.Fprint(w, "profile")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	orch := newTestOrchestrator(t, srv.URL, models.OrchestratorConfig{Workers: 1})

	// Everything is queued before the single worker starts, so the
	// dequeue order is fully determined by priority then seq.
	subset := []string{"found"}
	ids := make([]string, 0, 4)
	for _, sub := range []struct {
		username string
		priority models.TaskPriority
	}{
		{"delta", models.PriorityLow},
		{"alpha", models.PriorityMedium},
		{"bravo", models.PriorityMedium},
		{"zulu", models.PriorityHigh},
	} {
		id, err := orch.Submit(sub.username, subset, sub.priority)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	for _, id := range ids {
		snap := waitTerminal(t, orch, id)
		assert.Equal(t, models.TaskCompleted, snap.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"zulu", "alpha", "bravo", "delta"}, order)
}

func TestCancelPendingTask(t *testing.T) {
	orch := newTestOrchestrator(t, "http://127.0.0.1:0", models.OrchestratorConfig{Workers: 1})

	taskID, err := orch.Submit("alice", nil, models.PriorityLow)
	require.NoError(t, err)

	cancelled, err := orch.Cancel(taskID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	snap, err := orch.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, snap.Status)
	assert.Contains(t, snap.Error, "cancelled")
	assert.False(t, snap.CompletedAt.IsZero())

	// Terminal tasks are left alone.
	cancelled, err = orch.Cancel(taskID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	_, err = orch.Cancel("no-such-task")
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestCancelRunningIsNoop(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, "profile")
	}))
	defer srv.Close()

	orch := newTestOrchestrator(t, srv.URL, models.OrchestratorConfig{Workers: 1})
	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	taskID, err := orch.Submit("alice", []string{"found"}, models.PriorityMedium)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := orch.Status(taskID)
		return err == nil && snap.Status == models.TaskRunning
	}, 5*time.Second, 5*time.Millisecond)

	cancelled, err := orch.Cancel(taskID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	close(release)

	snap := waitTerminal(t, orch, taskID)
	assert.Equal(t, models.TaskCompleted, snap.Status)
}

func TestSubmitValidation(t *testing.T) {
	orch := newTestOrchestrator(t, "http://127.0.0.1:0", models.OrchestratorConfig{})

	_, err := orch.Submit("   ", nil, models.PriorityMedium)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = orch.SubmitBatch(nil, models.PriorityMedium)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = orch.SubmitBatch([]string{"alice", "\t"}, models.PriorityMedium)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestQueueCapacity(t *testing.T) {
	orch := newTestOrchestrator(t, "http://127.0.0.1:0", models.OrchestratorConfig{QueueCapacity: 1})

	_, err := orch.Submit("alice", nil, models.PriorityMedium)
	require.NoError(t, err)

	_, err = orch.Submit("bob", nil, models.PriorityMedium)
	assert.ErrorIs(t, err, models.ErrQueueFull)

	_, err = orch.SubmitBatch([]string{"carol", "dave"}, models.PriorityMedium)
	assert.ErrorIs(t, err, models.ErrQueueFull)

	stats := orch.GetStats()
	assert.Equal(t, 1, stats["queue_depth"])
	assert.Equal(t, 1, stats["tasks_total"])
}

func TestBatchJobAccounting(t *testing.T) {
	srv := httptest.NewServer(foundHandler())
	defer srv.Close()

	orch := newTestOrchestrator(t, srv.URL, models.OrchestratorConfig{Workers: 2})
	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	jobID, err := orch.SubmitBatch([]string{"alice", "bob"}, models.PriorityHigh)
	require.NoError(t, err)

	var job models.BatchScanJob
	require.Eventually(t, func() bool {
		j, err := orch.Job(jobID)
		if err != nil {
			return false
		}
		job = j
		return !j.FinishedAt.IsZero()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Len(t, job.TaskIDs, 2)
	assert.Equal(t, 2, job.Completed)
	assert.Zero(t, job.Failed)
	assert.True(t, job.Done())

	// Both usernames resolve identically against the same catalog, so
	// the average equals the per-task score.
	assert.InDelta(t, 0.154, job.AverageRiskScore, 0.0001)

	for _, id := range job.TaskIDs {
		snap, err := orch.Status(id)
		require.NoError(t, err)
		assert.Equal(t, models.TaskCompleted, snap.Status)
		assert.Equal(t, jobID, snap.JobID)
	}

	_, err = orch.Job("no-such-job")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestStopDrainsPendingTasks(t *testing.T) {
	srv := httptest.NewServer(foundHandler())
	defer srv.Close()

	orch := newTestOrchestrator(t, srv.URL, models.OrchestratorConfig{Workers: 1})

	subset := []string{"found"}
	ids := make([]string, 0, 3)
	for _, username := range []string{"alice", "bob", "carol"} {
		id, err := orch.Submit(username, subset, models.PriorityMedium)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, orch.Start(context.Background()))
	orch.Stop()

	for _, id := range ids {
		snap, err := orch.Status(id)
		require.NoError(t, err)
		assert.Equal(t, models.TaskCompleted, snap.Status)
	}

	_, err := orch.Submit("dave", nil, models.PriorityMedium)
	assert.ErrorIs(t, err, models.ErrQueueClosed)
}

func TestStartTwice(t *testing.T) {
	orch := newTestOrchestrator(t, "http://127.0.0.1:0", models.OrchestratorConfig{Workers: 1})

	require.NoError(t, orch.Start(context.Background()))
	err := orch.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	orch.Stop()
}

func TestSubmitProfile(t *testing.T) {
	orch := newTestOrchestrator(t, "http://127.0.0.1:0", models.OrchestratorConfig{})

	_, err := orch.SubmitProfile("alice", "warp-speed", models.PriorityMedium)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	taskID, err := orch.SubmitProfile("alice", "standard", models.PriorityMedium)
	require.NoError(t, err)

	snap, err := orch.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, snap.Status)
	assert.Empty(t, snap.Platforms)
}
