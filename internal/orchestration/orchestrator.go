package orchestration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/internal/analysis"
	"github.com/bl4ck0w1/profilynx/internal/scanning"
	"github.com/bl4ck0w1/profilynx/pkg/models"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

// Store persists a finished scan. Failures are logged, never fatal to
// the task.
type Store interface {
	SaveScan(ctx context.Context, task *models.ScanTask, analysis *models.ScanAnalysis) error
}

// AuditLogger records scan lifecycle events fire-and-forget.
type AuditLogger interface {
	Log(action, username, scanID string, details map[string]interface{}, status, errorMessage string)
}

type Orchestrator struct {
	coordinator *scanning.Coordinator
	analyzer    *analysis.Analyzer
	queue       *taskQueue
	workers     int
	taskTimeout time.Duration
	metrics     *utils.MetricsCollector
	logger      *logrus.Logger

	mu    sync.RWMutex
	tasks map[string]*models.ScanTask
	jobs  map[string]*models.BatchScanJob
	store Store
	audit AuditLogger

	seq     atomic.Uint64
	busy    atomic.Int64
	started atomic.Bool
	wg      sync.WaitGroup
}

func NewOrchestrator(coordinator *scanning.Coordinator, analyzer *analysis.Analyzer, cfg models.OrchestratorConfig, metrics *utils.MetricsCollector, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = utils.DefaultMetricsCollector()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Minute
	}

	return &Orchestrator{
		coordinator: coordinator,
		analyzer:    analyzer,
		queue:       newTaskQueue(cfg.QueueCapacity),
		workers:     workers,
		taskTimeout: taskTimeout,
		metrics:     metrics,
		logger:      logger,
		tasks:       make(map[string]*models.ScanTask),
		jobs:        make(map[string]*models.BatchScanJob),
	}
}

func (o *Orchestrator) SetStore(s Store) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.store = s
}

func (o *Orchestrator) SetAudit(a AuditLogger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audit = a
}

// Submit validates the username, registers a pending task and enqueues
// it. Unknown platform ids are not checked here; they fail the task at
// execution time.
func (o *Orchestrator) Submit(username string, platforms []string, priority models.TaskPriority) (string, error) {
	normalized, err := scanning.NormalizeUsername(username)
	if err != nil {
		return "", err
	}

	task := o.register(normalized, platforms, priority, "")
	if err := o.queue.Enqueue(task); err != nil {
		o.mu.Lock()
		delete(o.tasks, task.ID)
		o.mu.Unlock()
		return "", err
	}
	o.metrics.SetQueueDepth(o.queue.Len())

	o.logger.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"username": normalized,
		"priority": priority.String(),
	}).Info("Scan task submitted")

	return task.ID, nil
}

// SubmitBatch creates one task per username under a shared job. The
// whole batch is rejected when any username is invalid or the queue
// cannot hold all of its tasks.
func (o *Orchestrator) SubmitBatch(usernames []string, priority models.TaskPriority) (string, error) {
	if len(usernames) == 0 {
		return "", fmt.Errorf("%w: empty username list", models.ErrInvalidInput)
	}

	normalized := make([]string, 0, len(usernames))
	for _, u := range usernames {
		n, err := scanning.NormalizeUsername(u)
		if err != nil {
			return "", fmt.Errorf("username %q: %w", u, err)
		}
		normalized = append(normalized, n)
	}

	if free := o.queue.capacity - o.queue.Len(); free < len(normalized) {
		return "", models.ErrQueueFull
	}

	job := &models.BatchScanJob{
		ID:        uuid.NewString(),
		Usernames: normalized,
		TaskIDs:   make([]string, 0, len(normalized)),
		CreatedAt: time.Now(),
	}

	// Register the job with its full task id list before any child can
	// reach a terminal state, otherwise the job could freeze early.
	tasks := make([]*models.ScanTask, 0, len(normalized))
	for _, username := range normalized {
		task := o.register(username, nil, priority, job.ID)
		tasks = append(tasks, task)
		job.TaskIDs = append(job.TaskIDs, task.ID)
	}
	o.mu.Lock()
	o.jobs[job.ID] = job
	o.mu.Unlock()

	for _, task := range tasks {
		if err := o.queue.Enqueue(task); err != nil {
			// Capacity was checked above; losing the race against a
			// concurrent submitter fails this child, not the batch.
			o.finish(task, nil, err)
		}
	}
	o.metrics.SetQueueDepth(o.queue.Len())

	o.logger.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"usernames": len(normalized),
		"priority":  priority.String(),
	}).Info("Batch scan job submitted")

	return job.ID, nil
}

// SubmitProfile resolves a named scan profile and submits a task over
// the catalog subset it selects.
func (o *Orchestrator) SubmitProfile(username, profileName string, priority models.TaskPriority) (string, error) {
	profile, ok := ResolveProfile(profileName)
	if !ok {
		return "", fmt.Errorf("%w: unknown scan profile %q", models.ErrInvalidInput, profileName)
	}
	return o.Submit(username, profile.PlatformIDs(o.coordinator.Catalog()), priority)
}

func (o *Orchestrator) register(username string, platforms []string, priority models.TaskPriority, jobID string) *models.ScanTask {
	if priority < models.PriorityLow || priority > models.PriorityHigh {
		priority = models.PriorityMedium
	}
	task := &models.ScanTask{
		ID:          uuid.NewString(),
		Username:    username,
		Platforms:   append([]string(nil), platforms...),
		Priority:    priority,
		Seq:         o.seq.Add(1),
		Status:      models.TaskPending,
		JobID:       jobID,
		SubmittedAt: time.Now(),
	}
	o.mu.Lock()
	o.tasks[task.ID] = task
	o.mu.Unlock()
	return task
}

// Status returns a snapshot copy of the task.
func (o *Orchestrator) Status(taskID string) (models.ScanTask, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	task, ok := o.tasks[taskID]
	if !ok {
		return models.ScanTask{}, models.ErrTaskNotFound
	}
	snap := *task
	snap.Platforms = append([]string(nil), task.Platforms...)
	return snap, nil
}

// Job returns a snapshot copy of the batch job.
func (o *Orchestrator) Job(jobID string) (models.BatchScanJob, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	job, ok := o.jobs[jobID]
	if !ok {
		return models.BatchScanJob{}, models.ErrJobNotFound
	}
	snap := *job
	snap.Usernames = append([]string(nil), job.Usernames...)
	snap.TaskIDs = append([]string(nil), job.TaskIDs...)
	return snap, nil
}

// Cancel fails a pending task. It returns false without error when the
// task is already running or terminal; in-flight work is never
// interrupted.
func (o *Orchestrator) Cancel(taskID string) (bool, error) {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return false, models.ErrTaskNotFound
	}
	if task.Status != models.TaskPending {
		o.mu.Unlock()
		return false, nil
	}
	o.terminateLocked(task, nil, models.ErrCancelled, time.Now())
	o.mu.Unlock()

	o.queue.Remove(taskID)
	o.metrics.RecordTask("cancelled")
	o.metrics.SetQueueDepth(o.queue.Len())

	o.logger.WithFields(logrus.Fields{
		"task_id":  taskID,
		"username": task.Username,
	}).Info("Pending task cancelled")

	return true, nil
}

func (o *Orchestrator) Start(ctx context.Context) error {
	if o.coordinator == nil {
		return models.ErrScannerNotReady
	}
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("orchestrator already started")
	}

	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}

	o.logger.WithField("workers", o.workers).Info("Orchestrator started")
	return nil
}

// Stop closes the queue, lets workers drain the remaining pending
// tasks and blocks until they exit.
func (o *Orchestrator) Stop() {
	o.queue.Close()
	o.wg.Wait()
	o.metrics.SetWorkersBusy(0)
	o.logger.Info("Orchestrator stopped")
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	log := o.logger.WithField("worker", id)

	for {
		task, err := o.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, models.ErrQueueClosed) && !errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded) {
				log.WithError(err).Warn("Worker leaving queue")
			}
			return
		}
		o.metrics.SetQueueDepth(o.queue.Len())
		o.runTask(ctx, task, log)
	}
}

func (o *Orchestrator) runTask(ctx context.Context, task *models.ScanTask, log *logrus.Entry) {
	o.mu.Lock()
	if task.Status != models.TaskPending {
		// Cancelled between dequeue and pickup.
		o.mu.Unlock()
		return
	}
	task.Status = models.TaskRunning
	task.StartedAt = time.Now()
	o.mu.Unlock()

	o.metrics.SetWorkersBusy(int(o.busy.Add(1)))
	defer func() {
		o.metrics.SetWorkersBusy(int(o.busy.Add(-1)))
	}()
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{"task_id": task.ID, "panic": r}).Error("Worker panic recovered")
			o.finish(task, nil, fmt.Errorf("task panicked: %v", r))
		}
	}()

	taskCtx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	result, err := o.coordinator.RunScan(taskCtx, task.Username, task.Platforms)
	if err != nil {
		o.auditEvent("scan_task_failed", task.Username, "", task, "failed", err.Error())
		o.finish(task, nil, err)
		log.WithFields(logrus.Fields{"task_id": task.ID, "username": task.Username}).
			WithError(err).Warn("Scan task failed")
		return
	}

	o.analyzer.Analyze(taskCtx, result)
	o.persist(taskCtx, task, result)
	o.auditEvent("scan_task_completed", task.Username, result.ScanID, task, "success", "")
	o.finish(task, result, nil)

	log.WithFields(logrus.Fields{
		"task_id":    task.ID,
		"username":   task.Username,
		"scan_id":    result.ScanID,
		"found":      result.ProfilesFound,
		"risk_score": result.RiskScore,
	}).Info("Scan task completed")
}

func (o *Orchestrator) persist(ctx context.Context, task *models.ScanTask, result *models.ScanAnalysis) {
	o.mu.RLock()
	store := o.store
	o.mu.RUnlock()
	if store == nil {
		return
	}
	if err := store.SaveScan(ctx, task, result); err != nil {
		o.logger.WithFields(logrus.Fields{"task_id": task.ID, "scan_id": result.ScanID}).
			WithError(err).Warn("Failed to persist scan")
	}
}

func (o *Orchestrator) auditEvent(action, username, scanID string, task *models.ScanTask, status, errMsg string) {
	o.mu.RLock()
	audit := o.audit
	o.mu.RUnlock()
	if audit == nil {
		return
	}
	audit.Log(action, username, scanID, map[string]interface{}{
		"task_id": task.ID,
		"job_id":  task.JobID,
	}, status, errMsg)
}

func (o *Orchestrator) finish(task *models.ScanTask, result *models.ScanAnalysis, taskErr error) {
	now := time.Now()
	o.mu.Lock()
	if task.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	o.terminateLocked(task, result, taskErr, now)
	status := string(task.Status)
	started := task.StartedAt
	o.mu.Unlock()

	o.metrics.RecordTask(status)
	if !started.IsZero() {
		o.metrics.RecordTaskDuration(now.Sub(started))
	}
}

// terminateLocked moves a task to its terminal state and freezes the
// parent job when this was its last outstanding child. Callers hold
// o.mu.
func (o *Orchestrator) terminateLocked(task *models.ScanTask, result *models.ScanAnalysis, taskErr error, now time.Time) {
	task.CompletedAt = now
	if taskErr != nil {
		task.Status = models.TaskFailed
		task.Error = taskErr.Error()
	} else {
		task.Status = models.TaskCompleted
		task.Result = result
	}

	if task.JobID == "" {
		return
	}
	job, ok := o.jobs[task.JobID]
	if !ok {
		return
	}
	if taskErr != nil {
		job.Failed++
	} else {
		job.Completed++
	}
	if job.Done() && job.FinishedAt.IsZero() {
		job.AverageRiskScore = o.averageRiskLocked(job)
		job.FinishedAt = now
		o.logger.WithFields(logrus.Fields{
			"job_id":     job.ID,
			"completed":  job.Completed,
			"failed":     job.Failed,
			"avg_risk":   job.AverageRiskScore,
		}).Info("Batch scan job finished")
	}
}

func (o *Orchestrator) averageRiskLocked(job *models.BatchScanJob) float64 {
	var sum float64
	var n int
	for _, id := range job.TaskIDs {
		task, ok := o.tasks[id]
		if !ok || task.Status != models.TaskCompleted || task.Result == nil {
			continue
		}
		sum += task.Result.RiskScore
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*1000) / 1000
}

func (o *Orchestrator) GetStats() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	byStatus := make(map[string]int)
	for _, task := range o.tasks {
		byStatus[string(task.Status)]++
	}

	return map[string]interface{}{
		"workers":         o.workers,
		"workers_busy":    o.busy.Load(),
		"queue_depth":     o.queue.Len(),
		"tasks_total":     len(o.tasks),
		"tasks_by_status": byStatus,
		"jobs_total":      len(o.jobs),
	}
}
