package models

import "time"

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

type TaskPriority int

const (
	PriorityLow    TaskPriority = 1
	PriorityMedium TaskPriority = 2
	PriorityHigh   TaskPriority = 3
)

func ParsePriority(s string) (TaskPriority, bool) {
	switch s {
	case "low":
		return PriorityLow, true
	case "medium", "":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	}
	return PriorityMedium, false
}

func (p TaskPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "medium"
	}
}

type ScanTask struct {
	ID          string        `json:"id" bson:"id"`
	Username    string        `json:"username" bson:"username"`
	Platforms   []string      `json:"platforms,omitempty" bson:"platforms"`
	Priority    TaskPriority  `json:"priority" bson:"priority"`
	Seq         uint64        `json:"seq" bson:"seq"`
	Status      TaskStatus    `json:"status" bson:"status"`
	Result      *ScanAnalysis `json:"result,omitempty" bson:"result"`
	Error       string        `json:"error,omitempty" bson:"error"`
	JobID       string        `json:"job_id,omitempty" bson:"job_id"`
	SubmittedAt time.Time     `json:"submitted_at" bson:"submitted_at"`
	StartedAt   time.Time     `json:"started_at,omitempty" bson:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty" bson:"completed_at"`
}

type BatchScanJob struct {
	ID               string    `json:"id" bson:"id"`
	Usernames        []string  `json:"usernames" bson:"usernames"`
	TaskIDs          []string  `json:"task_ids" bson:"task_ids"`
	Completed        int       `json:"completed" bson:"completed"`
	Failed           int       `json:"failed" bson:"failed"`
	AverageRiskScore float64   `json:"average_risk_score" bson:"average_risk_score"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
	FinishedAt       time.Time `json:"finished_at,omitempty" bson:"finished_at"`
}

func (j *BatchScanJob) Done() bool {
	return j != nil && j.Completed+j.Failed >= len(j.TaskIDs) && len(j.TaskIDs) > 0
}
