package scheduler

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// Submitter is the slice of the orchestrator the scheduler needs.
type Submitter interface {
	Submit(username string, platforms []string, priority models.TaskPriority) (string, error)
	SubmitProfile(username, profileName string, priority models.TaskPriority) (string, error)
}

// Scheduler turns configured rescan rules into recurring orchestrator
// submissions. Rules are fixed at startup; an invalid rule is logged and
// skipped, never fatal.
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	rules     []models.RescanRule
	logger    *logrus.Logger

	entries  []cron.EntryID
	skipped  int
	runs     atomic.Uint64
	failures atomic.Uint64
}

func New(cfg models.SchedulerConfig, submitter Submitter, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:      cron.New(cron.WithParser(parser)),
		submitter: submitter,
		rules:     cfg.Rescans,
		logger:    logger,
	}
}

func (s *Scheduler) Start() error {
	for i, rule := range s.rules {
		rule := rule
		log := s.logger.WithFields(logrus.Fields{
			"rule":     i,
			"username": rule.Username,
			"schedule": rule.Schedule,
		})

		if strings.TrimSpace(rule.Username) == "" {
			log.Warn("Skipping rescan rule without username")
			s.skipped++
			continue
		}

		priority, ok := models.ParsePriority(rule.Priority)
		if !ok {
			log.WithField("priority", rule.Priority).Warn("Unknown rescan priority, using medium")
		}

		id, err := s.cron.AddFunc(rule.Schedule, func() {
			s.fire(rule, priority)
		})
		if err != nil {
			log.WithError(err).Warn("Skipping rescan rule with invalid schedule")
			s.skipped++
			continue
		}
		s.entries = append(s.entries, id)
		log.WithField("priority", priority.String()).Info("Rescan rule scheduled")
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"rules_active":  len(s.entries),
		"rules_skipped": s.skipped,
	}).Info("Scheduler started")
	return nil
}

// Stop halts scheduling and waits for in-flight rule executions.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) fire(rule models.RescanRule, priority models.TaskPriority) {
	var (
		taskID string
		err    error
	)
	if rule.Profile != "" {
		taskID, err = s.submitter.SubmitProfile(rule.Username, rule.Profile, priority)
	} else {
		taskID, err = s.submitter.Submit(rule.Username, rule.Platforms, priority)
	}
	if err != nil {
		s.failures.Add(1)
		s.logger.WithFields(logrus.Fields{
			"username": rule.Username,
			"error":    err.Error(),
		}).Warn("Scheduled rescan submission failed")
		return
	}

	s.runs.Add(1)
	s.logger.WithFields(logrus.Fields{
		"username": rule.Username,
		"task_id":  taskID,
		"profile":  rule.Profile,
	}).Info("Scheduled rescan submitted")
}

func (s *Scheduler) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"rules_total":   len(s.rules),
		"rules_active":  len(s.entries),
		"rules_skipped": s.skipped,
		"runs":          s.runs.Load(),
		"failures":      s.failures.Load(),
	}
	var next time.Time
	for _, id := range s.entries {
		entry := s.cron.Entry(id)
		if entry.Next.IsZero() {
			continue
		}
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	if !next.IsZero() {
		stats["next_run"] = next.UTC().Format(time.RFC3339)
	}
	return stats
}
