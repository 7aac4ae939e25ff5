package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/profilynx/internal/orchestration"
	"github.com/bl4ck0w1/profilynx/internal/reporting"
	"github.com/bl4ck0w1/profilynx/pkg/models"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

func NewBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [username ...]",
		Short: "Scan many usernames through the task queue",
		Long: `Submit a set of usernames as one batch job, drain it through the priority
worker pool and summarize the outcome. Usernames come from arguments, a
file, or both.`,
		Args: cobra.ArbitraryArgs,
		RunE: runBatch,
	}

	cmd.Flags().StringP("file", "f", "", "File with one username per line (# starts a comment)")
	cmd.Flags().String("priority", "medium", "Task priority (low, medium, high)")
	cmd.Flags().IntP("workers", "w", 0, "Worker pool size (default from config)")
	cmd.Flags().DurationP("timeout", "t", 30*time.Minute, "Overall batch deadline")
	cmd.Flags().StringP("output", "o", "", "Write a batch report into this directory")
	cmd.Flags().String("format", "", "Batch report format (json, csv, markdown)")

	_ = viper.BindPFlag("batch.file", cmd.Flags().Lookup("file"))
	_ = viper.BindPFlag("batch.priority", cmd.Flags().Lookup("priority"))
	_ = viper.BindPFlag("batch.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("batch.timeout", cmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("batch.output", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("batch.format", cmd.Flags().Lookup("format"))

	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	usernames := append([]string{}, args...)
	if path := viper.GetString("batch.file"); path != "" {
		fromFile, err := readUsernamesFile(path)
		if err != nil {
			return fmt.Errorf("read usernames file: %w", err)
		}
		usernames = append(usernames, fromFile...)
	}
	usernames = utils.RemoveDuplicates(usernames)
	if len(usernames) == 0 {
		return fmt.Errorf("no usernames given (pass them as arguments or via --file)")
	}

	priority, ok := models.ParsePriority(strings.ToLower(viper.GetString("batch.priority")))
	if !ok {
		return fmt.Errorf("priority must be low, medium or high")
	}

	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}
	if w := viper.GetInt("batch.workers"); w > 0 {
		cfg.Orchestrator.Workers = w
	}

	st, err := buildStack(cfg, cfg.Probe, false)
	if err != nil {
		return err
	}
	defer st.Close()

	orch := orchestration.NewOrchestrator(st.coordinator, st.analyzer, cfg.Orchestrator, st.metrics, logrus.StandardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("batch.timeout"))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	defer orch.Stop()

	jobID, err := orch.SubmitBatch(usernames, priority)
	if err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}
	logrus.Infof("Batch submitted with %d usernames, job ID: %s", len(usernames), jobID)

	job, err := monitorBatch(ctx, orch, jobID)
	if err != nil {
		return err
	}

	tasks := make([]models.ScanTask, 0, len(job.TaskIDs))
	for _, id := range job.TaskIDs {
		task, terr := orch.Status(id)
		if terr != nil {
			continue
		}
		tasks = append(tasks, task)
	}

	displayBatchSummary(job, tasks)

	outputDir := viper.GetString("batch.output")
	format := viper.GetString("batch.format")
	if outputDir != "" || format != "" {
		if outputDir == "" {
			outputDir = cfg.Reporting.OutputDir
		}
		repCfg := cfg.Reporting
		repCfg.OutputDir = outputDir
		gen, gerr := reporting.NewGenerator(repCfg, st.catalog, cmd.Root().Version, logrus.StandardLogger())
		if gerr != nil {
			return fmt.Errorf("init report generator: %w", gerr)
		}
		path, gerr := gen.ExportBatch(job, tasks, format)
		if gerr != nil {
			return fmt.Errorf("export batch report: %w", gerr)
		}
		logrus.Infof("Batch report written: %s", path)
	}

	return nil
}

func monitorBatch(ctx context.Context, orch *orchestration.Orchestrator, jobID string) (models.BatchScanJob, error) {
	displayProgress := func(done, total int) {
		if viper.GetBool("quiet") {
			return
		}
		barWidth := 50
		progress := 0.0
		if total > 0 {
			progress = float64(done) / float64(total)
		}
		completed := int(progress * float64(barWidth))
		if completed > barWidth {
			completed = barWidth
		}
		fmt.Printf("\r[%s%s] %d/%d tasks %.1f%%",
			strings.Repeat("=", completed),
			strings.Repeat(" ", barWidth-completed),
			done, total,
			progress*100,
		)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			if ctx.Err() == context.DeadlineExceeded {
				return models.BatchScanJob{}, fmt.Errorf("batch timed out after %v", viper.GetDuration("batch.timeout"))
			}
			logrus.Info("Batch cancelled by user, summarizing partial results")
			job, err := orch.Job(jobID)
			if err != nil {
				return models.BatchScanJob{}, fmt.Errorf("failed to get job status: %w", err)
			}
			return job, nil
		case <-ticker.C:
			job, err := orch.Job(jobID)
			if err != nil {
				fmt.Println()
				return models.BatchScanJob{}, fmt.Errorf("failed to get job status: %w", err)
			}
			displayProgress(job.Completed+job.Failed, len(job.TaskIDs))
			if job.Done() {
				fmt.Println()
				return job, nil
			}
		}
	}
}

func displayBatchSummary(job models.BatchScanJob, tasks []models.ScanTask) {
	duration := time.Since(job.CreatedAt)
	if !job.FinishedAt.IsZero() {
		duration = job.FinishedAt.Sub(job.CreatedAt)
	}

	summary := `
Batch Summary:
═══════════════════════════════════════════════════════════════
Job ID:           %s
Usernames:        %d
Completed:        %d
Failed:           %d
Average Risk:     %.3f
Duration:         %v
═══════════════════════════════════════════════════════════════
`
	fmt.Printf(summary,
		job.ID,
		len(job.Usernames),
		job.Completed,
		job.Failed,
		job.AverageRiskScore,
		utils.HumanizeDuration(duration),
	)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tSTATUS\tFOUND\tRISK\tERROR")
	for _, t := range tasks {
		found := 0
		risk := "-"
		if t.Result != nil {
			found = t.Result.ProfilesFound
			risk = fmt.Sprintf("%.3f", t.Result.RiskScore)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", t.Username, t.Status, found, risk, emptyIf(t.Error, "-"))
	}
	_ = w.Flush()
	fmt.Println()
}

func readUsernamesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

func emptyIf(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
