package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/profilynx/internal/storage"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

func NewReportsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Manage exported reports and raw analyses",
		Long: `Manage the files the scan and batch commands export: rendered reports
and raw analysis archives.`,
	}

	cmd.AddCommand(newReportsListCommand())
	cmd.AddCommand(newReportsViewCommand())
	cmd.AddCommand(newReportsCleanupCommand())
	return cmd
}

func newReportsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List exported report files",
		RunE:  runReportsList,
	}
	cmd.Flags().StringP("dir", "d", "", "Reports directory (default from config)")
	_ = viper.BindPFlag("reports.dir", cmd.Flags().Lookup("dir"))
	return cmd
}

func newReportsViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view <file>",
		Short: "View a report or re-display a raw analysis",
		Long: `Print a rendered report, or re-display the scan summary for a raw
analysis archive (scan_*.json, optionally gzipped).`,
		Args: cobra.ExactArgs(1),
		RunE: runReportsView,
	}
}

func newReportsCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete raw analysis archives past a retention window",
		RunE:  runReportsCleanup,
	}
	cmd.Flags().StringP("dir", "d", "", "Reports directory (default from config)")
	cmd.Flags().String("older-than", "720h", "Delete archives older than this duration")
	_ = viper.BindPFlag("reports.cleanup_dir", cmd.Flags().Lookup("dir"))
	_ = viper.BindPFlag("reports.older_than", cmd.Flags().Lookup("older-than"))
	return cmd
}

func runReportsList(cmd *cobra.Command, args []string) error {
	dir, err := reportsDir(viper.GetString("reports.dir"))
	if err != nil {
		return err
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logrus.Infof("No reports directory found at %s", dir)
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list report files: %w", err)
	}

	files := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tTYPE\tSIZE\tMODIFIED")
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ierr := entry.Info()
		if ierr != nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			entry.Name(),
			reportKind(entry.Name()),
			utils.HumanizeBytes(info.Size()),
			info.ModTime().Format("2006-01-02 15:04"),
		)
		files++
	}

	if files == 0 {
		logrus.Info("No reports found")
		return nil
	}

	fmt.Printf("Reports in %s:\n", dir)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	_ = w.Flush()
	return nil
}

func runReportsView(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !utils.FileExists(path) {
		dir, err := reportsDir("")
		if err != nil {
			return err
		}
		path = filepath.Join(dir, args[0])
	}

	base := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(base, "scan_") && (strings.HasSuffix(base, ".json") || strings.HasSuffix(base, ".json.gz")) {
		exporter, err := storage.NewExporter(filepath.Dir(path), false, 0, logrus.StandardLogger())
		if err != nil {
			return err
		}
		defer exporter.Close()
		analysis, err := exporter.Load(path)
		if err != nil {
			return fmt.Errorf("load analysis: %w", err)
		}
		displayScanSummary(analysis)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runReportsCleanup(cmd *cobra.Command, args []string) error {
	dir, err := reportsDir(viper.GetString("reports.cleanup_dir"))
	if err != nil {
		return err
	}
	olderThan, err := time.ParseDuration(viper.GetString("reports.older_than"))
	if err != nil || olderThan <= 0 {
		return fmt.Errorf("invalid --older-than duration %q", viper.GetString("reports.older_than"))
	}

	exporter, err := storage.NewExporter(dir, false, olderThan, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer exporter.Close()

	removed, err := exporter.Prune()
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	logrus.Infof("Removed %d archives older than %v from %s", removed, olderThan, dir)
	return nil
}

func reportsDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return "", err
	}
	return cfg.Reporting.OutputDir, nil
}

func reportKind(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "scan_"):
		return "raw"
	case strings.HasPrefix(lower, "profilynx_batch_"):
		return "batch"
	case strings.HasPrefix(lower, "profilynx_"):
		return "report"
	default:
		return "-"
	}
}
