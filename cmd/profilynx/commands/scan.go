package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/profilynx/internal/orchestration"
	"github.com/bl4ck0w1/profilynx/internal/reporting"
	"github.com/bl4ck0w1/profilynx/internal/scanning"
	"github.com/bl4ck0w1/profilynx/internal/storage"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <username>",
		Short: "Probe the platform catalog for a username",
		Long: `Probe every selected platform for a username, classify each response and
print the correlated risk profile. Variants extend the search to plausible
alternate handles of the same person.`,
		Args: cobra.ExactArgs(1),
		RunE: runScan,
	}

	cmd.Flags().StringSliceP("platforms", "p", nil, "Platform ids to probe (default: profile selection)")
	cmd.Flags().String("profile", "standard", "Scan profile (quick, standard, thorough)")
	cmd.Flags().Int("variants", 0, "Also scan up to N generated username variants")
	cmd.Flags().DurationP("timeout", "t", 5*time.Minute, "Overall scan deadline")
	cmd.Flags().StringP("format", "f", "", "Report format (json, csv, markdown; default from config)")
	cmd.Flags().StringP("output", "o", "", "Write a report file into this directory")
	cmd.Flags().Bool("raw", false, "Also export the raw analysis JSON next to the report")
	cmd.Flags().Bool("json", false, "Print the full analysis as JSON instead of a summary")

	_ = viper.BindPFlag("scan.platforms", cmd.Flags().Lookup("platforms"))
	_ = viper.BindPFlag("scan.profile", cmd.Flags().Lookup("profile"))
	_ = viper.BindPFlag("scan.variants", cmd.Flags().Lookup("variants"))
	_ = viper.BindPFlag("scan.timeout", cmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("scan.format", cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("scan.output", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("scan.raw", cmd.Flags().Lookup("raw"))
	_ = viper.BindPFlag("scan.json", cmd.Flags().Lookup("json"))

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	username, err := scanning.NormalizeUsername(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}

	profileName := viper.GetString("scan.profile")
	profile, ok := orchestration.ResolveProfile(profileName)
	if !ok {
		return fmt.Errorf("unknown scan profile %q (available: %s)", profileName, strings.Join(orchestration.ProfileNames(), ", "))
	}

	st, err := buildStack(cfg, profile.Apply(cfg.Probe), false)
	if err != nil {
		return err
	}
	defer st.Close()

	platformIDs := viper.GetStringSlice("scan.platforms")
	if len(platformIDs) == 0 {
		platformIDs = profile.PlatformIDs(st.catalog)
	}

	usernames := []string{username}
	if n := viper.GetInt("scan.variants"); n > 0 {
		usernames = scanning.ExpandVariants(username, n+1)
		logrus.Infof("Expanded %s into %d handles", username, len(usernames))
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("scan.timeout"))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	logrus.Infof("Starting scan for username: %s", username)

	for _, handle := range usernames {
		result, err := st.coordinator.RunScan(ctx, handle, platformIDs)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("scan aborted: %w", ctx.Err())
			}
			return fmt.Errorf("scan %s: %w", handle, err)
		}
		st.analyzer.Analyze(ctx, result)

		if viper.GetBool("scan.json") {
			out, merr := json.MarshalIndent(result, "", "  ")
			if merr != nil {
				return fmt.Errorf("encode analysis: %w", merr)
			}
			fmt.Println(string(out))
		} else {
			displayScanSummary(result)
		}

		if err := exportScan(cmd, cfg, st, result); err != nil {
			return err
		}
	}

	return nil
}

func exportScan(cmd *cobra.Command, cfg *models.Config, st *scanStack, result *models.ScanAnalysis) error {
	outputDir := viper.GetString("scan.output")
	format := viper.GetString("scan.format")
	if outputDir == "" && format == "" && !viper.GetBool("scan.raw") {
		return nil
	}
	if outputDir == "" {
		outputDir = cfg.Reporting.OutputDir
	}

	repCfg := cfg.Reporting
	repCfg.OutputDir = outputDir
	gen, err := reporting.NewGenerator(repCfg, st.catalog, cmd.Root().Version, logrus.StandardLogger())
	if err != nil {
		return fmt.Errorf("init report generator: %w", err)
	}
	path, err := gen.Export(result, format)
	if err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	logrus.Infof("Report written: %s", path)

	if viper.GetBool("scan.raw") {
		retention := time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour
		exporter, err := storage.NewExporter(outputDir, cfg.Storage.Compress, retention, logrus.StandardLogger())
		if err != nil {
			return fmt.Errorf("init raw exporter: %w", err)
		}
		defer exporter.Close()
		rawPath, err := exporter.Export(result)
		if err != nil {
			return fmt.Errorf("export raw analysis: %w", err)
		}
		logrus.Infof("Raw analysis written: %s", rawPath)
	}
	return nil
}

func displayScanSummary(result *models.ScanAnalysis) {
	summary := `
Scan Summary:
═══════════════════════════════════════════════════════════════
Username:         %s
Scan ID:          %s
Platforms Probed: %d
Profiles Found:   %d
Risk Score:       %.3f (%s)
Scan Duration:    %v
═══════════════════════════════════════════════════════════════
`
	fmt.Printf(summary,
		result.Username,
		result.ScanID,
		result.TotalPlatforms,
		result.ProfilesFound,
		result.RiskScore,
		result.RiskLevel.Label,
		result.Duration.Round(time.Millisecond),
	)

	found := result.FoundResults()
	if len(found) > 0 {
		sort.Slice(found, func(i, j int) bool { return found[i].Platform < found[j].Platform })
		fmt.Println("Found Profiles:")
		for _, r := range found {
			fmt.Printf("  %-16s %-44s (confidence %.2f)\n", r.PlatformName, r.URL, r.Confidence)
		}
		fmt.Println()
	}

	if c := result.Correlation; c != nil && len(c.Patterns) > 0 {
		fmt.Printf("Correlation: patterns [%s], confidence %.2f\n\n", strings.Join(c.Patterns, ", "), c.Confidence)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("Completed with %d platform errors (see logs for details)\n\n", len(result.Errors))
	}
}
