package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/profilynx/internal/api"
	"github.com/bl4ck0w1/profilynx/pkg/models"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

func NewConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Manage profilynx configuration",
		Long: `Manage the profilynx configuration file, inspect effective settings,
and generate API credentials.`,
	}

	cmd.AddCommand(newConfigureInitCommand())
	cmd.AddCommand(newConfigureShowCommand())
	cmd.AddCommand(newConfigureValidateCommand())
	cmd.AddCommand(newConfigureKeygenCommand())
	cmd.AddCommand(newConfigureTokenCommand())
	return cmd
}

func newConfigureInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Long:  `Write a configuration file with default values (YAML). Defaults to $HOME/.profilynx/config.yaml.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigureInit,
	}
}

func newConfigureShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration the other commands would run with, after defaults, file, env and flags are merged.`,
		RunE:  runConfigureShow,
	}
}

func newConfigureValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a configuration file",
		Long:  `Load a configuration file and report whether it passes validation. Defaults to the discovered config file.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigureValidate,
	}
}

func newConfigureKeygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key and its hash",
		Long: `Generate a random API key and the bcrypt hash to store under
api.api_key_hash. The key itself is shown once and never persisted.`,
		RunE: runConfigureKeygen,
	}
	cmd.Flags().Bool("write", false, "Write the hash into the configuration file")
	_ = viper.BindPFlag("configure.keygen_write", cmd.Flags().Lookup("write"))
	return cmd
}

func newConfigureTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT for API access",
		Long:  `Issue a bearer token signed with api.jwt_secret from the configuration.`,
		RunE:  runConfigureToken,
	}
	cmd.Flags().String("subject", "cli", "Token subject")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = viper.BindPFlag("configure.token_subject", cmd.Flags().Lookup("subject"))
	_ = viper.BindPFlag("configure.token_ttl", cmd.Flags().Lookup("ttl"))
	return cmd
}

func runConfigureInit(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath(args)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		logrus.Warnf("Configuration file already exists: %s", path)
		ok, ierr := confirmOverwrite()
		if ierr != nil {
			return ierr
		}
		if !ok {
			logrus.Info("Configuration initialization cancelled")
			return nil
		}
	}

	if err := models.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	logrus.Infof("Configuration initialized: %s", path)
	logrus.Info("Edit this file to customize defaults. Run `profilynx configure show` to view.")
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}

	source := viper.ConfigFileUsed()
	if source == "" {
		source = "(defaults)"
	}
	fmt.Printf("Configuration source: %s\n", source)
	fmt.Println("═══════════════════════════════════════════════════════════════")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "GENERAL:\t")
	fmt.Fprintf(w, "  Log Level:\t%s\n", cfg.Global.LogLevel)
	fmt.Fprintf(w, "  Log Format:\t%s\n", cfg.Global.LogFormat)
	fmt.Fprintf(w, "  Data Dir:\t%s\n", cfg.Global.DataDir)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PROBE:\t")
	fmt.Fprintf(w, "  Max Concurrent:\t%d\n", cfg.Probe.MaxConcurrentRequests)
	fmt.Fprintf(w, "  Timeout:\t%s\n", cfg.Probe.Timeout)
	fmt.Fprintf(w, "  Retry Attempts:\t%d\n", cfg.Probe.RetryAttempts)
	fmt.Fprintf(w, "  Jitter:\t%s..%s\n", cfg.Probe.Timing.JitterMin, cfg.Probe.Timing.JitterMax)
	fmt.Fprintf(w, "  Proxies:\t%t (%d endpoints)\n", cfg.Probe.Proxies.Enabled, len(cfg.Probe.Proxies.Endpoints))
	fmt.Fprintf(w, "  DNS Rotation:\t%t\n", cfg.Probe.DNS.Rotate)
	fmt.Fprintf(w, "  TLS Camouflage:\t%t\n", cfg.Probe.TLS.Camouflage)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ORCHESTRATOR:\t")
	fmt.Fprintf(w, "  Workers:\t%d\n", cfg.Orchestrator.Workers)
	fmt.Fprintf(w, "  Queue Capacity:\t%d\n", cfg.Orchestrator.QueueCapacity)
	fmt.Fprintf(w, "  Task Timeout:\t%s\n", cfg.Orchestrator.TaskTimeout)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ANALYSIS:\t")
	fmt.Fprintf(w, "  Cache Backend:\t%s\n", cfg.Analysis.CacheBackend)
	fmt.Fprintf(w, "  Cache TTL:\t%s\n", cfg.Analysis.CacheTTL)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STORAGE:\t")
	fmt.Fprintf(w, "  Enabled:\t%t\n", cfg.Storage.Enabled)
	fmt.Fprintf(w, "  Path:\t%s\n", cfg.Storage.Path)
	fmt.Fprintf(w, "  Retention:\t%d days\n", cfg.Storage.RetentionDays)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "API:\t")
	fmt.Fprintf(w, "  Enabled:\t%t\n", cfg.API.Enabled)
	fmt.Fprintf(w, "  Listen:\t%s\n", cfg.API.ListenAddr)
	fmt.Fprintf(w, "  Auth:\t%t\n", cfg.API.AuthEnabled)
	if cfg.API.JWTSecret != "" {
		fmt.Fprintf(w, "  JWT Secret:\t%s\n", utils.MaskSensitiveData(cfg.API.JWTSecret))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SCHEDULER:\t")
	fmt.Fprintf(w, "  Enabled:\t%t\n", cfg.Scheduler.Enabled)
	fmt.Fprintf(w, "  Rescan Rules:\t%d\n", len(cfg.Scheduler.Rescans))
	fmt.Fprintln(w)

	_ = w.Flush()
	return nil
}

func runConfigureValidate(cmd *cobra.Command, args []string) error {
	path := viper.ConfigFileUsed()
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		path = strings.TrimSpace(args[0])
	}
	if path == "" {
		return fmt.Errorf("no configuration file found (pass a path or run `profilynx configure init`)")
	}

	cfg := models.DefaultConfig()
	if err := cfg.Load(path); err != nil {
		return err
	}
	logrus.Infof("Configuration is valid: %s", path)
	return nil
}

func runConfigureKeygen(cmd *cobra.Command, args []string) error {
	key, err := api.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generate api key: %w", err)
	}
	hash, err := api.HashAPIKey(key)
	if err != nil {
		return fmt.Errorf("hash api key: %w", err)
	}

	fmt.Printf("API key:  %s\n", key)
	fmt.Printf("Key hash: %s\n", hash)

	if !viper.GetBool("configure.keygen_write") {
		fmt.Println("\nStore the hash under api.api_key_hash; clients send the key in X-API-Key.")
		return nil
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		return fmt.Errorf("no configuration file to update (run `profilynx configure init` first)")
	}
	cfg := models.DefaultConfig()
	if err := cfg.Load(path); err != nil {
		return err
	}
	cfg.API.APIKeyHash = hash
	cfg.API.AuthEnabled = true
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("update configuration: %w", err)
	}
	logrus.Infof("Wrote api.api_key_hash to %s", path)
	return nil
}

func runConfigureToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}
	if cfg.API.JWTSecret == "" {
		return fmt.Errorf("api.jwt_secret is not configured")
	}

	token, err := api.IssueToken(cfg.API.JWTSecret, viper.GetString("configure.token_subject"), viper.GetDuration("configure.token_ttl"))
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func resolveConfigPath(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".profilynx", "config.yaml"), nil
}

func confirmOverwrite() (bool, error) {
	fmt.Print("Configuration file already exists. Overwrite? (y/N): ")
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	resp = strings.TrimSpace(resp)
	return resp == "y" || resp == "Y", nil
}
