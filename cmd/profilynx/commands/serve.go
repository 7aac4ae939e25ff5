package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/bl4ck0w1/profilynx/internal/api"
	"github.com/bl4ck0w1/profilynx/internal/audit"
	"github.com/bl4ck0w1/profilynx/internal/orchestration"
	"github.com/bl4ck0w1/profilynx/internal/scheduler"
	"github.com/bl4ck0w1/profilynx/internal/storage"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan service with REST API and scheduler",
		Long: `Run profilynx as a long-lived service: the REST API accepts scan and task
requests, the worker pool drains the queue, scheduled rescans fire from the
configuration, and completed scans are persisted to the scan store.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "API listen address (overrides api.listen_addr)")
	cmd.Flags().String("metrics-listen", "", "Expose /metrics on its own address as well")

	_ = viper.BindPFlag("serve.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("serve.metrics_listen", cmd.Flags().Lookup("metrics-listen"))

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}
	if addr := viper.GetString("serve.listen"); addr != "" {
		cfg.API.ListenAddr = addr
	}

	logger := logrus.StandardLogger()

	st, err := buildStack(cfg, cfg.Probe, true)
	if err != nil {
		return err
	}
	defer st.Close()

	orch := orchestration.NewOrchestrator(st.coordinator, st.analyzer, cfg.Orchestrator, st.metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal, draining...")
		cancel()
	}()

	if cfg.Storage.Enabled {
		if err := utils.EnsureDir(filepath.Dir(cfg.Storage.Path)); err != nil {
			return fmt.Errorf("prepare storage dir: %w", err)
		}
		store, serr := storage.Open(cfg.Storage.Path, logger)
		if serr != nil {
			return fmt.Errorf("open scan store: %w", serr)
		}
		defer store.Close()
		orch.SetStore(store)

		if cfg.Audit.Enabled {
			auditLog := audit.New(store, cfg.Audit.BufferSize, logger)
			defer auditLog.Close()
			orch.SetAudit(auditLog)
		}
	} else if cfg.Audit.Enabled {
		logger.Warn("Audit logging requires storage, skipping")
	}

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	defer orch.Stop()

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler, orch, logger)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	if addr := viper.GetString("serve.metrics_listen"); addr != "" && cfg.Metrics.Enabled {
		go func() {
			if merr := st.metrics.StartServerWithContext(ctx, addr); merr != nil {
				logger.Warnf("Metrics server stopped: %v", merr)
			}
		}()
	}

	if !cfg.API.AuthEnabled {
		logger.Warn("API authentication is disabled")
	}

	srv := api.NewServer(cfg.API, st.coordinator, st.analyzer, orch, st.metrics, logger)
	logger.Infof("Serving API on %s", cfg.API.ListenAddr)
	return srv.Run(ctx)
}
