package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskmill/internal/config"
	"taskmill/internal/handler"
	"taskmill/internal/lock"
	"taskmill/internal/logging"
	"taskmill/internal/queue"
	"taskmill/internal/worker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var batchSize int
	var maxIdle int
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the worker loop for a task group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if batchSize > 0 {
				cfg.Worker.BatchSize = batchSize
			}
			if maxIdle > 0 {
				cfg.Worker.MaxIdle = maxIdle
			}
			return runWorkerProcess(cmd, ctx, cfg, once)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Tasks fetched per poll (overrides config)")
	cmd.Flags().IntVar(&maxIdle, "max-idle", 0, "Empty polls before the worker exits (overrides config)")
	cmd.Flags().BoolVar(&once, "once", false, "Execute one batch of ready tasks and exit")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal the group's worker to stop after its current task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			group := ctx.group()

			locker, err := lock.New(cfg.Paths.LockDir, group)
			if err != nil {
				return err
			}
			held, err := locker.IsLocked()
			if err != nil {
				return err
			}
			if !held {
				fmt.Fprintf(cmd.OutOrStdout(), "No worker is running for group %q\n", group)
				return nil
			}

			path := stopFilePath(cfg, group)
			if err := os.WriteFile(path, nil, 0o644); err != nil {
				return fmt.Errorf("create stop file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stop requested for group %q (%s)\n", group, path)
			return nil
		},
	}
}

func runWorkerProcess(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, once bool) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	group := ctx.group()

	locker, err := lock.New(cfg.Paths.LockDir, group)
	if err != nil {
		return err
	}
	acquired, err := locker.Lock()
	if err != nil {
		return fmt.Errorf("acquire group lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("another worker already holds the lock for group %q", group)
	}
	defer locker.Unlock()

	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("taskmill-%s.log", group))
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg.DatabasePath())
	if err != nil {
		logger.Error("open task store", logging.Error(err))
		return err
	}
	defer store.Close()

	stopFile := stopFilePath(cfg, group)
	// A stop file left over from a previous run must not kill this one.
	if err := os.Remove(stopFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear stale stop file: %w", err)
	}

	eventLog := ""
	if cfg.Worker.EventLog {
		eventLog = filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("%s.events", group))
	}

	registry := handler.NewRegistry()
	registry.AllowClosures(cfg.Queue.AllowClosures)
	registerBuiltinHandlers(registry)

	w, err := worker.New(store, registry, logger, worker.Options{
		Group:        group,
		BatchSize:    cfg.Worker.BatchSize,
		MaxIdle:      cfg.Worker.MaxIdle,
		MinSleep:     time.Duration(cfg.Worker.MinSleepMS) * time.Millisecond,
		MaxSleep:     time.Duration(cfg.Worker.MaxSleepMS) * time.Millisecond,
		StopFile:     stopFile,
		EventLogPath: eventLog,
		Mode:         worker.ModeBatch,
		Out:          cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	if once {
		executed, err := w.RunOnce(signalCtx)
		w.Shutdown()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Executed %d tasks\n", executed)
		return nil
	}
	return w.Run(signalCtx)
}

func stopFilePath(cfg *config.Config, group string) string {
	if cfg.Worker.StopFile != "" {
		return cfg.Worker.StopFile
	}
	return filepath.Join(cfg.Paths.DataDir, fmt.Sprintf("%s.stop", group))
}
