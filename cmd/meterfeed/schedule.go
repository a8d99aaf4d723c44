package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfeed/internal/logger"
	"github.com/jgoulah/meterfeed/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run on the configured cron schedule until interrupted",
	Long: `Keeps running and executes a run on every tick of schedule.cron
(six fields, seconds first; default every six hours). Failed runs are
logged and the scheduler waits for the next tick.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	s, err := scheduler.New(scheduler.Options{
		Spec:       cfg.Schedule.Cron,
		Location:   loc,
		RunTimeout: cfg.Schedule.RunTimeout,
		RunOnStart: cfg.Schedule.RunOnStart,
		Log:        logger.GetLogger(),
	}, r.execute)
	if err != nil {
		return err
	}

	s.Start(ctx)
	<-ctx.Done()

	r.log.Info("shutting down, waiting for running job")
	<-s.Stop().Done()
	return nil
}
