package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var runPastDue bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the report once and publish it",
	Long: `Logs in to the portal, downloads the consumption report for the current
window and overwrites the configured blob with the gzip-compressed JSON.

If the portal rejects the login, an empty array is published instead
(or nothing, with on_auth_failure: skip) and the command still succeeds.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runPastDue, "past-due", false, "Mark this invocation as a late timer tick")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Schedule.RunTimeout)
		defer cancel()
	}

	r, err := newRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	if runPastDue {
		r.log.Info("timer is past due")
	}

	r.log.WithField("started", time.Now().Format(time.RFC3339)).Info("run started")
	return r.execute(ctx, runPastDue)
}
