package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jgoulah/meterfeed/internal/config"
	"github.com/jgoulah/meterfeed/internal/database"
	"github.com/jgoulah/meterfeed/internal/logger"
	"github.com/jgoulah/meterfeed/internal/metrics"
	"github.com/jgoulah/meterfeed/internal/pipeline"
	"github.com/jgoulah/meterfeed/internal/publisher"
	"github.com/jgoulah/meterfeed/pkg/models"
)

// runner executes pipeline runs and does the bookkeeping around them:
// run history, Pushgateway metrics and the MQTT status message.
type runner struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	db       *database.DB
	metrics  *metrics.Recorder
	notifier *publisher.Notifier
	log      *logger.Entry
}

func newRunner(ctx context.Context, cfg *config.Config) (*runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.GetLogger()
	p, err := pipeline.FromConfig(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	r := &runner{
		cfg:      cfg,
		pipeline: p,
		metrics:  metrics.New(),
		log:      log.WithComponent("runner"),
	}

	db, err := openDB()
	if err != nil {
		r.log.WithError(err).Warn("run history disabled")
	} else {
		r.db = db
	}

	if cfg.MQTT.Enabled {
		notifier, err := publisher.NewNotifier(cfg.MQTT)
		if err != nil {
			// Status messages are best effort
			r.log.WithError(err).Warn("MQTT notifications disabled")
		} else {
			r.notifier = notifier
		}
	}

	return r, nil
}

// execute runs the pipeline once and returns the run error, if any.
// Bookkeeping failures are logged and never fail the run.
func (r *runner) execute(ctx context.Context, pastDue bool) error {
	started := time.Now()
	res, runErr := r.pipeline.Run(ctx)
	run := res.Record(started, time.Now(), pastDue, r.cfg.Portal.Format, runErr)

	entry := r.log.WithFields(logger.Fields{
		"run_id":    run.ID,
		"outcome":   run.Outcome,
		"past_due":  run.PastDue,
		"published": run.Published,
	})
	if runErr != nil {
		entry.WithError(runErr).Error("run failed")
	}

	r.record(ctx, entry, run)
	return runErr
}

func (r *runner) record(ctx context.Context, entry *logger.Entry, run *models.Run) {
	if r.db != nil {
		if err := r.db.InsertRun(run); err != nil {
			entry.WithError(err).Warn("recording run")
		}
	}

	r.metrics.ObserveRun(run)
	if err := r.metrics.Push(ctx, r.cfg.Metrics.PushgatewayURL, r.cfg.Metrics.Job); err != nil {
		entry.WithError(err).Warn("pushing metrics")
	}

	if r.notifier != nil {
		if err := r.notifier.NotifyRun(run); err != nil {
			entry.WithError(err).Warn("publishing run status")
		}
	}
}

func (r *runner) Close() {
	if r.notifier != nil {
		r.notifier.Close()
	}
	if r.db != nil {
		r.db.Close()
	}
}
