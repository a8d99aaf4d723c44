package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jgoulah/meterfeed/internal/logger"
)

// DefaultPastDueAfter is how late a tick may fire before it counts as past due
const DefaultPastDueAfter = time.Minute

// Job runs one cycle. pastDue reports that the tick fired late.
type Job func(ctx context.Context, pastDue bool) error

// Options configures a Scheduler
type Options struct {
	Spec         string // six fields, seconds first
	Location     *time.Location
	RunTimeout   time.Duration
	RunOnStart   bool
	PastDueAfter time.Duration
	Log          *logger.Log
}

// Scheduler runs a Job on a cron schedule. A tick that arrives while the
// previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	id      cron.EntryID
	job     Job
	opts    Options
	log     *logger.Entry
	baseCtx context.Context
	startup sync.WaitGroup
}

// New parses the schedule and prepares the scheduler
func New(opts Options, job Job) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.PastDueAfter <= 0 {
		opts.PastDueAfter = DefaultPastDueAfter
	}
	log := opts.Log
	if log == nil {
		log = logger.GetLogger()
	}
	entry := log.WithComponent("scheduler")

	cronLog := cron.PrintfLogger(entry)
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(opts.Location),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		job:     job,
		opts:    opts,
		log:     entry,
		baseCtx: context.Background(),
	}

	id, err := s.cron.AddFunc(opts.Spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", opts.Spec, err)
	}
	s.id = id
	return s, nil
}

// Start begins running ticks. Runs are canceled when ctx is.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseCtx = ctx
	s.cron.Start()
	if s.opts.RunOnStart {
		// The wrapped job shares the skip-if-running guard with the ticks
		job := s.cron.Entry(s.id).WrappedJob
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			job.Run()
		}()
	}
	s.log.WithFields(logger.Fields{
		"schedule": s.opts.Spec,
		"next":     s.Next().Format(time.RFC3339),
	}).Info("scheduler started")
}

// Stop prevents further ticks. The returned context is done once any
// running job has finished, including the one started by RunOnStart.
func (s *Scheduler) Stop() context.Context {
	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.startup.Wait()
		cancel()
	}()
	return ctx
}

// Next returns the time of the next tick
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

func (s *Scheduler) tick() {
	scheduled := s.cron.Entry(s.id).Prev
	s.execute(IsPastDue(scheduled, time.Now(), s.opts.PastDueAfter))
}

func (s *Scheduler) execute(pastDue bool) {
	ctx := s.baseCtx
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	if pastDue {
		s.log.Info("timer is past due")
	}
	if err := s.job(ctx, pastDue); err != nil {
		s.log.WithError(err).Error("run failed, waiting for next tick")
	}
}

// IsPastDue reports whether a tick scheduled for scheduled that started at
// started ran more than tolerance late
func IsPastDue(scheduled, started time.Time, tolerance time.Duration) bool {
	if scheduled.IsZero() {
		return false
	}
	return started.Sub(scheduled) > tolerance
}
