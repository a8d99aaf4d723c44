// Package pipeline runs one authenticate, fetch, normalize and publish
// cycle against the W1000 portal.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jgoulah/meterfeed/internal/config"
	"github.com/jgoulah/meterfeed/internal/logger"
	"github.com/jgoulah/meterfeed/internal/publisher"
	"github.com/jgoulah/meterfeed/internal/scraper"
	"github.com/jgoulah/meterfeed/pkg/models"
)

// EmptyPayload is published when the portal refuses the login
var EmptyPayload = []byte("[]")

// Authenticator opens a portal session
type Authenticator interface {
	Authenticate(ctx context.Context, creds scraper.Credentials) (*scraper.Session, error)
}

// Publisher uploads the final payload
type Publisher interface {
	Publish(ctx context.Context, payload []byte) (*publisher.Ack, error)
}

// Options wires a Pipeline
type Options struct {
	Authenticator Authenticator
	Fetcher       scraper.Fetcher
	Publisher     Publisher
	Credentials   scraper.Credentials
	ReportID      string
	BillingMonth  time.Month
	BillingDay    int
	Location      *time.Location
	OnAuthFailure string // config.AuthFailurePublishEmpty or config.AuthFailureSkip
	Now           func() time.Time
	Log           *logger.Log
}

// Pipeline is a configured run. It holds no state between runs.
type Pipeline struct {
	opts Options
	log  *logger.Entry
}

// Result summarizes a run. It is returned alongside any error so the
// caller can record failed runs too.
type Result struct {
	RunID     string
	Outcome   string
	Window    scraper.DateWindow
	Payload   []byte
	Points    int
	Rows      int
	Ack       *publisher.Ack
	Published bool
}

// New creates a Pipeline
func New(opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.OnAuthFailure == "" {
		opts.OnAuthFailure = config.AuthFailurePublishEmpty
	}
	log := opts.Log
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{
		opts: opts,
		log:  log.WithComponent("pipeline"),
	}
}

// FromConfig builds the production pipeline for a validated config
func FromConfig(ctx context.Context, cfg *config.Config, log *logger.Log) (*Pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	extractor, err := scraper.NewTokenExtractor(cfg.Portal.TokenStrategy)
	if err != nil {
		return nil, err
	}

	auth, err := scraper.NewAuthenticator(scraper.AuthenticatorOptions{
		BaseURL:   cfg.Portal.BaseURL,
		Timeout:   cfg.Portal.Timeout,
		UserAgent: cfg.Portal.UserAgent,
		Extractor: extractor,
	})
	if err != nil {
		return nil, err
	}

	fetcher, err := scraper.NewFetcher(cfg.Portal.Format)
	if err != nil {
		return nil, err
	}

	store, err := publisher.NewStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Authenticator: auth,
		Fetcher:       fetcher,
		Publisher:     publisher.New(store, cfg.Storage.Container, cfg.Storage.Blob, cfg.Storage.Timeout),
		Credentials: scraper.Credentials{
			Username: cfg.Portal.Username,
			Password: cfg.Portal.Password,
		},
		ReportID:      cfg.Portal.ReportID,
		BillingMonth:  time.Month(cfg.Portal.BillingStartMonth),
		BillingDay:    cfg.Portal.BillingStartDay,
		Location:      loc,
		OnAuthFailure: cfg.Portal.OnAuthFailure,
		Log:           log,
	}), nil
}

// Run executes one cycle. Authentication failures are not errors: they
// yield an auth_failed result and, under the publish-empty policy, an
// empty array in place of the previous data. Anything else aborts the run
// before publishing.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:   uuid.NewString(),
		Outcome: models.OutcomeFailed,
	}
	log := p.log.WithFields(logger.Fields{"run_id": res.RunID})

	start := time.Now()
	session, err := p.opts.Authenticator.Authenticate(ctx, p.opts.Credentials)
	logger.LogDuration(log, "authenticate", time.Since(start))
	if err != nil {
		if !scraper.IsAuthError(err) {
			return res, fmt.Errorf("authenticating: %w", err)
		}
		return p.authFailed(ctx, log, res, err)
	}

	res.Window = scraper.ComputeWindow(p.opts.Now().In(p.opts.Location), p.opts.BillingMonth, p.opts.BillingDay)
	log = log.WithFields(logger.Fields{
		"since":  res.Window.SinceParam(),
		"until":  res.Window.UntilParam(),
		"format": string(p.opts.Fetcher.Format()),
	})

	start = time.Now()
	report, err := p.opts.Fetcher.Fetch(ctx, session, p.opts.ReportID, res.Window)
	logger.LogDuration(log, "fetch", time.Since(start))
	if err != nil {
		return res, fmt.Errorf("fetching report: %w", err)
	}

	payload, points, rows, err := p.normalize(log, report)
	if err != nil {
		return res, err
	}
	res.Payload = payload
	res.Points = points
	res.Rows = rows

	if err := p.publish(ctx, log, res); err != nil {
		return res, err
	}
	res.Outcome = models.OutcomeOK

	log.WithFields(logger.Fields{
		"points": res.Points,
		"rows":   res.Rows,
		"bytes":  res.Ack.Bytes,
	}).Info("run complete")
	return res, nil
}

func (p *Pipeline) authFailed(ctx context.Context, log *logger.Entry, res *Result, authErr error) (*Result, error) {
	res.Outcome = models.OutcomeAuthFailed
	log.WithFields(logger.Fields{"policy": p.opts.OnAuthFailure}).Error(authErr.Error())

	if p.opts.OnAuthFailure == config.AuthFailureSkip {
		log.Warn("leaving previous blob in place")
		return res, nil
	}

	res.Payload = EmptyPayload
	if err := p.publish(ctx, log, res); err != nil {
		return res, err
	}
	return res, nil
}

// normalize returns the payload to publish with its metering point and
// reading counts.
func (p *Pipeline) normalize(log *logger.Entry, report scraper.RawReport) ([]byte, int, int, error) {
	switch report.Format {
	case scraper.ReportCSV:
		series, err := scraper.Normalize(strings.NewReader(report.Body), p.opts.Location)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("normalizing report: %w", err)
		}
		payload, err := json.Marshal(series)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("encoding series: %w", err)
		}
		return payload, len(series), scraper.CountReadings(series), nil

	case scraper.ReportJSON:
		// Published verbatim; decoding is only for the counts
		var series []models.Series
		if err := json.Unmarshal([]byte(report.Body), &series); err != nil {
			log.WithError(err).Warn("chart data is not in series form, publishing as is")
			return []byte(report.Body), 0, 0, nil
		}
		return []byte(report.Body), len(series), scraper.CountReadings(series), nil

	default:
		return nil, 0, 0, fmt.Errorf("unknown report format: %s", report.Format)
	}
}

func (p *Pipeline) publish(ctx context.Context, log *logger.Entry, res *Result) error {
	start := time.Now()
	ack, err := p.opts.Publisher.Publish(ctx, res.Payload)
	logger.LogDuration(log, "publish", time.Since(start))
	if err != nil {
		return err
	}
	res.Ack = ack
	res.Published = true
	log.WithFields(logger.Fields{
		"backend":   ack.Backend,
		"container": ack.Container,
		"blob":      ack.Blob,
		"bytes":     ack.Bytes,
		"sha256":    ack.SHA256,
	}).Info("published")
	return nil
}
