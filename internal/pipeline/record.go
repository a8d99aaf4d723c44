package pipeline

import (
	"time"

	"github.com/jgoulah/meterfeed/pkg/models"
)

// Record turns a run result into its history entry. err is the error Run
// returned, if any.
func (r *Result) Record(started, finished time.Time, pastDue bool, format string, err error) *models.Run {
	run := &models.Run{
		ID:         r.RunID,
		StartedAt:  started,
		FinishedAt: finished,
		PastDue:    pastDue,
		Outcome:    r.Outcome,
		Format:     format,
		Points:     r.Points,
		Rows:       r.Rows,
		Published:  r.Published,
	}
	if !r.Window.Since.IsZero() {
		run.Since = r.Window.SinceParam()
		run.Until = r.Window.UntilParam()
	}
	if r.Ack != nil {
		run.Bytes = r.Ack.Bytes
	}
	if err != nil {
		run.Outcome = models.OutcomeFailed
		run.Error = err.Error()
	}
	return run
}
