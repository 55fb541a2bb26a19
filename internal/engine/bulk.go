package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tsproxy/internal/calendar"
	"tsproxy/internal/domain"
	"tsproxy/internal/remote"
)

// BulkOptions are parameters for a bulk submission. EndDate may be empty,
// in which case the range collapses to StartDate.
type BulkOptions struct {
	Task      domain.TaskDescriptor
	StartDate string
	EndDate   string
}

// BulkResult holds one remote response per submission, in submission order.
type BulkResult struct {
	Single    bool
	Responses []json.RawMessage
}

// Value is what callers see: the lone response for a single date, the
// ordered list otherwise.
func (r BulkResult) Value() any {
	if r.Single && len(r.Responses) == 1 {
		return r.Responses[0]
	}
	if r.Responses == nil {
		return []json.RawMessage{}
	}
	return r.Responses
}

// Bulk creates one remote entry per business day of the range. A single
// explicit date is submitted even when it falls on a weekend.
func (e Engine) Bulk(ctx context.Context, cred domain.Credential, opts BulkOptions) (BulkResult, error) {
	if err := requireCredential(cred); err != nil {
		return BulkResult{}, err
	}
	if e.Config == nil {
		return BulkResult{}, errors.New("config not loaded")
	}
	if opts.Task.TaskID == 0 {
		return BulkResult{}, invalidInput("taskId is required")
	}
	r, err := parseRange(opts.StartDate, opts.EndDate)
	if err != nil {
		return BulkResult{}, err
	}

	single := r.Start.Equal(r.End)
	var days []time.Time
	if single {
		days = []time.Time{r.Start}
	} else {
		days = calendar.BusinessDays(r)
	}
	subs := make([]domain.DaySubmission, len(days))
	for i, d := range days {
		subs[i] = domain.DaySubmission{TaskID: opts.Task.TaskID, Activity: opts.Task.Activity, Date: d}
	}

	responses, err := e.dispatch(ctx, cred, subs)
	if err != nil {
		return BulkResult{}, err
	}
	return BulkResult{Single: single, Responses: responses}, nil
}

// dispatch runs every submission concurrently. The first failure decides
// the result; calls already in flight are left to finish.
func (e Engine) dispatch(ctx context.Context, cred domain.Credential, subs []domain.DaySubmission) ([]json.RawMessage, error) {
	batch := uuid.NewString()
	log := e.logger().With("batch", batch)
	out := make([]json.RawMessage, len(subs))

	var g errgroup.Group
	if n := e.maxConcurrency(); n > 0 {
		g.SetLimit(n)
	}
	started := time.Now()
	for i, sub := range subs {
		g.Go(func() error {
			date := calendar.FormatDate(sub.Date)
			log.Debug("submitting timesheet day", "date", date, "task_id", sub.TaskID)
			resp, err := e.Remote.Store(ctx, cred, e.storePayload(sub))
			if err != nil {
				log.Warn("timesheet day failed", "date", date, "error", err)
				return remoteFailure(KindRemoteFailure, err)
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("bulk submission done", "days", len(subs), "elapsed", time.Since(started))
	return out, nil
}

func (e Engine) storePayload(sub domain.DaySubmission) remote.StorePayload {
	date := calendar.FormatDate(sub.Date)
	return remote.StorePayload{
		TaskID:    sub.TaskID,
		Activity:  sub.Activity,
		StartTime: date + " " + e.Config.Workday.StartTime,
		EndTime:   date + " " + e.Config.Workday.EndTime,
	}
}

// parseRange parses YYYY-MM-DD bounds; an empty end means a single day.
func parseRange(start, end string) (domain.DateRange, error) {
	if start == "" {
		return domain.DateRange{}, invalidInput("startDate is required")
	}
	s, err := calendar.ParseDate(start)
	if err != nil {
		return domain.DateRange{}, invalidInput("%s", err.Error())
	}
	en := s
	if end != "" {
		if en, err = calendar.ParseDate(end); err != nil {
			return domain.DateRange{}, invalidInput("%s", err.Error())
		}
	}
	r, err := calendar.NewRange(s, en)
	if err != nil {
		return domain.DateRange{}, invalidInput("end date should be greater than start date")
	}
	return r, nil
}
