package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"tsproxy/internal/calendar"
	"tsproxy/internal/domain"
	"tsproxy/internal/remote"
)

// Range returns the normalized day records between startDate and endDate
// inclusive, stitched together from one week report per week window.
func (e Engine) Range(ctx context.Context, cred domain.Credential, startDate, endDate string) ([]domain.TimesheetDayRecord, error) {
	if err := requireCredential(cred); err != nil {
		return nil, err
	}
	if endDate == "" {
		return nil, invalidInput("endDate is required")
	}
	r, err := parseRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return e.rangeRecords(ctx, cred, r)
}

func (e Engine) rangeRecords(ctx context.Context, cred domain.Credential, r domain.DateRange) ([]domain.TimesheetDayRecord, error) {
	windows := calendar.WeekWindows(r)
	weeks := make([][]remote.Day, len(windows))

	var g errgroup.Group
	if n := e.maxConcurrency(); n > 0 {
		g.SetLimit(n)
	}
	for i, w := range windows {
		g.Go(func() error {
			resp, err := e.Remote.Report(ctx, cred, w.End)
			if err != nil {
				return remoteFailure(KindAggregationFailure, err)
			}
			if !resp.OK() {
				return envelopeFailure(KindAggregationFailure, resp)
			}
			weeks[i] = resp.Data.Daily
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger().Warn("range aggregation failed", "start", calendar.FormatDate(r.Start), "end", calendar.FormatDate(r.End), "error", err)
		return nil, err
	}

	from, to := calendar.FormatDate(r.Start), calendar.FormatDate(r.End)
	seen := make(map[string]struct{})
	records := []domain.TimesheetDayRecord{}
	for _, week := range weeks {
		for _, day := range normalize(week) {
			if day.Date < from || day.Date > to {
				continue
			}
			if _, dup := seen[day.Date]; dup {
				continue
			}
			seen[day.Date] = struct{}{}
			records = append(records, day)
		}
	}
	return records, nil
}

// Latest returns the remote's most recent entries.
func (e Engine) Latest(ctx context.Context, cred domain.Credential) ([]domain.TimesheetDayRecord, error) {
	if err := requireCredential(cred); err != nil {
		return nil, err
	}
	resp, err := e.Remote.Latest(ctx, cred)
	if err != nil {
		return nil, remoteFailure(KindRemoteFailure, err)
	}
	if !resp.OK() {
		return nil, envelopeFailure(KindRemoteFailure, resp)
	}
	return normalize(resp.Data), nil
}

// ThisWeek returns the report for the week containing today.
func (e Engine) ThisWeek(ctx context.Context, cred domain.Credential) (domain.WeekSummary, error) {
	if err := requireCredential(cred); err != nil {
		return domain.WeekSummary{}, err
	}
	report, err := e.weekReport(ctx, cred, calendar.Day(e.now()))
	if err != nil {
		return domain.WeekSummary{}, err
	}
	return domain.WeekSummary{
		DurationWeek: report.DurationWeek,
		Daily:        normalize(report.Daily),
	}, nil
}

// ByDate returns the records for a single date.
func (e Engine) ByDate(ctx context.Context, cred domain.Credential, date string) ([]domain.TimesheetDayRecord, error) {
	if err := requireCredential(cred); err != nil {
		return nil, err
	}
	d, err := calendar.ParseDate(date)
	if err != nil {
		return nil, invalidInput("%s", err.Error())
	}
	report, err := e.weekReport(ctx, cred, d)
	if err != nil {
		return nil, err
	}
	want := calendar.FormatDate(d)
	records := []domain.TimesheetDayRecord{}
	for _, day := range normalize(report.Daily) {
		if day.Date == want {
			records = append(records, day)
		}
	}
	return records, nil
}

func (e Engine) weekReport(ctx context.Context, cred domain.Credential, anchor time.Time) (remote.WeekReport, error) {
	resp, err := e.Remote.Report(ctx, cred, anchor)
	if err != nil {
		return remote.WeekReport{}, remoteFailure(KindRemoteFailure, err)
	}
	if !resp.OK() {
		return remote.WeekReport{}, envelopeFailure(KindRemoteFailure, resp)
	}
	return resp.Data, nil
}

// normalize reshapes remote days into the canonical record, renaming
// activity_duration to duration.
func normalize(days []remote.Day) []domain.TimesheetDayRecord {
	out := make([]domain.TimesheetDayRecord, len(days))
	for i, d := range days {
		entries := make([]domain.Entry, len(d.Data))
		for j, en := range d.Data {
			entries[j] = domain.Entry{
				ID:        en.ID,
				TaskID:    en.TaskID,
				TaskTitle: en.TaskTitle,
				StartTime: en.StartTime,
				EndTime:   en.EndTime,
				Duration:  en.ActivityDuration,
				Activity:  en.Activity,
			}
		}
		out[i] = domain.TimesheetDayRecord{
			Date:          d.Date,
			TotalDuration: d.TotalDuration,
			Data:          entries,
		}
	}
	return out
}
