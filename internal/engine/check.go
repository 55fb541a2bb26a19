package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tsproxy/internal/calendar"
	"tsproxy/internal/domain"
)

const (
	fullDay  = "08:00:00"
	emptyDay = "00:00:00"
)

// CheckMonth classifies every reported day of the month against the
// eight-hour rule: weekends must be empty, weekdays exactly 08:00:00.
func (e Engine) CheckMonth(ctx context.Context, cred domain.Credential, year, month int) ([]domain.ValidityRecord, error) {
	if err := requireCredential(cred); err != nil {
		return nil, err
	}
	r, err := calendar.MonthBounds(year, month)
	if err != nil {
		return nil, invalidInput("%s", err.Error())
	}
	records, err := e.rangeRecords(ctx, cred, r)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ValidityRecord, 0, len(records))
	for _, rec := range records {
		date, err := calendar.ParseDate(rec.Date)
		if err != nil {
			continue
		}
		out = append(out, Classify(date, rec.TotalDuration))
	}
	return out, nil
}

// Classify applies the eight-hour rule to one day. Comparison is exact on
// the HH:MM:SS string.
func Classify(date time.Time, totalDuration string) domain.ValidityRecord {
	wd := date.Weekday()
	valid := totalDuration == fullDay
	if calendar.Weekend(date) {
		valid = totalDuration == emptyDay
	}
	return domain.ValidityRecord{
		Date:          date.Format(calendar.DateLayout),
		Day:           wd.String(),
		TotalDuration: totalDuration,
		Days:          int(wd),
		IsValid:       valid,
		Hours:         Hours(totalDuration).StringFixed(2),
	}
}

// Hours converts HH:MM:SS into decimal hours; malformed input counts as zero.
func Hours(duration string) decimal.Decimal {
	parts := strings.Split(duration, ":")
	if len(parts) != 3 {
		return decimal.Zero
	}
	var n [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return decimal.Zero
		}
		n[i] = v
	}
	seconds := decimal.NewFromInt(n[0]*3600 + n[1]*60 + n[2])
	return seconds.DivRound(decimal.NewFromInt(3600), 2)
}
