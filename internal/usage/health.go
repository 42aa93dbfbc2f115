package usage

import (
	"slices"
	"time"

	"taskvoice/internal/domain"
	"taskvoice/internal/providers/airtable"
)

// Classify grades quota consumption. Low usage is always healthy; otherwise
// usage is healthy when the quota refreshes before the current burn rate
// would exhaust it.
func Classify(s domain.UsageSnapshot, now time.Time) domain.HealthStatus {
	if s.Percentage < 25 {
		return domain.HealthHealthy
	}

	if s.RefreshAt != nil {
		untilRefresh := s.RefreshAt.Sub(now)
		if untilRefresh <= 0 {
			return domain.HealthHealthy
		}

		if untilFull, ok := timeUntilFull(s); ok && untilRefresh < untilFull {
			return domain.HealthHealthy
		}

		if s.Percentage < 75 {
			return domain.HealthWarning
		}
	}

	if s.Percentage >= 75 {
		return domain.HealthDanger
	}
	return domain.HealthWarning
}

// timeUntilFull projects when usage reaches 100% from the oldest and newest
// history points. ok is false when the history shows no growth.
func timeUntilFull(s domain.UsageSnapshot) (time.Duration, bool) {
	if len(s.History) < 2 {
		return 0, false
	}
	oldest := s.History[0]
	newest := s.History[len(s.History)-1]

	elapsed := newest.Timestamp.Sub(oldest.Timestamp)
	growth := newest.Percentage - oldest.Percentage
	if elapsed <= 0 || growth <= 0 {
		return 0, false
	}

	perHour := growth / elapsed.Hours()
	hours := (100 - s.Percentage) / perHour
	return time.Duration(hours * float64(time.Hour)), true
}

// BuildSnapshot turns telemetry rows (newest first) into a snapshot. The
// newest row carrying a percentage is current; history is every non-zero
// sample since the last refresh, oldest first. ok is false when no row has
// a percentage.
func BuildSnapshot(records []airtable.UsageRecord, now time.Time) (domain.UsageSnapshot, bool) {
	latest := slices.IndexFunc(records, func(r airtable.UsageRecord) bool { return r.Percentage != nil })
	if latest < 0 {
		return domain.UsageSnapshot{}, false
	}

	snap := domain.UsageSnapshot{
		Percentage: *records[latest].Percentage,
		FetchedAt:  now,
		History:    []domain.UsagePoint{},
	}

	var refreshEpoch int64
	if epoch := records[latest].RefreshEpoch; epoch != nil {
		refreshEpoch = *epoch
		at := time.Unix(refreshEpoch, 0)
		snap.RefreshAt = &at
	}

	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Percentage == nil || *r.Percentage == 0 {
			continue
		}
		if refreshEpoch > 0 && r.CreatedTime.Unix() < refreshEpoch {
			continue
		}
		snap.History = append(snap.History, domain.UsagePoint{Percentage: *r.Percentage, Timestamp: r.CreatedTime})
	}

	snap.Health = Classify(snap, now)
	return snap, true
}
