package store

import (
	"time"

	"shiftwork/shift-service/internal/models"
)

// WorkedMinutes reconciles an assignment's live time records into billable
// minutes: clock-out minus clock-in minus the sum of break durations. An
// unterminated break uses the clock-out instant as its implicit end. The
// result is clamped at zero; records marked deleted must be filtered by the
// caller.
func WorkedMinutes(records []models.TimeTrackingRecord, clockOut time.Time) int {
	var clockIn time.Time
	var breakStart time.Time
	var breakTotal time.Duration
	inBreak := false

	for _, record := range records {
		switch record.EventType {
		case models.EventClockIn:
			clockIn = record.RecordedAt
		case models.EventBreakStart:
			breakStart = record.RecordedAt
			inBreak = true
		case models.EventBreakEnd:
			if inBreak {
				breakTotal += record.RecordedAt.Sub(breakStart)
				inBreak = false
			}
		}
	}
	if inBreak {
		breakTotal += clockOut.Sub(breakStart)
	}

	if clockIn.IsZero() || !clockOut.After(clockIn) {
		return 0
	}

	worked := clockOut.Sub(clockIn) - breakTotal
	if worked < 0 {
		return 0
	}
	return int(worked / time.Minute)
}

// LastLiveEventType returns the event type of the latest non-deleted record,
// or "" when none exist. Records must be ordered by recorded time ascending.
func LastLiveEventType(records []models.TimeTrackingRecord) string {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].DeletedAt == nil {
			return records[i].EventType
		}
	}
	return ""
}
