package store

import "shiftwork/shift-service/internal/models"

var assignmentTransitionMap = map[string][]string{
	"check_in":  {models.AssignmentAssigned},
	"check_out": {models.AssignmentCheckedIn},
	"complete":  {models.AssignmentCheckedOut},
	"cancel":    {models.AssignmentAssigned, models.AssignmentCheckedIn},
	"no_show":   {models.AssignmentAssigned},
}

func ValidAssignmentTransition(action, fromStatus string) bool {
	allowed, ok := assignmentTransitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

var shiftTransitionMap = map[string][]string{
	"publish":  {models.ShiftDraft},
	"cancel":   {models.ShiftDraft, models.ShiftOpen, models.ShiftFilled},
	"complete": {models.ShiftOpen, models.ShiftFilled},
}

func ValidShiftTransition(action, fromStatus string) bool {
	allowed, ok := shiftTransitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// nextTimeEventMap lists which event types may follow the latest live event
// within one assignment. Clock-in must come first; clock-out ends the
// sequence; break start/end alternate.
var nextTimeEventMap = map[string][]string{
	"":                     {models.EventClockIn},
	models.EventClockIn:    {models.EventBreakStart, models.EventClockOut},
	models.EventBreakStart: {models.EventBreakEnd, models.EventClockOut},
	models.EventBreakEnd:   {models.EventBreakStart, models.EventClockOut},
	models.EventClockOut:   {},
}

func ValidTimeEvent(lastEvent, nextEvent string) bool {
	allowed, ok := nextTimeEventMap[lastEvent]
	if !ok {
		return false
	}
	for _, event := range allowed {
		if event == nextEvent {
			return true
		}
	}
	return false
}
