package store

import "errors"

var (
	ErrShiftNotFound        = errors.New("shift not found")
	ErrShiftFull            = errors.New("shift has no remaining capacity")
	ErrShiftNotClaimable    = errors.New("shift not claimable")
	ErrAgencyNotAllowed     = errors.New("agency workers not allowed on shift")
	ErrAlreadyAssigned      = errors.New("worker already assigned to shift")
	ErrAssignmentNotFound   = errors.New("assignment not found")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrDuplicateApplication = errors.New("worker already applied to shift")
	ErrInvalidState         = errors.New("invalid assignment state")
	ErrRecordNotFound       = errors.New("time record not found")
	ErrInvalidEventOrder    = errors.New("time event out of order")
	ErrCheckInWindow        = errors.New("check-in outside allowed window")
	ErrReviewPending        = errors.New("flagged records pending review")
	ErrSettlementNotFound   = errors.New("settlement not found")
	ErrSessionNotFound      = errors.New("session not found")
)
