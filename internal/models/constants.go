package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

// ActiveStatuses are the statuses that count against availability.
var ActiveStatuses = []Status{StatusRequested, StatusAccepted}

// IsActive reports whether a booking in this status blocks its interval.
func (s Status) IsActive() bool {
	return s == StatusRequested || s == StatusAccepted
}

// IsTerminal reports whether no transition may leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown booking status %q", raw)
	}
	return s, nil
}

// RentalMode selects the pricing formula.
type RentalMode string

const (
	ModeHourly RentalMode = "hourly"
	ModeDaily  RentalMode = "daily"
)

func (m RentalMode) Valid() bool {
	return m == ModeHourly || m == ModeDaily
}

// ParseRentalMode accepts both the API names and the short "hour"/"day" forms.
func ParseRentalMode(raw string) (RentalMode, error) {
	switch raw {
	case "hourly", "hour":
		return ModeHourly, nil
	case "daily", "day":
		return ModeDaily, nil
	}
	return "", fmt.Errorf("unknown rental mode %q", raw)
}

// PaymentMethod is an opaque tag; settlement happens elsewhere.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch p := PaymentMethod(raw); p {
	case PaymentCOD, PaymentOnline:
		return p, nil
	}
	return "", fmt.Errorf("unknown payment method %q", raw)
}

const (
	// DayLength is the window of a daily rental.
	DayLength = 24 * time.Hour

	// DefaultIdempotencyTTL keeps replayable booking responses.
	DefaultIdempotencyTTL = 24 * time.Hour

	// DefaultActiveCacheTTL bounds the life of a cached active set.
	DefaultActiveCacheTTL = 30 * time.Second
)

// HourChoices are the hour counts offered to renters. The calculator accepts any positive count.
var HourChoices = []int{2, 4, 6, 8, 10, 12}
