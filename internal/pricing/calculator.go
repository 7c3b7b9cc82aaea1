package pricing

import (
	"fmt"
	"math"
	"time"

	"equiprent/internal/domain"
	"equiprent/internal/models"
)

// Price returns the total for a rental. Daily rentals cost one day regardless of clock hours.
// Hourly rentals cost hourlyRate per hour and need a positive hour count.
func Price(mode models.RentalMode, hourlyRate, dailyRate models.Money, hours int) (models.Money, error) {
	switch mode {
	case models.ModeDaily:
		return dailyRate, nil
	case models.ModeHourly:
		if hours <= 0 {
			return 0, fmt.Errorf("%w: hourly rental needs a positive hour count, got %d", domain.ErrInvalidDuration, hours)
		}
		if hourlyRate > 0 && int64(hourlyRate) > math.MaxInt64/int64(hours) {
			return 0, fmt.Errorf("%w: %d hours overflows the price", domain.ErrInvalidDuration, hours)
		}
		return hourlyRate * models.Money(hours), nil
	default:
		return 0, fmt.Errorf("%w: unknown rental mode %q", domain.ErrInvalidDuration, mode)
	}
}

// Window derives the rental interval starting at start.
func Window(mode models.RentalMode, start time.Time, hours int) (models.Interval, error) {
	switch mode {
	case models.ModeDaily:
		return models.NewInterval(start, start.Add(models.DayLength))
	case models.ModeHourly:
		if hours <= 0 {
			return models.Interval{}, fmt.Errorf("%w: hourly rental needs a positive hour count, got %d", domain.ErrInvalidDuration, hours)
		}
		return models.NewInterval(start, start.Add(time.Duration(hours)*time.Hour))
	default:
		return models.Interval{}, fmt.Errorf("%w: unknown rental mode %q", domain.ErrInvalidDuration, mode)
	}
}

// CheckWindow reports whether interval is exactly the window mode and hours price.
// A daily rental spans DayLength; an hourly one spans hours hours.
func CheckWindow(mode models.RentalMode, interval models.Interval, hours int) error {
	want, err := Window(mode, interval.Start(), hours)
	if err != nil {
		return err
	}
	if got := interval.Duration(); got != want.Duration() {
		return fmt.Errorf("%w: %s rental spans %s, got %s", domain.ErrInvalidDuration, mode, want.Duration(), got)
	}
	return nil
}
