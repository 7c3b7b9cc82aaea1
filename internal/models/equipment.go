package models

import (
	"errors"
	"fmt"
	"time"
)

// Money is an amount in the smallest currency unit.
type Money int64

type Equipment struct {
	ID         string    `json:"id" yaml:"id"`
	OwnerID    string    `json:"owner_id" yaml:"owner_id"`
	Name       string    `json:"name" yaml:"name"`
	HourlyRate Money     `json:"hourly_rate" yaml:"hourly_rate"`
	DailyRate  Money     `json:"daily_rate" yaml:"daily_rate"`
	IsActive   bool      `json:"is_active" yaml:"is_active"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

func (e *Equipment) Validate() error {
	if e.ID == "" {
		return errors.New("equipment id is required")
	}
	if e.OwnerID == "" {
		return fmt.Errorf("equipment %s: owner is required", e.ID)
	}
	if e.HourlyRate < 0 || e.DailyRate < 0 {
		return fmt.Errorf("equipment %s: rates must be non-negative", e.ID)
	}
	return nil
}

// EquipmentUpdate carries the runtime-managed fields of an equipment.
// Nil fields keep their stored value.
type EquipmentUpdate struct {
	IsActive   *bool
	HourlyRate *Money
	DailyRate  *Money
}

func (u EquipmentUpdate) Validate() error {
	if u.IsActive == nil && u.HourlyRate == nil && u.DailyRate == nil {
		return errors.New("nothing to update")
	}
	if (u.HourlyRate != nil && *u.HourlyRate < 0) || (u.DailyRate != nil && *u.DailyRate < 0) {
		return errors.New("rates must be non-negative")
	}
	return nil
}

// Apply writes the set fields onto e.
func (u EquipmentUpdate) Apply(e *Equipment, at time.Time) {
	if u.IsActive != nil {
		e.IsActive = *u.IsActive
	}
	if u.HourlyRate != nil {
		e.HourlyRate = *u.HourlyRate
	}
	if u.DailyRate != nil {
		e.DailyRate = *u.DailyRate
	}
	e.UpdatedAt = at
}
