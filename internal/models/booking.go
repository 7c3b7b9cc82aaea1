package models

import "time"

type Booking struct {
	ID            string        `json:"id"`
	EquipmentID   string        `json:"equipment_id"`
	RenterID      string        `json:"renter_id"`
	OwnerID       string        `json:"owner_id"`
	Interval      Interval      `json:"interval"`
	Mode          RentalMode    `json:"mode"`
	Hours         int           `json:"hours,omitempty"` // hourly only
	TotalPrice    Money         `json:"total_price"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        Status        `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Clone returns a copy that shares nothing mutable with b.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// BookingRequest carries the renter's input to a new booking.
type BookingRequest struct {
	EquipmentID   string
	RenterID      string
	Interval      Interval
	Mode          RentalMode
	Hours         int
	PaymentMethod PaymentMethod
}

// BookingFilter narrows a listing. Empty fields match everything.
type BookingFilter struct {
	EquipmentID string
	RenterID    string
	OwnerID     string
	Statuses    []Status
}

// Match reports whether b passes the filter.
func (f BookingFilter) Match(b *Booking) bool {
	if f.EquipmentID != "" && b.EquipmentID != f.EquipmentID {
		return false
	}
	if f.RenterID != "" && b.RenterID != f.RenterID {
		return false
	}
	if f.OwnerID != "" && b.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if b.Status == s {
			return true
		}
	}
	return false
}
