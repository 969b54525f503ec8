package enums

import "fmt"

// BookingStatus is the lifecycle of a job (booking). Statuses only move
// forward; Rank gives the order.
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusPaid       BookingStatus = "paid"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

var bookingRank = map[BookingStatus]int{
	BookingStatusPending:    0,
	BookingStatusConfirmed:  1,
	BookingStatusInProgress: 2,
	BookingStatusCompleted:  3,
	BookingStatusPaid:       4,
}

func (s BookingStatus) IsValid() bool {
	if s == BookingStatusCancelled {
		return true
	}
	_, ok := bookingRank[s]
	return ok
}

// Advances reports whether moving from s to next is a forward step.
// Cancelled bookings never move.
func (s BookingStatus) Advances(next BookingStatus) bool {
	if s == BookingStatusCancelled || next == BookingStatusCancelled {
		return false
	}
	from, okFrom := bookingRank[s]
	to, okTo := bookingRank[next]
	return okFrom && okTo && to > from
}

func ParseBookingStatus(value string) (BookingStatus, error) {
	status := BookingStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status %q", value)
	}
	return status, nil
}
