package schedule

import "errors"

var (
	ErrInvalidSlotFormat = errors.New("invalid slot format")
	ErrMissingParty      = errors.New("patientId and docId are required")
	ErrMissingDate       = errors.New("date is required")
	ErrInvalidDate       = errors.New("invalid date")
	ErrPastSlot          = errors.New("cannot book appointment in the past")
	ErrSlotNotOffered    = errors.New("slot is not offered")
	ErrSlotConflict      = errors.New("slot already booked")
	ErrBookingFailed     = errors.New("booking failed")
	ErrLookupFailed      = errors.New("lookup failed")
	ErrNotFound          = errors.New("appointment not found")
)

// IsClientError reports whether err is a booking-policy violation the
// caller can fix by changing the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSlotFormat) ||
		errors.Is(err, ErrMissingParty) ||
		errors.Is(err, ErrMissingDate) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrPastSlot) ||
		errors.Is(err, ErrSlotNotOffered) ||
		errors.Is(err, ErrSlotConflict)
}
