package booking

import "parcelmarket/internal/pkg/apperr"

var (
	ErrNotFound                = apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
	ErrAnnouncementNotFound    = apperr.NotFound("ANNOUNCEMENT_NOT_FOUND", "announcement not found")
	ErrNotParticipant          = apperr.Authorization("NOT_PARTICIPANT", "only the sender or the traveler may access this booking")
	ErrSenderOnly              = apperr.Authorization("SENDER_ONLY", "only the sender may perform this action")
	ErrTravelerOnly            = apperr.Authorization("TRAVELER_ONLY", "only the traveler may perform this action")
	ErrOwnAnnouncement         = apperr.Validation("announcement_id", "cannot book your own announcement")
	ErrInvalidStatusTransition = apperr.State("INVALID_STATUS_TRANSITION", "booking cannot move to the requested status")
	ErrBookingDisputed         = apperr.State("BOOKING_DISPUTED", "booking is disputed and awaits resolution")
	ErrPaymentNotHeld          = apperr.State("PAYMENT_NOT_HELD", "payment is not held for this booking")
	ErrReleaseInProgress       = apperr.State("RELEASE_IN_PROGRESS", "fund release is already in progress")
	ErrBookingChanged          = apperr.State("BOOKING_CHANGED", "booking changed concurrently, retry the request")
	ErrNotCancelled            = apperr.State("BOOKING_NOT_CANCELLED", "only cancelled bookings can be deleted")
)
