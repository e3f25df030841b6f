package review

import "parcelmarket/internal/pkg/apperr"

var (
	ErrBookingNotFound  = apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
	ErrProfileNotFound  = apperr.NotFound("PROFILE_NOT_FOUND", "profile not found")
	ErrNotFound         = apperr.NotFound("REVIEW_NOT_FOUND", "review not found")
	ErrSenderOnly       = apperr.Authorization("SENDER_ONLY", "only the sender of the booking may review it")
	ErrTravelerOnly     = apperr.Authorization("TRAVELER_ONLY", "only the reviewed traveler may respond")
	ErrNotReviewable    = apperr.State("BOOKING_NOT_REVIEWABLE", "a booking can be reviewed once it is delivered")
	ErrAlreadyReviewed  = apperr.Conflict("REVIEW_EXISTS", "this booking has already been reviewed")
	ErrAlreadyResponded = apperr.Conflict("REVIEW_RESPONSE_EXISTS", "this review already has a response")
)
