package announcement

import "parcelmarket/internal/pkg/apperr"

var (
	ErrNotFound          = apperr.NotFound("ANNOUNCEMENT_NOT_FOUND", "announcement not found")
	ErrOwnerOnly         = apperr.Authorization("OWNER_ONLY", "only the traveler who posted the announcement may do this")
	ErrNotDraft          = apperr.State("ANNOUNCEMENT_NOT_DRAFT", "only draft announcements can be published")
	ErrDeparted          = apperr.State("ANNOUNCEMENT_DEPARTED", "departure date has passed")
	ErrHasActiveBookings = apperr.State("ANNOUNCEMENT_HAS_BOOKINGS", "announcement still has bookings holding weight")
	ErrHasOpenBookings   = apperr.State("ANNOUNCEMENT_HAS_OPEN_BOOKINGS", "pending or confirmed bookings must be resolved first")
	ErrNotCancellable    = apperr.State("ANNOUNCEMENT_NOT_CANCELLABLE", "announcement cannot be cancelled in its current status")
	ErrNotCompletable    = apperr.State("ANNOUNCEMENT_NOT_COMPLETABLE", "announcement cannot be completed in its current status")
)
