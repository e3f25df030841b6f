package notification

import "parcelmarket/internal/pkg/apperr"

var ErrNotFound = apperr.NotFound("NOTIFICATION_NOT_FOUND", "notification not found")
