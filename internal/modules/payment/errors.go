package payment

import "parcelmarket/internal/pkg/apperr"

var (
	ErrInvalidSignature = &apperr.Error{Kind: apperr.KindValidation, Code: "INVALID_SIGNATURE", Message: "webhook signature verification failed"}
	ErrMalformedEvent   = &apperr.Error{Kind: apperr.KindValidation, Code: "MALFORMED_EVENT", Message: "webhook payload is malformed"}
)
