package payment

import "parcelmarket/internal/domain"

// Result describes what happened to one delivered webhook.
type Result struct {
	EventRef  string                     `json:"event_id"`
	Type      string                     `json:"type"`
	Outcome   domain.PaymentEventOutcome `json:"outcome,omitempty"`
	Duplicate bool                       `json:"duplicate"`
}

type ErrorResponse struct {
	Success bool `json:"success" example:"false"`
	Error   struct {
		Code    string `json:"code" example:"INVALID_SIGNATURE"`
		Message string `json:"message" example:"webhook signature verification failed"`
	} `json:"error"`
}
