package domain

import "time"

type PaymentEventOutcome string

const (
	EventApplied PaymentEventOutcome = "applied"
	EventIgnored PaymentEventOutcome = "ignored"
	EventUnknown PaymentEventOutcome = "unknown"
	// EventProcessing marks an event that was recorded but not yet applied to completion.
	EventProcessing PaymentEventOutcome = "processing"
)

// PaymentEvent records every processor event id that was accepted, so redeliveries are acknowledged
// without being applied twice. A row still in EventProcessing is applied again on redelivery.
type PaymentEvent struct {
	ID         int64               `json:"id" gorm:"primaryKey"`
	EventRef   string              `json:"event_ref" gorm:"type:varchar(128);not null;uniqueIndex"`
	Type       string              `json:"type" gorm:"type:varchar(64);not null"`
	ObjectRef  string              `json:"object_ref" gorm:"type:varchar(128);index"`
	Outcome    PaymentEventOutcome `json:"outcome" gorm:"type:varchar(16);not null"`
	ReceivedAt time.Time           `json:"received_at" gorm:"autoCreateTime"`
}

func (PaymentEvent) TableName() string { return "payment_events" }
