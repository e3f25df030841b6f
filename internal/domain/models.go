package domain

// Models lists every persisted entity, in migration order.
func Models() []any {
	return []any{
		&Profile{},
		&Announcement{},
		&Booking{},
		&BookingEvent{},
		&Notification{},
		&PaymentEvent{},
		&Review{},
	}
}
