package domain

// Actor is the authenticated caller. It always comes from the verified token, never a request body.
type Actor struct {
	UserID int64
	Role   UserRole
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
