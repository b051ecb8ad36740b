package models

import "time"

// Match pairs a user with their partner for one UTC day.
type Match struct {
	UserID    int64
	PartnerID int64
	MatchDate string
	CreatedAt time.Time
}
