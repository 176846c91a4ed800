package model

import "time"

// User represents a registered account. The plan and credit columns are the
// durable side of the quota; the in-memory ledger is rebuilt from them (or
// from the session snapshot) on login.
type User struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"` // Not exposed in API responses
	PlanID           string    `json:"planId"`
	CreditsTotal     int       `json:"creditsTotal"`
	CreditsRemaining int       `json:"creditsRemaining"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
