package model

import "time"

// User is a reporter of lost or found items.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Credits   int       `json:"credits"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}
