package model

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public strips the credential hash for API responses.
func (u *User) Public() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}
