package models

import "time"

type User struct {
	ID            string    `json:"user_id"`
	Email         string    `json:"email"`
	PasswordHash  []byte    `json:"password_hash"`
	AllowedScopes []string  `json:"allowed_scopes"`
	CreatedAt     time.Time `json:"created_at"`
}
