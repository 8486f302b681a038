// Package models holds the rows persisted by the backend repositories.
package models

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Salt         string
	CreatedAt    time.Time
}
