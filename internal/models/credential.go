package models

import "time"

// CredentialSet holds a username and a Fernet-encrypted password shared by
// one or more devices. The plaintext password exists only in memory while a
// backup is running.
type CredentialSet struct {
	ID                int64     `json:"id" db:"id"`
	Label             string    `json:"label" db:"label"`
	Username          string    `json:"username" db:"username"`
	EncryptedPassword string    `json:"-" db:"encrypted_password"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}
