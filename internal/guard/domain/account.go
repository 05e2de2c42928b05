package domain

import "time"

// Account is the credential record synced from the donation platform.
// Only what the guard needs: a stable ID and the argon2id password hash
// used to gate 2FA disablement.
type Account struct {
	ID           string
	Email        string
	PasswordHash string // PHC-encoded argon2id
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
