package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Identity is a registered account. PasswordHash is a bcrypt hash and is
// never serialized.
type Identity struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Confirmed    bool      `json:"confirmed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is the single live token pair for an identity. Login and refresh
// replace it wholesale, they never mutate it in place.
type Session struct {
	IdentityID   uuid.UUID `json:"identity_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
