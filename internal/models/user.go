package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is an identity known to the built-in identity provider. Its ID is the
// actor_id that scopes evaluation records.
type User struct {
	ID           string    `db:"id" json:"user_id"`
	Email        string    `db:"email" json:"email"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Claims defines the structure of the JWT claims. Subject carries the actor id.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}
