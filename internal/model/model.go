// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User represents an account stored in the durable store. Password material is never serialized.
type User struct {
	ID             uuid.UUID  // PK
	Email          string     // unique, lower-cased
	Name           string     // mutable profile field
	Phone          string     // mutable profile field
	PwdHash        []byte     // Argon2id(password, PwdSalt)
	PwdSalt        []byte     // per-user salt
	SessionKey     string     // current session token, empty when none
	ResetTokenUsed bool       // password-reset bookkeeping
	ResetTokenTime *time.Time // issue time of the last reset token, nil when never issued
	CreatedAt      time.Time
}

// Projection is the denormalized, cache-safe view of a user keyed by session token.
// Field order is fixed; it defines the canonical JSON encoding.
type Projection struct {
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	UserID         uuid.UUID  `json:"userid"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResetTokenUsed bool       `json:"resetTokenUsed"`
	ResetTokenTime *time.Time `json:"resetTokenTime"`
}

// NewProjection builds the projection of u from its current durable fields.
func NewProjection(u *User) *Projection {
	p := &Projection{
		Name:           u.Name,
		Email:          u.Email,
		Phone:          u.Phone,
		UserID:         u.ID,
		CreatedAt:      u.CreatedAt,
		ResetTokenUsed: u.ResetTokenUsed,
	}
	if u.ResetTokenTime != nil {
		t := *u.ResetTokenTime
		p.ResetTokenTime = &t
	}
	return p
}

// Equal reports whether p and o agree on every mutable field.
// UserID and CreatedAt are immutable and not compared.
func (p *Projection) Equal(o *Projection) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Name != o.Name || p.Email != o.Email || p.Phone != o.Phone || p.ResetTokenUsed != o.ResetTokenUsed {
		return false
	}
	switch {
	case p.ResetTokenTime == nil && o.ResetTokenTime == nil:
		return true
	case p.ResetTokenTime == nil || o.ResetTokenTime == nil:
		return false
	default:
		return p.ResetTokenTime.Equal(*o.ResetTokenTime)
	}
}

// PublicProfile is returned to clients after login.
type PublicProfile struct {
	UserID    uuid.UUID `json:"userid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewPublicProfile copies the client-visible fields of u.
func NewPublicProfile(u *User) PublicProfile {
	return PublicProfile{UserID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, CreatedAt: u.CreatedAt}
}

// Report is a geotagged, captioned image submitted by a user.
type Report struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	ImageURL  string    `json:"imageUrl"` // unique
	ObjectKey string    `json:"-"`        // object storage key
	Caption   string    `json:"caption"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"createdAt"`
}
