package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey Model, issued to merchants so they can request payments
type APIKey struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserDNI   string    `gorm:"size:36;index;not null" json:"user_dni"`
	Key       uuid.UUID `gorm:"column:secret;type:char(36);uniqueIndex;not null" json:"-"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns identifiers before insert
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.Key == uuid.Nil {
		k.Key = uuid.New()
	}
	return nil
}

// IssuedAPIKey is returned only right after a key is created or rotated
type IssuedAPIKey struct {
	ID        uuid.UUID `json:"id"`
	UserDNI   string    `json:"user_dni"`
	APIKey    string    `json:"api_key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Issued exposes the secret key value once
func (k *APIKey) Issued() IssuedAPIKey {
	return IssuedAPIKey{ID: k.ID, UserDNI: k.UserDNI, APIKey: k.Key.String(), Name: k.Name, CreatedAt: k.CreatedAt}
}
