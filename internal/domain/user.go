package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Fixed-point money
)

// User Model
type User struct {
	DNI           string          `gorm:"primaryKey;size:36" json:"dni"`                              // Natural key
	Name          string          `gorm:"size:100;not null" json:"name"`                              // Display name
	Email         string          `gorm:"size:100;uniqueIndex;not null" json:"email"`                 // Login email
	Password      string          `gorm:"size:255;not null" json:"-"`                                 // bcrypt hash
	BirthDate     time.Time       `gorm:"type:date;not null" json:"birth_date"`                       // Date of birth
	Phone         string          `gorm:"size:100" json:"phone"`                                      // Phone number
	Address       string          `gorm:"size:255" json:"address"`                                    // Postal address
	Image         string          `gorm:"size:255" json:"image"`                                      // Avatar URL
	Balance       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`        // Mutated only by the ledger
	Administrator bool            `gorm:"not null;default:false" json:"administrator"`                // Admin flag
	Active        bool            `gorm:"not null;default:true" json:"active"`                        // Soft delete flag
	Version       int64           `gorm:"not null;default:0" json:"-"`                                // Optimistic lock counter
	CreatedAt     time.Time       `json:"created_at"`                                                 // Creation time
	UpdatedAt     time.Time       `json:"updated_at"`                                                 // Last update time
	Cards         []Card          `gorm:"foreignKey:UserDNI;references:DNI;constraint:OnDelete:CASCADE;" json:"-"` // Linked cards
}

// Summary is the public view of another user
type Summary struct {
	DNI   string `json:"dni"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Summary returns the public view of the user
func (u *User) Summary() Summary {
	return Summary{DNI: u.DNI, Name: u.Name, Image: u.Image}
}
