package domain

import (
	"strings"
	"time"
)

// Card Model
type Card struct {
	Number         string    `gorm:"primaryKey;size:19" json:"-"`          // Digits only
	UserDNI        string    `gorm:"size:36;index;not null" json:"user_dni"` // Owner
	Type           string    `gorm:"size:50;not null" json:"type"`           // visa, mastercard, amex, other
	ExpirationDate time.Time `gorm:"type:date;not null" json:"-"`            // Last day of the expiry month
	HolderName     string    `gorm:"size:255;not null" json:"card_holder_name"`
	Active         bool      `gorm:"not null;default:true" json:"active"`
	VaultToken     string    `gorm:"size:64" json:"-"` // Token issued by the card vault, empty when not configured
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CardView is the JSON representation of a card with the number masked
type CardView struct {
	Number         string    `json:"number"`
	Last4          string    `json:"last4"`
	UserDNI        string    `json:"user_dni"`
	Type           string    `json:"type"`
	ExpirationDate string    `json:"expiration_date"`
	HolderName     string    `json:"card_holder_name"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Last4 returns the last four digits of the card number
func (c *Card) Last4() string {
	if len(c.Number) <= 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// MaskedNumber hides every digit but the last four
func (c *Card) MaskedNumber() string {
	if len(c.Number) <= 4 {
		return c.Number
	}
	return strings.Repeat("*", len(c.Number)-4) + c.Last4()
}

// Expired reports whether the card can no longer fund transfers at t
func (c *Card) Expired(t time.Time) bool {
	y, m, d := t.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ey, em, ed := c.ExpirationDate.Date()
	return time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC).Before(today)
}

// View returns the masked JSON view of the card
func (c *Card) View() CardView {
	return CardView{
		Number:         c.MaskedNumber(),
		Last4:          c.Last4(),
		UserDNI:        c.UserDNI,
		Type:           c.Type,
		ExpirationDate: c.ExpirationDate.Format("01/06"),
		HolderName:     c.HolderName,
		Active:         c.Active,
		CreatedAt:      c.CreatedAt,
	}
}
