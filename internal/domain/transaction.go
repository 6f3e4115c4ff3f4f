package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes direct sends from request-for-funds flows
type TransactionType string

const (
	TransactionSent    TransactionType = "SENT"    // Direct transfer, settled on creation
	TransactionRequest TransactionType = "REQUEST" // Pending until the sender funds it
)

// TransactionStatus is the lifecycle state of a transaction
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"   // Only non-terminal state
	StatusCompleted TransactionStatus = "COMPLETED" // Funds moved
	StatusRejected  TransactionStatus = "REJECTED"  // Refused by the sender
	StatusRevoked   TransactionStatus = "REVOKED"   // Cancelled by the initiator
)

// ParseTransactionStatus converts a raw value into a known status
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch st := TransactionStatus(s); st {
	case StatusPending, StatusCompleted, StatusRejected, StatusRevoked:
		return st, nil
	default:
		return "", fmt.Errorf("unknown transaction status %q", s)
	}
}

// Terminal reports whether no further transition is allowed
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusPending:
		return false
	case StatusCompleted, StatusRejected, StatusRevoked:
		return true
	default:
		panic(fmt.Sprintf("unhandled transaction status %q", string(s)))
	}
}

// ParseTransactionType converts a raw value into a known type
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case TransactionSent, TransactionRequest:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
}

// Transaction Model
//
// SenderDNI is always the debited party and ReceiverDNI the credited one,
// whichever of them created the row (InitiatorDNI).
type Transaction struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Amount       decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Message      string            `gorm:"size:255" json:"message"`
	SenderDNI    string            `gorm:"size:36;index;not null" json:"sender_dni"`
	ReceiverDNI  string            `gorm:"size:36;index;not null" json:"receiver_dni"`
	InitiatorDNI string            `gorm:"size:36;not null" json:"initiator_dni"`
	CardNumber   *string           `gorm:"size:19" json:"-"`
	Type         TransactionType   `gorm:"size:16;not null" json:"transaction_type"`
	Status       TransactionStatus `gorm:"size:16;index;not null" json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	RespondedAt  *time.Time        `json:"responded_at"`
}

// Involves reports whether dni is one of the two parties
func (t *Transaction) Involves(dni string) bool {
	return t.SenderDNI == dni || t.ReceiverDNI == dni
}

// TransactionView is a transaction enriched with party names
type TransactionView struct {
	Transaction
	CardLast4    string `json:"card_last4,omitempty"`
	SenderName   string `json:"sender_name"`
	ReceiverName string `json:"receiver_name"`
}
