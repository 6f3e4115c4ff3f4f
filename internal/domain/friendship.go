package domain

import (
	"fmt"
	"time"
)

// FriendshipStatus is the lifecycle state of a friendship request
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "PENDING"
	FriendshipAccepted FriendshipStatus = "ACCEPTED"
	FriendshipRejected FriendshipStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed
func (s FriendshipStatus) Terminal() bool {
	switch s {
	case FriendshipPending:
		return false
	case FriendshipAccepted, FriendshipRejected:
		return true
	default:
		panic(fmt.Sprintf("unhandled friendship status %q", string(s)))
	}
}

// FriendshipRequest Model
type FriendshipRequest struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	SenderDNI   string           `gorm:"size:36;index;not null" json:"sender_dni"`
	ReceiverDNI string           `gorm:"size:36;index;not null" json:"receiver_dni"`
	Status      FriendshipStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	RespondedAt *time.Time       `json:"responded_at"`
}

// FriendshipRequestView is a request enriched with both parties
type FriendshipRequestView struct {
	FriendshipRequest
	Sender   Summary `json:"sender"`
	Receiver Summary `json:"receiver"`
}

// Friend is one directed half of a symmetric friendship
type Friend struct {
	UserDNI   string `gorm:"primaryKey;size:36"`
	FriendDNI string `gorm:"primaryKey;size:36"`
}

// TableName keeps the relation table name stable
func (Friend) TableName() string { return "friends" }

// BlockedUser records that UserDNI blocked BlockedDNI
type BlockedUser struct {
	UserDNI    string `gorm:"primaryKey;size:36"`
	BlockedDNI string `gorm:"primaryKey;size:36"`
}

func (BlockedUser) TableName() string { return "blocked_users" }

// FavouriteUser records that UserDNI marked FavouriteDNI as favourite
type FavouriteUser struct {
	UserDNI      string `gorm:"primaryKey;size:36"`
	FavouriteDNI string `gorm:"primaryKey;size:36"`
}

func (FavouriteUser) TableName() string { return "favourite_users" }
