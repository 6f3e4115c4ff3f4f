package db

import (
	"context" // Context for the promotion query
	"fmt"     // Error formatting
	"strings" // Email normalisation

	"p2p_wallet/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
)

// Models lists every table managed by the service
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Card{},
		&domain.Transaction{},
		&domain.FriendshipRequest{},
		&domain.Friend{},
		&domain.BlockedUser{},
		&domain.FavouriteUser{},
		&domain.APIKey{},
	}
}

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}

// PromoteAdmin grants administrator rights to the user registered with email
func PromoteAdmin(ctx context.Context, db *gorm.DB, email string) error {
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Update("administrator", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no user registered with email %q", email)
	}
	logrus.WithField("email", email).Info("User promoted to administrator")
	return nil
}
