// Package apikeys issues the merchant API keys used to request payments server to server.
package apikeys

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"p2p_wallet/internal/db"
	"p2p_wallet/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxKeysPerUser bounds how many keys one user may hold
const MaxKeysPerUser = 5

// Service manages API keys
type Service struct {
	db *gorm.DB
}

// NewService creates the API key service
func NewService(gdb *gorm.DB) *Service {
	return &Service{db: gdb}
}

// Create issues a new key for the caller's application
func (s *Service) Create(ctx context.Context, caller domain.Caller, applicationName string) (*domain.IssuedAPIKey, error) {
	name := strings.TrimSpace(applicationName)
	if name == "" {
		return nil, domain.Invalid("Application name is required")
	}

	var key domain.APIKey
	err := db.Transact(ctx, s.db, db.DefaultRetryPolicy, func(tx *gorm.DB) error {
		// serialise concurrent creations for the same owner
		var owner domain.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("dni = ?", caller.DNI()).Take(&owner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFound("User not found")
			}
			return err
		}
		var count int64
		if err := tx.Model(&domain.APIKey{}).Where("user_dni = ?", caller.DNI()).Count(&count).Error; err != nil {
			return err
		}
		if count >= MaxKeysPerUser {
			return domain.Invalid("You have reached the maximum number of API keys")
		}
		key = domain.APIKey{UserDNI: caller.DNI(), Name: name}
		return tx.Create(&key).Error
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user": caller.DNI(), "key_id": key.ID.String(), "name": key.Name}).Info("API key issued")
	issued := key.Issued()
	return &issued, nil
}

// List returns the caller's keys without their secret values
func (s *Service) List(ctx context.Context, caller domain.Caller) ([]domain.APIKey, error) {
	var keys []domain.APIKey
	err := s.db.WithContext(ctx).Where("user_dni = ?", caller.DNI()).Order("created_at").Find(&keys).Error
	return keys, err
}

func (s *Service) owned(ctx context.Context, caller domain.Caller, id string) (*domain.APIKey, error) {
	keyID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.NotFound("API key not found")
	}
	var key domain.APIKey
	err = s.db.WithContext(ctx).Where("id = ? AND user_dni = ?", keyID, caller.DNI()).Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("API key not found")
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// Rotate replaces the secret of one of the caller's keys
func (s *Service) Rotate(ctx context.Context, caller domain.Caller, id string) (*domain.IssuedAPIKey, error) {
	key, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	key.Key = uuid.New()
	if err := s.db.WithContext(ctx).Model(key).Update("secret", key.Key).Error; err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user": caller.DNI(), "key_id": key.ID.String()}).Info("API key rotated")
	issued := key.Issued()
	return &issued, nil
}

// Delete removes one of the caller's keys
func (s *Service) Delete(ctx context.Context, caller domain.Caller, id string) error {
	key, err := s.owned(ctx, caller, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(key).Error
}

// Resolve maps a presented key to the identity of its active owner
func (s *Service) Resolve(ctx context.Context, raw string) (domain.Caller, error) {
	invalid := domain.NewError(http.StatusUnauthorized, domain.ErrUnauthenticated, "Invalid API key")
	secret, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return domain.Caller{}, invalid
	}
	var key domain.APIKey
	err = s.db.WithContext(ctx).Where("secret = ?", secret).Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Caller{}, invalid
	} else if err != nil {
		return domain.Caller{}, err
	}
	var owner domain.User
	err = s.db.WithContext(ctx).Where("dni = ? AND active = ?", key.UserDNI, true).Take(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Caller{}, invalid
	} else if err != nil {
		return domain.Caller{}, err
	}
	return domain.CallerFor(&owner), nil
}
