// Package cards is the registry of funding cards linked to users.
package cards

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"p2p_wallet/internal/cardvault"
	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Vault validates a card with the external card vault and returns its token
type Vault interface {
	Validate(ctx context.Context, card cardvault.Card) (string, error)
}

// Service manages cards
type Service struct {
	db    *gorm.DB
	vault Vault
	now   func() time.Time
}

// NewService creates the card registry. A nil vault skips external validation.
func NewService(gdb *gorm.DB, vault Vault) *Service {
	return &Service{db: gdb, vault: vault, now: time.Now}
}

// Registration is the input for linking a new card
type Registration struct {
	Number     string
	CVV        string
	Type       string
	Expiration string // MM/YY
	HolderName string
}

// Patch updates mutable card fields; nil fields are left untouched
type Patch struct {
	Active     *bool
	HolderName *string
	Expiration *string
}

var cardTypes = map[string]bool{"visa": true, "mastercard": true, "amex": true, "other": true}

// NormalizeNumber strips spaces and dashes from a card number
func NormalizeNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(number))
}

// ParseExpiration turns MM/YY into the last day of that month
func ParseExpiration(raw string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return time.Time{}, domain.Invalid("Expiration date must be in MM/YY format")
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, domain.Invalid("Expiration date must be in MM/YY format")
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, domain.Invalid("Expiration date must be in MM/YY format")
	}
	return time.Date(2000+year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC), nil
}

func validNumber(number string) bool {
	if len(number) < 13 || len(number) > 19 {
		return false
	}
	return validLuhn(number)
}

func validCVV(cvv string) bool {
	if len(cvv) < 3 || len(cvv) > 4 {
		return false
	}
	for _, ch := range cvv {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// Register validates and links a card to the caller
func (s *Service) Register(ctx context.Context, caller domain.Caller, in Registration) (*domain.Card, error) {
	number := NormalizeNumber(in.Number)
	if !validNumber(number) {
		return nil, domain.Invalid("Invalid card number")
	}
	if !validCVV(in.CVV) {
		return nil, domain.Invalid("Invalid CVV")
	}
	cardType := strings.ToLower(strings.TrimSpace(in.Type))
	if cardType == "" {
		cardType = "other"
	}
	if !cardTypes[cardType] {
		return nil, domain.Invalid("Card type must be one of visa, mastercard, amex or other")
	}
	holder := strings.TrimSpace(in.HolderName)
	if holder == "" {
		return nil, domain.Invalid("Card holder name is required")
	}
	expiry, err := ParseExpiration(in.Expiration)
	if err != nil {
		return nil, err
	}
	card := &domain.Card{
		Number:         number,
		UserDNI:        caller.DNI(),
		Type:           cardType,
		ExpirationDate: expiry,
		HolderName:     holder,
		Active:         true,
	}
	if card.Expired(s.now()) {
		return nil, domain.Invalid("Card is expired")
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&domain.Card{}).Where("number = ?", number).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, domain.NewError(http.StatusBadRequest, domain.ErrAlreadyExists, "Credit card already registered")
	}

	if s.vault != nil {
		token, err := s.vault.Validate(ctx, cardvault.Card{
			Number:     number,
			CVV:        in.CVV,
			Brand:      cardType,
			HolderName: holder,
			Expiry:     expiry,
		})
		if err != nil {
			return nil, vaultError(caller, err)
		}
		card.VaultToken = token
	}

	if err := s.db.WithContext(ctx).Create(card).Error; err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user": caller.DNI(), "card": card.Last4(), "type": card.Type}).Info("Card registered")
	return card, nil
}

func vaultError(caller domain.Caller, err error) error {
	fields := logrus.Fields{"user": caller.DNI(), "error": err.Error()}
	var rejected *cardvault.RejectedError
	switch {
	case errors.Is(err, cardvault.ErrTimeout):
		logrus.WithFields(fields).Error("Card vault timed out")
		return domain.NewError(http.StatusGatewayTimeout, domain.ErrGatewayTimeout, "Card vault timed out")
	case errors.As(err, &rejected):
		logrus.WithFields(fields).Warn("Card rejected by vault")
		return domain.NewError(http.StatusBadRequest, domain.ErrInvalidCard, "Credit card validation failed: "+rejected.Reason)
	default:
		logrus.WithFields(fields).Error("Card vault call failed")
		return domain.NewError(http.StatusBadGateway, domain.ErrGatewayTimeout, "Card vault unavailable")
	}
}

// ListMine returns the caller's cards
func (s *Service) ListMine(ctx context.Context, caller domain.Caller) ([]domain.Card, error) {
	var cards []domain.Card
	err := s.db.WithContext(ctx).Where("user_dni = ?", caller.DNI()).Order("created_at DESC").Find(&cards).Error
	return cards, err
}

// Get returns a card owned by the caller; admins may read any card
func (s *Service) Get(ctx context.Context, caller domain.Caller, number string) (*domain.Card, error) {
	var card domain.Card
	q := s.db.WithContext(ctx).Where("number = ?", NormalizeNumber(number))
	if !caller.IsAdmin() {
		q = q.Where("user_dni = ?", caller.DNI())
	}
	err := q.Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("Card not found")
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// Update changes the holder name, expiry or active flag of a card
func (s *Service) Update(ctx context.Context, caller domain.Caller, number string, p Patch) (*domain.Card, error) {
	card, err := s.Get(ctx, caller, number)
	if err != nil {
		return nil, err
	}
	changes := map[string]any{}
	if p.HolderName != nil {
		holder := strings.TrimSpace(*p.HolderName)
		if holder == "" {
			return nil, domain.Invalid("Card holder name is required")
		}
		changes["holder_name"] = holder
	}
	if p.Expiration != nil {
		expiry, err := ParseExpiration(*p.Expiration)
		if err != nil {
			return nil, err
		}
		changes["expiration_date"] = expiry
	}
	if p.Active != nil {
		changes["active"] = *p.Active
	}
	if len(changes) == 0 {
		return card, nil
	}
	if err := s.db.WithContext(ctx).Model(card).Updates(changes).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, caller, card.Number)
}

// Deactivate soft-deletes a card so it can no longer fund transfers
func (s *Service) Deactivate(ctx context.Context, caller domain.Caller, number string) error {
	inactive := false
	card, err := s.Update(ctx, caller, number, Patch{Active: &inactive})
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"user": caller.DNI(), "card": card.Last4()}).Info("Card deactivated")
	return nil
}

// ListAll is the admin listing of every card
func (s *Service) ListAll(ctx context.Context, page utils.Page) ([]domain.Card, int64, error) {
	var total int64
	q := s.db.WithContext(ctx).Model(&domain.Card{})
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var cards []domain.Card
	err := q.Order("created_at DESC").Offset(page.Offset()).Limit(page.PageSize).Find(&cards).Error
	return cards, total, err
}

// ResolveFundingCard loads the owner's card inside tx. Whether it may fund a transfer is up to the caller.
func (s *Service) ResolveFundingCard(tx *gorm.DB, ownerDNI, number string) (*domain.Card, error) {
	var card domain.Card
	err := tx.Where("number = ? AND user_dni = ?", NormalizeNumber(number), ownerDNI).Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("Card not found")
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}
