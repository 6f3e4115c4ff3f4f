// Package users is the identity store: registration, profiles, activation and credential checks.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	userCacheTTL   = 60 * time.Second
	minPasswordLen = 8
	maxPasswordLen = 64
	birthDateFmt   = "2006-01-02"
	sessionDateFmt = "02/01/2006 15:04:05"
)

// AccountDisabledMessage is the message returned when an inactive user logs in
const AccountDisabledMessage = "Your account is disabled. To be able to operate, you must speak with the administrator."

// Service manages users
type Service struct {
	db        *gorm.DB
	rdb       *redis.Client
	jwtSecret string
	jwtTTL    time.Duration
	cost      int
	now       func() time.Time
}

// NewService creates the identity store. rdb may be nil.
func NewService(gdb *gorm.DB, rdb *redis.Client, jwtSecret string, jwtTTL time.Duration) *Service {
	return &Service{db: gdb, rdb: rdb, jwtSecret: jwtSecret, jwtTTL: jwtTTL, cost: bcrypt.DefaultCost, now: time.Now}
}

// Registration is the input for creating a user
type Registration struct {
	DNI       string
	Name      string
	Email     string
	Password  string
	BirthDate string // YYYY-MM-DD
	Phone     string
	Address   string
	Image     string
	Amount    decimal.Decimal // Opening balance
}

// Profile holds the user editable fields; nil fields are left untouched
type Profile struct {
	Name      *string
	Phone     *string
	Address   *string
	BirthDate *string
	Image     *string
}

// Session is returned by a successful authentication
type Session struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	Date      string `json:"date"`
	User      string `json:"user"`
}

func cacheKey(dni string) string { return utils.UserCachePrefix + dni }

// Create registers a new user with a bcrypt-hashed password
func (s *Service) Create(ctx context.Context, in Registration) (*domain.User, error) {
	in.DNI = strings.TrimSpace(in.DNI)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.DNI == "" || len(in.DNI) > 36:
		return nil, domain.Invalid("DNI is required and must be at most 36 characters")
	case in.Name == "":
		return nil, domain.Invalid("Name is required")
	case in.Email == "":
		return nil, domain.Invalid("Email is required")
	case len(in.Password) < minPasswordLen || len(in.Password) > maxPasswordLen:
		return nil, domain.Invalid(fmt.Sprintf("Password must be %d-%d characters", minPasswordLen, maxPasswordLen))
	case in.Amount.IsNegative():
		return nil, domain.Invalid("Amount cannot be negative")
	case !in.Amount.Equal(in.Amount.Round(2)):
		return nil, domain.Invalid("Amount must have at most two decimal places")
	}
	birth, err := time.Parse(birthDateFmt, in.BirthDate)
	if err != nil {
		return nil, domain.Invalid("Birth date must be in YYYY-MM-DD format")
	}

	var taken domain.User
	err = s.db.WithContext(ctx).Where("dni = ? OR email = ?", in.DNI, in.Email).Take(&taken).Error
	if err == nil {
		if taken.DNI == in.DNI {
			return nil, domain.NewError(http.StatusBadRequest, domain.ErrAlreadyExists, "User with DNI "+in.DNI+" already exists")
		}
		return nil, domain.NewError(http.StatusBadRequest, domain.ErrAlreadyExists, "User with email "+in.Email+" already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		DNI:       in.DNI,
		Name:      in.Name,
		Email:     in.Email,
		Password:  string(hash),
		BirthDate: birth,
		Phone:     in.Phone,
		Address:   in.Address,
		Image:     in.Image,
		Balance:   in.Amount,
		Active:    true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"dni": user.DNI, "email": user.Email}).Info("User registered")
	return user, nil
}

// Get returns a user by DNI, served from Redis when cached
func (s *Service) Get(ctx context.Context, dni string) (*domain.User, error) {
	var user domain.User
	if found, err := utils.GetCache(ctx, s.rdb, cacheKey(dni), &user); err == nil && found {
		return &user, nil
	}
	err := s.db.WithContext(ctx).Where("dni = ?", dni).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	_ = utils.SetCache(ctx, s.rdb, cacheKey(dni), &user, userCacheTTL)
	return &user, nil
}

// GetByEmail returns a user by email, always from the database
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Invalidate drops cached profiles, e.g. after their balances moved
func (s *Service) Invalidate(ctx context.Context, dnis ...string) {
	keys := make([]string, len(dnis))
	for i, dni := range dnis {
		keys[i] = cacheKey(dni)
	}
	if err := utils.DeleteCache(ctx, s.rdb, keys...); err != nil {
		logrus.WithError(err).Warn("Failed to invalidate user cache")
	}
}

// Update changes profile fields of dni. Only the user or an admin may do so.
func (s *Service) Update(ctx context.Context, caller domain.Caller, dni string, p Profile) (*domain.User, error) {
	if caller.DNI() != dni && !caller.IsAdmin() {
		return nil, domain.Forbidden("Not authorized to update this user")
	}
	if _, err := s.Get(ctx, dni); err != nil {
		return nil, err
	}
	changes := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, domain.Invalid("Name is required")
		}
		changes["name"] = name
	}
	if p.Phone != nil {
		changes["phone"] = *p.Phone
	}
	if p.Address != nil {
		changes["address"] = *p.Address
	}
	if p.Image != nil {
		changes["image"] = *p.Image
	}
	if p.BirthDate != nil {
		birth, err := time.Parse(birthDateFmt, *p.BirthDate)
		if err != nil {
			return nil, domain.Invalid("Birth date must be in YYYY-MM-DD format")
		}
		changes["birth_date"] = birth
	}
	if len(changes) > 0 {
		if err := s.db.WithContext(ctx).Model(&domain.User{}).Where("dni = ?", dni).Updates(changes).Error; err != nil {
			return nil, err
		}
		s.Invalidate(ctx, dni)
	}
	return s.Get(ctx, dni)
}

// UpdateImage replaces the avatar of dni
func (s *Service) UpdateImage(ctx context.Context, caller domain.Caller, dni, image string) (*domain.User, error) {
	return s.Update(ctx, caller, dni, Profile{Image: &image})
}

// SetActive activates or deactivates a user. Admin only.
func (s *Service) SetActive(ctx context.Context, caller domain.Caller, dni string, active bool) (*domain.User, error) {
	if !caller.IsAdmin() {
		return nil, domain.Forbidden("Admin access required")
	}
	res := s.db.WithContext(ctx).Model(&domain.User{}).Where("dni = ?", dni).Update("active", active)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, dni); err != nil {
			return nil, err
		}
	}
	s.Invalidate(ctx, dni)
	logrus.WithFields(logrus.Fields{"dni": dni, "active": active, "admin": caller.DNI()}).Info("User activation changed")
	return s.Get(ctx, dni)
}

// Authenticate checks the credentials and issues a bearer token
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" {
		return nil, domain.Invalid("Email is required")
	}
	if password == "" {
		return nil, domain.Invalid("Password is required")
	}
	invalid := domain.NewError(http.StatusUnauthorized, domain.ErrUnauthenticated, "Invalid credentials")
	user, err := s.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, invalid
	} else if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		logrus.WithField("email", user.Email).Warn("Failed login attempt")
		return nil, invalid
	}
	if !user.Active {
		return nil, domain.NewError(http.StatusInternalServerError, domain.ErrForbidden, AccountDisabledMessage)
	}

	token, _, err := utils.GenerateJWT(user.DNI, user.Email, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{
		Token:     token,
		ExpiresIn: int(s.jwtTTL / time.Second),
		Date:      s.now().Format(sessionDateFmt),
		User:      user.Email,
	}, nil
}

// List returns a page of users. Admin only.
func (s *Service) List(ctx context.Context, caller domain.Caller, page utils.Page) ([]domain.User, int64, error) {
	if !caller.IsAdmin() {
		return nil, 0, domain.Forbidden("Admin access required")
	}
	var total int64
	q := s.db.WithContext(ctx).Model(&domain.User{})
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []domain.User
	err := q.Order("created_at DESC").Offset(page.Offset()).Limit(page.PageSize).Find(&users).Error
	return users, total, err
}
