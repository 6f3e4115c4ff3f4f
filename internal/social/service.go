// Package social manages friendship requests and the friend, blocked and
// favourite relations between users.
package social

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"p2p_wallet/internal/db"
	"p2p_wallet/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service implements the friendship sub-flow
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates the social service
func NewService(gdb *gorm.DB) *Service {
	return &Service{db: gdb, now: time.Now}
}

// BlockedBetween reports whether a blocked b and whether b blocked a, reading through tx
func (s *Service) BlockedBetween(tx *gorm.DB, a, b string) (aBlockedB, bBlockedA bool, err error) {
	var rows []domain.BlockedUser
	err = tx.Where("(user_dni = ? AND blocked_dni = ?) OR (user_dni = ? AND blocked_dni = ?)", a, b, b, a).
		Find(&rows).Error
	if err != nil {
		return false, false, err
	}
	for _, r := range rows {
		if r.UserDNI == a {
			aBlockedB = true
		} else {
			bBlockedA = true
		}
	}
	return aBlockedB, bBlockedA, nil
}

// IsBlocked reports whether a block exists between a and b in either direction
func (s *Service) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	ab, ba, err := s.BlockedBetween(s.db.WithContext(ctx), a, b)
	return ab || ba, err
}

func findUser(tx *gorm.DB, dni, missing string) (*domain.User, error) {
	var u domain.User
	err := tx.Where("dni = ? AND active = ?", dni, true).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound(missing)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// BlockReader is anything that can look up the block relation inside a transaction
type BlockReader interface {
	BlockedBetween(tx *gorm.DB, a, b string) (aBlockedB, bBlockedA bool, err error)
}

// CheckBlocks returns a 403 naming verb when either party blocked the other.
// Being blocked by the other user is reported first.
func CheckBlocks(tx *gorm.DB, blocks BlockReader, verb, callerDNI, otherDNI string) error {
	callerBlocked, blockedByOther, err := blocks.BlockedBetween(tx, callerDNI, otherDNI)
	if err != nil {
		return err
	}
	if blockedByOther {
		return domain.NewError(http.StatusForbidden, domain.ErrBlocked, "Cannot "+verb+". You have been blocked by the other user.")
	}
	if callerBlocked {
		return domain.NewError(http.StatusForbidden, domain.ErrBlocked, "Cannot "+verb+". You have blocked the other user.")
	}
	return nil
}

func areFriends(tx *gorm.DB, a, b string) (bool, error) {
	var n int64
	err := tx.Model(&domain.Friend{}).Where("user_dni = ? AND friend_dni = ?", a, b).Count(&n).Error
	return n > 0, err
}

// SendRequest opens a PENDING friendship request from the caller to friendDNI
func (s *Service) SendRequest(ctx context.Context, caller domain.Caller, friendDNI string) (*domain.FriendshipRequestView, error) {
	friendDNI = strings.TrimSpace(friendDNI)
	if friendDNI == "" {
		return nil, domain.Invalid("Friend's DNI is required")
	}

	var view domain.FriendshipRequestView
	err := db.Transact(ctx, s.db, db.DefaultRetryPolicy, func(tx *gorm.DB) error {
		me, err := findUser(tx, caller.DNI(), "User not found")
		if err != nil {
			return err
		}
		friend, err := findUser(tx, friendDNI, "Friend not found")
		if err != nil {
			return err
		}
		if friend.DNI == me.DNI {
			return domain.Invalid("Cannot send a friendship request to yourself")
		}
		if err := CheckBlocks(tx, s, "send friendship request", me.DNI, friend.DNI); err != nil {
			return err
		}
		if ok, err := areFriends(tx, me.DNI, friend.DNI); err != nil {
			return err
		} else if ok {
			return domain.NewError(http.StatusBadRequest, domain.ErrAlreadyExists, "Already friends")
		}
		var pending int64
		err = tx.Model(&domain.FriendshipRequest{}).
			Where("status = ?", domain.FriendshipPending).
			Where("(sender_dni = ? AND receiver_dni = ?) OR (sender_dni = ? AND receiver_dni = ?)", me.DNI, friend.DNI, friend.DNI, me.DNI).
			Count(&pending).Error
		if err != nil {
			return err
		}
		if pending > 0 {
			return domain.NewError(http.StatusBadRequest, domain.ErrAlreadyExists, "Friendship request already exists")
		}

		req := domain.FriendshipRequest{SenderDNI: me.DNI, ReceiverDNI: friend.DNI, Status: domain.FriendshipPending, CreatedAt: s.now()}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}
		view = domain.FriendshipRequestView{FriendshipRequest: req, Sender: me.Summary(), Receiver: friend.Summary()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"request_id": view.ID, "sender": view.SenderDNI, "receiver": view.ReceiverDNI}).Info("Friendship request sent")
	return &view, nil
}

// respond settles a PENDING friendship request addressed to the caller
func (s *Service) respond(ctx context.Context, caller domain.Caller, id uint, accept bool) error {
	verb := "reject"
	status := domain.FriendshipRejected
	if accept {
		verb, status = "accept", domain.FriendshipAccepted
	}

	return db.Transact(ctx, s.db, db.DefaultRetryPolicy, func(tx *gorm.DB) error {
		var req domain.FriendshipRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&req).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NotFound("Friendship request not found")
		} else if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return domain.NewError(http.StatusBadRequest, domain.ErrAlreadySettled, "Friendship request already "+strings.ToLower(string(req.Status)))
		}
		if req.ReceiverDNI != caller.DNI() {
			return domain.Forbidden("You cannot " + verb + " this request")
		}
		if accept {
			if err := CheckBlocks(tx, s, "accept friendship request", req.ReceiverDNI, req.SenderDNI); err != nil {
				return err
			}
		}

		now := s.now()
		res := tx.Model(&domain.FriendshipRequest{}).
			Where("id = ? AND status = ?", req.ID, domain.FriendshipPending).
			Updates(map[string]any{"status": status, "responded_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NewError(http.StatusBadRequest, domain.ErrAlreadySettled, "Friendship request already settled")
		}
		if accept {
			pair := []domain.Friend{
				{UserDNI: req.SenderDNI, FriendDNI: req.ReceiverDNI},
				{UserDNI: req.ReceiverDNI, FriendDNI: req.SenderDNI},
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pair).Error; err != nil {
				return err
			}
		}
		logrus.WithFields(logrus.Fields{"request_id": req.ID, "status": string(status)}).Info("Friendship request answered")
		return nil
	})
}

// Accept makes the two users friends
func (s *Service) Accept(ctx context.Context, caller domain.Caller, id uint) error {
	return s.respond(ctx, caller, id, true)
}

// Reject refuses the request without creating a relation
func (s *Service) Reject(ctx context.Context, caller domain.Caller, id uint) error {
	return s.respond(ctx, caller, id, false)
}

// RemoveFriend deletes both halves of the friendship
func (s *Service) RemoveFriend(ctx context.Context, caller domain.Caller, friendDNI string) error {
	return db.Transact(ctx, s.db, db.DefaultRetryPolicy, func(tx *gorm.DB) error {
		if _, err := findUser(tx, friendDNI, "Friend not found"); err != nil {
			return err
		}
		res := tx.Where("(user_dni = ? AND friend_dni = ?) OR (user_dni = ? AND friend_dni = ?)",
			caller.DNI(), friendDNI, friendDNI, caller.DNI()).Delete(&domain.Friend{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NotFound("Friendship not found")
		}
		return nil
	})
}

// Block records the block, ends any friendship and rejects pending friendship requests between the two
func (s *Service) Block(ctx context.Context, caller domain.Caller, dni string) error {
	if dni == caller.DNI() {
		return domain.Invalid("Cannot block yourself")
	}
	err := db.Transact(ctx, s.db, db.DefaultRetryPolicy, func(tx *gorm.DB) error {
		if _, err := findUser(tx, dni, "User to block not found"); err != nil {
			return err
		}
		row := domain.BlockedUser{UserDNI: caller.DNI(), BlockedDNI: dni}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		err := tx.Where("(user_dni = ? AND friend_dni = ?) OR (user_dni = ? AND friend_dni = ?)",
			caller.DNI(), dni, dni, caller.DNI()).Delete(&domain.Friend{}).Error
		if err != nil {
			return err
		}
		return tx.Model(&domain.FriendshipRequest{}).
			Where("status = ?", domain.FriendshipPending).
			Where("(sender_dni = ? AND receiver_dni = ?) OR (sender_dni = ? AND receiver_dni = ?)", caller.DNI(), dni, dni, caller.DNI()).
			Updates(map[string]any{"status": domain.FriendshipRejected, "responded_at": s.now()}).Error
	})
	if err == nil {
		logrus.WithFields(logrus.Fields{"user": caller.DNI(), "blocked": dni}).Info("User blocked")
	}
	return err
}

// Unblock removes the caller's block on dni
func (s *Service) Unblock(ctx context.Context, caller domain.Caller, dni string) error {
	if dni == caller.DNI() {
		return domain.Invalid("Cannot unblock yourself")
	}
	tx := s.db.WithContext(ctx)
	if _, err := findUser(tx, dni, "User to unblock not found"); err != nil {
		return err
	}
	return tx.Where("user_dni = ? AND blocked_dni = ?", caller.DNI(), dni).Delete(&domain.BlockedUser{}).Error
}

// AddFavourite marks dni as one of the caller's favourites
func (s *Service) AddFavourite(ctx context.Context, caller domain.Caller, dni string) error {
	if dni == caller.DNI() {
		return domain.Invalid("Cannot add yourself as favourite")
	}
	tx := s.db.WithContext(ctx)
	if _, err := findUser(tx, dni, "Favourite not found"); err != nil {
		return err
	}
	row := domain.FavouriteUser{UserDNI: caller.DNI(), FavouriteDNI: dni}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// RemoveFavourite unmarks dni
func (s *Service) RemoveFavourite(ctx context.Context, caller domain.Caller, dni string) error {
	res := s.db.WithContext(ctx).Where("user_dni = ? AND favourite_dni = ?", caller.DNI(), dni).Delete(&domain.FavouriteUser{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("Favourite not found")
	}
	return nil
}

// related lists the users joined to dni through a relation table
func (s *Service) related(ctx context.Context, table, column, dni string) ([]domain.Summary, error) {
	var users []domain.User
	err := s.db.WithContext(ctx).
		Joins("JOIN "+table+" ON "+table+"."+column+" = users.dni").
		Where(table+".user_dni = ?", dni).
		Order("users.name").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Summary, len(users))
	for i := range users {
		out[i] = users[i].Summary()
	}
	return out, nil
}

// ListFriends returns the caller's friends
func (s *Service) ListFriends(ctx context.Context, caller domain.Caller) ([]domain.Summary, error) {
	return s.related(ctx, "friends", "friend_dni", caller.DNI())
}

// ListBlocked returns the users the caller blocked
func (s *Service) ListBlocked(ctx context.Context, caller domain.Caller) ([]domain.Summary, error) {
	return s.related(ctx, "blocked_users", "blocked_dni", caller.DNI())
}

// ListFavourites returns the caller's favourites
func (s *Service) ListFavourites(ctx context.Context, caller domain.Caller) ([]domain.Summary, error) {
	return s.related(ctx, "favourite_users", "favourite_dni", caller.DNI())
}

// ListPending returns PENDING friendship requests addressed to the caller
func (s *Service) ListPending(ctx context.Context, caller domain.Caller) ([]domain.FriendshipRequestView, error) {
	var reqs []domain.FriendshipRequest
	err := s.db.WithContext(ctx).
		Where("receiver_dni = ? AND status = ?", caller.DNI(), domain.FriendshipPending).
		Order("created_at DESC").Order("id DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	views := make([]domain.FriendshipRequestView, len(reqs))
	if len(reqs) == 0 {
		return views, nil
	}
	dnis := []string{caller.DNI()}
	for _, r := range reqs {
		dnis = append(dnis, r.SenderDNI)
	}
	var users []domain.User
	if err := s.db.WithContext(ctx).Where("dni IN ?", dnis).Find(&users).Error; err != nil {
		return nil, err
	}
	byDNI := make(map[string]domain.Summary, len(users))
	for i := range users {
		byDNI[users[i].DNI] = users[i].Summary()
	}
	for i, r := range reqs {
		views[i] = domain.FriendshipRequestView{FriendshipRequest: r, Sender: byDNI[r.SenderDNI], Receiver: byDNI[r.ReceiverDNI]}
	}
	return views, nil
}
