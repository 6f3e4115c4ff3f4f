package ledger

import (
	"context"
	"net/http"
	"strings"

	"p2p_wallet/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// loadPending locks the transfer and fails unless it is still PENDING
func loadPending(tx *gorm.DB, id uint) (*domain.Transaction, error) {
	t, err := lockTransaction(tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, alreadySettled(t.Status)
	}
	return t, nil
}

func alreadySettled(status domain.TransactionStatus) error {
	return domain.NewError(http.StatusBadRequest, domain.ErrAlreadySettled, "Request already "+strings.ToLower(string(status)))
}

// transition moves a PENDING transfer to a terminal status; zero rows means someone else settled it first
func transition(tx *gorm.DB, t *domain.Transaction, fields map[string]any) error {
	res := tx.Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", t.ID, domain.StatusPending).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NewError(http.StatusBadRequest, domain.ErrAlreadySettled, "Request already settled")
	}
	return nil
}

// AcceptTransferRequest funds a PENDING transfer with the caller's card.
// Both balance writes and the status change commit together or not at all.
func (e *Engine) AcceptTransferRequest(ctx context.Context, caller domain.Caller, id uint, cardNumber string) (*domain.TransactionView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var view domain.TransactionView
	err := e.transact(ctx, func(tx *gorm.DB) error {
		t, err := loadPending(tx, id)
		if err != nil {
			return err
		}
		if t.SenderDNI != caller.DNI() {
			return domain.Forbidden("Not authorized to accept this request")
		}
		if err := e.checkBlocks(tx, "accept transaction", t.SenderDNI, t.ReceiverDNI); err != nil {
			return err
		}
		card, err := e.cards.ResolveFundingCard(tx, t.SenderDNI, cardNumber)
		if err != nil {
			return err
		}
		now := e.now()
		if !card.Active || card.Expired(now) {
			return invalidCard()
		}

		users, err := lockUsers(tx, t.SenderDNI, t.ReceiverDNI)
		if err != nil {
			return err
		}
		sender, ok := users[t.SenderDNI]
		if !ok {
			return domain.NotFound("User not found")
		}
		receiver, ok := users[t.ReceiverDNI]
		if !ok {
			return domain.NotFound("Receiver not found")
		}
		if err := moveFunds(tx, sender, receiver, t.Amount); err != nil {
			return err
		}
		if err := transition(tx, t, map[string]any{
			"status":       domain.StatusCompleted,
			"card_number":  card.Number,
			"responded_at": now,
		}); err != nil {
			return err
		}

		t.Status = domain.StatusCompleted
		t.CardNumber = &card.Number
		t.RespondedAt = &now
		view = domain.TransactionView{Transaction: *t, CardLast4: card.Last4(), SenderName: sender.Name, ReceiverName: receiver.Name}
		return nil
	})
	if err != nil {
		logFailure("accept_transfer_request", logrus.Fields{"transaction_id": id, "caller": caller.DNI()}, err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": view.ID,
		"sender":         view.SenderDNI,
		"receiver":       view.ReceiverDNI,
		"amount":         view.Amount.String(),
	}).Info("Transfer request accepted")
	return &view, nil
}

// RejectTransferRequest refuses a PENDING transfer. Only the sender may do so.
func (e *Engine) RejectTransferRequest(ctx context.Context, caller domain.Caller, id uint) (*domain.TransactionView, error) {
	return e.close(ctx, caller, id, domain.StatusRejected, func(t *domain.Transaction) error {
		if t.SenderDNI != caller.DNI() {
			return domain.Forbidden("Not authorized to reject this request")
		}
		return nil
	})
}

// RevokeTransferRequest cancels a PENDING transfer. Only its initiator may do so.
func (e *Engine) RevokeTransferRequest(ctx context.Context, caller domain.Caller, id uint) (*domain.TransactionView, error) {
	return e.close(ctx, caller, id, domain.StatusRevoked, func(t *domain.Transaction) error {
		if t.InitiatorDNI != caller.DNI() {
			return domain.Forbidden("Not authorized to revoke this request")
		}
		return nil
	})
}

// close ends a PENDING transfer without moving money
func (e *Engine) close(ctx context.Context, caller domain.Caller, id uint, status domain.TransactionStatus, authorize func(*domain.Transaction) error) (*domain.TransactionView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var settled *domain.Transaction
	err := e.transact(ctx, func(tx *gorm.DB) error {
		t, err := loadPending(tx, id)
		if err != nil {
			return err
		}
		if err := authorize(t); err != nil {
			return err
		}
		now := e.now()
		if err := transition(tx, t, map[string]any{"status": status, "responded_at": now}); err != nil {
			return err
		}
		t.Status = status
		t.RespondedAt = &now
		settled = t
		return nil
	})
	if err != nil {
		logFailure("close_transfer_request", logrus.Fields{"transaction_id": id, "caller": caller.DNI(), "target": string(status)}, err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": settled.ID,
		"status":         string(settled.Status),
		"caller":         caller.DNI(),
	}).Info("Transfer request closed")

	views, err := e.enrich(ctx, []domain.Transaction{*settled})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}
