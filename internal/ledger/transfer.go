package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"p2p_wallet/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DirectTransfer moves money from the caller to ReceiverDNI immediately
type DirectTransfer struct {
	ReceiverDNI string
	Amount      decimal.Decimal
	CardNumber  string
	Message     string
}

// Direction says which side of a pending transfer the caller is on
type Direction string

const (
	DirectionRequest Direction = "request" // Caller asks the counterparty for money
	DirectionOffer   Direction = "offer"   // Caller will pay the counterparty once confirmed
)

// ParseDirection validates a raw direction, defaulting to request
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case "":
		return DirectionRequest, nil
	case DirectionRequest, DirectionOffer:
		return d, nil
	default:
		return "", domain.Invalid("Direction must be either request or offer")
	}
}

// TransferRequest creates a PENDING transfer between the caller and CounterpartyDNI
type TransferRequest struct {
	CounterpartyDNI string
	Amount          decimal.Decimal
	Message         string
	Direction       Direction
}

// CreateDirectTransfer settles a SENT transfer from the caller in one transaction
func (e *Engine) CreateDirectTransfer(ctx context.Context, caller domain.Caller, in DirectTransfer) (*domain.TransactionView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	var view domain.TransactionView
	err := e.transact(ctx, func(tx *gorm.DB) error {
		users, err := lockUsers(tx, caller.DNI(), in.ReceiverDNI)
		if err != nil {
			return err
		}
		receiver, ok := users[in.ReceiverDNI]
		if !ok {
			return domain.NotFound("Receiver not found")
		}
		if in.ReceiverDNI == caller.DNI() {
			return domain.Invalid("Cannot send money to yourself")
		}
		sender, ok := users[caller.DNI()]
		if !ok {
			return domain.NotFound("User not found")
		}
		if err := e.checkBlocks(tx, "send money", sender.DNI, receiver.DNI); err != nil {
			return err
		}
		if sender.Balance.LessThan(in.Amount) {
			return domain.NewError(http.StatusBadRequest, domain.ErrInsufficientFunds, "Insufficient funds")
		}
		card, err := e.cards.ResolveFundingCard(tx, sender.DNI, in.CardNumber)
		if errors.Is(err, domain.ErrNotFound) {
			return invalidCard()
		} else if err != nil {
			return err
		}
		now := e.now()
		if !card.Active || card.Expired(now) {
			return invalidCard()
		}

		t := domain.Transaction{
			Amount:       in.Amount,
			Message:      in.Message,
			SenderDNI:    sender.DNI,
			ReceiverDNI:  receiver.DNI,
			InitiatorDNI: sender.DNI,
			CardNumber:   &card.Number,
			Type:         domain.TransactionSent,
			Status:       domain.StatusCompleted,
			CreatedAt:    now,
			RespondedAt:  &now,
		}
		if err := tx.Create(&t).Error; err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if err := moveFunds(tx, sender, receiver, in.Amount); err != nil {
			return err
		}
		view = domain.TransactionView{Transaction: t, CardLast4: card.Last4(), SenderName: sender.Name, ReceiverName: receiver.Name}
		return nil
	})
	if err != nil {
		logFailure("create_direct_transfer", logrus.Fields{"sender": caller.DNI(), "receiver": in.ReceiverDNI, "amount": in.Amount.String()}, err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": view.ID,
		"sender":         view.SenderDNI,
		"receiver":       view.ReceiverDNI,
		"amount":         view.Amount.String(),
	}).Info("Direct transfer completed")
	return &view, nil
}

// CreateTransferRequest records a PENDING REQUEST transfer. No money moves until the sender accepts it.
func (e *Engine) CreateTransferRequest(ctx context.Context, caller domain.Caller, in TransferRequest) (*domain.TransactionView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	direction, err := ParseDirection(string(in.Direction))
	if err != nil {
		return nil, err
	}

	t := domain.Transaction{
		Amount:       in.Amount,
		Message:      in.Message,
		InitiatorDNI: caller.DNI(),
		Type:         domain.TransactionRequest,
		Status:       domain.StatusPending,
	}
	missing := "Sender not found"
	if direction == DirectionRequest {
		t.SenderDNI, t.ReceiverDNI = in.CounterpartyDNI, caller.DNI()
	} else {
		t.SenderDNI, t.ReceiverDNI = caller.DNI(), in.CounterpartyDNI
		missing = "Receiver not found"
	}

	var view domain.TransactionView
	err = e.transact(ctx, func(tx *gorm.DB) error {
		var counterparty domain.User
		err := tx.Where("dni = ? AND active = ?", in.CounterpartyDNI, true).Take(&counterparty).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Invalid(missing)
		} else if err != nil {
			return err
		}
		if counterparty.DNI == caller.DNI() {
			return domain.Invalid("Cannot request money from yourself")
		}
		var self domain.User
		if err := tx.Where("dni = ? AND active = ?", caller.DNI(), true).Take(&self).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFound("User not found")
			}
			return err
		}
		if err := e.checkBlocks(tx, "request transaction", caller.DNI(), counterparty.DNI); err != nil {
			return err
		}

		row := t
		row.ID = 0
		row.CreatedAt = e.now()
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		view = domain.TransactionView{Transaction: row}
		if row.SenderDNI == self.DNI {
			view.SenderName, view.ReceiverName = self.Name, counterparty.Name
		} else {
			view.SenderName, view.ReceiverName = counterparty.Name, self.Name
		}
		return nil
	})
	if err != nil {
		logFailure("create_transfer_request", logrus.Fields{"initiator": caller.DNI(), "counterparty": in.CounterpartyDNI, "direction": string(direction)}, err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": view.ID,
		"sender":         view.SenderDNI,
		"receiver":       view.ReceiverDNI,
		"initiator":      view.InitiatorDNI,
		"amount":         view.Amount.String(),
	}).Info("Transfer request created")
	return &view, nil
}

func invalidCard() error {
	return domain.NewError(http.StatusBadRequest, domain.ErrInvalidCard, "Invalid credit card")
}
