package ledger

import (
	"context"
	"errors"
	"time"

	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/utils"

	"gorm.io/gorm"
)

// ListFilter narrows a caller's transfer history
type ListFilter struct {
	CompletedOnly bool
	Page          utils.Page
}

// AdminFilter narrows the admin listing; zero fields are ignored
type AdminFilter struct {
	Type    domain.TransactionType
	Status  domain.TransactionStatus
	UserDNI string
	From    time.Time
	To      time.Time
	Page    utils.Page
}

// ListTransfers returns transfers where the caller is sender or receiver, newest first
func (e *Engine) ListTransfers(ctx context.Context, caller domain.Caller, f ListFilter) ([]domain.TransactionView, int64, error) {
	if err := requireCaller(caller); err != nil {
		return nil, 0, err
	}
	q := e.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("sender_dni = ? OR receiver_dni = ?", caller.DNI(), caller.DNI())
	if f.CompletedOnly {
		q = q.Where("status = ?", domain.StatusCompleted)
	}
	return e.page(ctx, q, f.Page)
}

// GetTransfer returns one transfer the caller takes part in. Admins may read any.
func (e *Engine) GetTransfer(ctx context.Context, caller domain.Caller, id uint) (*domain.TransactionView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	var t domain.Transaction
	err := e.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound("Transaction not found")
	} else if err != nil {
		return nil, err
	}
	if !t.Involves(caller.DNI()) && !caller.IsAdmin() {
		return nil, domain.NotFound("Transaction not found")
	}
	views, err := e.enrich(ctx, []domain.Transaction{t})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListPending returns PENDING transfers waiting for the caller to fund or reject them
func (e *Engine) ListPending(ctx context.Context, caller domain.Caller) ([]domain.TransactionView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return e.find(ctx, e.db.WithContext(ctx).
		Where("sender_dni = ? AND status = ?", caller.DNI(), domain.StatusPending))
}

// ListOutgoingRequests returns PENDING transfers the caller created and can still revoke
func (e *Engine) ListOutgoingRequests(ctx context.Context, caller domain.Caller) ([]domain.TransactionView, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return e.find(ctx, e.db.WithContext(ctx).
		Where("initiator_dni = ? AND status = ?", caller.DNI(), domain.StatusPending))
}

// ListAll is the unrestricted admin listing
func (e *Engine) ListAll(ctx context.Context, f AdminFilter) ([]domain.TransactionView, int64, error) {
	q := e.db.WithContext(ctx).Model(&domain.Transaction{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.UserDNI != "" {
		q = q.Where("sender_dni = ? OR receiver_dni = ?", f.UserDNI, f.UserDNI)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To)
	}
	return e.page(ctx, q, f.Page)
}

func (e *Engine) page(ctx context.Context, q *gorm.DB, p utils.Page) ([]domain.TransactionView, int64, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	p = utils.NewPage(p.Page, p.PageSize)
	views, err := e.find(ctx, q.Offset(p.Offset()).Limit(p.PageSize))
	return views, total, err
}

func (e *Engine) find(ctx context.Context, q *gorm.DB) ([]domain.TransactionView, error) {
	var rows []domain.Transaction
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return e.enrich(ctx, rows)
}

// enrich attaches party names and the funding card's last digits
func (e *Engine) enrich(ctx context.Context, rows []domain.Transaction) ([]domain.TransactionView, error) {
	views := make([]domain.TransactionView, len(rows))
	if len(rows) == 0 {
		return views, nil
	}
	dnis := make([]string, 0, 2*len(rows))
	for _, t := range rows {
		dnis = append(dnis, t.SenderDNI, t.ReceiverDNI)
	}
	var users []domain.User
	if err := e.db.WithContext(ctx).Select("dni", "name").Where("dni IN ?", dnis).Find(&users).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.DNI] = u.Name
	}
	name := func(dni string) string {
		if n, ok := names[dni]; ok {
			return n
		}
		return "Unknown"
	}
	for i, t := range rows {
		views[i] = domain.TransactionView{Transaction: t, SenderName: name(t.SenderDNI), ReceiverName: name(t.ReceiverDNI)}
		if t.CardNumber != nil && len(*t.CardNumber) >= 4 {
			views[i].CardLast4 = (*t.CardNumber)[len(*t.CardNumber)-4:]
		}
	}
	return views, nil
}
