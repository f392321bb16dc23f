// Package ledger tracks deposited items through the active and archive
// collections.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/store"
	"github.com/sirupsen/logrus"
)

// Minimum roles for ledger mutations.
const (
	CreateRole = domain.RoleHeadCashier
	MoveRole   = domain.RoleCashier
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock used for deposit dates and QR codes.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithIDGenerator replaces the item id generator.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		l.newID = gen
	}
}

// Ledger records, issues and returns items.
type Ledger struct {
	log   logrus.FieldLogger
	store store.Store
	now   func() time.Time
	newID func() string
}

// New creates a Ledger over st.
func New(log logrus.FieldLogger, st store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		log:   log.WithField("component", "ledger"),
		store: st,
		now:   time.Now,
		newID: uuid.NewString,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// CreateItem validates draft and inserts it into the active collection with
// a fresh id and QR token.
func (l *Ledger) CreateItem(
	ctx context.Context, s *domain.Session, draft domain.ItemDraft,
) (*domain.Item, error) {
	if err := domain.Authorize(s, CreateRole); err != nil {
		return nil, err
	}

	if err := validateDraft(&draft); err != nil {
		return nil, err
	}

	now := l.now().UTC()

	if draft.DepositDate.IsZero() {
		draft.DepositDate = now.Truncate(24 * time.Hour)
	}

	if draft.PickupDate != nil {
		pickup := draft.PickupDate.UTC()
		draft.PickupDate = &pickup
	}

	qr, err := newQRCode(now)
	if err != nil {
		return nil, err
	}

	item := &domain.Item{
		ID:            l.newID(),
		Name:          draft.Name,
		Category:      draft.Category,
		ClientName:    draft.ClientName,
		ClientPhone:   draft.ClientPhone,
		ClientEmail:   draft.ClientEmail,
		DepositDate:   draft.DepositDate.UTC(),
		PickupDate:    draft.PickupDate,
		DepositAmount: draft.DepositAmount,
		PickupAmount:  draft.PickupAmount,
		Status:        domain.StatusStored,
		QRCode:        qr,
	}

	if err := l.store.CreateItem(ctx, store.NewItem(item)); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domain.DuplicateID(item.ID)
		}

		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"by":       s.Identity,
		"item":     item.ID,
		"category": item.Category,
	}).Info("Item accepted")

	return item, nil
}

// IssueItem hands an active item to its owner, moving it to the archive.
func (l *Ledger) IssueItem(
	ctx context.Context, s *domain.Session, id string,
) (*domain.Item, error) {
	if err := domain.Authorize(s, MoveRole); err != nil {
		return nil, err
	}

	archived, err := l.store.ArchiveItem(ctx, id, string(domain.StatusIssued))
	if err != nil {
		return nil, mapNotFound(err, id)
	}

	l.log.WithFields(logrus.Fields{
		"by":   s.Identity,
		"item": id,
	}).Info("Item issued")

	return archived.ToDomain(), nil
}

// ReturnItem puts an issued item back into storage.
func (l *Ledger) ReturnItem(
	ctx context.Context, s *domain.Session, id string,
) (*domain.Item, error) {
	if err := domain.Authorize(s, MoveRole); err != nil {
		return nil, err
	}

	restored, err := l.store.RestoreItem(ctx, id, string(domain.StatusStored))
	if err != nil {
		return nil, mapNotFound(err, id)
	}

	l.log.WithFields(logrus.Fields{
		"by":   s.Identity,
		"item": id,
	}).Info("Item returned to storage")

	return restored.ToDomain(), nil
}

// VisibleItems lists the active collection as seen by s. Clients see only
// items registered to their phone.
func (l *Ledger) VisibleItems(
	ctx context.Context, s *domain.Session,
) ([]domain.Item, error) {
	if s == nil {
		return nil, domain.Forbidden(domain.RoleClient.Level())
	}

	items, err := l.store.ListActiveItems(ctx, phoneFilter(s))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Item, 0, len(items))
	for i := range items {
		out = append(out, *items[i].ToDomain())
	}

	return out, nil
}

// VisibleArchive lists the archive collection as seen by s.
func (l *Ledger) VisibleArchive(
	ctx context.Context, s *domain.Session,
) ([]domain.Item, error) {
	if s == nil {
		return nil, domain.Forbidden(domain.RoleClient.Level())
	}

	items, err := l.store.ListArchivedItems(ctx, phoneFilter(s))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Item, 0, len(items))
	for i := range items {
		out = append(out, *items[i].ToDomain())
	}

	return out, nil
}

// FindByQRCode resolves a scanned token to its item in either collection.
// Clients get NotFound for items that are not theirs.
func (l *Ledger) FindByQRCode(
	ctx context.Context, s *domain.Session, code string,
) (*domain.Item, error) {
	if s == nil {
		return nil, domain.Forbidden(domain.RoleClient.Level())
	}

	rec, _, err := l.store.FindItemByQRCode(ctx, code)
	if err != nil {
		return nil, mapNotFound(err, code)
	}

	if s.IsClient() && rec.ClientPhone != s.Phone {
		return nil, domain.NotFound(code)
	}

	return rec.ToDomain(), nil
}

func validateDraft(d *domain.ItemDraft) error {
	switch {
	case d.Name == "":
		return domain.MissingField("name")
	case d.ClientName == "":
		return domain.MissingField("clientName")
	case d.ClientPhone == "":
		return domain.MissingField("clientPhone")
	}

	if d.Category == "" {
		d.Category = domain.CategoryDocuments
	}

	if !d.Category.Valid() {
		return domain.InvalidField("category")
	}

	if d.DepositAmount < 0 {
		return domain.InvalidField("depositAmount")
	}

	if d.PickupAmount < 0 {
		return domain.InvalidField("pickupAmount")
	}

	return nil
}

func phoneFilter(s *domain.Session) string {
	if s.IsClient() {
		return s.Phone
	}

	return ""
}

func mapNotFound(err error, ref string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFound(ref)
	}

	return fmt.Errorf("ledger: %w", err)
}
