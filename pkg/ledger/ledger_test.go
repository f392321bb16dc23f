package ledger

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func setupLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))

	t.Cleanup(func() { _ = st.Stop() })

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)

	return New(log, st, opts...)
}

var (
	headCashier = domain.NewStaffSession(domain.RoleHeadCashier)
	cashier     = domain.NewStaffSession(domain.RoleCashier)
	clientA     = &domain.Session{Role: domain.RoleClient, Identity: "ivanov", Phone: "+7900"}
	clientB     = &domain.Session{Role: domain.RoleClient, Identity: "petrov", Phone: "+7911"}
)

func passportDraft(phone string) domain.ItemDraft {
	return domain.ItemDraft{
		Name:          "Passport",
		Category:      domain.CategoryDocuments,
		ClientName:    "Ivanov",
		ClientPhone:   phone,
		DepositAmount: 100,
	}
}

func TestCreateItem(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	item, err := l.CreateItem(ctx, headCashier, passportDraft("+7900"))
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, domain.StatusStored, item.Status)
	assert.Regexp(t, regexp.MustCompile(`^QR-1741964966000-[0-9A-Z]{9}$`), item.QRCode)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), item.DepositDate,
		"zero deposit date defaults to today")

	items, err := l.VisibleItems(ctx, cashier)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)

	archive, err := l.VisibleArchive(ctx, cashier)
	require.NoError(t, err)
	assert.Empty(t, archive)
}

func TestCreateItem_DefaultsCategory(t *testing.T) {
	l := setupLedger(t)

	draft := passportDraft("+7900")
	draft.Category = ""

	item, err := l.CreateItem(context.Background(), headCashier, draft)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryDocuments, item.Category)
}

func TestCreateItem_Validation(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		session *domain.Session
		mutate  func(*domain.ItemDraft)
		want    error
	}{
		{
			name:    "cashier below required level",
			session: cashier,
			mutate:  func(*domain.ItemDraft) {},
			want:    domain.ErrForbidden,
		},
		{
			name:    "no session",
			session: nil,
			mutate:  func(*domain.ItemDraft) {},
			want:    domain.ErrForbidden,
		},
		{
			name:    "missing name",
			session: headCashier,
			mutate:  func(d *domain.ItemDraft) { d.Name = "" },
			want:    domain.ErrMissingField,
		},
		{
			name:    "missing client name",
			session: headCashier,
			mutate:  func(d *domain.ItemDraft) { d.ClientName = "" },
			want:    domain.ErrMissingField,
		},
		{
			name:    "missing client phone",
			session: headCashier,
			mutate:  func(d *domain.ItemDraft) { d.ClientPhone = "" },
			want:    domain.ErrMissingField,
		},
		{
			name:    "unknown category",
			session: headCashier,
			mutate:  func(d *domain.ItemDraft) { d.Category = "jewellery" },
			want:    domain.ErrInvalidField,
		},
		{
			name:    "negative amount",
			session: headCashier,
			mutate:  func(d *domain.ItemDraft) { d.DepositAmount = -1 },
			want:    domain.ErrInvalidField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := passportDraft("+7900")
			tt.mutate(&draft)

			_, err := l.CreateItem(ctx, tt.session, draft)
			require.ErrorIs(t, err, tt.want)
		})
	}

	items, err := l.VisibleItems(ctx, cashier)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateItem_MissingFieldNamesField(t *testing.T) {
	l := setupLedger(t)

	draft := passportDraft("+7900")
	draft.ClientPhone = ""

	_, err := l.CreateItem(context.Background(), headCashier, draft)

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "clientPhone", derr.Field)
}

func TestCreateItem_DuplicateID(t *testing.T) {
	l := setupLedger(t, WithIDGenerator(func() string { return "fixed-id" }))
	ctx := context.Background()

	_, err := l.CreateItem(ctx, headCashier, passportDraft("+7900"))
	require.NoError(t, err)

	_, err = l.CreateItem(ctx, headCashier, passportDraft("+7900"))
	require.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestIssueAndReturn(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	created, err := l.CreateItem(ctx, headCashier, passportDraft("+7900"))
	require.NoError(t, err)

	before, err := l.VisibleItems(ctx, cashier)
	require.NoError(t, err)
	require.Len(t, before, 1)

	issued, err := l.IssueItem(ctx, cashier, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, issued.Status)

	active, err := l.VisibleItems(ctx, cashier)
	require.NoError(t, err)
	assert.Empty(t, active)

	archive, err := l.VisibleArchive(ctx, cashier)
	require.NoError(t, err)
	require.Len(t, archive, 1)
	assert.Equal(t, created.ID, archive[0].ID)
	assert.Equal(t, domain.StatusIssued, archive[0].Status)

	_, err = l.IssueItem(ctx, cashier, created.ID)
	require.ErrorIs(t, err, domain.ErrNotFound, "issued item is no longer active")

	returned, err := l.ReturnItem(ctx, cashier, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStored, returned.Status)

	after, err := l.VisibleItems(ctx, cashier)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0], after[0], "issue then return restores the record")

	archive, err = l.VisibleArchive(ctx, cashier)
	require.NoError(t, err)
	assert.Empty(t, archive)

	_, err = l.ReturnItem(ctx, cashier, created.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIssueAndReturn_RoundTripsZonedDates(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	msk := time.FixedZone("MSK", 3*60*60)
	pickup := time.Date(2025, 3, 20, 18, 0, 0, 0, msk)

	draft := passportDraft("+7900")
	draft.DepositDate = time.Date(2025, 3, 14, 12, 0, 0, 0, msk)
	draft.PickupDate = &pickup

	created, err := l.CreateItem(ctx, headCashier, draft)
	require.NoError(t, err)
	require.NotNil(t, created.PickupDate)
	assert.Equal(t, time.UTC, created.PickupDate.Location())
	assert.True(t, pickup.Equal(*created.PickupDate))

	_, err = l.IssueItem(ctx, cashier, created.ID)
	require.NoError(t, err)

	returned, err := l.ReturnItem(ctx, cashier, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, returned)
}

func TestIssueItem_Gating(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	created, err := l.CreateItem(ctx, headCashier, passportDraft("+7900"))
	require.NoError(t, err)

	_, err = l.IssueItem(ctx, clientA, created.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = l.IssueItem(ctx, cashier, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	items, err := l.VisibleItems(ctx, cashier)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestIssueItem_Concurrent(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	created, err := l.CreateItem(ctx, headCashier, passportDraft("+7900"))
	require.NoError(t, err)

	const workers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		notFound int
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := l.IssueItem(ctx, cashier, created.ID)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				ok++
			case domain.KindOf(err) == domain.KindNotFound:
				notFound++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, notFound)

	archive, err := l.VisibleArchive(ctx, cashier)
	require.NoError(t, err)
	assert.Len(t, archive, 1)
}

func TestVisibility_ClientFilter(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	mine, err := l.CreateItem(ctx, headCashier, passportDraft("+7900"))
	require.NoError(t, err)

	_, err = l.CreateItem(ctx, headCashier, passportDraft("+7911"))
	require.NoError(t, err)

	items, err := l.VisibleItems(ctx, clientA)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, mine.ID, items[0].ID)

	all, err := l.VisibleItems(ctx, cashier)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = l.IssueItem(ctx, cashier, mine.ID)
	require.NoError(t, err)

	archive, err := l.VisibleArchive(ctx, clientB)
	require.NoError(t, err)
	assert.Empty(t, archive)

	archive, err = l.VisibleArchive(ctx, clientA)
	require.NoError(t, err)
	assert.Len(t, archive, 1)
}

func TestFindByQRCode(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	created, err := l.CreateItem(ctx, headCashier, passportDraft("+7900"))
	require.NoError(t, err)

	found, err := l.FindByQRCode(ctx, cashier, created.QRCode)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = l.IssueItem(ctx, cashier, created.ID)
	require.NoError(t, err)

	found, err = l.FindByQRCode(ctx, clientA, created.QRCode)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, found.Status)

	_, err = l.FindByQRCode(ctx, clientB, created.QRCode)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = l.FindByQRCode(ctx, cashier, "QR-0-NOPE")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
