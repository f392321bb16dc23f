package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func testItem(id, phone string) *store.Item {
	return &store.Item{
		ID:            id,
		Name:          "Passport " + id,
		Category:      "documents",
		ClientName:    "Ivanov",
		ClientPhone:   phone,
		DepositDate:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DepositAmount: 500,
		Status:        "stored",
		QRCode:        "QR-" + id,
	}
}

func TestStore_CreateUserRejectsDuplicatePhone(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &store.User{
		Username: "ivanov", Phone: "+7900", Role: "client", Source: store.SourceAdmin,
	}))

	err := s.CreateUser(ctx, &store.User{
		Username: "petrov", Phone: "+7900", Role: "client", Source: store.SourceAdmin,
	})
	require.ErrorIs(t, err, store.ErrDuplicate)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ivanov", users[0].Username)
}

func TestStore_GetUserByPhoneNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetUserByPhone(context.Background(), "+7000")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ToggleUserBlocked(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &store.User{
		Username: "ivanov", Phone: "+7900", Role: "client", Source: store.SourceAdmin,
	}))

	u, err := s.ToggleUserBlocked(ctx, "+7900", nil)
	require.NoError(t, err)
	assert.True(t, u.Blocked)

	u, err = s.ToggleUserBlocked(ctx, "+7900", nil)
	require.NoError(t, err)
	assert.False(t, u.Blocked)

	veto := errors.New("veto")
	_, err = s.ToggleUserBlocked(ctx, "+7900", func(*store.User) error { return veto })
	require.ErrorIs(t, err, veto)

	stored, err := s.GetUserByPhone(ctx, "+7900")
	require.NoError(t, err)
	assert.False(t, stored.Blocked, "vetoed toggle must not write")

	_, err = s.ToggleUserBlocked(ctx, "+7111", nil)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ArchiveAndRestore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateItem(ctx, testItem("a", "+7900")))
	require.NoError(t, s.CreateItem(ctx, testItem("b", "+7911")))

	archived, err := s.ArchiveItem(ctx, "a", "issued")
	require.NoError(t, err)
	assert.Equal(t, "issued", archived.Status)

	active, err := s.ListActiveItems(ctx, "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].ID)

	archive, err := s.ListArchivedItems(ctx, "")
	require.NoError(t, err)
	require.Len(t, archive, 1)
	assert.Equal(t, "a", archive[0].ID)

	_, err = s.ArchiveItem(ctx, "a", "issued")
	require.ErrorIs(t, err, store.ErrNotFound)

	restored, err := s.RestoreItem(ctx, "a", "stored")
	require.NoError(t, err)
	assert.Equal(t, "stored", restored.Status)

	_, err = s.RestoreItem(ctx, "a", "stored")
	require.ErrorIs(t, err, store.ErrNotFound)

	archive, err = s.ListArchivedItems(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, archive)
}

func TestStore_ListFiltersByPhone(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateItem(ctx, testItem("a", "+7900")))
	require.NoError(t, s.CreateItem(ctx, testItem("b", "+7911")))

	items, err := s.ListActiveItems(ctx, "+7911")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)
}

func TestStore_ConcurrentArchiveOnlyOneWins(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateItem(ctx, testItem("a", "+7900")))

	const workers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		notFound int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := s.ArchiveItem(ctx, "a", "issued")

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrNotFound):
				notFound++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, notFound)
}

func TestStore_FindItemByQRCode(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateItem(ctx, testItem("a", "+7900")))
	require.NoError(t, s.CreateItem(ctx, testItem("b", "+7900")))

	_, err := s.ArchiveItem(ctx, "b", "issued")
	require.NoError(t, err)

	item, archived, err := s.FindItemByQRCode(ctx, "QR-a")
	require.NoError(t, err)
	assert.False(t, archived)
	assert.Equal(t, "a", item.ID)

	item, archived, err = s.FindItemByQRCode(ctx, "QR-b")
	require.NoError(t, err)
	assert.True(t, archived)
	assert.Equal(t, "b", item.ID)

	_, _, err = s.FindItemByQRCode(ctx, "QR-missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_CreateItemDuplicateID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateItem(ctx, testItem("a", "+7900")))

	dup := testItem("a", "+7900")
	dup.QRCode = "QR-other"

	require.Error(t, s.CreateItem(ctx, dup))
}

func TestStore_Sessions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	live := &store.Session{
		Token:     "live",
		Role:      "cashier",
		Identity:  "cashier",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	expired := &store.Session{
		Token:     "expired",
		Role:      "admin",
		Identity:  "admin",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	require.NoError(t, s.CreateSession(ctx, live))
	require.NoError(t, s.CreateSession(ctx, expired))

	got, err := s.GetSessionByToken(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "cashier", got.Role)

	require.NoError(t, s.UpdateSessionLastActive(ctx, got.ID, time.Now().UTC()))

	require.NoError(t, s.DeleteExpiredSessions(ctx))

	_, err = s.GetSessionByToken(ctx, "expired")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteSession(ctx, "live"))

	_, err = s.GetSessionByToken(ctx, "live")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SeedUsersIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seed := []config.DirectoryUser{
		{Username: "ivanov", Phone: "+7900", Role: "client"},
	}

	require.NoError(t, s.SeedUsers(ctx, seed))

	_, err := s.ToggleUserBlocked(ctx, "+7900", nil)
	require.NoError(t, err)

	require.NoError(t, s.SeedUsers(ctx, seed))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].Blocked, "seeding keeps existing accounts untouched")
	assert.Equal(t, store.SourceConfig, users[0].Source)
}
