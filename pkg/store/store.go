package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate key")
)

// Store provides persistence for directory accounts, the item ledger and
// API sessions.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Directory accounts.
	CreateUser(ctx context.Context, user *User) error
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// ToggleUserBlocked flips the blocked flag of the account with the given
	// phone. check runs inside the transaction and may veto the change.
	ToggleUserBlocked(
		ctx context.Context, phone string, check func(*User) error,
	) (*User, error)

	// Ledger.
	CreateItem(ctx context.Context, item *Item) error
	// ListActiveItems returns active items, filtered by client phone when
	// phone is not empty.
	ListActiveItems(ctx context.Context, phone string) ([]Item, error)
	// ListArchivedItems returns archived items, filtered like ListActiveItems.
	ListArchivedItems(ctx context.Context, phone string) ([]ArchivedItem, error)
	// ArchiveItem moves an item from the active to the archive collection.
	ArchiveItem(ctx context.Context, id, status string) (*ArchivedItem, error)
	// RestoreItem moves an item from the archive back to the active collection.
	RestoreItem(ctx context.Context, id, status string) (*Item, error)
	// FindItemByQRCode searches both collections. archived reports which
	// one held the item.
	FindItemByQRCode(
		ctx context.Context, code string,
	) (item *Item, archived bool, err error)

	// API sessions.
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	UpdateSessionLastActive(ctx context.Context, id uint, t time.Time) error
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) error

	// Seeding from config.
	SeedUsers(ctx context.Context, users []config.DirectoryUser) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// One connection keeps an in-memory database shared across callers
		// and serializes writers.
		sqlDB, err := s.db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&User{},
		&Item{},
		&ArchivedItem{},
		&Session{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Directory ---

// CreateUser inserts user unless its phone is already registered. The check
// and the insert run in one transaction.
func (s *store) CreateUser(ctx context.Context, user *User) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).
			Where("phone = ?", user.Phone).
			Count(&count).Error; err != nil {
			return err
		}

		if count > 0 {
			return ErrDuplicate
		}

		return tx.Create(user).Error
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicate), errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return fmt.Errorf("creating user: %w", err)
	}
}

func (s *store) GetUserByPhone(
	ctx context.Context, phone string,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).
		Where("phone = ?", phone).
		First(&user).Error; err != nil {
		return nil, wrapNotFound(err, "getting user by phone")
	}

	return &user, nil
}

func (s *store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return users, nil
}

func (s *store) ToggleUserBlocked(
	ctx context.Context, phone string, check func(*User) error,
) (*User, error) {
	var user User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("phone = ?", phone).First(&user).Error; err != nil {
			return err
		}

		if check != nil {
			if err := check(&user); err != nil {
				return err
			}
		}

		user.Blocked = !user.Blocked

		return tx.Model(&User{}).
			Where("id = ?", user.ID).
			Update("blocked", user.Blocked).Error
	})
	if err != nil {
		return nil, wrapNotFound(err, "toggling user block")
	}

	return &user, nil
}

// --- Ledger ---

func (s *store) CreateItem(ctx context.Context, item *Item) error {
	err := s.db.WithContext(ctx).Create(item).Error

	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return fmt.Errorf("creating item: %w", err)
	}
}

func (s *store) ListActiveItems(
	ctx context.Context, phone string,
) ([]Item, error) {
	var items []Item
	if err := byClientPhone(s.db.WithContext(ctx), phone).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("listing active items: %w", err)
	}

	return items, nil
}

func (s *store) ListArchivedItems(
	ctx context.Context, phone string,
) ([]ArchivedItem, error) {
	var items []ArchivedItem
	if err := byClientPhone(s.db.WithContext(ctx), phone).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("listing archived items: %w", err)
	}

	return items, nil
}

// ArchiveItem deletes the active record and inserts it into the archive in
// one transaction. Of two concurrent calls for the same id only one sees a
// deleted row; the other gets ErrNotFound.
func (s *store) ArchiveItem(
	ctx context.Context, id, status string,
) (*ArchivedItem, error) {
	var archived ArchivedItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item Item
		if err := tx.Where("id = ?", id).First(&item).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&Item{})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		archived = ArchivedItem(item)
		archived.Status = status

		return tx.Create(&archived).Error
	})
	if err != nil {
		return nil, wrapNotFound(err, "archiving item")
	}

	return &archived, nil
}

// RestoreItem is the inverse of ArchiveItem.
func (s *store) RestoreItem(
	ctx context.Context, id, status string,
) (*Item, error) {
	var restored Item

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var archived ArchivedItem
		if err := tx.Where("id = ?", id).First(&archived).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&ArchivedItem{})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		restored = Item(archived)
		restored.Status = status

		return tx.Create(&restored).Error
	})
	if err != nil {
		return nil, wrapNotFound(err, "restoring item")
	}

	return &restored, nil
}

func (s *store) FindItemByQRCode(
	ctx context.Context, code string,
) (*Item, bool, error) {
	var item Item

	err := s.db.WithContext(ctx).Where("qr_code = ?", code).First(&item).Error
	if err == nil {
		return &item, false, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("finding active item: %w", err)
	}

	var archived ArchivedItem
	if err := s.db.WithContext(ctx).
		Where("qr_code = ?", code).
		First(&archived).Error; err != nil {
		return nil, false, wrapNotFound(err, "finding archived item")
	}

	found := Item(archived)

	return &found, true, nil
}

// --- Session CRUD ---

func (s *store) CreateSession(
	ctx context.Context, session *Session,
) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

func (s *store) GetSessionByToken(
	ctx context.Context, token string,
) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		First(&session).Error; err != nil {
		return nil, wrapNotFound(err, "getting session by token")
	}

	return &session, nil
}

func (s *store) UpdateSessionLastActive(
	ctx context.Context, id uint, t time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Update("last_active_at", t).Error; err != nil {
		return fmt.Errorf("updating session last active: %w", err)
	}

	return nil
}

func (s *store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

func (s *store) DeleteExpiredSessions(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&Session{})
	if result.Error != nil {
		return fmt.Errorf("deleting expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired sessions")
	}

	return nil
}

// --- Seeding ---

// SeedUsers inserts config-sourced accounts. Accounts whose phone already
// exists are left untouched, so admin changes such as blocking survive a
// restart against a persistent database.
func (s *store) SeedUsers(
	ctx context.Context, users []config.DirectoryUser,
) error {
	for _, u := range users {
		user := User{
			Username: u.Username,
			Phone:    u.Phone,
			Role:     u.Role,
			Source:   SourceConfig,
		}

		if err := s.db.WithContext(ctx).
			Where("phone = ?", u.Phone).
			FirstOrCreate(&user).Error; err != nil {
			return fmt.Errorf("seeding user %q: %w", u.Phone, err)
		}
	}

	s.log.WithField("count", len(users)).
		Info("Seeded users from config")

	return nil
}

func byClientPhone(db *gorm.DB, phone string) *gorm.DB {
	if phone == "" {
		return db
	}

	return db.Where("client_phone = ?", phone)
}

// wrapNotFound maps gorm's not-found error to ErrNotFound and wraps anything
// else with op.
func wrapNotFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}

	return fmt.Errorf("%s: %w", op, err)
}
