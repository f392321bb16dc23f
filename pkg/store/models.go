package store

import (
	"time"

	"github.com/qrdesk/qrdesk/pkg/domain"
)

// User source constants.
const (
	SourceConfig = "config"
	SourceAdmin  = "admin"
)

// User is a directory account keyed by phone.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"not null" json:"username"`
	Phone     string    `gorm:"uniqueIndex;not null" json:"phone"`
	Role      string    `gorm:"not null" json:"role"`
	Blocked   bool      `gorm:"not null;default:false" json:"blocked"`
	Source    string    `gorm:"not null" json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToDomain converts the record into a directory account.
func (u *User) ToDomain() *domain.UserAccount {
	return &domain.UserAccount{
		Username:  u.Username,
		Phone:     u.Phone,
		Role:      domain.Role(u.Role),
		Blocked:   u.Blocked,
		CreatedAt: u.CreatedAt,
	}
}

// Item is a record in the active collection.
type Item struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"not null" json:"name"`
	Category      string     `gorm:"not null" json:"category"`
	ClientName    string     `gorm:"not null" json:"client_name"`
	ClientPhone   string     `gorm:"index;not null" json:"client_phone"`
	ClientEmail   string     `json:"client_email"`
	DepositDate   time.Time  `json:"deposit_date"`
	PickupDate    *time.Time `json:"pickup_date"`
	DepositAmount int64      `json:"deposit_amount"`
	PickupAmount  int64      `json:"pickup_amount"`
	Status        string     `gorm:"not null" json:"status"`
	QRCode        string     `gorm:"uniqueIndex;not null" json:"qr_code"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ArchivedItem is a record in the archive collection. It shares the layout
// of Item so records move between the two by conversion.
type ArchivedItem Item

// TableName places archived records in their own table.
func (ArchivedItem) TableName() string {
	return "archived_items"
}

// NewItem builds an active record from a domain item.
func NewItem(it *domain.Item) *Item {
	return &Item{
		ID:            it.ID,
		Name:          it.Name,
		Category:      string(it.Category),
		ClientName:    it.ClientName,
		ClientPhone:   it.ClientPhone,
		ClientEmail:   it.ClientEmail,
		DepositDate:   it.DepositDate,
		PickupDate:    it.PickupDate,
		DepositAmount: it.DepositAmount,
		PickupAmount:  it.PickupAmount,
		Status:        string(it.Status),
		QRCode:        it.QRCode,
	}
}

// ToDomain converts the record into a domain item.
func (i *Item) ToDomain() *domain.Item {
	var pickup *time.Time

	if i.PickupDate != nil {
		t := i.PickupDate.UTC()
		pickup = &t
	}

	return &domain.Item{
		ID:            i.ID,
		Name:          i.Name,
		Category:      domain.Category(i.Category),
		ClientName:    i.ClientName,
		ClientPhone:   i.ClientPhone,
		ClientEmail:   i.ClientEmail,
		DepositDate:   i.DepositDate.UTC(),
		PickupDate:    pickup,
		DepositAmount: i.DepositAmount,
		PickupAmount:  i.PickupAmount,
		Status:        domain.Status(i.Status),
		QRCode:        i.QRCode,
	}
}

// ToDomain converts the archived record into a domain item.
func (a *ArchivedItem) ToDomain() *domain.Item {
	return (*Item)(a).ToDomain()
}

// Session is an API session bound to a token.
type Session struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Token        string     `gorm:"uniqueIndex;not null" json:"-"`
	Role         string     `gorm:"not null" json:"role"`
	Identity     string     `gorm:"not null" json:"identity"`
	Phone        string     `json:"phone"`
	ExpiresAt    time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt *time.Time `json:"last_active_at"`
}

// ToDomain converts the record into the session it authenticates.
func (s *Session) ToDomain() *domain.Session {
	return &domain.Session{
		Role:     domain.Role(s.Role),
		Identity: s.Identity,
		Phone:    s.Phone,
	}
}
