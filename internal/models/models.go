package models

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Delivery status values. Transitions are terminal: a delivery leaves
// "scheduled" for either "completed" or "flagged" and never comes back.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusFlagged   = "flagged"
)

// Delivery represents a scheduled order drop-off
type Delivery struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	Date            string      `gorm:"not null;index" json:"date"`
	TimeOfDay       string      `gorm:"not null" json:"time"`
	Description     string      `gorm:"not null" json:"description"`
	LeadTimeMinutes int         `gorm:"not null;default:30" json:"lead_time_minutes"`
	ReminderRef     *string     `json:"reminder_ref,omitempty"`
	Status          string      `gorm:"not null;default:scheduled;index" json:"status"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
	OrderLines      []OrderLine `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE" json:"order_lines,omitempty"`
}

// ScheduledAt parses the delivery's date and time-of-day into a local
// time.Time. Date is "2006-01-02" and TimeOfDay is "15:04".
func (d *Delivery) ScheduledAt() (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", fmt.Sprintf("%s %s", d.Date, d.TimeOfDay), time.Local)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid delivery date/time %q %q", d.Date, d.TimeOfDay)
	}
	return t, nil
}

// StockItem represents one snack product and its quantity on hand
type StockItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null;uniqueIndex" json:"name"`
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`
	UnitPrice float64   `gorm:"not null;default:0" json:"unit_price"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderLine links a delivery to the stock it consumes
type OrderLine struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DeliveryID  uint      `gorm:"not null;index" json:"delivery_id"`
	StockItemID uint      `gorm:"not null;index" json:"stock_item_id"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	StockItem   StockItem `gorm:"foreignKey:StockItemID" json:"-"`
}

// CredentialID is the fixed primary key of the singleton credential row.
const CredentialID = 1

// Credential holds the outbound voice-device credential, a single row.
// AccessToken carries an opaque "token:device" pair.
type Credential struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AccessToken string     `json:"-"`
	ExpiresAt   *time.Time `json:"expires_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// OperatorID is the fixed primary key of the singleton operator row.
const OperatorID = 1

// Operator is the single login account for the application
type Operator struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PasswordHash string    `gorm:"not null" json:"-"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Session is an issued login session
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"not null;uniqueIndex" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Delivery{},
		&StockItem{},
		&OrderLine{},
		&Credential{},
		&Operator{},
		&Session{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
