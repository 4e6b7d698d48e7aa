package repositories

import (
	"context"
	"time"

	"example.com/snackhouse/delivery/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Sentinel errors returned by the repository layer.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotScheduled      = errors.New("delivery is not in scheduled status")
	ErrDuplicateName     = errors.New("an item with this name already exists")
)

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// DeliveryRepository provides access to delivery data
type DeliveryRepository interface {
	List(ctx context.Context) ([]models.Delivery, error)
	GetByID(ctx context.Context, id uint) (*models.Delivery, error)
	CreateWithLines(ctx context.Context, delivery *models.Delivery, lines []models.OrderLine) error
	Delete(ctx context.Context, id uint) error
	ListScheduled(ctx context.Context) ([]models.Delivery, error)
	MarkCompleted(ctx context.Context, id uint) error
	MarkFlagged(ctx context.Context, id uint) error
}

// StockRepository provides access to stock item data
type StockRepository interface {
	List(ctx context.Context) ([]models.StockItem, error)
	GetByID(ctx context.Context, id uint) (*models.StockItem, error)
	GetByName(ctx context.Context, name string) (*models.StockItem, error)
	Create(ctx context.Context, item *models.StockItem) error
	Update(ctx context.Context, item *models.StockItem) error
	Delete(ctx context.Context, id uint) error
	AddQuantity(ctx context.Context, id uint, qty int) error
	RemoveQuantity(ctx context.Context, id uint, qty int) error
	ListBelow(ctx context.Context, threshold int) ([]models.StockItem, error)
}

// OrderLineRepository provides access to order line data
type OrderLineRepository interface {
	ListByDelivery(ctx context.Context, deliveryID uint) ([]models.OrderLine, error)
}

// CredentialRepository provides access to the singleton voice credential
type CredentialRepository interface {
	Get(ctx context.Context) (*models.Credential, error)
	Save(ctx context.Context, accessToken string, expiresAt *time.Time) error
	Clear(ctx context.Context) error
}

// OperatorRepository provides access to the singleton operator account
type OperatorRepository interface {
	Get(ctx context.Context) (*models.Operator, error)
	SavePasswordHash(ctx context.Context, hash string) error
}

// SessionRepository provides access to login sessions
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) error
}

// ReportRepository provides the aggregate queries behind the reports view
type ReportRepository interface {
	DeliveryCountBetween(ctx context.Context, from, to time.Time) (int64, error)
	RevenueBetween(ctx context.Context, from, to time.Time) (float64, error)
	TopSellersBetween(ctx context.Context, from, to time.Time, limit int) ([]SellerCount, error)
	DeliveriesPerDayBetween(ctx context.Context, from, to time.Time) ([]DayCount, error)
}

// SellerCount is one row of the top-sellers aggregate
type SellerCount struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// DayCount is one row of the deliveries-per-day aggregate
type DayCount struct {
	Date     string `json:"date"`
	Quantity int    `json:"quantity"`
}

// gormDeliveryRepository implements DeliveryRepository using GORM
type gormDeliveryRepository struct {
	db *gorm.DB
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &gormDeliveryRepository{db: db}
}

func (r *gormDeliveryRepository) List(ctx context.Context) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	err := r.db.WithContext(ctx).
		Order("date ASC, time_of_day ASC").
		Find(&deliveries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list deliveries")
	}
	return deliveries, nil
}

func (r *gormDeliveryRepository) GetByID(ctx context.Context, id uint) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).First(&delivery, id).Error
	if err != nil {
		return nil, wrapNotFound(err, "failed to get delivery by ID")
	}
	return &delivery, nil
}

// CreateWithLines creates a delivery together with its order lines and
// decrements stock for every line, all inside one transaction. The
// decrement is a single conditional update, so an interleaved consumer
// can never drive a quantity below zero; any shortfall rolls the whole
// creation back with ErrInsufficientStock.
func (r *gormDeliveryRepository) CreateWithLines(ctx context.Context, delivery *models.Delivery, lines []models.OrderLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(delivery).Error; err != nil {
			return errors.Wrap(err, "failed to create delivery")
		}

		for i := range lines {
			lines[i].DeliveryID = delivery.ID

			result := tx.Model(&models.StockItem{}).
				Where("id = ? AND quantity >= ?", lines[i].StockItemID, lines[i].Quantity).
				Update("quantity", gorm.Expr("quantity - ?", lines[i].Quantity))
			if result.Error != nil {
				return errors.Wrap(result.Error, "failed to decrement stock")
			}
			if result.RowsAffected == 0 {
				return ErrInsufficientStock
			}

			if err := tx.Create(&lines[i]).Error; err != nil {
				return errors.Wrap(err, "failed to create order line")
			}
		}

		return nil
	})
}

func (r *gormDeliveryRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Cascade order lines explicitly; not every deployment has the FK
		// constraint in place.
		if err := tx.Where("delivery_id = ?", id).Delete(&models.OrderLine{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete order lines")
		}
		if err := tx.Delete(&models.Delivery{}, id).Error; err != nil {
			return errors.Wrap(err, "failed to delete delivery")
		}
		return nil
	})
}

func (r *gormDeliveryRepository) ListScheduled(ctx context.Context) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	err := r.db.WithContext(ctx).
		Where("status = ?", models.StatusScheduled).
		Find(&deliveries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list scheduled deliveries")
	}
	return deliveries, nil
}

func (r *gormDeliveryRepository) MarkCompleted(ctx context.Context, id uint) error {
	return r.markStatus(ctx, id, models.StatusCompleted)
}

func (r *gormDeliveryRepository) MarkFlagged(ctx context.Context, id uint) error {
	return r.markStatus(ctx, id, models.StatusFlagged)
}

// markStatus transitions a delivery out of "scheduled". Completed and
// flagged are terminal, so the update is guarded on the current status.
func (r *gormDeliveryRepository) markStatus(ctx context.Context, id uint, status string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("id = ? AND status = ?", id, models.StatusScheduled).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to mark delivery %s", status)
	}
	if result.RowsAffected == 0 {
		return ErrNotScheduled
	}
	return nil
}

// gormStockRepository implements StockRepository using GORM
type gormStockRepository struct {
	db *gorm.DB
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *gorm.DB) StockRepository {
	return &gormStockRepository{db: db}
}

func (r *gormStockRepository) List(ctx context.Context) ([]models.StockItem, error) {
	var items []models.StockItem
	err := r.db.WithContext(ctx).Order("name ASC").Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stock items")
	}
	return items, nil
}

func (r *gormStockRepository) GetByID(ctx context.Context, id uint) (*models.StockItem, error) {
	var item models.StockItem
	err := r.db.WithContext(ctx).First(&item, id).Error
	if err != nil {
		return nil, wrapNotFound(err, "failed to get stock item by ID")
	}
	return &item, nil
}

func (r *gormStockRepository) GetByName(ctx context.Context, name string) (*models.StockItem, error) {
	var item models.StockItem
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&item).Error
	if err != nil {
		return nil, wrapNotFound(err, "failed to get stock item by name")
	}
	return &item, nil
}

func (r *gormStockRepository) Create(ctx context.Context, item *models.StockItem) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(item).Error, "failed to create stock item")
}

func (r *gormStockRepository) Update(ctx context.Context, item *models.StockItem) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(item).Error, "failed to update stock item")
}

func (r *gormStockRepository) Delete(ctx context.Context, id uint) error {
	return errors.Wrap(r.db.WithContext(ctx).Delete(&models.StockItem{}, id).Error, "failed to delete stock item")
}

func (r *gormStockRepository) AddQuantity(ctx context.Context, id uint, qty int) error {
	result := r.db.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("id = ?", id).
		Update("quantity", gorm.Expr("quantity + ?", qty))
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to add stock quantity")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveQuantity decrements quantity-on-hand. The guard on the current
// quantity makes the check-and-decrement atomic: zero rows affected means
// the item is missing or holds less than requested.
func (r *gormStockRepository) RemoveQuantity(ctx context.Context, id uint, qty int) error {
	result := r.db.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("id = ? AND quantity >= ?", id, qty).
		Update("quantity", gorm.Expr("quantity - ?", qty))
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to remove stock quantity")
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *gormStockRepository) ListBelow(ctx context.Context, threshold int) ([]models.StockItem, error) {
	var items []models.StockItem
	err := r.db.WithContext(ctx).
		Where("quantity <= ?", threshold).
		Order("quantity ASC").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list low stock items")
	}
	return items, nil
}

// gormOrderLineRepository implements OrderLineRepository using GORM
type gormOrderLineRepository struct {
	db *gorm.DB
}

// NewOrderLineRepository creates a new order line repository
func NewOrderLineRepository(db *gorm.DB) OrderLineRepository {
	return &gormOrderLineRepository{db: db}
}

func (r *gormOrderLineRepository) ListByDelivery(ctx context.Context, deliveryID uint) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Preload("StockItem").
		Where("delivery_id = ?", deliveryID).
		Find(&lines).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list order lines")
	}
	return lines, nil
}

// gormCredentialRepository implements CredentialRepository using GORM
type gormCredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &gormCredentialRepository{db: db}
}

func (r *gormCredentialRepository) Get(ctx context.Context) (*models.Credential, error) {
	var cred models.Credential
	err := r.db.WithContext(ctx).First(&cred, models.CredentialID).Error
	if err != nil {
		return nil, wrapNotFound(err, "failed to get credential")
	}
	return &cred, nil
}

func (r *gormCredentialRepository) Save(ctx context.Context, accessToken string, expiresAt *time.Time) error {
	cred := models.Credential{
		ID:          models.CredentialID,
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}
	err := r.db.WithContext(ctx).Save(&cred).Error
	return errors.Wrap(err, "failed to save credential")
}

func (r *gormCredentialRepository) Clear(ctx context.Context) error {
	err := r.db.WithContext(ctx).Delete(&models.Credential{}, models.CredentialID).Error
	return errors.Wrap(err, "failed to clear credential")
}

// gormOperatorRepository implements OperatorRepository using GORM
type gormOperatorRepository struct {
	db *gorm.DB
}

// NewOperatorRepository creates a new operator repository
func NewOperatorRepository(db *gorm.DB) OperatorRepository {
	return &gormOperatorRepository{db: db}
}

func (r *gormOperatorRepository) Get(ctx context.Context) (*models.Operator, error) {
	var op models.Operator
	err := r.db.WithContext(ctx).First(&op, models.OperatorID).Error
	if err != nil {
		return nil, wrapNotFound(err, "failed to get operator")
	}
	return &op, nil
}

func (r *gormOperatorRepository) SavePasswordHash(ctx context.Context, hash string) error {
	op := models.Operator{
		ID:           models.OperatorID,
		PasswordHash: hash,
	}
	err := r.db.WithContext(ctx).Save(&op).Error
	return errors.Wrap(err, "failed to save operator password")
}

// gormSessionRepository implements SessionRepository using GORM
type gormSessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

func (r *gormSessionRepository) Create(ctx context.Context, session *models.Session) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(session).Error, "failed to create session")
}

func (r *gormSessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if err != nil {
		return nil, wrapNotFound(err, "failed to get session by token")
	}
	return &session, nil
}

func (r *gormSessionRepository) Delete(ctx context.Context, token string) error {
	err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Session{}).Error
	return errors.Wrap(err, "failed to delete session")
}

func (r *gormSessionRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	err := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Session{}).Error
	return errors.Wrap(err, "failed to delete expired sessions")
}

// gormReportRepository implements ReportRepository using GORM
type gormReportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &gormReportRepository{db: db}
}

func (r *gormReportRepository) DeliveryCountBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("date >= ? AND date < ?", from.Format("2006-01-02"), to.Format("2006-01-02")).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deliveries")
	}
	return count, nil
}

func (r *gormReportRepository) RevenueBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var revenue float64
	err := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Select("COALESCE(SUM(order_lines.quantity * stock_items.unit_price), 0)").
		Joins("JOIN stock_items ON stock_items.id = order_lines.stock_item_id").
		Joins("JOIN deliveries ON deliveries.id = order_lines.delivery_id").
		Where("deliveries.date >= ? AND deliveries.date < ?", from.Format("2006-01-02"), to.Format("2006-01-02")).
		Scan(&revenue).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to sum revenue")
	}
	return revenue, nil
}

func (r *gormReportRepository) TopSellersBetween(ctx context.Context, from, to time.Time, limit int) ([]SellerCount, error) {
	var sellers []SellerCount
	err := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Select("stock_items.name AS name, SUM(order_lines.quantity) AS quantity").
		Joins("JOIN stock_items ON stock_items.id = order_lines.stock_item_id").
		Joins("JOIN deliveries ON deliveries.id = order_lines.delivery_id").
		Where("deliveries.date >= ? AND deliveries.date < ?", from.Format("2006-01-02"), to.Format("2006-01-02")).
		Group("stock_items.name").
		Order("quantity DESC").
		Limit(limit).
		Scan(&sellers).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate top sellers")
	}
	return sellers, nil
}

func (r *gormReportRepository) DeliveriesPerDayBetween(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	var days []DayCount
	err := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Select("date AS date, COUNT(*) AS quantity").
		Where("date >= ? AND date < ?", from.Format("2006-01-02"), to.Format("2006-01-02")).
		Group("date").
		Order("date DESC").
		Scan(&days).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate deliveries per day")
	}
	return days, nil
}
