package services

import (
	"context"
	"strings"

	"example.com/snackhouse/delivery/internal/metrics"
	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/notifier"
	"example.com/snackhouse/delivery/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultLowStockThreshold is used when a caller does not supply one.
const DefaultLowStockThreshold = 10

// ErrBadQuantity rejects non-positive quantity adjustments.
var ErrBadQuantity = errors.New("quantity must be greater than zero")

// StockService handles stock item business logic
type StockService struct {
	stockRepo repositories.StockRepository
	voice     VoiceService
	metrics   *metrics.Metrics
}

// NewStockService creates a new stock service
func NewStockService(stockRepo repositories.StockRepository, voice VoiceService, m *metrics.Metrics) *StockService {
	return &StockService{
		stockRepo: stockRepo,
		voice:     voice,
		metrics:   m,
	}
}

// ListItems returns all stock items ordered by name.
func (s *StockService) ListItems(ctx context.Context) ([]models.StockItem, error) {
	return s.stockRepo.List(ctx)
}

// GetItem returns one stock item.
func (s *StockService) GetItem(ctx context.Context, id uint) (*models.StockItem, error) {
	return s.stockRepo.GetByID(ctx, id)
}

// CreateItem registers a new stock item with a unique name.
func (s *StockService) CreateItem(ctx context.Context, name string, quantity int, unitPrice float64) (*models.StockItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	if quantity < 0 {
		quantity = 0
	}
	if unitPrice < 0 {
		unitPrice = 0
	}

	if _, err := s.stockRepo.GetByName(ctx, name); err == nil {
		return nil, repositories.ErrDuplicateName
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	item := &models.StockItem{
		Name:      name,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
	if err := s.stockRepo.Create(ctx, item); err != nil {
		return nil, err
	}

	log.Info().Str("name", item.Name).Int("quantity", item.Quantity).Msg("Stock item created")
	return item, nil
}

// UpdateItemInput carries the optional fields of a stock item update.
type UpdateItemInput struct {
	Name      *string
	Quantity  *int
	UnitPrice *float64
}

// UpdateItem applies a partial update to a stock item.
func (s *StockService) UpdateItem(ctx context.Context, id uint, input UpdateItemInput) (*models.StockItem, error) {
	item, err := s.stockRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		item.Name = strings.TrimSpace(*input.Name)
	}
	if input.Quantity != nil {
		item.Quantity = *input.Quantity
	}
	if input.UnitPrice != nil {
		item.UnitPrice = *input.UnitPrice
	}

	if err := s.stockRepo.Update(ctx, item); err != nil {
		return nil, err
	}

	return item, nil
}

// DeleteItem removes a stock item.
func (s *StockService) DeleteItem(ctx context.Context, id uint) error {
	if _, err := s.stockRepo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.stockRepo.Delete(ctx, id)
}

// AddQuantity increments quantity-on-hand and returns the updated item.
func (s *StockService) AddQuantity(ctx context.Context, id uint, qty int) (*models.StockItem, error) {
	if qty <= 0 {
		return nil, ErrBadQuantity
	}

	if err := s.stockRepo.AddQuantity(ctx, id, qty); err != nil {
		return nil, err
	}

	return s.stockRepo.GetByID(ctx, id)
}

// RemoveQuantity decrements quantity-on-hand and returns the updated
// item. The decrement is atomic: a concurrent consumer can never drive
// the quantity negative.
func (s *StockService) RemoveQuantity(ctx context.Context, id uint, qty int) (*models.StockItem, error) {
	if qty <= 0 {
		return nil, ErrBadQuantity
	}

	// Distinguish a missing item from a shortfall before attempting the
	// conditional update; the update itself stays the single authority
	// on whether enough stock exists.
	if _, err := s.stockRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	if err := s.stockRepo.RemoveQuantity(ctx, id, qty); err != nil {
		if errors.Is(err, repositories.ErrInsufficientStock) {
			s.metrics.IncrementCounter(metrics.StockShortfalls)
		}
		return nil, err
	}

	s.metrics.IncrementCounter(metrics.StockDecrements)
	return s.stockRepo.GetByID(ctx, id)
}

// LowStock lists items at or below the threshold.
func (s *StockService) LowStock(ctx context.Context, threshold int) ([]models.StockItem, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return s.stockRepo.ListBelow(ctx, threshold)
}

// NotifyLowStock announces the items running low on the voice device.
func (s *StockService) NotifyLowStock(ctx context.Context, threshold int) (int, error) {
	items, err := s.LowStock(ctx, threshold)
	if err != nil {
		return 0, err
	}

	if err := s.voice.Announce(ctx, notifier.LowStockText(items)); err != nil {
		return 0, err
	}

	log.Info().Int("items", len(items)).Msg("Low stock announcement sent")
	return len(items), nil
}
