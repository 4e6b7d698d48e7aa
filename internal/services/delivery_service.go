package services

import (
	"context"
	"time"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/metrics"
	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/notifier"
	"example.com/snackhouse/delivery/internal/repositories"
	"example.com/snackhouse/delivery/internal/search"
	"example.com/snackhouse/delivery/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Validation errors surfaced by delivery creation.
var (
	ErrMissingFields = errors.New("date, time and description are required")
	ErrBadLeadTime   = errors.New("lead time must be greater than zero")
	ErrTooSoon       = errors.New("delivery must be scheduled further in the future")
)

// ErrSearchDisabled is returned when full-text search is requested but
// no search backend is configured.
var ErrSearchDisabled = errors.New("search is not enabled")

// ReminderScheduler is the scheduler surface the delivery service drives.
type ReminderScheduler interface {
	Schedule(delivery models.Delivery) bool
	Cancel(id uint)
}

// VoiceService is the announcement surface used for synchronous sends.
type VoiceService interface {
	Announce(ctx context.Context, text string) error
	Configured(ctx context.Context) bool
}

// DeliveryService handles delivery business logic
type DeliveryService struct {
	cfg           config.SchedulerConfig
	deliveryRepo  repositories.DeliveryRepository
	orderLineRepo repositories.OrderLineRepository
	scheduler     ReminderScheduler
	voice         VoiceService
	elasticClient *search.ElasticClient
	metrics       *metrics.Metrics
	tracer        tracing.Tracer
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(
	cfg config.SchedulerConfig,
	deliveryRepo repositories.DeliveryRepository,
	orderLineRepo repositories.OrderLineRepository,
	sched ReminderScheduler,
	voice VoiceService,
	elasticClient *search.ElasticClient,
	m *metrics.Metrics,
	tracer tracing.Tracer,
) *DeliveryService {
	return &DeliveryService{
		cfg:           cfg,
		deliveryRepo:  deliveryRepo,
		orderLineRepo: orderLineRepo,
		scheduler:     sched,
		voice:         voice,
		elasticClient: elasticClient,
		metrics:       m,
		tracer:        tracer,
	}
}

// CreateDeliveryInput is the payload for registering a new delivery.
type CreateDeliveryInput struct {
	Date            string
	TimeOfDay       string
	Description     string
	LeadTimeMinutes int
	Items           []OrderItemInput
}

// OrderItemInput is one consumed stock position on a new delivery.
type OrderItemInput struct {
	StockItemID uint
	Quantity    int
}

// CreateDeliveryResult reports the created delivery and whether a
// reminder could be registered for it.
type CreateDeliveryResult struct {
	Delivery           *models.Delivery
	ReminderScheduled  bool
	ReminderConfigured bool
}

// CreateDelivery validates and persists a new delivery with its order
// lines, decrementing stock atomically, then registers the reminder when
// the voice integration is configured.
func (s *DeliveryService) CreateDelivery(ctx context.Context, input CreateDeliveryInput) (*CreateDeliveryResult, error) {
	txn := s.tracer.StartTransaction("create-delivery")
	defer s.tracer.EndTransaction(txn)

	if input.Date == "" || input.TimeOfDay == "" || input.Description == "" {
		return nil, ErrMissingFields
	}

	leadTime := input.LeadTimeMinutes
	if leadTime == 0 {
		leadTime = int(s.cfg.DefaultLeadTime.Minutes())
	}
	if leadTime <= 0 {
		return nil, ErrBadLeadTime
	}

	delivery := &models.Delivery{
		Date:            input.Date,
		TimeOfDay:       input.TimeOfDay,
		Description:     input.Description,
		LeadTimeMinutes: leadTime,
		Status:          models.StatusScheduled,
	}

	at, err := delivery.ScheduledAt()
	if err != nil {
		return nil, err
	}
	if !at.After(time.Now().Add(s.cfg.MinAdvance)) {
		return nil, ErrTooSoon
	}

	lines := make([]models.OrderLine, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, errors.New("order item quantity must be greater than zero")
		}
		lines = append(lines, models.OrderLine{
			StockItemID: item.StockItemID,
			Quantity:    item.Quantity,
		})
	}

	span := s.tracer.StartSpan("persist-delivery", txn)
	err = s.deliveryRepo.CreateWithLines(ctx, delivery, lines)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		if errors.Is(err, repositories.ErrInsufficientStock) {
			s.metrics.IncrementCounter(metrics.StockShortfalls)
		}
		return nil, err
	}

	s.metrics.IncrementCounter(metrics.DeliveriesCreated)

	log.Info().
		Uint("delivery_id", delivery.ID).
		Str("date", delivery.Date).
		Str("time", delivery.TimeOfDay).
		Int("order_lines", len(lines)).
		Msg("Delivery created")

	// The reminder is best-effort: the delivery exists either way, and
	// an unconfigured integration just means no announcement.
	result := &CreateDeliveryResult{Delivery: delivery}
	result.ReminderConfigured = s.voice.Configured(ctx)
	if result.ReminderConfigured {
		result.ReminderScheduled = s.scheduler.Schedule(*delivery)
	}

	return result, nil
}

// ListDeliveries returns all deliveries ordered by date and time.
func (s *DeliveryService) ListDeliveries(ctx context.Context) ([]models.Delivery, error) {
	return s.deliveryRepo.List(ctx)
}

// GetDelivery returns one delivery with its order lines.
func (s *DeliveryService) GetDelivery(ctx context.Context, id uint) (*models.Delivery, error) {
	delivery, err := s.deliveryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	lines, err := s.orderLineRepo.ListByDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	delivery.OrderLines = lines

	return delivery, nil
}

// CompleteDelivery marks a delivery completed and revokes its reminder.
// Completed is terminal; completing anything not in "scheduled" fails.
func (s *DeliveryService) CompleteDelivery(ctx context.Context, id uint) error {
	txn := s.tracer.StartTransaction("complete-delivery")
	defer s.tracer.EndTransaction(txn)

	delivery, err := s.deliveryRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// Cancel before the status change so a reminder cannot fire for a
	// delivery that no longer needs one.
	s.scheduler.Cancel(id)

	if err := s.deliveryRepo.MarkCompleted(ctx, id); err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	log.Info().Uint("delivery_id", id).Msg("Delivery completed")

	if s.elasticClient != nil {
		lines, err := s.orderLineRepo.ListByDelivery(ctx, id)
		if err != nil {
			log.Warn().Err(err).Uint("delivery_id", id).Msg("Skipping search indexing, order lines unavailable")
			return nil
		}
		delivery.Status = models.StatusCompleted
		if err := s.elasticClient.IndexDelivery(ctx, delivery, lines); err != nil {
			// Indexing is an enrichment, not part of the completion
			// contract.
			log.Warn().Err(err).Uint("delivery_id", id).Msg("Failed to index completed delivery")
		}
	}

	return nil
}

// DeleteDelivery removes a delivery, its order lines, and any pending
// reminder for it.
func (s *DeliveryService) DeleteDelivery(ctx context.Context, id uint) error {
	if _, err := s.deliveryRepo.GetByID(ctx, id); err != nil {
		return err
	}

	s.scheduler.Cancel(id)

	if err := s.deliveryRepo.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Uint("delivery_id", id).Msg("Delivery deleted")
	return nil
}

// SendTestNotification triggers a synchronous test announcement.
// Configuration and remote errors surface directly to the caller.
func (s *DeliveryService) SendTestNotification(ctx context.Context) error {
	return s.voice.Announce(ctx, notifier.TestText())
}

// SearchDeliveries queries the search index for completed deliveries.
func (s *DeliveryService) SearchDeliveries(ctx context.Context, query string) ([]map[string]interface{}, error) {
	if s.elasticClient == nil {
		return nil, ErrSearchDisabled
	}
	return s.elasticClient.SearchDeliveries(ctx, query)
}
