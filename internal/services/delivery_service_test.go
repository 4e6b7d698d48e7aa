package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/metrics"
	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/repositories"
	"example.com/snackhouse/delivery/internal/tracing"
)

// Mock repositories for testing
type MockDeliveryRepository struct {
	mock.Mock
}

func (m *MockDeliveryRepository) List(ctx context.Context) ([]models.Delivery, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Delivery), args.Error(1)
}

func (m *MockDeliveryRepository) GetByID(ctx context.Context, id uint) (*models.Delivery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Delivery), args.Error(1)
}

func (m *MockDeliveryRepository) CreateWithLines(ctx context.Context, delivery *models.Delivery, lines []models.OrderLine) error {
	args := m.Called(ctx, delivery, lines)
	return args.Error(0)
}

func (m *MockDeliveryRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDeliveryRepository) ListScheduled(ctx context.Context) ([]models.Delivery, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Delivery), args.Error(1)
}

func (m *MockDeliveryRepository) MarkCompleted(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDeliveryRepository) MarkFlagged(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockOrderLineRepository struct {
	mock.Mock
}

func (m *MockOrderLineRepository) ListByDelivery(ctx context.Context, deliveryID uint) ([]models.OrderLine, error) {
	args := m.Called(ctx, deliveryID)
	return args.Get(0).([]models.OrderLine), args.Error(1)
}

// Mock reminder scheduler for testing
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Schedule(delivery models.Delivery) bool {
	args := m.Called(delivery)
	return args.Bool(0)
}

func (m *MockScheduler) Cancel(id uint) {
	m.Called(id)
}

// Mock voice service for testing
type MockVoice struct {
	mock.Mock
}

func (m *MockVoice) Announce(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockVoice) Configured(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func schedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		GraceWindow:     2 * time.Hour,
		SweepInterval:   5 * time.Minute,
		DefaultLeadTime: 30 * time.Minute,
		MinAdvance:      5 * time.Minute,
	}
}

func noopTracer() tracing.Tracer {
	tracer, _ := tracing.NewTracer(config.TracingConfig{})
	return tracer
}

func newDeliveryService(repo *MockDeliveryRepository, lines *MockOrderLineRepository, sched *MockScheduler, voice *MockVoice) *DeliveryService {
	return &DeliveryService{
		cfg:           schedulerConfig(),
		deliveryRepo:  repo,
		orderLineRepo: lines,
		scheduler:     sched,
		voice:         voice,
		metrics:       metrics.NewMetrics(),
		tracer:        noopTracer(),
	}
}

func futureInput() CreateDeliveryInput {
	at := time.Now().Add(3 * time.Hour)
	return CreateDeliveryInput{
		Date:        at.Format("2006-01-02"),
		TimeOfDay:   at.Format("15:04"),
		Description: "coxinhas para o escritório",
	}
}

func TestCreateDeliveryRequiresFields(t *testing.T) {
	service := newDeliveryService(new(MockDeliveryRepository), new(MockOrderLineRepository), new(MockScheduler), new(MockVoice))

	_, err := service.CreateDelivery(context.Background(), CreateDeliveryInput{Date: "2026-09-01"})
	require.ErrorIs(t, err, ErrMissingFields)
}

func TestCreateDeliveryRejectsPastDates(t *testing.T) {
	service := newDeliveryService(new(MockDeliveryRepository), new(MockOrderLineRepository), new(MockScheduler), new(MockVoice))

	at := time.Now().Add(-time.Hour)
	_, err := service.CreateDelivery(context.Background(), CreateDeliveryInput{
		Date:        at.Format("2006-01-02"),
		TimeOfDay:   at.Format("15:04"),
		Description: "entrega atrasada",
	})
	require.ErrorIs(t, err, ErrTooSoon)
}

func TestCreateDeliveryDefaultsLeadTime(t *testing.T) {
	repo := new(MockDeliveryRepository)
	voice := new(MockVoice)

	repo.On("CreateWithLines", mock.Anything, mock.AnythingOfType("*models.Delivery"), mock.Anything).Return(nil)
	voice.On("Configured", mock.Anything).Return(false)

	service := newDeliveryService(repo, new(MockOrderLineRepository), new(MockScheduler), voice)

	result, err := service.CreateDelivery(context.Background(), futureInput())
	require.NoError(t, err)
	require.Equal(t, 30, result.Delivery.LeadTimeMinutes)
	require.Equal(t, models.StatusScheduled, result.Delivery.Status)
	require.False(t, result.ReminderConfigured)
	require.False(t, result.ReminderScheduled)

	repo.AssertExpectations(t)
}

func TestCreateDeliverySchedulesReminderWhenConfigured(t *testing.T) {
	repo := new(MockDeliveryRepository)
	sched := new(MockScheduler)
	voice := new(MockVoice)

	repo.On("CreateWithLines", mock.Anything, mock.AnythingOfType("*models.Delivery"), mock.Anything).Return(nil)
	voice.On("Configured", mock.Anything).Return(true)
	sched.On("Schedule", mock.AnythingOfType("models.Delivery")).Return(true)

	service := newDeliveryService(repo, new(MockOrderLineRepository), sched, voice)

	input := futureInput()
	input.LeadTimeMinutes = 45
	result, err := service.CreateDelivery(context.Background(), input)

	require.NoError(t, err)
	require.Equal(t, 45, result.Delivery.LeadTimeMinutes)
	require.True(t, result.ReminderConfigured)
	require.True(t, result.ReminderScheduled)

	sched.AssertExpectations(t)
}

func TestCreateDeliveryRejectsBadItemQuantity(t *testing.T) {
	service := newDeliveryService(new(MockDeliveryRepository), new(MockOrderLineRepository), new(MockScheduler), new(MockVoice))

	input := futureInput()
	input.Items = []OrderItemInput{{StockItemID: 1, Quantity: 0}}

	_, err := service.CreateDelivery(context.Background(), input)
	require.Error(t, err)
}

func TestCreateDeliverySurfacesInsufficientStock(t *testing.T) {
	repo := new(MockDeliveryRepository)
	repo.On("CreateWithLines", mock.Anything, mock.Anything, mock.Anything).Return(repositories.ErrInsufficientStock)

	service := newDeliveryService(repo, new(MockOrderLineRepository), new(MockScheduler), new(MockVoice))

	input := futureInput()
	input.Items = []OrderItemInput{{StockItemID: 1, Quantity: 5}}

	_, err := service.CreateDelivery(context.Background(), input)
	require.ErrorIs(t, err, repositories.ErrInsufficientStock)
}

func TestCompleteDeliveryCancelsReminderFirst(t *testing.T) {
	repo := new(MockDeliveryRepository)
	sched := new(MockScheduler)

	delivery := &models.Delivery{ID: 5, Status: models.StatusScheduled}
	repo.On("GetByID", mock.Anything, uint(5)).Return(delivery, nil)
	sched.On("Cancel", uint(5)).Return()
	repo.On("MarkCompleted", mock.Anything, uint(5)).Return(nil)

	service := newDeliveryService(repo, new(MockOrderLineRepository), sched, new(MockVoice))

	require.NoError(t, service.CompleteDelivery(context.Background(), 5))

	repo.AssertExpectations(t)
	sched.AssertExpectations(t)
}

func TestCompleteDeliveryRejectsTerminalStatus(t *testing.T) {
	repo := new(MockDeliveryRepository)
	sched := new(MockScheduler)

	delivery := &models.Delivery{ID: 5, Status: models.StatusCompleted}
	repo.On("GetByID", mock.Anything, uint(5)).Return(delivery, nil)
	sched.On("Cancel", uint(5)).Return()
	repo.On("MarkCompleted", mock.Anything, uint(5)).Return(repositories.ErrNotScheduled)

	service := newDeliveryService(repo, new(MockOrderLineRepository), sched, new(MockVoice))

	err := service.CompleteDelivery(context.Background(), 5)
	require.ErrorIs(t, err, repositories.ErrNotScheduled)
}

func TestDeleteDeliveryUnknownID(t *testing.T) {
	repo := new(MockDeliveryRepository)
	sched := new(MockScheduler)
	repo.On("GetByID", mock.Anything, uint(42)).Return(nil, repositories.ErrNotFound)

	service := newDeliveryService(repo, new(MockOrderLineRepository), sched, new(MockVoice))

	err := service.DeleteDelivery(context.Background(), 42)
	require.ErrorIs(t, err, repositories.ErrNotFound)
	sched.AssertNotCalled(t, "Cancel", mock.Anything)
}

func TestDeleteDeliveryCancelsReminder(t *testing.T) {
	repo := new(MockDeliveryRepository)
	sched := new(MockScheduler)

	repo.On("GetByID", mock.Anything, uint(8)).Return(&models.Delivery{ID: 8}, nil)
	sched.On("Cancel", uint(8)).Return()
	repo.On("Delete", mock.Anything, uint(8)).Return(nil)

	service := newDeliveryService(repo, new(MockOrderLineRepository), sched, new(MockVoice))

	require.NoError(t, service.DeleteDelivery(context.Background(), 8))
	sched.AssertExpectations(t)
}

func TestGetDeliveryLoadsOrderLines(t *testing.T) {
	repo := new(MockDeliveryRepository)
	lineRepo := new(MockOrderLineRepository)

	repo.On("GetByID", mock.Anything, uint(2)).Return(&models.Delivery{ID: 2}, nil)
	lineRepo.On("ListByDelivery", mock.Anything, uint(2)).Return([]models.OrderLine{
		{DeliveryID: 2, StockItemID: 1, Quantity: 3},
	}, nil)

	service := newDeliveryService(repo, lineRepo, new(MockScheduler), new(MockVoice))

	delivery, err := service.GetDelivery(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, delivery.OrderLines, 1)
}

func TestSearchWithoutBackend(t *testing.T) {
	service := newDeliveryService(new(MockDeliveryRepository), new(MockOrderLineRepository), new(MockScheduler), new(MockVoice))

	_, err := service.SearchDeliveries(context.Background(), "coxinha")
	require.ErrorIs(t, err, ErrSearchDisabled)
}
