package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/repositories"
)

// Mock report repository for testing
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) DeliveryCountBetween(ctx context.Context, from, to time.Time) (int64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReportRepository) RevenueBetween(ctx context.Context, from, to time.Time) (float64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockReportRepository) TopSellersBetween(ctx context.Context, from, to time.Time, limit int) ([]repositories.SellerCount, error) {
	args := m.Called(ctx, from, to, limit)
	return args.Get(0).([]repositories.SellerCount), args.Error(1)
}

func (m *MockReportRepository) DeliveriesPerDayBetween(ctx context.Context, from, to time.Time) ([]repositories.DayCount, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]repositories.DayCount), args.Error(1)
}

func TestPeriodBoundsWeek(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)

	from, to, err := periodBounds(PeriodWeek, 0, 0, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), to)
}

func TestPeriodBoundsMonth(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)

	from, to, err := periodBounds(PeriodMonth, 0, 0, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestPeriodBoundsSpecificMonth(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)

	from, to, err := periodBounds(PeriodMonthSpecific, 12, 2025, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestPeriodBoundsRejectsBadInput(t *testing.T) {
	now := time.Now()

	_, _, err := periodBounds("fortnight", 0, 0, now)
	require.ErrorIs(t, err, ErrBadPeriod)

	_, _, err = periodBounds(PeriodMonthSpecific, 13, 2026, now)
	require.Error(t, err)

	_, _, err = periodBounds(PeriodMonthSpecific, 5, 0, now)
	require.Error(t, err)
}

func TestGetReportAggregates(t *testing.T) {
	reportRepo := new(MockReportRepository)
	stockRepo := new(MockStockRepository)

	reportRepo.On("DeliveryCountBetween", mock.Anything, mock.Anything, mock.Anything).Return(int64(12), nil)
	reportRepo.On("RevenueBetween", mock.Anything, mock.Anything, mock.Anything).Return(480.0, nil)
	reportRepo.On("TopSellersBetween", mock.Anything, mock.Anything, mock.Anything, 5).Return([]repositories.SellerCount{
		{Name: "coxinha", Quantity: 40},
	}, nil)
	reportRepo.On("DeliveriesPerDayBetween", mock.Anything, mock.Anything, mock.Anything).Return([]repositories.DayCount{
		{Date: "2026-08-29", Quantity: 3},
	}, nil)
	stockRepo.On("ListBelow", mock.Anything, DefaultLowStockThreshold).Return([]models.StockItem{
		{Name: "brigadeiro", Quantity: 2},
	}, nil)

	service := NewReportService(reportRepo, stockRepo, nil)

	report, err := service.GetReport(context.Background(), PeriodWeek, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(12), report.TotalDeliveries)
	require.Equal(t, 480.0, report.TotalRevenue)
	require.Len(t, report.TopSellers, 1)
	require.Len(t, report.PerDay, 1)
	require.Len(t, report.LowStock, 1)

	reportRepo.AssertExpectations(t)
}

func TestGetReportUnknownPeriod(t *testing.T) {
	service := NewReportService(new(MockReportRepository), new(MockStockRepository), nil)

	_, err := service.GetReport(context.Background(), "decade", 0, 0)
	require.ErrorIs(t, err, ErrBadPeriod)
}
