package services

import (
	"context"
	"time"

	"example.com/snackhouse/delivery/internal/cache"
	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Report periods accepted by GetReport.
const (
	PeriodWeek          = "week"
	PeriodMonth         = "month"
	PeriodMonthSpecific = "month-specific"
)

// reportCacheTTL keeps report payloads hot for repeated dashboard loads.
const reportCacheTTL = time.Minute

// ErrBadPeriod rejects unknown report periods.
var ErrBadPeriod = errors.New("unknown report period")

// Report is the aggregate payload behind the reports view.
type Report struct {
	Period          string                       `json:"period"`
	From            string                       `json:"from"`
	To              string                       `json:"to"`
	TotalRevenue    float64                      `json:"total_revenue"`
	TotalDeliveries int64                        `json:"total_deliveries"`
	TopSellers      []repositories.SellerCount   `json:"top_sellers"`
	PerDay          []repositories.DayCount      `json:"per_day"`
	LowStock        []models.StockItem           `json:"low_stock"`
}

// ReportService aggregates delivery and stock data for the reports view
type ReportService struct {
	reportRepo repositories.ReportRepository
	stockRepo  repositories.StockRepository
	cache      *cache.RedisCache
}

// NewReportService creates a new report service
func NewReportService(reportRepo repositories.ReportRepository, stockRepo repositories.StockRepository, redisCache *cache.RedisCache) *ReportService {
	return &ReportService{
		reportRepo: reportRepo,
		stockRepo:  stockRepo,
		cache:      redisCache,
	}
}

// GetReport builds the aggregate report for the given period. "week" is
// the trailing seven days, "month" the current calendar month, and
// "month-specific" the given month/year.
func (s *ReportService) GetReport(ctx context.Context, period string, month, year int) (*Report, error) {
	from, to, err := periodBounds(period, month, year, time.Now())
	if err != nil {
		return nil, err
	}

	cacheKey := cache.GetReportCacheKey(period, month, year)
	if s.cache.Enabled() {
		var cached Report
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	report := &Report{
		Period: period,
		From:   from.Format("2006-01-02"),
		To:     to.Format("2006-01-02"),
	}

	if report.TotalDeliveries, err = s.reportRepo.DeliveryCountBetween(ctx, from, to); err != nil {
		return nil, err
	}
	if report.TotalRevenue, err = s.reportRepo.RevenueBetween(ctx, from, to); err != nil {
		return nil, err
	}
	if report.TopSellers, err = s.reportRepo.TopSellersBetween(ctx, from, to, 5); err != nil {
		return nil, err
	}
	if report.PerDay, err = s.reportRepo.DeliveriesPerDayBetween(ctx, from, to); err != nil {
		return nil, err
	}
	if report.LowStock, err = s.stockRepo.ListBelow(ctx, DefaultLowStockThreshold); err != nil {
		return nil, err
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, report, reportCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache report")
		}
	}

	return report, nil
}

// periodBounds resolves a period name to a [from, to) date range.
func periodBounds(period string, month, year int, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch period {
	case PeriodWeek:
		return today.AddDate(0, 0, -6), today.AddDate(0, 0, 1), nil
	case PeriodMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first, first.AddDate(0, 1, 0), nil
	case PeriodMonthSpecific:
		if month < 1 || month > 12 || year < 2000 {
			return time.Time{}, time.Time{}, errors.New("month and year are required for a specific month")
		}
		first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, now.Location())
		return first, first.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, ErrBadPeriod
	}
}
