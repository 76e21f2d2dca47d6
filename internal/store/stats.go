package store

import (
	"github.com/bapaynter/commtrack/internal/models"
	"github.com/shopspring/decimal"
)

type DashboardStats struct {
	TotalCommissions int
	Requested        int
	Active           int // Started
	Finished         int
	Deposits         int
	TotalValue       decimal.Decimal
	PaidValue        decimal.Decimal
	PendingValue     decimal.Decimal
	CollectionRate   int // percent of total value that is paid
	CountsByStatus   map[models.Status]int
}

// ComputeStats aggregates the dashboard numbers from an already loaded set.
func ComputeStats(records []models.Commission) *DashboardStats {
	stats := &DashboardStats{
		CountsByStatus: make(map[models.Status]int, len(models.Statuses)),
		TotalValue:     decimal.Zero,
		PaidValue:      decimal.Zero,
	}
	for _, c := range records {
		price := decimal.NewFromFloat(c.Price)
		stats.TotalCommissions++
		stats.TotalValue = stats.TotalValue.Add(price)
		switch c.PaymentStatus {
		case models.PaymentPaid:
			stats.PaidValue = stats.PaidValue.Add(price)
		case models.PaymentDeposit:
			stats.Deposits++
		}
		stats.CountsByStatus[c.Status]++
	}
	stats.Requested = stats.CountsByStatus[models.StatusRequested]
	stats.Active = stats.CountsByStatus[models.StatusStarted]
	stats.Finished = stats.CountsByStatus[models.StatusFinished]
	stats.PendingValue = stats.TotalValue.Sub(stats.PaidValue)

	denominator := stats.TotalValue
	if denominator.IsZero() {
		denominator = decimal.NewFromInt(1)
	}
	stats.CollectionRate = int(stats.PaidValue.Div(denominator).Mul(decimal.NewFromInt(100)).Round(0).IntPart())
	return stats
}

func (r *Repository) GetDashboardStats() (*DashboardStats, error) {
	records, err := r.FetchAll()
	if err != nil {
		return nil, err
	}
	return ComputeStats(records), nil
}
