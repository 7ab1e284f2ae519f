package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lounge_backend/internal/models"
	"lounge_backend/internal/policy"
	"lounge_backend/internal/repositories"
	"lounge_backend/pkg/utils"
)

const (
	reportDateLayout = "2006-01-02"
	maxReportDays    = 366
)

type ReportService interface {
	Dashboard(ctx context.Context, actor Actor) (*models.DashboardSummary, error)
	SalesReport(ctx context.Context, actor Actor, params models.ReportRequestParams) (*models.SalesReport, error)
}

type reportService struct {
	reportRepo repositories.ReportRepository
	now        Clock
}

func NewReportService(rr repositories.ReportRepository, clock Clock) ReportService {
	return &reportService{reportRepo: rr, now: clock}
}

// Dashboard reports live counters; "today" is the current UTC day.
func (s *reportService) Dashboard(ctx context.Context, actor Actor) (*models.DashboardSummary, error) {
	if err := authorize(actor, policy.OpReportView, policy.ResourceState{}); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	summary, err := s.reportRepo.Dashboard(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		utils.LogError(err, "Failed to build dashboard summary")
		return nil, err
	}
	summary.SalesToday = utils.RoundMoney(summary.SalesToday)
	summary.PendingTotal = utils.RoundMoney(summary.PendingTotal)
	return summary, nil
}

// SalesReport aggregates completed sales per UTC day and item. With an item filter the
// transaction totals still cover every completed transaction in the range.
func (s *reportService) SalesReport(ctx context.Context, actor Actor, params models.ReportRequestParams) (*models.SalesReport, error) {
	if err := authorize(actor, policy.OpReportView, policy.ResourceState{}); err != nil {
		return nil, err
	}
	from, err := time.Parse(reportDateLayout, params.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date must be YYYY-MM-DD", ErrValidation)
	}
	to, err := time.Parse(reportDateLayout, params.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: end_date must be YYYY-MM-DD", ErrValidation)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end_date is before start_date", ErrValidation)
	}
	until := to.AddDate(0, 0, 1)
	if until.Sub(from) > maxReportDays*24*time.Hour {
		return nil, fmt.Errorf("%w: report range is limited to %d days", ErrValidation, maxReportDays)
	}

	count, total, err := s.reportRepo.CompletedTotals(ctx, from, until)
	if err != nil {
		return nil, err
	}
	lines, err := s.reportRepo.CompletedLines(ctx, from, until, params.ItemID)
	if err != nil {
		return nil, err
	}

	report := &models.SalesReport{
		StartDate:         params.StartDate,
		EndDate:           params.EndDate,
		TransactionsCount: count,
		Total:             utils.RoundMoney(total),
		Items:             aggregateSales(lines),
	}
	for _, item := range report.Items {
		report.ItemSales += item.TotalSales
	}
	report.ItemSales = utils.RoundMoney(report.ItemSales)
	if params.ItemID == nil {
		report.SessionCharges = utils.RoundMoney(report.Total - report.ItemSales)
	}
	return report, nil
}

func aggregateSales(lines []models.SoldLine) []models.SalesReportItem {
	type key struct {
		date   string
		itemID int64
	}
	byKey := map[key]*models.SalesReportItem{}
	for _, l := range lines {
		k := key{date: l.CreatedAt.UTC().Format(reportDateLayout), itemID: l.ItemID}
		row, ok := byKey[k]
		if !ok {
			row = &models.SalesReportItem{Date: k.date, ItemID: l.ItemID, ItemName: l.ItemName}
			byKey[k] = row
		}
		row.TotalQuantity += l.Quantity
		row.TotalSales += l.Quantity * l.UnitPrice
	}

	items := make([]models.SalesReportItem, 0, len(byKey))
	for _, row := range byKey {
		row.TotalQuantity = utils.RoundQuantity(row.TotalQuantity)
		row.TotalSales = utils.RoundMoney(row.TotalSales)
		items = append(items, *row)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date < items[j].Date
		}
		return items[i].ItemID < items[j].ItemID
	})
	return items
}
