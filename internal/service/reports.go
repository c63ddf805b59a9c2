package service

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/reconciliation"
)

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	from, to, err := s.window(filter.Period, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, strings.TrimSpace(filter.ShiftID), from, to)
}

// SalesSummary breaks the period's sales down by tender and nets out the
// expenses booked over the same window.
func (s *Service) SalesSummary(ctx context.Context, filter domain.SaleFilter) (domain.SalesSummary, error) {
	from, to, err := s.window(filter.Period, filter.From, filter.To)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	shiftID := strings.TrimSpace(filter.ShiftID)

	sales, err := s.repo.ListSales(ctx, shiftID, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	expenses, err := s.repo.ListCashTransactions(ctx, domain.TransactionFilter{ShiftID: shiftID, Type: domain.TxTypeExpense}, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{
		Period:    filter.Period,
		Sales:     len(sales),
		Total:     decimal.Zero,
		Expenses:  decimal.Zero,
		NetIncome: decimal.Zero,
	}
	if summary.Period == "" {
		summary.Period = domain.PeriodAll
	}
	if !from.IsZero() {
		summary.From = &from
	}
	if !to.IsZero() {
		summary.To = &to
	}

	byMethod := make(map[string]*domain.MethodTotal)
	for _, sale := range sales {
		summary.Total = summary.Total.Add(sale.Total)
		for _, p := range sale.Payments {
			entry, ok := byMethod[p.Method]
			if !ok {
				entry = &domain.MethodTotal{Method: p.Method, Amount: decimal.Zero}
				byMethod[p.Method] = entry
			}
			entry.Amount = entry.Amount.Add(p.Amount)
			entry.Count++
		}
	}
	summary.ByMethod = make([]domain.MethodTotal, 0, len(byMethod))
	for _, entry := range byMethod {
		summary.ByMethod = append(summary.ByMethod, *entry)
	}
	slices.SortFunc(summary.ByMethod, func(a, b domain.MethodTotal) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return strings.Compare(a.Method, b.Method)
	})

	for _, tx := range expenses {
		summary.Expenses = summary.Expenses.Add(tx.Amount)
	}
	summary.NetIncome = summary.Total.Sub(summary.Expenses)
	return summary, nil
}

// ListClosures rebuilds the reconciliation of the most recent closed shifts
// from their ledgers, classifying each declared count against expected cash.
func (s *Service) ListClosures(ctx context.Context, limit int) ([]domain.ClosureReport, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	shifts, err := s.repo.ListClosedShifts(ctx, limit)
	if err != nil {
		return nil, err
	}

	reports := make([]domain.ClosureReport, 0, len(shifts))
	for _, shift := range shifts {
		txs, err := s.repo.ListCashTransactions(ctx, domain.TransactionFilter{ShiftID: shift.ID}, zeroTime, zeroTime)
		if err != nil {
			return nil, err
		}
		closingCash := decimal.Zero
		if shift.ClosingCash != nil {
			closingCash = *shift.ClosingCash
		}

		rec := reconciliation.Compute(shift.OpeningCash, txs)
		rec.ShiftID = shift.ID
		closing := reconciliation.Classify(closingCash, rec.ExpectedCash)
		rec.Closing = &closing
		reports = append(reports, domain.ClosureReport{
			Shift:            shift,
			Reconciliation:   rec,
			DrawerDifference: closingCash.Sub(rec.ExpectedDrawerCash),
		})
	}
	return reports, nil
}
