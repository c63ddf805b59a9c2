package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/reconciliation"
	"kiosco/backend/internal/store"
)

// StartShift opens a shift for the operator, or hands back the one already
// open. Operator fields left blank are taken from the caller.
func (s *Service) StartShift(ctx context.Context, req domain.StartShiftRequest) (domain.ShiftResponse, error) {
	if actor, ok := ActorFromContext(ctx); ok {
		if strings.TrimSpace(req.OperatorID) == "" {
			req.OperatorID = actor.Username
		}
		if strings.TrimSpace(req.OperatorName) == "" {
			req.OperatorName = actor.FullName
		}
	}
	req.OperatorID = strings.TrimSpace(req.OperatorID)
	req.OperatorName = strings.TrimSpace(req.OperatorName)
	if req.OperatorID == "" {
		return domain.ShiftResponse{}, invalid("operator_id", "operator is required")
	}
	if req.OperatorName == "" {
		req.OperatorName = req.OperatorID
	}
	if req.OpeningCash.IsNegative() {
		return domain.ShiftResponse{}, invalid("opening_cash", "opening cash cannot be negative")
	}
	if err := checkCents("opening_cash", req.OpeningCash); err != nil {
		return domain.ShiftResponse{}, err
	}

	shift, created, err := s.repo.CreateShift(ctx, domain.Shift{
		OperatorID:   req.OperatorID,
		OperatorName: req.OperatorName,
		StartDate:    s.now().UTC(),
		OpeningCash:  req.OpeningCash,
	})
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	if !created {
		return domain.ShiftResponse{Shift: *shift, Resumed: true}, nil
	}

	s.logAudit(ctx, "shift_start", "shift", shift.ID, "opening_cash="+shift.OpeningCash.StringFixed(2))
	s.logger.Info("shift started",
		zap.String("shift_id", shift.ID),
		zap.String("operator_id", shift.OperatorID),
		zap.String("opening_cash", shift.OpeningCash.StringFixed(2)),
	)
	return domain.ShiftResponse{Shift: *shift}, nil
}

// CloseShift totals the shift, closes it and returns the closing
// reconciliation computed from the ledger as it stands.
func (s *Service) CloseShift(ctx context.Context, req domain.CloseShiftRequest) (domain.CloseShiftResponse, error) {
	req.ShiftID = strings.TrimSpace(req.ShiftID)
	if req.ShiftID == "" {
		return domain.CloseShiftResponse{}, invalid("shift_id", "shift is required")
	}
	if req.ClosingCash.IsNegative() {
		return domain.CloseShiftResponse{}, invalid("closing_cash", "closing cash cannot be negative")
	}
	if err := checkCents("closing_cash", req.ClosingCash); err != nil {
		return domain.CloseShiftResponse{}, err
	}

	shift, err := s.openShift(ctx, req.ShiftID)
	if err != nil {
		return domain.CloseShiftResponse{}, err
	}

	totalSales, err := s.repo.SumSalesByShift(ctx, shift.ID)
	if err != nil {
		return domain.CloseShiftResponse{}, fmt.Errorf("sum sales: %w", err)
	}
	txs, err := s.repo.ListCashTransactions(ctx, domain.TransactionFilter{ShiftID: shift.ID}, zeroTime, zeroTime)
	if err != nil {
		return domain.CloseShiftResponse{}, fmt.Errorf("list ledger: %w", err)
	}
	totalExpenses := decimal.Zero
	for _, tx := range txs {
		if tx.Type == domain.TxTypeExpense {
			totalExpenses = totalExpenses.Add(tx.Amount)
		}
	}

	closed, err := s.repo.CloseShift(ctx, shift.ID, domain.ShiftClosure{
		ClosingCash:   req.ClosingCash,
		TotalSales:    totalSales,
		TotalExpenses: totalExpenses,
		EndDate:       s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidState) {
			return domain.CloseShiftResponse{}, invalidState("shift %s is already closed", shift.ID)
		}
		return domain.CloseShiftResponse{}, err
	}

	rec := reconciliation.Compute(closed.OpeningCash, txs)
	rec.ShiftID = closed.ID
	closing := reconciliation.Classify(req.ClosingCash, rec.ExpectedCash)
	rec.Closing = &closing

	s.logAudit(ctx, "shift_close", "shift", closed.ID, fmt.Sprintf("closing_cash=%s,difference=%s,status=%s",
		req.ClosingCash.StringFixed(2), closing.Difference.StringFixed(2), closing.Status))
	s.logger.Info("shift closed",
		zap.String("shift_id", closed.ID),
		zap.String("total_sales", totalSales.StringFixed(2)),
		zap.String("total_expenses", totalExpenses.StringFixed(2)),
		zap.String("difference", closing.Difference.StringFixed(2)),
		zap.String("status", closing.Status),
	)
	return domain.CloseShiftResponse{Shift: *closed, Reconciliation: rec}, nil
}

func (s *Service) GetShift(ctx context.Context, id string) (domain.Shift, error) {
	shift, err := s.repo.GetShift(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Shift{}, notFound("shift", id)
		}
		return domain.Shift{}, err
	}
	return *shift, nil
}

// GetActiveShift returns the operator's open shift, defaulting to the caller.
func (s *Service) GetActiveShift(ctx context.Context, operatorID string) (domain.ShiftResponse, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			operatorID = actor.Username
		}
	}
	if operatorID == "" {
		return domain.ShiftResponse{}, invalid("operator_id", "operator is required")
	}

	shift, err := s.repo.GetActiveShiftByOperator(ctx, operatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ShiftResponse{}, notFound("active shift for operator", operatorID)
		}
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

func (s *Service) ListShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListShifts(ctx, limit)
}

// openShift loads a shift and rejects it unless it is still open.
func (s *Service) openShift(ctx context.Context, id string) (domain.Shift, error) {
	shift, err := s.GetShift(ctx, id)
	if err != nil {
		return domain.Shift{}, err
	}
	if !shift.Active {
		return domain.Shift{}, invalidState("shift %s is closed", shift.ID)
	}
	return shift, nil
}
