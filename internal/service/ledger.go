package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/reconciliation"
	"kiosco/backend/internal/store"
)

var zeroTime time.Time

// RecordTransaction appends one manual movement to an open shift's ledger.
func (s *Service) RecordTransaction(ctx context.Context, req domain.RecordTransactionRequest) (domain.CashTransaction, error) {
	txType := strings.ToLower(strings.TrimSpace(req.Type))
	if txType != domain.TxTypeIncome && txType != domain.TxTypeExpense {
		return domain.CashTransaction{}, invalid("type", "type must be income or expense")
	}
	method, err := ledgerMethod(req.PaymentMethod)
	if err != nil {
		return domain.CashTransaction{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.CashTransaction{}, invalid("amount", "amount must be greater than zero")
	}
	if err := checkCents("amount", req.Amount); err != nil {
		return domain.CashTransaction{}, err
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = domain.CategoryIncome
		if txType == domain.TxTypeExpense {
			category = domain.CategoryExpense
		}
	}

	return s.appendLedger(ctx, domain.CashTransaction{
		ShiftID:       strings.TrimSpace(req.ShiftID),
		Type:          txType,
		Category:      category,
		Amount:        req.Amount,
		PaymentMethod: method,
		Description:   strings.TrimSpace(req.Description),
	})
}

// RecordPurchasePayment books a supplier invoice payment as a ledger expense.
func (s *Service) RecordPurchasePayment(ctx context.Context, req domain.PurchasePaymentRequest) (domain.CashTransaction, error) {
	invoice := strings.TrimSpace(req.InvoiceNumber)
	if invoice == "" {
		return domain.CashTransaction{}, invalid("invoice_number", "invoice number is required")
	}
	method, err := ledgerMethod(req.PaymentMethod)
	if err != nil {
		return domain.CashTransaction{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.CashTransaction{}, invalid("amount", "amount must be greater than zero")
	}
	if err := checkCents("amount", req.Amount); err != nil {
		return domain.CashTransaction{}, err
	}

	return s.appendLedger(ctx, domain.CashTransaction{
		ShiftID:       strings.TrimSpace(req.ShiftID),
		Type:          domain.TxTypeExpense,
		Category:      domain.CategoryPurchase,
		Amount:        req.Amount,
		PaymentMethod: method,
		Description:   "Pago compra " + invoice,
	})
}

func (s *Service) appendLedger(ctx context.Context, tx domain.CashTransaction) (domain.CashTransaction, error) {
	if tx.ShiftID == "" {
		return domain.CashTransaction{}, invalid("shift_id", "shift is required")
	}
	if _, err := s.openShift(ctx, tx.ShiftID); err != nil {
		return domain.CashTransaction{}, err
	}

	saved, err := s.repo.AppendCashTransaction(ctx, tx)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.CashTransaction{}, notFound("shift", tx.ShiftID)
		case errors.Is(err, store.ErrInvalidState):
			return domain.CashTransaction{}, invalidState("shift %s is closed", tx.ShiftID)
		}
		return domain.CashTransaction{}, err
	}

	s.logAudit(ctx, "cash_"+saved.Type, "cash_transaction", saved.ID,
		saved.Category+","+saved.PaymentMethod+","+saved.Amount.StringFixed(2))
	s.logger.Info("ledger row recorded",
		zap.String("shift_id", saved.ShiftID),
		zap.String("type", saved.Type),
		zap.String("method", saved.PaymentMethod),
		zap.String("amount", saved.Amount.StringFixed(2)),
	)
	return *saved, nil
}

// ListTransactions returns matching ledger rows, newest first.
func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.CashTransaction, error) {
	from, to, err := s.window(filter.Period, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	filter.Type = strings.ToLower(strings.TrimSpace(filter.Type))
	filter.PaymentMethod = strings.ToLower(strings.TrimSpace(filter.PaymentMethod))
	filter.Category = strings.TrimSpace(filter.Category)
	return s.repo.ListCashTransactions(ctx, filter, from, to)
}

// Reconciliation reads the shift's full ledger and folds it into per-method
// balances. A non-nil closingCash adds the closing classification.
func (s *Service) Reconciliation(ctx context.Context, shiftID string, closingCash *decimal.Decimal) (domain.Reconciliation, error) {
	shift, err := s.GetShift(ctx, shiftID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	txs, err := s.repo.ListCashTransactions(ctx, domain.TransactionFilter{ShiftID: shift.ID}, zeroTime, zeroTime)
	if err != nil {
		return domain.Reconciliation{}, err
	}

	rec := reconciliation.Compute(shift.OpeningCash, txs)
	rec.ShiftID = shift.ID
	if closingCash == nil && shift.ClosingCash != nil {
		closingCash = shift.ClosingCash
	}
	if closingCash != nil {
		closing := reconciliation.Classify(*closingCash, rec.ExpectedCash)
		rec.Closing = &closing
	}
	return rec, nil
}

func (s *Service) window(period string, from time.Time, to time.Time) (time.Time, time.Time, error) {
	start, end, err := reconciliation.PeriodWindow(period, s.now(), s.loc, from, to)
	if err != nil {
		if errors.Is(err, reconciliation.ErrInvalidPeriod) {
			return zeroTime, zeroTime, invalid("period", "unknown period %q or incomplete custom range", period)
		}
		return zeroTime, zeroTime, err
	}
	return start, end, nil
}

// ledgerMethod accepts every known tender, including card, and defaults to cash.
func ledgerMethod(raw string) (string, error) {
	method := strings.ToLower(strings.TrimSpace(raw))
	if method == "" {
		return domain.MethodCash, nil
	}
	if !slices.Contains(domain.PaymentMethods, method) {
		return "", invalid("payment_method", "unknown payment method %q", raw)
	}
	return method, nil
}
