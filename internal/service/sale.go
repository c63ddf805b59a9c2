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

// maxSaleNumberAttempts bounds how often a sale is retried after its number
// collides with one already stored.
const maxSaleNumberAttempts = 3

// minTender is the smallest tender amount kept; anything at or below it is
// treated as an empty row left in the payment form.
var minTender = decimal.RequireFromString("0.009")

// CompleteSale prices the cart, checks the tenders and commits the sale, its
// stock decrements and one ledger row per tender as a single unit.
func (s *Service) CompleteSale(ctx context.Context, req domain.CompleteSaleRequest) (domain.CompleteSaleResponse, error) {
	if len(req.Items) == 0 {
		return domain.CompleteSaleResponse{}, invalidState("cart is empty")
	}
	req.ShiftID = strings.TrimSpace(req.ShiftID)
	if req.ShiftID == "" {
		return domain.CompleteSaleResponse{}, invalid("shift_id", "shift is required")
	}
	shift, err := s.openShift(ctx, req.ShiftID)
	if err != nil {
		return domain.CompleteSaleResponse{}, err
	}

	items, decrements, subtotal, err := s.priceCart(ctx, req.Items)
	if err != nil {
		return domain.CompleteSaleResponse{}, err
	}
	if req.Discount.IsNegative() || req.Discount.GreaterThan(subtotal) {
		return domain.CompleteSaleResponse{}, invalid("discount", "discount must be between 0 and %s", subtotal.StringFixed(2))
	}
	if err := checkCents("discount", req.Discount); err != nil {
		return domain.CompleteSaleResponse{}, err
	}
	total := subtotal.Sub(req.Discount)

	payments, defaulted, err := normalizePayments(req.Payments, total)
	if err != nil {
		return domain.CompleteSaleResponse{}, err
	}

	customerName := strings.TrimSpace(req.CustomerName)
	customerLot := strings.TrimSpace(req.CustomerLot)
	if requiresCustomer(payments) && (customerName == "" || customerLot == "") {
		return domain.CompleteSaleResponse{}, invalid("customer", "customer name and lot are required for non-cash payments")
	}

	var (
		sale *domain.Sale
		txs  []domain.CashTransaction
	)
	for attempt := 1; ; attempt++ {
		saleNumber := s.nextSaleNumber(ctx, attempt)
		sale, txs, err = s.repo.CommitSale(ctx, domain.SaleCommit{
			Sale: domain.Sale{
				SaleNumber:    saleNumber,
				OperatorID:    shift.OperatorID,
				OperatorName:  shift.OperatorName,
				ShiftID:       shift.ID,
				Items:         items,
				Subtotal:      subtotal,
				Discount:      req.Discount,
				Total:         total,
				PaymentMethod: primaryMethod(payments),
				CustomerName:  customerName,
				CustomerLot:   customerLot,
				Payments:      payments,
				CreatedAt:     s.now().UTC(),
			},
			Decrements:   decrements,
			Transactions: saleLedger(shift.ID, saleDescription(saleNumber, customerName, customerLot), payments),
		})
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, store.ErrConflict) && attempt < maxSaleNumberAttempts:
			s.logger.Warn("sale number taken, drawing another", zap.String("sale_number", saleNumber), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, store.ErrInvalidState):
			return domain.CompleteSaleResponse{}, invalidState("shift %s is closed", shift.ID)
		case errors.Is(err, store.ErrInsufficientStock):
			return domain.CompleteSaleResponse{}, fmt.Errorf("sale %s: %w", saleNumber, err)
		}
		s.logger.Error("sale commit failed", zap.String("sale_number", saleNumber), zap.Error(err))
		return domain.CompleteSaleResponse{}, err
	}

	s.logAudit(ctx, "sale_complete", "sale", sale.ID, fmt.Sprintf("number=%s,total=%s,payment=%s,tenders=%d",
		sale.SaleNumber, sale.Total.StringFixed(2), sale.PaymentMethod, len(sale.Payments)))
	s.logger.Info("sale completed",
		zap.String("sale_number", sale.SaleNumber),
		zap.String("shift_id", sale.ShiftID),
		zap.String("total", sale.Total.StringFixed(2)),
		zap.Int("tenders", len(sale.Payments)),
	)
	return domain.CompleteSaleResponse{Sale: *sale, Transactions: txs, DefaultedPayment: defaulted}, nil
}

// nextSaleNumber draws from the configured generator on the first attempt and
// from the process clock afterwards, or whenever the generator is unavailable.
func (s *Service) nextSaleNumber(ctx context.Context, attempt int) string {
	if attempt == 1 {
		number, err := s.seq.Next(ctx)
		if err == nil {
			return number
		}
		s.logger.Warn("sale sequence unavailable, using clock numbering", zap.Error(err))
	}
	number, _ := s.fallbackSeq.Next(ctx)
	return number
}

func saleDescription(saleNumber string, customerName string, customerLot string) string {
	description := "Venta " + saleNumber
	if customerName == "" && customerLot == "" {
		return description
	}
	lot := customerLot
	if lot == "" {
		lot = "-"
	}
	return description + fmt.Sprintf(" - %s (Lote %s)", customerName, lot)
}

// saleLedger builds one income row per non-empty tender.
func saleLedger(shiftID string, description string, payments []domain.Payment) []domain.CashTransaction {
	ledger := make([]domain.CashTransaction, 0, len(payments))
	for _, p := range payments {
		if !p.Amount.IsPositive() {
			continue
		}
		ledger = append(ledger, domain.CashTransaction{
			ShiftID:       shiftID,
			Type:          domain.TxTypeIncome,
			Category:      domain.CategorySale,
			Amount:        p.Amount,
			PaymentMethod: p.Method,
			Description:   description,
		})
	}
	return ledger
}

func (s *Service) priceCart(ctx context.Context, lines []domain.CartLine) ([]domain.SaleItem, []domain.StockDecrement, decimal.Decimal, error) {
	items := make([]domain.SaleItem, 0, len(lines))
	decrements := make([]domain.StockDecrement, 0, len(lines))
	requested := make(map[string]int, len(lines))
	subtotal := decimal.Zero

	for i, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, nil, decimal.Zero, invalid(fmt.Sprintf("items[%d].product_id", i), "product is required")
		}
		if line.Quantity < 1 {
			return nil, nil, decimal.Zero, invalid(fmt.Sprintf("items[%d].quantity", i), "quantity must be at least 1")
		}
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil, decimal.Zero, notFound("product", productID)
			}
			return nil, nil, decimal.Zero, err
		}
		if !product.Active {
			return nil, nil, decimal.Zero, notFound("product", productID)
		}

		price := product.Price
		if line.Price != nil {
			if line.Price.IsNegative() {
				return nil, nil, decimal.Zero, invalid(fmt.Sprintf("items[%d].price", i), "price cannot be negative")
			}
			if err := checkCents(fmt.Sprintf("items[%d].price", i), *line.Price); err != nil {
				return nil, nil, decimal.Zero, err
			}
			price = *line.Price
		}

		requested[productID] += line.Quantity
		if requested[productID] > product.Stock {
			return nil, nil, decimal.Zero, fmt.Errorf("%w: %s has %d, requested %d",
				store.ErrInsufficientStock, product.Name, product.Stock, requested[productID])
		}

		lineTotal := price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items = append(items, domain.SaleItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       price,
			Subtotal:    lineTotal,
		})
		decrements = append(decrements, domain.StockDecrement{ProductID: product.ID, Quantity: line.Quantity})
		subtotal = subtotal.Add(lineTotal)
	}
	return items, decrements, subtotal, nil
}

// normalizePayments drops empty tender rows, defaults an empty list to one
// cash tender for the full total and checks that the tenders cover the total.
func normalizePayments(raw []domain.Payment, total decimal.Decimal) ([]domain.Payment, bool, error) {
	payments := make([]domain.Payment, 0, len(raw))
	for _, p := range raw {
		if p.Amount.LessThanOrEqual(minTender) {
			continue
		}
		method := strings.ToLower(strings.TrimSpace(p.Method))
		if !isSaleTender(method) {
			return nil, false, invalid("payments", "unsupported payment method %q", p.Method)
		}
		if err := checkCents("payments", p.Amount); err != nil {
			return nil, false, err
		}
		payments = append(payments, domain.Payment{Method: method, Amount: p.Amount})
	}
	if len(payments) == 0 {
		return []domain.Payment{{Method: domain.MethodCash, Amount: total}}, true, nil
	}

	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	if !reconciliation.WithinEpsilon(sum, total) {
		return nil, false, invalid("payments", "La suma de los montos de pago (%s) no coincide con el total (%s).",
			sum.StringFixed(2), total.StringFixed(2))
	}
	return payments, false, nil
}

func isSaleTender(method string) bool {
	switch method {
	case domain.MethodCash, domain.MethodTransfer, domain.MethodQR, domain.MethodCondoFee:
		return true
	default:
		return false
	}
}

func requiresCustomer(payments []domain.Payment) bool {
	for _, p := range payments {
		if p.Method != domain.MethodCash {
			return true
		}
	}
	return false
}

// primaryMethod labels the sale as cash whenever any tender is cash.
func primaryMethod(payments []domain.Payment) string {
	for _, p := range payments {
		if p.Method == domain.MethodCash {
			return domain.MethodCash
		}
	}
	return payments[0].Method
}
