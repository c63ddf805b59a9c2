package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosco/backend/internal/cache"
	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/store/memory"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fixture struct {
	svc  *Service
	repo *memory.Store
	ctx  context.Context
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := memory.New()
	svc := New(repo, Options{})
	ctx := WithActor(context.Background(), domain.Actor{Username: "ana", FullName: "Ana", Role: domain.RoleSeller})
	return fixture{svc: svc, repo: repo, ctx: ctx}
}

func (f fixture) startShift(t *testing.T, opening string) domain.Shift {
	t.Helper()
	resp, err := f.svc.StartShift(f.ctx, domain.StartShiftRequest{OpeningCash: dec(opening)})
	require.NoError(t, err)
	return resp.Shift
}

func (f fixture) product(t *testing.T, code string, price string, stock int) domain.Product {
	t.Helper()
	p, err := f.svc.CreateProduct(f.ctx, domain.ProductCreateRequest{Code: code, Name: "Producto " + code, Price: dec(price), Stock: stock})
	require.NoError(t, err)
	return p
}

func (f fixture) ledger(t *testing.T, shiftID string) []domain.CashTransaction {
	t.Helper()
	rows, err := f.svc.ListTransactions(f.ctx, domain.TransactionFilter{ShiftID: shiftID})
	require.NoError(t, err)
	return rows
}

func (f fixture) sales(t *testing.T) []domain.Sale {
	t.Helper()
	sales, err := f.svc.ListSales(f.ctx, domain.SaleFilter{})
	require.NoError(t, err)
	return sales
}

func TestStartShiftIsIdempotentPerOperator(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.StartShift(f.ctx, domain.StartShiftRequest{OperatorID: "op-1", OperatorName: "Ana", OpeningCash: dec("100")})
	require.NoError(t, err)
	assert.False(t, first.Resumed)
	assert.True(t, first.Shift.Active)
	assert.Nil(t, first.Shift.EndDate)
	assert.True(t, first.Shift.TotalSales.IsZero())

	second, err := f.svc.StartShift(f.ctx, domain.StartShiftRequest{OperatorID: "op-1", OperatorName: "Ana", OpeningCash: dec("500")})
	require.NoError(t, err)
	assert.True(t, second.Resumed)
	assert.Equal(t, first.Shift, second.Shift)

	shifts, err := f.svc.ListShifts(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, shifts, 1)
}

func TestStartShiftDefaultsOperatorToCaller(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	assert.Equal(t, "ana", shift.OperatorID)
	assert.Equal(t, "Ana", shift.OperatorName)

	active, err := f.svc.GetActiveShift(f.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, shift.ID, active.Shift.ID)
}

func TestStartShiftRejectsNegativeOpeningCash(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartShift(f.ctx, domain.StartShiftRequest{OperatorID: "op-1", OpeningCash: dec("-1")})
	assert.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "opening_cash", verr.Field)
}

func TestRecordTransactionIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "100")

	recorded := make([]domain.CashTransaction, 0, 5)
	for i := 1; i <= 5; i++ {
		tx, err := f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{
			ShiftID:       shift.ID,
			Type:          domain.TxTypeExpense,
			Category:      "limpieza",
			Amount:        decimal.NewFromInt(int64(i)),
			PaymentMethod: domain.MethodCash,
			Description:   "gasto",
		})
		require.NoError(t, err)
		recorded = append(recorded, tx)
	}

	rows := f.ledger(t, shift.ID)
	require.Len(t, rows, 5)
	byID := make(map[string]domain.CashTransaction, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	for _, tx := range recorded {
		stored, ok := byID[tx.ID]
		require.True(t, ok)
		assert.Equal(t, tx, stored)
	}

	reloaded, err := f.svc.GetShift(f.ctx, shift.ID)
	require.NoError(t, err)
	assert.Equal(t, shift, reloaded)
}

func TestRecordTransactionValidation(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "100")
	base := domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("10")}

	zero := base
	zero.Amount = decimal.Zero
	_, err := f.svc.RecordTransaction(f.ctx, zero)
	assert.ErrorIs(t, err, ErrValidation)

	negative := base
	negative.Amount = dec("-5")
	_, err = f.svc.RecordTransaction(f.ctx, negative)
	assert.ErrorIs(t, err, ErrValidation)

	badType := base
	badType.Type = "refund"
	_, err = f.svc.RecordTransaction(f.ctx, badType)
	assert.ErrorIs(t, err, ErrValidation)

	badMethod := base
	badMethod.PaymentMethod = "bitcoin"
	_, err = f.svc.RecordTransaction(f.ctx, badMethod)
	assert.ErrorIs(t, err, ErrValidation)

	missing := base
	missing.ShiftID = "shf-missing"
	_, err = f.svc.RecordTransaction(f.ctx, missing)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Empty(t, f.ledger(t, shift.ID))

	card := base
	card.PaymentMethod = domain.MethodCard
	tx, err := f.svc.RecordTransaction(f.ctx, card)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodCard, tx.PaymentMethod)
	assert.Equal(t, domain.CategoryIncome, tx.Category)
}

func TestRecordPurchasePayment(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "100")

	tx, err := f.svc.RecordPurchasePayment(f.ctx, domain.PurchasePaymentRequest{ShiftID: shift.ID, InvoiceNumber: "A-0001", Amount: dec("40"), PaymentMethod: domain.MethodTransfer})
	require.NoError(t, err)
	assert.Equal(t, domain.TxTypeExpense, tx.Type)
	assert.Equal(t, domain.CategoryPurchase, tx.Category)
	assert.Equal(t, "Pago compra A-0001", tx.Description)
}

func TestReconciliationFoldsOpeningCashIntoCash(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "100")
	for _, req := range []domain.RecordTransactionRequest{
		{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("50"), PaymentMethod: domain.MethodCash},
		{ShiftID: shift.ID, Type: domain.TxTypeExpense, Amount: dec("20"), PaymentMethod: domain.MethodCash},
		{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("30"), PaymentMethod: domain.MethodTransfer},
	} {
		_, err := f.svc.RecordTransaction(f.ctx, req)
		require.NoError(t, err)
	}

	rec, err := f.svc.Reconciliation(f.ctx, shift.ID, nil)
	require.NoError(t, err)
	assert.True(t, rec.BalanceByMethod[domain.MethodCash].Equal(dec("130")))
	assert.True(t, rec.BalanceByMethod[domain.MethodTransfer].Equal(dec("30")))
	assert.True(t, rec.ExpectedCash.Equal(dec("160")))
	assert.Nil(t, rec.Closing)

	closing := dec("150")
	rec, err = f.svc.Reconciliation(f.ctx, shift.ID, &closing)
	require.NoError(t, err)
	require.NotNil(t, rec.Closing)
	assert.Equal(t, domain.ClosingShortage, rec.Closing.Status)
}

func TestCompleteSaleSplitsTendersIntoLedgerRows(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P100", "100", 10)

	resp, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:      shift.ID,
		Items:        []domain.CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments:     []domain.Payment{{Method: domain.MethodCash, Amount: dec("60")}, {Method: domain.MethodQR, Amount: dec("40")}},
		CustomerName: "Juan",
		CustomerLot:  "12",
	})
	require.NoError(t, err)
	assert.False(t, resp.DefaultedPayment)
	assert.Equal(t, domain.MethodCash, resp.Sale.PaymentMethod)
	assert.True(t, resp.Sale.Total.Equal(dec("100")))
	assert.Contains(t, resp.Sale.SaleNumber, "V-")

	rows := f.ledger(t, shift.ID)
	require.Len(t, rows, 2)
	amounts := map[string]decimal.Decimal{}
	for _, row := range rows {
		assert.Equal(t, domain.TxTypeIncome, row.Type)
		assert.Equal(t, domain.CategorySale, row.Category)
		assert.Equal(t, shift.ID, row.ShiftID)
		assert.Equal(t, "Venta "+resp.Sale.SaleNumber+" - Juan (Lote 12)", row.Description)
		amounts[row.PaymentMethod] = row.Amount
	}
	assert.True(t, amounts[domain.MethodCash].Equal(dec("60")))
	assert.True(t, amounts[domain.MethodQR].Equal(dec("40")))

	stored, err := f.repo.GetProduct(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, stored.Stock)
}

func TestCompleteSaleRejectsPaymentMismatch(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P100", "100", 10)

	_, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:  shift.ID,
		Items:    []domain.CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments: []domain.Payment{{Method: domain.MethodCash, Amount: dec("90")}},
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "(90.00)")
	assert.Contains(t, err.Error(), "(100.00)")

	assert.Empty(t, f.ledger(t, shift.ID))
	assert.Empty(t, f.sales(t))
	stored, err := f.repo.GetProduct(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Stock)
}

func TestCompleteSaleRequiresCustomerForNonCash(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P50", "50", 10)

	_, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:      shift.ID,
		Items:        []domain.CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments:     []domain.Payment{{Method: domain.MethodTransfer, Amount: dec("50")}},
		CustomerName: "  ",
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.ledger(t, shift.ID))
	assert.Empty(t, f.sales(t))
}

func TestCompleteSaleDefaultsToCash(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P25", "25", 10)

	resp, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID: shift.ID,
		Items:   []domain.CartLine{{ProductID: p.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.True(t, resp.DefaultedPayment)
	require.Len(t, resp.Sale.Payments, 1)
	assert.Equal(t, domain.MethodCash, resp.Sale.Payments[0].Method)
	assert.True(t, resp.Sale.Payments[0].Amount.Equal(dec("75")))
	assert.Empty(t, resp.Sale.CustomerName)

	rows := f.ledger(t, shift.ID)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(dec("75")))
	assert.Equal(t, domain.MethodCash, rows[0].PaymentMethod)
	assert.Equal(t, "Venta "+resp.Sale.SaleNumber, rows[0].Description)
}

func TestCompleteSaleDropsEmptyTenderRows(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P10", "10", 10)

	resp, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:  shift.ID,
		Items:    []domain.CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments: []domain.Payment{{Method: domain.MethodQR, Amount: decimal.Zero}, {Method: domain.MethodCash, Amount: dec("10")}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Sale.Payments, 1)
	assert.Equal(t, domain.MethodCash, resp.Sale.Payments[0].Method)
}

func TestCompleteSaleLabelsFirstTenderWithoutCash(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P10", "10", 10)

	resp, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:      shift.ID,
		Items:        []domain.CartLine{{ProductID: p.ID, Quantity: 2}},
		Payments:     []domain.Payment{{Method: domain.MethodCondoFee, Amount: dec("5")}, {Method: domain.MethodQR, Amount: dec("15")}},
		CustomerName: "Marta",
		CustomerLot:  "7B",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MethodCondoFee, resp.Sale.PaymentMethod)
	assert.Len(t, f.ledger(t, shift.ID), 2)
}

func TestCompleteSaleUsesOverriddenPriceAndDiscount(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P10", "10", 10)
	override := dec("12.50")

	resp, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:  shift.ID,
		Items:    []domain.CartLine{{ProductID: p.ID, Quantity: 2, Price: &override}},
		Discount: dec("5"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Sale.Items[0].Subtotal.Equal(dec("25")))
	assert.True(t, resp.Sale.Subtotal.Equal(dec("25")))
	assert.True(t, resp.Sale.Total.Equal(dec("20")))
}

func TestCompleteSaleRejectsCardTender(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P10", "10", 10)

	_, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:      shift.ID,
		Items:        []domain.CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments:     []domain.Payment{{Method: domain.MethodCard, Amount: dec("10")}},
		CustomerName: "Juan",
		CustomerLot:  "1",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCompleteSalePreconditions(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P10", "10", 1)

	_, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{ShiftID: shift.ID})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{ShiftID: shift.ID, Items: []domain.CartLine{{ProductID: p.ID, Quantity: 2}}})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	_, err = f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{ShiftID: shift.ID, Items: []domain.CartLine{{ProductID: "prd-missing", Quantity: 1}}})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.CloseShift(f.ctx, domain.CloseShiftRequest{ShiftID: shift.ID, ClosingCash: decimal.Zero})
	require.NoError(t, err)
	_, err = f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{ShiftID: shift.ID, Items: []domain.CartLine{{ProductID: p.ID, Quantity: 1}}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, f.sales(t))
}

type failingSequence struct{}

func (failingSequence) Next(context.Context) (string, error) {
	return "", errors.New("sequence unavailable")
}

func TestCompleteSaleFallsBackToClockNumbering(t *testing.T) {
	repo := memory.New()
	svc := New(repo, Options{Sequence: failingSequence{}})
	ctx := WithActor(context.Background(), domain.Actor{Username: "ana", Role: domain.RoleSeller})
	resp, err := svc.StartShift(ctx, domain.StartShiftRequest{OpeningCash: decimal.Zero})
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Code: "X", Name: "X", Price: dec("10"), Stock: 5})
	require.NoError(t, err)

	sale, err := svc.CompleteSale(ctx, domain.CompleteSaleRequest{ShiftID: resp.Shift.ID, Items: []domain.CartLine{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	assert.Regexp(t, `^V-\d+$`, sale.Sale.SaleNumber)

	stored, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Stock)
}

// fixedSequence hands out the same number every time, as a counter that was
// reset behind the store's back would.
type fixedSequence struct{ number string }

func (s fixedSequence) Next(context.Context) (string, error) {
	return s.number, nil
}

func TestCompleteSaleRetriesTakenSaleNumber(t *testing.T) {
	repo := memory.New()
	svc := New(repo, Options{Sequence: fixedSequence{number: "V-20261016-0001"}})
	ctx := WithActor(context.Background(), domain.Actor{Username: "ana", Role: domain.RoleSeller})
	resp, err := svc.StartShift(ctx, domain.StartShiftRequest{OpeningCash: decimal.Zero})
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Code: "X", Name: "X", Price: dec("10"), Stock: 5})
	require.NoError(t, err)
	req := domain.CompleteSaleRequest{ShiftID: resp.Shift.ID, Items: []domain.CartLine{{ProductID: p.ID, Quantity: 1}}}

	first, err := svc.CompleteSale(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "V-20261016-0001", first.Sale.SaleNumber)

	second, err := svc.CompleteSale(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Sale.SaleNumber, second.Sale.SaleNumber)
	require.Len(t, second.Transactions, 1)
	assert.Equal(t, "Venta "+second.Sale.SaleNumber, second.Transactions[0].Description)

	stored, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock)
	rows, err := repo.ListCashTransactions(ctx, domain.TransactionFilter{}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCompleteSaleDescribesLotWithoutName(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P10", "10", 5)

	resp, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:     shift.ID,
		Items:       []domain.CartLine{{ProductID: p.ID, Quantity: 1}},
		CustomerLot: " 7 ",
	})
	require.NoError(t, err)
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "Venta "+resp.Sale.SaleNumber+" -  (Lote 7)", resp.Transactions[0].Description)
}

func TestMoneyRejectsSubCentAmounts(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P10", "10", 5)

	_, err := f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("0.004"), PaymentMethod: domain.MethodCash})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.RecordPurchasePayment(f.ctx, domain.PurchasePaymentRequest{ShiftID: shift.ID, InvoiceNumber: "A-1", Amount: dec("10.005"), PaymentMethod: domain.MethodCash})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.StartShift(f.ctx, domain.StartShiftRequest{OperatorID: "op-9", OpeningCash: dec("1.001")})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CloseShift(f.ctx, domain.CloseShiftRequest{ShiftID: shift.ID, ClosingCash: dec("5.555")})
	assert.ErrorIs(t, err, ErrValidation)

	override := dec("33.333")
	_, err = f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{ShiftID: shift.ID, Items: []domain.CartLine{{ProductID: p.ID, Quantity: 1, Price: &override}}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "items[0].price", verr.Field)

	_, err = f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{ShiftID: shift.ID, Items: []domain.CartLine{{ProductID: p.ID, Quantity: 1}}, Discount: dec("0.125")})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID: shift.ID,
		Items:   []domain.CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments: []domain.Payment{
			{Method: domain.MethodCash, Amount: dec("4.995")},
			{Method: domain.MethodCash, Amount: dec("5.005")},
		},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateProduct(f.ctx, domain.ProductCreateRequest{Code: "FR", Name: "Fraccion", Price: dec("1.999")})
	assert.ErrorIs(t, err, ErrValidation)
	cost := dec("0.0001")
	_, err = f.svc.UpdateProduct(f.ctx, p.ID, domain.ProductUpdateRequest{Cost: &cost})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, f.ledger(t, shift.ID))
	assert.Empty(t, f.sales(t))
	reloaded, err := f.svc.GetShift(f.ctx, shift.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Active)

	_, err = f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("1.500"), PaymentMethod: domain.MethodCash})
	assert.NoError(t, err)
}

func TestListClosuresRebuildsClosedShifts(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "100")
	p := f.product(t, "P40", "40", 5)

	_, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:      shift.ID,
		Items:        []domain.CartLine{{ProductID: p.ID, Quantity: 1}},
		Payments:     []domain.Payment{{Method: domain.MethodQR, Amount: dec("40")}},
		CustomerName: "Juan",
		CustomerLot:  "3",
	})
	require.NoError(t, err)
	_, err = f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeExpense, Amount: dec("10"), PaymentMethod: domain.MethodCash})
	require.NoError(t, err)
	_, err = f.svc.CloseShift(f.ctx, domain.CloseShiftRequest{ShiftID: shift.ID, ClosingCash: dec("130")})
	require.NoError(t, err)

	_, err = f.svc.StartShift(f.ctx, domain.StartShiftRequest{OperatorID: "op-2", OpeningCash: dec("0")})
	require.NoError(t, err)

	closures, err := f.svc.ListClosures(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, closures, 1)

	report := closures[0]
	assert.Equal(t, shift.ID, report.Shift.ID)
	assert.False(t, report.Shift.Active)
	rec := report.Reconciliation
	assert.True(t, rec.IncomeByMethod[domain.MethodQR].Equal(dec("40")))
	assert.True(t, rec.ExpenseByMethod[domain.MethodCash].Equal(dec("10")))
	assert.True(t, rec.ExpectedCash.Equal(dec("130")))
	assert.True(t, rec.ExpectedDrawerCash.Equal(dec("90")))
	require.NotNil(t, rec.Closing)
	assert.True(t, rec.Closing.Difference.IsZero())
	assert.Equal(t, "Caja cuadrada", rec.Closing.Message)
	assert.True(t, report.DrawerDifference.Equal(dec("40")))
}

func TestCloseShiftTotalsAndClassifies(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "100")
	p := f.product(t, "P50", "50", 10)

	_, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{ShiftID: shift.ID, Items: []domain.CartLine{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	_, err = f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeExpense, Amount: dec("20"), PaymentMethod: domain.MethodCash})
	require.NoError(t, err)
	_, err = f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("30"), PaymentMethod: domain.MethodTransfer})
	require.NoError(t, err)

	resp, err := f.svc.CloseShift(f.ctx, domain.CloseShiftRequest{ShiftID: shift.ID, ClosingCash: dec("150")})
	require.NoError(t, err)
	assert.False(t, resp.Shift.Active)
	require.NotNil(t, resp.Shift.EndDate)
	assert.True(t, resp.Shift.TotalSales.Equal(dec("50")))
	assert.True(t, resp.Shift.TotalExpenses.Equal(dec("20")))
	assert.True(t, resp.Reconciliation.ExpectedCash.Equal(dec("160")))
	assert.True(t, resp.Reconciliation.ExpectedDrawerCash.Equal(dec("130")))
	require.NotNil(t, resp.Reconciliation.Closing)
	assert.True(t, resp.Reconciliation.Closing.Difference.Equal(dec("-10")))
	assert.Equal(t, domain.ClosingShortage, resp.Reconciliation.Closing.Status)
	assert.Equal(t, "Faltan $10.00", resp.Reconciliation.Closing.Message)

	_, err = f.svc.CloseShift(f.ctx, domain.CloseShiftRequest{ShiftID: shift.ID, ClosingCash: dec("150")})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("1")})
	assert.ErrorIs(t, err, ErrInvalidState)

	next := f.startShift(t, "0")
	assert.NotEqual(t, shift.ID, next.ID)
}

func TestCloseShiftSurplusAndBalanced(t *testing.T) {
	for _, tc := range []struct {
		closing string
		status  string
	}{
		{"165", domain.ClosingSurplus},
		{"160.00", domain.ClosingBalanced},
	} {
		f := newFixture(t)
		shift := f.startShift(t, "100")
		for _, req := range []domain.RecordTransactionRequest{
			{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("50")},
			{ShiftID: shift.ID, Type: domain.TxTypeExpense, Amount: dec("20")},
			{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("30"), PaymentMethod: domain.MethodTransfer},
		} {
			_, err := f.svc.RecordTransaction(f.ctx, req)
			require.NoError(t, err)
		}
		resp, err := f.svc.CloseShift(f.ctx, domain.CloseShiftRequest{ShiftID: shift.ID, ClosingCash: dec(tc.closing)})
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.Reconciliation.Closing.Status, tc.closing)
	}
}

func TestCloseShiftUnknownShift(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CloseShift(f.ctx, domain.CloseShiftRequest{ShiftID: "shf-missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListTransactionsFilters(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	_, err := f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeExpense, Category: "Limpieza", Amount: dec("5")})
	require.NoError(t, err)
	_, err = f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeIncome, Amount: dec("7"), PaymentMethod: domain.MethodQR})
	require.NoError(t, err)

	rows, err := f.svc.ListTransactions(f.ctx, domain.TransactionFilter{Category: "limp"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(dec("5")))

	rows, err = f.svc.ListTransactions(f.ctx, domain.TransactionFilter{PaymentMethod: "QR", Period: domain.PeriodToday})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	first, err := f.svc.ListTransactions(f.ctx, domain.TransactionFilter{Period: domain.PeriodMonth})
	require.NoError(t, err)
	second, err := f.svc.ListTransactions(f.ctx, domain.TransactionFilter{Period: domain.PeriodMonth})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = f.svc.ListTransactions(f.ctx, domain.TransactionFilter{Period: domain.PeriodCustom})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSalesSummaryByMethod(t *testing.T) {
	f := newFixture(t)
	shift := f.startShift(t, "0")
	p := f.product(t, "P10", "10", 50)

	_, err := f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{ShiftID: shift.ID, Items: []domain.CartLine{{ProductID: p.ID, Quantity: 3}}})
	require.NoError(t, err)
	_, err = f.svc.CompleteSale(f.ctx, domain.CompleteSaleRequest{
		ShiftID:      shift.ID,
		Items:        []domain.CartLine{{ProductID: p.ID, Quantity: 2}},
		Payments:     []domain.Payment{{Method: domain.MethodCash, Amount: dec("5")}, {Method: domain.MethodQR, Amount: dec("15")}},
		CustomerName: "Luis",
		CustomerLot:  "3",
	})
	require.NoError(t, err)
	_, err = f.svc.RecordTransaction(f.ctx, domain.RecordTransactionRequest{ShiftID: shift.ID, Type: domain.TxTypeExpense, Amount: dec("8")})
	require.NoError(t, err)

	summary, err := f.svc.SalesSummary(f.ctx, domain.SaleFilter{Period: domain.PeriodToday})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Sales)
	assert.True(t, summary.Total.Equal(dec("50")))
	assert.True(t, summary.Expenses.Equal(dec("8")))
	assert.True(t, summary.NetIncome.Equal(dec("42")))
	require.Len(t, summary.ByMethod, 2)
	assert.Equal(t, domain.MethodCash, summary.ByMethod[0].Method)
	assert.True(t, summary.ByMethod[0].Amount.Equal(dec("35")))
	assert.Equal(t, 2, summary.ByMethod[0].Count)
	assert.Equal(t, domain.MethodQR, summary.ByMethod[1].Method)
}

func TestCreateProductDuplicateCodeConflicts(t *testing.T) {
	f := newFixture(t)
	f.product(t, "DUP", "10", 1)

	_, err := f.svc.CreateProduct(f.ctx, domain.ProductCreateRequest{Code: "DUP", Name: "Otro", Price: dec("1")})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestUpdateProductAppliesPartialChanges(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "UPD", "10", 1)
	price := dec("12")
	minStock := 4

	updated, err := f.svc.UpdateProduct(f.ctx, p.ID, domain.ProductUpdateRequest{Price: &price, MinStock: &minStock})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(price))
	assert.Equal(t, p.Name, updated.Name)

	low, err := f.svc.ListLowStockProducts(f.ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, p.ID, low[0].ID)
}

func TestConfigurationIsCached(t *testing.T) {
	repo := memory.New()
	configCache := cache.NewMemoryConfigurationCache()
	svc := New(repo, Options{ConfigCache: configCache, ConfigCacheTTL: time.Minute})
	ctx := context.Background()

	saved, err := svc.UpdateConfiguration(ctx, domain.Configuration{BusinessName: "Kiosco Centro", Currency: "ars"})
	require.NoError(t, err)
	assert.Equal(t, "ARS", saved.Currency)

	cached, ok, err := configCache.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Kiosco Centro", cached.BusinessName)

	got, err := svc.GetConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Kiosco Centro", got.BusinessName)

	_, err = svc.UpdateConfiguration(ctx, domain.Configuration{})
	assert.ErrorIs(t, err, ErrValidation)
}

type auditFailingRepo struct {
	*memory.Store
}

func (auditFailingRepo) CreateAuditLog(context.Context, domain.AuditLog) error {
	return errors.New("audit table unavailable")
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	svc := New(auditFailingRepo{memory.New()}, Options{})
	resp, err := svc.StartShift(context.Background(), domain.StartShiftRequest{OperatorID: "op-1", OpeningCash: decimal.Zero})
	require.NoError(t, err)
	assert.True(t, resp.Shift.Active)
}

func TestAuditLogsRecordActor(t *testing.T) {
	f := newFixture(t)
	f.startShift(t, "10")

	logs, err := f.svc.ListAuditLogs(f.ctx, domain.PeriodToday, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "shift_start", logs[0].Action)
	assert.Equal(t, "ana", logs[0].ActorUsername)
}
