// Package reconciliation derives drawer balances from ledger rows. Every
// function here is pure: the same rows and inputs always give the same answer.
package reconciliation

import (
	"github.com/shopspring/decimal"

	"kiosco/backend/internal/domain"
)

// Epsilon is the tolerance, in currency units, for treating two amounts as equal.
var Epsilon = decimal.New(1, -2)

// Compute folds the ledger rows of one shift into per-method income, expense
// and balance. Only cash starts from the opening float.
func Compute(openingCash decimal.Decimal, txs []domain.CashTransaction) domain.Reconciliation {
	income := make(map[string]decimal.Decimal, len(domain.PaymentMethods))
	expense := make(map[string]decimal.Decimal, len(domain.PaymentMethods))
	for _, method := range domain.PaymentMethods {
		income[method] = decimal.Zero
		expense[method] = decimal.Zero
	}

	for _, tx := range txs {
		switch tx.Type {
		case domain.TxTypeIncome:
			income[tx.PaymentMethod] = income[tx.PaymentMethod].Add(tx.Amount)
			if _, ok := expense[tx.PaymentMethod]; !ok {
				expense[tx.PaymentMethod] = decimal.Zero
			}
		case domain.TxTypeExpense:
			expense[tx.PaymentMethod] = expense[tx.PaymentMethod].Add(tx.Amount)
			if _, ok := income[tx.PaymentMethod]; !ok {
				income[tx.PaymentMethod] = decimal.Zero
			}
		}
	}

	totalIncome := decimal.Zero
	totalExpense := decimal.Zero
	balance := make(map[string]decimal.Decimal, len(income))
	for method, in := range income {
		out := expense[method]
		b := in.Sub(out)
		if method == domain.MethodCash {
			b = b.Add(openingCash)
		}
		balance[method] = b
		totalIncome = totalIncome.Add(in)
		totalExpense = totalExpense.Add(out)
	}
	net := totalIncome.Sub(totalExpense)

	return domain.Reconciliation{
		OpeningCash:        openingCash,
		IncomeByMethod:     income,
		ExpenseByMethod:    expense,
		BalanceByMethod:    balance,
		TotalIncome:        totalIncome,
		TotalExpense:       totalExpense,
		Balance:            net,
		ExpectedCash:       openingCash.Add(net),
		ExpectedDrawerCash: balance[domain.MethodCash],
	}
}

// Classify compares the counted drawer against the expected figure.
func Classify(closingCash decimal.Decimal, expectedCash decimal.Decimal) domain.Closing {
	diff := closingCash.Sub(expectedCash)
	closing := domain.Closing{ClosingCash: closingCash, Difference: diff}

	switch {
	case diff.Abs().LessThan(Epsilon):
		closing.Status = domain.ClosingBalanced
		closing.Message = "Caja cuadrada"
	case diff.IsPositive():
		closing.Status = domain.ClosingSurplus
		closing.Message = "Hay $" + diff.StringFixed(2) + " de más"
	default:
		closing.Status = domain.ClosingShortage
		closing.Message = "Faltan $" + diff.Neg().StringFixed(2)
	}
	return closing
}

// WithinEpsilon reports whether a and b differ by no more than Epsilon.
func WithinEpsilon(a decimal.Decimal, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}
