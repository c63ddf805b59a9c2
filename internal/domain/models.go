package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MethodCash     = "efectivo"
	MethodTransfer = "transferencia"
	MethodQR       = "qr"
	MethodCondoFee = "expensas"
	MethodCard     = "tarjeta"
)

// PaymentMethods lists every tender the ledger knows, in display order.
var PaymentMethods = []string{MethodCash, MethodTransfer, MethodQR, MethodCondoFee, MethodCard}

const (
	TxTypeIncome  = "income"
	TxTypeExpense = "expense"
)

const (
	CategorySale     = "venta"
	CategoryExpense  = "gasto"
	CategoryIncome   = "ingreso"
	CategoryPurchase = "compra"
)

const (
	RoleAdmin  = "admin"
	RoleSeller = "vendedor"
)

type Product struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Cost        decimal.Decimal `json:"cost"`
	Stock       int             `json:"stock"`
	MinStock    int             `json:"min_stock"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Code        string          `json:"code" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Cost        decimal.Decimal `json:"cost"`
	Stock       int             `json:"stock" validate:"gte=0"`
	MinStock    int             `json:"min_stock" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Code        *string          `json:"code,omitempty"`
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Cost        *decimal.Decimal `json:"cost,omitempty"`
	Stock       *int             `json:"stock,omitempty" validate:"omitempty,gte=0"`
	MinStock    *int             `json:"min_stock,omitempty" validate:"omitempty,gte=0"`
	Active      *bool            `json:"active,omitempty"`
}

type Shift struct {
	ID            string           `json:"id"`
	OperatorID    string           `json:"operator_id"`
	OperatorName  string           `json:"operator_name"`
	StartDate     time.Time        `json:"start_date"`
	EndDate       *time.Time       `json:"end_date"`
	OpeningCash   decimal.Decimal  `json:"opening_cash"`
	ClosingCash   *decimal.Decimal `json:"closing_cash"`
	TotalSales    decimal.Decimal  `json:"total_sales"`
	TotalExpenses decimal.Decimal  `json:"total_expenses"`
	Active        bool             `json:"active"`
	CreatedAt     time.Time        `json:"created_at"`
}

type StartShiftRequest struct {
	OperatorID   string          `json:"operator_id"`
	OperatorName string          `json:"operator_name"`
	OpeningCash  decimal.Decimal `json:"opening_cash"`
}

type CloseShiftRequest struct {
	ShiftID     string          `json:"shift_id" validate:"required"`
	ClosingCash decimal.Decimal `json:"closing_cash"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
	// Resumed is set when the operator already had an open shift.
	Resumed bool `json:"resumed"`
}

type CloseShiftResponse struct {
	Shift          Shift          `json:"shift"`
	Reconciliation Reconciliation `json:"reconciliation"`
}

// ShiftClosure carries the values written once when a shift is closed.
type ShiftClosure struct {
	ClosingCash   decimal.Decimal
	TotalSales    decimal.Decimal
	TotalExpenses decimal.Decimal
	EndDate       time.Time
}

type CashTransaction struct {
	ID            string          `json:"id"`
	ShiftID       string          `json:"shift_id"`
	Type          string          `json:"type"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

type RecordTransactionRequest struct {
	ShiftID       string          `json:"shift_id" validate:"required"`
	Type          string          `json:"type" validate:"required"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Description   string          `json:"description"`
}

type PurchasePaymentRequest struct {
	ShiftID       string          `json:"shift_id" validate:"required"`
	InvoiceNumber string          `json:"invoice_number" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

const (
	PeriodToday  = "today"
	PeriodWeek   = "week"
	PeriodMonth  = "month"
	PeriodAll    = "all"
	PeriodCustom = "custom"
)

// TransactionFilter selects ledger rows. Empty fields match everything.
type TransactionFilter struct {
	ShiftID       string
	Type          string
	PaymentMethod string
	Category      string
	Period        string
	From          time.Time
	To            time.Time
}

type Payment struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

type SaleItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID            string          `json:"id"`
	SaleNumber    string          `json:"sale_number"`
	OperatorID    string          `json:"operator_id"`
	OperatorName  string          `json:"operator_name"`
	ShiftID       string          `json:"shift_id"`
	Items         []SaleItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerLot   string          `json:"customer_lot,omitempty"`
	Payments      []Payment       `json:"payments"`
	CreatedAt     time.Time       `json:"created_at"`
}

type CartLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
	// Price overrides the catalog price for this sale only.
	Price *decimal.Decimal `json:"price,omitempty"`
}

type CompleteSaleRequest struct {
	ShiftID      string          `json:"shift_id" validate:"required"`
	Items        []CartLine      `json:"items" validate:"dive"`
	Payments     []Payment       `json:"payments"`
	Discount     decimal.Decimal `json:"discount"`
	CustomerName string          `json:"customer_name"`
	CustomerLot  string          `json:"customer_lot"`
}

type CompleteSaleResponse struct {
	Sale             Sale              `json:"sale"`
	Transactions     []CashTransaction `json:"transactions"`
	DefaultedPayment bool              `json:"defaulted_payment"`
}

type StockDecrement struct {
	ProductID string
	Quantity  int
}

// SaleCommit is everything a completed sale writes, applied as one unit.
type SaleCommit struct {
	Sale         Sale
	Decrements   []StockDecrement
	Transactions []CashTransaction
}

type SaleFilter struct {
	ShiftID string
	Period  string
	From    time.Time
	To      time.Time
}

type MethodTotal struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

type SalesSummary struct {
	Period    string          `json:"period"`
	From      *time.Time      `json:"from,omitempty"`
	To        *time.Time      `json:"to,omitempty"`
	Sales     int             `json:"sales"`
	Total     decimal.Decimal `json:"total"`
	ByMethod  []MethodTotal   `json:"by_method"`
	Expenses  decimal.Decimal `json:"expenses"`
	NetIncome decimal.Decimal `json:"net_income"`
}

const (
	ClosingBalanced = "balanced"
	ClosingSurplus  = "surplus"
	ClosingShortage = "shortage"
)

type Closing struct {
	ClosingCash decimal.Decimal `json:"closing_cash"`
	Difference  decimal.Decimal `json:"difference"`
	Status      string          `json:"status"`
	Message     string          `json:"message"`
}

type Reconciliation struct {
	ShiftID         string                     `json:"shift_id,omitempty"`
	OpeningCash     decimal.Decimal            `json:"opening_cash"`
	IncomeByMethod  map[string]decimal.Decimal `json:"income_by_method"`
	ExpenseByMethod map[string]decimal.Decimal `json:"expense_by_method"`
	BalanceByMethod map[string]decimal.Decimal `json:"balance_by_method"`
	TotalIncome     decimal.Decimal            `json:"total_income"`
	TotalExpense    decimal.Decimal            `json:"total_expense"`
	Balance         decimal.Decimal            `json:"balance"`
	ExpectedCash    decimal.Decimal            `json:"expected_cash"`
	// ExpectedDrawerCash counts physical cash only.
	ExpectedDrawerCash decimal.Decimal `json:"expected_drawer_cash"`
	Closing            *Closing        `json:"closing,omitempty"`
}

// ClosureReport is the after-the-fact view of a closed shift. DrawerDifference
// compares the declared count against physical cash only.
type ClosureReport struct {
	Shift            Shift           `json:"shift"`
	Reconciliation   Reconciliation  `json:"reconciliation"`
	DrawerDifference decimal.Decimal `json:"drawer_difference"`
}

type Configuration struct {
	BusinessName   string    `json:"business_name"`
	Address        string    `json:"address"`
	Phone          string    `json:"phone"`
	TaxID          string    `json:"tax_id"`
	Currency       string    `json:"currency"`
	ReceiptMessage string    `json:"receipt_message"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	FullName    string `json:"full_name"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	FullName string
	Role     string
}

type OperatorCreateRequest struct {
	Username string `json:"username" validate:"required,min=4"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin vendedor"`
}

type Operator struct {
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	FullName  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
