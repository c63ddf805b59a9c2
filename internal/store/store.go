package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"kiosco/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidRecord     = errors.New("invalid record")
)

type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByCode(ctx context.Context, code string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	// CreateShift opens a shift unless the operator already has an active
	// one, in which case the existing shift is returned with created=false.
	CreateShift(ctx context.Context, shift domain.Shift) (result *domain.Shift, created bool, err error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
	GetActiveShiftByOperator(ctx context.Context, operatorID string) (*domain.Shift, error)
	ListShifts(ctx context.Context, limit int) ([]domain.Shift, error)
	// ListClosedShifts returns closed shifts, most recently started first.
	ListClosedShifts(ctx context.Context, limit int) ([]domain.Shift, error)
	CloseShift(ctx context.Context, id string, closure domain.ShiftClosure) (*domain.Shift, error)

	AppendCashTransaction(ctx context.Context, tx domain.CashTransaction) (*domain.CashTransaction, error)
	ListCashTransactions(ctx context.Context, filter domain.TransactionFilter, from time.Time, to time.Time) ([]domain.CashTransaction, error)

	// CommitSale writes the sale, its stock decrements and its ledger rows as
	// one unit. Nothing is written when any part fails.
	CommitSale(ctx context.Context, commit domain.SaleCommit) (*domain.Sale, []domain.CashTransaction, error)
	ListSales(ctx context.Context, shiftID string, from time.Time, to time.Time) ([]domain.Sale, error)
	SumSalesByShift(ctx context.Context, shiftID string) (decimal.Decimal, error)

	GetConfiguration(ctx context.Context) (*domain.Configuration, error)
	UpsertConfiguration(ctx context.Context, cfg domain.Configuration) (*domain.Configuration, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
