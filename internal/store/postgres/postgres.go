package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const productColumns = `id, code, name, description, category, price, cost, stock, min_stock, active, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Category, &p.Price, &p.Cost,
		&p.Stock, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true OR $1
		ORDER BY category, name
	`, includeInactive)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE code = $1`, strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Code = strings.TrimSpace(product.Code)
	product.Name = strings.TrimSpace(product.Name)
	if product.Code == "" || product.Name == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidRecord
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.Code, product.Name, product.Description, product.Category, product.Price,
		product.Cost, product.Stock, product.MinStock, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Code = strings.TrimSpace(product.Code)
	if product.Code == "" || strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidRecord
	}

	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET code = $2, name = $3, description = $4, category = $5, price = $6, cost = $7,
			stock = $8, min_stock = $9, active = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Code, product.Name, product.Description, product.Category, product.Price,
		product.Cost, product.Stock, product.MinStock, product.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND stock <= min_stock
		ORDER BY stock ASC, name ASC
	`)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, full_name, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,$5,now())
	`, user.Username, user.Password, user.FullName, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, full_name, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.FullName, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, full_name, role, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.Username, &user.Password, &user.FullName, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const shiftColumns = `id, operator_id, operator_name, start_date, end_date, opening_cash, closing_cash,
	total_sales, total_expenses, active, created_at`

func scanShift(row rowScanner) (domain.Shift, error) {
	var shift domain.Shift
	var endDate sql.NullTime
	var closingCash decimal.NullDecimal
	err := row.Scan(&shift.ID, &shift.OperatorID, &shift.OperatorName, &shift.StartDate, &endDate,
		&shift.OpeningCash, &closingCash, &shift.TotalSales, &shift.TotalExpenses, &shift.Active, &shift.CreatedAt)
	if err != nil {
		return shift, err
	}
	shift.StartDate = shift.StartDate.UTC()
	shift.CreatedAt = shift.CreatedAt.UTC()
	if endDate.Valid {
		at := endDate.Time.UTC()
		shift.EndDate = &at
	}
	if closingCash.Valid {
		amount := closingCash.Decimal
		shift.ClosingCash = &amount
	}
	return shift, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, bool, error) {
	if strings.TrimSpace(shift.OperatorID) == "" || shift.OpeningCash.IsNegative() {
		return nil, false, store.ErrInvalidRecord
	}

	existing, err := s.GetActiveShiftByOperator(ctx, shift.OperatorID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	if shift.ID == "" {
		shift.ID = xid.New("shf")
	}
	now := time.Now().UTC()
	if shift.StartDate.IsZero() {
		shift.StartDate = now
	}
	shift.CreatedAt = now

	created, err := scanShift(s.db.QueryRowContext(ctx, `
		INSERT INTO shifts (id, operator_id, operator_name, start_date, opening_cash, active, created_at)
		VALUES ($1,$2,$3,$4,$5,true,$6)
		RETURNING `+shiftColumns,
		shift.ID, shift.OperatorID, shift.OperatorName, shift.StartDate, shift.OpeningCash, shift.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent start for the same operator.
			winner, lookupErr := s.GetActiveShiftByOperator(ctx, shift.OperatorID)
			if lookupErr == nil {
				return winner, false, nil
			}
		}
		return nil, false, err
	}
	return &created, true, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) GetActiveShiftByOperator(ctx context.Context, operatorID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE operator_id = $1 AND active = true
		ORDER BY start_date DESC
		LIMIT 1
	`, operatorID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) ListShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	return s.listShifts(ctx, "", limit)
}

func (s *Store) ListClosedShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	return s.listShifts(ctx, "WHERE NOT active", limit)
}

func (s *Store) listShifts(ctx context.Context, where string, limit int) ([]domain.Shift, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		`+where+`
		ORDER BY start_date DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, 32)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (s *Store) CloseShift(ctx context.Context, id string, closure domain.ShiftClosure) (*domain.Shift, error) {
	endDate := closure.EndDate
	if endDate.IsZero() {
		endDate = time.Now().UTC()
	}

	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		UPDATE shifts
		SET active = false, end_date = $2, closing_cash = $3, total_sales = $4, total_expenses = $5
		WHERE id = $1 AND active = true
		RETURNING `+shiftColumns,
		id, endDate, closure.ClosingCash, closure.TotalSales, closure.TotalExpenses))
	if err == nil {
		return &shift, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, lookupErr := s.GetShift(ctx, id); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, store.ErrInvalidState
}

const cashColumns = `id, shift_id, type, category, amount, payment_method, description, created_at`

func (s *Store) AppendCashTransaction(ctx context.Context, tx domain.CashTransaction) (*domain.CashTransaction, error) {
	if err := checkLedgerRow(tx); err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := lockOpenShift(ctx, pgTx, tx.ShiftID); err != nil {
		return nil, err
	}
	tx = stampTransaction(tx, time.Now().UTC())
	if err := insertCashTransaction(ctx, pgTx, tx); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListCashTransactions(ctx context.Context, filter domain.TransactionFilter, from time.Time, to time.Time) ([]domain.CashTransaction, error) {
	clauses := make([]string, 0, 6)
	args := make([]any, 0, 6)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.ShiftID != "" {
		add("shift_id = $%d", filter.ShiftID)
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.PaymentMethod != "" {
		add("payment_method = $%d", filter.PaymentMethod)
	}
	if filter.Category != "" {
		add(`category ILIKE '%%' || $%d || '%%' ESCAPE '\'`, escapeLike(filter.Category))
	}
	if !from.IsZero() {
		add("created_at >= $%d", from)
	}
	if !to.IsZero() {
		add("created_at < $%d", to)
	}

	query := `SELECT ` + cashColumns + ` FROM cash_transactions`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CashTransaction, 0, 64)
	for rows.Next() {
		var tx domain.CashTransaction
		if err := rows.Scan(&tx.ID, &tx.ShiftID, &tx.Type, &tx.Category, &tx.Amount, &tx.PaymentMethod, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// maxSerializationAttempts bounds how often a sale transaction is replayed
// after a serialization failure.
const maxSerializationAttempts = 3

func (s *Store) CommitSale(ctx context.Context, commit domain.SaleCommit) (*domain.Sale, []domain.CashTransaction, error) {
	sale := commit.Sale
	if len(sale.Items) == 0 || strings.TrimSpace(sale.SaleNumber) == "" {
		return nil, nil, store.ErrInvalidRecord
	}
	for _, tx := range commit.Transactions {
		tx.ShiftID = sale.ShiftID
		if err := checkLedgerRow(tx); err != nil {
			return nil, nil, err
		}
	}
	wanted := make(map[string]int, len(commit.Decrements))
	for _, dec := range commit.Decrements {
		if dec.Quantity < 1 {
			return nil, nil, store.ErrInvalidRecord
		}
		wanted[dec.ProductID] += dec.Quantity
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	for attempt := 1; ; attempt++ {
		committed, written, err := s.commitSale(ctx, sale, wanted, commit.Transactions)
		if !isSerializationFailure(err) {
			return committed, written, err
		}
		if attempt == maxSerializationAttempts {
			return nil, nil, fmt.Errorf("%w: sale %s kept losing serialization", store.ErrConflict, sale.SaleNumber)
		}
	}
}

func (s *Store) commitSale(ctx context.Context, sale domain.Sale, wanted map[string]int, rows []domain.CashTransaction) (*domain.Sale, []domain.CashTransaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := lockOpenShift(ctx, pgTx, sale.ShiftID); err != nil {
		return nil, nil, err
	}

	// Fixed order keeps concurrent sales from deadlocking on product rows.
	productIDs := make([]string, 0, len(wanted))
	for id := range wanted {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)
	for _, productID := range productIDs {
		qty := wanted[productID]
		var stock int
		var active bool
		err := pgTx.QueryRowContext(ctx, `SELECT stock, active FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock, &active)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, store.ErrNotFound
			}
			return nil, nil, err
		}
		if !active {
			return nil, nil, store.ErrNotFound
		}
		if stock < qty {
			return nil, nil, store.ErrInsufficientStock
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2
		`, qty, productID); err != nil {
			return nil, nil, err
		}
	}

	itemsJSON, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, nil, err
	}
	paymentsJSON, err := json.Marshal(sale.Payments)
	if err != nil {
		return nil, nil, err
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, sale_number, operator_id, operator_name, shift_id, items, subtotal, discount,
			total, payment_method, customer_name, customer_lot, payments, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.SaleNumber, sale.OperatorID, sale.OperatorName, sale.ShiftID, string(itemsJSON),
		sale.Subtotal, sale.Discount, sale.Total, sale.PaymentMethod, nullIfEmpty(sale.CustomerName),
		nullIfEmpty(sale.CustomerLot), string(paymentsJSON), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrConflict
		}
		return nil, nil, err
	}

	written := make([]domain.CashTransaction, 0, len(rows))
	for _, tx := range rows {
		tx.ShiftID = sale.ShiftID
		tx = stampTransaction(tx, sale.CreatedAt)
		if err := insertCashTransaction(ctx, pgTx, tx); err != nil {
			return nil, nil, err
		}
		written = append(written, tx)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}
	return &sale, written, nil
}

func (s *Store) ListSales(ctx context.Context, shiftID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_number, operator_id, operator_name, shift_id, items, subtotal, discount,
			total, payment_method, customer_name, customer_lot, payments, created_at
		FROM sales
		WHERE ($1 = '' OR shift_id = $1)
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, sale_number DESC
	`, shiftID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var itemsJSON, paymentsJSON []byte
		var customerName, customerLot sql.NullString
		if err := rows.Scan(&sale.ID, &sale.SaleNumber, &sale.OperatorID, &sale.OperatorName, &sale.ShiftID,
			&itemsJSON, &sale.Subtotal, &sale.Discount, &sale.Total, &sale.PaymentMethod,
			&customerName, &customerLot, &paymentsJSON, &sale.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(itemsJSON, &sale.Items); err != nil {
			return nil, fmt.Errorf("decode items of sale %s: %w", sale.ID, err)
		}
		if err := json.Unmarshal(paymentsJSON, &sale.Payments); err != nil {
			return nil, fmt.Errorf("decode payments of sale %s: %w", sale.ID, err)
		}
		sale.CustomerName = customerName.String
		sale.CustomerLot = customerLot.String
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) SumSalesByShift(ctx context.Context, shiftID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0) FROM sales WHERE shift_id = $1
	`, shiftID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Store) GetConfiguration(ctx context.Context) (*domain.Configuration, error) {
	var cfg domain.Configuration
	err := s.db.QueryRowContext(ctx, `
		SELECT business_name, address, phone, tax_id, currency, receipt_message, updated_at
		FROM configuration
		WHERE id = 1
	`).Scan(&cfg.BusinessName, &cfg.Address, &cfg.Phone, &cfg.TaxID, &cfg.Currency, &cfg.ReceiptMessage, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.Configuration{BusinessName: "Kiosco", Currency: "ARS"}, nil
		}
		return nil, err
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

func (s *Store) UpsertConfiguration(ctx context.Context, cfg domain.Configuration) (*domain.Configuration, error) {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO configuration (id, business_name, address, phone, tax_id, currency, receipt_message, updated_at)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id)
		DO UPDATE SET business_name = EXCLUDED.business_name, address = EXCLUDED.address,
			phone = EXCLUDED.phone, tax_id = EXCLUDED.tax_id, currency = EXCLUDED.currency,
			receipt_message = EXCLUDED.receipt_message, updated_at = EXCLUDED.updated_at
	`, cfg.BusinessName, cfg.Address, cfg.Phone, cfg.TaxID, cfg.Currency, cfg.ReceiptMessage, cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func lockOpenShift(ctx context.Context, pgTx *sql.Tx, shiftID string) error {
	var active bool
	err := pgTx.QueryRowContext(ctx, `SELECT active FROM shifts WHERE id = $1 FOR UPDATE`, shiftID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if !active {
		return store.ErrInvalidState
	}
	return nil
}

func insertCashTransaction(ctx context.Context, pgTx *sql.Tx, tx domain.CashTransaction) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO cash_transactions (`+cashColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tx.ID, tx.ShiftID, tx.Type, tx.Category, tx.Amount, tx.PaymentMethod, tx.Description, tx.CreatedAt)
	return err
}

func checkLedgerRow(tx domain.CashTransaction) error {
	if tx.Type != domain.TxTypeIncome && tx.Type != domain.TxTypeExpense {
		return store.ErrInvalidRecord
	}
	if !tx.Amount.IsPositive() || strings.TrimSpace(tx.PaymentMethod) == "" {
		return store.ErrInvalidRecord
	}
	return nil
}

func stampTransaction(tx domain.CashTransaction, at time.Time) domain.CashTransaction {
	if tx.ID == "" {
		tx.ID = xid.New("ctx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = at
	}
	return tx
}

func escapeLike(val string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(val)
}

// isSerializationFailure reports SQLSTATE 40001, which Postgres raises when a
// serializable transaction must be retried from the start.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
