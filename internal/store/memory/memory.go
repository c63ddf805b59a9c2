package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/reconciliation"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/xid"
)

type Store struct {
	mu                    sync.RWMutex
	products              map[string]domain.Product
	shiftsByID            map[string]domain.Shift
	activeShiftByOperator map[string]string
	cashTransactions      []domain.CashTransaction
	salesByID             map[string]domain.Sale
	saleNumbers           map[string]string
	configuration         domain.Configuration
	auditLogs             []domain.AuditLog
	usersByUsername       map[string]domain.UserAccount
}

// New returns an empty store with a default configuration row.
func New() *Store {
	return &Store{
		products:              make(map[string]domain.Product),
		shiftsByID:            make(map[string]domain.Shift),
		activeShiftByOperator: make(map[string]string),
		cashTransactions:      make([]domain.CashTransaction, 0, 128),
		salesByID:             make(map[string]domain.Sale),
		saleNumbers:           make(map[string]string),
		configuration: domain.Configuration{
			BusinessName: "Kiosco",
			Currency:     "ARS",
			UpdatedAt:    time.Now().UTC(),
		},
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a small demo catalog. Operator accounts are
// only created for the roles whose SEED_ADMIN_PASSWORD / SEED_SELLER_PASSWORD
// variable is set.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()

	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{Code: "7790001000011", Name: "Alfajor Triple", Category: "golosinas", Price: decimal.RequireFromString("850"), Cost: decimal.RequireFromString("520"), Stock: 48, MinStock: 12},
		{Code: "7790001000028", Name: "Gaseosa Cola 500ml", Category: "bebidas", Price: decimal.RequireFromString("1200"), Cost: decimal.RequireFromString("780"), Stock: 36, MinStock: 10},
		{Code: "7790001000035", Name: "Agua Mineral 500ml", Category: "bebidas", Price: decimal.RequireFromString("700"), Cost: decimal.RequireFromString("410"), Stock: 40, MinStock: 10},
		{Code: "7790001000042", Name: "Chicle Menta", Category: "golosinas", Price: decimal.RequireFromString("300"), Cost: decimal.RequireFromString("150"), Stock: 100, MinStock: 20},
		{Code: "7790001000059", Name: "Papas Fritas 80g", Category: "snacks", Price: decimal.RequireFromString("1500"), Cost: decimal.RequireFromString("950"), Stock: 24, MinStock: 6},
		{Code: "7790001000066", Name: "Cafe en Capsula", Category: "almacen", Price: decimal.RequireFromString("2300"), Cost: decimal.RequireFromString("1600"), Stock: 5, MinStock: 8},
		{Code: "7790001000073", Name: "Pilas AA x2", Category: "varios", Price: decimal.RequireFromString("2800"), Cost: decimal.RequireFromString("1900"), Stock: 15, MinStock: 4},
	} {
		p.ID = xid.New("prd")
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	for _, u := range []struct {
		envKey   string
		username string
		fullName string
		role     string
	}{
		{"SEED_ADMIN_PASSWORD", "admin", "Administrador", domain.RoleAdmin},
		{"SEED_SELLER_PASSWORD", "vendedor", "Vendedor", domain.RoleSeller},
	} {
		password := os.Getenv(u.envKey)
		if password == "" {
			logger.Warn("seed user skipped, password not set", zap.String("username", u.username), zap.String("env", u.envKey))
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("hash seed password", zap.String("username", u.username), zap.Error(err))
			continue
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			FullName:  u.fullName,
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductByCode(_ context.Context, code string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code = strings.TrimSpace(code)
	for _, p := range s.products {
		if p.Code == code {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Code = strings.TrimSpace(product.Code)
	product.Name = strings.TrimSpace(product.Name)
	if product.Code == "" || product.Name == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codeTaken(product.Code, "") {
		return nil, store.ErrConflict
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Code = strings.TrimSpace(product.Code)
	if product.Code == "" || strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() || product.Stock < 0 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if s.codeTaken(product.Code, product.ID) {
		return nil, store.ErrConflict
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if p.Active && p.Stock <= p.MinStock {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Stock == b.Stock {
			return strings.Compare(a.Name, b.Name)
		}
		return a.Stock - b.Stock
	})
	return products, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, bool, error) {
	if strings.TrimSpace(shift.OperatorID) == "" || shift.OpeningCash.IsNegative() {
		return nil, false, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if shiftID, exists := s.activeShiftByOperator[shift.OperatorID]; exists {
		existing := cloneShift(s.shiftsByID[shiftID])
		return &existing, false, nil
	}
	if shift.ID == "" {
		shift.ID = xid.New("shf")
	}
	now := time.Now().UTC()
	if shift.StartDate.IsZero() {
		shift.StartDate = now
	}
	shift.CreatedAt = now
	shift.EndDate = nil
	shift.ClosingCash = nil
	shift.TotalSales = decimal.Zero
	shift.TotalExpenses = decimal.Zero
	shift.Active = true

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByOperator[shift.OperatorID] = shift.ID
	created := cloneShift(shift)
	return &created, true, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneShift(shift)
	return &found, nil
}

func (s *Store) GetActiveShiftByOperator(_ context.Context, operatorID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByOperator[operatorID]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || !shift.Active {
		return nil, store.ErrNotFound
	}
	found := cloneShift(shift)
	return &found, nil
}

func (s *Store) ListShifts(_ context.Context, limit int) ([]domain.Shift, error) {
	return s.listShifts(func(domain.Shift) bool { return true }, limit), nil
}

func (s *Store) ListClosedShifts(_ context.Context, limit int) ([]domain.Shift, error) {
	return s.listShifts(func(shift domain.Shift) bool { return !shift.Active }, limit), nil
}

func (s *Store) listShifts(keep func(domain.Shift) bool, limit int) []domain.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shifts := make([]domain.Shift, 0, len(s.shiftsByID))
	for _, shift := range s.shiftsByID {
		if keep(shift) {
			shifts = append(shifts, cloneShift(shift))
		}
	}
	slices.SortFunc(shifts, func(a, b domain.Shift) int {
		if a.StartDate.Equal(b.StartDate) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.StartDate.Compare(a.StartDate)
	})
	if limit > 0 && len(shifts) > limit {
		shifts = shifts[:limit]
	}
	return shifts
}

func (s *Store) CloseShift(_ context.Context, id string, closure domain.ShiftClosure) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !shift.Active {
		return nil, store.ErrInvalidState
	}
	endDate := closure.EndDate
	if endDate.IsZero() {
		endDate = time.Now().UTC()
	}
	closingCash := closure.ClosingCash
	shift.EndDate = &endDate
	shift.ClosingCash = &closingCash
	shift.TotalSales = closure.TotalSales
	shift.TotalExpenses = closure.TotalExpenses
	shift.Active = false

	s.shiftsByID[id] = shift
	if s.activeShiftByOperator[shift.OperatorID] == id {
		delete(s.activeShiftByOperator, shift.OperatorID)
	}
	closed := cloneShift(shift)
	return &closed, nil
}

func (s *Store) AppendCashTransaction(_ context.Context, tx domain.CashTransaction) (*domain.CashTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLedgerRow(tx); err != nil {
		return nil, err
	}
	tx = stampTransaction(tx, time.Now().UTC())
	s.cashTransactions = append(s.cashTransactions, tx)
	appended := tx
	return &appended, nil
}

func (s *Store) ListCashTransactions(_ context.Context, filter domain.TransactionFilter, from time.Time, to time.Time) ([]domain.CashTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashTransaction, 0, 64)
	for _, tx := range s.cashTransactions {
		if !reconciliation.Matches(filter, tx) || !reconciliation.InWindow(tx.CreatedAt, from, to) {
			continue
		}
		result = append(result, tx)
	}
	slices.SortFunc(result, func(a, b domain.CashTransaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func (s *Store) CommitSale(_ context.Context, commit domain.SaleCommit) (*domain.Sale, []domain.CashTransaction, error) {
	sale := commit.Sale
	if len(sale.Items) == 0 || strings.TrimSpace(sale.SaleNumber) == "" {
		return nil, nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[sale.ShiftID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	if !shift.Active {
		return nil, nil, store.ErrInvalidState
	}
	if _, taken := s.saleNumbers[sale.SaleNumber]; taken {
		return nil, nil, store.ErrConflict
	}

	// Validate every decrement against the summed quantity before touching stock.
	wanted := make(map[string]int, len(commit.Decrements))
	for _, dec := range commit.Decrements {
		if dec.Quantity < 1 {
			return nil, nil, store.ErrInvalidRecord
		}
		wanted[dec.ProductID] += dec.Quantity
	}
	for productID, qty := range wanted {
		product, exists := s.products[productID]
		if !exists || !product.Active {
			return nil, nil, store.ErrNotFound
		}
		if product.Stock < qty {
			return nil, nil, store.ErrInsufficientStock
		}
	}
	for _, tx := range commit.Transactions {
		tx.ShiftID = sale.ShiftID
		if err := s.checkLedgerRow(tx); err != nil {
			return nil, nil, err
		}
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale = cloneSale(sale)

	for productID, qty := range wanted {
		product := s.products[productID]
		product.Stock -= qty
		product.UpdatedAt = now
		s.products[productID] = product
	}
	s.salesByID[sale.ID] = sale
	s.saleNumbers[sale.SaleNumber] = sale.ID

	written := make([]domain.CashTransaction, 0, len(commit.Transactions))
	for _, tx := range commit.Transactions {
		tx.ShiftID = sale.ShiftID
		tx = stampTransaction(tx, sale.CreatedAt)
		s.cashTransactions = append(s.cashTransactions, tx)
		written = append(written, tx)
	}

	committed := cloneSale(sale)
	return &committed, written, nil
}

func (s *Store) ListSales(_ context.Context, shiftID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if shiftID != "" && sale.ShiftID != shiftID {
			continue
		}
		if !reconciliation.InWindow(sale.CreatedAt, from, to) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.SaleNumber, a.SaleNumber)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sales, nil
}

func (s *Store) SumSalesByShift(_ context.Context, shiftID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, sale := range s.salesByID {
		if sale.ShiftID == shiftID {
			total = total.Add(sale.Total)
		}
	}
	return total, nil
}

func (s *Store) GetConfiguration(_ context.Context) (*domain.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.configuration
	return &cfg, nil
}

func (s *Store) UpsertConfiguration(_ context.Context, cfg domain.Configuration) (*domain.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	s.configuration = cfg
	saved := cfg
	return &saved, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if !reconciliation.InWindow(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// checkLedgerRow must be called with s.mu held.
func (s *Store) checkLedgerRow(tx domain.CashTransaction) error {
	if tx.Type != domain.TxTypeIncome && tx.Type != domain.TxTypeExpense {
		return store.ErrInvalidRecord
	}
	if !tx.Amount.IsPositive() || strings.TrimSpace(tx.PaymentMethod) == "" {
		return store.ErrInvalidRecord
	}
	shift, exists := s.shiftsByID[tx.ShiftID]
	if !exists {
		return store.ErrNotFound
	}
	if !shift.Active {
		return store.ErrInvalidState
	}
	return nil
}

// codeTaken must be called with s.mu held.
func (s *Store) codeTaken(code string, exceptID string) bool {
	for id, p := range s.products {
		if id != exceptID && p.Code == code {
			return true
		}
	}
	return false
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

func cloneShift(src domain.Shift) domain.Shift {
	dup := src
	if src.EndDate != nil {
		end := *src.EndDate
		dup.EndDate = &end
	}
	if src.ClosingCash != nil {
		closing := *src.ClosingCash
		dup.ClosingCash = &closing
	}
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = slices.Clone(src.Items)
	dup.Payments = slices.Clone(src.Payments)
	return dup
}
