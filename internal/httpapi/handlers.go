package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// actingFor reports whether the request targets another operator's shift and,
// if so, whether the caller may do that.
func (a *API) actingFor(w http.ResponseWriter, r *http.Request, operatorID string) bool {
	actor, _ := service.ActorFromContext(r.Context())
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" || strings.EqualFold(operatorID, actor.Username) {
		return true
	}
	return a.authorize(w, r, ActionShiftAnyOperator)
}

// ownsShift loads the shift a request writes to or reads from and applies
// actingFor to its operator.
func (a *API) ownsShift(w http.ResponseWriter, r *http.Request, shiftID string) bool {
	shift, err := a.service.GetShift(r.Context(), shiftID)
	if err != nil {
		a.fail(w, r, err)
		return false
	}
	return a.actingFor(w, r, shift.OperatorID)
}

func (a *API) handleShiftStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.StartShiftRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.actingFor(w, r, req.OperatorID) {
		return
	}

	resp, err := a.service.StartShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CloseShiftRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.ownsShift(w, r, req.ShiftID) {
		return
	}

	resp, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	operatorID := r.URL.Query().Get("operator_id")
	if !a.actingFor(w, r, operatorID) {
		return
	}
	resp, err := a.service.GetActiveShift(r.Context(), operatorID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShifts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	shifts, err := a.service.ListShifts(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shifts": shifts})
}

func (a *API) handleShiftClosures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	closures, err := a.service.ListClosures(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closures": closures})
}

func (a *API) handleCashTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		filter := domain.TransactionFilter{
			ShiftID:       query.Get("shift_id"),
			Type:          query.Get("type"),
			PaymentMethod: query.Get("payment_method"),
			Category:      query.Get("category"),
			Period:        query.Get("period"),
		}
		var err error
		if filter.From, err = parseDate(query.Get("from"), "from", a.service.Location()); err != nil {
			a.fail(w, r, err)
			return
		}
		if filter.To, err = parseDate(query.Get("to"), "to", a.service.Location()); err != nil {
			a.fail(w, r, err)
			return
		}

		transactions, err := a.service.ListTransactions(r.Context(), filter)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
	case http.MethodPost:
		if !a.authorize(w, r, ActionCashWrite) {
			return
		}
		var req domain.RecordTransactionRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		if !a.ownsShift(w, r, req.ShiftID) {
			return
		}

		tx, err := a.service.RecordTransaction(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchasePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PurchasePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.ownsShift(w, r, req.ShiftID) {
		return
	}

	tx, err := a.service.RecordPurchasePayment(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (a *API) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	shiftID := strings.TrimSpace(r.URL.Query().Get("shift_id"))
	if shiftID == "" {
		a.fail(w, r, &service.ValidationError{Field: "shift_id", Message: "shift is required"})
		return
	}
	closingCash, err := parseDecimal(r.URL.Query().Get("closing_cash"), "closing_cash")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.ownsShift(w, r, shiftID) {
		return
	}

	rec, err := a.service.Reconciliation(r.Context(), shiftID, closingCash)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) saleFilter(r *http.Request) (domain.SaleFilter, error) {
	query := r.URL.Query()
	filter := domain.SaleFilter{
		ShiftID: query.Get("shift_id"),
		Period:  query.Get("period"),
	}
	var err error
	if filter.From, err = parseDate(query.Get("from"), "from", a.service.Location()); err != nil {
		return filter, err
	}
	if filter.To, err = parseDate(query.Get("to"), "to", a.service.Location()); err != nil {
		return filter, err
	}
	return filter, nil
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := a.saleFilter(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		sales, err := a.service.ListSales(r.Context(), filter)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		if !a.authorize(w, r, ActionSaleWrite) {
			return
		}
		var req domain.CompleteSaleRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		if !a.ownsShift(w, r, req.ShiftID) {
			return
		}

		resp, err := a.service.CompleteSale(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	filter, err := a.saleFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	summary, err := a.service.SalesSummary(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		includeInactive := r.URL.Query().Get("include_inactive") == "true"
		products, err := a.service.ListProducts(r.Context(), includeInactive)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		if !a.authorize(w, r, ActionCatalogWrite) {
			return
		}
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/products/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	if tail == "low-stock" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		products, err := a.service.ListLowStockProducts(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
		return
	}

	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	if !a.authorize(w, r, ActionCatalogWrite) {
		return
	}

	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	updated, err := a.service.UpdateProduct(r.Context(), tail, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": updated})
}

func (a *API) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := a.service.GetConfiguration(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		if !a.authorize(w, r, ActionConfigWrite) {
			return
		}
		var req domain.Configuration
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		cfg, err := a.service.UpdateConfiguration(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListOperators(r.Context())})
	case http.MethodPost:
		var req domain.OperatorCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		operator, err := a.auth.CreateOperator(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": operator})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	period := r.URL.Query().Get("period")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), period, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
