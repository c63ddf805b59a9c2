package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kiosco/backend/internal/service"
	"kiosco/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	policy        AuthorizationPolicy
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *zap.Logger
}

type Options struct {
	AllowedOrigin string
	Policy        AuthorizationPolicy
	Logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Policy == nil {
		opts.Policy = DefaultRolePolicy()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		policy:        opts.Policy,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        opts.Logger.Named("http"),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/shifts/start", a.requireAuth(ActionShiftOperate, a.handleShiftStart))
	mux.HandleFunc("/api/v1/shifts/close", a.requireAuth(ActionShiftOperate, a.handleShiftClose))
	mux.HandleFunc("/api/v1/shifts/active", a.requireAuth(ActionShiftRead, a.handleShiftActive))
	mux.HandleFunc("/api/v1/shifts/closures", a.requireAuth(ActionShiftAnyOperator, a.handleShiftClosures))
	mux.HandleFunc("/api/v1/shifts", a.requireAuth(ActionShiftRead, a.handleShifts))

	mux.HandleFunc("/api/v1/cash-transactions", a.requireAuth(ActionCashRead, a.handleCashTransactions))
	mux.HandleFunc("/api/v1/purchase-payments", a.requireAuth(ActionCashWrite, a.handlePurchasePayments))
	mux.HandleFunc("/api/v1/reconciliation", a.requireAuth(ActionCashRead, a.handleReconciliation))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(ActionSaleRead, a.handleSales))
	mux.HandleFunc("/api/v1/sales/summary", a.requireAuth(ActionSaleRead, a.handleSalesSummary))

	mux.HandleFunc("/api/v1/products", a.requireAuth(ActionCatalogRead, a.handleProducts))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(ActionCatalogRead, a.handleProductActions))

	mux.HandleFunc("/api/v1/configuration", a.requireAuth(ActionConfigRead, a.handleConfiguration))
	mux.HandleFunc("/api/v1/users", a.requireAuth(ActionUserManage, a.handleUsers))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(ActionAuditRead, a.handleAuditLogs))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(action Action, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if !a.policy.Allow(actor, action) {
			writeError(w, http.StatusForbidden, errors.New("forbidden"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

// authorize checks a second action for handlers whose write method needs more
// than the route's read action.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, action Action) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok || !a.policy.Allow(actor, action) {
		writeError(w, http.StatusForbidden, errors.New("forbidden"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(startedAt)),
		)
	})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON decodes a single JSON object into dest and runs its validate tags.
func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return &service.ValidationError{Message: "invalid request body: " + err.Error()}
	}
	if err := validate.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &service.ValidationError{Field: fieldPath(fe.Namespace()), Message: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &service.ValidationError{Message: err.Error()}
	}
	return nil
}

// fieldPath drops the top-level struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

const dateLayout = "2006-01-02"

// parseDate accepts a calendar date in loc or a full RFC 3339 timestamp.
func parseDate(raw string, field string, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(dateLayout, trimmed, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, &service.ValidationError{Field: field, Message: "expected YYYY-MM-DD or RFC 3339 time"}
	}
	return t, nil
}

func parseDecimal(raw string, field string) (*decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, &service.ValidationError{Field: field, Message: "expected a decimal amount"}
	}
	return &value, nil
}

// statusFor maps the service and store error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInactiveAccount), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status its kind maps to and logs server errors.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, err)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are meant for the operator.
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	payload := map[string]any{"error": msg}
	var verr *service.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		payload["field"] = verr.Field
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
