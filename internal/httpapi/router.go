// Package httpapi — административный HTTP API: пакетное назначение кодов,
// номер заказа, метрики и health probes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/health"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/customercode"
)

const requestTimeout = 60 * time.Second

// CodeAssigner назначает customer_code одному аккаунту или всем без кода.
type CodeAssigner interface {
	AssignCodeToAccount(ctx context.Context, accountID string) (int64, error)
	AssignCustomerCodes(ctx context.Context) (customercode.BatchSummary, error)
}

// OrderNumbers возвращает отображаемый номер заказа.
type OrderNumbers interface {
	Number(ctx context.Context, orderID string) (string, error)
}

// Deps — зависимости роутера. Health и Gatherer необязательны.
type Deps struct {
	Codes    CodeAssigner
	Orders   OrderNumbers
	Health   *health.Handler
	Gatherer prometheus.Gatherer
	Logger   *log.Entry
}

type api struct {
	codes  CodeAssigner
	orders OrderNumbers
	logger *log.Entry
}

// NewRouter собирает chi-роутер административного API.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "admin-http")
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	healthHandler := deps.Health
	if healthHandler == nil {
		healthHandler = health.NewHandler("")
	}

	a := &api{codes: deps.Codes, orders: deps.Orders, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Method(http.MethodGet, "/healthz", healthHandler)
	r.Get("/readyz", healthHandler.ReadinessHandler)
	r.Get("/livez", health.LivenessHandler)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/customer-codes:assign", a.assignCustomerCodes)
		r.Post("/accounts/{id}/customer-code", a.assignAccountCode)
		r.Get("/orders/{id}/number", a.orderNumber)
	})

	return r
}

func (a *api) assignCustomerCodes(w http.ResponseWriter, r *http.Request) {
	summary, err := a.codes.AssignCustomerCodes(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *api) assignAccountCode(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	code, err := a.codes.AssignCodeToAccount(r.Context(), accountID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":    accountID,
		"customer_code": code,
	})
}

func (a *api) orderNumber(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	number, err := a.orders.Number(r.Context(), orderID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"order_id":     orderID,
		"order_number": number,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, "internal error"

	switch {
	case domain.IsInvalidInput(err):
		status, message = http.StatusBadRequest, err.Error()
	case domain.IsNotFound(err):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrAllocationExhausted):
		status, message = http.StatusServiceUnavailable, "customer code allocation is busy, retry later"
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "request timed out"
	}

	entry := a.logger.WithError(err).WithFields(log.Fields{
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("admin request failed")
	} else {
		entry.Debug("admin request rejected")
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestLogger пишет по строке logrus на запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
