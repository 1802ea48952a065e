package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/infra/observability"
	"github.com/boddenberg/envelope-ledger/internal/port"
	"github.com/boddenberg/envelope-ledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// RouterDeps bundles what the HTTP layer needs.
type RouterDeps struct {
	Ledger     *service.Ledger
	Budget     *service.BudgetService
	Store      port.HealthChecker
	Metrics    *observability.Metrics
	CORSOrigin string
	Logger     *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{deps.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/", rootHandler())
	r.Get("/healthz", healthzHandler(deps.Store))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/v1/stats", statsHandler(deps.Metrics))

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/budget", func(r chi.Router) {
			r.Get("/envelopes", listEnvelopesHandler(deps.Budget, logger))
			r.Post("/rules", createRuleHandler(deps.Budget, logger))
			r.Get("/accounts", listAccountsHandler(deps.Budget, logger))

			r.Get("/transactions", listTransactionsHandler(deps.Ledger, logger))
			r.Post("/transactions", createTransactionHandler(deps.Ledger, logger))
			r.Get("/transactions/{id}", getTransactionHandler(deps.Ledger, logger))
			r.Patch("/transactions/{id}", updateTransactionHandler(deps.Ledger, logger))
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return r
}

func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"name": "bens-backend", "version": "1.0.0"})
	}
}

// healthzHandler pings the store and reports per-dependency status.
func healthzHandler(store port.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "ledger-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "database", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		code := http.StatusOK
		if overallStatus == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func statsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
