package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"billdesk/backend/internal/identity"
	"billdesk/backend/internal/logging"
	"billdesk/backend/internal/metrics"
	"billdesk/backend/internal/service"
)

type API struct {
	service       *service.Service
	tokens        *identity.TokenIssuer
	metrics       *metrics.Metrics
	logger        *zap.Logger
	allowedOrigin string
	signInLimiter *attemptLimiter
}

type Options struct {
	AllowedOrigin string
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

func New(svc *service.Service, tokens *identity.TokenIssuer, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		tokens:        tokens,
		metrics:       opts.Metrics,
		logger:        logger,
		allowedOrigin: opts.AllowedOrigin,
		signInLimiter: newAttemptLimiter(5, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware(a.logger),
		a.metrics.Middleware,
		middleware.Recoverer,
		a.withMiddleware,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound, "not-found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/sign-up", a.handleSignUp)
		r.Post("/auth/sign-in", a.handleSignIn)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Post("/rpc/createBill", a.handleCreateBill)
			r.Post("/rpc/createPurchase", a.handleCreatePurchase)
			r.Post("/rpc/createStaff", a.handleCreateStaff)
			r.Post("/rpc/deleteStaff", a.handleDeleteStaff)

			r.Post("/shops", a.handleCreateShop)
			r.Get("/staff", a.handleListStaff)
			r.Patch("/staff/{id}", a.handleUpdateStaff)

			r.Put("/products/{barcode}", a.handleUpsertProduct)
			r.Get("/scan/{code}", a.handleScan)
			r.Put("/inventory/{barcode}", a.handleSetInventory)
			r.Delete("/inventory/{barcode}", a.handleDeleteInventory)

			r.Get("/suppliers", a.handleListSuppliers)
			r.Post("/suppliers", a.handleCreateSupplier)
			r.Patch("/suppliers/{id}", a.handleUpdateSupplier)
			r.Delete("/suppliers/{id}", a.handleDeleteSupplier)

			r.Get("/bills", a.handleListBills)
			r.Get("/bills/{id}/receipt", a.handleReceipt)
			r.Get("/purchases", a.handleListPurchases)
			r.Get("/stats/daily", a.handleDailyStats)
		})
	})
	return r
}
