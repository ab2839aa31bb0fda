package http

import (
	"net/http"

	"github.com/auction-sentry/internal/application/bid"
	"github.com/auction-sentry/internal/application/ingest"
	"github.com/auction-sentry/internal/application/registry"
	"github.com/auction-sentry/internal/application/reminder"
	"github.com/auction-sentry/internal/config"
	jwtinfra "github.com/auction-sentry/internal/infrastructure/jwt"
	"github.com/auction-sentry/internal/transport/http/handler"
	appmiddleware "github.com/auction-sentry/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds the running services the router exposes. The archives are
// optional read fallbacks for auctions evicted from the registry.
type Deps struct {
	Registry    *registry.Registry
	IngestSvc   *ingest.Service
	ReminderSvc *reminder.Service
	BidSvc      *bid.Service
	PostArchive handler.PostArchive
	BidArchive  handler.BidArchive
	JWTProvider *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to the ingestion endpoint.
	ingestRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	postH := handler.NewPostHandler(deps.IngestSvc)
	reminderH := handler.NewReminderHandler(deps.ReminderSvc)
	auctionH := handler.NewAuctionHandler(deps.Registry, deps.BidSvc, deps.PostArchive, deps.BidArchive)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.With(ingestRL.Limit).Post("/posts", postH.Ingest)

			r.Post("/reminders", reminderH.Set)
			r.Get("/reminders/{userID}/{assetID}", reminderH.Get)
			r.Delete("/reminders/{userID}/{assetID}", reminderH.Cancel)

			r.Get("/auctions/{assetID}", auctionH.Get)
			r.Post("/auctions/{assetID}/bids", auctionH.PlaceBid)
			r.Get("/auctions/{assetID}/bids", auctionH.ListBids)
			r.Get("/auctions/{assetID}/bids/best", auctionH.BestBid)
			r.Get("/auctions/{assetID}/bids/final", auctionH.FinalBid)
			r.Post("/auctions/{assetID}/watchers", auctionH.Watch)
		})
	})

	return r
}
