// Package rest exposes the HTTP surface: auth, auctions, bids,
// categories, and the real-time hub endpoint.
package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hammerstone/live-auction-backend/internal/api/websocket"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/auth"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/cache"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
	"github.com/hammerstone/live-auction-backend/internal/service/bidding"
	"github.com/hammerstone/live-auction-backend/internal/service/identity"
	"github.com/hammerstone/live-auction-backend/internal/service/lifecycle"
)

// Handlers bundles the services the HTTP layer dispatches to.
type Handlers struct {
	identity  *identity.Service
	bidding   *bidding.Service
	lifecycle *lifecycle.Service
	logger    *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(
	identitySvc *identity.Service,
	biddingSvc *bidding.Service,
	lifecycleSvc *lifecycle.Service,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		identity:  identitySvc,
		bidding:   biddingSvc,
		lifecycle: lifecycleSvc,
		logger:    logger,
	}
}

// Server is the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires routes, middleware, and the hub endpoint.
func NewServer(
	cfg *config.Config,
	handlers *Handlers,
	hub *websocket.Hub,
	tokens *auth.TokenService,
	limiter cache.RateLimiter,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()
	authMW := &authMiddleware{tokens: tokens}

	// Auth
	mux.HandleFunc("POST /api/auth/register", handlers.register)
	mux.HandleFunc("POST /api/auth/login", handlers.login)
	mux.HandleFunc("POST /api/auth/refresh-token", handlers.refreshToken)
	mux.HandleFunc("POST /api/auth/logout", authMW.require(handlers.logout))
	mux.HandleFunc("GET /api/auth/me", authMW.require(handlers.me))

	// Auctions. Literal segments win over {id}, so my-auctions and
	// category routes do not collide with the detail route.
	mux.HandleFunc("GET /api/auctions", handlers.listAuctions)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.getAuction)
	mux.HandleFunc("GET /api/auctions/category/{id}", handlers.listAuctionsByCategory)
	mux.HandleFunc("POST /api/auctions", authMW.require(handlers.createAuction))
	mux.HandleFunc("POST /api/auctions/{id}/activate", authMW.require(handlers.activateAuction))
	mux.HandleFunc("DELETE /api/auctions/{id}", authMW.require(handlers.cancelAuction))
	mux.HandleFunc("GET /api/auctions/my-auctions", authMW.require(handlers.myAuctions))
	mux.HandleFunc("GET /api/auctions/my-bids", authMW.require(handlers.myBids))

	// Bids
	mux.HandleFunc("GET /api/auctions/{id}/bids", handlers.bidHistory)
	mux.HandleFunc("POST /api/auctions/{id}/bids", authMW.require(handlers.placeBid))

	// Categories
	mux.HandleFunc("GET /api/categories", handlers.listCategories)
	mux.HandleFunc("GET /api/categories/{id}", handlers.getCategory)
	mux.HandleFunc("POST /api/categories", authMW.require(handlers.createCategory))

	// Real-time hub
	mux.Handle("/hubs/auction", hub)

	// Operational
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok", "version": cfg.Version})
	})

	handler := chain(mux,
		recovery(logger),
		requestLogging(logger),
		cors,
		rateLimit(limiter, cfg.Security.RateLimit.RequestsPerSecond),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		logger: logger,
	}
}

// Handler exposes the fully wired handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
