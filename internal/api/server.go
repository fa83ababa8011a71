// Package api exposes the directory, portal and admin operations as a JSON HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/config"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/validation"
	"tucomercio/internal/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verifier turns a bearer token into the calling principal.
type Verifier interface {
	Verify(raw string) (auth.Principal, error)
}

// Services are the domain operations the handlers call.
type Services struct {
	Businesses    *services.Businesses
	Reviews       *services.Reviews
	Favorites     *services.Favorites
	Chats         *services.Chats
	Notifications *services.Notifications
	Plans         *services.Plans
	Campaigns     *services.Campaigns
	Promotions    *services.Promotions
	Users         *services.Users
	Dashboard     *services.Dashboard
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Options struct {
	Services  Services
	Verifier  Verifier
	Validator *validation.Validator
	Realtime  http.Handler
	Checks    map[string]Check
	Server    config.ServerConfig
	Logger    logger.Logger
}

type handler struct {
	svc       Services
	validator *validation.Validator
	log       logger.Logger
}

// NewRouter mounts every route under /api/v1 plus /health, /ready, /metrics and /ws.
func NewRouter(opts Options) *mux.Router {
	h := &handler{svc: opts.Services, validator: opts.Validator, log: opts.Logger}
	limiter := newRateLimiter(opts.Server.RateLimit.RequestsPerSecond, opts.Server.RateLimit.Burst, opts.Logger)

	r := mux.NewRouter()
	r.Use(recoverer(opts.Logger), cors(opts.Server.AllowedOrigins))

	r.HandleFunc("/health", health).Methods(http.MethodGet)
	r.HandleFunc("/ready", ready(opts.Checks)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if opts.Realtime != nil {
		r.Handle("/ws", opts.Realtime).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(instrument, authenticate(opts.Verifier), accessLog(opts.Logger), limiter.middleware)
	v1.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	h.publicRoutes(v1)

	user := v1.NewRoute().Subrouter()
	user.Use(requireAuth)
	h.userRoutes(user)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(requireAuth, requireSuperAdmin)
	h.adminRoutes(admin)

	return r
}

func (h *handler) publicRoutes(r *mux.Router) {
	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)

	r.HandleFunc("/businesses", h.listBusinesses).Methods(http.MethodGet)
	r.HandleFunc("/businesses/{idOrSlug}", h.getBusiness).Methods(http.MethodGet)
	r.HandleFunc("/businesses/{id}/reviews", h.listReviews).Methods(http.MethodGet)
	r.HandleFunc("/businesses/{id}/promotions", h.listPromotions).Methods(http.MethodGet)

	r.HandleFunc("/campaigns", h.activeCampaigns).Methods(http.MethodGet)
	r.HandleFunc("/campaigns/{id}", h.getCampaign).Methods(http.MethodGet)
	r.HandleFunc("/plans", h.listPlans).Methods(http.MethodGet)
}

func (h *handler) userRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/me", h.updateProfile).Methods(http.MethodPatch)
	r.HandleFunc("/me/reviews", h.myReviews).Methods(http.MethodGet)
	r.HandleFunc("/me/favorites", h.myFavorites).Methods(http.MethodGet)

	r.HandleFunc("/businesses/{id}/reviews", h.upsertReview).Methods(http.MethodPut)
	r.HandleFunc("/reviews/{id}", h.deleteReview).Methods(http.MethodDelete)
	r.HandleFunc("/reviews/{id}/reply", h.replyReview).Methods(http.MethodPost)

	r.HandleFunc("/businesses/{id}/favorite", h.isFavorite).Methods(http.MethodGet)
	r.HandleFunc("/businesses/{id}/favorite", h.toggleFavorite).Methods(http.MethodPost)
	r.HandleFunc("/businesses/{id}/favorite", h.addFavorite).Methods(http.MethodPut)
	r.HandleFunc("/businesses/{id}/favorite", h.removeFavorite).Methods(http.MethodDelete)

	r.HandleFunc("/chats", h.listChats).Methods(http.MethodGet)
	r.HandleFunc("/chats/unread", h.unreadChats).Methods(http.MethodGet)
	r.HandleFunc("/chats/support", h.openSupportChat).Methods(http.MethodPost)
	r.HandleFunc("/businesses/{id}/chat", h.openBusinessChat).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}", h.getChat).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/messages", h.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/read", h.markChatRead).Methods(http.MethodPost)

	r.HandleFunc("/notifications", h.feed).Methods(http.MethodGet)
	r.HandleFunc("/notifications/unread", h.unreadNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read-all", h.markAllNotificationsRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}/read", h.markNotificationRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}", h.deleteNotification).Methods(http.MethodDelete)

	// Business portal.
	r.HandleFunc("/portal/business", h.myBusiness).Methods(http.MethodGet)
	r.HandleFunc("/portal/business", h.createBusiness).Methods(http.MethodPost)
	r.HandleFunc("/portal/stats", h.businessStats).Methods(http.MethodGet)
	r.HandleFunc("/businesses/{id}", h.updateBusiness).Methods(http.MethodPut)
	r.HandleFunc("/businesses/{id}/uploads", h.presignUpload).Methods(http.MethodPost)
	r.HandleFunc("/businesses/{id}/promotions", h.createPromotion).Methods(http.MethodPost)
	r.HandleFunc("/promotions/{id}", h.updatePromotion).Methods(http.MethodPut)
	r.HandleFunc("/promotions/{id}", h.deletePromotion).Methods(http.MethodDelete)
	r.HandleFunc("/campaigns/{id}/join", h.requestJoinCampaign).Methods(http.MethodPost)
	r.HandleFunc("/campaigns/{id}/participants/{businessId}", h.removeParticipant).Methods(http.MethodDelete)
}

func (h *handler) adminRoutes(r *mux.Router) {
	r.HandleFunc("/stats", h.adminStats).Methods(http.MethodGet)

	r.HandleFunc("/businesses", h.adminListBusinesses).Methods(http.MethodGet)
	r.HandleFunc("/businesses/{id}/status", h.setBusinessStatus).Methods(http.MethodPost)
	r.HandleFunc("/businesses/{id}/plan", h.assignPlan).Methods(http.MethodPut)
	r.HandleFunc("/businesses/{id}/featured", h.setFeatured).Methods(http.MethodPut)
	r.HandleFunc("/businesses/{id}", h.deleteBusiness).Methods(http.MethodDelete)
	r.HandleFunc("/reviews/{id}/hidden", h.setReviewHidden).Methods(http.MethodPut)

	r.HandleFunc("/plans", h.adminListPlans).Methods(http.MethodGet)
	r.HandleFunc("/plans", h.createPlan).Methods(http.MethodPost)
	r.HandleFunc("/plans/{id}", h.updatePlan).Methods(http.MethodPut)
	r.HandleFunc("/plans/{id}", h.deactivatePlan).Methods(http.MethodDelete)

	r.HandleFunc("/campaigns", h.adminListCampaigns).Methods(http.MethodGet)
	r.HandleFunc("/campaigns", h.createCampaign).Methods(http.MethodPost)
	r.HandleFunc("/campaigns/{id}", h.updateCampaign).Methods(http.MethodPut)
	r.HandleFunc("/campaigns/{id}/publish", h.publishCampaign).Methods(http.MethodPost)
	r.HandleFunc("/campaigns/{id}/archive", h.archiveCampaign).Methods(http.MethodPost)
	r.HandleFunc("/campaigns/{id}/participants", h.addParticipant).Methods(http.MethodPost)
	r.HandleFunc("/campaigns/{id}/participants/{businessId}", h.reviewParticipant).Methods(http.MethodPut)
	r.HandleFunc("/campaigns/{id}/participants/{businessId}", h.removeParticipant).Methods(http.MethodDelete)

	r.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/users", h.provisionUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/disabled", h.setUserDisabled).Methods(http.MethodPut)

	r.HandleFunc("/notifications/broadcast", h.broadcast).Methods(http.MethodPost)
}

// NewServer applies the configured timeouts.
func NewServer(cfg config.ServerConfig, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadTimeout:       config.GetDuration(cfg.ReadTimeout),
		WriteTimeout:      config.GetDuration(cfg.WriteTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
