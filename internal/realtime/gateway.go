package realtime

import (
	"context"
	"net/http"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/config"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"

	"github.com/gorilla/websocket"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(raw string) (auth.Principal, error)
}

// Authorizer decides whether p may follow topic.
type Authorizer interface {
	Authorize(ctx context.Context, p auth.Principal, topic string) error
}

// PresenceTracker records which topics a user is watching, per connection.
type PresenceTracker interface {
	Touch(ctx context.Context, userID, connID string, topics ...string) error
	Leave(ctx context.Context, userID, connID string, topics ...string) error
}

type gatewayConfig struct {
	writeWait      time.Duration
	pongWait       time.Duration
	maxMessageSize int64
	sendBuffer     int
}

func (c gatewayConfig) pingPeriod() time.Duration {
	return c.pongWait * 9 / 10
}

// Gateway upgrades authenticated requests to websocket sessions.
type Gateway struct {
	hub      *Hub
	verifier TokenVerifier
	authz    Authorizer
	presence PresenceTracker
	cfg      gatewayConfig
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewGateway(hub *Hub, verifier TokenVerifier, authz Authorizer, presence PresenceTracker,
	cfg config.RealtimeConfig, allowedOrigins []string, log logger.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		authz:    authz,
		presence: presence,
		cfg: gatewayConfig{
			writeWait:      config.GetDuration(cfg.WriteWait),
			pongWait:       config.GetDuration(cfg.PongWait),
			maxMessageSize: cfg.MaxMessageSize,
			sendBuffer:     cfg.SendBuffer,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// ServeHTTP handles GET /ws?token=<jwt>. Browsers cannot set headers on websocket
// requests, so the token travels in the query string.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		raw, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if raw == "" {
		errors.WriteError(w, errors.NewUnauthenticatedError("missing token"))
		return
	}
	principal, err := g.verifier.Verify(raw)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	c := newClient(principal, conn, g.cfg.sendBuffer)
	g.hub.register(c)
	s := &session{g: g, c: c}

	// The request context ends when the handler returns; the session outlives it.
	ctx := context.WithoutCancel(r.Context())
	go s.writePump()
	go s.readPump(ctx)
}
