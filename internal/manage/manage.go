// Package manage implements the manage-port HTTP admin surface: a
// JWT-protected stats endpoint and a raw WebSocket feed streaming
// periodic stats, served on the address given by the CLI's `-a` flag.
// Grounded on the teacher's own admin stack: `golang-jwt/jwt/v5` token
// verification (`go-server/internal/auth/jwt.go`) and `gobwas/ws`'s raw
// `ws.UpgradeHTTP` handshake (`ws/internal/shared/handlers_ws.go`).
package manage

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vipshop/vire/internal/command"
	"github.com/vipshop/vire/internal/metrics"
)

// StatsSource is whatever the server wires in to answer an admin stats
// request; internal/worker.Pool satisfies this via its own Stats method.
type StatsSource interface {
	Stats() command.Stats
}

// Server is the manage-port HTTP server: Prometheus exposition, a
// bearer-token-protected JSON stats endpoint, and a live WS stats feed.
type Server struct {
	http    *http.Server
	auth    *tokenAuth
	source  StatsSource
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// tokenAuth validates the HS256 bearer token the operator presents to any
// /admin/* route, built the way go-server/internal/auth/jwt.go's
// JWTManager does.
type tokenAuth struct {
	secret []byte
}

func (a *tokenAuth) verify(bearer string) bool {
	if a.secret == nil {
		return true // no secret configured: manage port runs unauthenticated (local/dev mode)
	}
	token, err := jwt.Parse(bearer, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return a.secret, nil
	})
	return err == nil && token.Valid
}

// New builds a Server listening on addr. secret may be empty to disable
// auth entirely.
func New(addr string, secret string, source StatsSource, reg *metrics.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		source:  source,
		metrics: reg,
		logger:  logger.With().Str("component", "manage").Logger(),
	}
	if secret != "" {
		s.auth = &tokenAuth{secret: []byte(secret)}
	} else {
		s.auth = &tokenAuth{}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/admin/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("/admin/stream", s.requireAuth(s.handleStream))

	s.http = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := r.Header.Get("Authorization")
		if len(bearer) > 7 && bearer[:7] == "Bearer " {
			bearer = bearer[7:]
		}
		if !s.auth.verify(bearer) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.source.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleStream upgrades to a raw WebSocket connection and pushes a JSON
// stats frame once per second until the client disconnects, using
// gobwas/ws directly rather than a higher-level wrapper (matching the
// teacher's own `ws.UpgradeHTTP` + manual frame read/write loop).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn().Err(err).Msg("manage: websocket upgrade failed")
		return
	}
	go func() {
		defer conn.Close()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			body, err := json.Marshal(s.source.Stats())
			if err != nil {
				return
			}
			if err := wsutil.WriteServerMessage(conn, ws.OpText, body); err != nil {
				return
			}
		}
	}()
}

// ListenAndServe runs the admin HTTP server until Close is called.
func (s *Server) ListenAndServe() error { return s.http.ListenAndServe() }

// Close shuts the admin HTTP server down.
func (s *Server) Close() error { return s.http.Close() }
