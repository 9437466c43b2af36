// Package backend is a development stand-in for the platform backend. It serves
// the protected endpoint the client verifies credentials against and publishes
// the key set the credentials are signed with.
package backend

import (
	"encoding/json"
	"net/http"
	"sync"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	RouteProtected = "GET /api/protected"
	RouteJWKS      = "GET /.well-known/jwks.json"
)

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	keys   *KeyPair
	issuer string

	revoked     map[string]struct{}
	revokedLock sync.RWMutex
}

// New creates a backend verifying RS256 credentials signed by keys and issued by issuer.
func New(env string, keys *KeyPair, issuer string) *Server {
	s := &Server{
		env:     env,
		mux:     http.NewServeMux(),
		keys:    keys,
		issuer:  issuer,
		revoked: make(map[string]struct{}),
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

// Revoke makes the backend reject credentials carrying jti from now on.
func (s *Server) Revoke(jti string) {
	s.revokedLock.Lock()
	defer s.revokedLock.Unlock()
	s.revoked[jti] = struct{}{}
}

func (s *Server) isRevoked(jti string) bool {
	s.revokedLock.RLock()
	defer s.revokedLock.RUnlock()
	_, ok := s.revoked[jti]
	return ok
}

func (s *Server) initRoutes() {
	s.registerRouteFunc(RouteProtected, ChainMiddleware(s.protectedHandler, s.APIMiddleware(s.RequireAuth())...))
	s.registerRouteFunc(RouteJWKS, ChainMiddleware(s.jwksHandler, s.APIMiddleware()...))
}

func (s *Server) registerRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) protectedHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := r.Context().Value(ContextKeyClaims).(jwtlib.MapClaims)
	sub, _ := claims["sub"].(string)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sub": sub})
}

func (s *Server) jwksHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.keys.JWKS())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to write response")
	}
}
