// Package transport exposes the relay over websocket and HTTP.
// It owns the wire contract and nothing else: every decision about a
// message's fate belongs to the runtime.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quantum-relay/auth"
	"quantum-relay/domain"
	qerrors "quantum-relay/errors"
	"quantum-relay/observability"
	"quantum-relay/repositories"
	"quantum-relay/runtime"
	"quantum-relay/runtime/workers"
	"quantum-relay/services"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const defaultSearchLimit = 20

type Server struct {
	log         *slog.Logger
	relay       *runtime.Relay
	presence    *workers.PresenceWorker
	search      repositories.ISearchRepository
	authService services.IAuthService
	health      *observability.HealthManager
	secret      []byte
	buffer      int
	lifecycle   context.Context
	upgrader    websocket.Upgrader
}

func NewServer(
	lifecycle context.Context,
	log *slog.Logger,
	relay *runtime.Relay,
	presence *workers.PresenceWorker,
	search repositories.ISearchRepository,
	authService services.IAuthService,
	health *observability.HealthManager,
	secret []byte,
	buffer int,
) *Server {
	return &Server{
		log:         log,
		relay:       relay,
		presence:    presence,
		search:      search,
		authService: authService,
		health:      health,
		secret:      secret,
		buffer:      buffer,
		lifecycle:   lifecycle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The relay authenticates with tokens, not origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.observe)

	router.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	authenticated := router.NewRoute().Subrouter()
	authenticated.Use(s.requireToken)
	authenticated.HandleFunc("/rooms/{id}/history", s.handleHistory).Methods(http.MethodGet)
	authenticated.HandleFunc("/rooms/{id}/search", s.handleSearch).Methods(http.MethodGet)
	authenticated.HandleFunc("/presence/{identity}", s.handlePresence).Methods(http.MethodGet)

	return router
}

// observe feeds the request counters behind GET /health.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.health.IncrRequest()
		next.ServeHTTP(w, r)
		s.health.ObserveLatency(time.Since(start))
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.identify(r); err != nil {
			s.health.IncrError()
			writeError(w, qerrors.ErrAuthenticationFailure)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identify resolves the caller's identity from a bearer header or, for
// websocket handshakes where browsers cannot set headers, a token query
// parameter.
func (s *Server) identify(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		return "", qerrors.ErrAuthenticationFailure
	}
	claims, err := auth.ValidateToken(s.secret, token)
	if err != nil {
		return "", qerrors.ErrAuthenticationFailure
	}
	return claims.UserID, nil
}

// handleWebsocket authenticates before upgrading: a bad token costs one
// HTTP round trip, never a socket.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identify(r)
	if err != nil {
		s.health.IncrError()
		writeError(w, err)
		return
	}

	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "identity", identity, "error", err)
		return
	}

	client := NewClient(socket, s.relay, identity, s.buffer, s.log)
	// The session outlives this handler, it is tied to the server lifecycle.
	go client.Run(s.lifecycle)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Snapshot())
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	token, err := s.authService.Register(payload.Email, payload.Password)
	if err != nil {
		s.health.IncrError()
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: string(token)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	token, err := s.authService.Login(payload.Email, payload.Password)
	if err != nil {
		s.health.IncrError()
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: string(token)})
}

type historyResponse struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor *string          `json:"next_cursor,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	room := domain.RoomID(mux.Vars(r)["id"])
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	messages, next, err := s.relay.GetMessages(room, cursor)
	if err != nil {
		s.health.IncrError()
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: messages, NextCursor: next})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	room := domain.RoomID(mux.Vars(r)["id"])
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing query", http.StatusBadRequest)
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	hits, err := s.search.Search(r.Context(), room, query, limit)
	if err != nil {
		s.health.IncrError()
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	writeJSON(w, http.StatusOK, s.presence.Snapshot(identity))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, qerrors.MapToHTTPStatus(err), map[string]string{"error": err.Error()})
}
