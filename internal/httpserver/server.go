// internal/httpserver/server.go
//
// Operator HTTP surface for the floor game.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/status", "/scores".
//   - Operator login (bcrypt password → JWT cookie or bearer token).
//   - Game control (require auth): POST /game/start, POST /game/abort.
//
// Notes:
//   - Start and abort go through the same session entry points as the
//     message bus, so a game started here behaves exactly like one started
//     from the web page.
//   - CORS is origin-aware and credentials-enabled (so cookies work).

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/simon-floor/internal/game"
	"github.com/robalobadob/simon-floor/internal/scores"
	"github.com/robalobadob/simon-floor/internal/session"
)

// Controller is the part of the game session the HTTP surface drives.
type Controller interface {
	Status() session.Status
	Start() error
	SelectDifficulty(code int) (game.Difficulty, error)
	Abort() error
}

type Options struct {
	ClientOrigin string
	CookieName   string
	CookieSecure bool
	JWTSecret    string
	JWTTTL       time.Duration
	PasswordHash string        // bcrypt; empty disables login
	InputMode    func() string // reported by /status
}

func (o *Options) defaults() {
	if o.ClientOrigin == "" {
		o.ClientOrigin = "http://localhost:5173"
	}
	if o.CookieName == "" {
		o.CookieName = "simon_token"
	}
	if o.JWTSecret == "" {
		o.JWTSecret = "dev_secret_change_me"
	}
	if o.JWTTTL <= 0 {
		o.JWTTTL = 12 * time.Hour
	}
}

// Server bundles router, game controller and score store.
type Server struct {
	r      *chi.Mux
	game   Controller
	scores scores.Store
	opts   Options
}

// New constructs a Server, installs middleware, and registers routes.
func New(c Controller, st scores.Store, o Options) *Server {
	o.defaults()
	s := &Server{r: chi.NewRouter(), game: c, scores: st, opts: o}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(10 * time.Second))
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)

	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"simon-floor","endpoints":["/health","/status","/scores","POST /auth/login","POST /game/start","POST /game/abort"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	s.mountGame(s.r)
	s.mountAuthRoutes()

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})
	return s
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	log.Info().Str("addr", addr).Msg("http listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", s.opts.ClientOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
