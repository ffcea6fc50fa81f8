// internal/httpserver/routes_game.go
//
// Game routes:
//   - GET  /status      → phase, difficulty, round, score, remaining budget, input mode
//   - GET  /scores      → ?limit=N (default 10) &order=top|recent
//   - POST /game/start  → {"dif":0-2} optional; 202 when accepted (also when the
//                         difficulty lands on a game still waiting), 409 while running
//   - POST /game/abort  → 202 when a game was running, 409 otherwise
//
// Start and abort require an operator token.

package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/simon-floor/internal/scores"
	"github.com/robalobadob/simon-floor/internal/session"
)

type statusRes struct {
	session.Status
	InputMode string `json:"inputMode,omitempty"`
}

type startReq struct {
	Dif *int `json:"dif"`
}

type startRes struct {
	Status     string `json:"status"`
	Difficulty string `json:"difficulty,omitempty"`
}

func (s *Server) mountGame(r chi.Router) {
	r.Get("/status", s.handleStatus)
	r.Get("/scores", s.handleScores)
	r.Route("/game", func(r chi.Router) {
		r.Use(s.requireAuth())
		r.Post("/start", s.handleStart)
		r.Post("/abort", s.handleAbort)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res := statusRes{Status: s.game.Status()}
	if s.opts.InputMode != nil {
		res.InputMode = s.opts.InputMode()
	}
	_ = json.NewEncoder(w).Encode(res)
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid_limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	var (
		out []scores.Entry
		err error
	)
	switch r.URL.Query().Get("order") {
	case "", "top":
		out, err = s.scores.Top(r.Context(), limit)
	case "recent":
		out, err = s.scores.Recent(r.Context(), limit)
	default:
		http.Error(w, `{"error":"invalid_order"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("list scores")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}

	var res startRes
	if req.Dif != nil {
		d, err := s.game.SelectDifficulty(*req.Dif)
		var mm *session.MalformedMessageError
		switch {
		case errors.As(err, &mm):
			http.Error(w, `{"error":"invalid_difficulty","expected_format":{"dif":"0-2"}}`, http.StatusBadRequest)
			return
		case errors.Is(err, session.ErrGameInProgress):
			http.Error(w, `{"error":"game_in_progress"}`, http.StatusConflict)
			return
		case err != nil:
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		res.Difficulty = d.String()
	}

	switch err := s.game.Start(); {
	case errors.Is(err, session.ErrAlreadyRunning) && res.Difficulty != "":
		// The selection was accepted, so the game was still waiting for it.
		log.Info().Str("difficulty", res.Difficulty).Msg("difficulty applied to waiting game")
		res.Status = "difficulty_applied"
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(res)
		return
	case errors.Is(err, session.ErrAlreadyRunning):
		http.Error(w, `{"error":"game_in_progress"}`, http.StatusConflict)
		return
	case errors.Is(err, session.ErrStopped):
		http.Error(w, `{"error":"shutting_down"}`, http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	log.Info().Str("difficulty", res.Difficulty).Msg("game started by operator")
	res.Status = "started"
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(res)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if err := s.game.Abort(); err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			http.Error(w, `{"error":"not_running"}`, http.StatusConflict)
			return
		}
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	log.Info().Msg("game aborted by operator")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "aborting"})
}
