package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/park285/cheese-duel/internal/pvp"
	"github.com/park285/cheese-duel/internal/rules"
	"github.com/park285/cheese-duel/pkg/chessdto"
)

const maxHistory = 50

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req chessdto.CreateSessionRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := s.manager.Create(r.Context(), req.OwnerID)
	if err != nil {
		respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusCreated, chessdto.FromSession(sess))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.manager.Session(id)
	if errors.Is(err, pvp.ErrSessionNotFound) {
		sess, err = s.manager.Attach(r.Context(), id)
	}
	if err != nil {
		respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, s.withVerdict(id, chessdto.FromSession(sess)))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req chessdto.JoinRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := s.manager.Join(r.Context(), chi.URLParam(r, "sessionID"), req.PlayerID)
	if err != nil {
		respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, chessdto.FromSession(sess))
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Leave(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req chessdto.MoveRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "sessionID")
	from, to := strings.ToLower(strings.TrimSpace(req.From)), strings.ToLower(strings.TrimSpace(req.To))
	mv, err := s.manager.AttemptMove(id, req.PlayerID, from, to)
	if err != nil {
		respondError(w, err, map[string]any{"From": from, "To": to})
		return
	}
	sess, err := s.manager.Session(id)
	if err != nil {
		respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, chessdto.MoveResponse{
		Move:    chessdto.FromMove(mv),
		Session: s.withVerdict(id, chessdto.FromSession(sess)),
	})
}

func (s *Server) handleAutomation(w http.ResponseWriter, r *http.Request) {
	var req chessdto.AutomationRequest
	if !decode(w, r, &req) {
		return
	}
	color, ok := rules.ParseColor(req.Color)
	if !ok {
		respondError(w, pvp.ErrInvalidArgs, nil)
		return
	}
	id := chi.URLParam(r, "sessionID")
	if err := s.manager.EnableAutomation(id, color, req.Enabled); err != nil {
		respondError(w, err, nil)
		return
	}
	s.respondAutomation(w, id, color)
}

func (s *Server) handleAutomationStatus(w http.ResponseWriter, r *http.Request) {
	color, ok := rules.ParseColor(r.URL.Query().Get("color"))
	if !ok {
		respondError(w, pvp.ErrInvalidArgs, nil)
		return
	}
	s.respondAutomation(w, chi.URLParam(r, "sessionID"), color)
}

func (s *Server) respondAutomation(w http.ResponseWriter, id string, color rules.Color) {
	a, err := s.manager.Automation(id, color)
	if err != nil {
		respondError(w, err, nil)
		return
	}
	out := chessdto.AutomationState{Color: string(color)}
	if a != nil {
		out.Enabled = a.Enabled()
		if lastErr := a.LastError(); lastErr != nil {
			de := chessdto.ErrorFor(lastErr, nil)
			out.LastError = &de
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		respondJSON(w, http.StatusOK, chessdto.HistoryResponse{Games: []chessdto.ArchivedGame{}})
		return
	}
	limit := 10
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, pvp.ErrInvalidArgs, nil)
			return
		}
		limit = min(n, maxHistory)
	}
	games, err := s.archive.RecentByPlayer(r.Context(), chi.URLParam(r, "playerID"), limit)
	if err != nil {
		respondError(w, err, nil)
		return
	}
	out := chessdto.HistoryResponse{Games: make([]chessdto.ArchivedGame, 0, len(games))}
	for _, g := range games {
		out.Games = append(out.Games, chessdto.FromArchive(g))
	}
	respondJSON(w, http.StatusOK, out)
}

// withVerdict attaches the verdict when the position is terminal.
func (s *Server) withVerdict(id string, st chessdto.SessionState) chessdto.SessionState {
	v, err := s.manager.Verdict(id)
	if err != nil {
		return st
	}
	return st.WithVerdict(v)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, chessdto.ErrorResponse{Error: chessdto.DomainError{
			Code:    chessdto.CodeInvalidArgs,
			Message: "invalid request body",
		}})
		return false
	}
	return true
}
