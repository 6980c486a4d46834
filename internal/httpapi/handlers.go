package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/engine"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/identity"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/ledger"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/pkg/types"
)

var errForbidden = errors.New("forbidden")

type Server struct {
	gateway   store.Gateway
	engine    *engine.Engine
	ledger    *ledger.Ledger
	metrics   *store.Metrics
	logger    *zap.Logger
	jwtSecret string
}

type Deps struct {
	Gateway   store.Gateway
	Engine    *engine.Engine
	Ledger    *ledger.Ledger
	Metrics   *store.Metrics
	Logger    *zap.Logger
	JWTSecret string
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = store.NewMetrics()
	}
	if d.Ledger == nil {
		d.Ledger = ledger.New(nil, d.Logger)
	}
	return &Server{
		gateway:   d.Gateway,
		engine:    d.Engine,
		ledger:    d.Ledger,
		metrics:   d.Metrics,
		logger:    d.Logger,
		jwtSecret: d.JWTSecret,
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot(), "")
}

// displayName prefers the name in the request body, then the token's name claim.
func displayName(r *http.Request, fromBody string) string {
	if strings.TrimSpace(fromBody) != "" {
		return fromBody
	}
	return identity.FromContext(r.Context()).DisplayName()
}

func (s *Server) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ref, _ := identity.FromContext(r.Context()).CurrentUserID()
	created, playerID, err := s.gateway.CreateRoom(r.Context(), store.CreateParams{
		PointLimit:  req.PointLimit,
		PointValue:  req.PointValue,
		CreatorName: displayName(r, req.Name),
		IdentityRef: ref,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.JoinResponse{Room: created, PlayerID: playerID}, "room created")
}

func (s *Server) GetRoom(w http.ResponseWriter, r *http.Request) {
	got, err := s.gateway.GetRoom(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got, "")
}

func (s *Server) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req types.JoinRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ref, _ := identity.FromContext(r.Context()).CurrentUserID()
	joined, playerID, err := s.gateway.JoinRoom(r.Context(), chi.URLParam(r, "code"), displayName(r, req.Name), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.JoinResponse{Room: joined, PlayerID: playerID}, "joined room")
}

func (s *Server) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.LeaveRoom(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) SetReady(w http.ResponseWriter, r *http.Request) {
	var req types.ReadyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.gateway.SetReady(r.Context(), chi.URLParam(r, "code"), chi.URLParam(r, "id"), req.Ready)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated, "")
}

func (s *Server) StartGame(w http.ResponseWriter, r *http.Request) {
	started, err := s.engine.StartGame(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, started, "game started")
}

func (s *Server) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var req types.ScoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.engine.SubmitScore(r.Context(), engine.ScoreInput{
		Code:     chi.URLParam(r, "code"),
		ActorID:  r.URL.Query().Get("player"),
		PlayerID: req.PlayerID,
		Round:    req.Round,
		Score:    req.Score,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out, "")
}

func (s *Server) AdvanceRound(w http.ResponseWriter, r *http.Request) {
	var req types.AdvanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.engine.AdvanceRound(r.Context(), chi.URLParam(r, "code"), req.SelectedRound)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out, "")
}

func (s *Server) EndGame(w http.ResponseWriter, r *http.Request) {
	var req types.EndRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	code := chi.URLParam(r, "code")
	var (
		out engine.Outcome
		err error
	)
	if req.Void {
		out, err = s.engine.VoidGame(r.Context(), code)
	} else {
		out, err = s.engine.EndGame(r.Context(), code, req.WinnerID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out, "game ended")
}

func (s *Server) GamesForUser(w http.ResponseWriter, r *http.Request) {
	games, err := s.gateway.GamesForUser(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games, "")
}

func (s *Server) GamesBetweenUsers(w http.ResponseWriter, r *http.Request) {
	games, err := s.gateway.GamesBetweenUsers(r.Context(), chi.URLParam(r, "ref"), chi.URLParam(r, "other"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, games, "")
}

// requireSelf only lets a signed-in user act on their own ledger.
func requireSelf(r *http.Request, ref string) error {
	id, ok := identity.FromContext(r.Context()).CurrentUserID()
	if !ok || id != ref {
		return fmt.Errorf("%w: ledger %s", errForbidden, ref)
	}
	return nil
}

func (s *Server) Balances(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if err := requireSelf(r, ref); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Balances(ref), "")
}

func (s *Server) Nudge(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if err := requireSelf(r, ref); err != nil {
		writeError(w, err)
		return
	}
	name := identity.FromContext(r.Context()).DisplayName()
	res := s.ledger.Nudge(r.Context(), ref, name, chi.URLParam(r, "other"))
	writeJSON(w, http.StatusOK, res, res.Reason)
}
