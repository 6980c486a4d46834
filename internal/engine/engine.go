// Package engine runs the score protocol on top of a store.Gateway: record a
// score, detect eliminations, declare a winner and close finished rounds.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/config"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

// Recorder is told about every game that completes with a winner.
type Recorder interface {
	RecordGame(ctx context.Context, r room.Room) error
}

type Engine struct {
	gateway     store.Gateway
	logger      *zap.Logger
	settleDelay time.Duration
	recorder    Recorder
}

type Option func(*Engine)

// WithSettleDelay sets how long a closable round waits for late edits before advancing.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) { e.settleDelay = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func New(g store.Gateway, opts ...Option) *Engine {
	e := &Engine{
		gateway:     g,
		logger:      zap.NewNop(),
		settleDelay: config.DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type ScoreInput struct {
	Code     string
	ActorID  string // player id of the user submitting, for elimination notices
	PlayerID string
	Round    int
	Score    int
}

type Outcome struct {
	Room       room.Room `json:"room"`
	Eliminated bool      `json:"eliminated"`
	GameEnded  bool      `json:"gameEnded"`
	Advanced   bool      `json:"advanced"`
	WinnerID   string    `json:"winnerId,omitempty"`
}

func (e *Engine) StartGame(ctx context.Context, code string) (room.Room, error) {
	r, err := e.gateway.StartGame(ctx, code)
	if err != nil {
		return room.Room{}, err
	}
	e.logger.Info("game started", zap.String("code", r.Code), zap.Int("players", len(r.Players)))
	return r, nil
}

func (e *Engine) SubmitScore(ctx context.Context, in ScoreInput) (Outcome, error) {
	after, events, err := e.gateway.UpdateScore(ctx, in.Code, in.PlayerID, in.Score, in.Round)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Room: after, Eliminated: eliminated(events, in.ActorID)}
	if out.Eliminated {
		e.logger.Info("player eliminated", zap.String("code", after.Code), zap.String("player", in.ActorID))
	}
	if done, err := e.settle(ctx, &out); done || err != nil {
		return out, err
	}
	if !room.CanAdvanceRound(after, in.Round) {
		return out, nil
	}

	// Give concurrent edits to the same round a moment to land.
	if err := sleepCtx(ctx, e.settleDelay); err != nil {
		return out, err
	}
	latest, err := e.gateway.GetRoom(ctx, in.Code)
	if err != nil {
		return out, err
	}
	out.Room = latest
	if !room.CanAdvanceRound(latest, in.Round) {
		return out, nil
	}

	advanced, err := e.gateway.NextRound(ctx, in.Code, in.Round)
	if err != nil {
		return out, err
	}
	out.Room = advanced
	out.Advanced = advanced.CurrentRound > in.Round
	_, err = e.settle(ctx, &out)
	return out, err
}

// AdvanceRound closes selectedRound by hand. It fails with store.ErrRoundNotReady
// while an active player still has no entry for it.
func (e *Engine) AdvanceRound(ctx context.Context, code string, selectedRound int) (Outcome, error) {
	r, err := e.gateway.GetRoom(ctx, code)
	if err != nil {
		return Outcome{}, err
	}
	if r.Completed {
		return Outcome{}, room.ErrGameCompleted
	}
	if !room.CanAdvanceRound(r, selectedRound) {
		return Outcome{}, store.ErrRoundNotReady
	}

	next, err := e.gateway.NextRound(ctx, code, selectedRound)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Room: next, Advanced: next.CurrentRound > selectedRound}
	_, err = e.settle(ctx, &out)
	return out, err
}

// EndGame completes the room. Without an explicit winner it picks the sole
// survivor, or failing that the lowest total.
func (e *Engine) EndGame(ctx context.Context, code, winnerID string) (Outcome, error) {
	if winnerID == "" {
		r, err := e.gateway.GetRoom(ctx, code)
		if err != nil {
			return Outcome{}, err
		}
		winnerID = pickWinner(r)
		if winnerID == "" {
			return Outcome{}, room.ErrRoomNotFound
		}
	}
	return e.end(ctx, code, winnerID)
}

// VoidGame completes the room with no winner and clears every score.
func (e *Engine) VoidGame(ctx context.Context, code string) (Outcome, error) {
	r, err := e.gateway.EndGame(ctx, code, "")
	if err != nil {
		return Outcome{}, err
	}
	e.logger.Info("game voided", zap.String("code", r.Code))
	return Outcome{Room: r, GameEnded: true, WinnerID: r.WinnerID}, nil
}

// settle ends the game when it is decided. It reports whether the game is over.
func (e *Engine) settle(ctx context.Context, out *Outcome) (bool, error) {
	r := out.Room
	if r.Completed {
		out.GameEnded = true
		out.WinnerID = r.WinnerID
		return true, nil
	}

	var winnerID string
	if w, ok := room.Winner(r); ok {
		winnerID = w.ID
	} else if len(r.Players) > 0 && len(room.ActivePlayers(r)) == 0 {
		// Everyone crossed the limit at once; lowest total takes it.
		low, _ := room.LowestTotal(r)
		winnerID = low.ID
	} else {
		return false, nil
	}

	ended, err := e.end(ctx, r.Code, winnerID)
	if err != nil {
		return false, err
	}
	ended.Eliminated = out.Eliminated
	ended.Advanced = out.Advanced
	*out = ended
	return true, nil
}

func (e *Engine) end(ctx context.Context, code, winnerID string) (Outcome, error) {
	r, err := e.gateway.EndGame(ctx, code, winnerID)
	if err != nil {
		return Outcome{}, err
	}
	e.logger.Info("game completed", zap.String("code", r.Code), zap.String("winner", r.WinnerID))
	e.record(ctx, r)
	return Outcome{Room: r, GameEnded: true, WinnerID: r.WinnerID}, nil
}

func (e *Engine) record(ctx context.Context, r room.Room) {
	if e.recorder == nil || r.WinnerID == "" {
		return
	}
	if err := e.recorder.RecordGame(ctx, r); err != nil {
		e.logger.Warn("recording completed game failed", zap.String("code", r.Code), zap.Error(err))
	}
}

func pickWinner(r room.Room) string {
	if w, ok := room.Winner(r); ok {
		return w.ID
	}
	if low, ok := room.LowestTotal(r); ok {
		return low.ID
	}
	return ""
}

// eliminated reports whether this write took actorID from active to out.
func eliminated(events []room.Event, actorID string) bool {
	if actorID == "" {
		return false
	}
	for _, ev := range events {
		if ev.Type == room.EvtPlayerEliminated && ev.PlayerID == actorID {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
