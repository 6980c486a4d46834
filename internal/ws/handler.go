package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/config"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/engine"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/pkg/types"
)

var errUnknownType = errors.New("unknown type")

// Handler streams room snapshots to the client and applies the commands it sends.
// The optional ?player= query names the client's own player id.
func Handler(g store.Gateway, e *engine.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if _, err := g.GetRoom(r.Context(), code); err != nil {
			http.Error(w, store.UserMessage(err), statusFor(err))
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sub, err := g.Observe(ctx, code)
		if err != nil {
			conn.Close(websocket.StatusTryAgainLater, store.UserMessage(err))
			return
		}
		defer sub.Cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			for snap := range sub.C() {
				if err := write(ctx, conn, toMessage(snap)); err != nil {
					return
				}
			}
			if ctx.Err() != nil {
				// Closed from this side; the deferred close says goodbye.
				return
			}
			// The store stopped the stream; the client reconnects for a fresh snapshot.
			conn.Close(websocket.StatusTryAgainLater, "stream ended")
		}()

		actor := r.URL.Query().Get("player")
		log := logger.With(zap.String("code", sub.Code()), zap.String("player", actor))

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: "bad json"})
				continue
			}
			if err := dispatch(ctx, g, e, sub.Code(), actor, cm); err != nil {
				msg := store.UserMessage(err)
				if errors.Is(err, errUnknownType) {
					msg = err.Error()
				}
				_ = write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: msg})
			}
		}
	}
}

// dispatch applies one client command. Results reach the client through the
// snapshot stream, so only errors are returned.
func dispatch(ctx context.Context, g store.Gateway, e *engine.Engine, code, actor string, m types.ClientMessage) error {
	var err error
	switch m.Type {
	case types.MsgSetReady:
		_, err = g.SetReady(ctx, code, m.PlayerID, m.Ready)
	case types.MsgSubmitScore:
		_, err = e.SubmitScore(ctx, engine.ScoreInput{Code: code, ActorID: actor, PlayerID: m.PlayerID, Round: m.Round, Score: m.Score})
	case types.MsgNextRound:
		_, err = e.AdvanceRound(ctx, code, m.Round)
	default:
		err = errUnknownType
	}
	return err
}

func toMessage(snap store.Snapshot) types.ServerMessage {
	if snap.Err != nil {
		return types.ServerMessage{Type: types.MsgUnavailable}
	}
	msg := types.ServerMessage{Type: types.MsgStateSnapshot, Version: snap.Version, Room: snap.Room}
	if snap.Room != nil {
		msg.Phase = room.DerivePhase(*snap.Room)
	}
	return msg
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, config.WriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

func statusFor(err error) int {
	switch store.KindOf(err) {
	case store.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}
