// Package ledger settles completed games into running balances between
// registered users.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/notify"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
)

var ErrNotSettleable = errors.New("only games completed with a winner can be settled")

// Transfer is what one loser owes the winner for one game.
type Transfer struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// Settle charges every registered loser their total times the room's point value.
// Guests and zero totals produce no transfer.
func Settle(r room.Room) ([]Transfer, error) {
	if !r.Completed || r.WinnerID == "" {
		return nil, ErrNotSettleable
	}
	winner, ok := room.FindPlayer(r, r.WinnerID)
	if !ok {
		return nil, fmt.Errorf("winner %s: %w", r.WinnerID, room.ErrPlayerNotFound)
	}
	if winner.IdentityRef == "" {
		return nil, nil
	}

	value := decimal.NewFromInt(int64(r.PointValue))
	var transfers []Transfer
	for _, p := range r.Players {
		if p.ID == winner.ID || p.IdentityRef == "" || p.IdentityRef == winner.IdentityRef {
			continue
		}
		amount := decimal.NewFromInt(int64(room.TotalScore(p))).Mul(value)
		if amount.IsZero() {
			continue
		}
		transfers = append(transfers, Transfer{From: p.IdentityRef, To: winner.IdentityRef, Amount: amount})
	}
	return transfers, nil
}

type pair struct{ lo, hi string }

func pairOf(a, b string) (pair, bool) {
	if a < b {
		return pair{a, b}, false
	}
	return pair{b, a}, true
}

// Balance is one counterpart's position. Positive means Other owes the holder.
type Balance struct {
	Other  string          `json:"other"`
	Amount decimal.Decimal `json:"amount"`
}

type Ledger struct {
	mu         sync.Mutex
	balances   map[pair]decimal.Decimal // positive: hi owes lo
	recorded   map[string]bool
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

func New(d notify.Dispatcher, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if d == nil {
		d = notify.Logger{Log: logger}
	}
	return &Ledger{
		balances:   make(map[pair]decimal.Decimal),
		recorded:   make(map[string]bool),
		dispatcher: d,
		logger:     logger,
	}
}

// RecordGame applies a completed game once. Replays of the same game are ignored.
func (l *Ledger) RecordGame(_ context.Context, r room.Room) error {
	transfers, err := Settle(r)
	if err != nil {
		return err
	}
	key := r.Code + "@" + r.CreatedAt.UTC().Format("20060102T150405.000000000")

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recorded[key] {
		return nil
	}
	l.recorded[key] = true
	for _, tr := range transfers {
		l.addLocked(tr.To, tr.From, tr.Amount)
	}
	l.logger.Info("game settled", zap.String("code", r.Code), zap.Int("transfers", len(transfers)))
	return nil
}

// addLocked records that debtor owes creditor amount more.
func (l *Ledger) addLocked(creditor, debtor string, amount decimal.Decimal) {
	k, swapped := pairOf(creditor, debtor)
	if swapped {
		amount = amount.Neg()
	}
	l.balances[k] = l.balances[k].Add(amount)
}

// Owed is how much other owes holder. Negative means holder owes other.
func (l *Ledger) Owed(holder, other string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owedLocked(holder, other)
}

func (l *Ledger) owedLocked(holder, other string) decimal.Decimal {
	k, swapped := pairOf(holder, other)
	amount := l.balances[k]
	if swapped {
		return amount.Neg()
	}
	return amount
}

// Balances lists every non-zero position for holder, ordered by counterpart.
func (l *Ledger) Balances(holder string) []Balance {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Balance
	for k := range l.balances {
		var other string
		switch holder {
		case k.lo:
			other = k.hi
		case k.hi:
			other = k.lo
		default:
			continue
		}
		if amount := l.owedLocked(holder, other); !amount.IsZero() {
			out = append(out, Balance{Other: other, Amount: amount})
		}
	}
	slices.SortFunc(out, func(a, b Balance) int { return strings.Compare(a.Other, b.Other) })
	return out
}

// Nudge reminds to that they owe from. Nothing is sent when no debt exists.
func (l *Ledger) Nudge(ctx context.Context, from, fromName, to string) notify.Result {
	if from == "" || to == "" || from == to {
		return notify.Result{Reason: "invalid recipient"}
	}
	if !l.Owed(from, to).IsPositive() {
		return notify.Result{Reason: "nothing owed"}
	}
	res := l.dispatcher.SendNudge(ctx, to, fromName)
	l.logger.Debug("nudge dispatched", zap.String("from", from), zap.String("to", to), zap.Bool("sent", res.Sent))
	return res
}
