package room

import (
	"errors"
	"fmt"
	"time"
)

const (
	MaxPlayers = 10
	MinPlayers = 2
)

type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhasePlaying   Phase = "playing"
	PhaseCompleted Phase = "completed"
)

// Player is copied by value into the room document. Scores[i] holds round i+1.
type Player struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsReady     bool   `json:"isReady"`
	IsModerator bool   `json:"isModerator"`
	Scores      []int  `json:"scores"`
	IdentityRef string `json:"identityRef,omitempty"`
}

// Room is the shared document every client reads and writes. Version is the
// store's commit counter for this document; Apply leaves it unchanged.
type Room struct {
	Code           string     `json:"code"`
	PointLimit     int        `json:"pointLimit"`
	PointValue     int        `json:"pointValue"`
	Players        []Player   `json:"players"`
	CurrentRound   int        `json:"currentRound"`
	Started        bool       `json:"started"`
	Completed      bool       `json:"completed"`
	WinnerID       string     `json:"winnerId,omitempty"`
	ParticipantIDs []string   `json:"participantIds"`
	CreatedAt      time.Time  `json:"createdAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	Version        int64      `json:"version"`
}

// New builds a lobby with the creator as its only player and moderator.
func New(code string, pointLimit, pointValue int, creator Player, now time.Time) (Room, error) {
	if pointLimit < 1 || pointValue < 0 {
		return Room{}, ErrInvalidConfig
	}
	name, err := ValidateName(creator.Name)
	if err != nil {
		return Room{}, err
	}

	creator.Name = name
	creator.IsModerator = true
	creator.IsReady = false
	creator.Scores = []int{}

	r := Room{
		Code:           code,
		PointLimit:     pointLimit,
		PointValue:     pointValue,
		Players:        []Player{creator},
		CurrentRound:   1,
		ParticipantIDs: []string{},
		CreatedAt:      now,
	}
	if creator.IdentityRef != "" {
		r.ParticipantIDs = append(r.ParticipantIDs, creator.IdentityRef)
	}
	return r, nil
}

func DerivePhase(r Room) Phase {
	switch {
	case r.Completed:
		return PhaseCompleted
	case r.Started:
		return PhasePlaying
	default:
		return PhaseLobby
	}
}

// Clone returns a deep copy so snapshots handed to callers never alias store state.
func (r Room) Clone() Room {
	c := r
	if r.Players != nil {
		c.Players = make([]Player, len(r.Players))
		for i, p := range r.Players {
			c.Players[i] = p.clone()
		}
	}
	if r.ParticipantIDs != nil {
		c.ParticipantIDs = append([]string(nil), r.ParticipantIDs...)
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	return c
}

func (p Player) clone() Player {
	if p.Scores != nil {
		p.Scores = append(make([]int, 0, len(p.Scores)), p.Scores...)
	}
	return p
}

func FindPlayer(r Room, id string) (Player, bool) {
	i := indexOf(r, id)
	if i < 0 {
		return Player{}, false
	}
	return r.Players[i], true
}

func Moderator(r Room) (Player, bool) {
	for _, p := range r.Players {
		if p.IsModerator {
			return p, true
		}
	}
	return Player{}, false
}

func indexOf(r Room, id string) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Validate reports the first broken document invariant, if any.
func (r Room) Validate() error {
	if r.PointLimit < 1 || r.PointValue < 0 {
		return ErrInvalidConfig
	}
	if r.CurrentRound < 1 {
		return fmt.Errorf("current round %d: %w", r.CurrentRound, ErrInvalidRound)
	}
	if len(r.Players) > MaxPlayers {
		return ErrRoomFull
	}

	seen := make(map[string]bool, len(r.Players))
	moderators := 0
	for _, p := range r.Players {
		if seen[p.ID] {
			return fmt.Errorf("duplicate player %s", p.ID)
		}
		seen[p.ID] = true
		if p.IsModerator {
			moderators++
		}
		if len(p.Scores) > r.CurrentRound {
			return fmt.Errorf("player %s has %d scores in round %d: %w", p.ID, len(p.Scores), r.CurrentRound, ErrInvalidRound)
		}
	}
	if len(r.Players) > 0 && moderators != 1 {
		return errors.New("room must have exactly one moderator")
	}
	if r.WinnerID != "" && !r.Completed {
		return errors.New("winner set on a room that is not completed")
	}
	return nil
}
