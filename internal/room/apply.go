package room

import (
	"errors"
	"slices"
	"time"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrPlayerNotFound = errors.New("player not found")
var ErrPlayerExists = errors.New("player already in room")
var ErrRoomFull = errors.New("room is full")
var ErrNotEnoughPlayers = errors.New("at least two players are required to start")
var ErrPlayersNotReady = errors.New("all players must be ready to start")
var ErrGameStarted = errors.New("game already started")
var ErrGameNotStarted = errors.New("game has not started")
var ErrGameCompleted = errors.New("game already completed")
var ErrInvalidRound = errors.New("invalid round")
var ErrInvalidScore = errors.New("invalid score")
var ErrInvalidConfig = errors.New("point limit must be at least 1 and point value at least 0")
var ErrUnsupportedCommand = errors.New("unsupported command")

type CommandType string

const (
	CmdJoin      CommandType = "Join"
	CmdLeave     CommandType = "Leave"
	CmdSetReady  CommandType = "SetReady"
	CmdStart     CommandType = "Start"
	CmdScore     CommandType = "Score"
	CmdNextRound CommandType = "NextRound"
	CmdEnd       CommandType = "End"
)

/*
	CmdJoin      -> EvtPlayerJoined
	CmdLeave     -> EvtPlayerLeft -> EvtModeratorChanged (moderator left) or EvtRoomEmptied (last one out)
	CmdSetReady  -> EvtReadyChanged
	CmdStart     -> EvtGameStarted
	CmdScore     -> EvtScoreRecorded -> EvtPlayerEliminated (the write took the player to the limit)
	CmdNextRound -> EvtRoundAdvanced, nothing when Round no longer matches
	CmdEnd       -> EvtGameCompleted or EvtGameVoided, nothing when already completed
*/

type Command struct {
	Type        CommandType
	PlayerID    string
	Name        string
	IdentityRef string
	Ready       bool
	Round       int
	Score       int
	WinnerID    string
}

type EventType string

const (
	EvtPlayerJoined     EventType = "PlayerJoined"
	EvtPlayerLeft       EventType = "PlayerLeft"
	EvtModeratorChanged EventType = "ModeratorChanged"
	EvtRoomEmptied      EventType = "RoomEmptied"
	EvtReadyChanged     EventType = "ReadyChanged"
	EvtGameStarted      EventType = "GameStarted"
	EvtScoreRecorded    EventType = "ScoreRecorded"
	EvtPlayerEliminated EventType = "PlayerEliminated"
	EvtRoundAdvanced    EventType = "RoundAdvanced"
	EvtGameCompleted    EventType = "GameCompleted"
	EvtGameVoided       EventType = "GameVoided"
)

type Event struct {
	Type     EventType
	PlayerID string
	Round    int
	Score    int
}

// Apply computes the next document from r. r itself is never modified; on
// error the original room is returned.
func Apply(r Room, cmd Command, now time.Time) (Room, []Event, error) {
	next := r.Clone()

	switch cmd.Type {
	case CmdJoin:
		if next.Completed {
			return r, nil, ErrGameCompleted
		}
		if next.Started {
			return r, nil, ErrGameStarted
		}
		if len(next.Players) >= MaxPlayers {
			return r, nil, ErrRoomFull
		}
		if indexOf(next, cmd.PlayerID) >= 0 {
			return r, nil, ErrPlayerExists
		}
		name, err := ValidateName(cmd.Name)
		if err != nil {
			return r, nil, err
		}

		next.Players = append(next.Players, Player{
			ID:          cmd.PlayerID,
			Name:        name,
			IsModerator: len(next.Players) == 0,
			Scores:      []int{},
			IdentityRef: cmd.IdentityRef,
		})
		if cmd.IdentityRef != "" && !slices.Contains(next.ParticipantIDs, cmd.IdentityRef) {
			next.ParticipantIDs = append(next.ParticipantIDs, cmd.IdentityRef)
		}
		return next, []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID}}, nil

	case CmdLeave:
		i := indexOf(next, cmd.PlayerID)
		if i < 0 {
			return r, nil, ErrPlayerNotFound
		}
		wasModerator := next.Players[i].IsModerator
		next.Players = slices.Delete(next.Players, i, i+1)

		events := []Event{{Type: EvtPlayerLeft, PlayerID: cmd.PlayerID}}
		if len(next.Players) == 0 {
			return next, append(events, Event{Type: EvtRoomEmptied}), nil
		}
		if wasModerator {
			next.Players[0].IsModerator = true
			events = append(events, Event{Type: EvtModeratorChanged, PlayerID: next.Players[0].ID})
		}
		return next, events, nil

	case CmdSetReady:
		i := indexOf(next, cmd.PlayerID)
		if i < 0 {
			return r, nil, ErrPlayerNotFound
		}
		next.Players[i].IsReady = cmd.Ready
		return next, []Event{{Type: EvtReadyChanged, PlayerID: cmd.PlayerID}}, nil

	case CmdStart:
		if next.Completed {
			return r, nil, ErrGameCompleted
		}
		if next.Started {
			return r, nil, ErrGameStarted
		}
		if len(next.Players) < MinPlayers {
			return r, nil, ErrNotEnoughPlayers
		}
		for _, p := range next.Players {
			if !p.IsReady {
				return r, nil, ErrPlayersNotReady
			}
		}

		next.Started = true
		next.CurrentRound = 1
		for i := range next.Players {
			next.Players[i].Scores = []int{}
		}
		return next, []Event{{Type: EvtGameStarted}}, nil

	case CmdScore:
		if next.Completed {
			return r, nil, ErrGameCompleted
		}
		if !next.Started {
			return r, nil, ErrGameNotStarted
		}
		if cmd.Round < 1 || cmd.Round > next.CurrentRound {
			return r, nil, ErrInvalidRound
		}
		if cmd.Score < 0 {
			return r, nil, ErrInvalidScore
		}
		i := indexOf(next, cmd.PlayerID)
		if i < 0 {
			return r, nil, ErrPlayerNotFound
		}

		wasOut := IsEliminated(next.Players[i], next)
		next.Players[i].Scores = setScore(next.Players[i].Scores, cmd.Round, cmd.Score)
		events := []Event{{Type: EvtScoreRecorded, PlayerID: cmd.PlayerID, Round: cmd.Round, Score: cmd.Score}}
		if !wasOut && IsEliminated(next.Players[i], next) {
			events = append(events, Event{Type: EvtPlayerEliminated, PlayerID: cmd.PlayerID})
		}
		return next, events, nil

	case CmdNextRound:
		if next.Completed {
			return r, nil, nil
		}
		if !next.Started {
			return r, nil, ErrGameNotStarted
		}
		// Round pins the advance to the round the caller saw as open; a second
		// advancer racing on the same round becomes a no-op.
		if cmd.Round != 0 && cmd.Round != next.CurrentRound {
			return r, nil, nil
		}
		next.CurrentRound++
		return next, []Event{{Type: EvtRoundAdvanced, Round: next.CurrentRound}}, nil

	case CmdEnd:
		if next.Completed {
			return r, nil, nil
		}
		ended := now
		next.Completed = true
		next.EndedAt = &ended

		if cmd.WinnerID == "" {
			next.WinnerID = ""
			for i := range next.Players {
				next.Players[i].Scores = []int{}
			}
			return next, []Event{{Type: EvtGameVoided}}, nil
		}
		if indexOf(next, cmd.WinnerID) < 0 {
			return r, nil, ErrPlayerNotFound
		}
		next.WinnerID = cmd.WinnerID
		return next, []Event{{Type: EvtGameCompleted, PlayerID: cmd.WinnerID}}, nil

	default:
		return r, nil, ErrUnsupportedCommand
	}
}

// setScore pads skipped rounds with zeros so the slice never has gaps.
func setScore(scores []int, round, score int) []int {
	for len(scores) < round {
		scores = append(scores, 0)
	}
	scores[round-1] = score
	return scores
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
