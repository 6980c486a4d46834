package room

func TotalScore(p Player) int {
	total := 0
	for _, s := range p.Scores {
		total += s
	}
	return total
}

// IsEliminated uses a closed threshold: reaching the limit eliminates.
func IsEliminated(p Player, r Room) bool {
	return TotalScore(p) >= r.PointLimit
}

func ActivePlayers(r Room) []Player {
	active := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		if !IsEliminated(p, r) {
			active = append(active, p)
		}
	}
	return active
}

// IsLeader is true for every active player sharing the lowest total.
func IsLeader(p Player, r Room) bool {
	if IsEliminated(p, r) {
		return false
	}
	low, ok := LowestTotal(r)
	if !ok {
		return false
	}
	return TotalScore(p) == TotalScore(low)
}

// Winner is the single remaining active player, if exactly one remains.
func Winner(r Room) (Player, bool) {
	active := ActivePlayers(r)
	if len(active) != 1 {
		return Player{}, false
	}
	return active[0], true
}

// LowestTotal returns the first player, in list order, at the minimum total.
func LowestTotal(r Room) (Player, bool) {
	if len(r.Players) == 0 {
		return Player{}, false
	}
	best := r.Players[0]
	for _, p := range r.Players[1:] {
		if TotalScore(p) < TotalScore(best) {
			best = p
		}
	}
	return best, true
}

// CanAdvanceRound: only the open round can be closed, and only once every
// active player has an entry for it. Eliminated players never block.
func CanAdvanceRound(r Room, selectedRound int) bool {
	if selectedRound != r.CurrentRound || r.CurrentRound < 1 {
		return false
	}
	for _, p := range ActivePlayers(r) {
		if len(p.Scores) < r.CurrentRound {
			return false
		}
	}
	return true
}
