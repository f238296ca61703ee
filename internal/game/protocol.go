package game

import (
	"errors"
	"sort"
	"time"
)

var (
	ErrPlayerExists  = errors.New("player name already taken")
	ErrUnknownPlayer = errors.New("player not found")
	ErrTooFewPlayers = errors.New("at least two players required")
	ErrNoTarget      = errors.New("player has no assigned target")
	ErrUnknownMurder = errors.New("elimination not found")
	ErrNotVictim     = errors.New("only the victim may confirm an elimination")
	ErrBadPIN        = errors.New("incorrect pin")
)

// AddPlayer registers a new player with a fresh PIN and no target. Fails
// without mutating when the name is already taken.
func AddPlayer(r *Record, name string) error {
	if _, exists := r.Players[name]; exists {
		return ErrPlayerExists
	}
	r.Players[name] = Player{
		Name:   name,
		PIN:    RandomPIN(),
		Target: "",
	}
	return nil
}

// RemovePlayer deletes the player and cascades: their eliminations, their
// vote, and every dangling reference to them elsewhere in the record.
func RemovePlayer(r *Record, name string) {
	delete(r.Players, name)

	murders := r.Murders[:0]
	for _, m := range r.Murders {
		if m.Murderer == name || m.Victim == name {
			continue
		}
		murders = append(murders, m)
	}
	r.Murders = murders

	delete(r.Votes, name)
	for voter, vote := range r.Votes {
		if vote.Suspect == name {
			vote.Suspect = ""
			r.Votes[voter] = vote
		}
	}

	for other, player := range r.Players {
		if player.Target == name {
			player.Target = ""
			r.Players[other] = player
		}
	}

	if r.CorrectAnswer == name {
		r.CorrectAnswer = ""
	}
}

// AssignRandomTargets shuffles all players into a single cycle and points
// each player at the next one, so nobody targets themself and nobody is left
// untargeted.
func AssignRandomTargets(r *Record) error {
	if len(r.Players) < 2 {
		return ErrTooFewPlayers
	}

	names := make([]string, 0, len(r.Players))
	for name := range r.Players {
		names = append(names, name)
	}
	sort.Strings(names)

	// Fisher-Yates shuffle using crypto/rand
	for i := len(names) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		names[i], names[j] = names[j], names[i]
	}

	for i, name := range names {
		player := r.Players[name]
		player.Target = names[(i+1)%len(names)]
		r.Players[name] = player
	}
	return nil
}

// SetTarget is the host's manual override: any single target, or clear with
// an empty value. No cycle invariant is enforced here.
func SetTarget(r *Record, name, target string) error {
	player, ok := r.Players[name]
	if !ok {
		return ErrUnknownPlayer
	}
	player.Target = target
	r.Players[name] = player
	return nil
}

// ClearTargets resets every player's target.
func ClearTargets(r *Record) {
	for name, player := range r.Players {
		player.Target = ""
		r.Players[name] = player
	}
}

// SubmitElimination appends an unconfirmed elimination by the acting player
// against their current target.
func SubmitElimination(r *Record, murderer, notes string, now time.Time) error {
	player, ok := r.Players[murderer]
	if !ok {
		return ErrUnknownPlayer
	}
	if player.Target == "" {
		return ErrNoTarget
	}
	r.Murders = append(r.Murders, Elimination{
		ID:        NewEliminationID(now),
		Murderer:  murderer,
		Victim:    player.Target,
		Notes:     notes,
		Timestamp: now.UnixMilli(),
	})
	return nil
}

// ConfirmElimination marks the elimination confirmed by its victim. The
// victim may amend the murderer's name and attach or replace the photo.
func ConfirmElimination(r *Record, id, confirmedBy, murderer, photoData string, now time.Time) error {
	for i := range r.Murders {
		if r.Murders[i].ID != id {
			continue
		}
		if confirmedBy != r.Murders[i].Victim {
			return ErrNotVictim
		}
		if murderer != "" {
			r.Murders[i].Murderer = murderer
		}
		if photoData != "" {
			r.Murders[i].PhotoData = photoData
		}
		r.Murders[i].Confirmed = true
		r.Murders[i].ConfirmedBy = confirmedBy
		r.Murders[i].ConfirmedAt = now.UnixMilli()
		return nil
	}
	return ErrUnknownMurder
}

// SubmitVote upserts the acting player's vote, overwriting any previous one.
func SubmitVote(r *Record, voter, suspect string, now time.Time) {
	r.Votes[voter] = Vote{
		Suspect:   suspect,
		Timestamp: now.UnixMilli(),
	}
}

// RevealAnswer records the culprit. Winners are derived via Record.Winners.
func RevealAnswer(r *Record, culprit string) {
	r.CorrectAnswer = culprit
}

// SetPhase is the host override; any known phase is reachable directly.
func SetPhase(r *Record, phase Phase) {
	if phase.Valid() {
		r.Phase = phase
	}
}

// AdvancePhase moves the game one phase forward, clamping at results.
func AdvancePhase(r *Record) {
	r.Phase = r.Phase.Next()
}

// SetStarted toggles the registration lock. Unlocking resets the phase.
func SetStarted(r *Record, started bool) {
	r.Started = started
	if !started {
		r.Phase = PhaseMurders
	}
}

// SetName updates the display label.
func SetName(r *Record, name string) {
	r.Name = name
}

// VerifyPIN checks a player's login PIN.
func VerifyPIN(r *Record, name, pin string) error {
	player, ok := r.Players[name]
	if !ok {
		return ErrUnknownPlayer
	}
	if player.PIN != pin {
		return ErrBadPIN
	}
	return nil
}
