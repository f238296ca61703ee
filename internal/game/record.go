package game

import (
	"sort"
	"strings"
	"time"
)

// Phase is the lifecycle stage of a game.
type Phase string

const (
	PhaseMurders       Phase = "murders"
	PhaseInvestigation Phase = "investigation"
	PhaseVoting        Phase = "voting"
	PhaseResults       Phase = "results"
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{PhaseMurders, PhaseInvestigation, PhaseVoting, PhaseResults}

func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Index returns the position of p in the lifecycle, or -1 if unknown.
func (p Phase) Index() int {
	for i, known := range Phases {
		if p == known {
			return i
		}
	}
	return -1
}

// Next returns the following phase, clamping at results.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i >= len(Phases)-1 {
		return PhaseResults
	}
	return Phases[i+1]
}

// Record is the canonical state of one game, keyed by its code.
type Record struct {
	Code          string            `json:"code"`
	Name          string            `json:"name"`
	Players       map[string]Player `json:"players"`
	Murders       []Elimination     `json:"murders"`
	Votes         map[string]Vote   `json:"votes"`
	CorrectAnswer string            `json:"correctAnswer"`
	Started       bool              `json:"started"`
	Phase         Phase             `json:"phase"`
	CreatedAt     int64             `json:"createdAt"`
}

type Player struct {
	Name   string `json:"name"`
	PIN    string `json:"pin"`
	Target string `json:"target"`
}

// Elimination is a reported murder, pending confirmation by the victim.
type Elimination struct {
	ID          string `json:"id"`
	Murderer    string `json:"murderer"`
	Victim      string `json:"victim"`
	Notes       string `json:"notes"`
	Timestamp   int64  `json:"timestamp"`
	PhotoData   string `json:"photoData"`
	Confirmed   bool   `json:"confirmed"`
	ConfirmedBy string `json:"confirmedBy"`
	ConfirmedAt int64  `json:"confirmedAt,omitempty"`
}

type Vote struct {
	Suspect   string `json:"suspect"`
	Timestamp int64  `json:"timestamp"`
}

// Normalize fills every field of raw to a safe default and returns a record
// that shares no containers with the input. Missing player PINs and
// elimination ids are generated; present ones are never regenerated, so the
// function is idempotent up to fresh randomness. All data entering the store
// passes through here.
func Normalize(raw Record, codeOverride string, now time.Time) Record {
	code := codeOverride
	if code == "" {
		code = raw.Code
	}

	out := Record{
		Code:          strings.ToUpper(code),
		Name:          raw.Name,
		Players:       make(map[string]Player, len(raw.Players)),
		Murders:       make([]Elimination, 0, len(raw.Murders)),
		Votes:         make(map[string]Vote, len(raw.Votes)),
		CorrectAnswer: raw.CorrectAnswer,
		Started:       raw.Started,
		Phase:         raw.Phase,
		CreatedAt:     raw.CreatedAt,
	}

	if !out.Phase.Valid() {
		out.Phase = PhaseMurders
	}
	if out.CreatedAt == 0 {
		out.CreatedAt = now.UnixMilli()
	}

	for name, player := range raw.Players {
		if player.Name == "" {
			player.Name = name
		}
		if player.PIN == "" {
			player.PIN = RandomPIN()
		}
		out.Players[name] = player
	}

	for _, entry := range raw.Murders {
		if entry.ID == "" {
			entry.ID = NewEliminationID(now)
		}
		if entry.Timestamp == 0 {
			entry.Timestamp = now.UnixMilli()
		}
		out.Murders = append(out.Murders, entry)
	}

	for name, vote := range raw.Votes {
		if vote.Timestamp == 0 {
			vote.Timestamp = now.UnixMilli()
		}
		out.Votes[name] = vote
	}

	return out
}

// SortByNewest orders records newest first, ties broken by code ascending.
func SortByNewest(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt > recs[j].CreatedAt
		}
		return recs[i].Code < recs[j].Code
	})
}

// Winners returns the names of all players whose vote names the revealed
// culprit exactly. Empty when no answer has been revealed.
func (r Record) Winners() []string {
	if r.CorrectAnswer == "" {
		return nil
	}
	winners := make([]string, 0, len(r.Votes))
	for name, vote := range r.Votes {
		if vote.Suspect == r.CorrectAnswer {
			winners = append(winners, name)
		}
	}
	sort.Strings(winners)
	return winners
}
