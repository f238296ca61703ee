package game

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestGame(t *testing.T, names ...string) *Record {
	t.Helper()
	r := Normalize(Record{}, "ABCDE", testNow)
	for _, name := range names {
		if err := AddPlayer(&r, name); err != nil {
			t.Fatalf("AddPlayer(%q): %v", name, err)
		}
	}
	return &r
}

func TestAddPlayer(t *testing.T) {
	r := newTestGame(t, "Amy")

	if err := AddPlayer(r, "Amy"); !errors.Is(err, ErrPlayerExists) {
		t.Errorf("duplicate AddPlayer err = %v, want ErrPlayerExists", err)
	}
	if len(r.Players) != 1 {
		t.Errorf("players = %d after rejected add, want 1", len(r.Players))
	}

	if err := AddPlayer(r, "Bo"); err != nil {
		t.Fatalf("AddPlayer(Bo): %v", err)
	}
	bo := r.Players["Bo"]
	if len(bo.PIN) != 4 {
		t.Errorf("pin = %q, want 4 digits", bo.PIN)
	}
	if bo.Target != "" {
		t.Errorf("target = %q, want empty", bo.Target)
	}
}

func TestAssignRandomTargets_SingleCycle(t *testing.T) {
	big := make([]string, 300)
	for i := range big {
		big[i] = fmt.Sprintf("Guest%03d", i)
	}

	tests := []struct {
		name    string
		players []string
	}{
		{"two players", []string{"Amy", "Bo"}},
		{"three players", []string{"Amy", "Bo", "Cleo"}},
		{"seven players", []string{"Amy", "Bo", "Cleo", "Dana", "Eve", "Fox", "Gus"}},
		{"three hundred players", big},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestGame(t, tt.players...)
			if err := AssignRandomTargets(r); err != nil {
				t.Fatalf("AssignRandomTargets: %v", err)
			}

			for _, name := range tt.players {
				if r.Players[name].Target == name {
					t.Errorf("player %q targets themself", name)
				}
			}

			// Following the chain N steps from any player returns to them,
			// so the assignment is one cycle covering everyone.
			current := tt.players[0]
			for range tt.players {
				current = r.Players[current].Target
				if current == "" {
					t.Fatal("chain broken: empty target")
				}
			}
			if current != tt.players[0] {
				t.Errorf("chain of %d steps ends at %q, want %q", len(tt.players), current, tt.players[0])
			}
		})
	}
}

func TestAssignRandomTargets_TooFew(t *testing.T) {
	r := newTestGame(t, "Amy")
	if err := AssignRandomTargets(r); !errors.Is(err, ErrTooFewPlayers) {
		t.Errorf("err = %v, want ErrTooFewPlayers", err)
	}
	if r.Players["Amy"].Target != "" {
		t.Error("target assigned despite rejection")
	}
}

func TestAssignRandomTargets_TwoPlayerCycle(t *testing.T) {
	r := newTestGame(t, "Amy", "Bo")
	if err := AssignRandomTargets(r); err != nil {
		t.Fatalf("AssignRandomTargets: %v", err)
	}
	if r.Players["Amy"].Target != "Bo" || r.Players["Bo"].Target != "Amy" {
		t.Errorf("two-player cycle = %q/%q, want Bo/Amy", r.Players["Amy"].Target, r.Players["Bo"].Target)
	}
}

func TestRemovePlayer_Cascade(t *testing.T) {
	r := newTestGame(t, "Amy", "Bo", "Cleo")
	if err := SetTarget(r, "Amy", "Bo"); err != nil {
		t.Fatal(err)
	}
	if err := SetTarget(r, "Bo", "Cleo"); err != nil {
		t.Fatal(err)
	}
	if err := SubmitElimination(r, "Amy", "in the study", testNow); err != nil {
		t.Fatal(err)
	}
	SubmitVote(r, "Amy", "Bo", testNow)
	SubmitVote(r, "Bo", "Cleo", testNow)
	SubmitVote(r, "Cleo", "Bo", testNow)
	RevealAnswer(r, "Bo")

	RemovePlayer(r, "Bo")

	if _, ok := r.Players["Bo"]; ok {
		t.Error("player still present")
	}
	for name, player := range r.Players {
		if player.Target == "Bo" {
			t.Errorf("player %q still targets removed player", name)
		}
	}
	for _, m := range r.Murders {
		if m.Murderer == "Bo" || m.Victim == "Bo" {
			t.Errorf("elimination still references removed player: %+v", m)
		}
	}
	if len(r.Murders) != 0 {
		t.Errorf("murders = %d, want 0", len(r.Murders))
	}
	if _, ok := r.Votes["Bo"]; ok {
		t.Error("removed player's vote still present")
	}
	for voter, vote := range r.Votes {
		if vote.Suspect == "Bo" {
			t.Errorf("vote by %q still names removed player", voter)
		}
	}
	if r.CorrectAnswer == "Bo" {
		t.Error("correctAnswer still names removed player")
	}
}

func TestSubmitElimination(t *testing.T) {
	r := newTestGame(t, "Amy", "Bo")

	if err := SubmitElimination(r, "Amy", "", testNow); !errors.Is(err, ErrNoTarget) {
		t.Errorf("untargeted submit err = %v, want ErrNoTarget", err)
	}
	if len(r.Murders) != 0 {
		t.Error("elimination recorded despite rejection")
	}

	if err := SetTarget(r, "Amy", "Bo"); err != nil {
		t.Fatal(err)
	}
	if err := SubmitElimination(r, "Amy", "poisoned tea", testNow); err != nil {
		t.Fatalf("SubmitElimination: %v", err)
	}

	if len(r.Murders) != 1 {
		t.Fatalf("murders = %d, want 1", len(r.Murders))
	}
	m := r.Murders[0]
	if m.Murderer != "Amy" || m.Victim != "Bo" {
		t.Errorf("elimination = %q→%q, want Amy→Bo", m.Murderer, m.Victim)
	}
	if m.Confirmed {
		t.Error("new elimination already confirmed")
	}
	if m.ID == "" {
		t.Error("elimination id missing")
	}
}

func TestConfirmElimination(t *testing.T) {
	r := newTestGame(t, "Amy", "Bo")
	if err := SetTarget(r, "Amy", "Bo"); err != nil {
		t.Fatal(err)
	}
	if err := SubmitElimination(r, "Amy", "", testNow); err != nil {
		t.Fatal(err)
	}
	id := r.Murders[0].ID
	later := testNow.Add(5 * time.Minute)

	if err := ConfirmElimination(r, id, "Amy", "", "", later); !errors.Is(err, ErrNotVictim) {
		t.Errorf("confirm by non-victim err = %v, want ErrNotVictim", err)
	}
	if err := ConfirmElimination(r, "missing", "Bo", "", "", later); !errors.Is(err, ErrUnknownMurder) {
		t.Errorf("confirm of unknown id err = %v, want ErrUnknownMurder", err)
	}

	if err := ConfirmElimination(r, id, "Bo", "Cleo", "data:image/png;base64,xyz", later); err != nil {
		t.Fatalf("ConfirmElimination: %v", err)
	}

	m := r.Murders[0]
	if !m.Confirmed {
		t.Error("not confirmed")
	}
	if m.ConfirmedBy != "Bo" {
		t.Errorf("confirmedBy = %q, want Bo", m.ConfirmedBy)
	}
	if m.ConfirmedAt != later.UnixMilli() {
		t.Errorf("confirmedAt = %d, want %d", m.ConfirmedAt, later.UnixMilli())
	}
	if m.Murderer != "Cleo" {
		t.Errorf("amended murderer = %q, want Cleo", m.Murderer)
	}
	if m.PhotoData == "" {
		t.Error("photo not attached")
	}
}

func TestSubmitVote_Upsert(t *testing.T) {
	r := newTestGame(t, "Amy", "Bo")

	SubmitVote(r, "Amy", "Bo", testNow)
	later := testNow.Add(time.Minute)
	SubmitVote(r, "Amy", "", later)

	if len(r.Votes) != 1 {
		t.Fatalf("votes = %d, want 1", len(r.Votes))
	}
	vote := r.Votes["Amy"]
	if vote.Suspect != "" {
		t.Errorf("suspect = %q, want empty (undecided)", vote.Suspect)
	}
	if vote.Timestamp != later.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", vote.Timestamp, later.UnixMilli())
	}
}

func TestVotingScenario(t *testing.T) {
	// Amy votes Bo, Bo votes Amy, host reveals Bo: Amy alone wins.
	r := newTestGame(t, "Amy", "Bo")
	SubmitVote(r, "Amy", "Bo", testNow)
	SubmitVote(r, "Bo", "Amy", testNow)
	RevealAnswer(r, "Bo")

	winners := r.Winners()
	if len(winners) != 1 || winners[0] != "Amy" {
		t.Errorf("winners = %v, want [Amy]", winners)
	}
}

func TestSetStarted(t *testing.T) {
	r := newTestGame(t)
	r.Phase = PhaseVoting

	SetStarted(r, true)
	if !r.Started || r.Phase != PhaseVoting {
		t.Errorf("started=%v phase=%q, want true/voting", r.Started, r.Phase)
	}

	SetStarted(r, false)
	if r.Started {
		t.Error("still started")
	}
	if r.Phase != PhaseMurders {
		t.Errorf("phase = %q after unlock, want murders", r.Phase)
	}
}

func TestSetPhase(t *testing.T) {
	r := newTestGame(t)

	SetPhase(r, PhaseResults)
	if r.Phase != PhaseResults {
		t.Errorf("phase = %q, want results", r.Phase)
	}

	// Direct set may jump backwards too.
	SetPhase(r, PhaseMurders)
	if r.Phase != PhaseMurders {
		t.Errorf("phase = %q, want murders", r.Phase)
	}

	SetPhase(r, Phase("bogus"))
	if r.Phase != PhaseMurders {
		t.Errorf("phase = %q after invalid set, want murders", r.Phase)
	}
}

func TestClearTargets(t *testing.T) {
	r := newTestGame(t, "Amy", "Bo")
	if err := AssignRandomTargets(r); err != nil {
		t.Fatal(err)
	}

	ClearTargets(r)

	for name, player := range r.Players {
		if player.Target != "" {
			t.Errorf("player %q still has target %q", name, player.Target)
		}
	}
}

func TestVerifyPIN(t *testing.T) {
	r := newTestGame(t, "Amy")
	pin := r.Players["Amy"].PIN

	if err := VerifyPIN(r, "Amy", pin); err != nil {
		t.Errorf("correct pin rejected: %v", err)
	}
	if err := VerifyPIN(r, "Amy", "0000"); !errors.Is(err, ErrBadPIN) {
		t.Errorf("wrong pin err = %v, want ErrBadPIN", err)
	}
	if err := VerifyPIN(r, "Mallory", pin); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("unknown player err = %v, want ErrUnknownPlayer", err)
	}
}
