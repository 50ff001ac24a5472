package game

import (
	"errors"
	"testing"

	"github.com/reelparty/reelroom/internal/room"
)

// lobbyState returns a committed lobby with three senders, two players
// and one round of two items: first S1-only (k=1), then the multi-truth
// S1+S2 (k=2).
func lobbyState() *room.State {
	st := room.NewState("R1")
	st.Senders = []room.Sender{
		{ID: "S1", Name: "uno", Active: true},
		{ID: "S2", Name: "dos", Active: true},
		{ID: "S3", Name: "tres", Active: true},
	}
	st.Players = []room.Player{
		{ID: "P1", Name: "ana", Active: true},
		{ID: "P2", Name: "bo", Active: true},
	}
	st.Setup = &room.Setup{
		Seed: "seed",
		Rounds: []room.Round{{
			Items: []room.Item{
				{MediaRef: "reel-1", K: 1, TrueSenderIDs: []string{"S1"}},
				{MediaRef: "reel-2", K: 2, TrueSenderIDs: []string{"S1", "S2"}},
			},
		}},
	}
	return st
}

func startedState(t *testing.T) *room.State {
	t.Helper()
	st := lobbyState()
	if err := Start(st); err != nil {
		t.Fatalf("start: %v", err)
	}
	return st
}

func toVoting(t *testing.T, st *room.State) {
	t.Helper()
	if err := OpenItem(st); err != nil {
		t.Fatalf("open item: %v", err)
	}
	if err := StartVote(st); err != nil {
		t.Fatalf("start vote: %v", err)
	}
}

func TestStart(t *testing.T) {
	st := startedState(t)

	if st.Phase != room.PhaseGame {
		t.Errorf("phase = %v", st.Phase)
	}
	if st.Game.Status != room.StatusReveal {
		t.Errorf("status = %v", st.Game.Status)
	}
	if len(st.Game.Senders) != 3 || len(st.Game.PlayerOrder) != 2 {
		t.Errorf("snapshot = %d senders, %d players", len(st.Game.Senders), len(st.Game.PlayerOrder))
	}

	// Forward-only: a second start is refused.
	if err := Start(st); !errors.Is(err, ErrNotInPhase) {
		t.Errorf("restart err = %v, want ErrNotInPhase", err)
	}
}

func TestStartWithoutSetup(t *testing.T) {
	st := room.NewState("R1")
	if err := Start(st); !errors.Is(err, ErrNoSetup) {
		t.Errorf("err = %v, want ErrNoSetup", err)
	}
}

func TestStartVoteRequiresOpenedItem(t *testing.T) {
	st := startedState(t)
	if err := StartVote(st); !errors.Is(err, ErrConflict) {
		t.Errorf("start vote before open: err = %v, want ErrConflict", err)
	}
}

func TestVoteBoundary(t *testing.T) {
	st := startedState(t)
	if err := OpenItem(st); err != nil {
		t.Fatalf("open item: %v", err)
	}

	// Voting has not been opened yet.
	if rej := SubmitVote(st, "P1", []string{"S1"}, true); rej != RejectNotInVote {
		t.Errorf("before vote opens: rej = %q, want not_in_vote", rej)
	}

	if err := StartVote(st); err != nil {
		t.Fatalf("start vote: %v", err)
	}

	if rej := SubmitVote(st, "P1", nil, true); rej != RejectInvalid {
		t.Errorf("empty selection: rej = %q, want invalid_selection", rej)
	}
	if rej := SubmitVote(st, "P1", []string{"S1", "S2"}, true); rej != RejectTooMany {
		t.Errorf("oversized selection: rej = %q, want too_many", rej)
	}
	if rej := SubmitVote(st, "P1", []string{"S9"}, true); rej != RejectInvalid {
		t.Errorf("unknown sender: rej = %q, want invalid_selection", rej)
	}
	if rej := SubmitVote(st, "P9", []string{"S1"}, true); rej != RejectInvalid {
		t.Errorf("unknown player: rej = %q, want invalid_selection", rej)
	}
	if rej := SubmitVote(st, "P1", []string{"S1"}, false); rej != RejectInvalid {
		t.Errorf("unclaimed player: rej = %q, want invalid_selection", rej)
	}

	// A well-formed vote is accepted exactly once.
	if rej := SubmitVote(st, "P1", []string{"S2"}, true); rej != RejectionNone {
		t.Fatalf("valid vote rejected: %q", rej)
	}
	if rej := SubmitVote(st, "P1", []string{"S1"}, true); rej != RejectAlreadyDone {
		t.Errorf("duplicate vote: rej = %q, want already_voted", rej)
	}
}

func TestVoteDuplicateSelection(t *testing.T) {
	st := startedState(t)
	st.Game.ItemIndex = 1 // the k=2 item
	toVoting(t, st)

	if rej := SubmitVote(st, "P1", []string{"S1", "S1"}, true); rej != RejectInvalid {
		t.Errorf("duplicate sender ids: rej = %q, want invalid_selection", rej)
	}
}

func TestVoteAfterResolveIsLate(t *testing.T) {
	st := startedState(t)
	toVoting(t, st)

	if rej := SubmitVote(st, "P1", []string{"S1"}, true); rej != RejectionNone {
		t.Fatalf("vote rejected: %q", rej)
	}
	if _, err := Resolve(st); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rej := SubmitVote(st, "P2", []string{"S1"}, true); rej != RejectLate {
		t.Errorf("vote on resolved item: rej = %q, want late", rej)
	}
}

func TestAllVoted(t *testing.T) {
	st := startedState(t)
	toVoting(t, st)

	claimed := map[string]string{"P1": "A", "P2": "B"}
	if AllVoted(st, claimed) {
		t.Error("AllVoted before any vote")
	}
	SubmitVote(st, "P1", []string{"S1"}, true)
	if AllVoted(st, claimed) {
		t.Error("AllVoted with one of two votes")
	}
	SubmitVote(st, "P2", []string{"S2"}, true)
	if !AllVoted(st, claimed) {
		t.Error("AllVoted false with all votes in")
	}

	// Unclaimed players do not hold up resolution.
	st.Votes = map[string][]string{"P1": {"S1"}}
	if !AllVoted(st, map[string]string{"P1": "A"}) {
		t.Error("AllVoted false when only claimed player voted")
	}

	// No claimed players at all never resolves by itself.
	if AllVoted(st, map[string]string{}) {
		t.Error("AllVoted true with zero claimed players")
	}
}

func TestResolveScoring(t *testing.T) {
	st := startedState(t)
	st.Game.ItemIndex = 1 // truth {S1,S2}, k=2
	toVoting(t, st)

	if rej := SubmitVote(st, "P1", []string{"S1", "S3"}, true); rej != RejectionNone {
		t.Fatalf("vote rejected: %q", rej)
	}

	results, err := Resolve(st)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}

	res := results[0]
	if res.PlayerID != "P1" || res.Points != 1 {
		t.Errorf("result = %+v, want P1 with 1 point", res)
	}
	if !res.Correct["S1"] || res.Correct["S3"] {
		t.Errorf("correctness map = %v, want {S1:true, S3:false}", res.Correct)
	}

	if st.Scores["P1"] != 1 {
		t.Errorf("cumulative score = %d, want 1", st.Scores["P1"])
	}
	if item := st.FocusItem(); !item.Resolved {
		t.Error("item not marked resolved")
	}
	if st.Game.Status != room.StatusRevealWait {
		t.Errorf("status = %v, want reveal_wait", st.Game.Status)
	}
}

func TestAdvanceThroughRoundAndGameOver(t *testing.T) {
	st := startedState(t)

	// Item 1: P1 scores.
	toVoting(t, st)
	SubmitVote(st, "P1", []string{"S1"}, true)
	if _, err := Resolve(st); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	out, err := Advance(st)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !out.NextItem || st.Game.ItemIndex != 1 || st.Game.Status != room.StatusReveal {
		t.Fatalf("advance to next item: out = %+v, game = %+v", out, st.Game)
	}
	if len(st.Votes) != 0 {
		t.Error("votes not cleared on advance")
	}

	// Item 2: both score once each.
	toVoting(t, st)
	SubmitVote(st, "P1", []string{"S1", "S3"}, true)
	SubmitVote(st, "P2", []string{"S2", "S3"}, true)
	if _, err := Resolve(st); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Past the last item of the round: recap with round delta and
	// running total.
	out, err = Advance(st)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if st.Game.Status != room.StatusRoundRecap {
		t.Fatalf("status = %v, want round_recap", st.Game.Status)
	}
	if len(out.Recap) != 2 {
		t.Fatalf("recap entries = %d, want 2", len(out.Recap))
	}
	if out.Recap[0].PlayerID != "P1" || out.Recap[0].Delta != 2 || out.Recap[0].Total != 2 {
		t.Errorf("recap[0] = %+v", out.Recap[0])
	}
	if out.Recap[1].PlayerID != "P2" || out.Recap[1].Delta != 1 || out.Recap[1].Total != 1 {
		t.Errorf("recap[1] = %+v", out.Recap[1])
	}

	// Past the last round: game over with the final ranking.
	out, err = Advance(st)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !out.GameOver || st.Phase != room.PhaseGameOver {
		t.Fatalf("out = %+v, phase = %v", out, st.Phase)
	}
	if out.Ranking[0].PlayerID != "P1" || out.Ranking[1].PlayerID != "P2" {
		t.Errorf("ranking = %+v", out.Ranking)
	}
}

func TestAdvanceOutsideRevealWait(t *testing.T) {
	st := startedState(t)
	if _, err := Advance(st); !errors.Is(err, ErrConflict) {
		t.Errorf("advance in reveal: err = %v, want ErrConflict", err)
	}
}

func TestRankingTiesKeepStableOrder(t *testing.T) {
	st := startedState(t)
	st.Scores = map[string]int{"P1": 2, "P2": 2}

	ranking := Ranking(st)
	if ranking[0].PlayerID != "P1" || ranking[1].PlayerID != "P2" {
		t.Errorf("tied ranking = %+v, want stable player order", ranking)
	}

	st.Scores["P2"] = 5
	ranking = Ranking(st)
	if ranking[0].PlayerID != "P2" {
		t.Errorf("ranking = %+v, want P2 first", ranking)
	}
}
