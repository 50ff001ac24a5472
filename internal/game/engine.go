package game

import (
	"errors"
	"sort"

	"github.com/reelparty/reelroom/internal/room"
)

// Operation errors for master-driven transitions. The transport maps
// these onto its wire error codes.
var (
	ErrNotInPhase  = errors.New("game: room not in required phase")
	ErrNoSetup     = errors.New("game: setup not committed")
	ErrConflict    = errors.New("game: operation conflicts with current status")
	ErrNoFocusItem = errors.New("game: no focus item")
)

// Rejection is the typed outcome of a refused vote. Accepted votes
// return RejectionNone.
type Rejection string

const (
	RejectionNone     Rejection = ""
	RejectLate        Rejection = "late"
	RejectNotInVote   Rejection = "not_in_vote"
	RejectAlreadyDone Rejection = "already_voted"
	RejectTooMany     Rejection = "too_many"
	RejectInvalid     Rejection = "invalid_selection"
)

// Start moves a lobby with committed setup into the game phase,
// snapshotting active senders and players so later lobby edits (there
// are none, but the store is shared) cannot skew an in-flight game.
func Start(st *room.State) error {
	if st.Phase != room.PhaseLobby {
		return ErrNotInPhase
	}
	if st.Setup == nil || len(st.Setup.Rounds) == 0 {
		return ErrNoSetup
	}

	g := &room.Game{
		Status:      room.StatusReveal,
		RoundScores: map[string]int{},
	}
	for _, s := range st.Senders {
		if s.Active {
			g.Senders = append(g.Senders, s)
		}
	}
	for _, p := range st.Players {
		if p.Active {
			g.PlayerOrder = append(g.PlayerOrder, p.ID)
		}
	}

	st.Phase = room.PhaseGame
	st.Game = g
	st.Votes = map[string][]string{}
	return nil
}

// OpenItem marks the focus item opened, exposing its media reference.
func OpenItem(st *room.State) error {
	if st.Phase != room.PhaseGame || st.Game.Status != room.StatusReveal {
		return ErrConflict
	}
	item := st.FocusItem()
	if item == nil {
		return ErrNoFocusItem
	}
	item.Opened = true
	return nil
}

// StartVote opens voting on the focus item. The item must have been
// opened first.
func StartVote(st *room.State) error {
	if st.Phase != room.PhaseGame || st.Game.Status != room.StatusReveal {
		return ErrConflict
	}
	item := st.FocusItem()
	if item == nil {
		return ErrNoFocusItem
	}
	if !item.Opened {
		return ErrConflict
	}
	st.Game.Status = room.StatusVote
	return nil
}

// SubmitVote records selection for playerID on the focus item. claimed
// reports whether the player currently holds a device binding; the
// caller reads it from the claim registry. Every refusal is a precise
// typed rejection, never a silent drop.
func SubmitVote(st *room.State, playerID string, selection []string, claimed bool) Rejection {
	if st.Phase != room.PhaseGame || st.Game == nil {
		return RejectNotInVote
	}
	item := st.FocusItem()
	if item == nil || item.Resolved {
		return RejectLate
	}
	if st.Game.Status != room.StatusVote {
		return RejectNotInVote
	}

	p, ok := st.Player(playerID)
	if !ok || !p.Active || !claimed {
		return RejectInvalid
	}
	if _, voted := st.Votes[playerID]; voted {
		return RejectAlreadyDone
	}

	if len(selection) == 0 {
		return RejectInvalid
	}
	if len(selection) > item.K {
		return RejectTooMany
	}
	seen := make(map[string]bool, len(selection))
	for _, id := range selection {
		if seen[id] {
			return RejectInvalid
		}
		seen[id] = true
		if _, ok := senderInGame(st.Game, id); !ok {
			return RejectInvalid
		}
	}

	st.Votes[playerID] = append([]string(nil), selection...)
	return RejectionNone
}

// AllVoted reports whether every active player holding a claim has
// voted on the focus item. claimedPlayers is the player→device table.
func AllVoted(st *room.State, claimedPlayers map[string]string) bool {
	if st.Game == nil || st.Game.Status != room.StatusVote {
		return false
	}
	any := false
	for _, p := range st.Players {
		if !p.Active {
			continue
		}
		if _, ok := claimedPlayers[p.ID]; !ok {
			continue
		}
		any = true
		if _, voted := st.Votes[p.ID]; !voted {
			return false
		}
	}
	return any
}

// PlayerResult is the per-player outcome of one resolved item.
type PlayerResult struct {
	PlayerID string          `json:"playerId"`
	Correct  map[string]bool `json:"correct"`
	Points   int             `json:"points"`
}

// Resolve closes voting on the focus item, scoring each submitted vote
// against the item's true-sender set. One point per correct match.
func Resolve(st *room.State) ([]PlayerResult, error) {
	if st.Phase != room.PhaseGame || st.Game.Status != room.StatusVote {
		return nil, ErrConflict
	}
	item := st.FocusItem()
	if item == nil {
		return nil, ErrNoFocusItem
	}

	truth := make(map[string]bool, len(item.TrueSenderIDs))
	for _, id := range item.TrueSenderIDs {
		truth[id] = true
	}

	results := make([]PlayerResult, 0, len(st.Votes))
	for _, playerID := range st.Game.PlayerOrder {
		selection, ok := st.Votes[playerID]
		if !ok {
			continue
		}
		res := PlayerResult{PlayerID: playerID, Correct: map[string]bool{}}
		for _, id := range selection {
			res.Correct[id] = truth[id]
			if truth[id] {
				res.Points++
			}
		}
		st.Scores[playerID] += res.Points
		st.Game.RoundScores[playerID] += res.Points
		results = append(results, res)
	}

	item.Resolved = true
	st.Game.Status = room.StatusRevealWait
	return results, nil
}

// RecapEntry is one player's line in a round recap or final ranking.
type RecapEntry struct {
	PlayerID string `json:"playerId"`
	Delta    int    `json:"delta,omitempty"`
	Total    int    `json:"total"`
}

// AdvanceOutcome tells the caller what Advance did.
type AdvanceOutcome struct {
	NextItem bool         `json:"nextItem"`
	Recap    []RecapEntry `json:"recap,omitempty"`
	GameOver bool         `json:"gameOver"`
	Ranking  []RecapEntry `json:"ranking,omitempty"`
}

// Advance moves past a resolved item or a round recap: to the next
// unresolved item in round order, to the round recap when the round is
// exhausted, and to game_over with the final ranking after the last
// round. The per-item vote map is cleared on every move.
func Advance(st *room.State) (*AdvanceOutcome, error) {
	if st.Phase != room.PhaseGame || st.Game == nil {
		return nil, ErrNotInPhase
	}
	g := st.Game

	switch g.Status {
	case room.StatusRevealWait:
		st.Votes = map[string][]string{}
		round := st.Setup.Rounds[g.RoundIndex]
		for i := g.ItemIndex + 1; i < len(round.Items); i++ {
			if !round.Items[i].Resolved {
				g.ItemIndex = i
				g.Status = room.StatusReveal
				return &AdvanceOutcome{NextItem: true}, nil
			}
		}
		g.Status = room.StatusRoundRecap
		return &AdvanceOutcome{Recap: recap(st)}, nil

	case room.StatusRoundRecap:
		st.Votes = map[string][]string{}
		g.RoundScores = map[string]int{}
		if g.RoundIndex+1 < len(st.Setup.Rounds) {
			g.RoundIndex++
			g.ItemIndex = 0
			g.Status = room.StatusReveal
			return &AdvanceOutcome{NextItem: true}, nil
		}
		st.Phase = room.PhaseGameOver
		return &AdvanceOutcome{GameOver: true, Ranking: Ranking(st)}, nil

	default:
		return nil, ErrConflict
	}
}

// Ranking returns players sorted by score descending, ties broken by
// the stable player order captured at game start.
func Ranking(st *room.State) []RecapEntry {
	if st.Game == nil {
		return nil
	}
	order := make(map[string]int, len(st.Game.PlayerOrder))
	entries := make([]RecapEntry, 0, len(st.Game.PlayerOrder))
	for i, id := range st.Game.PlayerOrder {
		order[id] = i
		entries = append(entries, RecapEntry{PlayerID: id, Total: st.Scores[id]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Total != entries[j].Total {
			return entries[i].Total > entries[j].Total
		}
		return order[entries[i].PlayerID] < order[entries[j].PlayerID]
	})
	return entries
}

func recap(st *room.State) []RecapEntry {
	entries := make([]RecapEntry, 0, len(st.Game.PlayerOrder))
	for _, id := range st.Game.PlayerOrder {
		entries = append(entries, RecapEntry{
			PlayerID: id,
			Delta:    st.Game.RoundScores[id],
			Total:    st.Scores[id],
		})
	}
	return entries
}

func senderInGame(g *room.Game, id string) (*room.Sender, bool) {
	for i := range g.Senders {
		if g.Senders[i].ID == id {
			return &g.Senders[i], true
		}
	}
	return nil, false
}
