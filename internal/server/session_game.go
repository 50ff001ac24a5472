package server

import (
	"context"
	"errors"

	"github.com/reelparty/reelroom/internal/game"
	"github.com/reelparty/reelroom/internal/room"
)

var (
	errVoteRejected = errors.New("vote rejected")
	errNoSeat       = errors.New("no claimed seat")
)

func (s *session) handleOpenItem(ctx context.Context) {
	if !s.requireMaster() {
		return
	}
	err := s.mutateState(ctx, func(st *room.State) error {
		return game.OpenItem(st)
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}
	s.ack("open_item")
	s.broadcastState(ctx)
}

func (s *session) handleStartVote(ctx context.Context) {
	if !s.requireMaster() {
		return
	}
	err := s.mutateState(ctx, func(st *room.State) error {
		return game.StartVote(st)
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}
	s.ack("start_vote")
	s.broadcastState(ctx)
}

func (s *session) handleVote(ctx context.Context, m *voteMsg) {
	var (
		rej     game.Rejection
		results []game.PlayerResult
		trueIDs []string
	)
	// The claim table is read inside the mutation cycle so the vote is
	// judged against the bindings current at write time, not against a
	// peek taken before the lock.
	err := s.mutateState(ctx, func(st *room.State) error {
		results, trueIDs = nil, nil

		claimed, err := s.claims.All(ctx, s.roomCode)
		if err != nil {
			return err
		}
		playerID := ""
		for p, d := range claimed {
			if d == s.deviceID {
				playerID = p
				break
			}
		}
		if playerID == "" {
			return errNoSeat
		}

		rej = game.SubmitVote(st, playerID, m.SenderIDs, claimed[playerID] != "")
		if rej != game.RejectionNone {
			return errVoteRejected
		}
		// The item resolves itself once the last claimed active player
		// has voted.
		if game.AllVoted(st, claimed) {
			res, err := game.Resolve(st)
			if err != nil {
				return err
			}
			results = res
			trueIDs = st.FocusItem().TrueSenderIDs
		}
		return nil
	})
	if errors.Is(err, errVoteRejected) {
		s.sendVoteRejection(rej)
		return
	}
	if err != nil {
		s.sendDomainError(err)
		return
	}

	s.ack("vote")
	if results != nil {
		s.broadcast("item_result", itemResultPayload{TrueSenderIDs: trueIDs, Results: results})
	}
	s.broadcastState(ctx)
}

func (s *session) sendVoteRejection(rej game.Rejection) {
	switch rej {
	case game.RejectLate, game.RejectNotInVote:
		s.sendError(errVoteClosed, string(rej))
	case game.RejectAlreadyDone:
		s.sendError(errAlreadyVoted, "")
	case game.RejectTooMany, game.RejectInvalid:
		s.sendError(errInvalidPayload, string(rej))
	default:
		s.sendError(errInternal, "")
	}
}

// handleCloseVote is the master forcing resolution before everyone has
// voted.
func (s *session) handleCloseVote(ctx context.Context) {
	if !s.requireMaster() {
		return
	}

	var (
		results []game.PlayerResult
		trueIDs []string
	)
	err := s.mutateState(ctx, func(st *room.State) error {
		res, err := game.Resolve(st)
		if err != nil {
			return err
		}
		results = res
		trueIDs = st.FocusItem().TrueSenderIDs
		return nil
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}

	s.ack("close_vote")
	s.broadcast("item_result", itemResultPayload{TrueSenderIDs: trueIDs, Results: results})
	s.broadcastState(ctx)
}

func (s *session) handleAdvance(ctx context.Context) {
	if !s.requireMaster() {
		return
	}

	var (
		outcome    *game.AdvanceOutcome
		roundIndex int
	)
	err := s.mutateState(ctx, func(st *room.State) error {
		out, err := game.Advance(st)
		if err != nil {
			return err
		}
		outcome = out
		if st.Game != nil {
			roundIndex = st.Game.RoundIndex
		}
		return nil
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}

	s.ack("advance")
	if len(outcome.Recap) > 0 {
		s.broadcast("round_recap", roundRecapPayload{RoundIndex: roundIndex, Entries: outcome.Recap})
	}
	if outcome.GameOver {
		s.logger.Info("game over", "room", s.roomCode)
		s.broadcast("game_over", gameOverPayload{Ranking: outcome.Ranking})
	}
	s.broadcastState(ctx)
}
