package server

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/reelparty/reelroom/internal/claims"
	"github.com/reelparty/reelroom/internal/game"
	"github.com/reelparty/reelroom/internal/room"
)

var errSetupLocked = errors.New("setup already locked")

func (s *session) handleClaim(ctx context.Context, st *room.State, m *claimMsg) {
	if m.PlayerID == "" {
		s.sendError(errInvalidPayload, "playerId is required")
		return
	}

	// Existence and activity come from the caller's view of state; the
	// script re-evaluates them first so the outcome ordering is stable.
	p, exists := st.Player(m.PlayerID)
	active := exists && p.Active

	res, err := s.claims.Claim(ctx, s.roomCode, s.deviceID, m.PlayerID, exists, active, s.ttl)
	if err != nil {
		s.logger.Error("claim failed", "room", s.roomCode, "player", m.PlayerID, "error", err)
		s.sendError(errInternal, "")
		return
	}

	switch res {
	case claims.OK:
		s.ack("claim")
		s.broadcastState(ctx)
	case claims.PlayerNotFound:
		s.sendError(errPlayerNotFound, "")
	case claims.Inactive:
		s.sendError(errPlayerInactive, "")
	case claims.DeviceBound:
		s.sendError(errConflict, "device already holds a seat")
	case claims.TakenNow:
		s.sendError(errPlayerTaken, "")
	default:
		s.sendError(errInternal, "")
	}
}

func (s *session) handleRelease(ctx context.Context) {
	if err := s.claims.ReleaseByDevice(ctx, s.roomCode, s.deviceID); err != nil {
		s.logger.Error("release failed", "room", s.roomCode, "error", err)
		s.sendError(errInternal, "")
		return
	}
	s.ack("release")
	s.broadcastState(ctx)
}

// ownsPlayer reports whether this connection may edit the given seat:
// masters edit any, play devices only the seat they hold.
func (s *session) ownsPlayer(ctx context.Context, playerID string) (bool, error) {
	if s.master {
		return true, nil
	}
	own, ok, err := s.claims.PlayerFor(ctx, s.roomCode, s.deviceID)
	if err != nil {
		return false, err
	}
	return ok && own == playerID, nil
}

func (s *session) handleRename(ctx context.Context, m *renameMsg) {
	if m.PlayerID == "" || m.Name == "" {
		s.sendError(errInvalidPayload, "playerId and name are required")
		return
	}
	ok, err := s.ownsPlayer(ctx, m.PlayerID)
	if err != nil {
		s.sendError(errInternal, "")
		return
	}
	if !ok {
		s.sendError(errForbidden, "")
		return
	}

	err = s.mutateState(ctx, func(st *room.State) error {
		p, found := st.Player(m.PlayerID)
		if !found {
			return errNoSuchPlayer
		}
		p.Name = m.Name
		return nil
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}
	s.ack("rename")
	s.broadcastState(ctx)
}

func (s *session) handleSetAvatar(ctx context.Context, m *setAvatarMsg) {
	if m.PlayerID == "" {
		s.sendError(errInvalidPayload, "playerId is required")
		return
	}
	ok, err := s.ownsPlayer(ctx, m.PlayerID)
	if err != nil {
		s.sendError(errInternal, "")
		return
	}
	if !ok {
		s.sendError(errForbidden, "")
		return
	}

	err = s.mutateState(ctx, func(st *room.State) error {
		p, found := st.Player(m.PlayerID)
		if !found {
			return errNoSuchPlayer
		}
		p.Avatar = m.Avatar
		return nil
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}
	s.ack("set_avatar")
	s.broadcastState(ctx)
}

func (s *session) handleAddPlayer(ctx context.Context, m *addPlayerMsg) {
	if !s.requireMaster() {
		return
	}
	if m.Name == "" {
		s.sendError(errInvalidPayload, "name is required")
		return
	}

	err := s.mutateState(ctx, func(st *room.State) error {
		if st.Phase != room.PhaseLobby {
			return game.ErrNotInPhase
		}
		st.Players = append(st.Players, room.Player{
			ID:     uuid.NewString(),
			Name:   m.Name,
			Active: true,
		})
		return nil
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}
	s.ack("add_player")
	s.broadcastState(ctx)
}

func (s *session) handleTogglePlayer(ctx context.Context, m *togglePlayerMsg) {
	if !s.requireMaster() {
		return
	}
	if m.PlayerID == "" {
		s.sendError(errInvalidPayload, "playerId is required")
		return
	}

	deactivated := false
	err := s.mutateState(ctx, func(st *room.State) error {
		if st.Phase != room.PhaseLobby {
			return game.ErrNotInPhase
		}
		p, found := st.Player(m.PlayerID)
		if !found {
			return errNoSuchPlayer
		}
		p.Active = !p.Active
		deactivated = !p.Active
		return nil
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}

	// A deactivated seat cannot stay claimed.
	if deactivated {
		if err := s.claims.ReleaseByPlayer(ctx, s.roomCode, m.PlayerID); err != nil {
			s.logger.Error("release after toggle failed", "room", s.roomCode, "player", m.PlayerID, "error", err)
		}
	}
	s.ack("toggle_player")
	s.broadcastState(ctx)
}

func (s *session) handleRemovePlayer(ctx context.Context, m *removePlayerMsg) {
	if !s.requireMaster() {
		return
	}
	if m.PlayerID == "" {
		s.sendError(errInvalidPayload, "playerId is required")
		return
	}

	err := s.mutateState(ctx, func(st *room.State) error {
		if st.Phase != room.PhaseLobby {
			return game.ErrNotInPhase
		}
		for i := range st.Players {
			if st.Players[i].ID == m.PlayerID {
				st.Players = append(st.Players[:i], st.Players[i+1:]...)
				return nil
			}
		}
		return errNoSuchPlayer
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}

	if err := s.claims.ReleaseByPlayer(ctx, s.roomCode, m.PlayerID); err != nil {
		s.logger.Error("release after remove failed", "room", s.roomCode, "player", m.PlayerID, "error", err)
	}
	s.ack("remove_player")
	s.broadcastState(ctx)
}

func (s *session) handleCommitSetup(ctx context.Context, m *commitSetupMsg) {
	if !s.requireMaster() {
		return
	}
	if m.Seed == "" || len(m.Senders) == 0 || len(m.Items) == 0 {
		s.sendError(errInvalidPayload, "seed, senders and items are required")
		return
	}

	rounds := game.BuildRounds(m.Seed, m.Senders, m.Items)
	if len(rounds) == 0 {
		s.sendError(errInvalidPayload, "no eligible items")
		return
	}

	err := s.hub.WithRoom(s.roomCode, func() error {
		st, err := s.repo.GetState(ctx, s.roomCode)
		if err != nil {
			return err
		}
		if st.Phase != room.PhaseLobby {
			return game.ErrNotInPhase
		}

		st.Senders = m.Senders
		seatSeeded := make(map[string]bool, len(st.Players))
		for _, p := range st.Players {
			if p.SenderID != "" {
				seatSeeded[p.SenderID] = true
			}
		}
		// One seat per active sender, on top of whatever the master
		// added by hand.
		for _, snd := range m.Senders {
			if snd.Active && !seatSeeded[snd.ID] {
				st.Players = append(st.Players, room.Player{
					ID:       uuid.NewString(),
					SenderID: snd.ID,
					Name:     snd.Name,
					Active:   true,
				})
			}
		}
		st.Setup = &room.Setup{Seed: m.Seed, Rounds: rounds}

		committed, err := s.repo.CommitSetupOnce(ctx, st, s.ttl)
		if err != nil {
			return err
		}
		if !committed {
			return errSetupLocked
		}
		return nil
	})
	if errors.Is(err, errSetupLocked) {
		s.sendError(errConflict, "setup already locked")
		return
	}
	if err != nil {
		s.sendDomainError(err)
		return
	}
	s.ack("commit_setup")
	s.broadcastState(ctx)
}

func (s *session) handleStartGame(ctx context.Context) {
	if !s.requireMaster() {
		return
	}
	err := s.mutateState(ctx, func(st *room.State) error {
		return game.Start(st)
	})
	if err != nil {
		s.sendDomainError(err)
		return
	}
	s.logger.Info("game started", "room", s.roomCode)
	s.ack("start_game")
	s.broadcastState(ctx)
}
