package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
	"nhooyr.io/websocket"

	"github.com/reelparty/reelroom/internal/claims"
	"github.com/reelparty/reelroom/internal/game"
	"github.com/reelparty/reelroom/internal/room"
)

var errNoSuchPlayer = errors.New("no such player")

type wsDeps struct {
	logger *slog.Logger
	repo   *room.Repository
	claims *claims.Registry
	hub    *Hub
	ttl    time.Duration
}

func handleWS(d wsDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			d.logger.Error("websocket accept failed", "error", err)
			return
		}
		s := &session{wsDeps: d, conn: conn, out: make(chan []byte, 16)}
		s.run(r.Context())
	}
}

// session is the per-connection protocol state machine: UNJOINED until
// a valid join, then JOINED with a room, a device id and a role.
type session struct {
	wsDeps
	conn *websocket.Conn
	out  chan []byte

	joined   bool
	roomCode string
	deviceID string
	master   bool
}

func (s *session) run(ctx context.Context) {
	defer s.conn.CloseNow()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.writeLoop(ctx)

	defer func() {
		if s.joined {
			s.hub.Unregister(s.roomCode, s)
		}
	}()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.logger.Debug("websocket read ended", "error", err)
			return
		}
		s.dispatch(ctx, data)
	}
}

func (s *session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-s.out:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// send queues a frame for this connection. A full buffer means the
// socket is slow or dead; the frame is dropped rather than blocking
// delivery to anyone else.
func (s *session) send(typ string, data any) {
	select {
	case s.out <- encodeServerMsg(typ, data):
	default:
	}
}

func (s *session) sendError(code errCode, detail string) {
	s.send("error", errorPayload{Code: code, Detail: detail})
}

func (s *session) ack(of string) {
	s.send("ack", ackPayload{Of: of})
}

func (s *session) dispatch(ctx context.Context, data []byte) {
	msg, err := decodeClientMsg(data)
	if err != nil {
		s.sendError(errInvalidPayload, err.Error())
		return
	}

	if !s.joined {
		j, ok := msg.(*joinMsg)
		if !ok {
			s.sendError(errForbidden, "join required")
			return
		}
		s.handleJoin(ctx, j)
		return
	}

	// The room's TTL may have lapsed since the last message; every
	// action re-validates and refreshes it.
	st, err := s.repo.GetState(ctx, s.roomCode)
	if errors.Is(err, room.ErrNotFound) {
		s.sendError(errRoomExpired, "")
		return
	}
	if err != nil {
		s.logger.Error("loading room state", "room", s.roomCode, "error", err)
		s.sendError(errInternal, "")
		return
	}
	if err := s.repo.TouchAll(ctx, s.roomCode, s.ttl); err != nil {
		s.logger.Warn("touching room", "room", s.roomCode, "error", err)
	}

	switch m := msg.(type) {
	case *joinMsg:
		s.sendError(errConflict, "already joined")
	case *claimMsg:
		s.handleClaim(ctx, st, m)
	case *releaseMsg:
		s.handleRelease(ctx)
	case *renameMsg:
		s.handleRename(ctx, m)
	case *setAvatarMsg:
		s.handleSetAvatar(ctx, m)
	case *addPlayerMsg:
		s.handleAddPlayer(ctx, m)
	case *togglePlayerMsg:
		s.handleTogglePlayer(ctx, m)
	case *removePlayerMsg:
		s.handleRemovePlayer(ctx, m)
	case *commitSetupMsg:
		s.handleCommitSetup(ctx, m)
	case *startGameMsg:
		s.handleStartGame(ctx)
	case *openItemMsg:
		s.handleOpenItem(ctx)
	case *startVoteMsg:
		s.handleStartVote(ctx)
	case *voteMsg:
		s.handleVote(ctx, m)
	case *closeVoteMsg:
		s.handleCloseVote(ctx)
	case *advanceMsg:
		s.handleAdvance(ctx)
	}
}

func (s *session) handleJoin(ctx context.Context, m *joinMsg) {
	if m.RoomCode == "" || m.DeviceID == "" {
		s.sendError(errInvalidPayload, "roomCode and deviceId are required")
		return
	}
	if m.ProtocolVersion != ProtocolVersion {
		s.sendError(errInvalidProtocol, "")
		return
	}

	meta, err := s.repo.GetMeta(ctx, m.RoomCode)
	if errors.Is(err, room.ErrNotFound) {
		s.sendError(errRoomNotFound, "")
		return
	}
	if err != nil {
		s.logger.Error("loading room meta", "room", m.RoomCode, "error", err)
		s.sendError(errInternal, "")
		return
	}
	if meta.ProtocolVersion != m.ProtocolVersion {
		s.sendError(errInvalidProtocol, "")
		return
	}

	// A wrong secret is a hard rejection, never a silent downgrade to
	// the play role.
	if m.MasterSecret != "" {
		if bcrypt.CompareHashAndPassword([]byte(meta.MasterHash), []byte(m.MasterSecret)) != nil {
			s.sendError(errForbidden, "")
			return
		}
		s.master = true
	}

	s.joined = true
	s.roomCode = m.RoomCode
	s.deviceID = m.DeviceID

	if err := s.repo.TouchAll(ctx, s.roomCode, s.ttl); err != nil {
		s.logger.Warn("touching room", "room", s.roomCode, "error", err)
	}
	s.hub.Register(s.roomCode, s)

	st, err := s.repo.GetState(ctx, s.roomCode)
	if err != nil {
		s.logger.Error("loading room state", "room", s.roomCode, "error", err)
		s.sendError(errInternal, "")
		return
	}

	role := "play"
	if s.master {
		role = "master"
	}
	s.logger.Info("session joined", "room", s.roomCode, "device", s.deviceID, "role", role)

	s.send("joined", joinedPayload{
		RoomCode:        s.roomCode,
		Phase:           st.Phase,
		ProtocolVersion: ProtocolVersion,
		Role:            role,
	})

	claimed, err := s.claims.All(ctx, s.roomCode)
	if err != nil {
		claimed = map[string]string{}
	}
	s.send("state", buildSnapshot(st, claimed, s.master, s.deviceID))
}

// mutateState applies fn to the freshly loaded state and writes the
// result back, preserving TTL. An error from fn aborts the write. The
// write is a compare-and-swap on the state revision; a lost race means
// another process mutated the room first, so the load+fn+write cycle is
// replayed against the fresh state. fn must therefore be safe to rerun.
// The room's in-process lock keeps sessions in this process from
// burning retries against each other.
func (s *session) mutateState(ctx context.Context, fn func(st *room.State) error) error {
	return s.hub.WithRoom(s.roomCode, func() error {
		for attempt := 0; attempt < 5; attempt++ {
			st, err := s.repo.GetState(ctx, s.roomCode)
			if err != nil {
				return err
			}
			if err := fn(st); err != nil {
				return err
			}
			err = s.repo.SetState(ctx, st)
			if !errors.Is(err, room.ErrStaleState) {
				return err
			}
		}
		return room.ErrStaleState
	})
}

// broadcastState loads state and claims once and pushes the matching
// snapshot variant to every connection registered to the room.
func (s *session) broadcastState(ctx context.Context) {
	st, err := s.repo.GetState(ctx, s.roomCode)
	if err != nil {
		s.logger.Error("loading room state for broadcast", "room", s.roomCode, "error", err)
		return
	}
	claimed, err := s.claims.All(ctx, s.roomCode)
	if err != nil {
		claimed = map[string]string{}
	}
	s.hub.Each(s.roomCode, func(peer *session) {
		peer.send("state", buildSnapshot(st, claimed, peer.master, peer.deviceID))
	})
}

func (s *session) broadcast(typ string, data any) {
	s.hub.Each(s.roomCode, func(peer *session) {
		peer.send(typ, data)
	})
}

func (s *session) requireMaster() bool {
	if !s.master {
		s.sendError(errNotMaster, "")
		return false
	}
	return true
}

// sendDomainError maps an error out of a state mutation onto the wire
// error enumeration.
func (s *session) sendDomainError(err error) {
	switch {
	case errors.Is(err, room.ErrNotFound):
		s.sendError(errRoomExpired, "")
	case errors.Is(err, room.ErrStaleState):
		s.sendError(errConflict, "concurrent update, retry")
	case errors.Is(err, errNoSeat):
		s.sendError(errForbidden, "no claimed seat")
	case errors.Is(err, game.ErrNotInPhase):
		s.sendError(errNotInPhase, "")
	case errors.Is(err, game.ErrNoSetup):
		s.sendError(errConflict, "setup not committed")
	case errors.Is(err, game.ErrConflict), errors.Is(err, game.ErrNoFocusItem):
		s.sendError(errConflict, "")
	case errors.Is(err, errNoSuchPlayer):
		s.sendError(errPlayerNotFound, "")
	default:
		s.logger.Error("state mutation failed", "room", s.roomCode, "error", err)
		s.sendError(errInternal, "")
	}
}
