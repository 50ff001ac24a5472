package server

import (
	"encoding/json"
	"fmt"

	"github.com/reelparty/reelroom/internal/game"
	"github.com/reelparty/reelroom/internal/room"
)

// ProtocolVersion must match exactly on join; mismatches are rejected,
// not negotiated.
const ProtocolVersion = 2

// Wire error codes form a closed enumeration so clients can present an
// exact reason for every refusal.
type errCode string

const (
	errRoomNotFound    errCode = "room_not_found"
	errInvalidProtocol errCode = "invalid_protocol_version"
	errForbidden       errCode = "forbidden"
	errPlayerNotFound  errCode = "player_not_found"
	errPlayerInactive  errCode = "player_inactive"
	errPlayerTaken     errCode = "player_taken"
	errVoteClosed      errCode = "vote_closed"
	errAlreadyVoted    errCode = "already_voted"
	errNotMaster       errCode = "not_master"
	errNotInPhase      errCode = "not_in_phase"
	errConflict        errCode = "conflict"
	errInvalidPayload  errCode = "invalid_payload"
	errInternal        errCode = "internal_error"
	errRoomExpired     errCode = "room_expired"
)

// envelope is the outer shape of every frame in both directions.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// clientMsg is the closed set of inbound messages. Exactly one concrete
// type exists per wire type tag; decodeClientMsg is the only producer.
type clientMsg interface {
	isClientMsg()
}

type joinMsg struct {
	RoomCode        string `json:"roomCode"`
	DeviceID        string `json:"deviceId"`
	ProtocolVersion int    `json:"protocolVersion"`
	MasterSecret    string `json:"masterSecret,omitempty"`
}

type claimMsg struct {
	PlayerID string `json:"playerId"`
}

type releaseMsg struct{}

type renameMsg struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type setAvatarMsg struct {
	PlayerID string `json:"playerId"`
	Avatar   string `json:"avatar"`
}

type addPlayerMsg struct {
	Name string `json:"name"`
}

type togglePlayerMsg struct {
	PlayerID string `json:"playerId"`
}

type removePlayerMsg struct {
	PlayerID string `json:"playerId"`
}

type commitSetupMsg struct {
	Seed    string           `json:"seed"`
	Senders []room.Sender    `json:"senders"`
	Items   []game.ItemInput `json:"items"`
}

type startGameMsg struct{}

type openItemMsg struct{}

type startVoteMsg struct{}

type voteMsg struct {
	SenderIDs []string `json:"senderIds"`
}

type closeVoteMsg struct{}

type advanceMsg struct{}

func (joinMsg) isClientMsg()         {}
func (claimMsg) isClientMsg()        {}
func (releaseMsg) isClientMsg()      {}
func (renameMsg) isClientMsg()       {}
func (setAvatarMsg) isClientMsg()    {}
func (addPlayerMsg) isClientMsg()    {}
func (togglePlayerMsg) isClientMsg() {}
func (removePlayerMsg) isClientMsg() {}
func (commitSetupMsg) isClientMsg()  {}
func (startGameMsg) isClientMsg()    {}
func (openItemMsg) isClientMsg()     {}
func (startVoteMsg) isClientMsg()    {}
func (voteMsg) isClientMsg()         {}
func (closeVoteMsg) isClientMsg()    {}
func (advanceMsg) isClientMsg()      {}

var errUnknownType = fmt.Errorf("unknown message type")

func decodeClientMsg(data []byte) (clientMsg, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	var msg clientMsg
	switch env.Type {
	case "join":
		msg = &joinMsg{}
	case "claim":
		msg = &claimMsg{}
	case "release":
		msg = &releaseMsg{}
	case "rename":
		msg = &renameMsg{}
	case "set_avatar":
		msg = &setAvatarMsg{}
	case "add_player":
		msg = &addPlayerMsg{}
	case "toggle_player":
		msg = &togglePlayerMsg{}
	case "remove_player":
		msg = &removePlayerMsg{}
	case "commit_setup":
		msg = &commitSetupMsg{}
	case "start_game":
		msg = &startGameMsg{}
	case "open_item":
		msg = &openItemMsg{}
	case "start_vote":
		msg = &startVoteMsg{}
	case "vote":
		msg = &voteMsg{}
	case "close_vote":
		msg = &closeVoteMsg{}
	case "advance":
		msg = &advanceMsg{}
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownType, env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
		}
	}
	return msg, nil
}

// Server→client payloads.

type joinedPayload struct {
	RoomCode        string     `json:"roomCode"`
	Phase           room.Phase `json:"phase"`
	ProtocolVersion int        `json:"protocolVersion"`
	Role            string     `json:"role"`
}

type errorPayload struct {
	Code   errCode `json:"code"`
	Detail string  `json:"detail,omitempty"`
}

type ackPayload struct {
	Of string `json:"of"`
}

type itemResultPayload struct {
	TrueSenderIDs []string            `json:"trueSenderIds"`
	Results       []game.PlayerResult `json:"results"`
}

type roundRecapPayload struct {
	RoundIndex int               `json:"roundIndex"`
	Entries    []game.RecapEntry `json:"entries"`
}

type gameOverPayload struct {
	Ranking []game.RecapEntry `json:"ranking"`
}

func encodeServerMsg(typ string, data any) []byte {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	out, _ := json.Marshal(envelope{Type: typ, Data: raw})
	return out
}
