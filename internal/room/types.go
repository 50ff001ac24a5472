package room

import "time"

// Phase is the room-level lifecycle, forward-only.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseGame     Phase = "game"
	PhaseGameOver Phase = "game_over"
)

// Status is the in-game sub-state for the current focus item.
type Status string

const (
	StatusReveal     Status = "reveal"
	StatusVote       Status = "vote"
	StatusRevealWait Status = "reveal_wait"
	StatusRoundRecap Status = "round_recap"
)

// Meta is the small, auth-relevant record kept separate from State so
// the secret hash and expiry can be read without deserializing the
// larger state blob. Immutable after creation except TTL refresh.
type Meta struct {
	Code            string    `json:"code"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	MasterHash      string    `json:"masterHash"`
	ProtocolVersion int       `json:"protocolVersion"`
}

// Sender is a content-source identity copied into room state at setup
// time. Mutation after game start is forbidden.
type Sender struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	ReelCount int    `json:"reelCount"`
}

// Player is a claimable seat. Whether it is claimed lives solely in the
// claim registry; storing it here too would drift.
type Player struct {
	ID       string `json:"id"`
	SenderID string `json:"senderId,omitempty"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Avatar   string `json:"avatar,omitempty"`
}

// Item is one piece of media to vote on. K is the maximum selection
// size; TrueSenderIDs is the set a player must identify.
type Item struct {
	MediaRef      string   `json:"mediaRef"`
	K             int      `json:"k"`
	TrueSenderIDs []string `json:"trueSenderIds"`
	Opened        bool     `json:"opened"`
	Resolved      bool     `json:"resolved"`
}

// Round is an ordered list of items.
type Round struct {
	Items []Item `json:"items"`
}

// Setup is the once-committed round/item/seed payload.
type Setup struct {
	Seed   string  `json:"seed"`
	Rounds []Round `json:"rounds"`
}

// Game tracks progression through the committed rounds. Senders and
// PlayerOrder are snapshotted from the lobby when the game starts;
// PlayerOrder is the stable tie-break for the final ranking.
type Game struct {
	RoundIndex  int            `json:"roundIndex"`
	ItemIndex   int            `json:"itemIndex"`
	Status      Status         `json:"status"`
	Senders     []Sender       `json:"senders"`
	PlayerOrder []string       `json:"playerOrder"`
	RoundScores map[string]int `json:"roundScores"`
}

// State is everything mutable about a room. It lives in the external
// store, never in process memory, so any server process can serve any
// room. Revision counts committed writes: every state write is a
// compare-and-swap against the revision it was loaded at, so two
// processes serving the same room cannot silently overwrite each
// other's mutations.
type State struct {
	Version  int                 `json:"version"`
	Revision int64               `json:"revision"`
	Code     string              `json:"code"`
	Phase    Phase               `json:"phase"`
	Senders  []Sender            `json:"senders"`
	Players  []Player            `json:"players"`
	Setup    *Setup              `json:"setup,omitempty"`
	Game     *Game               `json:"game,omitempty"`
	Votes    map[string][]string `json:"votes"`
	Scores   map[string]int      `json:"scores"`
}

// NewState returns the empty lobby state written alongside Meta at
// room-open time.
func NewState(code string) *State {
	return &State{
		Version: schemaVersion,
		Code:    code,
		Phase:   PhaseLobby,
		Votes:   map[string][]string{},
		Scores:  map[string]int{},
	}
}

// Player returns the player with the given id, if present.
func (s *State) Player(id string) (*Player, bool) {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i], true
		}
	}
	return nil, false
}

// Sender returns the sender with the given id, if present.
func (s *State) Sender(id string) (*Sender, bool) {
	for i := range s.Senders {
		if s.Senders[i].ID == id {
			return &s.Senders[i], true
		}
	}
	return nil, false
}

// FocusItem returns the current focus item, or nil outside the game
// phase.
func (s *State) FocusItem() *Item {
	if s.Game == nil || s.Setup == nil {
		return nil
	}
	g := s.Game
	if g.RoundIndex >= len(s.Setup.Rounds) {
		return nil
	}
	round := &s.Setup.Rounds[g.RoundIndex]
	if g.ItemIndex >= len(round.Items) {
		return nil
	}
	return &round.Items[g.ItemIndex]
}
