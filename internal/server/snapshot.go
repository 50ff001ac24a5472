package server

import (
	"github.com/reelparty/reelroom/internal/room"
)

// Snapshot is the role-scoped rendering of room state pushed to every
// connection after a mutation. Master connections see full player and
// sender records, including claim ownership, for moderation. Play
// connections see only what they need to render choices plus their own
// resolved seat — a play client must never learn another device's
// identity.
type Snapshot struct {
	RoomCode     string            `json:"roomCode"`
	Phase        room.Phase        `json:"phase"`
	Players      []PlayerView      `json:"players"`
	Senders      []SenderView      `json:"senders"`
	YourPlayerID string            `json:"yourPlayerId,omitempty"`
	Game         *GameView         `json:"game,omitempty"`
	Scores       map[string]int    `json:"scores"`
	Claims       map[string]string `json:"claims,omitempty"`
}

type PlayerView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Avatar   string `json:"avatar,omitempty"`
	Claimed  bool   `json:"claimed"`
	SenderID string `json:"senderId,omitempty"`
}

type SenderView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	ReelCount int    `json:"reelCount,omitempty"`
}

type GameView struct {
	RoundIndex int         `json:"roundIndex"`
	ItemIndex  int         `json:"itemIndex"`
	RoundCount int         `json:"roundCount"`
	ItemCount  int         `json:"itemCount"`
	Status     room.Status `json:"status"`
	Item       *ItemView   `json:"item,omitempty"`
}

type ItemView struct {
	MediaRef      string   `json:"mediaRef,omitempty"`
	K             int      `json:"k"`
	Opened        bool     `json:"opened"`
	Resolved      bool     `json:"resolved"`
	TrueSenderIDs []string `json:"trueSenderIds,omitempty"`
}

// buildSnapshot renders st for one connection. claimed is the
// player→device table from the claim registry; deviceID identifies the
// receiving connection.
func buildSnapshot(st *room.State, claimed map[string]string, isMaster bool, deviceID string) *Snapshot {
	snap := &Snapshot{
		RoomCode: st.Code,
		Phase:    st.Phase,
		Players:  make([]PlayerView, 0, len(st.Players)),
		Senders:  make([]SenderView, 0, len(st.Senders)),
		Scores:   st.Scores,
	}

	for _, p := range st.Players {
		pv := PlayerView{
			ID:      p.ID,
			Name:    p.Name,
			Active:  p.Active,
			Avatar:  p.Avatar,
			Claimed: claimed[p.ID] != "",
		}
		if isMaster {
			pv.SenderID = p.SenderID
		}
		if claimed[p.ID] == deviceID {
			snap.YourPlayerID = p.ID
		}
		snap.Players = append(snap.Players, pv)
	}

	senders := st.Senders
	if st.Game != nil {
		senders = st.Game.Senders
	}
	for _, s := range senders {
		sv := SenderView{ID: s.ID, Name: s.Name, Active: s.Active}
		if isMaster {
			sv.ReelCount = s.ReelCount
		}
		snap.Senders = append(snap.Senders, sv)
	}

	if isMaster {
		snap.Claims = claimed
	}

	if st.Phase == room.PhaseGame && st.Game != nil && st.Setup != nil {
		g := st.Game
		gv := &GameView{
			RoundIndex: g.RoundIndex,
			ItemIndex:  g.ItemIndex,
			RoundCount: len(st.Setup.Rounds),
			Status:     g.Status,
		}
		if g.RoundIndex < len(st.Setup.Rounds) {
			gv.ItemCount = len(st.Setup.Rounds[g.RoundIndex].Items)
		}
		if item := st.FocusItem(); item != nil {
			iv := &ItemView{
				K:        item.K,
				Opened:   item.Opened,
				Resolved: item.Resolved,
			}
			// The media reference stays hidden until the master opens
			// the item; the truth set stays hidden until it resolves.
			if item.Opened {
				iv.MediaRef = item.MediaRef
			}
			if item.Resolved {
				iv.TrueSenderIDs = item.TrueSenderIDs
			}
			gv.Item = iv
		}
		snap.Game = gv
	}

	return snap
}
