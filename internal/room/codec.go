package room

import (
	"encoding/json"
	"fmt"
)

// schemaVersion is bumped whenever the stored State shape changes in a
// way decodeState has to compensate for.
const schemaVersion = 2

// decodeState is the single place older stored states are migrated
// forward. Version 1 states predate the vote and score maps; they are
// backfilled here rather than patched ad hoc by whoever loads them.
func decodeState(data []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding room state: %w", err)
	}
	if st.Version < schemaVersion {
		if st.Votes == nil {
			st.Votes = map[string][]string{}
		}
		if st.Scores == nil {
			st.Scores = map[string]int{}
		}
		if st.Game != nil && st.Game.RoundScores == nil {
			st.Game.RoundScores = map[string]int{}
		}
		st.Version = schemaVersion
	}
	return &st, nil
}

func encodeState(st *State) ([]byte, error) {
	st.Version = schemaVersion
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encoding room state: %w", err)
	}
	return data, nil
}
