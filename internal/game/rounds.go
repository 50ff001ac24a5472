// Package game drives the round/item/vote/reveal progression. Round
// generation is deterministic: the same seed and the same sender/item
// inputs always yield byte-identical ordering, so any process can
// reconstruct a room's rounds without coordination.
package game

import (
	"hash/fnv"

	"github.com/reelparty/reelroom/internal/room"
)

// ItemInput is one imported media item before round assignment. An item
// sent by more than one sender is a multi-truth item.
type ItemInput struct {
	MediaRef      string   `json:"mediaRef"`
	TrueSenderIDs []string `json:"trueSenderIds"`
}

// source yields deterministic pseudo-random ints. The generator is
// swappable; what the ordering contract pins down is determinism per
// seed, not the algorithm.
type source interface {
	next(n int) int
}

type lcg struct {
	state uint64
}

func newLCG(seed string) *lcg {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return &lcg{state: h.Sum64()}
}

func (l *lcg) next(n int) int {
	l.state = l.state*6364136223846793005 + 1442695040888963407
	return int((l.state >> 33) % uint64(n))
}

// BuildRounds shuffles items with a seeded generator and packs them
// greedily into rounds, keeping each round's true-sender sets disjoint
// and allowing at most one multi-truth item per round. Items whose true
// senders are not all in the given sender set are dropped.
func BuildRounds(seed string, senders []room.Sender, items []ItemInput) []room.Round {
	known := make(map[string]bool, len(senders))
	for _, s := range senders {
		known[s.ID] = true
	}

	eligible := make([]ItemInput, 0, len(items))
	for _, it := range items {
		if len(it.TrueSenderIDs) == 0 {
			continue
		}
		ok := true
		for _, id := range it.TrueSenderIDs {
			if !known[id] {
				ok = false
				break
			}
		}
		if ok {
			eligible = append(eligible, it)
		}
	}

	var rng source = newLCG(seed)
	for i := len(eligible) - 1; i > 0; i-- {
		j := rng.next(i + 1)
		eligible[i], eligible[j] = eligible[j], eligible[i]
	}

	type roundAcc struct {
		items  []room.Item
		used   map[string]bool
		multis int
	}
	var acc []*roundAcc

next:
	for _, it := range eligible {
		for _, ra := range acc {
			if fits(ra.used, ra.multis, it) {
				place(ra.used, &ra.multis, &ra.items, it)
				continue next
			}
		}
		ra := &roundAcc{used: map[string]bool{}}
		place(ra.used, &ra.multis, &ra.items, it)
		acc = append(acc, ra)
	}

	rounds := make([]room.Round, len(acc))
	for i, ra := range acc {
		rounds[i] = room.Round{Items: ra.items}
	}
	return rounds
}

func fits(used map[string]bool, multis int, it ItemInput) bool {
	if len(it.TrueSenderIDs) > 1 && multis >= 1 {
		return false
	}
	for _, id := range it.TrueSenderIDs {
		if used[id] {
			return false
		}
	}
	return true
}

func place(used map[string]bool, multis *int, items *[]room.Item, it ItemInput) {
	for _, id := range it.TrueSenderIDs {
		used[id] = true
	}
	if len(it.TrueSenderIDs) > 1 {
		*multis++
	}
	k := len(it.TrueSenderIDs)
	if k < 1 {
		k = 1
	}
	*items = append(*items, room.Item{
		MediaRef:      it.MediaRef,
		K:             k,
		TrueSenderIDs: append([]string(nil), it.TrueSenderIDs...),
	})
}
