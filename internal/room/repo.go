// Package room owns room metadata and state in the external store. All
// mutations funnel through the Repository so the store stays the single
// source of truth across server processes.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelparty/reelroom/internal/claims"
	"github.com/reelparty/reelroom/internal/store"
)

// ErrNotFound is returned when a room is absent or its TTL has lapsed.
var ErrNotFound = errors.New("room: not found")

// ErrStaleState is returned when a state write loses to a concurrent
// write from another session or process. The caller reloads and
// reapplies its mutation.
var ErrStaleState = errors.New("room: stale state write")

var createScript = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// A missing key means the room was closed or lapsed between load and
// write-back; recreating it here would leave a state blob with no TTL.
// A revision mismatch means another writer got there first.
var setStateScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then return -1 end
if cjson.decode(cur)["revision"] ~= tonumber(ARGV[2]) then return 0 end
redis.call("SET", KEYS[1], ARGV[1], "KEEPTTL")
return 1
`)

// The lock key is what makes setup single-shot: once present, every
// later commit returns 0 without touching state.
var commitSetupScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then return 0 end
redis.call("SET", KEYS[1], "1", "PX", ARGV[2])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
return 1
`)

type Repository struct {
	store  store.Store
	claims *claims.Registry
}

func NewRepository(s store.Store, c *claims.Registry) *Repository {
	return &Repository{store: s, claims: c}
}

func metaKey(code string) string  { return "room:" + code + ":meta" }
func stateKey(code string) string { return "room:" + code + ":state" }
func lockKey(code string) string  { return "room:" + code + ":setup_lock" }

// Create writes meta and the initial state as one atomic unit with
// identical TTL.
func (r *Repository) Create(ctx context.Context, meta *Meta, st *State, ttl time.Duration) error {
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding room meta: %w", err)
	}
	stateData, err := encodeState(st)
	if err != nil {
		return err
	}
	_, err = r.store.Eval(ctx, createScript,
		[]string{metaKey(meta.Code), stateKey(meta.Code)},
		metaData, stateData, ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("creating room %s: %w", meta.Code, err)
	}
	return nil
}

func (r *Repository) GetMeta(ctx context.Context, code string) (*Meta, error) {
	data, err := r.store.Get(ctx, metaKey(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding room meta: %w", err)
	}
	return &meta, nil
}

func (r *Repository) GetState(ctx context.Context, code string) (*State, error) {
	data, err := r.store.Get(ctx, stateKey(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeState(data)
}

// SetState writes room state, preserving the remaining TTL. The write
// only lands if the stored revision still matches the one st was loaded
// at; on success st carries the new revision. ErrStaleState means a
// concurrent writer won and the caller must reload, ErrNotFound that
// the room no longer exists.
func (r *Repository) SetState(ctx context.Context, st *State) error {
	loaded := st.Revision
	st.Revision = loaded + 1
	data, err := encodeState(st)
	if err != nil {
		st.Revision = loaded
		return err
	}

	res, err := r.store.Eval(ctx, setStateScript,
		[]string{stateKey(st.Code)}, data, loaded)
	if err != nil {
		st.Revision = loaded
		return fmt.Errorf("writing state for %s: %w", st.Code, err)
	}
	n, ok := res.(int64)
	if !ok {
		st.Revision = loaded
		return fmt.Errorf("writing state for %s: unexpected result %T", st.Code, res)
	}
	switch n {
	case -1:
		st.Revision = loaded
		return ErrNotFound
	case 0:
		st.Revision = loaded
		return ErrStaleState
	}
	return nil
}

// CommitSetupOnce writes st only if no setup was ever committed for the
// room. Returns false, mutating nothing, when the lock is already held —
// including under concurrent duplicate submissions.
func (r *Repository) CommitSetupOnce(ctx context.Context, st *State, ttl time.Duration) (bool, error) {
	st.Revision++
	data, err := encodeState(st)
	if err != nil {
		st.Revision--
		return false, err
	}
	res, err := r.store.Eval(ctx, commitSetupScript,
		[]string{lockKey(st.Code), stateKey(st.Code)},
		data, ttl.Milliseconds())
	if err != nil {
		// Fail closed: treat an ambiguous script outcome as not committed.
		st.Revision--
		return false, fmt.Errorf("committing setup for %s: %w", st.Code, err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("committing setup for %s: unexpected result %T", st.Code, res)
	}
	if n != 1 {
		st.Revision--
		return false, nil
	}
	return true, nil
}

// Exists reports whether a room code is taken; used as the collision
// check at creation.
func (r *Repository) Exists(ctx context.Context, code string) (bool, error) {
	_, err := r.GetMeta(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TouchAll refreshes every key of the room as one unit: metadata,
// state, setup lock and both claim tables. Called on session activity
// so an idle-but-alive room does not expire mid-game.
func (r *Repository) TouchAll(ctx context.Context, code string, ttl time.Duration) error {
	if err := r.store.Expire(ctx, ttl, metaKey(code), stateKey(code), lockKey(code)); err != nil {
		return fmt.Errorf("touching room %s: %w", code, err)
	}
	return r.claims.Touch(ctx, code, ttl)
}

// DeleteAll removes every key associated with the room, claims
// included. Used on explicit close or reset.
func (r *Repository) DeleteAll(ctx context.Context, code string) error {
	if err := r.store.Delete(ctx, metaKey(code), stateKey(code), lockKey(code)); err != nil {
		return fmt.Errorf("deleting room %s: %w", code, err)
	}
	return r.claims.DeleteAll(ctx, code)
}
