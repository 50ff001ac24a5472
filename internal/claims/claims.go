// Package claims owns the exclusive device↔player binding for a room.
// The binding is kept as two hash tables so either direction is an O(1)
// lookup; claim and release run as single store-side scripts so the
// invariant deviceToPlayer[d] == p ⇔ playerToDevice[p] == d holds even
// when two devices race for the same seat.
package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelparty/reelroom/internal/store"
)

// Result is the typed outcome of a claim attempt. Failures are not
// errors; the caller turns them into a specific rejection message.
type Result string

const (
	OK             Result = "ok"
	PlayerNotFound Result = "player_not_found"
	Inactive       Result = "player_inactive"
	DeviceBound    Result = "device_already_has_player"
	TakenNow       Result = "taken_now"
)

// Existence and activity are checked before occupancy so a caller always
// learns the most precise reason. Re-claiming a seat the device already
// holds is a no-op OK.
var claimScript = redis.NewScript(`
if ARGV[3] ~= "1" then return "player_not_found" end
if ARGV[4] ~= "1" then return "player_inactive" end
local cur = redis.call("HGET", KEYS[1], ARGV[1])
if cur and cur ~= ARGV[2] then return "device_already_has_player" end
local holder = redis.call("HGET", KEYS[2], ARGV[2])
if holder and holder ~= ARGV[1] then return "taken_now" end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("HSET", KEYS[2], ARGV[2], ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("PEXPIRE", KEYS[2], ARGV[5])
return "ok"
`)

// KEYS[1] is the table holding the given id, KEYS[2] its counterpart.
// A miss is a silent no-op so release is idempotent.
var releaseScript = redis.NewScript(`
local other = redis.call("HGET", KEYS[1], ARGV[1])
if not other then return 0 end
redis.call("HDEL", KEYS[1], ARGV[1])
redis.call("HDEL", KEYS[2], other)
return 1
`)

type Registry struct {
	store store.Store
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

func deviceKey(code string) string { return "room:" + code + ":device_player" }
func playerKey(code string) string { return "room:" + code + ":player_device" }

// Keys returns the store keys backing a room's claim tables.
func Keys(code string) []string {
	return []string{deviceKey(code), playerKey(code)}
}

// Claim atomically binds deviceID to playerID. playerExists and
// playerActive come from the caller's view of room state and are
// evaluated inside the script so the outcome ordering is stable.
func (r *Registry) Claim(ctx context.Context, code, deviceID, playerID string, playerExists, playerActive bool, ttl time.Duration) (Result, error) {
	res, err := r.store.Eval(ctx, claimScript,
		[]string{deviceKey(code), playerKey(code)},
		deviceID, playerID, boolArg(playerExists), boolArg(playerActive), ttl.Milliseconds())
	if err != nil {
		// Fail closed: an ambiguous script outcome is treated as not claimed.
		return "", fmt.Errorf("claim script: %w", err)
	}
	s, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("claim script: unexpected result %T", res)
	}
	return Result(s), nil
}

// ReleaseByPlayer removes the binding holding playerID, if any.
func (r *Registry) ReleaseByPlayer(ctx context.Context, code, playerID string) error {
	_, err := r.store.Eval(ctx, releaseScript,
		[]string{playerKey(code), deviceKey(code)}, playerID)
	if err != nil {
		return fmt.Errorf("release by player: %w", err)
	}
	return nil
}

// ReleaseByDevice removes the binding held by deviceID, if any.
func (r *Registry) ReleaseByDevice(ctx context.Context, code, deviceID string) error {
	_, err := r.store.Eval(ctx, releaseScript,
		[]string{deviceKey(code), playerKey(code)}, deviceID)
	if err != nil {
		return fmt.Errorf("release by device: %w", err)
	}
	return nil
}

// PlayerFor is a display-only peek of the seat held by deviceID.
func (r *Registry) PlayerFor(ctx context.Context, code, deviceID string) (string, bool, error) {
	m, err := r.store.HGetAll(ctx, deviceKey(code))
	if err != nil {
		return "", false, err
	}
	p, ok := m[deviceID]
	return p, ok, nil
}

// DeviceFor is a display-only peek of the device holding playerID.
func (r *Registry) DeviceFor(ctx context.Context, code, playerID string) (string, bool, error) {
	m, err := r.store.HGetAll(ctx, playerKey(code))
	if err != nil {
		return "", false, err
	}
	d, ok := m[playerID]
	return d, ok, nil
}

// All returns the player→device table as of this read. Callers gating
// a decision on it should take the read as close to the guarded write
// as possible.
func (r *Registry) All(ctx context.Context, code string) (map[string]string, error) {
	return r.store.HGetAll(ctx, playerKey(code))
}

// Touch refreshes both claim tables in lockstep with the room TTL.
func (r *Registry) Touch(ctx context.Context, code string, ttl time.Duration) error {
	return r.store.Expire(ctx, ttl, deviceKey(code), playerKey(code))
}

// DeleteAll drops both tables, used on explicit room close or reset so
// deliberate resets never leave orphaned bindings behind.
func (r *Registry) DeleteAll(ctx context.Context, code string) error {
	return r.store.Delete(ctx, deviceKey(code), playerKey(code))
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
