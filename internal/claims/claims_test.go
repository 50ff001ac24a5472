package claims

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/reelparty/reelroom/internal/store"
)

const (
	testRoom = "R1"
	testTTL  = time.Hour
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRegistry(store.NewRedis(client)), mr
}

func mustClaim(t *testing.T, reg *Registry, device, player string) {
	t.Helper()
	res, err := reg.Claim(context.Background(), testRoom, device, player, true, true, testTTL)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res != OK {
		t.Fatalf("claim = %v, want OK", res)
	}
}

func TestClaimOutcomeOrdering(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	// Existence is checked before everything else, activity next, so
	// the caller always learns the most precise reason.
	res, err := reg.Claim(ctx, testRoom, "A", "P1", false, false, testTTL)
	if err != nil || res != PlayerNotFound {
		t.Fatalf("claim missing player = %v, %v; want PlayerNotFound", res, err)
	}

	res, err = reg.Claim(ctx, testRoom, "A", "P1", true, false, testTTL)
	if err != nil || res != Inactive {
		t.Fatalf("claim inactive player = %v, %v; want Inactive", res, err)
	}

	mustClaim(t, reg, "A", "P1")

	// A holds P1: a second seat for A is refused before occupancy is
	// even looked at.
	res, err = reg.Claim(ctx, testRoom, "A", "P2", true, true, testTTL)
	if err != nil || res != DeviceBound {
		t.Fatalf("second claim by same device = %v, %v; want DeviceBound", res, err)
	}

	res, err = reg.Claim(ctx, testRoom, "B", "P1", true, true, testTTL)
	if err != nil || res != TakenNow {
		t.Fatalf("claim of held player = %v, %v; want TakenNow", res, err)
	}

	// Re-claiming one's own seat is a no-op OK.
	mustClaim(t, reg, "A", "P1")
}

func TestClaimRace(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	const devices = 8
	results := make([]Result, devices)

	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := reg.Claim(ctx, testRoom, string(rune('A'+i)), "P1", true, true, testTTL)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			results[i] = res
		}()
	}
	wg.Wait()

	oks, taken := 0, 0
	for _, res := range results {
		switch res {
		case OK:
			oks++
		case TakenNow:
			taken++
		}
	}
	if oks != 1 {
		t.Errorf("OK count = %d, want exactly 1 (results %v)", oks, results)
	}
	if taken != devices-1 {
		t.Errorf("TakenNow count = %d, want %d", taken, devices-1)
	}
}

func TestBidirectionalInvariant(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	mustClaim(t, reg, "A", "P1")
	mustClaim(t, reg, "B", "P2")

	p, ok, err := reg.PlayerFor(ctx, testRoom, "A")
	if err != nil || !ok || p != "P1" {
		t.Fatalf("PlayerFor(A) = %q, %v, %v", p, ok, err)
	}
	d, ok, err := reg.DeviceFor(ctx, testRoom, "P1")
	if err != nil || !ok || d != "A" {
		t.Fatalf("DeviceFor(P1) = %q, %v, %v", d, ok, err)
	}

	all, err := reg.All(ctx, testRoom)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all["P1"] != "A" || all["P2"] != "B" {
		t.Errorf("All = %v", all)
	}
}

func TestReleaseByPlayer(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	mustClaim(t, reg, "A", "P1")

	if err := reg.ReleaseByPlayer(ctx, testRoom, "P1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Both directions gone.
	if _, ok, _ := reg.PlayerFor(ctx, testRoom, "A"); ok {
		t.Error("device entry survived release")
	}
	if _, ok, _ := reg.DeviceFor(ctx, testRoom, "P1"); ok {
		t.Error("player entry survived release")
	}

	// Idempotent: a second release is a silent no-op.
	if err := reg.ReleaseByPlayer(ctx, testRoom, "P1"); err != nil {
		t.Fatalf("repeat release: %v", err)
	}

	// The seat is claimable again.
	mustClaim(t, reg, "B", "P1")
}

func TestReleaseByDevice(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	mustClaim(t, reg, "A", "P1")

	if err := reg.ReleaseByDevice(ctx, testRoom, "A"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := reg.DeviceFor(ctx, testRoom, "P1"); ok {
		t.Error("player entry survived release")
	}
	if err := reg.ReleaseByDevice(ctx, testRoom, "A"); err != nil {
		t.Fatalf("repeat release: %v", err)
	}
}

func TestTouchAndDeleteAll(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	mustClaim(t, reg, "A", "P1")

	if err := reg.Touch(ctx, testRoom, 2*time.Hour); err != nil {
		t.Fatalf("touch: %v", err)
	}
	for _, key := range Keys(testRoom) {
		if ttl := mr.TTL(key); ttl != 2*time.Hour {
			t.Errorf("ttl(%s) = %v, want 2h", key, ttl)
		}
	}

	if err := reg.DeleteAll(ctx, testRoom); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	all, err := reg.All(ctx, testRoom)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("claims after delete = %v, want none", all)
	}
}
