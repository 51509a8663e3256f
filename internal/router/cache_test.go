package router

import (
	"testing"
	"time"

	"github.com/af-corp/helmsman/internal/types"
)

func TestFingerprint_Normalization(t *testing.T) {
	a := fingerprint(types.ClassCode, types.Constraints{
		RequiredCapabilities: []types.Capability{types.CapVision, types.CapCode},
	}, 3)
	b := fingerprint(types.ClassCode, types.Constraints{
		RequiredCapabilities: []types.Capability{types.CapCode, types.CapVision},
	}, 3)
	if a != b {
		t.Errorf("capability order should not change fingerprint: %q vs %q", a, b)
	}
}

func TestFingerprint_Discriminates(t *testing.T) {
	base := types.Constraints{MaxCostUSD: 0.5}
	ref := fingerprint(types.ClassCode, base, 1)

	variants := []string{
		fingerprint(types.ClassFactual, base, 1),
		fingerprint(types.ClassCode, types.Constraints{MaxCostUSD: 0.6}, 1),
		fingerprint(types.ClassCode, types.Constraints{MaxCostUSD: 0.5, MaxLatency: time.Second}, 1),
		fingerprint(types.ClassCode, types.Constraints{MaxCostUSD: 0.5, RequiredCapabilities: []types.Capability{types.CapVision}}, 1),
		fingerprint(types.ClassCode, base, 2),
	}
	for i, v := range variants {
		if v == ref {
			t.Errorf("variant %d should produce a distinct fingerprint", i)
		}
	}
}

func TestFingerprint_IgnoresForceFresh(t *testing.T) {
	a := fingerprint(types.ClassGeneral, types.Constraints{ForceFresh: true}, 1)
	b := fingerprint(types.ClassGeneral, types.Constraints{}, 1)
	if a != b {
		t.Error("force_fresh is a cache bypass, not part of the key")
	}
}

func TestDecisionCache_PutGet(t *testing.T) {
	c := newDecisionCache(time.Minute, 10, nil)

	d := types.RoutingDecision{PrimaryModel: "m"}
	c.put("k", d)

	got, ok := c.get("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.PrimaryModel != "m" {
		t.Errorf("got primary %s, want m", got.PrimaryModel)
	}

	if _, ok := c.get("other"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestDecisionCache_TTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := newDecisionCache(time.Minute, 10, clock)

	c.put("k", types.RoutingDecision{PrimaryModel: "m"})
	if _, ok := c.get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(time.Minute + time.Second)
	if _, ok := c.get("k"); ok {
		t.Error("expected miss after TTL expiry")
	}
	if c.len() != 0 {
		t.Errorf("expired entry should be dropped on read, len = %d", c.len())
	}
}

func TestDecisionCache_BoundedSize(t *testing.T) {
	c := newDecisionCache(time.Minute, 3, nil)

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		c.put(k, types.RoutingDecision{PrimaryModel: k})
	}
	if got := c.len(); got > 3 {
		t.Errorf("cache exceeded bound: len = %d", got)
	}
}

func TestDecisionCache_EvictsExpiredFirst(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := newDecisionCache(time.Minute, 2, clock)

	c.put("old", types.RoutingDecision{PrimaryModel: "old"})
	now = now.Add(2 * time.Minute)
	c.put("fresh", types.RoutingDecision{PrimaryModel: "fresh"})
	c.put("newer", types.RoutingDecision{PrimaryModel: "newer"})

	if _, ok := c.get("fresh"); !ok {
		t.Error("live entry should survive eviction of expired entry")
	}
	if _, ok := c.get("newer"); !ok {
		t.Error("newest entry should be present")
	}
}
