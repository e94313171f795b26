package server

import (
	"net"
	"sync"
	"testing"
	"time"
)

func testAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Lookup("alice"); ok {
		t.Fatalf("Lookup on empty registry reported a session")
	}

	r.Register("alice", testAddr(4000), "general")
	sess, ok := r.Lookup("alice")
	if !ok {
		t.Fatalf("Lookup: session missing after Register")
	}
	if sess.Channel != "general" || sess.Addr.Port != 4000 {
		t.Errorf("Lookup: got %+v", sess)
	}
	if sess.LastHeartbeat.IsZero() {
		t.Errorf("Register did not set the heartbeat clock")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	r := NewRegistry()

	r.Register("alice", testAddr(4000), "general")
	r.Register("alice", testAddr(5000), "random")

	sess, ok := r.Lookup("alice")
	if !ok {
		t.Fatalf("Lookup: session missing")
	}
	if sess.Addr.Port != 5000 || sess.Channel != "random" {
		t.Errorf("second Register did not replace the mapping: %+v", sess)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRegistryUpdateChannel(t *testing.T) {
	r := NewRegistry()

	if r.UpdateChannel("ghost", "random") {
		t.Errorf("UpdateChannel reported success for unknown session")
	}

	r.Register("alice", testAddr(4000), "general")
	if !r.UpdateChannel("alice", "random") {
		t.Fatalf("UpdateChannel failed for active session")
	}
	sess, _ := r.Lookup("alice")
	if sess.Channel != "random" {
		t.Errorf("channel = %q, want %q", sess.Channel, "random")
	}
}

func TestRegistryHeartbeat(t *testing.T) {
	r := NewRegistry()

	at := time.Now().Add(time.Minute)
	if r.Heartbeat("ghost", at) {
		t.Errorf("Heartbeat reported success for unknown session")
	}

	r.Register("alice", testAddr(4000), "general")
	if !r.Heartbeat("alice", at) {
		t.Fatalf("Heartbeat failed for active session")
	}
	sess, _ := r.Lookup("alice")
	if !sess.LastHeartbeat.Equal(at) {
		t.Errorf("LastHeartbeat = %v, want %v", sess.LastHeartbeat, at)
	}
}

func TestRegistryEvict(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Register("stale", testAddr(4000), "general")
	r.Heartbeat("stale", now.Add(-time.Minute))
	r.Register("fresh", testAddr(4001), "general")
	r.Heartbeat("fresh", now)

	cutoff := now.Add(-30 * time.Second)

	evicted, ok := r.Evict("stale", cutoff)
	if !ok {
		t.Fatalf("Evict did not remove the stale session")
	}
	if evicted.Channel != "general" {
		t.Errorf("evicted session = %+v", evicted)
	}
	if _, ok := r.Lookup("stale"); ok {
		t.Errorf("stale session still present after Evict")
	}

	// A heartbeat newer than the cutoff keeps the session.
	if _, ok := r.Evict("fresh", cutoff); ok {
		t.Errorf("Evict removed a session with a fresh heartbeat")
	}
	if _, ok := r.Lookup("fresh"); !ok {
		t.Errorf("fresh session missing after refused Evict")
	}

	if _, ok := r.Evict("ghost", cutoff); ok {
		t.Errorf("Evict reported success for unknown session")
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", testAddr(4000), "general")

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot: got %d sessions, want 1", len(snap))
	}
	snap[0].Channel = "mutated"

	sess, _ := r.Lookup("alice")
	if sess.Channel != "general" {
		t.Errorf("mutating the snapshot leaked into the registry")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				r.Register(name, testAddr(4000+n), "general")
				r.Heartbeat(name, time.Now())
				r.Lookup(name)
				r.Snapshot()
				r.Evict(name, time.Now().Add(-time.Second))
				r.Remove(name)
			}
		}(i)
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("Count = %d after all removals, want 0", r.Count())
	}
}
