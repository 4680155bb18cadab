// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"testing"
	"time"
)

func TestSessionRegistryResolve(t *testing.T) {
	clock := time.Unix(0, 0)
	registry := NewSessionRegistry(1*time.Hour, func() time.Time { return clock })

	sess := NewSession("token-1", "alice", clock, nil)
	registry.Insert(sess)

	resolved, rerr := registry.Resolve("token-1")
	if rerr != nil {
		t.Fatalf("unexpected error: %s", rerr.Error())
	}
	if resolved != sess {
		t.Error("Resolve did not return the inserted session")
	}

	// an empty token never resolves
	_, rerr = registry.Resolve("")
	if rerr == nil || rerr.Code != ErrUnauthenticated {
		t.Errorf("expected UNAUTHENTICATED for empty token, got %#v", rerr)
	}

	// an unknown token never resolves
	_, rerr = registry.Resolve("token-2")
	if rerr == nil || rerr.Code != ErrUnauthenticated {
		t.Errorf("expected UNAUTHENTICATED for unknown token, got %#v", rerr)
	}
}

func TestSessionRegistryExpiry(t *testing.T) {
	clock := time.Unix(0, 0)
	registry := NewSessionRegistry(1*time.Hour, func() time.Time { return clock })

	registry.Insert(NewSession("token-1", "alice", clock, nil))

	// resolving within the timeout refreshes the idle deadline
	clock = clock.Add(45 * time.Minute)
	_, rerr := registry.Resolve("token-1")
	if rerr != nil {
		t.Fatalf("unexpected error: %s", rerr.Error())
	}
	clock = clock.Add(45 * time.Minute)
	_, rerr = registry.Resolve("token-1")
	if rerr != nil {
		t.Fatalf("session expired although it was refreshed: %s", rerr.Error())
	}

	// without refreshes, the session expires
	clock = clock.Add(61 * time.Minute)
	_, rerr = registry.Resolve("token-1")
	if rerr == nil || rerr.Code != ErrUnauthenticated {
		t.Errorf("expected UNAUTHENTICATED for expired session, got %#v", rerr)
	}
	if registry.Count() != 0 {
		t.Errorf("expected expired session to be removed, have %d sessions", registry.Count())
	}
}

func TestSessionRegistrySweep(t *testing.T) {
	clock := time.Unix(0, 0)
	registry := NewSessionRegistry(1*time.Hour, func() time.Time { return clock })

	registry.Insert(NewSession("token-1", "alice", clock, nil))
	clock = clock.Add(30 * time.Minute)
	registry.Insert(NewSession("token-2", "bob", clock, nil))

	// only token-1 has passed its idle deadline
	clock = clock.Add(45 * time.Minute)
	if removed := registry.Sweep(); removed != 1 {
		t.Errorf("expected 1 removed session, got %d", removed)
	}
	if registry.Count() != 1 {
		t.Errorf("expected 1 live session, got %d", registry.Count())
	}
	if _, rerr := registry.Resolve("token-2"); rerr != nil {
		t.Errorf("token-2 should have survived the sweep: %s", rerr.Error())
	}
}

func TestSessionRegistryRemove(t *testing.T) {
	registry := NewSessionRegistry(1*time.Hour, nil)
	registry.Insert(NewSession("token-1", "alice", time.Unix(0, 0), nil))

	if !registry.Remove("token-1") {
		t.Error("Remove should report true for a live session")
	}
	if registry.Remove("token-1") {
		t.Error("Remove should report false for a removed session")
	}
	if _, rerr := registry.Resolve("token-1"); rerr == nil {
		t.Error("removed session must not resolve")
	}
}

func TestSessionUserContexts(t *testing.T) {
	uc1 := &UserContext{ProviderID: "corp"}
	uc2 := &UserContext{ProviderID: "lab"}
	sess := NewSession("token-1", "alice", time.Unix(0, 0), []*UserContext{uc1, uc2})

	if sess.UserContext("corp") != uc1 {
		t.Error("wrong context for provider corp")
	}
	if sess.UserContext("lab") != uc2 {
		t.Error("wrong context for provider lab")
	}
	if sess.UserContext("other") != nil {
		t.Error("expected nil context for unknown provider")
	}
	if len(sess.ProviderIDs()) != 2 {
		t.Errorf("expected 2 provider IDs, got %v", sess.ProviderIDs())
	}
}
