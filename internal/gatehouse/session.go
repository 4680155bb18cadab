// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"sync"
	"time"
)

// UserContext is the per-provider view of an authenticated session: the
// user's identity and grants as declared by that provider, plus the
// provider's connection directory bound to that user. It is assembled once
// when the session is established and read-only afterwards; all mutations go
// through the directory.
type UserContext struct {
	ProviderID  string
	Identity    UserIdentity
	Connections ConnectionDirectory
	// ConnectionPermissions is Connections.Permissions(), cached at assembly
	// time. This is the set that gates parameter reads.
	ConnectionPermissions ObjectPermissionSet
}

// NewUserContext assembles the UserContext for the given provider scope.
func NewUserContext(providerID string, uid UserIdentity, dd DirectoryDriver) *UserContext {
	dir := dd.Connections(providerID, uid)
	return &UserContext{
		ProviderID:            providerID,
		Identity:              uid,
		Connections:           dir,
		ConnectionPermissions: dir.Permissions(),
	}
}

// Self returns the authenticated user as seen by this provider.
func (uc *UserContext) Self() User {
	return User{Name: uc.Identity.UserName()}
}

// Session is the aggregate of one UserContext per identity provider that the
// authenticated principal is simultaneously authenticated against. Sessions
// are shared, read-mostly state: every request bearing the same token
// resolves to the same instance for the session's lifetime.
type Session struct {
	Token     string
	UserName  string
	CreatedAt time.Time
	// contexts is keyed by provider ID and immutable after construction.
	contexts map[string]*UserContext
}

// NewSession builds a session over the given user contexts.
func NewSession(token, userName string, createdAt time.Time, contexts []*UserContext) *Session {
	byProvider := make(map[string]*UserContext, len(contexts))
	for _, uc := range contexts {
		byProvider[uc.ProviderID] = uc
	}
	return &Session{
		Token:     token,
		UserName:  userName,
		CreatedAt: createdAt,
		contexts:  byProvider,
	}
}

// UserContext returns the context for the given provider scope, or nil if
// this session is not established for that provider.
func (s *Session) UserContext(providerID string) *UserContext {
	return s.contexts[providerID]
}

// ProviderIDs lists the provider scopes this session is established for.
func (s *Session) ProviderIDs() []string {
	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	return ids
}

type sessionEntry struct {
	session  *Session
	lastUsed time.Time
}

// SessionRegistry is the process-wide session table, keyed by token. It is
// the only place where tokens are dereferenced. The authentication subsystem
// (tokens API) owns insertion and removal; everything else only resolves.
//
// All methods are safe for concurrent use.
type SessionRegistry struct {
	mutex   sync.Mutex
	entries map[string]sessionEntry
	timeout time.Duration
	timeNow func() time.Time
}

// NewSessionRegistry builds a SessionRegistry. Sessions expire after not
// being resolved for the given timeout. The timeNow argument is only set in
// unit tests; give nil to use time.Now.
func NewSessionRegistry(timeout time.Duration, timeNow func() time.Time) *SessionRegistry {
	if timeNow == nil {
		timeNow = time.Now
	}
	return &SessionRegistry{
		entries: make(map[string]sessionEntry),
		timeout: timeout,
		timeNow: timeNow,
	}
}

// Resolve maps an opaque token to its live session. It fails with
// ErrUnauthenticated if the token is empty, unknown, or belongs to an expired
// session. Resolving refreshes the session's idle deadline. No other side
// effects.
func (r *SessionRegistry) Resolve(token string) (*Session, *APIError) {
	if token == "" {
		return nil, ErrUnauthenticated.With("no session token provided")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, exists := r.entries[token]
	now := r.timeNow()
	if exists && now.Sub(entry.lastUsed) > r.timeout {
		delete(r.entries, token)
		exists = false
	}
	if !exists {
		return nil, ErrUnauthenticated.With("session token is invalid or expired")
	}

	entry.lastUsed = now
	r.entries[token] = entry
	return entry.session, nil
}

// Insert adds a freshly established session to the registry.
func (r *SessionRegistry) Insert(s *Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries[s.Token] = sessionEntry{session: s, lastUsed: r.timeNow()}
}

// Remove destroys the session with the given token, e.g. on logout. It
// reports whether such a session existed.
func (r *SessionRegistry) Remove(token string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, exists := r.entries[token]
	delete(r.entries, token)
	return exists
}

// Count returns the number of live sessions. This feeds a Prometheus gauge.
func (r *SessionRegistry) Count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.entries)
}

// Sweep removes all sessions whose idle deadline has passed, and returns how
// many were removed. The session janitor calls this periodically so that
// abandoned sessions do not pile up between Resolve calls.
func (r *SessionRegistry) Sweep() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.timeNow()
	removed := 0
	for token, entry := range r.entries {
		if now.Sub(entry.lastUsed) > r.timeout {
			delete(r.entries, token)
			removed++
		}
	}
	return removed
}
