// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"context"
)

// RetrievalService resolves sessions, user contexts and connections for the
// API modules. It contains the policy decisions about which failure reports
// which error kind:
//
// An unknown provider scope is a client addressing error (ErrNotFound), not a
// permission error: the session simply is not established for that provider.
//
// An unknown connection and an existing-but-inaccessible connection are
// deliberately conflated into ErrNotFound by the directory, and this service
// passes that through unchanged; distinguishing them would disclose the
// existence of objects the caller may not see.
type RetrievalService struct {
	Sessions *SessionRegistry
}

// ResolveSession maps an opaque token to its live session. See
// SessionRegistry.Resolve for the failure semantics.
func (s RetrievalService) ResolveSession(token string) (*Session, *APIError) {
	return s.Sessions.Resolve(token)
}

// ResolveUserContext returns the session's view for the given provider
// scope. It fails with ErrNotFound if the session is not established for
// that provider.
func (s RetrievalService) ResolveUserContext(sess *Session, providerID string) (*UserContext, *APIError) {
	uc := sess.UserContext(providerID)
	if uc == nil {
		return nil, ErrNotFound.With("session not available for provider %q", providerID)
	}
	return uc, nil
}

// ResolveConnection returns the connection with the given identifier from
// the provider view's directory. Absence and inaccessibility both report
// ErrNotFound.
func (s RetrievalService) ResolveConnection(ctx context.Context, uc *UserContext, connectionID string) (*Connection, *APIError) {
	return uc.Connections.Get(ctx, connectionID)
}

// ResolveSessionConnection composes ResolveUserContext and ResolveConnection
// for callers that only need a read and no further directory access.
func (s RetrievalService) ResolveSessionConnection(ctx context.Context, sess *Session, providerID, connectionID string) (*Connection, *APIError) {
	uc, err := s.ResolveUserContext(sess, providerID)
	if err != nil {
		return nil, err
	}
	return s.ResolveConnection(ctx, uc, connectionID)
}
