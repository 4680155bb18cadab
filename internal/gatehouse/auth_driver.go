// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/sapcc/go-bits/audittools"
	"github.com/sapcc/go-bits/pluggable"
)

// User is the `self` of a UserContext: the authenticated user as seen by one
// identity provider.
type User struct {
	Name string
}

// UserIdentity describes the identity and declared access rights of a user
// within one identity provider's scope. It is returned by methods in the
// AuthDriver interface.
type UserIdentity interface {
	// Returns the name of the user that was authenticated. This is the same
	// format that is given as the first argument of AuthenticateUser().
	UserName() string
	// Returns the system-level grants that the identity provider declares for
	// this user.
	SystemPermissions() SystemPermissionSet
	// Returns the object-level connection grants that the identity provider
	// declares for this user. Directory drivers may extend this set with
	// grants recorded in their own backing store (e.g. creator grants), but
	// declared grants are always honored.
	ConnectionGrants() ObjectPermissionSet
	// If this identity is backed by an external token, return a UserInfo for
	// that token. Returns nil otherwise.
	//
	// If non-nil, the Gatehouse API will submit CADF audit events for
	// mutating operations performed by this user.
	UserInfo() audittools.UserInfo
}

// AuthDriver is the interface to one identity provider. A Gatehouse
// deployment configures one AuthDriver instance per provider scope; a session
// holds one UserContext for each provider that accepted the user's
// credentials.
type AuthDriver interface {
	pluggable.Plugin
	// Init is called before any other interface methods, and allows the
	// driver to perform first-time initialization for the given provider
	// scope. The supplied *redis.Client can be stored for caching
	// authorizations, but only if it is non-nil.
	Init(providerID string, rc *redis.Client) error
	// AuthenticateUser authenticates the user identified by the given
	// username and password against this provider. On failure, the returned
	// error has code ErrUnauthenticated. This method has no side effects;
	// session bookkeeping is the caller's job.
	AuthenticateUser(ctx context.Context, userName, password string) (UserIdentity, *APIError)
}

// AuthDriverRegistry is a pluggable.Registry for AuthDriver implementations.
var AuthDriverRegistry pluggable.Registry[AuthDriver]

// NewAuthDriver creates a new AuthDriver for the given provider scope, using
// one of the plugins registered with AuthDriverRegistry.
func NewAuthDriver(pluginTypeID, providerID string, rc *redis.Client) (AuthDriver, error) {
	ad := AuthDriverRegistry.Instantiate(pluginTypeID)
	if ad == nil {
		return nil, errors.New("no such auth driver: " + pluginTypeID)
	}
	return ad, ad.Init(providerID, rc)
}
