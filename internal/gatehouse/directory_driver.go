// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"context"
	"errors"

	"github.com/sapcc/go-bits/pluggable"
)

// ConnectionDirectory is a keyed container of connections, scoped to one
// identity provider's view and bound to one acting user. The backing
// implementation is free to be a database table, a directory-service tree, or
// an in-memory map, but it must honor this contract:
//
// The directory enforces authorization itself, using the acting user's
// grants. Callers of Add/Update/Remove do not re-check grants. The one
// deliberate exception is the parameter-read check, which the API layer
// performs explicitly (see the connections API) because parameter values are
// more sensitive than the READ gate implies.
//
// Mutations are atomic per identifier: a reader never observes a partially
// applied update, and two concurrent updates of the same identifier do not
// interleave. The backing store provides this (transaction or equivalent);
// there is no retry policy at this layer.
type ConnectionDirectory interface {
	// Get returns the connection with the given identifier. It fails with
	// ErrNotFound both when no such connection exists and when the acting
	// user lacks READ on it: existence of inaccessible objects is never
	// disclosed.
	Get(ctx context.Context, id string) (*Connection, *APIError)
	// Add persists the given connection under a freshly assigned unique
	// identifier and returns the stored entity. Any identifier on the input
	// is ignored. Fails with ErrDenied if the acting user lacks
	// CREATE_CONNECTION (or ADMINISTER) at the system level, and with
	// ErrInvalidRequest if the connection is structurally invalid or names a
	// nonexistent parent.
	Add(ctx context.Context, conn Connection) (*Connection, *APIError)
	// Update replaces the stored entity that has the given connection's
	// identifier. Fails with ErrNotFound if the identifier no longer exists,
	// and with ErrDenied if the acting user lacks UPDATE (or ADMINISTER) on
	// it. A changed parent identifier constitutes a move: the new parent must
	// exist and must not make the connection its own ancestor, otherwise the
	// update fails with ErrInvalidRequest and the stored entity is unchanged.
	Update(ctx context.Context, conn Connection) *APIError
	// Remove hard-deletes the connection with the given identifier, with
	// ErrNotFound/ErrDenied semantics analogous to Update (DELETE gates the
	// operation). After a successful Remove, Get on the same identifier
	// reports ErrNotFound regardless of the caller's grants. History records
	// survive the deletion; they belong to the audit trail.
	Remove(ctx context.Context, id string) *APIError
	// History returns the usage records of the given connection in the
	// backing store's return order (treated as authoritative, typically
	// chronological), without filtering or pagination. The READ gate and the
	// existence hiding of Get apply here in the same way.
	History(ctx context.Context, id string) ([]ConnectionRecord, *APIError)
	// Permissions returns the acting user's effective object-level grants in
	// this directory, i.e. the grants declared by the identity provider
	// combined with whatever the backing store records (e.g. creator grants).
	Permissions() ObjectPermissionSet
}

// DirectoryDriver is a pluggable backend that provides per-user
// ConnectionDirectory views. One driver instance serves all provider scopes
// of a deployment.
type DirectoryDriver interface {
	pluggable.Plugin
	// Init is called before any other interface methods. The *DB is non-nil
	// only when the deployment has a database connection; drivers that do not
	// need one ignore it.
	Init(db *DB) error
	// Connections returns the directory for the given provider scope, bound
	// to the given acting user.
	Connections(providerID string, uid UserIdentity) ConnectionDirectory
}

// DirectoryDriverRegistry is a pluggable.Registry for DirectoryDriver implementations.
var DirectoryDriverRegistry pluggable.Registry[DirectoryDriver]

// NewDirectoryDriver creates a new DirectoryDriver using one of the plugins
// registered with DirectoryDriverRegistry.
func NewDirectoryDriver(pluginTypeID string, db *DB) (DirectoryDriver, error) {
	dd := DirectoryDriverRegistry.Instantiate(pluginTypeID)
	if dd == nil {
		return nil, errors.New("no such directory driver: " + pluginTypeID)
	}
	return dd, dd.Init(db)
}
