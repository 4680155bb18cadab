// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

// SystemPermission is an enum for capabilities that apply to an entire
// provider scope rather than to a single object.
type SystemPermission string

const (
	// SystemAdminister makes the holder a superuser over the whole provider
	// scope. It implies every other permission, system-level and object-level.
	SystemAdminister SystemPermission = "ADMINISTER"
	// SystemCreateConnection is the permission for creating new connections.
	SystemCreateConnection SystemPermission = "CREATE_CONNECTION"
)

// ObjectPermission is an enum for capabilities on a single connection,
// identified by the connection's identifier.
type ObjectPermission string

const (
	// ObjectRead is the permission for seeing that a connection exists and
	// reading its non-sensitive fields.
	ObjectRead ObjectPermission = "READ"
	// ObjectUpdate is the permission for replacing a connection's contents.
	// It also gates reading the connection's parameter values, which may
	// embed credentials.
	ObjectUpdate ObjectPermission = "UPDATE"
	// ObjectDelete is the permission for deleting a connection.
	ObjectDelete ObjectPermission = "DELETE"
	// ObjectAdminister is the permission for everything else, e.g. changing
	// the grants on a connection.
	ObjectAdminister ObjectPermission = "ADMINISTER"
)

// AllObjectPermissions is used when granting full access to a single object,
// e.g. to the creator of a connection.
var AllObjectPermissions = []ObjectPermission{ObjectRead, ObjectUpdate, ObjectDelete, ObjectAdminister}

// SystemPermissionSet answers capability queries for system-level grants.
// Implementations are pure queries; grants are never mutated through this
// interface.
type SystemPermissionSet interface {
	Has(perm SystemPermission) bool
}

// ObjectPermissionSet answers capability queries for object-level grants,
// keyed by the target object's identifier. Implementations are pure queries.
type ObjectPermissionSet interface {
	Has(perm ObjectPermission, objectID string) bool
}

type systemPermissionSet map[SystemPermission]bool

// NewSystemPermissionSet builds a SystemPermissionSet containing exactly the
// given grants.
func NewSystemPermissionSet(perms ...SystemPermission) SystemPermissionSet {
	s := make(systemPermissionSet, len(perms))
	for _, perm := range perms {
		s[perm] = true
	}
	return s
}

func (s systemPermissionSet) Has(perm SystemPermission) bool {
	return s[perm]
}

type objectPermissionSet map[string]map[ObjectPermission]bool

// NewObjectPermissionSet builds an ObjectPermissionSet from a mapping of
// object identifier to granted permissions.
func NewObjectPermissionSet(grants map[string][]ObjectPermission) ObjectPermissionSet {
	s := make(objectPermissionSet, len(grants))
	for objectID, perms := range grants {
		s[objectID] = make(map[ObjectPermission]bool, len(perms))
		for _, perm := range perms {
			s[objectID][perm] = true
		}
	}
	return s
}

func (s objectPermissionSet) Has(perm ObjectPermission, objectID string) bool {
	return s[objectID][perm]
}

type unionObjectPermissionSet []ObjectPermissionSet

// UnionObjectPermissionSet builds an ObjectPermissionSet that reports a grant
// if any of the given sets does. Directory drivers use this to combine the
// grants declared by the identity provider with grants recorded in their own
// backing store.
func UnionObjectPermissionSet(sets ...ObjectPermissionSet) ObjectPermissionSet {
	return unionObjectPermissionSet(sets)
}

func (u unionObjectPermissionSet) Has(perm ObjectPermission, objectID string) bool {
	for _, s := range u {
		if s != nil && s.Has(perm, objectID) {
			return true
		}
	}
	return false
}
