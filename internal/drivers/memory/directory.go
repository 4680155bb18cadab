// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/sapcc/gatehouse/internal/gatehouse"
)

// Driver (driver ID "memory") is a gatehouse.DirectoryDriver that keeps all
// state in process memory. It is intended for development setups and unit
// tests; a single driver-wide mutex gives the atomic visibility that the
// directory contract requires.
type Driver struct {
	mutex     sync.Mutex
	providers map[string]*providerState
}

type providerState struct {
	nextID      int64
	connections map[string]*storedConnection
	// groups maps group ID to parent group ID. The ROOT group is implicit.
	groups  map[string]string
	records map[string][]gatehouse.ConnectionRecord
}

type storedConnection struct {
	conn  gatehouse.Connection
	owner string
}

func init() {
	gatehouse.DirectoryDriverRegistry.Add(func() gatehouse.DirectoryDriver { return &Driver{} })
}

// PluginTypeID implements the gatehouse.DirectoryDriver interface.
func (d *Driver) PluginTypeID() string { return "memory" }

// Init implements the gatehouse.DirectoryDriver interface.
func (d *Driver) Init(db *gatehouse.DB) error {
	d.providers = make(map[string]*providerState)
	return nil
}

// Connections implements the gatehouse.DirectoryDriver interface.
func (d *Driver) Connections(providerID string, uid gatehouse.UserIdentity) gatehouse.ConnectionDirectory {
	return &directory{driver: d, provider: providerID, uid: uid}
}

// state returns the provider's state bucket, creating it if necessary.
// The caller must hold d.mutex.
func (d *Driver) state(providerID string) *providerState {
	state, exists := d.providers[providerID]
	if !exists {
		state = &providerState{
			connections: make(map[string]*storedConnection),
			groups:      make(map[string]string),
			records:     make(map[string][]gatehouse.ConnectionRecord),
		}
		d.providers[providerID] = state
	}
	return state
}

// AddGroup registers a connection group, so that connections can be placed
// below it. Group management is not part of the connection directory
// contract, so this is only reachable for seeding (dev setups and tests).
func (d *Driver) AddGroup(providerID, groupID, parentID string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.state(providerID).groups[groupID] = parentID
}

// AddRecord appends a usage record to a connection's history, in arrival
// order. The tunneling layer (an external collaborator) is the producer of
// these records in a real deployment.
func (d *Driver) AddRecord(providerID string, record gatehouse.ConnectionRecord) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	state := d.state(providerID)
	state.records[record.ConnectionID] = append(state.records[record.ConnectionID], record)
}

type directory struct {
	driver   *Driver
	provider string
	uid      gatehouse.UserIdentity
}

// allows checks the acting user's effective grant on a stored connection.
// The caller must hold the driver mutex.
func (dir *directory) allows(perm gatehouse.ObjectPermission, sc *storedConnection) bool {
	if dir.uid.SystemPermissions().Has(gatehouse.SystemAdminister) {
		return true
	}
	if sc.owner == dir.uid.UserName() {
		return true
	}
	return dir.uid.ConnectionGrants().Has(perm, sc.conn.ID)
}

// Get implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Get(ctx context.Context, id string) (*gatehouse.Connection, *gatehouse.APIError) {
	dir.driver.mutex.Lock()
	defer dir.driver.mutex.Unlock()

	state := dir.driver.state(dir.provider)
	sc, exists := state.connections[id]
	if !exists || !dir.allows(gatehouse.ObjectRead, sc) {
		// inaccessible and absent are indistinguishable on purpose
		return nil, gatehouse.ErrNotFound.With("no such connection")
	}
	conn := sc.conn.Clone()
	return &conn, nil
}

// Add implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Add(ctx context.Context, conn gatehouse.Connection) (*gatehouse.Connection, *gatehouse.APIError) {
	sysPerms := dir.uid.SystemPermissions()
	if !sysPerms.Has(gatehouse.SystemAdminister) && !sysPerms.Has(gatehouse.SystemCreateConnection) {
		return nil, gatehouse.ErrDenied.With("permission to create connections denied")
	}
	if err := conn.Validate(); err != nil {
		return nil, err
	}

	dir.driver.mutex.Lock()
	defer dir.driver.mutex.Unlock()

	state := dir.driver.state(dir.provider)
	if conn.ParentID == "" {
		conn.ParentID = gatehouse.RootGroupID
	}
	if err := checkParentGroup(state, conn.ParentID, ""); err != nil {
		return nil, err
	}

	state.nextID++
	conn.ID = strconv.FormatInt(state.nextID, 10)
	state.connections[conn.ID] = &storedConnection{
		conn:  conn.Clone(),
		owner: dir.uid.UserName(),
	}
	result := conn.Clone()
	return &result, nil
}

// Update implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Update(ctx context.Context, conn gatehouse.Connection) *gatehouse.APIError {
	if err := conn.Validate(); err != nil {
		return err
	}

	dir.driver.mutex.Lock()
	defer dir.driver.mutex.Unlock()

	state := dir.driver.state(dir.provider)
	sc, exists := state.connections[conn.ID]
	if !exists {
		return gatehouse.ErrNotFound.With("no such connection")
	}
	if !dir.allows(gatehouse.ObjectUpdate, sc) {
		return gatehouse.ErrDenied.With("permission to update this connection denied")
	}

	if conn.ParentID == "" {
		conn.ParentID = gatehouse.RootGroupID
	}
	if conn.ParentID != sc.conn.ParentID {
		// a changed parent is a move and must keep the tree a tree
		if err := checkParentGroup(state, conn.ParentID, conn.ID); err != nil {
			return err
		}
	}

	sc.conn = conn.Clone()
	return nil
}

// Remove implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Remove(ctx context.Context, id string) *gatehouse.APIError {
	dir.driver.mutex.Lock()
	defer dir.driver.mutex.Unlock()

	state := dir.driver.state(dir.provider)
	sc, exists := state.connections[id]
	if !exists {
		return gatehouse.ErrNotFound.With("no such connection")
	}
	if !dir.allows(gatehouse.ObjectDelete, sc) {
		return gatehouse.ErrDenied.With("permission to delete this connection denied")
	}

	// hard delete; history records are deliberately retained
	delete(state.connections, id)
	return nil
}

// History implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) History(ctx context.Context, id string) ([]gatehouse.ConnectionRecord, *gatehouse.APIError) {
	dir.driver.mutex.Lock()
	defer dir.driver.mutex.Unlock()

	state := dir.driver.state(dir.provider)
	sc, exists := state.connections[id]
	if !exists || !dir.allows(gatehouse.ObjectRead, sc) {
		return nil, gatehouse.ErrNotFound.With("no such connection")
	}

	records := make([]gatehouse.ConnectionRecord, len(state.records[id]))
	copy(records, state.records[id])
	return records, nil
}

// Permissions implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Permissions() gatehouse.ObjectPermissionSet {
	return gatehouse.UnionObjectPermissionSet(
		dir.uid.ConnectionGrants(),
		ownerPermissions{driver: dir.driver, provider: dir.provider, userName: dir.uid.UserName()},
	)
}

// ownerPermissions grants every object permission on connections that the
// user created.
type ownerPermissions struct {
	driver   *Driver
	provider string
	userName string
}

// Has implements the gatehouse.ObjectPermissionSet interface.
func (o ownerPermissions) Has(perm gatehouse.ObjectPermission, objectID string) bool {
	o.driver.mutex.Lock()
	defer o.driver.mutex.Unlock()
	sc, exists := o.driver.state(o.provider).connections[objectID]
	return exists && sc.owner == o.userName
}

// checkParentGroup validates that parentID names an existing group and that
// placing connectionID below it does not make the connection its own
// ancestor. The caller must hold the driver mutex.
func checkParentGroup(state *providerState, parentID, connectionID string) *gatehouse.APIError {
	visited := make(map[string]bool)
	for groupID := parentID; groupID != gatehouse.RootGroupID; {
		if connectionID != "" && groupID == connectionID {
			return gatehouse.ErrInvalidRequest.With("moving the connection below %q would make it its own ancestor", parentID)
		}
		if visited[groupID] {
			return gatehouse.ErrInvalidRequest.With("connection group tree contains a cycle at %q", groupID)
		}
		visited[groupID] = true

		nextID, exists := state.groups[groupID]
		if !exists {
			return gatehouse.ErrInvalidRequest.With("no such connection group: %q", groupID)
		}
		groupID = nextID
	}
	return nil
}
