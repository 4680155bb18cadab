// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/gatehouse/internal/gatehouse"
)

// Driver (driver ID "postgres") is a gatehouse.DirectoryDriver backed by the
// deployment's PostgreSQL database. Per-identifier atomicity of mutations is
// provided by row-level locking inside a transaction: concurrent updates of
// the same connection serialize on SELECT ... FOR UPDATE, and readers only
// ever see committed state.
type Driver struct {
	db *gatehouse.DB
}

func init() {
	gatehouse.DirectoryDriverRegistry.Add(func() gatehouse.DirectoryDriver { return &Driver{} })
}

// PluginTypeID implements the gatehouse.DirectoryDriver interface.
func (d *Driver) PluginTypeID() string { return "postgres" }

// Init implements the gatehouse.DirectoryDriver interface.
func (d *Driver) Init(db *gatehouse.DB) error {
	if db == nil {
		return errors.New(`directory driver "postgres" requires a database connection`)
	}
	d.db = db
	return nil
}

// Connections implements the gatehouse.DirectoryDriver interface.
func (d *Driver) Connections(providerID string, uid gatehouse.UserIdentity) gatehouse.ConnectionDirectory {
	return &directory{db: d.db, provider: providerID, uid: uid}
}

type directory struct {
	db       *gatehouse.DB
	provider string
	uid      gatehouse.UserIdentity
}

var grantExistsQuery = sqlext.SimplifyWhitespace(`
	SELECT EXISTS (
		SELECT 1 FROM connection_permissions
		 WHERE provider = $1 AND user_name = $2 AND connection_id = $3 AND permission = $4
	)
`)

// allows checks the acting user's effective grant on a stored connection.
func (dir *directory) allows(dbi gorp.SqlExecutor, perm gatehouse.ObjectPermission, sc gatehouse.StoredConnection) (bool, error) {
	if dir.uid.SystemPermissions().Has(gatehouse.SystemAdminister) {
		return true, nil
	}
	if sc.OwnerName == dir.uid.UserName() {
		return true, nil
	}
	if dir.uid.ConnectionGrants().Has(perm, strconv.FormatInt(sc.ID, 10)) {
		return true, nil
	}
	var granted bool
	err := dbi.SelectOne(&granted, grantExistsQuery, dir.provider, dir.uid.UserName(), sc.ID, string(perm))
	return granted, err
}

func (dir *directory) findConnection(dbi gorp.SqlExecutor, id string, forUpdate bool) (*gatehouse.StoredConnection, error) {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		// identifiers are assigned from a numeric sequence, so a non-numeric
		// identifier cannot exist
		return nil, nil
	}
	query := "SELECT * FROM connections WHERE provider = $1 AND id = $2"
	if forUpdate {
		query += " FOR UPDATE"
	}
	var sc gatehouse.StoredConnection
	err = dbi.SelectOne(&sc, query, dir.provider, numericID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return &sc, err
}

// Get implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Get(ctx context.Context, id string) (*gatehouse.Connection, *gatehouse.APIError) {
	sc, err := dir.findConnection(&dir.db.DbMap, id, false)
	if err != nil {
		return nil, gatehouse.AsAPIError(err)
	}
	if sc != nil {
		ok, err := dir.allows(&dir.db.DbMap, gatehouse.ObjectRead, *sc)
		if err != nil {
			return nil, gatehouse.AsAPIError(err)
		}
		if !ok {
			sc = nil
		}
	}
	// this reports 404 even if the real reason is lack of authorization, in
	// order to not leak information about which connections exist
	if sc == nil {
		return nil, gatehouse.ErrNotFound.With("no such connection")
	}
	return renderConnection(*sc)
}

// Add implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Add(ctx context.Context, conn gatehouse.Connection) (*gatehouse.Connection, *gatehouse.APIError) {
	sysPerms := dir.uid.SystemPermissions()
	if !sysPerms.Has(gatehouse.SystemAdminister) && !sysPerms.Has(gatehouse.SystemCreateConnection) {
		return nil, gatehouse.ErrDenied.With("permission to create connections denied")
	}
	if rerr := conn.Validate(); rerr != nil {
		return nil, rerr
	}
	if conn.ParentID == "" {
		conn.ParentID = gatehouse.RootGroupID
	}

	sc, err := storedConnectionFrom(conn, dir.provider, dir.uid.UserName())
	if err != nil {
		return nil, gatehouse.AsAPIError(err)
	}

	tx, err := dir.db.Begin()
	if err != nil {
		return nil, gatehouse.AsAPIError(err)
	}
	defer gatehouse.RollbackUnlessCommitted(tx)

	if rerr := dir.checkParentGroup(tx, conn.ParentID, ""); rerr != nil {
		return nil, rerr
	}
	err = tx.Insert(&sc)
	if err != nil {
		return nil, gatehouse.AsAPIError(err)
	}
	// the creator receives the full set of grants on the new connection
	for _, perm := range gatehouse.AllObjectPermissions {
		err = tx.Insert(&gatehouse.StoredConnectionPermission{
			Provider:     dir.provider,
			UserName:     dir.uid.UserName(),
			ConnectionID: sc.ID,
			Permission:   string(perm),
		})
		if err != nil {
			return nil, gatehouse.AsAPIError(err)
		}
	}
	err = tx.Commit()
	if err != nil {
		return nil, gatehouse.AsAPIError(err)
	}

	return renderConnection(sc)
}

// Update implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Update(ctx context.Context, conn gatehouse.Connection) *gatehouse.APIError {
	if rerr := conn.Validate(); rerr != nil {
		return rerr
	}
	if conn.ParentID == "" {
		conn.ParentID = gatehouse.RootGroupID
	}

	tx, err := dir.db.Begin()
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	defer gatehouse.RollbackUnlessCommitted(tx)

	sc, err := dir.findConnection(tx, conn.ID, true)
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	if sc == nil {
		return gatehouse.ErrNotFound.With("no such connection")
	}
	ok, err := dir.allows(tx, gatehouse.ObjectUpdate, *sc)
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	if !ok {
		return gatehouse.ErrDenied.With("permission to update this connection denied")
	}

	if conn.ParentID != sc.ParentID {
		// a changed parent is a move and must keep the tree a tree
		if rerr := dir.checkParentGroup(tx, conn.ParentID, conn.ID); rerr != nil {
			return rerr
		}
	}

	target, err := storedConnectionFrom(conn, dir.provider, sc.OwnerName)
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	target.ID = sc.ID
	_, err = tx.Update(&target)
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	err = tx.Commit()
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	return nil
}

// Remove implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Remove(ctx context.Context, id string) *gatehouse.APIError {
	tx, err := dir.db.Begin()
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	defer gatehouse.RollbackUnlessCommitted(tx)

	sc, err := dir.findConnection(tx, id, true)
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	if sc == nil {
		return gatehouse.ErrNotFound.With("no such connection")
	}
	ok, err := dir.allows(tx, gatehouse.ObjectDelete, *sc)
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	if !ok {
		return gatehouse.ErrDenied.With("permission to delete this connection denied")
	}

	// hard delete; grants cascade, history records deliberately do not
	_, err = tx.Delete(sc)
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	err = tx.Commit()
	if err != nil {
		return gatehouse.AsAPIError(err)
	}
	return nil
}

var historyQuery = sqlext.SimplifyWhitespace(`
	SELECT * FROM connection_records
	 WHERE provider = $1 AND connection_id = $2
	 ORDER BY started_at ASC, id ASC
`)

// History implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) History(ctx context.Context, id string) ([]gatehouse.ConnectionRecord, *gatehouse.APIError) {
	sc, err := dir.findConnection(&dir.db.DbMap, id, false)
	if err != nil {
		return nil, gatehouse.AsAPIError(err)
	}
	if sc != nil {
		ok, err := dir.allows(&dir.db.DbMap, gatehouse.ObjectRead, *sc)
		if err != nil {
			return nil, gatehouse.AsAPIError(err)
		}
		if !ok {
			sc = nil
		}
	}
	if sc == nil {
		return nil, gatehouse.ErrNotFound.With("no such connection")
	}

	var stored []gatehouse.StoredConnectionRecord
	_, err = dir.db.Select(&stored, historyQuery, dir.provider, sc.ID)
	if err != nil {
		return nil, gatehouse.AsAPIError(err)
	}

	records := make([]gatehouse.ConnectionRecord, len(stored))
	for idx, row := range stored {
		records[idx] = gatehouse.ConnectionRecord{
			ConnectionID: strconv.FormatInt(row.ConnectionID, 10),
			StartedAt:    row.StartedAt.Time,
		}
		if row.EndedAt.Valid {
			endedAt := row.EndedAt.Time
			records[idx].EndedAt = &endedAt
		}
	}
	return records, nil
}

// Permissions implements the gatehouse.ConnectionDirectory interface.
func (dir *directory) Permissions() gatehouse.ObjectPermissionSet {
	return gatehouse.UnionObjectPermissionSet(
		dir.uid.ConnectionGrants(),
		storedPermissions{db: dir.db, provider: dir.provider, userName: dir.uid.UserName()},
	)
}

var storedGrantOrOwnershipQuery = sqlext.SimplifyWhitespace(`
	SELECT EXISTS (
		SELECT 1 FROM connection_permissions
		 WHERE provider = $1 AND user_name = $2 AND connection_id = $3 AND permission = $4
	) OR EXISTS (
		SELECT 1 FROM connections
		 WHERE provider = $1 AND owner_name = $2 AND id = $3
	)
`)

// storedPermissions exposes the grants recorded in the database (including
// the creator grants inserted by Add) as an ObjectPermissionSet.
type storedPermissions struct {
	db       *gatehouse.DB
	provider string
	userName string
}

// Has implements the gatehouse.ObjectPermissionSet interface.
func (s storedPermissions) Has(perm gatehouse.ObjectPermission, objectID string) bool {
	numericID, err := strconv.ParseInt(objectID, 10, 64)
	if err != nil {
		return false
	}
	var granted bool
	err = s.db.QueryRow(storedGrantOrOwnershipQuery, s.provider, s.userName, numericID, string(perm)).Scan(&granted)
	return err == nil && granted
}

var groupParentQuery = sqlext.SimplifyWhitespace(`
	SELECT parent_id FROM connection_groups WHERE provider = $1 AND id = $2
`)

// checkParentGroup validates that parentID names an existing group and that
// placing connectionID below it does not make the connection its own
// ancestor.
func (dir *directory) checkParentGroup(dbi gorp.SqlExecutor, parentID, connectionID string) *gatehouse.APIError {
	visited := make(map[string]bool)
	for groupID := parentID; groupID != gatehouse.RootGroupID; {
		if connectionID != "" && groupID == connectionID {
			return gatehouse.ErrInvalidRequest.With("moving the connection below %q would make it its own ancestor", parentID)
		}
		if visited[groupID] {
			return gatehouse.ErrInvalidRequest.With("connection group tree contains a cycle at %q", groupID)
		}
		visited[groupID] = true

		var nextID string
		err := dbi.SelectOne(&nextID, groupParentQuery, dir.provider, groupID)
		if errors.Is(err, sql.ErrNoRows) {
			return gatehouse.ErrInvalidRequest.With("no such connection group: %q", groupID)
		}
		if err != nil {
			return gatehouse.AsAPIError(err)
		}
		groupID = nextID
	}
	return nil
}

func storedConnectionFrom(conn gatehouse.Connection, provider, ownerName string) (gatehouse.StoredConnection, error) {
	parametersJSON, err := json.Marshal(conn.Configuration.Parameters)
	if err != nil {
		return gatehouse.StoredConnection{}, err
	}
	attributesJSON, err := json.Marshal(conn.Attributes)
	if err != nil {
		return gatehouse.StoredConnection{}, err
	}
	return gatehouse.StoredConnection{
		Provider:       provider,
		Name:           conn.Name,
		ParentID:       conn.ParentID,
		Protocol:       conn.Configuration.Protocol,
		ParametersJSON: string(parametersJSON),
		AttributesJSON: string(attributesJSON),
		OwnerName:      ownerName,
	}, nil
}

func renderConnection(sc gatehouse.StoredConnection) (*gatehouse.Connection, *gatehouse.APIError) {
	conn := gatehouse.Connection{
		ID:       strconv.FormatInt(sc.ID, 10),
		Name:     sc.Name,
		ParentID: sc.ParentID,
		Configuration: gatehouse.ConnectionConfiguration{
			Protocol:   sc.Protocol,
			Parameters: make(map[string]string),
		},
		Attributes: make(map[string]string),
	}
	if sc.ParametersJSON != "" {
		err := json.Unmarshal([]byte(sc.ParametersJSON), &conn.Configuration.Parameters)
		if err != nil {
			return nil, gatehouse.AsAPIError(err)
		}
	}
	if sc.AttributesJSON != "" {
		err := json.Unmarshal([]byte(sc.AttributesJSON), &conn.Attributes)
		if err != nil {
			return nil, gatehouse.AsAPIError(err)
		}
	}
	return &conn, nil
}
