// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"database/sql"
	"errors"

	"github.com/go-gorp/gorp/v3"
	_ "github.com/lib/pq" // enable postgres driver for database/sql
	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/logg"
)

var sqlMigrations = map[string]string{
	"001_initial.up.sql": `
		CREATE TABLE connection_groups (
			provider  TEXT NOT NULL,
			id        TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT 'ROOT',
			name      TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (provider, id)
		);

		CREATE TABLE connections (
			id              BIGSERIAL NOT NULL PRIMARY KEY,
			provider        TEXT      NOT NULL,
			name            TEXT      NOT NULL,
			parent_id       TEXT      NOT NULL DEFAULT 'ROOT',
			protocol        TEXT      NOT NULL,
			parameters_json TEXT      NOT NULL DEFAULT '',
			attributes_json TEXT      NOT NULL DEFAULT '',
			owner_name      TEXT      NOT NULL
		);

		CREATE TABLE connection_permissions (
			provider      TEXT   NOT NULL,
			user_name     TEXT   NOT NULL,
			connection_id BIGINT NOT NULL REFERENCES connections ON DELETE CASCADE,
			permission    TEXT   NOT NULL,
			PRIMARY KEY (provider, user_name, connection_id, permission)
		);

		-- no foreign key on connection_id: records belong to the audit trail
		-- and must survive deletion of their connection
		CREATE TABLE connection_records (
			id            BIGSERIAL   NOT NULL PRIMARY KEY,
			provider      TEXT        NOT NULL,
			connection_id BIGINT      NOT NULL,
			started_at    TIMESTAMPTZ NOT NULL,
			ended_at      TIMESTAMPTZ DEFAULT NULL
		);
	`,
	"001_initial.down.sql": `
		DROP TABLE connection_records;
		DROP TABLE connection_permissions;
		DROP TABLE connections;
		DROP TABLE connection_groups;
	`,
}

// DBConfiguration returns the easypg.Configuration object that is passed to
// easypg.Connect().
func DBConfiguration() easypg.Configuration {
	return easypg.Configuration{
		Migrations: sqlMigrations,
	}
}

// DB adds convenience functions on top of gorp.DbMap.
type DB struct {
	gorp.DbMap
}

// InitORM wraps a database connection into a gorp.DbMap instance.
func InitORM(dbConn *sql.DB) *DB {
	result := &DB{DbMap: gorp.DbMap{Db: dbConn, Dialect: gorp.PostgresDialect{}}}
	initModels(&result.DbMap)
	return result
}

// StoredConnection contains a record from the `connections` table.
// The parameter and attribute mappings are stored as JSON documents; the
// postgres directory driver converts between this shape and
// gatehouse.Connection.
type StoredConnection struct {
	ID             int64  `db:"id"`
	Provider       string `db:"provider"`
	Name           string `db:"name"`
	ParentID       string `db:"parent_id"`
	Protocol       string `db:"protocol"`
	ParametersJSON string `db:"parameters_json"`
	AttributesJSON string `db:"attributes_json"`
	OwnerName      string `db:"owner_name"`
}

// StoredConnectionGroup contains a record from the `connection_groups` table.
type StoredConnectionGroup struct {
	Provider string `db:"provider"`
	ID       string `db:"id"`
	ParentID string `db:"parent_id"`
	Name     string `db:"name"`
}

// StoredConnectionPermission contains a record from the
// `connection_permissions` table.
type StoredConnectionPermission struct {
	Provider     string `db:"provider"`
	UserName     string `db:"user_name"`
	ConnectionID int64  `db:"connection_id"`
	Permission   string `db:"permission"`
}

// StoredConnectionRecord contains a record from the `connection_records`
// table.
type StoredConnectionRecord struct {
	ID           int64        `db:"id"`
	Provider     string       `db:"provider"`
	ConnectionID int64        `db:"connection_id"`
	StartedAt    sql.NullTime `db:"started_at"`
	EndedAt      sql.NullTime `db:"ended_at"`
}

func initModels(db *gorp.DbMap) {
	db.AddTableWithName(StoredConnection{}, "connections").SetKeys(true, "id")
	db.AddTableWithName(StoredConnectionGroup{}, "connection_groups").SetKeys(false, "provider", "id")
	db.AddTableWithName(StoredConnectionPermission{}, "connection_permissions").SetKeys(false, "provider", "user_name", "connection_id", "permission")
	db.AddTableWithName(StoredConnectionRecord{}, "connection_records").SetKeys(true, "id")
}

// RollbackUnlessCommitted calls Rollback() on a transaction if it hasn't been
// committed or rolled back yet. Use this with the defer keyword to make sure
// that a transaction is automatically rolled back when a function fails.
func RollbackUnlessCommitted(tx *gorp.Transaction) {
	err := tx.Rollback()
	switch {
	case err == nil:
		// rolled back successfully
		logg.Info("implicit rollback done")
	case errors.Is(err, sql.ErrTxDone):
		// already committed or rolled back - nothing to do
	default:
		logg.Error("implicit rollback failed: %s", err.Error())
	}
}
