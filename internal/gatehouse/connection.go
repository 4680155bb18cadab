// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"time"
)

// RootGroupID is the parent identifier of connections that sit at the root of
// a provider's connection tree.
const RootGroupID = "ROOT"

// ConnectionConfiguration is the value object describing how a remote session
// for a connection is established: a protocol identifier plus a mapping of
// parameter name to value.
//
// Parameter values may embed credentials, so they are more sensitive than the
// rest of a connection's fields. They are only shown to callers holding
// system ADMINISTER or object UPDATE (see the parameters endpoint), and they
// are always replaced wholesale on update, never merged per field.
type ConnectionConfiguration struct {
	Protocol   string
	Parameters map[string]string
}

// Clone returns a deep copy of this configuration.
func (c ConnectionConfiguration) Clone() ConnectionConfiguration {
	params := make(map[string]string, len(c.Parameters))
	for k, v := range c.Parameters {
		params[k] = v
	}
	return ConnectionConfiguration{Protocol: c.Protocol, Parameters: params}
}

// Connection is a named, addressable remote-session configuration. Instances
// are owned by a ConnectionDirectory: the identifier is assigned by the
// directory on Add (client-supplied identifiers are ignored there), and all
// mutations go through Update/Remove.
type Connection struct {
	// ID is unique within the owning directory.
	ID string
	// Name is the display name.
	Name string
	// ParentID places the connection in the provider's connection-group tree.
	// RootGroupID is the valid "no parent" value.
	ParentID string
	// Configuration carries the protocol and the sensitive parameter values.
	Configuration ConnectionConfiguration
	// Attributes is a free-form mapping of attribute name to value.
	Attributes map[string]string
}

// Clone returns a deep copy of this connection.
func (c Connection) Clone() Connection {
	attrs := make(map[string]string, len(c.Attributes))
	for k, v := range c.Attributes {
		attrs[k] = v
	}
	return Connection{
		ID:            c.ID,
		Name:          c.Name,
		ParentID:      c.ParentID,
		Configuration: c.Configuration.Clone(),
		Attributes:    attrs,
	}
}

// Validate checks the structural invariants that every connection submitted
// to a directory must satisfy.
func (c Connection) Validate() *APIError {
	if c.Name == "" {
		return ErrInvalidRequest.With("connection name is missing")
	}
	if c.Configuration.Protocol == "" {
		return ErrInvalidRequest.With("connection protocol is missing")
	}
	return nil
}

// ConnectionRecord is an immutable fact describing one past (or still active)
// usage interval of a connection. Records belong to the audit trail, not to
// the directory: deleting a connection does not delete its records.
type ConnectionRecord struct {
	// ConnectionID identifies the connection that was used.
	ConnectionID string
	// StartedAt is when the usage began.
	StartedAt time.Time
	// EndedAt is when the usage ended. nil means that the usage is still
	// active, or that it ended without a recorded end; the distinction between
	// absent and present must survive every mapping of this type.
	EndedAt *time.Time
}
