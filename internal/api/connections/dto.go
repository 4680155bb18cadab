// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package connectionsv1

import (
	"github.com/sapcc/gatehouse/internal/gatehouse"
)

// Connection is the API representation of a gatehouse.Connection.
//
// Parameters only appear in request bodies and in the response of the
// parameters endpoint. The regular connection rendering omits them because
// parameter values may embed credentials and are gated separately.
type Connection struct {
	ID         string            `json:"identifier,omitempty"`
	Name       string            `json:"name"`
	ParentID   string            `json:"parent_identifier"`
	Protocol   string            `json:"protocol"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Attributes map[string]string `json:"attributes"`
}

// RenderConnection converts a gatehouse.Connection into its API
// representation, without parameters.
func RenderConnection(conn gatehouse.Connection) Connection {
	attrs := conn.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return Connection{
		ID:         conn.ID,
		Name:       conn.Name,
		ParentID:   conn.ParentID,
		Protocol:   conn.Configuration.Protocol,
		Attributes: attrs,
	}
}

// Parse converts this API representation into a gatehouse.Connection. The
// identifier is deliberately not taken from the body; directories assign it
// on create, and on update it comes from the request path.
func (c Connection) Parse() gatehouse.Connection {
	params := c.Parameters
	if params == nil {
		params = map[string]string{}
	}
	attrs := c.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return gatehouse.Connection{
		Name:     c.Name,
		ParentID: c.ParentID,
		Configuration: gatehouse.ConnectionConfiguration{
			Protocol:   c.Protocol,
			Parameters: params,
		},
		Attributes: attrs,
	}
}

// ConnectionRecord is the API representation of a gatehouse.ConnectionRecord.
// Timestamps are UNIX seconds; EndedAt is null for usages without a recorded
// end.
type ConnectionRecord struct {
	ConnectionID string `json:"connection_identifier"`
	StartedAt    int64  `json:"started_at"`
	EndedAt      *int64 `json:"ended_at"`
}

// RenderConnectionRecords converts a history into its API representation,
// preserving order. The result is never nil, so that it serializes as a list.
func RenderConnectionRecords(records []gatehouse.ConnectionRecord) []ConnectionRecord {
	rendered := make([]ConnectionRecord, len(records))
	for idx, record := range records {
		rendered[idx] = ConnectionRecord{
			ConnectionID: record.ConnectionID,
			StartedAt:    record.StartedAt.Unix(),
		}
		if record.EndedAt != nil {
			endedAt := record.EndedAt.Unix()
			rendered[idx].EndedAt = &endedAt
		}
	}
	return rendered
}
