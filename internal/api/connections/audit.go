// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package connectionsv1

import (
	"encoding/json"

	"github.com/sapcc/go-api-declarations/cadf"

	"github.com/sapcc/gatehouse/internal/gatehouse"
)

// AuditConnection is an audittools.TargetRenderer.
type AuditConnection struct {
	ProviderID string
	Connection gatehouse.Connection
}

// Render implements the audittools.TargetRenderer interface.
func (a AuditConnection) Render() cadf.Resource {
	// parameter values may embed credentials, so they never enter the audit
	// trail
	payload := struct {
		Name     string            `json:"name"`
		ParentID string            `json:"parent_identifier"`
		Protocol string            `json:"protocol"`
		Attrs    map[string]string `json:"attributes,omitempty"`
	}{
		Name:     a.Connection.Name,
		ParentID: a.Connection.ParentID,
		Protocol: a.Connection.Configuration.Protocol,
		Attrs:    a.Connection.Attributes,
	}
	buf, _ := json.Marshal(payload)

	return cadf.Resource{
		TypeURI:   "remote-access/connection",
		ID:        a.Connection.ID,
		ProjectID: a.ProviderID,
		Attachments: []cadf.Attachment{{
			Name:    "payload",
			TypeURI: "mime:application/json",
			Content: string(buf),
		}},
	}
}
