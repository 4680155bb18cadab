// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"context"

	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/audittools"
)

// Auditor is a component that forwards audit events to the appropriate logs.
// It is used by the API modules for all mutating directory operations.
type Auditor interface {
	// Record forwards the given audit event to the audit log.
	// EventParameters.Observer will be filled by the auditor.
	Record(params audittools.EventParameters)
}

// InitAuditTrail initializes an Auditor from the configuration in the
// GATEHOUSE_AUDIT_* environment variables.
func InitAuditTrail(ctx context.Context) (Auditor, error) {
	return audittools.NewAuditor(ctx, audittools.AuditorOpts{
		EnvPrefix: "GATEHOUSE_AUDIT_RABBITMQ",
		Observer: audittools.Observer{
			TypeURI: "service/remote-access",
			Name:    bininfo.Component(),
			ID:      audittools.GenerateUUID(),
		},
	})
}
