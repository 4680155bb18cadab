// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package test contains the harness for API-level unit tests. Tests run
// against the memory directory driver, so no database or network is needed.
package test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sapcc/go-bits/audittools"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/mock"
	"github.com/sapcc/go-bits/osext"

	connectionsv1 "github.com/sapcc/gatehouse/internal/api/connections"
	tokensv1 "github.com/sapcc/gatehouse/internal/api/tokens"
	"github.com/sapcc/gatehouse/internal/drivers/memory"
	"github.com/sapcc/gatehouse/internal/gatehouse"
)

// ProviderID is the provider scope that NewSetup configures.
const ProviderID = "test"

// SetupOption is an option that can be given to NewSetup().
type SetupOption func(*Setup)

// WithSessionTimeout changes the idle timeout of the session registry.
func WithSessionTimeout(timeout time.Duration) SetupOption {
	return func(s *Setup) {
		s.Config.SessionTimeout = timeout
	}
}

// WithGroup seeds a connection group into the memory directory driver.
func WithGroup(groupID, parentID string) SetupOption {
	return func(s *Setup) {
		s.DirectoryDriver.AddGroup(ProviderID, groupID, parentID)
	}
}

// WithRecord seeds a usage record into the memory directory driver.
func WithRecord(record gatehouse.ConnectionRecord) SetupOption {
	return func(s *Setup) {
		s.DirectoryDriver.AddRecord(ProviderID, record)
	}
}

// Setup contains all the pieces that are needed for an API-level test.
type Setup struct {
	Config          gatehouse.Configuration
	Clock           *mock.Clock
	Auditor         *audittools.MockAuditor
	Sessions        *gatehouse.SessionRegistry
	DirectoryDriver *memory.Driver
	AuthDriver      *AuthDriver
	Handler         http.Handler

	tokenCounter int
}

// NewSetup prepares a test scenario with one provider scope (ProviderID)
// backed by the unittest auth driver and the memory directory driver.
func NewSetup(t *testing.T, opts ...SetupOption) *Setup {
	t.Helper()
	logg.ShowDebug = osext.GetenvBool("GATEHOUSE_DEBUG")

	s := &Setup{
		Config: gatehouse.Configuration{
			APIPublicHostname: "gatehouse.example.org",
			SessionTimeout:    1 * time.Hour,
			AuthProviders: []gatehouse.AuthProviderConfig{
				{ID: ProviderID, DriverType: "unittest"},
			},
		},
		Clock:           mock.NewClock(),
		Auditor:         audittools.NewMockAuditor(),
		DirectoryDriver: &memory.Driver{},
		AuthDriver: &AuthDriver{
			ExpectedUserName: "correctusername",
			ExpectedPassword: "correctpassword",
		},
	}
	err := s.DirectoryDriver.Init(nil)
	if err != nil {
		t.Fatal(err.Error())
	}

	for _, opt := range opts {
		opt(s)
	}

	s.Sessions = gatehouse.NewSessionRegistry(s.Config.SessionTimeout, s.Clock.Now)
	s.Handler = httpapi.Compose(
		connectionsv1.NewAPI(s.Config, s.Sessions, s.Auditor).OverrideTimeNow(s.Clock.Now),
		tokensv1.NewAPI(s.Config, map[string]gatehouse.AuthDriver{ProviderID: s.AuthDriver}, s.DirectoryDriver, s.Sessions).
			OverrideTimeNow(s.Clock.Now).
			OverrideNewToken(s.nextToken),
		httpapi.WithoutLogging(),
	)
	return s
}

func (s *Setup) nextToken() string {
	s.tokenCounter++
	return fmt.Sprintf("unittest-token-%d", s.tokenCounter)
}

// NewSession builds a session for a user with the given grants, inserts it
// into the session registry, and returns its token. This bypasses the tokens
// API so that connection API tests do not depend on it.
func (s *Setup) NewSession(userName string, sysPerms []gatehouse.SystemPermission, connGrants map[string][]gatehouse.ObjectPermission) string {
	ad := &AuthDriver{
		ExpectedUserName:      userName,
		SystemPermissions:     sysPerms,
		ConnectionPermissions: connGrants,
	}
	uc := gatehouse.NewUserContext(ProviderID, ad.UserIdentity(), s.DirectoryDriver)
	sess := gatehouse.NewSession(s.nextToken(), userName, s.Clock.Now(), []*gatehouse.UserContext{uc})
	s.Sessions.Insert(sess)
	return sess.Token
}
