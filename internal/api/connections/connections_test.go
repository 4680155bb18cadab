// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package connectionsv1_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/gatehouse/internal/gatehouse"
	"github.com/sapcc/gatehouse/internal/test"
)

func creatorPerms() []gatehouse.SystemPermission {
	return []gatehouse.SystemPermission{gatehouse.SystemCreateConnection}
}

func auditTargetJSON(name, parentID, protocol string) string {
	return `{"name":"` + name + `","parent_identifier":"` + parentID + `","protocol":"` + protocol + `"}`
}

func TestConnectionCRUD(t *testing.T) {
	s := test.NewSetup(t)
	token := s.NewSession("alice", creatorPerms(), nil)

	// create
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/gatehouse/v1/providers/test/connections",
		Header: map[string]string{"X-Auth-Token": token},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{
				"name":       "bastion",
				"protocol":   "ssh",
				"parameters": assert.JSONObject{"hostname": "bastion.example.org", "password": "swordfish"},
			},
		},
		ExpectStatus: http.StatusCreated,
		ExpectBody: assert.JSONObject{
			"connection": assert.JSONObject{
				"identifier":        "1",
				"name":              "bastion",
				"parent_identifier": "ROOT",
				"protocol":          "ssh",
				"attributes":        assert.JSONObject{},
			},
		},
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t, cadf.Event{
		RequestPath: "/gatehouse/v1/providers/test/connections",
		Action:      cadf.CreateAction,
		Outcome:     "success",
		Reason:      cadf.Reason{ReasonType: "HTTP", ReasonCode: "201"},
		Target: cadf.Resource{
			TypeURI:   "remote-access/connection",
			ID:        "1",
			ProjectID: "test",
			Attachments: []cadf.Attachment{{
				Name:    "payload",
				TypeURI: "mime:application/json",
				Content: auditTargetJSON("bastion", "ROOT", "ssh"),
			}},
		},
	})

	// the regular rendering does not contain the parameters
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"connection": assert.JSONObject{
				"identifier":        "1",
				"name":              "bastion",
				"parent_identifier": "ROOT",
				"protocol":          "ssh",
				"attributes":        assert.JSONObject{},
			},
		},
	}.Check(t, s.Handler)

	// the creator holds UPDATE via ownership, so the parameters are readable
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1/parameters",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"parameters": assert.JSONObject{"hostname": "bastion.example.org", "password": "swordfish"},
		},
	}.Check(t, s.Handler)

	// update replaces the parameter set wholesale: "hostname" does not survive
	assert.HTTPRequest{
		Method: "PUT",
		Path:   "/gatehouse/v1/providers/test/connections/1",
		Header: map[string]string{"X-Auth-Token": token},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{
				"name":       "bastion",
				"protocol":   "rdp",
				"parameters": assert.JSONObject{"port": "3389"},
			},
		},
		ExpectStatus: http.StatusNoContent,
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t, cadf.Event{
		RequestPath: "/gatehouse/v1/providers/test/connections/1",
		Action:      cadf.UpdateAction,
		Outcome:     "success",
		Reason:      cadf.Reason{ReasonType: "HTTP", ReasonCode: "204"},
		Target: cadf.Resource{
			TypeURI:   "remote-access/connection",
			ID:        "1",
			ProjectID: "test",
			Attachments: []cadf.Attachment{{
				Name:    "payload",
				TypeURI: "mime:application/json",
				Content: auditTargetJSON("bastion", "ROOT", "rdp"),
			}},
		},
	})

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1/parameters",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"parameters": assert.JSONObject{"port": "3389"},
		},
	}.Check(t, s.Handler)

	// delete, then the identifier does not resolve anymore
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusNoContent,
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t, cadf.Event{
		RequestPath: "/gatehouse/v1/providers/test/connections/1",
		Action:      cadf.DeleteAction,
		Outcome:     "success",
		Reason:      cadf.Reason{ReasonType: "HTTP", ReasonCode: "204"},
		Target: cadf.Resource{
			TypeURI:   "remote-access/connection",
			ID:        "1",
			ProjectID: "test",
			Attachments: []cadf.Attachment{{
				Name:    "payload",
				TypeURI: "mime:application/json",
				Content: auditTargetJSON("bastion", "ROOT", "rdp"),
			}},
		},
	})

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)
}

func TestConnectionValidation(t *testing.T) {
	s := test.NewSetup(t)
	token := s.NewSession("alice", creatorPerms(), nil)

	// name is required
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/gatehouse/v1/providers/test/connections",
		Header: map[string]string{"X-Auth-Token": token},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{"protocol": "ssh"},
		},
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)

	// protocol is required
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/gatehouse/v1/providers/test/connections",
		Header: map[string]string{"X-Auth-Token": token},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{"name": "bastion"},
		},
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)

	// a missing request body is a client error, not a server error
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/gatehouse/v1/providers/test/connections",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)

	// creating requires CREATE_CONNECTION at the system level
	plainToken := s.NewSession("bob", nil, nil)
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/gatehouse/v1/providers/test/connections",
		Header: map[string]string{"X-Auth-Token": plainToken},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{"name": "bastion", "protocol": "ssh"},
		},
		ExpectStatus: http.StatusForbidden,
		ExpectBody: assert.JSONObject{
			"error": assert.JSONObject{
				"code":    "DENIED",
				"message": "requested access to the resource is denied",
				"detail":  "permission to create connections denied",
			},
		},
	}.Check(t, s.Handler)

	s.Auditor.ExpectEvents(t)
}

func TestExistenceHiding(t *testing.T) {
	s := test.NewSetup(t)
	aliceToken := s.NewSession("alice", creatorPerms(), nil)

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/gatehouse/v1/providers/test/connections",
		Header: map[string]string{"X-Auth-Token": aliceToken},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{"name": "bastion", "protocol": "ssh"},
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	s.Auditor.IgnoreEventsUntilNow()

	// without READ, an existing connection reports the same 404 as an absent one
	bobToken := s.NewSession("bob", nil, nil)
	for _, connectionID := range []string{"1", "42"} {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         "/gatehouse/v1/providers/test/connections/" + connectionID,
			Header:       map[string]string{"X-Auth-Token": bobToken},
			ExpectStatus: http.StatusNotFound,
			ExpectBody: assert.JSONObject{
				"error": assert.JSONObject{
					"code":    "NOT_FOUND",
					"message": "resource not found",
					"detail":  "no such connection",
				},
			},
		}.Check(t, s.Handler)
	}

	// a READ grant makes the connection visible
	readerToken := s.NewSession("carol", nil, map[string][]gatehouse.ObjectPermission{
		"1": {gatehouse.ObjectRead},
	})
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": readerToken},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"connection": assert.JSONObject{
				"identifier":        "1",
				"name":              "bastion",
				"parent_identifier": "ROOT",
				"protocol":          "ssh",
				"attributes":        assert.JSONObject{},
			},
		},
	}.Check(t, s.Handler)

	// but READ does not extend to parameters, updates or deletion
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1/parameters",
		Header:       map[string]string{"X-Auth-Token": readerToken},
		ExpectStatus: http.StatusForbidden,
		ExpectBody: assert.JSONObject{
			"error": assert.JSONObject{
				"code":    "DENIED",
				"message": "requested access to the resource is denied",
				"detail":  "permission to read connection parameters denied",
			},
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method: "PUT",
		Path:   "/gatehouse/v1/providers/test/connections/1",
		Header: map[string]string{"X-Auth-Token": readerToken},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{"name": "bastion", "protocol": "ssh"},
		},
		ExpectStatus: http.StatusForbidden,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": readerToken},
		ExpectStatus: http.StatusForbidden,
	}.Check(t, s.Handler)

	// failed mutations do not produce audit events
	s.Auditor.ExpectEvents(t)
}

func TestDeleteWithOnlyDeleteGrant(t *testing.T) {
	s := test.NewSetup(t)
	aliceToken := s.NewSession("alice", creatorPerms(), nil)

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/gatehouse/v1/providers/test/connections",
		Header: map[string]string{"X-Auth-Token": aliceToken},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{"name": "bastion", "protocol": "ssh"},
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	s.Auditor.IgnoreEventsUntilNow()

	// grants are independent of each other: DELETE does not imply READ, so
	// the connection stays invisible to this user
	daveToken := s.NewSession("dave", nil, map[string][]gatehouse.ObjectPermission{
		"1": {gatehouse.ObjectDelete},
	})
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": daveToken},
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)

	// but deletion is gated by the directory alone, so it goes through; the
	// audit event falls back to the bare identifier because the stored state
	// is not readable by this user
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": daveToken},
		ExpectStatus: http.StatusNoContent,
	}.Check(t, s.Handler)
	s.Auditor.ExpectEvents(t, cadf.Event{
		RequestPath: "/gatehouse/v1/providers/test/connections/1",
		Action:      cadf.DeleteAction,
		Outcome:     "success",
		Reason:      cadf.Reason{ReasonType: "HTTP", ReasonCode: "204"},
		Target: cadf.Resource{
			TypeURI:   "remote-access/connection",
			ID:        "1",
			ProjectID: "test",
			Attachments: []cadf.Attachment{{
				Name:    "payload",
				TypeURI: "mime:application/json",
				Content: auditTargetJSON("", "", ""),
			}},
		},
	})

	// the deletion took effect for everyone
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": aliceToken},
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)
}

func TestParameterCheckPrecedesExistenceCheck(t *testing.T) {
	s := test.NewSetup(t)

	// for a caller without UPDATE anywhere, the parameters endpoint reports
	// 403 even for identifiers that do not exist
	bobToken := s.NewSession("bob", nil, nil)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/42/parameters",
		Header:       map[string]string{"X-Auth-Token": bobToken},
		ExpectStatus: http.StatusForbidden,
	}.Check(t, s.Handler)

	// an admin passes the permission check and gets the honest 404
	adminToken := s.NewSession("admin", []gatehouse.SystemPermission{gatehouse.SystemAdminister}, nil)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/42/parameters",
		Header:       map[string]string{"X-Auth-Token": adminToken},
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)
}

func TestConnectionMove(t *testing.T) {
	s := test.NewSetup(t,
		test.WithGroup("g1", "ROOT"),
		test.WithGroup("g2", "g1"),
		test.WithGroup("cycle-a", "cycle-b"),
		test.WithGroup("cycle-b", "cycle-a"),
	)
	token := s.NewSession("alice", creatorPerms(), nil)

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/gatehouse/v1/providers/test/connections",
		Header: map[string]string{"X-Auth-Token": token},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{"name": "bastion", "protocol": "ssh"},
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	s.Auditor.IgnoreEventsUntilNow()

	move := func(parentID string) assert.HTTPRequest {
		return assert.HTTPRequest{
			Method: "PUT",
			Path:   "/gatehouse/v1/providers/test/connections/1",
			Header: map[string]string{"X-Auth-Token": token},
			Body: assert.JSONObject{
				"connection": assert.JSONObject{
					"name":              "bastion",
					"protocol":          "ssh",
					"parent_identifier": parentID,
				},
			},
		}
	}

	// a valid move into a nested group
	req := move("g2")
	req.ExpectStatus = http.StatusNoContent
	req.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"connection": assert.JSONObject{
				"identifier":        "1",
				"name":              "bastion",
				"parent_identifier": "g2",
				"protocol":          "ssh",
				"attributes":        assert.JSONObject{},
			},
		},
	}.Check(t, s.Handler)

	// a nonexistent parent is a client error
	req = move("no-such-group")
	req.ExpectStatus = http.StatusBadRequest
	req.ExpectBody = assert.JSONObject{
		"error": assert.JSONObject{
			"code":    "INVALID_REQUEST",
			"message": "invalid request",
			"detail":  `no such connection group: "no-such-group"`,
		},
	}
	req.Check(t, s.Handler)

	// a parent chain that loops is a client error
	req = move("cycle-a")
	req.ExpectStatus = http.StatusBadRequest
	req.Check(t, s.Handler)

	// a connection cannot become its own ancestor
	req = move("1")
	req.ExpectStatus = http.StatusBadRequest
	req.Check(t, s.Handler)

	// the failed moves did not change the stored parent
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"connection": assert.JSONObject{
				"identifier":        "1",
				"name":              "bastion",
				"parent_identifier": "g2",
				"protocol":          "ssh",
				"attributes":        assert.JSONObject{},
			},
		},
	}.Check(t, s.Handler)
}

func TestConnectionHistory(t *testing.T) {
	endedAt := time.Unix(300, 0)
	s := test.NewSetup(t,
		test.WithRecord(gatehouse.ConnectionRecord{
			ConnectionID: "1",
			StartedAt:    time.Unix(100, 0),
			EndedAt:      &endedAt,
		}),
		test.WithRecord(gatehouse.ConnectionRecord{
			ConnectionID: "1",
			StartedAt:    time.Unix(200, 0),
		}),
	)
	token := s.NewSession("alice", creatorPerms(), nil)

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/gatehouse/v1/providers/test/connections",
		Header: map[string]string{"X-Auth-Token": token},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{"name": "bastion", "protocol": "ssh"},
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	s.Auditor.IgnoreEventsUntilNow()

	// record order is preserved, and the missing end timestamp stays null
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1/history",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"history": []assert.JSONObject{
				{"connection_identifier": "1", "started_at": 100, "ended_at": 300},
				{"connection_identifier": "1", "started_at": 200, "ended_at": nil},
			},
		},
	}.Check(t, s.Handler)

	// a connection without records has an empty history, not a null one
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/gatehouse/v1/providers/test/connections",
		Header: map[string]string{"X-Auth-Token": token},
		Body: assert.JSONObject{
			"connection": assert.JSONObject{"name": "jumphost", "protocol": "ssh"},
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	s.Auditor.IgnoreEventsUntilNow()
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/2/history",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"history": []assert.JSONObject{},
		},
	}.Check(t, s.Handler)

	// the history endpoint hides existence in the same way as the connection
	// itself
	bobToken := s.NewSession("bob", nil, nil)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1/history",
		Header:       map[string]string{"X-Auth-Token": bobToken},
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)
}

func TestAuthenticationErrors(t *testing.T) {
	s := test.NewSetup(t)
	token := s.NewSession("alice", creatorPerms(), nil)

	// no token
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		ExpectStatus: http.StatusUnauthorized,
		ExpectBody: assert.JSONObject{
			"error": assert.JSONObject{
				"code":    "UNAUTHENTICATED",
				"message": "authentication required",
				"detail":  "no session token provided",
			},
		},
	}.Check(t, s.Handler)

	// unknown token
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": "bogus"},
		ExpectStatus: http.StatusUnauthorized,
	}.Check(t, s.Handler)

	// the token query parameter is an alternative to the header
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/42?token=" + token,
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)

	// a provider scope that the session is not established for
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/other/connections/1",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)

	// an expired session reports the same error as an unknown token
	s.Clock.StepBy(2 * time.Hour)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/gatehouse/v1/providers/test/connections/1",
		Header:       map[string]string{"X-Auth-Token": token},
		ExpectStatus: http.StatusUnauthorized,
		ExpectBody: assert.JSONObject{
			"error": assert.JSONObject{
				"code":    "UNAUTHENTICATED",
				"message": "authentication required",
				"detail":  "session token is invalid or expired",
			},
		},
	}.Check(t, s.Handler)
}
