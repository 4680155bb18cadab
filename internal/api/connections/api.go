// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package connectionsv1 implements the connection directory part of the
// Gatehouse V1 API.
package connectionsv1

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sapcc/gatehouse/internal/gatehouse"
)

// API contains state variables used by the connection directory API.
type API struct {
	cfg       gatehouse.Configuration
	retrieval gatehouse.RetrievalService
	auditor   gatehouse.Auditor
	timeNow   func() time.Time
}

// NewAPI constructs a new API instance.
func NewAPI(cfg gatehouse.Configuration, sessions *gatehouse.SessionRegistry, auditor gatehouse.Auditor) *API {
	return &API{
		cfg:       cfg,
		retrieval: gatehouse.RetrievalService{Sessions: sessions},
		auditor:   auditor,
		timeNow:   time.Now,
	}
}

// OverrideTimeNow replaces the clock that timestamps audit events. Only used
// in unit tests.
func (a *API) OverrideTimeNow(timeNow func() time.Time) *API {
	a.timeNow = timeNow
	return a
}

// AddTo implements the api.API interface.
func (a *API) AddTo(r *mux.Router) {
	r.Methods("POST").Path("/gatehouse/v1/providers/{provider}/connections").HandlerFunc(a.handlePostConnection)
	r.Methods("GET").Path("/gatehouse/v1/providers/{provider}/connections/{connection_id}").HandlerFunc(a.handleGetConnection)
	r.Methods("PUT").Path("/gatehouse/v1/providers/{provider}/connections/{connection_id}").HandlerFunc(a.handlePutConnection)
	r.Methods("DELETE").Path("/gatehouse/v1/providers/{provider}/connections/{connection_id}").HandlerFunc(a.handleDeleteConnection)
	r.Methods("GET").Path("/gatehouse/v1/providers/{provider}/connections/{connection_id}/parameters").HandlerFunc(a.handleGetConnectionParameters)
	r.Methods("GET").Path("/gatehouse/v1/providers/{provider}/connections/{connection_id}/history").HandlerFunc(a.handleGetConnectionHistory)
}

// TokenFromRequest extracts the session token from an API request. The token
// travels in the X-Auth-Token header; the query parameter is accepted for
// clients that cannot set headers (e.g. EventSource).
func TokenFromRequest(r *http.Request) string {
	token := r.Header.Get("X-Auth-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return token
}

func respondWithError(w http.ResponseWriter, err *gatehouse.APIError) bool {
	if err == nil {
		return false
	}
	err.WriteAsJSONTo(w)
	return true
}

// authenticateRequest resolves the request's session token into the
// UserContext for the provider scope named in the request path. Returns nil
// after writing an error response if the token or the provider scope does not
// resolve.
func (a *API) authenticateRequest(w http.ResponseWriter, r *http.Request) *gatehouse.UserContext {
	sess, rerr := a.retrieval.ResolveSession(TokenFromRequest(r))
	if respondWithError(w, rerr) {
		return nil
	}
	uc, rerr := a.retrieval.ResolveUserContext(sess, mux.Vars(r)["provider"])
	if respondWithError(w, rerr) {
		return nil
	}
	return uc
}
