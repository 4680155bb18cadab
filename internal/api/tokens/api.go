// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package tokensv1 implements session establishment and teardown for the
// Gatehouse V1 API.
package tokensv1

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/respondwith"
	uuid "github.com/satori/go.uuid"

	"github.com/sapcc/gatehouse/internal/gatehouse"
)

// API contains state variables used by the tokens API.
type API struct {
	cfg         gatehouse.Configuration
	authDrivers map[string]gatehouse.AuthDriver // key: provider ID
	dirDriver   gatehouse.DirectoryDriver
	sessions    *gatehouse.SessionRegistry
	timeNow     func() time.Time
	newToken    func() string
}

// NewAPI constructs a new API instance.
func NewAPI(cfg gatehouse.Configuration, authDrivers map[string]gatehouse.AuthDriver, dirDriver gatehouse.DirectoryDriver, sessions *gatehouse.SessionRegistry) *API {
	return &API{
		cfg:         cfg,
		authDrivers: authDrivers,
		dirDriver:   dirDriver,
		sessions:    sessions,
		timeNow:     time.Now,
		newToken:    func() string { return uuid.NewV4().String() },
	}
}

// OverrideTimeNow replaces the clock used for session timestamps. Only used
// in unit tests.
func (a *API) OverrideTimeNow(timeNow func() time.Time) *API {
	a.timeNow = timeNow
	return a
}

// OverrideNewToken replaces the token generator. Only used in unit tests.
func (a *API) OverrideNewToken(newToken func() string) *API {
	a.newToken = newToken
	return a
}

// AddTo implements the api.API interface.
func (a *API) AddTo(r *mux.Router) {
	r.Methods("POST").Path("/gatehouse/v1/tokens").HandlerFunc(a.handlePostToken)
	r.Methods("DELETE").Path("/gatehouse/v1/tokens/{token}").HandlerFunc(a.handleDeleteToken)
}

func respondWithError(w http.ResponseWriter, err *gatehouse.APIError) bool {
	if err == nil {
		return false
	}
	err.WriteAsJSONTo(w)
	return true
}

// credentialsFromRequest reads the username and password either from a JSON
// request body or from an HTTP Basic Authorization header.
func credentialsFromRequest(r *http.Request) (userName, password string, rerr *gatehouse.APIError) {
	if userName, password, ok := r.BasicAuth(); ok {
		return userName, password, nil
	}

	var req struct {
		UserName string `json:"username"`
		Password string `json:"password"`
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		return "", "", gatehouse.ErrInvalidRequest.With("request body is not valid JSON: %s", err.Error())
	}
	if req.UserName == "" || req.Password == "" {
		return "", "", gatehouse.ErrInvalidRequest.With("username and password are required")
	}
	return req.UserName, req.Password, nil
}

func (a *API) handlePostToken(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/gatehouse/v1/tokens")

	userName, password, rerr := credentialsFromRequest(r)
	if respondWithError(w, rerr) {
		return
	}

	// a session is established for every provider that accepts the
	// credentials; rejections by individual providers are not errors as long
	// as at least one provider accepts
	var contexts []*gatehouse.UserContext
	for _, provider := range a.cfg.AuthProviders {
		ad := a.authDrivers[provider.ID]
		uid, rerr := ad.AuthenticateUser(r.Context(), userName, password)
		if rerr != nil {
			logg.Debug("authentication against provider %s failed: %s", provider.ID, rerr.Error())
			continue
		}
		contexts = append(contexts, gatehouse.NewUserContext(provider.ID, uid, a.dirDriver))
	}
	if len(contexts) == 0 {
		respondWithError(w, gatehouse.ErrUnauthenticated.With("invalid username or password"))
		return
	}

	sess := gatehouse.NewSession(a.newToken(), userName, a.timeNow(), contexts)
	a.sessions.Insert(sess)

	providerIDs := sess.ProviderIDs()
	sort.Strings(providerIDs)
	respondwith.JSON(w, http.StatusOK, map[string]any{
		"token":     sess.Token,
		"username":  sess.UserName,
		"providers": providerIDs,
	})
}

func (a *API) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/gatehouse/v1/tokens/:token")

	if !a.sessions.Remove(mux.Vars(r)["token"]) {
		respondWithError(w, gatehouse.ErrNotFound.With("no such session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
