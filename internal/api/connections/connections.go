// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package connectionsv1

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/audittools"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/gatehouse/internal/gatehouse"
)

func (a *API) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/gatehouse/v1/providers/:provider/connections/:id")
	sess, rerr := a.retrieval.ResolveSession(TokenFromRequest(r))
	if respondWithError(w, rerr) {
		return
	}

	// a plain read needs no further directory access, so the combined
	// resolution suffices here
	vars := mux.Vars(r)
	conn, rerr := a.retrieval.ResolveSessionConnection(r.Context(), sess, vars["provider"], vars["connection_id"])
	if respondWithError(w, rerr) {
		return
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{"connection": RenderConnection(*conn)})
}

func (a *API) handleGetConnectionParameters(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/gatehouse/v1/providers/:provider/connections/:id/parameters")
	uc := a.authenticateRequest(w, r)
	if uc == nil {
		return
	}

	// the permission check comes before the existence check, so holders of a
	// session without UPDATE access get a definite 403 here even for
	// connections that they could not see at all
	connectionID := mux.Vars(r)["connection_id"]
	isAdmin := uc.Identity.SystemPermissions().Has(gatehouse.SystemAdminister)
	if !isAdmin && !uc.ConnectionPermissions.Has(gatehouse.ObjectUpdate, connectionID) {
		respondWithError(w, gatehouse.ErrDenied.With("permission to read connection parameters denied"))
		return
	}

	conn, rerr := a.retrieval.ResolveConnection(r.Context(), uc, connectionID)
	if respondWithError(w, rerr) {
		return
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{"parameters": conn.Configuration.Parameters})
}

func (a *API) handleGetConnectionHistory(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/gatehouse/v1/providers/:provider/connections/:id/history")
	uc := a.authenticateRequest(w, r)
	if uc == nil {
		return
	}

	records, rerr := uc.Connections.History(r.Context(), mux.Vars(r)["connection_id"])
	if respondWithError(w, rerr) {
		return
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{"history": RenderConnectionRecords(records)})
}

func (a *API) handlePostConnection(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/gatehouse/v1/providers/:provider/connections")
	uc := a.authenticateRequest(w, r)
	if uc == nil {
		return
	}

	var req struct {
		Connection Connection `json:"connection"`
	}
	if !decodeJSONRequestBody(w, r.Body, &req) {
		return
	}

	created, rerr := uc.Connections.Add(r.Context(), req.Connection.Parse())
	if respondWithError(w, rerr) {
		return
	}

	a.submitAudit(r, uc, cadf.CreateAction, http.StatusCreated, *created)
	respondwith.JSON(w, http.StatusCreated, map[string]any{"connection": RenderConnection(*created)})
}

func (a *API) handlePutConnection(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/gatehouse/v1/providers/:provider/connections/:id")
	uc := a.authenticateRequest(w, r)
	if uc == nil {
		return
	}

	var req struct {
		Connection Connection `json:"connection"`
	}
	if !decodeJSONRequestBody(w, r.Body, &req) {
		return
	}

	// the identifier comes from the path, never from the body
	conn := req.Connection.Parse()
	conn.ID = mux.Vars(r)["connection_id"]

	rerr := uc.Connections.Update(r.Context(), conn)
	if respondWithError(w, rerr) {
		return
	}

	a.submitAudit(r, uc, cadf.UpdateAction, http.StatusNoContent, conn)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/gatehouse/v1/providers/:provider/connections/:id")
	uc := a.authenticateRequest(w, r)
	if uc == nil {
		return
	}

	connectionID := mux.Vars(r)["connection_id"]

	// the audit event carries the stored state if the acting user can read
	// it; deletion itself is gated by the directory alone, so a DELETE grant
	// without READ still deletes
	auditTarget := gatehouse.Connection{ID: connectionID}
	if conn, rerr := a.retrieval.ResolveConnection(r.Context(), uc, connectionID); rerr == nil {
		auditTarget = *conn
	}

	rerr := uc.Connections.Remove(r.Context(), connectionID)
	if respondWithError(w, rerr) {
		return
	}

	a.submitAudit(r, uc, cadf.DeleteAction, http.StatusNoContent, auditTarget)
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSONRequestBody(w http.ResponseWriter, body io.Reader, target any) bool {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	err := dec.Decode(target)
	if err != nil {
		respondWithError(w, gatehouse.ErrInvalidRequest.With("request body is not valid JSON: %s", err.Error()))
		return false
	}
	return true
}

func (a *API) submitAudit(r *http.Request, uc *gatehouse.UserContext, action cadf.Action, statusCode int, conn gatehouse.Connection) {
	userInfo := uc.Identity.UserInfo()
	if userInfo == nil {
		return
	}
	a.auditor.Record(audittools.EventParameters{
		Time:       a.timeNow(),
		Request:    r,
		User:       userInfo,
		ReasonCode: statusCode,
		Action:     action,
		Target:     AuditConnection{ProviderID: uc.ProviderID, Connection: conn},
	})
}
