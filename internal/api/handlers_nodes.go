// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/tomtom215/opclink/internal/logging"
	"github.com/tomtom215/opclink/internal/nodetree"
	"github.com/tomtom215/opclink/internal/supervisor"
)

// redacted replaces secret attribute values in responses.
const redacted = "********"

// secretAttributes are never returned in clear.
var secretAttributes = map[string]bool{
	supervisor.AttrPassword:                            true,
	supervisor.SettingPrefix + supervisor.AttrPassword: true,
}

// ConnectionView summarizes one endpoint for GET /api/v1/connections.
type ConnectionView struct {
	Name    string       `json:"name"`
	Path    string       `json:"path"`
	Host    string       `json:"host"`
	Servers []ServerView `json:"servers"`
}

// ServerView summarizes one supervised server connection.
type ServerView struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	ServerID  string `json:"server_id"`
	Status    string `json:"status"`
	Phase     string `json:"phase"`
	FailCount int    `json:"fail_count"`
	Items     int    `json:"items"`
}

// WriteResult is returned by PUT /api/v1/values.
type WriteResult struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// InvokeResult is returned by POST /api/v1/actions.
type InvokeResult struct {
	Path    string `json:"path"`
	Action  string `json:"action"`
	Removed bool   `json:"removed"`
}

// resolve validates the path query parameter and resolves it. It writes the
// error response itself and returns false on failure.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, req any, path string) (nodetree.NodeID, bool) {
	if !validateRequest(w, r, req) {
		return nodetree.InvalidNode, false
	}
	id, ok := h.tree.Resolve(path)
	if !ok {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "No node at "+path, nil)
		return nodetree.InvalidNode, false
	}
	return id, true
}

// GetNode handles GET /api/v1/nodes?path=/a/b and describes one node.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	req := NodeRequest{Path: r.URL.Query().Get("path")}
	if req.Path == "" {
		req.Path = nodetree.PathSeparator
	}
	id, ok := h.resolve(w, r, &req, req.Path)
	if !ok {
		return
	}

	info, err := h.tree.Describe(id)
	if err != nil {
		respondTreeError(w, r, err)
		return
	}
	for key, value := range info.Attributes {
		if secretAttributes[key] && value != "" {
			info.Attributes[key] = redacted
		}
	}
	respondOK(w, r, info)
}

// ListConnections handles GET /api/v1/connections.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	endpoints := h.link.Endpoints()
	out := make([]ConnectionView, 0, len(endpoints))
	for _, e := range endpoints {
		view := ConnectionView{
			Name:    e.Name(),
			Path:    h.tree.Path(e.Node()),
			Host:    e.Credentials().Host,
			Servers: []ServerView{},
		}
		for _, s := range e.Supervisors() {
			st := s.State()
			view.Servers = append(view.Servers, ServerView{
				Name:      s.Name(),
				Path:      h.tree.Path(s.Node()),
				ServerID:  s.ServerID(),
				Status:    s.Status(),
				Phase:     st.Phase.String(),
				FailCount: st.FailCount,
				Items:     s.Items().Len(),
			})
		}
		out = append(out, view)
	}
	respondOK(w, r, out)
}

// InvokeAction handles POST /api/v1/actions?path=/a/b/edit with an optional
// body {"params": {...}}.
func (h *Handler) InvokeAction(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Request body must be a JSON object", err)
			return
		}
	}
	req.Path = r.URL.Query().Get("path")
	id, ok := h.resolve(w, r, &req, req.Path)
	if !ok {
		return
	}

	action := h.tree.Name(id)
	if err := h.tree.Invoke(r.Context(), id, req.Params); err != nil {
		respondTreeError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("path", sanitizeLogValue(req.Path)).
		Msg("Control invoked")

	respondOK(w, r, InvokeResult{
		Path:    req.Path,
		Action:  action,
		Removed: !h.tree.Exists(id),
	})
}

// WriteValue handles PUT /api/v1/values?path=/a/b/item with body
// {"value": ...} and writes through to the item's driver.
func (h *Handler) WriteValue(w http.ResponseWriter, r *http.Request) {
	var req WriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Request body must be a JSON object with a value", err)
		return
	}
	req.Path = r.URL.Query().Get("path")
	if req.Value == nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "value is required", nil)
		return
	}
	id, ok := h.resolve(w, r, &req, req.Path)
	if !ok {
		return
	}

	if err := h.tree.Write(r.Context(), id, req.Value); err != nil {
		respondTreeError(w, r, err)
		return
	}
	respondOK(w, r, WriteResult{Path: req.Path, Value: req.Value})
}
