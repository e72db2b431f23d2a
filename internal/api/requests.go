// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package api

import (
	"net/http"

	"github.com/tomtom215/opclink/internal/validation"
)

// The path of every request comes from the path query parameter; a path in
// the body is overwritten.

// NodeRequest selects a node by path.
type NodeRequest struct {
	Path string `json:"path" validate:"required,nodepath"`
}

// InvokeRequest is the body of POST /api/v1/actions. Parameters missing from
// Params take the control's defaults.
type InvokeRequest struct {
	Path   string            `json:"path" validate:"required,nodepath"`
	Params map[string]string `json:"params" validate:"max=32"`
}

// WriteRequest is the body of PUT /api/v1/values. A null value is rejected
// by the handler.
type WriteRequest struct {
	Path  string `json:"path" validate:"required,nodepath"`
	Value any    `json:"value"`
}

// validateRequest writes a 400 response and returns false when req fails
// validation.
func validateRequest(w http.ResponseWriter, r *http.Request, req any) bool {
	verr := validation.ValidateStruct(req)
	if verr == nil {
		return true
	}
	apiErr := verr.ToAPIError()
	respondJSON(w, r, http.StatusBadRequest, &APIResponse{
		Error: &APIError{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details},
	})
	return false
}
