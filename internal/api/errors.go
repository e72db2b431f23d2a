// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/opclink/internal/driver"
	"github.com/tomtom215/opclink/internal/nodetree"
	"github.com/tomtom215/opclink/internal/supervisor"
)

// errorMapping maps a sentinel error to its HTTP status and code.
type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{nodetree.ErrNodeNotFound, http.StatusNotFound, ErrCodeNotFound},
	{nodetree.ErrNoAction, http.StatusBadRequest, ErrCodeNoAction},
	{nodetree.ErrNotWritable, http.StatusConflict, ErrCodeNotWritable},
	{nodetree.ErrInvalidName, http.StatusBadRequest, ErrCodeBadRequest},
	{nodetree.ErrNameTaken, http.StatusConflict, ErrCodeConflict},
	{nodetree.ErrRootNode, http.StatusBadRequest, ErrCodeBadRequest},
	{supervisor.ErrRemoved, http.StatusGone, ErrCodeGone},
	{supervisor.ErrEndpointExists, http.StatusConflict, ErrCodeConflict},
	{supervisor.ErrServerExists, http.StatusConflict, ErrCodeConflict},
	{supervisor.ErrMissingName, http.StatusBadRequest, ErrCodeBadRequest},
	{supervisor.ErrMissingServer, http.StatusBadRequest, ErrCodeBadRequest},
	{supervisor.ErrMissingItemID, http.StatusBadRequest, ErrCodeBadRequest},
	{supervisor.ErrItemPath, http.StatusBadRequest, ErrCodeBadRequest},
	{driver.ErrUnknownDriver, http.StatusBadRequest, ErrCodeBadRequest},
	{driver.ErrReadOnly, http.StatusConflict, ErrCodeNotWritable},
	{driver.ErrNotConnected, http.StatusServiceUnavailable, ErrCodeDriverError},
	{driver.ErrUnknownItem, http.StatusBadGateway, ErrCodeDriverError},
}

// respondTreeError maps an error from the tree, a supervisor or a driver to a
// response. Messages of known errors are safe to return; anything else is
// reported as a driver failure without details.
func respondTreeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			respondError(w, r, m.status, m.code, err.Error(), err)
			return
		}
	}
	respondError(w, r, http.StatusBadGateway, ErrCodeDriverError, "The operation failed", err)
}
