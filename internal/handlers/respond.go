// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"taxo/internal/taxonomy"
)

// envelope is the wire shape of every API response.
type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(w http.ResponseWriter, statusCode int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(envelope{
		Status:  statusCode < 400,
		Message: message,
		Data:    data,
	})
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respond(w, statusCode, message, nil)
}

// respondServiceError maps service errors to HTTP status codes. Anything
// that is not a typed taxonomy error is a server fault and gets logged
// without leaking internals to the client.
func respondServiceError(w http.ResponseWriter, err error) {
	var (
		vErr  *taxonomy.ValidationError
		nfErr *taxonomy.NotFoundError
		cErr  *taxonomy.ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		respondError(w, http.StatusUnprocessableEntity, vErr.Error())
	case errors.As(err, &nfErr):
		respondError(w, http.StatusNotFound, nfErr.Error())
	case errors.As(err, &cErr):
		respondError(w, http.StatusConflict, cErr.Error())
	default:
		slog.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Something went wrong.")
	}
}
