// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers for the taxonomy API.
// Handlers decode and validate requests, delegate to the service layer
// and encode the JSON response envelope.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taxo/internal/taxonomy"
)

// maxBodyBytes caps JSON request bodies. Category payloads are tiny.
const maxBodyBytes = 1 << 20

// Categories groups the category API handlers around the service layer.
type Categories struct {
	service *taxonomy.Service
}

// NewCategories creates a new Categories handler group.
func NewCategories(service *taxonomy.Service) *Categories {
	return &Categories{service: service}
}

// List returns one page of categories in path order. Query parameters:
// page (default 1), length (default 50, max 200), roots=true to restrict
// the listing to root categories.
func (h *Categories) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	length, _ := strconv.Atoi(r.URL.Query().Get("length"))
	onlyRoots := r.URL.Query().Get("roots") == "true"

	result, err := h.service.ListCategories(page, length, onlyRoots)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, "Categories fetched successfully.", result)
}

// Tree returns the full nested category tree.
func (h *Categories) Tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.GetTree(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, "Category tree fetched successfully.", tree)
}

// Create inserts a new category.
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}

	category, err := h.service.CreateCategory(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusCreated, "Category created successfully.", category)
}

// Show returns a single category.
func (h *Categories) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	category, err := h.service.GetCategory(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, "Category fetched successfully.", category)
}

// Update modifies a category. Changing parent_id schedules an
// asynchronous path rebuild; the response carries the new parent right
// away while descendant paths catch up in the background.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}

	category, err := h.service.UpdateCategory(r.Context(), id, in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, "Category updated successfully.", category)
}

// Delete soft-deletes a category without live children.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, "Category deleted successfully.", nil)
}

// Ancestors returns the chain from root down to the category's parent.
func (h *Categories) Ancestors(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	ancestors, err := h.service.GetAncestors(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, "Ancestors fetched successfully.", ancestors)
}

// Descendants returns every live category in the subtree, in path order.
func (h *Categories) Descendants(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	descendants, err := h.service.GetDescendants(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, "Descendants fetched successfully.", descendants)
}

// Breadcrumb returns the display trail from root to the category.
func (h *Categories) Breadcrumb(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}

	crumb, err := h.service.GetBreadcrumb(id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, "Breadcrumb fetched successfully.", map[string]string{"breadcrumb": crumb})
}

// categoryID parses the {id} route parameter, writing a 400 on garbage.
func categoryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "Invalid category id.")
		return 0, false
	}
	return id, true
}

// decodeInput reads and validates a category payload.
func decodeInput(w http.ResponseWriter, r *http.Request) (taxonomy.CategoryInput, bool) {
	var in taxonomy.CategoryInput

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return in, false
	}
	if msg := validateCategory(in.Name, in.Slug); msg != "" {
		respondError(w, http.StatusUnprocessableEntity, msg)
		return in, false
	}
	return in, true
}
