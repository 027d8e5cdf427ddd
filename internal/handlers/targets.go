package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gluk-w/termhub/internal/inventory"
	"github.com/go-chi/chi/v5"
)

// ListTargets returns the inventory.
// GET /api/v1/targets
func ListTargets(w http.ResponseWriter, r *http.Request) {
	src := inventory.Get()
	if src == nil {
		writeError(w, http.StatusServiceUnavailable, "No inventory source available")
		return
	}
	targets, err := src.ListTargets(r.Context())
	if err != nil {
		log.Printf("[inventory] list targets: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to list targets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"targets": targets,
		"total":   len(targets),
		"backend": src.BackendName(),
	})
}

// GetTarget returns one inventory entry.
// GET /api/v1/targets/{id}
func GetTarget(w http.ResponseWriter, r *http.Request) {
	src := inventory.Get()
	if src == nil {
		writeError(w, http.StatusServiceUnavailable, "No inventory source available")
		return
	}
	target, err := inventory.Find(r.Context(), src, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, inventory.ErrTargetNotFound) {
			writeError(w, http.StatusNotFound, "Target not found")
			return
		}
		log.Printf("[inventory] get target: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to look up target")
		return
	}
	writeJSON(w, http.StatusOK, target)
}
