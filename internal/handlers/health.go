package handlers

import (
	"net/http"

	"github.com/gluk-w/termhub/internal/database"
	"github.com/gluk-w/termhub/internal/healthcheck"
	"github.com/gluk-w/termhub/internal/inventory"
)

// Prober is set from main.go; nil disables the backend section.
var Prober *healthcheck.Prober

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	invBackend := "none"
	if src := inventory.Get(); src != nil {
		invBackend = src.BackendName()
	}

	sessions := 0
	if Registry != nil {
		sessions = Registry.Count()
	}

	status := "healthy"
	resp := map[string]interface{}{
		"database":          dbStatus,
		"inventory_backend": invBackend,
		"sessions":          sessions,
	}
	if Prober != nil {
		st := Prober.Status()
		resp["terminal_backend"] = st
		if !st.Reachable {
			status = "degraded"
		}
	}
	if Registry == nil {
		status = "unhealthy"
	}
	resp["status"] = status

	writeJSON(w, http.StatusOK, resp)
}
