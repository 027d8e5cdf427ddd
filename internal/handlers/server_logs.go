package handlers

import (
	"net/http"

	"github.com/gluk-w/termhub/internal/logging"
)

func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	content, err := logging.ReadTail(queryInt(r, "lines", 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": content})
}

func ClearServerLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
