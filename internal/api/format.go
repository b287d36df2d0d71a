package api

import (
	"net/http"
	"strconv"

	"github.com/Priya8975/zap-goal-tracker/internal/engine"
)

// FormatSats renders a millisat amount for display.
func FormatSats(w http.ResponseWriter, r *http.Request) {
	msats, err := strconv.ParseInt(r.URL.Query().Get("msats"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "msats must be an integer")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"formatted": engine.FormatSats(msats)})
}
