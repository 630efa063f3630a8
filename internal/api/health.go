package api

import "net/http"

// health reports process liveness. No dependencies are checked; the
// service holds all state in memory.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
