package api

import (
	"net/http"
)

type queryRequest struct {
	Query string `json:"query"`
}

type visualizeRequest struct {
	Query     string `json:"query"`
	ChartType string `json:"chart_type"`
}

// Pipeline failures are part of the envelope, so both handlers answer 200
// once the request itself is well formed.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	var request queryRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, deps.Analyst.Query(r.Context(), sessionID, request.Query))
}

func handleVisualize(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "VISUALIZE_NOT_CONFIGURED", "chart pipeline is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	var request visualizeRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid visualize request body", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, deps.Analyst.Visualize(r.Context(), sessionID, request.Query, request.ChartType))
}
