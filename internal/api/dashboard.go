package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

type pinRequest struct {
	Title string          `json:"title"`
	Chart json.RawMessage `json:"chart"`
}

func handleListCharts(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	charts, err := deps.Dashboard.ListCharts(r.Context(), sessionID)
	if err != nil {
		writeStoreError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"charts": charts})
}

func handlePinChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	var request pinRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid pin request body", false, map[string]any{"details": err.Error()})
		return
	}
	pinned, err := deps.Dashboard.PinChart(r.Context(), sessionID, request.Title, request.Chart)
	if err != nil {
		writeStoreError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "chart_id": pinned.ID, "chart": pinned})
}

func handleRemoveChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard is not configured", false, nil)
		return
	}
	sessionID, ok := requireSession(w, r)
	if !ok {
		return
	}
	chartID := strings.TrimSpace(r.PathValue("chart_id"))
	removed, err := deps.Dashboard.RemoveChart(r.Context(), sessionID, chartID)
	if err != nil {
		writeStoreError(deps, w, r, err)
		return
	}
	if !removed {
		writeError(r.Context(), w, http.StatusNotFound, "CHART_NOT_FOUND", "chart is not pinned on this dashboard", false, map[string]any{"chart_id": chartID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chart_id": chartID})
}
