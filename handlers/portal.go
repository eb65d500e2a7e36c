package handlers

import (
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/giygas/drug-portal-api/calculators"
	"github.com/giygas/drug-portal-api/logging"
)

// Section is one entry of the portal navigation
type Section struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

var portalSections = []Section{
	{Name: "Search", Path: "/search"},
	{Name: "Database", Path: "/database"},
	{Name: "AI Assistant", Path: "/chat"},
	{Name: "Image Upload", Path: "/image-upload"},
	{Name: "Text to Speech", Path: "/tts/messages"},
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// ServeIndex returns the portal navigation and the state of the drug data
func (h *HTTPHandlerImpl) ServeIndex(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats()
	lastLoad := h.store.LastLoad()

	data := map[string]any{
		"drugs":          stats.TotalRecords,
		"loaded_letters": stats.LoadedLetters,
		"is_loading":     h.store.IsLoading(),
	}
	if !lastLoad.FinishedAt.IsZero() {
		data["notice"] = lastLoad.Notice
	}

	w.Header().Set("Cache-Control", "no-cache")
	h.RespondWithJSON(w, http.StatusOK, map[string]any{
		"name":     "Drug Portal",
		"sections": portalSections,
		"data":     data,
	})
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status, details, httpStatus := h.healthChecker.HealthCheck()
	uptime := time.Since(h.startedAt)

	response := HealthResponse{
		Status:        status,
		Uptime:        formatUptimeHuman(uptime),
		UptimeSeconds: math.Round(uptime.Seconds()),
		Data:          details,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	}

	h.RespondWithJSON(w, httpStatus, response)
}

// SearchDrugs runs a full search over the loaded drugs.
// The result is pending when the query's letter is still being fetched.
func (h *HTTPHandlerImpl) SearchDrugs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if err := h.validator.ValidateQuery(query); err != nil {
		logging.Warn("Unusual user input", "q", query)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.RespondWithJSON(w, http.StatusOK, h.store.Search(query))
}

// SuggestDrugs returns typeahead suggestions
func (h *HTTPHandlerImpl) SuggestDrugs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if err := h.validator.ValidateQuery(query); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.RespondWithJSON(w, http.StatusOK, map[string]any{
		"query":       query,
		"suggestions": h.store.Suggest(query),
	})
}

// CalculateBMI computes the body mass index from query parameters
func (h *HTTPHandlerImpl) CalculateBMI(w http.ResponseWriter, r *http.Request) {
	var in calculators.BMIInput
	if err := h.decoder.Decode(&in, r.URL.Query()); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Please enter valid numbers for height and weight")
		return
	}

	result, err := calculators.CalculateBMI(in)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, result)
}

// CalculateHalfLife returns the clearance table for a half-life
func (h *HTTPHandlerImpl) CalculateHalfLife(w http.ResponseWriter, r *http.Request) {
	var in calculators.HalfLifeInput
	if err := h.decoder.Decode(&in, r.URL.Query()); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Please enter a valid half-life")
		return
	}

	result, err := calculators.CalculateHalfLife(in)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, result)
}

// NotFound answers unknown routes
func (h *HTTPHandlerImpl) NotFound(w http.ResponseWriter, r *http.Request) {
	h.RespondWithError(w, http.StatusNotFound, "Resource not found")
}
