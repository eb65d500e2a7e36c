// Package health provides health checking functionality for the drug portal API.
package health

import (
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/giygas/drug-portal-api/interfaces"
)

// Compile-time check to ensure HealthCheckerImpl implements HealthChecker
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	store          interfaces.DrugStore
	initialLetters []string
	now            func() time.Time
}

// NewHealthChecker creates a new health checker with injected dependencies.
// initialLetters are the letters a healthy portal must have loaded.
func NewHealthChecker(store interfaces.DrugStore, initialLetters string) interfaces.HealthChecker {
	letters := make([]string, 0, len(initialLetters))
	for _, r := range initialLetters {
		letters = append(letters, string(r))
	}
	return &HealthCheckerImpl{
		store:          store,
		initialLetters: letters,
		now:            time.Now,
	}
}

// HealthCheck reports whether the index can serve the portal.
//
//   - unhealthy: nothing has been loaded yet
//   - degraded: some initial letters are still missing
//   - healthy: every initial letter is loaded
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	stats := h.store.Stats()
	lastLoad := h.store.LastLoad()
	isLoading := h.store.IsLoading()
	missing := h.missingLetters(stats.LoadedLetters)

	switch {
	case stats.TotalRecords == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case len(missing) > 0:
		status = "degraded"
		httpStatus = http.StatusOK

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"drugs":             stats.TotalRecords,
		"loaded_letters":    stats.LoadedLetters,
		"in_flight_letters": stats.InFlightLetters,
		"missing_letters":   missing,
		"is_loading":        isLoading,
	}

	if !stats.LastUpdated.IsZero() {
		dataAge := h.now().Sub(stats.LastUpdated)
		data["last_update"] = stats.LastUpdated.Format(time.RFC3339)
		data["data_age_hours"] = math.Round(dataAge.Hours()*10) / 10
	}

	if !lastLoad.FinishedAt.IsZero() {
		data["last_load"] = lastLoad.Notice
	}

	return status, data, httpStatus
}

func (h *HealthCheckerImpl) missingLetters(loaded []string) []string {
	missing := []string{}
	for _, l := range h.initialLetters {
		if !slices.Contains(loaded, l) {
			missing = append(missing, l)
		}
	}
	return missing
}
