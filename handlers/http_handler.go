// Package handlers provides HTTP request handlers for the drug portal API.
// This file implements the HTTPHandler interface with dependency injection.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/giygas/drug-portal-api/calculators"
	"github.com/giygas/drug-portal-api/chat"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
	"github.com/giygas/drug-portal-api/speech"
	"github.com/giygas/drug-portal-api/upload"
	"github.com/giygas/drug-portal-api/validation"
	"github.com/gorilla/schema"
)

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// maxJSONBody bounds JSON request bodies outside the upload route
const maxJSONBody = 64 << 10

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	store         interfaces.DrugStore
	sessions      interfaces.SessionStore
	assistant     interfaces.Assistant
	validator     interfaces.InputValidator
	healthChecker interfaces.HealthChecker
	decoder       *schema.Decoder
	reloadTimeout time.Duration
	startedAt     time.Time
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	store interfaces.DrugStore,
	sessions interfaces.SessionStore,
	assistant interfaces.Assistant,
	validator interfaces.InputValidator,
	healthChecker interfaces.HealthChecker,
) interfaces.HTTPHandler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &HTTPHandlerImpl{
		store:         store,
		sessions:      sessions,
		assistant:     assistant,
		validator:     validator,
		healthChecker: healthChecker,
		decoder:       decoder,
		reloadTimeout: defaultReloadTimeout,
		startedAt:     time.Now(),
	}
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err, "payload_type", fmt.Sprintf("%T", payload))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	h.RespondWithJSON(w, code, errorResponse)
}

// respondWithServiceError maps domain errors onto HTTP status codes
func (h *HTTPHandlerImpl) respondWithServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		logging.Error("Request failed", "error", err)
		message = "Internal server error"
	}
	h.RespondWithError(w, code, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrInvalidInput),
		errors.Is(err, calculators.ErrInvalidInput),
		errors.Is(err, speech.ErrInvalidOptions),
		errors.Is(err, speech.ErrEmptyText),
		errors.Is(err, speech.ErrTextTooLong),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMissingKey),
		errors.Is(err, upload.ErrEmpty):
		return http.StatusBadRequest
	case errors.Is(err, speech.ErrMessageNotFound),
		errors.Is(err, interfaces.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chat.ErrRemote),
		errors.Is(err, chat.ErrEmptyResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON body, or a url-encoded form through the schema decoder
func (h *HTTPHandlerImpl) decodeBody(r *http.Request, dst any) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := sonic.ConfigStd.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
			return fmt.Errorf("%w: malformed JSON body", validation.ErrInvalidInput)
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: malformed form body", validation.ErrInvalidInput)
	}
	if err := h.decoder.Decode(dst, r.PostForm); err != nil {
		return fmt.Errorf("%w: %v", validation.ErrInvalidInput, err)
	}
	return nil
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
