package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/giygas/drug-portal-api/drugindex"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
	"github.com/giygas/drug-portal-api/session"
	"github.com/go-chi/chi/v5"
)

// maxPageIndex bounds the stateless ?page= parameter
const maxPageIndex = 500

// defaultReloadTimeout keeps a reload answer inside the server write timeout.
// Letters still downloading at the deadline finish in the background.
const defaultReloadTimeout = 25 * time.Second

// Database view modes
const (
	ModeBrowse = "browse"
	ModeSearch = "search"
)

// DatabaseView is what the database page renders for one session
type DatabaseView struct {
	Cursor interfaces.Cursor        `json:"cursor"`
	Mode   string                   `json:"mode"`
	Page   *interfaces.PageResult   `json:"page,omitempty"`
	Search *interfaces.SearchResult `json:"search,omitempty"`
	Notice *interfaces.Notice       `json:"notice,omitempty"`
}

// ServeDatabase renders the session cursor. A q parameter replaces the
// cursor's search term; two or more characters switch to search mode.
func (h *HTTPHandlerImpl) ServeDatabase(w http.ResponseWriter, r *http.Request) {
	state := session.FromRequest(h.sessions, w, r)

	if r.URL.Query().Has("q") {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if err := h.validator.ValidateQuery(query); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		var err error
		state, err = h.sessions.Update(state.ID, func(st *interfaces.SessionState) error {
			st.Cursor.SearchTerm = query
			return nil
		})
		if err != nil {
			h.respondWithServiceError(w, err)
			return
		}
	}

	h.RespondWithJSON(w, http.StatusOK, h.databaseView(r.Context(), state.Cursor))
}

// SelectLetter switches the active letter and clears the search term
func (h *HTTPHandlerImpl) SelectLetter(w http.ResponseWriter, r *http.Request) {
	letter, err := h.validator.ValidateLetter(chi.URLParam(r, "letter"))
	if err != nil {
		logging.Warn("Unusual user input", "letter", chi.URLParam(r, "letter"))
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := session.FromRequest(h.sessions, w, r)
	state, err = h.sessions.Update(state.ID, func(st *interfaces.SessionState) error {
		st.Cursor.SelectLetter(letter)
		return nil
	})
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.RespondWithJSON(w, http.StatusOK, h.databaseView(r.Context(), state.Cursor))
}

// LoadMore shows one more page of the active letter
func (h *HTTPHandlerImpl) LoadMore(w http.ResponseWriter, r *http.Request) {
	state := session.FromRequest(h.sessions, w, r)

	page, _ := h.store.Page(state.Cursor.ActiveLetter, state.Cursor.Visible)
	if page.HasMore {
		var err error
		state, err = h.sessions.Update(state.ID, func(st *interfaces.SessionState) error {
			st.Cursor.LoadMore()
			return nil
		})
		if err != nil {
			h.respondWithServiceError(w, err)
			return
		}
	}

	h.RespondWithJSON(w, http.StatusOK, h.databaseView(r.Context(), state.Cursor))
}

// ReloadDatabase re-runs the initial load, the retry action after a failure
func (h *HTTPHandlerImpl) ReloadDatabase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.reloadTimeout)
	defer cancel()

	report := h.store.LoadInitialData(ctx)

	switch {
	case report.Skipped, len(report.Pending) > 0:
		h.RespondWithJSON(w, http.StatusAccepted, report)
	case !report.Succeeded():
		h.RespondWithJSON(w, http.StatusBadGateway, report)
	default:
		h.RespondWithJSON(w, http.StatusOK, report)
	}
}

// ServeLetters lists loaded and in-flight letters
func (h *HTTPHandlerImpl) ServeLetters(w http.ResponseWriter, r *http.Request) {
	h.RespondWithJSON(w, http.StatusOK, h.store.Stats())
}

// ServeLetterPage returns page k of a letter without touching any session:
// the first 20+20k records
func (h *HTTPHandlerImpl) ServeLetterPage(w http.ResponseWriter, r *http.Request) {
	letter, err := h.validator.ValidateLetter(chi.URLParam(r, "letter"))
	if err != nil {
		logging.Warn("Unusual user input", "letter", chi.URLParam(r, "letter"))
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	pageIndex := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		pageIndex, err = strconv.Atoi(raw)
		if err != nil || pageIndex < 0 || pageIndex > maxPageIndex {
			logging.Warn("Unusual user input", "page", raw)
			h.RespondWithError(w, http.StatusBadRequest, "Invalid page number")
			return
		}
	}

	if _, err := h.store.FetchLetterShard(r.Context(), letter); err != nil {
		logging.Warn("Letter fetch failed", "letter", letter, "error", err)
		h.RespondWithError(w, http.StatusBadGateway, fmt.Sprintf("Failed to load drugs for letter %s", strings.ToUpper(letter)))
		return
	}

	page, _ := h.store.Page(letter, interfaces.PageSize*(pageIndex+1))
	h.RespondWithJSON(w, http.StatusOK, page)
}

// FindDrugByID looks up one drug among the loaded letters
func (h *HTTPHandlerImpl) FindDrugByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ValidateID(id); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Invalid drug id")
		return
	}

	drug, ok := h.store.Get(id)
	if !ok {
		h.RespondWithError(w, http.StatusNotFound, "Drug not found")
		return
	}
	h.RespondWithJSON(w, http.StatusOK, drug)
}

// databaseView resolves a cursor into either search results or a page of
// the active letter, fetching the letter on first use
func (h *HTTPHandlerImpl) databaseView(ctx context.Context, cursor interfaces.Cursor) DatabaseView {
	view := DatabaseView{Cursor: cursor, Mode: ModeBrowse}

	if utf8.RuneCountInString(cursor.SearchTerm) >= drugindex.MinQueryLength {
		result := h.store.Search(cursor.SearchTerm)
		view.Mode = ModeSearch
		view.Search = &result
		return view
	}

	page, ok := h.store.Page(cursor.ActiveLetter, cursor.Visible)
	if !ok {
		if _, err := h.store.FetchLetterShard(ctx, cursor.ActiveLetter); err != nil {
			logging.Warn("Letter fetch failed", "letter", cursor.ActiveLetter, "error", err)
			view.Notice = &interfaces.Notice{
				Level:   interfaces.NoticeError,
				Message: fmt.Sprintf("Failed to load drugs for letter %s. Please try again.", strings.ToUpper(cursor.ActiveLetter)),
			}
		}
		page, _ = h.store.Page(cursor.ActiveLetter, cursor.Visible)
	}
	view.Page = &page
	return view
}
