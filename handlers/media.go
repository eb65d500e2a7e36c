package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
	"github.com/giygas/drug-portal-api/session"
	"github.com/giygas/drug-portal-api/speech"
	"github.com/giygas/drug-portal-api/upload"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is the in-memory part of a parsed upload form
const multipartMemory = 1 << 20

type saveMessageRequest struct {
	Text string `json:"text" schema:"text"`
}

// SpeechState is the text-to-speech panel of a session
type SpeechState struct {
	Options  interfaces.SpeechOptions  `json:"options"`
	Messages []interfaces.SavedMessage `json:"messages"`
}

// UploadImage validates an image and echoes a preview. Nothing is stored.
func (h *HTTPHandlerImpl) UploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Expected a multipart form with an image field")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Please select an image file")
		return
	}
	defer file.Close()

	if header.Size > upload.MaxImageSize {
		h.respondWithServiceError(w, upload.ErrTooLarge)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, upload.MaxImageSize+1))
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	result, err := upload.Preview(header.Filename, data)
	if err != nil {
		logging.Debug("Image rejected", "filename", header.Filename, "size", len(data), "error", err)
		h.respondWithServiceError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, result)
}

// ServeSpeechMessages returns the saved messages and voice settings
func (h *HTTPHandlerImpl) ServeSpeechMessages(w http.ResponseWriter, r *http.Request) {
	state := session.FromRequest(h.sessions, w, r)
	h.RespondWithJSON(w, http.StatusOK, speechState(state))
}

// SaveSpeechMessage keeps a text for later playback
func (h *HTTPHandlerImpl) SaveSpeechMessage(w http.ResponseWriter, r *http.Request) {
	var req saveMessageRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	if err := h.validator.ValidateText(req.Text, speech.MaxMessageLength); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := speech.NewMessage(req.Text, time.Now())
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	state := session.FromRequest(h.sessions, w, r)
	if _, err := h.sessions.Update(state.ID, func(st *interfaces.SessionState) error {
		st.Messages = append(st.Messages, msg)
		return nil
	}); err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.RespondWithJSON(w, http.StatusCreated, msg)
}

// DeleteSpeechMessage removes a saved message
func (h *HTTPHandlerImpl) DeleteSpeechMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ValidateID(id); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Invalid message id")
		return
	}

	state := session.FromRequest(h.sessions, w, r)
	state, err := h.sessions.Update(state.ID, func(st *interfaces.SessionState) error {
		return speech.RemoveMessage(st, id)
	})
	if err != nil {
		if errors.Is(err, speech.ErrMessageNotFound) {
			h.RespondWithError(w, http.StatusNotFound, "Message not found")
			return
		}
		h.respondWithServiceError(w, err)
		return
	}

	h.RespondWithJSON(w, http.StatusOK, speechState(state))
}

// SetSpeechOptions updates the voice settings. Omitted fields keep their value.
func (h *HTTPHandlerImpl) SetSpeechOptions(w http.ResponseWriter, r *http.Request) {
	state := session.FromRequest(h.sessions, w, r)

	opts := state.Speech
	if err := h.decodeBody(r, &opts); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	if err := speech.ValidateOptions(opts); err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	state, err := h.sessions.Update(state.ID, func(st *interfaces.SessionState) error {
		st.Speech = opts
		return nil
	})
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.RespondWithJSON(w, http.StatusOK, speechState(state))
}

func speechState(state interfaces.SessionState) SpeechState {
	messages := state.Messages
	if messages == nil {
		messages = []interfaces.SavedMessage{}
	}
	return SpeechState{Options: state.Speech, Messages: messages}
}
