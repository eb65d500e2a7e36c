package handlers

import (
	"errors"
	"net/http"

	"github.com/giygas/drug-portal-api/chat"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/session"
)

// maxChatMessage bounds one user message
const maxChatMessage = 4000

type chatKeyRequest struct {
	APIKey string `json:"api_key" schema:"api_key"`
}

type chatMessageRequest struct {
	Message string `json:"message" schema:"message"`
}

// ChatState is the conversation as seen by the browser. The key itself is
// never sent back.
type ChatState struct {
	HasKey  bool                  `json:"has_key"`
	History []interfaces.ChatTurn `json:"history"`
}

// chatFailure keeps the error envelope and adds the apology turn
type chatFailure struct {
	Error   string                `json:"error"`
	Message string                `json:"message"`
	Code    int                   `json:"code"`
	Reply   interfaces.ChatTurn   `json:"reply"`
	History []interfaces.ChatTurn `json:"history"`
}

// ServeChat returns the conversation of the session
func (h *HTTPHandlerImpl) ServeChat(w http.ResponseWriter, r *http.Request) {
	state := session.FromRequest(h.sessions, w, r)

	hasKey, history, err := h.assistant.History(state.ID)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, ChatState{HasKey: hasKey, History: nonNilTurns(history)})
}

// SetChatKey validates an API key against the model and stores it in the session
func (h *HTTPHandlerImpl) SetChatKey(w http.ResponseWriter, r *http.Request) {
	var req chatKeyRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	state := session.FromRequest(h.sessions, w, r)
	history, err := h.assistant.SetKey(r.Context(), state.ID, req.APIKey)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrMissingKey):
			h.RespondWithError(w, http.StatusBadRequest, "Please enter your API key")
		case errors.Is(err, chat.ErrRemote), errors.Is(err, chat.ErrEmptyResponse):
			h.RespondWithError(w, http.StatusUnauthorized, "Invalid API key. Please check and try again.")
		case errors.Is(err, interfaces.ErrSessionNotFound):
			h.respondWithServiceError(w, err)
		default:
			h.RespondWithError(w, http.StatusBadGateway, "Failed to validate API key")
		}
		return
	}

	h.RespondWithJSON(w, http.StatusOK, ChatState{HasKey: true, History: history})
}

// SendChatMessage sends one user message and returns the model's answer.
// A failed exchange still returns the apology turn and the updated history.
func (h *HTTPHandlerImpl) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	if err := h.validator.ValidateText(req.Message, maxChatMessage); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := session.FromRequest(h.sessions, w, r)
	reply, err := h.assistant.Send(r.Context(), state.ID, req.Message)
	if err != nil {
		if !reply.Failed {
			h.respondWithServiceError(w, err)
			return
		}
		h.RespondWithJSON(w, http.StatusBadGateway, chatFailure{
			Error:   http.StatusText(http.StatusBadGateway),
			Message: reply.Error,
			Code:    http.StatusBadGateway,
			Reply:   reply.Reply,
			History: reply.History,
		})
		return
	}

	h.RespondWithJSON(w, http.StatusOK, reply)
}

// ResetChat restarts the conversation from the greeting
func (h *HTTPHandlerImpl) ResetChat(w http.ResponseWriter, r *http.Request) {
	state := session.FromRequest(h.sessions, w, r)

	history, err := h.assistant.Reset(state.ID)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	hasKey, _, _ := h.assistant.History(state.ID)
	h.RespondWithJSON(w, http.StatusOK, ChatState{HasKey: hasKey, History: nonNilTurns(history)})
}

func nonNilTurns(turns []interfaces.ChatTurn) []interfaces.ChatTurn {
	if turns == nil {
		return []interfaces.ChatTurn{}
	}
	return turns
}
