package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
	"github.com/giygas/drug-portal-api/metrics"
)

// Compile-time check to ensure Service implements Assistant
var _ interfaces.Assistant = (*Service)(nil)

const (
	// Greeting opens every conversation once a key is accepted
	Greeting = "Hello! I'm your Drug AI Assistant. I can help you with information about medications, drug interactions, side effects, and more. How can I assist you today?"

	remoteApology    = "I'm sorry, I'm having trouble processing your request. Please try again."
	transportApology = "I'm sorry, there was an error processing your request. Please check your internet connection and try again."

	keyCheckPrompt = "Hello"
)

// ErrEmptyMessage is returned for blank user messages
var ErrEmptyMessage = errors.New("message is empty")

// Service keeps one conversation per session
type Service struct {
	client   interfaces.ChatClient
	sessions interfaces.SessionStore
	now      func() time.Time
}

// NewService creates a chat service over a client and a session store
func NewService(client interfaces.ChatClient, sessions interfaces.SessionStore) *Service {
	return &Service{client: client, sessions: sessions, now: time.Now}
}

func (s *Service) greeting() []interfaces.ChatTurn {
	return []interfaces.ChatTurn{{Role: interfaces.RoleModel, Text: Greeting, CreatedAt: s.now()}}
}

// SetKey validates apiKey with a short test request and, on success, stores it
// in the session and starts the conversation with the greeting
func (s *Service) SetKey(ctx context.Context, sessionID, apiKey string) ([]interfaces.ChatTurn, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingKey
	}

	check := []interfaces.ChatTurn{{Role: interfaces.RoleUser, Text: keyCheckPrompt}}
	if _, err := s.client.Generate(ctx, apiKey, check); err != nil {
		metrics.ChatRequestTotal.WithLabelValues("key_rejected").Inc()
		logging.Warn("Chat API key validation failed", "error", err)
		return nil, err
	}
	metrics.ChatRequestTotal.WithLabelValues("key_accepted").Inc()

	state, err := s.sessions.Update(sessionID, func(st *interfaces.SessionState) error {
		st.ChatKey = apiKey
		st.ChatHistory = s.greeting()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state.ChatHistory, nil
}

// Send appends the user message, asks the model and appends its answer.
// On failure an apology turn is appended instead and the error is returned
// together with the reply.
func (s *Service) Send(ctx context.Context, sessionID, text string) (interfaces.ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return interfaces.ChatReply{}, ErrEmptyMessage
	}

	userTurn := interfaces.ChatTurn{Role: interfaces.RoleUser, Text: text, CreatedAt: s.now()}
	var apiKey string
	var conversation []interfaces.ChatTurn
	_, err := s.sessions.Update(sessionID, func(st *interfaces.SessionState) error {
		if st.ChatKey == "" {
			return ErrMissingKey
		}
		apiKey = st.ChatKey
		st.ChatHistory = append(st.ChatHistory, userTurn)
		conversation = append([]interfaces.ChatTurn(nil), st.ChatHistory...)
		return nil
	})
	if err != nil {
		return interfaces.ChatReply{}, err
	}

	answer, genErr := s.client.Generate(ctx, apiKey, conversation)

	reply := interfaces.ChatTurn{Role: interfaces.RoleModel, Text: answer, CreatedAt: s.now()}
	if genErr != nil {
		metrics.ChatRequestTotal.WithLabelValues("error").Inc()
		logging.Warn("Chat request failed", "error", genErr)
		reply.Text = apologyFor(genErr)
	} else {
		metrics.ChatRequestTotal.WithLabelValues("success").Inc()
	}

	state, err := s.sessions.Update(sessionID, func(st *interfaces.SessionState) error {
		st.ChatHistory = append(st.ChatHistory, reply)
		return nil
	})
	if err != nil {
		return interfaces.ChatReply{}, err
	}

	result := interfaces.ChatReply{Reply: reply, History: state.ChatHistory}
	if genErr != nil {
		result.Failed = true
		result.Error = userMessage(genErr)
		return result, genErr
	}
	return result, nil
}

// Reset restarts the conversation from the greeting, keeping the key
func (s *Service) Reset(sessionID string) ([]interfaces.ChatTurn, error) {
	state, err := s.sessions.Update(sessionID, func(st *interfaces.SessionState) error {
		if st.ChatKey == "" {
			st.ChatHistory = []interfaces.ChatTurn{}
			return nil
		}
		st.ChatHistory = s.greeting()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state.ChatHistory, nil
}

// History returns the conversation and whether a key is configured
func (s *Service) History(sessionID string) (bool, []interfaces.ChatTurn, error) {
	state, ok := s.sessions.Get(sessionID)
	if !ok {
		return false, nil, interfaces.ErrSessionNotFound
	}
	return state.ChatKey != "", state.ChatHistory, nil
}

func apologyFor(err error) string {
	if errors.Is(err, ErrRemote) || errors.Is(err, ErrEmptyResponse) {
		return remoteApology
	}
	return transportApology
}

// userMessage is what the browser shows in its error toast
func userMessage(err error) string {
	if msg := RemoteMessage(err); msg != "" {
		return msg
	}
	if errors.Is(err, ErrEmptyResponse) {
		return "Failed to get response"
	}
	return "Failed to send message"
}
