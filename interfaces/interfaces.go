// Package interfaces defines core abstractions for the drug portal API
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/drug-portal-api/drugsparser/entities"
)

// ShardFetcher defines the contract for downloading one letter shard.
// Implementations must honor ctx cancellation and deadlines.
type ShardFetcher interface {
	FetchShard(ctx context.Context, letter string) ([]entities.DrugRecord, error)
}

// ShardCache is a secondary store for normalized letter shards.
// A miss is reported with ok=false and a nil error.
type ShardCache interface {
	Get(ctx context.Context, letter string) (records []entities.DrugRecord, ok bool, err error)
	Set(ctx context.Context, letter string, records []entities.DrugRecord) error
}

// DrugStore defines the contract for the letter-sharded drug index.
// It owns the combined record set, per-letter partitions and the in-flight set.
type DrugStore interface {
	// Shard loading
	FetchLetterShard(ctx context.Context, letter string) ([]entities.DrugRecord, error)
	LoadInitialData(ctx context.Context) LoadReport
	IsLoading() bool
	LastLoad() LoadReport

	// Reads
	Search(query string) SearchResult
	Suggest(query string) []entities.DrugRecord
	Page(letter string, visible int) (PageResult, bool)
	Get(id string) (entities.DrugRecord, bool)
	Stats() IndexStats
}

// SessionStore keeps per-browser state keyed by an opaque session id
type SessionStore interface {
	Create() SessionState
	Get(id string) (SessionState, bool)
	// Update applies fn to the live state under the store lock and returns a copy.
	// fn must not block.
	Update(id string, fn func(*SessionState) error) (SessionState, error)
	Delete(id string)
	Sweep(now time.Time) int
	Len() int
}

// ChatClient defines the contract for the generative chat collaborator
type ChatClient interface {
	Generate(ctx context.Context, apiKey string, turns []ChatTurn) (string, error)
}

// Assistant drives a chat conversation stored in a session
type Assistant interface {
	SetKey(ctx context.Context, sessionID, apiKey string) ([]ChatTurn, error)
	Send(ctx context.Context, sessionID, text string) (ChatReply, error)
	Reset(sessionID string) ([]ChatTurn, error)
	History(sessionID string) (hasKey bool, turns []ChatTurn, err error)
}

// Scheduler defines the contract for background jobs.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HTTPHandler defines the contract for HTTP request handlers.
// It provides a consistent interface for all API endpoints.
type HTTPHandler interface {
	// Portal
	ServeIndex(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)

	// Search
	SearchDrugs(w http.ResponseWriter, r *http.Request)
	SuggestDrugs(w http.ResponseWriter, r *http.Request)
	CalculateBMI(w http.ResponseWriter, r *http.Request)
	CalculateHalfLife(w http.ResponseWriter, r *http.Request)

	// Database browser
	ServeDatabase(w http.ResponseWriter, r *http.Request)
	SelectLetter(w http.ResponseWriter, r *http.Request)
	LoadMore(w http.ResponseWriter, r *http.Request)
	ReloadDatabase(w http.ResponseWriter, r *http.Request)
	ServeLetters(w http.ResponseWriter, r *http.Request)
	ServeLetterPage(w http.ResponseWriter, r *http.Request)
	FindDrugByID(w http.ResponseWriter, r *http.Request)

	// Chat
	ServeChat(w http.ResponseWriter, r *http.Request)
	SetChatKey(w http.ResponseWriter, r *http.Request)
	SendChatMessage(w http.ResponseWriter, r *http.Request)
	ResetChat(w http.ResponseWriter, r *http.Request)

	// Image upload demo
	UploadImage(w http.ResponseWriter, r *http.Request)

	// Text-to-speech
	ServeSpeechMessages(w http.ResponseWriter, r *http.Request)
	SaveSpeechMessage(w http.ResponseWriter, r *http.Request)
	DeleteSpeechMessage(w http.ResponseWriter, r *http.Request)
	SetSpeechOptions(w http.ResponseWriter, r *http.Request)

	NotFound(w http.ResponseWriter, r *http.Request)
}

// HealthChecker defines the contract for health check functionality.
// It provides system health monitoring and reporting.
type HealthChecker interface {
	// HealthCheck returns current system health status
	HealthCheck() (status string, details map[string]any, httpStatus int)
}

// InputValidator defines the contract for user input validation.
type InputValidator interface {
	// ValidateQuery checks a free-text search query
	ValidateQuery(input string) error

	// ValidateLetter normalizes and checks a shard letter
	ValidateLetter(input string) (string, error)

	// ValidateID checks a drug id path parameter
	ValidateID(input string) error

	// ValidateText checks chat and speech message bodies
	ValidateText(input string, maxLen int) error
}
