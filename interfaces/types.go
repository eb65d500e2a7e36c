package interfaces

import (
	"errors"
	"slices"
	"time"

	"github.com/giygas/drug-portal-api/drugsparser/entities"
)

// PageSize is both the initial visible count and the load-more step
const PageSize = 20

// DefaultLetter is the active letter of a new cursor
const DefaultLetter = "a"

// Search scopes reported in SearchResult.Scope
const (
	ScopeNone      = "none"
	ScopePartition = "partition"
	ScopeUnion     = "union"
)

// Notice levels
const (
	NoticeSuccess = "success"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

// Notice is a user-facing notification about a background operation
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// LoadReport summarizes one initial-data load
type LoadReport struct {
	Loaded     []string      `json:"loaded"`
	Failed     []string      `json:"failed"`
	Pending    []string      `json:"pending,omitempty"` // still downloading when the caller stopped waiting
	Records    int           `json:"records"`
	Added      int           `json:"added"`
	Notice     Notice        `json:"notice"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Skipped    bool          `json:"skipped,omitempty"`
	Duration   time.Duration `json:"-"`
}

// Succeeded reports whether at least one letter was loaded
func (r LoadReport) Succeeded() bool {
	return len(r.Loaded) > 0
}

// SearchResult is the outcome of a full search.
// Pending is set when the candidate letter is being fetched in the background
// and results may grow on a later call.
type SearchResult struct {
	Query   string                `json:"query"`
	Drugs   []entities.DrugRecord `json:"drugs"`
	Letter  string                `json:"letter,omitempty"`
	Scope   string                `json:"scope"`
	Pending bool                  `json:"pending"`
}

// PageResult is a visible window over one letter partition
type PageResult struct {
	Letter  string                `json:"letter"`
	Drugs   []entities.DrugRecord `json:"drugs"`
	Visible int                   `json:"visible"`
	Total   int                   `json:"total"`
	HasMore bool                  `json:"has_more"`
}

// IndexStats describes the state of the drug index
type IndexStats struct {
	LoadedLetters   []string       `json:"loaded_letters"`
	InFlightLetters []string       `json:"in_flight_letters"`
	PartitionSizes  map[string]int `json:"partition_sizes"`
	TotalRecords    int            `json:"total_records"`
	LastUpdated     time.Time      `json:"last_updated"`
}

// Cursor is the browsing position of one session over the catalog
type Cursor struct {
	ActiveLetter string `json:"active_letter"`
	Visible      int    `json:"visible"`
	SearchTerm   string `json:"search_term"`
}

// NewCursor returns a cursor on the default letter with one page visible
func NewCursor() Cursor {
	return Cursor{ActiveLetter: DefaultLetter, Visible: PageSize}
}

// SelectLetter switches the active letter, clears the search term and
// starts again from the first page
func (c *Cursor) SelectLetter(letter string) {
	c.ActiveLetter = letter
	c.SearchTerm = ""
	c.Visible = PageSize
}

// LoadMore grows the visible window by one page
func (c *Cursor) LoadMore() {
	c.Visible += PageSize
}

// Chat roles
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatTurn is one message of a conversation
type ChatTurn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatReply is the result of sending one user message
type ChatReply struct {
	Reply   ChatTurn   `json:"reply"`
	History []ChatTurn `json:"history"`
	Failed  bool       `json:"failed"`
	Error   string     `json:"error,omitempty"`
}

// SpeechOptions are the voice settings applied by the browser synthesizer
type SpeechOptions struct {
	Voice  string  `json:"voice" schema:"voice"`
	Rate   float64 `json:"rate" schema:"rate"`
	Pitch  float64 `json:"pitch" schema:"pitch"`
	Volume float64 `json:"volume" schema:"volume"`
}

// DefaultSpeechOptions returns neutral synthesizer settings
func DefaultSpeechOptions() SpeechOptions {
	return SpeechOptions{Rate: 1, Pitch: 1, Volume: 1}
}

// SavedMessage is a text kept for later playback
type SavedMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrSessionNotFound is returned by SessionStore for unknown or expired ids
var ErrSessionNotFound = errors.New("session not found")

// SessionState is everything the portal remembers about one browser
type SessionState struct {
	ID          string         `json:"id"`
	Cursor      Cursor         `json:"cursor"`
	ChatKey     string         `json:"-"`
	ChatHistory []ChatTurn     `json:"chat_history"`
	Messages    []SavedMessage `json:"messages"`
	Speech      SpeechOptions  `json:"speech"`
	CreatedAt   time.Time      `json:"created_at"`
	LastSeen    time.Time      `json:"last_seen"`
}

// Clone returns a copy that shares no slices with s
func (s SessionState) Clone() SessionState {
	s.ChatHistory = slices.Clone(s.ChatHistory)
	s.Messages = slices.Clone(s.Messages)
	return s
}
