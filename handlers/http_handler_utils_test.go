package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/giygas/drug-portal-api/chat"
	"github.com/giygas/drug-portal-api/drugsparser/entities"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/session"
	"github.com/giygas/drug-portal-api/validation"
	"github.com/go-chi/chi/v5"
)

// ============================================================================
// TEST DATA FACTORY
// ============================================================================

// CreateDrug creates a single test drug record
func CreateDrug(id, name string) entities.DrugRecord {
	d := entities.DrugRecord{
		ID:                 id,
		Name:               name,
		Price:              "42.5",
		ManufacturerName:   "Test Pharma Ltd",
		Type:               "allopathy",
		PackSizeLabel:      "strip of 10 tablets",
		CompositionPrimary: "Paracetamol (500mg)",
	}
	d.ComputeSearchText()
	return d
}

// CreateShard creates count drugs whose names start with letter
func CreateShard(letter string, count int) []entities.DrugRecord {
	drugs := make([]entities.DrugRecord, count)
	for i := range drugs {
		drugs[i] = CreateDrug(fmt.Sprintf("%s%d", letter, i+1), fmt.Sprintf("%sdrug %d", strings.ToUpper(letter), i+1))
	}
	return drugs
}

// ============================================================================
// MOCK DRUG STORE
// ============================================================================

// MockDrugStore keeps partitions in memory and serves remote shards from a map
type MockDrugStore struct {
	mu           sync.Mutex
	remote       map[string][]entities.DrugRecord
	partitions   map[string][]entities.DrugRecord
	fetchErr     error
	fetchCalls   map[string]int
	searchResult interfaces.SearchResult
	searches     []string
	loadReport   interfaces.LoadReport
	loadDeadline time.Time
	loading      bool
}

// MockDrugStoreBuilder builds MockDrugStore values
type MockDrugStoreBuilder struct {
	store *MockDrugStore
}

func NewMockDrugStoreBuilder() *MockDrugStoreBuilder {
	return &MockDrugStoreBuilder{store: &MockDrugStore{
		remote:     make(map[string][]entities.DrugRecord),
		partitions: make(map[string][]entities.DrugRecord),
		fetchCalls: make(map[string]int),
	}}
}

// WithRemoteShard makes letter available for fetching
func (b *MockDrugStoreBuilder) WithRemoteShard(letter string, drugs []entities.DrugRecord) *MockDrugStoreBuilder {
	b.store.remote[letter] = drugs
	return b
}

// WithLoadedShard stores letter as already loaded
func (b *MockDrugStoreBuilder) WithLoadedShard(letter string, drugs []entities.DrugRecord) *MockDrugStoreBuilder {
	b.store.partitions[letter] = drugs
	return b
}

func (b *MockDrugStoreBuilder) WithFetchError(err error) *MockDrugStoreBuilder {
	b.store.fetchErr = err
	return b
}

func (b *MockDrugStoreBuilder) WithSearchResult(result interfaces.SearchResult) *MockDrugStoreBuilder {
	b.store.searchResult = result
	return b
}

func (b *MockDrugStoreBuilder) WithLoadReport(report interfaces.LoadReport) *MockDrugStoreBuilder {
	b.store.loadReport = report
	return b
}

func (b *MockDrugStoreBuilder) Build() *MockDrugStore {
	return b.store
}

func (m *MockDrugStore) FetchLetterShard(_ context.Context, letter string) ([]entities.DrugRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if drugs, ok := m.partitions[letter]; ok && len(drugs) > 0 {
		return drugs, nil
	}
	m.fetchCalls[letter]++
	if m.fetchErr != nil {
		return []entities.DrugRecord{}, m.fetchErr
	}
	drugs := m.remote[letter]
	if drugs == nil {
		drugs = []entities.DrugRecord{}
	}
	m.partitions[letter] = drugs
	return drugs, nil
}

func (m *MockDrugStore) LoadInitialData(ctx context.Context) interfaces.LoadReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadDeadline, _ = ctx.Deadline()
	return m.loadReport
}

func (m *MockDrugStore) IsLoading() bool { return m.loading }

func (m *MockDrugStore) LastLoad() interfaces.LoadReport { return m.loadReport }

func (m *MockDrugStore) Search(query string) interfaces.SearchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, query)
	result := m.searchResult
	result.Query = query
	if result.Drugs == nil {
		result.Drugs = []entities.DrugRecord{}
	}
	return result
}

func (m *MockDrugStore) Suggest(query string) []entities.DrugRecord {
	drugs := m.searchResult.Drugs
	if len(drugs) > 10 {
		drugs = drugs[:10]
	}
	return drugs
}

func (m *MockDrugStore) Page(letter string, visible int) (interfaces.PageResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := interfaces.PageResult{Letter: letter, Drugs: []entities.DrugRecord{}}
	drugs, ok := m.partitions[letter]
	if !ok {
		return result, false
	}
	visible = max(visible, interfaces.PageSize)
	end := min(visible, len(drugs))
	result.Drugs = drugs[:end]
	result.Visible = end
	result.Total = len(drugs)
	result.HasMore = len(drugs) > visible
	return result, true
}

func (m *MockDrugStore) Get(id string) (entities.DrugRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, drugs := range m.partitions {
		for _, d := range drugs {
			if d.ID == id {
				return d, true
			}
		}
	}
	return entities.DrugRecord{}, false
}

func (m *MockDrugStore) Stats() interfaces.IndexStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := interfaces.IndexStats{PartitionSizes: map[string]int{}, InFlightLetters: []string{}}
	for letter, drugs := range m.partitions {
		stats.LoadedLetters = append(stats.LoadedLetters, letter)
		stats.PartitionSizes[letter] = len(drugs)
		stats.TotalRecords += len(drugs)
	}
	return stats
}

func (m *MockDrugStore) fetches(letter string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls[letter]
}

// ============================================================================
// MOCK ASSISTANT AND HEALTH CHECKER
// ============================================================================

// MockAssistant keeps conversations in memory
type MockAssistant struct {
	mu      sync.Mutex
	keys    map[string]string
	history map[string][]interfaces.ChatTurn
	answer  string
	sendErr error
	keyErr  error
}

func NewMockAssistant() *MockAssistant {
	return &MockAssistant{
		keys:    make(map[string]string),
		history: make(map[string][]interfaces.ChatTurn),
		answer:  "Take it with water.",
	}
}

func (m *MockAssistant) SetKey(_ context.Context, sessionID, apiKey string) ([]interfaces.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(apiKey) == "" {
		return nil, chat.ErrMissingKey
	}
	if m.keyErr != nil {
		return nil, m.keyErr
	}
	m.keys[sessionID] = apiKey
	m.history[sessionID] = []interfaces.ChatTurn{{Role: interfaces.RoleModel, Text: chat.Greeting}}
	return m.history[sessionID], nil
}

func (m *MockAssistant) Send(_ context.Context, sessionID, text string) (interfaces.ChatReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[sessionID] == "" {
		return interfaces.ChatReply{}, chat.ErrMissingKey
	}
	m.history[sessionID] = append(m.history[sessionID], interfaces.ChatTurn{Role: interfaces.RoleUser, Text: text})
	if m.sendErr != nil {
		reply := interfaces.ChatTurn{Role: interfaces.RoleModel, Text: "I'm sorry"}
		m.history[sessionID] = append(m.history[sessionID], reply)
		return interfaces.ChatReply{Reply: reply, History: m.history[sessionID], Failed: true, Error: chat.RemoteMessage(m.sendErr)}, m.sendErr
	}
	reply := interfaces.ChatTurn{Role: interfaces.RoleModel, Text: m.answer}
	m.history[sessionID] = append(m.history[sessionID], reply)
	return interfaces.ChatReply{Reply: reply, History: m.history[sessionID]}, nil
}

func (m *MockAssistant) Reset(sessionID string) ([]interfaces.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[sessionID] == "" {
		m.history[sessionID] = nil
		return nil, nil
	}
	m.history[sessionID] = []interfaces.ChatTurn{{Role: interfaces.RoleModel, Text: chat.Greeting}}
	return m.history[sessionID], nil
}

func (m *MockAssistant) History(sessionID string) (bool, []interfaces.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[sessionID] != "", m.history[sessionID], nil
}

// MockHealthChecker returns a fixed status
type MockHealthChecker struct {
	status     string
	httpStatus int
}

func (m *MockHealthChecker) HealthCheck() (string, map[string]any, int) {
	return m.status, map[string]any{"drugs": 0}, m.httpStatus
}

// ============================================================================
// TEST HARNESS
// ============================================================================

type testHarness struct {
	handler   *HTTPHandlerImpl
	store     *MockDrugStore
	sessions  *session.Store
	assistant *MockAssistant
	cookie    *http.Cookie
}

func newHarness(store *MockDrugStore) *testHarness {
	sessions := session.NewStore(time.Hour)
	assistant := NewMockAssistant()
	handler := NewHTTPHandler(
		store,
		sessions,
		assistant,
		validation.NewInputValidator(),
		&MockHealthChecker{status: "healthy", httpStatus: http.StatusOK},
	).(*HTTPHandlerImpl)

	return &testHarness{handler: handler, store: store, sessions: sessions, assistant: assistant}
}

// do runs one request through fn, carrying the session cookie between calls
func (th *testHarness) do(t *testing.T, fn http.HandlerFunc, req *http.Request, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	if th.cookie != nil {
		req.AddCookie(th.cookie)
	}

	rr := httptest.NewRecorder()
	fn(rr, req)

	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName {
			th.cookie = c
		}
	}
	return rr
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := sonic.ConfigStd.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

var errCDNDown = errors.New("cdn unreachable")
