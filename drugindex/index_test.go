package drugindex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giygas/drug-portal-api/drugsparser/entities"
	"github.com/giygas/drug-portal-api/interfaces"
)

// fakeFetcher serves shards from memory and counts network calls per letter
type fakeFetcher struct {
	mu      sync.Mutex
	shards  map[string][]entities.DrugRecord
	fail    map[string]error
	calls   map[string]int
	order   []string
	release chan struct{} // when non-nil every fetch blocks until closed
	block   bool          // block until ctx is done
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		shards: make(map[string][]entities.DrugRecord),
		fail:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeFetcher) FetchShard(ctx context.Context, letter string) ([]entities.DrugRecord, error) {
	f.mu.Lock()
	f.calls[letter]++
	f.order = append(f.order, letter)
	release := f.release
	block := f.block
	err := f.fail[letter]
	records := f.shards[letter]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (f *fakeFetcher) callCount(letter string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[letter]
}

func (f *fakeFetcher) setFail(letter string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, letter)
		return
	}
	f.fail[letter] = err
}

// fakeCache is an in-memory ShardCache
type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]entities.DrugRecord
	getErr error
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]entities.DrugRecord)}
}

func (c *fakeCache) Get(_ context.Context, letter string) ([]entities.DrugRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	records, ok := c.data[letter]
	return records, ok, nil
}

func (c *fakeCache) Set(_ context.Context, letter string, records []entities.DrugRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[letter] = records
	c.sets++
	return nil
}

func drug(id, name string) entities.DrugRecord {
	return entities.DrugRecord{ID: id, Name: name, ManufacturerName: "Acme Labs", CompositionPrimary: "Unknown (1mg)"}
}

func numberedShard(prefix string, n int) []entities.DrugRecord {
	records := make([]entities.DrugRecord, n)
	for i := range records {
		records[i] = drug(fmt.Sprintf("%s-%d", prefix, i), fmt.Sprintf("%s drug %d", prefix, i))
	}
	return records
}

func newTestIndex(f *fakeFetcher, cache interfaces.ShardCache) *Index {
	return NewIndex(Options{
		Fetcher:        f,
		Cache:          cache,
		FetchTimeout:   time.Second,
		InitialLetters: "abcde",
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFetchLetterShardSingleFlight(t *testing.T) {
	f := newFakeFetcher()
	f.shards["p"] = []entities.DrugRecord{drug("1", "Paracetamol"), drug("2", "Pantoprazole")}
	f.release = make(chan struct{})

	idx := newTestIndex(f, nil)
	defer idx.Close()

	const callers = 25
	var wg sync.WaitGroup
	var failures atomic.Int32
	lengths := make([]int, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records, err := idx.FetchLetterShard(context.Background(), "p")
			if err != nil {
				failures.Add(1)
				return
			}
			lengths[i] = len(records)
		}(i)
	}

	waitFor(t, func() bool { return f.callCount("p") == 1 })
	close(f.release)
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("expected no failures, got %d", failures.Load())
	}
	if got := f.callCount("p"); got != 1 {
		t.Errorf("expected exactly 1 network call, got %d", got)
	}
	for i, n := range lengths {
		if n != 2 {
			t.Errorf("caller %d got %d records, want 2", i, n)
		}
	}
}

func TestFetchLetterShardCacheHit(t *testing.T) {
	f := newFakeFetcher()
	f.shards["a"] = numberedShard("a", 3)
	idx := newTestIndex(f, nil)
	defer idx.Close()

	for i := 0; i < 3; i++ {
		records, err := idx.FetchLetterShard(context.Background(), "a")
		if err != nil {
			t.Fatalf("FetchLetterShard: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
	}

	if got := f.callCount("a"); got != 1 {
		t.Errorf("expected 1 network call, got %d", got)
	}
}

func TestFetchLetterShardFailureAllowsRetry(t *testing.T) {
	f := newFakeFetcher()
	f.shards["b"] = numberedShard("b", 2)
	f.setFail("b", errors.New("connection reset"))
	idx := newTestIndex(f, nil)
	defer idx.Close()

	records, err := idx.FetchLetterShard(context.Background(), "b")
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice on failure, got %v", records)
	}
	if _, ok := idx.Page("b", interfaces.PageSize); ok {
		t.Error("failed letter must not be marked loaded")
	}
	if stats := idx.Stats(); len(stats.InFlightLetters) != 0 {
		t.Errorf("in-flight marker not cleared: %v", stats.InFlightLetters)
	}

	f.setFail("b", nil)
	records, err = idx.FetchLetterShard(context.Background(), "b")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records after retry, got %d", len(records))
	}
	if got := f.callCount("b"); got != 2 {
		t.Errorf("expected 2 network calls, got %d", got)
	}
}

func TestFetchLetterShardInvalidLetter(t *testing.T) {
	f := newFakeFetcher()
	idx := newTestIndex(f, nil)
	defer idx.Close()

	for _, letter := range []string{"", "A", "ab", "1", "é"} {
		t.Run(letter, func(t *testing.T) {
			_, err := idx.FetchLetterShard(context.Background(), letter)
			if !errors.Is(err, ErrInvalidLetter) {
				t.Errorf("expected ErrInvalidLetter for %q, got %v", letter, err)
			}
		})
	}
	if len(f.order) != 0 {
		t.Errorf("invalid letters must not hit the network, got %v", f.order)
	}
}

func TestFetchLetterShardDeadline(t *testing.T) {
	f := newFakeFetcher()
	f.block = true
	idx := NewIndex(Options{Fetcher: f, FetchTimeout: 30 * time.Millisecond})
	defer idx.Close()

	_, err := idx.FetchLetterShard(context.Background(), "c")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed wrapping, got %v", err)
	}
	if stats := idx.Stats(); len(stats.InFlightLetters) != 0 {
		t.Errorf("in-flight marker not cleared after timeout: %v", stats.InFlightLetters)
	}
}

func TestFetchLetterShardCallerCancel(t *testing.T) {
	f := newFakeFetcher()
	f.shards["d"] = numberedShard("d", 1)
	f.release = make(chan struct{})
	idx := newTestIndex(f, nil)
	defer idx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := idx.FetchLetterShard(ctx, "d")
		done <- err
	}()

	waitFor(t, func() bool { return f.callCount("d") == 1 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The shared download still completes for later callers
	close(f.release)
	waitFor(t, func() bool {
		_, ok := idx.Page("d", interfaces.PageSize)
		return ok
	})
	if got := f.callCount("d"); got != 1 {
		t.Errorf("expected 1 network call, got %d", got)
	}
}

func TestCloseCancelsFetches(t *testing.T) {
	f := newFakeFetcher()
	f.block = true
	idx := NewIndex(Options{Fetcher: f, FetchTimeout: time.Minute})

	done := make(chan error, 1)
	go func() {
		_, err := idx.FetchLetterShard(context.Background(), "e")
		done <- err
	}()
	waitFor(t, func() bool { return f.callCount("e") == 1 })
	idx.Close()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not stop after Close")
	}
}

func TestLoadInitialDataMergesWithoutDuplicates(t *testing.T) {
	f := newFakeFetcher()
	f.shards["a"] = []entities.DrugRecord{drug("1", "Augmentin"), drug("2", "Azithral")}
	f.shards["b"] = []entities.DrugRecord{drug("3", "Benadryl"), drug("1", "Augmentin duplicate")}
	f.shards["c"] = []entities.DrugRecord{drug("4", "Crocin")}
	f.shards["d"] = []entities.DrugRecord{drug("5", "Dolo")}
	f.shards["e"] = []entities.DrugRecord{drug("2", "Azithral duplicate"), drug("6", "Eldoper")}

	idx := newTestIndex(f, nil)
	defer idx.Close()

	report := idx.LoadInitialData(context.Background())

	if !slices.Equal(f.order, []string{"a", "b", "c", "d", "e"}) {
		t.Errorf("expected sequential a..e, got %v", f.order)
	}
	if report.Notice.Level != interfaces.NoticeSuccess {
		t.Errorf("expected success notice, got %+v", report.Notice)
	}
	if report.Records != 8 {
		t.Errorf("expected 8 fetched records, got %d", report.Records)
	}
	if report.Added != 6 {
		t.Errorf("expected 6 distinct records added, got %d", report.Added)
	}

	stats := idx.Stats()
	if stats.TotalRecords != 6 {
		t.Errorf("expected 6 records in combined set, got %d", stats.TotalRecords)
	}
	if got, _ := idx.Get("1"); got.Name != "Augmentin" {
		t.Errorf("first occurrence must win, got %q", got.Name)
	}
	if got := idx.LastLoad(); got.Records != report.Records {
		t.Errorf("LastLoad not recorded: %+v", got)
	}
}

func TestLoadInitialDataReportsFailures(t *testing.T) {
	tests := []struct {
		name      string
		failing   []string
		wantLevel string
		wantOK    bool
	}{
		{"partial", []string{"c"}, interfaces.NoticeWarning, true},
		{"all", []string{"a", "b", "c", "d", "e"}, interfaces.NoticeError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			for _, l := range []string{"a", "b", "c", "d", "e"} {
				f.shards[l] = numberedShard(l, 2)
			}
			for _, l := range tt.failing {
				f.setFail(l, errors.New("503"))
			}
			idx := newTestIndex(f, nil)
			defer idx.Close()

			report := idx.LoadInitialData(context.Background())
			if report.Notice.Level != tt.wantLevel {
				t.Errorf("notice level = %s, want %s", report.Notice.Level, tt.wantLevel)
			}
			if report.Succeeded() != tt.wantOK {
				t.Errorf("Succeeded() = %v, want %v", report.Succeeded(), tt.wantOK)
			}
			if !slices.Equal(report.Failed, tt.failing) {
				t.Errorf("failed = %v, want %v", report.Failed, tt.failing)
			}
		})
	}
}

func TestLoadInitialDataDeadlineLeavesLettersPending(t *testing.T) {
	f := newFakeFetcher()
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		f.shards[l] = numberedShard(l, 2)
	}
	f.release = make(chan struct{})
	idx := newTestIndex(f, nil)
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	report := idx.LoadInitialData(ctx)

	if !slices.Equal(report.Pending, []string{"a", "b", "c", "d", "e"}) {
		t.Errorf("pending = %v, want every initial letter", report.Pending)
	}
	if len(report.Failed) != 0 || len(report.Loaded) != 0 {
		t.Errorf("expected nothing loaded or failed, got %+v", report)
	}
	if report.Notice.Level != interfaces.NoticeWarning {
		t.Errorf("notice level = %s, want %s", report.Notice.Level, interfaces.NoticeWarning)
	}

	// downloads keep going after the caller gave up
	close(f.release)
	waitFor(t, func() bool { return len(idx.Stats().LoadedLetters) == 5 })
	if f.callCount("a") != 1 {
		t.Errorf("letter a downloaded %d times, want 1", f.callCount("a"))
	}
}

func TestLoadInitialDataSkipsWhenRunning(t *testing.T) {
	f := newFakeFetcher()
	f.shards["a"] = numberedShard("a", 1)
	f.release = make(chan struct{})
	idx := newTestIndex(f, nil)
	defer idx.Close()

	done := make(chan interfaces.LoadReport, 1)
	go func() { done <- idx.LoadInitialData(context.Background()) }()
	waitFor(t, idx.IsLoading)

	second := idx.LoadInitialData(context.Background())
	if !second.Skipped {
		t.Error("expected concurrent load to be skipped")
	}

	close(f.release)
	<-done
	if idx.IsLoading() {
		t.Error("loading flag not cleared")
	}
}

func TestSearchShortQuery(t *testing.T) {
	f := newFakeFetcher()
	idx := newTestIndex(f, nil)
	defer idx.Close()

	for _, q := range []string{"", "p", " p "} {
		result := idx.Search(q)
		if len(result.Drugs) != 0 || result.Pending {
			t.Errorf("Search(%q) = %+v, want empty and not pending", q, result)
		}
	}
	if len(f.order) != 0 {
		t.Errorf("short queries must not fetch, got %v", f.order)
	}
}

func TestSearchCandidatePartition(t *testing.T) {
	f := newFakeFetcher()
	f.shards["p"] = []entities.DrugRecord{drug("1", "Paracetamol"), drug("2", "Pantoprazole")}
	idx := newTestIndex(f, nil)
	defer idx.Close()

	if _, err := idx.FetchLetterShard(context.Background(), "p"); err != nil {
		t.Fatal(err)
	}

	result := idx.Search("PAR")
	if len(result.Drugs) != 1 || result.Drugs[0].Name != "Paracetamol" {
		t.Fatalf("expected Paracetamol, got %+v", result.Drugs)
	}
	if result.Scope != interfaces.ScopePartition || result.Pending {
		t.Errorf("unexpected scope/pending: %s/%v", result.Scope, result.Pending)
	}
}

func TestSearchMatchesManufacturer(t *testing.T) {
	f := newFakeFetcher()
	f.shards["j"] = []entities.DrugRecord{
		{ID: "1", Name: "Johnsons Baby Oil", ManufacturerName: "Johnson & Johnson Ltd", CompositionPrimary: "Mineral oil"},
		{ID: "2", Name: "Jalra 50", ManufacturerName: "Novartis", CompositionPrimary: "Vildagliptin (50mg)"},
	}
	idx := newTestIndex(f, nil)
	defer idx.Close()

	if _, err := idx.FetchLetterShard(context.Background(), "j"); err != nil {
		t.Fatal(err)
	}

	result := idx.Search("johnson & johnson")
	if len(result.Drugs) != 1 || result.Drugs[0].ID != "1" {
		t.Fatalf("expected the Johnson & Johnson product, got %+v", result.Drugs)
	}
	if result.Scope != interfaces.ScopePartition {
		t.Errorf("expected partition scope, got %s", result.Scope)
	}
}

func TestSearchFallsBackToCombinedSet(t *testing.T) {
	f := newFakeFetcher()
	f.shards["a"] = []entities.DrugRecord{{ID: "1", Name: "Azee", ManufacturerName: "Cipla", CompositionPrimary: "Azithromycin (500mg)"}}
	f.shards["c"] = []entities.DrugRecord{{ID: "2", Name: "Crocin", ManufacturerName: "GSK", CompositionPrimary: "Paracetamol (500mg)"}}
	idx := newTestIndex(f, nil)
	defer idx.Close()
	idx.LoadInitialData(context.Background())

	// "cipla" starts with c, the c partition has no match, the combined set does
	result := idx.Search("cipla")
	if result.Scope != interfaces.ScopeUnion {
		t.Errorf("expected union scope, got %s", result.Scope)
	}
	if len(result.Drugs) != 1 || result.Drugs[0].ID != "1" {
		t.Errorf("expected Azee from combined set, got %+v", result.Drugs)
	}
}

func TestSearchPendingTriggersBackgroundFetch(t *testing.T) {
	f := newFakeFetcher()
	f.shards["z"] = []entities.DrugRecord{drug("9", "Zerodol")}
	idx := newTestIndex(f, nil)
	defer idx.Close()

	result := idx.Search("zero")
	if !result.Pending {
		t.Fatal("expected pending result for unloaded letter")
	}
	if len(result.Drugs) != 0 {
		t.Errorf("expected no results yet, got %+v", result.Drugs)
	}

	waitFor(t, func() bool { return !idx.Search("zero").Pending })

	result = idx.Search("zero")
	if len(result.Drugs) != 1 || result.Drugs[0].Name != "Zerodol" {
		t.Errorf("expected Zerodol after fetch, got %+v", result.Drugs)
	}
}

func TestSearchNonLetterQuery(t *testing.T) {
	f := newFakeFetcher()
	f.shards["a"] = []entities.DrugRecord{drug("1", "5-FU injection")}
	idx := newTestIndex(f, nil)
	defer idx.Close()
	idx.LoadInitialData(context.Background())

	result := idx.Search("5-fu")
	if result.Pending || result.Letter != "" {
		t.Errorf("digits have no candidate letter: %+v", result)
	}
	if len(result.Drugs) != 1 {
		t.Errorf("expected match from combined set, got %d", len(result.Drugs))
	}
}

func TestSearchAndSuggestCaps(t *testing.T) {
	f := newFakeFetcher()
	f.shards["a"] = numberedShard("a", 120)
	idx := newTestIndex(f, nil)
	defer idx.Close()
	if _, err := idx.FetchLetterShard(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	if got := len(idx.Search("a drug").Drugs); got != SearchLimit {
		t.Errorf("Search returned %d, want %d", got, SearchLimit)
	}
	suggestions := idx.Suggest("a drug")
	if len(suggestions) != SuggestLimit {
		t.Errorf("Suggest returned %d, want %d", len(suggestions), SuggestLimit)
	}
	for i, s := range suggestions {
		if s.ID != fmt.Sprintf("a-%d", i) {
			t.Errorf("suggestions must keep insertion order, position %d has %s", i, s.ID)
		}
	}
}

func TestSuggestDoesNotFetch(t *testing.T) {
	f := newFakeFetcher()
	idx := newTestIndex(f, nil)
	defer idx.Close()

	if got := idx.Suggest("paracetamol"); len(got) != 0 {
		t.Errorf("expected no suggestions, got %d", len(got))
	}
	time.Sleep(20 * time.Millisecond)
	if f.callCount("p") != 0 {
		t.Error("Suggest must not trigger a fetch")
	}
}

func TestPagePagination(t *testing.T) {
	f := newFakeFetcher()
	f.shards["m"] = numberedShard("m", 55)
	idx := newTestIndex(f, nil)
	defer idx.Close()
	if _, err := idx.FetchLetterShard(context.Background(), "m"); err != nil {
		t.Fatal(err)
	}

	cursor := interfaces.NewCursor()
	cursor.SelectLetter("m")

	want := []struct {
		visible int
		hasMore bool
	}{
		{20, true},
		{40, true},
		{55, false},
		{55, false},
	}
	for k, w := range want {
		page, ok := idx.Page(cursor.ActiveLetter, cursor.Visible)
		if !ok {
			t.Fatal("expected loaded partition")
		}
		if page.Visible != w.visible || len(page.Drugs) != w.visible {
			t.Errorf("after %d load-more: visible %d (%d drugs), want %d", k, page.Visible, len(page.Drugs), w.visible)
		}
		if page.HasMore != w.hasMore {
			t.Errorf("after %d load-more: hasMore %v, want %v", k, page.HasMore, w.hasMore)
		}
		if page.Total != 55 {
			t.Errorf("total = %d, want 55", page.Total)
		}
		cursor.LoadMore()
	}
}

func TestPageUnloadedLetter(t *testing.T) {
	idx := newTestIndex(newFakeFetcher(), nil)
	defer idx.Close()

	page, ok := idx.Page("q", 20)
	if ok {
		t.Error("expected unloaded letter")
	}
	if page.Drugs == nil || page.HasMore {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestSecondaryCache(t *testing.T) {
	t.Run("hit skips network", func(t *testing.T) {
		f := newFakeFetcher()
		cache := newFakeCache()
		cache.data["k"] = []entities.DrugRecord{drug("7", "Ketorol")}
		idx := newTestIndex(f, cache)
		defer idx.Close()

		records, err := idx.FetchLetterShard(context.Background(), "k")
		if err != nil || len(records) != 1 {
			t.Fatalf("unexpected result %v %v", records, err)
		}
		if f.callCount("k") != 0 {
			t.Error("cache hit must not reach the CDN")
		}
		if got := idx.Search("keto").Drugs; len(got) != 1 {
			t.Errorf("cached records must be searchable, got %d", len(got))
		}
	})

	t.Run("miss writes back", func(t *testing.T) {
		f := newFakeFetcher()
		f.shards["k"] = []entities.DrugRecord{drug("7", "Ketorol")}
		cache := newFakeCache()
		idx := newTestIndex(f, cache)
		defer idx.Close()

		if _, err := idx.FetchLetterShard(context.Background(), "k"); err != nil {
			t.Fatal(err)
		}
		if cache.sets != 1 {
			t.Errorf("expected one cache write, got %d", cache.sets)
		}
	})

	t.Run("error falls back to CDN", func(t *testing.T) {
		f := newFakeFetcher()
		f.shards["k"] = []entities.DrugRecord{drug("7", "Ketorol")}
		cache := newFakeCache()
		cache.getErr = errors.New("redis down")
		idx := newTestIndex(f, cache)
		defer idx.Close()

		if _, err := idx.FetchLetterShard(context.Background(), "k"); err != nil {
			t.Fatal(err)
		}
		if f.callCount("k") != 1 {
			t.Error("expected CDN fetch after cache error")
		}
	})
}

func TestStats(t *testing.T) {
	f := newFakeFetcher()
	f.shards["b"] = numberedShard("b", 3)
	f.shards["a"] = numberedShard("a", 2)
	idx := newTestIndex(f, nil)
	defer idx.Close()

	for _, l := range []string{"b", "a"} {
		if _, err := idx.FetchLetterShard(context.Background(), l); err != nil {
			t.Fatal(err)
		}
	}

	stats := idx.Stats()
	if !slices.Equal(stats.LoadedLetters, []string{"a", "b"}) {
		t.Errorf("loaded letters = %v", stats.LoadedLetters)
	}
	if stats.PartitionSizes["b"] != 3 || stats.TotalRecords != 5 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LastUpdated.IsZero() {
		t.Error("LastUpdated not set")
	}
}
