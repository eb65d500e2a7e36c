// Package drugindex holds the in-memory drug catalog: letter partitions
// fetched lazily from the CDN, the combined record set used for search,
// and the set of letters currently being fetched.
package drugindex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/giygas/drug-portal-api/drugsparser/entities"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
	"github.com/giygas/drug-portal-api/metrics"
	"golang.org/x/sync/singleflight"
)

// Compile-time check to ensure Index implements DrugStore
var _ interfaces.DrugStore = (*Index)(nil)

const (
	// MinQueryLength is the shortest query that produces results
	MinQueryLength = 2
	// SearchLimit caps full search results
	SearchLimit = 50
	// SuggestLimit caps typeahead results
	SuggestLimit = 10

	defaultFetchTimeout = 15 * time.Second
	cacheWriteTimeout   = 2 * time.Second
)

var (
	// ErrInvalidLetter is returned for anything other than a single letter a-z
	ErrInvalidLetter = errors.New("invalid letter")
	// ErrFetchFailed wraps every shard fetch failure
	ErrFetchFailed = errors.New("failed to fetch drug data")
)

// Options configures an Index
type Options struct {
	Fetcher        interfaces.ShardFetcher
	Cache          interfaces.ShardCache // optional
	FetchTimeout   time.Duration
	InitialLetters string
}

// Index is the letter-sharded drug catalog. The zero value is not usable,
// create it with NewIndex and release it with Close.
type Index struct {
	fetcher        interfaces.ShardFetcher
	cache          interfaces.ShardCache
	group          singleflight.Group
	fetchTimeout   time.Duration
	initialLetters []string

	// Parent of every fetch context; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	partitions  map[string][]entities.DrugRecord
	all         []entities.DrugRecord // append-only
	ids         map[string]int        // id -> position in all
	inFlight    map[string]struct{}
	lastUpdated time.Time

	loading  atomic.Bool
	lastLoad atomic.Value // interfaces.LoadReport
}

// NewIndex creates an empty index
func NewIndex(opts Options) *Index {
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	initial := opts.InitialLetters
	if initial == "" {
		initial = "abcde"
	}

	ctx, cancel := context.WithCancel(context.Background())
	idx := &Index{
		fetcher:        opts.Fetcher,
		cache:          opts.Cache,
		fetchTimeout:   timeout,
		initialLetters: strings.Split(strings.ToLower(initial), ""),
		ctx:            ctx,
		cancel:         cancel,
		partitions:     make(map[string][]entities.DrugRecord),
		ids:            make(map[string]int),
		inFlight:       make(map[string]struct{}),
	}
	idx.lastLoad.Store(interfaces.LoadReport{})
	return idx
}

// Close cancels every in-progress fetch
func (idx *Index) Close() {
	idx.cancel()
}

// ValidLetter reports whether s is a single lowercase letter a-z
func ValidLetter(s string) bool {
	return len(s) == 1 && s[0] >= 'a' && s[0] <= 'z'
}

// FetchLetterShard returns the partition of letter, downloading it on first use.
// Concurrent callers for the same letter share one download. A caller whose ctx
// ends stops waiting but the shared download keeps running under its own deadline.
// On failure the letter stays unloaded and an empty slice is returned.
func (idx *Index) FetchLetterShard(ctx context.Context, letter string) ([]entities.DrugRecord, error) {
	if !ValidLetter(letter) {
		return []entities.DrugRecord{}, fmt.Errorf("%w: %q", ErrInvalidLetter, letter)
	}

	if records, ok := idx.partition(letter); ok {
		return records, nil
	}

	ch := idx.group.DoChan(letter, func() (any, error) {
		return idx.load(letter)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return []entities.DrugRecord{}, res.Err
		}
		return res.Val.([]entities.DrugRecord), nil
	case <-ctx.Done():
		return []entities.DrugRecord{}, ctx.Err()
	}
}

// load runs once per letter per flight
func (idx *Index) load(letter string) ([]entities.DrugRecord, error) {
	if records, ok := idx.partition(letter); ok {
		return records, nil
	}

	idx.setInFlight(letter, true)
	defer idx.setInFlight(letter, false)

	fetchCtx, cancel := context.WithTimeout(idx.ctx, idx.fetchTimeout)
	defer cancel()

	if records, ok := idx.loadFromCache(fetchCtx, letter); ok {
		idx.store(letter, records)
		return idx.mustPartition(letter), nil
	}

	start := time.Now()
	records, err := idx.fetcher.FetchShard(fetchCtx, letter)
	if err != nil {
		logging.Error("Shard fetch failed", "letter", letter, "error", err)
		return nil, fmt.Errorf("%w: letter %s: %w", ErrFetchFailed, letter, err)
	}

	added := idx.store(letter, records)
	logging.Info("Shard loaded",
		"letter", letter,
		"records", len(records),
		"added", added,
		"duration", time.Since(start).String(),
	)

	idx.writeCache(letter, records)
	return idx.mustPartition(letter), nil
}

func (idx *Index) loadFromCache(ctx context.Context, letter string) ([]entities.DrugRecord, bool) {
	if idx.cache == nil {
		return nil, false
	}

	records, ok, err := idx.cache.Get(ctx, letter)
	switch {
	case err != nil:
		metrics.ShardCacheTotal.WithLabelValues("error").Inc()
		logging.Warn("Shard cache read failed, falling back to CDN", "letter", letter, "error", err)
		return nil, false
	case !ok || len(records) == 0:
		metrics.ShardCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.ShardCacheTotal.WithLabelValues("hit").Inc()
	logging.Debug("Shard served from cache", "letter", letter, "records", len(records))
	return records, true
}

func (idx *Index) writeCache(letter string, records []entities.DrugRecord) {
	if idx.cache == nil || len(records) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(idx.ctx, cacheWriteTimeout)
	defer cancel()
	if err := idx.cache.Set(ctx, letter, records); err != nil {
		logging.Warn("Shard cache write failed", "letter", letter, "error", err)
	}
}

// store publishes a partition and merges its records into the combined set,
// skipping ids already present. Returns the number of records added.
func (idx *Index) store(letter string, records []entities.DrugRecord) int {
	partition := make([]entities.DrugRecord, len(records))
	for i := range records {
		partition[i] = records[i]
		if partition[i].SearchText == "" {
			partition[i].ComputeSearchText()
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.partitions[letter] = partition
	added := 0
	for i := range partition {
		if _, exists := idx.ids[partition[i].ID]; exists {
			continue
		}
		idx.ids[partition[i].ID] = len(idx.all)
		idx.all = append(idx.all, partition[i])
		added++
	}
	idx.lastUpdated = time.Now()

	metrics.IndexRecords.Set(float64(len(idx.all)))
	metrics.IndexLettersLoaded.Set(float64(len(idx.partitions)))
	return added
}

func (idx *Index) setInFlight(letter string, on bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if on {
		idx.inFlight[letter] = struct{}{}
	} else {
		delete(idx.inFlight, letter)
	}
}

// partition returns a non-empty stored partition
func (idx *Index) partition(letter string) ([]entities.DrugRecord, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	records, ok := idx.partitions[letter]
	if !ok || len(records) == 0 {
		return nil, false
	}
	return records[:len(records):len(records)], true
}

func (idx *Index) mustPartition(letter string) []entities.DrugRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	records := idx.partitions[letter]
	return records[:len(records):len(records)]
}

// snapshot returns the combined set as of now; appends after the call are not visible
func (idx *Index) snapshot() []entities.DrugRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.all[:len(idx.all):len(idx.all)]
}

// prefetch starts a background fetch unless one is already running
func (idx *Index) prefetch(letter string) {
	idx.mu.RLock()
	_, running := idx.inFlight[letter]
	idx.mu.RUnlock()
	if running {
		return
	}

	go func() {
		if _, err := idx.FetchLetterShard(idx.ctx, letter); err != nil {
			logging.Warn("Background shard fetch failed", "letter", letter, "error", err)
		}
	}()
}

// LoadInitialData fetches the initial letters one after another and reports
// the outcome. Only one load runs at a time; a concurrent call returns a
// skipped report.
func (idx *Index) LoadInitialData(ctx context.Context) interfaces.LoadReport {
	if !idx.loading.CompareAndSwap(false, true) {
		logging.Info("Initial load already in progress, skipping...")
		return interfaces.LoadReport{
			Skipped: true,
			Notice: interfaces.Notice{
				Level:   interfaces.NoticeWarning,
				Message: "Drug data is already loading",
			},
		}
	}
	defer idx.loading.Store(false)

	report := interfaces.LoadReport{
		Loaded:    []string{},
		Failed:    []string{},
		StartedAt: time.Now(),
	}
	before := len(idx.snapshot())

	for _, letter := range idx.initialLetters {
		if ctx.Err() != nil && idx.ctx.Err() == nil {
			idx.prefetch(letter)
			report.Pending = append(report.Pending, letter)
			continue
		}
		records, err := idx.FetchLetterShard(ctx, letter)
		if err != nil {
			// The shared fetch outlives the caller's context
			if ctx.Err() != nil && idx.ctx.Err() == nil {
				idx.prefetch(letter)
				report.Pending = append(report.Pending, letter)
				continue
			}
			report.Failed = append(report.Failed, letter)
			continue
		}
		report.Loaded = append(report.Loaded, letter)
		report.Records += len(records)
	}

	report.Added = len(idx.snapshot()) - before
	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	report.Notice = loadNotice(report)

	switch {
	case len(report.Pending) > 0:
		logging.Warn("Initial drug data still loading in background",
			"loaded", report.Loaded, "pending", report.Pending, "failed", report.Failed)
	case report.Notice.Level == interfaces.NoticeSuccess:
		logging.Info("Initial drug data loaded",
			"letters", report.Loaded, "records", report.Records, "duration", report.Duration.String())
	case report.Notice.Level == interfaces.NoticeWarning:
		logging.Warn("Initial drug data partially loaded",
			"loaded", report.Loaded, "failed", report.Failed, "records", report.Records)
	default:
		logging.Error("Initial drug data load failed", "failed", report.Failed)
	}

	idx.lastLoad.Store(report)
	return report
}

func loadNotice(r interfaces.LoadReport) interfaces.Notice {
	switch {
	case len(r.Pending) > 0:
		return interfaces.Notice{
			Level: interfaces.NoticeWarning,
			Message: fmt.Sprintf("Loaded %d drugs, letters %s are still loading",
				r.Records, strings.ToUpper(strings.Join(r.Pending, ", "))),
		}
	case len(r.Failed) == 0:
		return interfaces.Notice{
			Level:   interfaces.NoticeSuccess,
			Message: fmt.Sprintf("Loaded %d drugs", r.Records),
		}
	case len(r.Loaded) > 0:
		return interfaces.Notice{
			Level: interfaces.NoticeWarning,
			Message: fmt.Sprintf("Loaded %d drugs, letters %s could not be loaded",
				r.Records, strings.ToUpper(strings.Join(r.Failed, ", "))),
		}
	default:
		return interfaces.Notice{
			Level:   interfaces.NoticeError,
			Message: "Failed to load drug data. Please try again.",
		}
	}
}

// IsLoading reports whether LoadInitialData is running
func (idx *Index) IsLoading() bool {
	return idx.loading.Load()
}

// LastLoad returns the report of the most recent completed initial load
func (idx *Index) LastLoad() interfaces.LoadReport {
	if report, ok := idx.lastLoad.Load().(interfaces.LoadReport); ok {
		return report
	}
	return interfaces.LoadReport{}
}

// Search matches query against the candidate letter partition, falling back
// to the combined set. An unloaded candidate letter is fetched in the
// background and the result is marked pending.
func (idx *Index) Search(query string) interfaces.SearchResult {
	result := idx.match(query, SearchLimit, true)
	metrics.SearchTotal.WithLabelValues(result.Scope).Inc()
	return result
}

// Suggest returns typeahead matches without triggering any fetch
func (idx *Index) Suggest(query string) []entities.DrugRecord {
	return idx.match(query, SuggestLimit, false).Drugs
}

func (idx *Index) match(query string, limit int, fetchMissing bool) interfaces.SearchResult {
	// Trimmed before the length check, so " a" counts as one character
	query = strings.TrimSpace(query)
	result := interfaces.SearchResult{
		Query: query,
		Drugs: []entities.DrugRecord{},
		Scope: interfaces.ScopeNone,
	}
	if utf8.RuneCountInString(query) < MinQueryLength {
		return result
	}

	needle := entities.FoldQuery(query)

	if letter := candidateLetter(query); letter != "" {
		result.Letter = letter
		if partition, ok := idx.partition(letter); ok {
			if drugs := filter(partition, needle, limit); len(drugs) > 0 {
				result.Drugs = drugs
				result.Scope = interfaces.ScopePartition
				return result
			}
		} else if fetchMissing {
			idx.prefetch(letter)
			result.Pending = true
		}
	}

	result.Drugs = filter(idx.snapshot(), needle, limit)
	result.Scope = interfaces.ScopeUnion
	return result
}

func candidateLetter(query string) string {
	r, _ := utf8.DecodeRuneInString(query)
	r = unicode.ToLower(r)
	if r < 'a' || r > 'z' {
		return ""
	}
	return string(r)
}

func filter(records []entities.DrugRecord, needle string, limit int) []entities.DrugRecord {
	matches := make([]entities.DrugRecord, 0, min(limit, 16))
	for i := range records {
		if records[i].Matches(needle) {
			matches = append(matches, records[i])
			if len(matches) == limit {
				break
			}
		}
	}
	return matches
}

// Page returns the first visible records of a letter partition.
// ok is false when the letter was never loaded.
func (idx *Index) Page(letter string, visible int) (interfaces.PageResult, bool) {
	result := interfaces.PageResult{Letter: letter, Drugs: []entities.DrugRecord{}}
	if !ValidLetter(letter) {
		return result, false
	}
	if visible < interfaces.PageSize {
		visible = interfaces.PageSize
	}

	idx.mu.RLock()
	records, ok := idx.partitions[letter]
	idx.mu.RUnlock()
	if !ok {
		return result, false
	}

	end := min(visible, len(records))
	result.Drugs = records[:end:end]
	result.Visible = end
	result.Total = len(records)
	result.HasMore = len(records) > visible
	return result, true
}

// Get looks a record up by id in the combined set
func (idx *Index) Get(id string) (entities.DrugRecord, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	pos, ok := idx.ids[id]
	if !ok {
		return entities.DrugRecord{}, false
	}
	return idx.all[pos], true
}

// Stats returns a consistent view of the index state
func (idx *Index) Stats() interfaces.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := interfaces.IndexStats{
		LoadedLetters:   make([]string, 0, len(idx.partitions)),
		InFlightLetters: make([]string, 0, len(idx.inFlight)),
		PartitionSizes:  make(map[string]int, len(idx.partitions)),
		TotalRecords:    len(idx.all),
		LastUpdated:     idx.lastUpdated,
	}
	for letter, records := range idx.partitions {
		stats.LoadedLetters = append(stats.LoadedLetters, letter)
		stats.PartitionSizes[letter] = len(records)
	}
	for letter := range idx.inFlight {
		stats.InFlightLetters = append(stats.InFlightLetters, letter)
	}
	slices.Sort(stats.LoadedLetters)
	slices.Sort(stats.InFlightLetters)
	return stats
}
