// Package drugsparser downloads letter shards from the drug data CDN and
// normalizes them into DrugRecord values.
package drugsparser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/giygas/drug-portal-api/drugsparser/entities"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
	"github.com/giygas/drug-portal-api/metrics"
	"github.com/juju/ratelimit"
	"golang.org/x/text/encoding/charmap"
)

// Compile-time check to ensure ShardDownloader implements ShardFetcher
var _ interfaces.ShardFetcher = (*ShardDownloader)(nil)

// maxShardSize bounds a single shard body
const maxShardSize = 64 << 20

// ErrUnexpectedStatus is returned when the CDN answers with a non-2xx status
var ErrUnexpectedStatus = errors.New("unexpected CDN status")

// ShardDownloader fetches {baseURL}/{letter}.json
type ShardDownloader struct {
	client  *http.Client
	baseURL string
	bucket  *ratelimit.Bucket
}

// NewShardDownloader creates a downloader throttled to ratePerSec outbound requests.
// A ratePerSec <= 0 disables throttling.
func NewShardDownloader(baseURL string, timeout time.Duration, ratePerSec float64) *ShardDownloader {
	d := &ShardDownloader{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
	if ratePerSec > 0 {
		capacity := int64(ratePerSec)
		if capacity < 1 {
			capacity = 1
		}
		d.bucket = ratelimit.NewBucketWithRate(ratePerSec, capacity)
	}
	return d
}

// ShardURL returns the CDN location of a letter shard
func (d *ShardDownloader) ShardURL(letter string) string {
	return d.baseURL + "/" + letter + ".json"
}

// FetchShard downloads and decodes one letter shard
func (d *ShardDownloader) FetchShard(ctx context.Context, letter string) ([]entities.DrugRecord, error) {
	start := time.Now()
	records, err := d.fetch(ctx, letter)
	metrics.ShardFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ShardFetchTotal.WithLabelValues(letter, "error").Inc()
		return nil, err
	}
	metrics.ShardFetchTotal.WithLabelValues(letter, "success").Inc()
	return records, nil
}

func (d *ShardDownloader) fetch(ctx context.Context, letter string) ([]entities.DrugRecord, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}

	url := d.ShardURL(letter)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	response, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer func() {
		if err = response.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, url, response.StatusCode)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(response.Body, maxShardSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Some mirrors serve latin-1
	if !utf8.Valid(bodyBytes) {
		bodyBytes, err = io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(bodyBytes)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode ISO-8859-1 body: %w", err)
		}
	}

	records, skipped, err := ParseShard(bodyBytes)
	if err != nil {
		return nil, fmt.Errorf("letter %s: %w", letter, err)
	}
	if skipped > 0 {
		logging.Warn("Shard entries without id skipped", "letter", letter, "skipped", skipped)
	}

	logging.Debug("Shard downloaded and parsed", "letter", letter, "records", len(records))
	return records, nil
}

// wait blocks until the outbound bucket grants a token or ctx ends
func (d *ShardDownloader) wait(ctx context.Context) error {
	if d.bucket == nil {
		return ctx.Err()
	}
	delay := d.bucket.Take(1)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
