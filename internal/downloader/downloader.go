// internal/downloader/downloader.go
package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wikimirror/wikimirror/internal/blobcache"
	"github.com/wikimirror/wikimirror/internal/cache"
	"github.com/wikimirror/wikimirror/internal/ratelimit"
	"github.com/wikimirror/wikimirror/internal/retry"
	"github.com/wikimirror/wikimirror/internal/urlutil"
)

// slotPollInterval is how often a blocked claim re-checks the in-flight
// budget.
const slotPollInterval = 200 * time.Millisecond

// defaultImagePattern recognises image URLs by extension.
const defaultImagePattern = `(?i)\.(jpe?g|png|gif|svg|webp|tiff?|bmp|ico)($|\?)`

// Options configures a Downloader.
type Options struct {
	Speed        int // base concurrency; in-flight budget starts at Speed*10
	Timeout      time.Duration
	UserAgent    string
	ImagePattern string // overrides defaultImagePattern when set

	Limiter       ratelimit.RateLimiter
	BlobCache     blobcache.Client
	ResponseCache cache.Cache
	Optimizer     *Optimizer
	Retry         retry.Config
}

// Downloader owns all outbound HTTP: JSON queries and byte streams.
// It enforces the in-flight request budget, exponential backoff and
// 429-driven throttling.
type Downloader struct {
	client    *http.Client
	userAgent string
	speed     int

	mu        sync.Mutex
	active    int
	maxActive int

	limiter   ratelimit.RateLimiter
	blobCache blobcache.Client
	respCache cache.Cache
	optimizer *Optimizer
	retryCfg  retry.Config
	imageRe   *regexp.Regexp

	urlParts urlPartCache

	// Rendering endpoints, adjusted by the capability probe.
	baseURL            string
	baseURLForMainPage string
}

// New creates a Downloader. Speed defaults to 1.
func New(opts Options) *Downloader {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "wikimirror/1.0 (https://github.com/wikimirror/wikimirror)"
	}
	pattern := opts.ImagePattern
	if pattern == "" {
		pattern = defaultImagePattern
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}

	// A cookie jar so an optional login session carries over.
	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Timeout: opts.Timeout,
		Jar:     jar,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: opts.Speed * 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Downloader{
		client:    client,
		userAgent: opts.UserAgent,
		speed:     opts.Speed,
		maxActive: opts.Speed * 10,
		limiter:   opts.Limiter,
		blobCache: opts.BlobCache,
		respCache: opts.ResponseCache,
		optimizer: opts.Optimizer,
		retryCfg:  opts.Retry,
		imageRe:   regexp.MustCompile(pattern),
	}
}

// Speed returns the base concurrency the downloader was created with.
func (d *Downloader) Speed() int {
	return d.speed
}

// HTTPClient exposes the shared cookie-jarred client so the login
// phase authenticates the same session every request uses.
func (d *Downloader) HTTPClient() *http.Client {
	return d.client
}

// SetRenderingEndpoints overrides the article endpoints the capability
// probe would pick. Used when wiring a preconfigured run.
func (d *Downloader) SetRenderingEndpoints(base, mainPage string) {
	d.baseURL = base
	d.baseURLForMainPage = mainPage
}

// MaxActiveRequests returns the current in-flight budget.
func (d *Downloader) MaxActiveRequests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

// claimSlot blocks until the in-flight budget has room, then takes a
// slot.
func (d *Downloader) claimSlot(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.active < d.maxActive {
			d.active++
			d.mu.Unlock()
			return nil
		}
		d.mu.Unlock()

		select {
		case <-time.After(slotPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Downloader) releaseSlot() {
	d.mu.Lock()
	d.active--
	d.mu.Unlock()
}

// throttle shrinks the in-flight budget after a 429. The budget never
// drops below one and does not recover within a run.
func (d *Downloader) throttle() {
	d.mu.Lock()
	next := int(math.Ceil(0.9 * float64(d.maxActive)))
	if next < 1 {
		next = 1
	}
	if next < d.maxActive {
		d.maxActive = next
	}
	budget := d.maxActive
	d.mu.Unlock()

	log.Warn().Int("maxActiveRequests", budget).Msg("Throttled by upstream 429")
}

// IsImageURL reports whether the URL looks like an image by extension.
func (d *Downloader) IsImageURL(url string) bool {
	return d.imageRe.MatchString(url)
}

// do issues one HTTP request inside the slot/limiter/backoff machinery.
// acceptNotModified widens the status validator to include 304.
func (d *Downloader) do(ctx context.Context, url string, header http.Header, acceptNotModified bool) ([]byte, http.Header, int, error) {
	if err := d.claimSlot(ctx); err != nil {
		return nil, nil, 0, err
	}
	defer d.releaseSlot()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, url); err != nil {
			return nil, nil, 0, err
		}
	}

	var body []byte
	var respHeader http.Header
	var status int

	err := retry.WithRetry(ctx, d.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("User-Agent", d.userAgent)
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		ok := (status >= 200 && status < 300) || (acceptNotModified && status == http.StatusNotModified)
		if !ok {
			if status == http.StatusTooManyRequests {
				d.throttle()
			}
			return retry.NewHTTPError(status, resp.Status, url)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		respHeader = resp.Header
		return nil
	})
	if err != nil {
		return nil, nil, status, err
	}
	return body, respHeader, status, nil
}

// GetJSON fetches and decodes a JSON endpoint. The URL may be in its
// serialized short form.
func (d *Downloader) GetJSON(ctx context.Context, url string, v any) error {
	full := d.DeserializeURL(url)

	header := http.Header{}
	header.Set("Accept", "application/json")

	body, _, _, err := d.do(ctx, full, header, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding JSON from %s: %w", full, err)
	}
	return nil
}

// DownloadContent fetches a byte stream. Image URLs are revalidated
// against the blob cache via If-None-Match; fresh bodies with an etag
// are uploaded back asynchronously; bitmap images run through the
// optimisation pipeline before returning.
func (d *Downloader) DownloadContent(ctx context.Context, url string) ([]byte, http.Header, error) {
	full := d.DeserializeURL(url)

	if d.respCache != nil {
		if body, headers, ok := d.respCache.Get(full); ok {
			log.Debug().Str("url", full).Msg("Response cache hit")
			return body, headers, nil
		}
	}

	isImage := d.IsImageURL(full)

	var cached *blobcache.Object
	header := http.Header{}
	if isImage && d.blobCache != nil {
		obj, ok, err := d.blobCache.Get(ctx, urlutil.StripHTTP(full))
		if err != nil {
			log.Warn().Err(err).Str("url", full).Msg("Blob cache lookup failed")
		} else if ok && obj.Etag != "" {
			cached = obj
			header.Set("If-None-Match", obj.Etag)
		}
	}

	body, respHeader, status, err := d.do(ctx, full, header, cached != nil)
	if err != nil {
		return nil, nil, err
	}

	if status == http.StatusNotModified && cached != nil {
		log.Debug().Str("url", full).Msg("Blob cache revalidated (304)")
		headers := http.Header{}
		headers.Set("Etag", cached.Etag)
		if d.respCache != nil {
			_ = d.respCache.Set(full, cached.Body, headers)
		}
		return cached.Body, headers, nil
	}

	if isImage && d.blobCache != nil {
		if etag := respHeader.Get("Etag"); etag != "" {
			bodyCopy := make([]byte, len(body))
			copy(bodyCopy, body)
			go func() {
				putCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := d.blobCache.Put(putCtx, urlutil.StripHTTP(full), bodyCopy, etag); err != nil {
					log.Warn().Err(err).Str("url", full).Msg("Blob cache upload failed")
				}
			}()
		}
	}

	if d.optimizer != nil && isBitmap(respHeader.Get("Content-Type")) {
		optimized, err := d.optimizer.Optimize(respHeader.Get("Content-Type"), body)
		if err != nil {
			log.Warn().Err(err).Str("url", full).Msg("Image optimisation failed, keeping original")
		} else {
			body = optimized
		}
	}

	if d.respCache != nil {
		_ = d.respCache.Set(full, body, respHeader)
	}
	return body, respHeader, nil
}

func isBitmap(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "image/png") ||
		strings.HasPrefix(ct, "image/jpeg") ||
		strings.HasPrefix(ct, "image/gif")
}

// GetArticle fetches the raw rendering JSON for one article, choosing
// the main-page endpoint when appropriate. The body is handed to the
// renderer untouched.
func (d *Downloader) GetArticle(ctx context.Context, articleID string, isMainPage bool) (json.RawMessage, error) {
	base := d.baseURL
	if isMainPage {
		base = d.baseURLForMainPage
	}
	if base == "" {
		return nil, fmt.Errorf("no rendering endpoint available, run the capability probe first")
	}

	url := base + urlutil.EncodeArticleID(articleID)
	body, _, _, err := d.do(ctx, url, http.Header{"Accept": []string{"application/json"}}, false)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		// Desktop endpoints answer with bare HTML; wrap it so the
		// renderer sees one shape.
		wrapped, err := json.Marshal(map[string]map[string]string{"html": {"body": string(body)}})
		if err != nil {
			return nil, err
		}
		return wrapped, nil
	}
	return body, nil
}
