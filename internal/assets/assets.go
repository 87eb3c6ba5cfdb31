// Package assets resolves media references to local files, fetching and
// caching remote originals on first use.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"slidecast/internal/fingerprint"
	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

// DefaultRequestTimeout bounds a single origin download.
const DefaultRequestTimeout = 60 * time.Second

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SourceLookup maps a media reference to the URL its bytes can be fetched
// from. Implementations may consult an external catalog; references that are
// themselves URLs are handled before lookup runs.
type SourceLookup interface {
	SourceURL(ctx context.Context, ref string) (string, error)
}

// LocalResolver resolves a media reference against local storage before any
// network activity is considered.
type LocalResolver interface {
	Resolve(ctx context.Context, ref string) (path string, ok bool, err error)
}

// Fetcher turns media references into local file paths. Local files win; URLs
// and catalog references are downloaded once and reused from the remote
// namespace thereafter.
type Fetcher struct {
	store     *store.Store
	client    HTTPDoer
	lookup    SourceLookup
	local     LocalResolver
	userAgent string
	logger    *slog.Logger
}

// Options configures a Fetcher. Store and UserAgent are required; Client
// defaults to a timeout-bounded http.Client, Lookup and Local may be nil.
type Options struct {
	Store     *store.Store
	Client    HTTPDoer
	Lookup    SourceLookup
	Local     LocalResolver
	UserAgent string
	Logger    *slog.Logger
}

// NewFetcher validates options and returns a Fetcher.
func NewFetcher(opts Options) (*Fetcher, error) {
	if opts.Store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "new", "store is required", nil)
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "new",
			"a descriptive user agent is required for origin requests", nil)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &Fetcher{
		store:     opts.Store,
		client:    client,
		lookup:    opts.Lookup,
		local:     opts.Local,
		userAgent: strings.TrimSpace(opts.UserAgent),
		logger:    logging.NewComponentLogger(opts.Logger, "assets"),
	}, nil
}

// Resolve returns a local path for the referenced media. The reference is
// tried as local media first, then as a URL, then through the source lookup.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", services.Wrap(services.ErrValidation, "assets", "resolve", "empty media reference", nil)
	}

	if f.local != nil {
		localPath, ok, err := f.local.Resolve(ctx, ref)
		if err != nil {
			return "", err
		}
		if ok {
			return localPath, nil
		}
	}

	sourceURL := ""
	if isURL(ref) {
		sourceURL = ref
	} else if f.lookup != nil {
		resolved, err := f.lookup.SourceURL(ctx, ref)
		if err != nil {
			return "", err
		}
		sourceURL = resolved
	}
	if sourceURL == "" {
		return "", services.Wrap(services.ErrNotFound, "assets", "resolve",
			fmt.Sprintf("no source for media reference %q", ref), nil)
	}

	return f.fetch(ctx, sourceURL)
}

// fetch downloads sourceURL into the remote namespace, or reuses the cached
// copy. Concurrent fetches of the same URL download once.
func (f *Fetcher) fetch(ctx context.Context, sourceURL string) (string, error) {
	key := fingerprint.New(fingerprint.KindRemote, sourceURL)
	ext := urlExt(sourceURL)

	if cached, ok := f.store.LookupIndexed(ctx, store.NSRemote, key); ok {
		return cached, nil
	}

	reservation, err := f.store.Reserve(ctx, store.NSRemote, key)
	if err != nil {
		return "", err
	}
	defer reservation.Release()

	if cached, ok := f.store.LookupIndexed(ctx, store.NSRemote, key); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "assets", "fetch", "build request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	f.logger.Info("fetching remote asset", logging.String("url", sourceURL))
	resp, err := f.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "assets", "fetch", "origin request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", services.Wrap(services.ErrNotFound, "assets", "fetch",
			fmt.Sprintf("origin has no %s", sourceURL), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", services.Wrap(services.ErrExternalService, "assets", "fetch",
			fmt.Sprintf("origin returned %s for %s", resp.Status, sourceURL), nil)
	}

	if ext == defaultExt {
		if better := extFromContentType(resp.Header.Get("Content-Type")); better != "" {
			ext = better
		}
	}

	localPath, err := reservation.CommitFrom(resp.Body, ext)
	if err != nil {
		return "", err
	}
	return localPath, nil
}

const defaultExt = ".bin"

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// urlExt extracts the file extension from a URL path, defaulting when the
// path carries none.
func urlExt(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if ext == "" || len(ext) > 8 {
		return defaultExt
	}
	return ext
}

func extFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	}
	return ""
}
