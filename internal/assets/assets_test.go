package assets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"slidecast/internal/logging"
	"slidecast/internal/services"
	"slidecast/internal/store"
)

type fakeDoer struct {
	calls     atomic.Int32
	status    int
	body      []byte
	mediaType string
	lastReq   *http.Request
	err       error
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	resp := &http.Response{
		StatusCode: f.status,
		Status:     http.StatusText(f.status),
		Body:       io.NopCloser(bytes.NewReader(f.body)),
		Header:     http.Header{},
	}
	if f.mediaType != "" {
		resp.Header.Set("Content-Type", f.mediaType)
	}
	return resp, nil
}

type staticLookup map[string]string

func (s staticLookup) SourceURL(_ context.Context, ref string) (string, error) {
	return s[ref], nil
}

func newTestFetcher(t *testing.T, doer HTTPDoer, lookup SourceLookup, local LocalResolver) *Fetcher {
	t.Helper()
	s, err := store.Open(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	fetcher, err := NewFetcher(Options{
		Store:     s,
		Client:    doer,
		Lookup:    lookup,
		Local:     local,
		UserAgent: "slidecast-test/1.0",
		Logger:    logging.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return fetcher
}

func TestResolveFetchesURLOnceThenReusesCache(t *testing.T) {
	doer := &fakeDoer{status: http.StatusOK, body: []byte("image-bytes")}
	fetcher := newTestFetcher(t, doer, nil, nil)
	ctx := context.Background()

	first, err := fetcher.Resolve(ctx, "https://example.org/media/photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(first) != ".jpg" {
		t.Errorf("extension = %q, want .jpg", filepath.Ext(first))
	}
	data, err := os.ReadFile(first)
	if err != nil || string(data) != "image-bytes" {
		t.Errorf("cached content = %q, %v", data, err)
	}
	if ua := doer.lastReq.Header.Get("User-Agent"); ua != "slidecast-test/1.0" {
		t.Errorf("user agent = %q", ua)
	}

	second, err := fetcher.Resolve(ctx, "https://example.org/media/photo.jpg")
	if err != nil || second != first {
		t.Fatalf("second resolve = %q, %v", second, err)
	}
	if got := doer.calls.Load(); got != 1 {
		t.Errorf("origin requests = %d, want 1", got)
	}
}

func TestResolvePrefersLocalMedia(t *testing.T) {
	mediaDir := t.TempDir()
	localPath := filepath.Join(mediaDir, "clip.mp4")
	if err := os.WriteFile(localPath, []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}

	doer := &fakeDoer{status: http.StatusOK, body: []byte("remote")}
	fetcher := newTestFetcher(t, doer, nil, NewDirResolver(mediaDir))

	resolved, err := fetcher.Resolve(context.Background(), "clip.mp4")
	if err != nil || resolved != localPath {
		t.Fatalf("resolve = %q, %v, want local path", resolved, err)
	}
	if doer.calls.Load() != 0 {
		t.Error("local media must not trigger a fetch")
	}
}

func TestResolveUsesSourceLookup(t *testing.T) {
	doer := &fakeDoer{status: http.StatusOK, body: []byte("bytes")}
	lookup := staticLookup{"Painting.png": "https://example.org/originals/painting.png"}
	fetcher := newTestFetcher(t, doer, lookup, nil)

	resolved, err := fetcher.Resolve(context.Background(), "Painting.png")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(resolved) != ".png" {
		t.Errorf("extension = %q, want .png", filepath.Ext(resolved))
	}
	if doer.lastReq.URL.String() != "https://example.org/originals/painting.png" {
		t.Errorf("fetched %s", doer.lastReq.URL)
	}
}

func TestResolveUnknownReference(t *testing.T) {
	fetcher := newTestFetcher(t, &fakeDoer{status: http.StatusOK}, staticLookup{}, nil)
	if _, err := fetcher.Resolve(context.Background(), "no-such-media.jpg"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFetchErrorsByStatus(t *testing.T) {
	ctx := context.Background()

	fetcher := newTestFetcher(t, &fakeDoer{status: http.StatusNotFound}, nil, nil)
	if _, err := fetcher.Resolve(ctx, "https://example.org/gone.jpg"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("404 error = %v, want ErrNotFound", err)
	}

	fetcher = newTestFetcher(t, &fakeDoer{status: http.StatusBadGateway}, nil, nil)
	if _, err := fetcher.Resolve(ctx, "https://example.org/down.jpg"); !errors.Is(err, services.ErrExternalService) {
		t.Errorf("502 error = %v, want ErrExternalService", err)
	}

	fetcher = newTestFetcher(t, &fakeDoer{err: errors.New("connection refused")}, nil, nil)
	if _, err := fetcher.Resolve(ctx, "https://example.org/x.jpg"); !errors.Is(err, services.ErrExternalService) {
		t.Errorf("transport error = %v, want ErrExternalService", err)
	}
}

func TestFailedFetchIsNotCached(t *testing.T) {
	doer := &fakeDoer{status: http.StatusInternalServerError}
	fetcher := newTestFetcher(t, doer, nil, nil)
	ctx := context.Background()

	if _, err := fetcher.Resolve(ctx, "https://example.org/flaky.jpg"); err == nil {
		t.Fatal("expected failure")
	}

	doer.status = http.StatusOK
	doer.body = []byte("recovered")
	if _, err := fetcher.Resolve(ctx, "https://example.org/flaky.jpg"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := doer.calls.Load(); got != 2 {
		t.Errorf("origin requests = %d, want 2", got)
	}
}

func TestExtensionFromContentType(t *testing.T) {
	doer := &fakeDoer{status: http.StatusOK, body: []byte("x"), mediaType: "image/png; charset=binary"}
	fetcher := newTestFetcher(t, doer, nil, nil)

	resolved, err := fetcher.Resolve(context.Background(), "https://example.org/thumb?id=42")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(resolved) != ".png" {
		t.Errorf("extension = %q, want .png from content type", filepath.Ext(resolved))
	}
}

func TestDirResolverRejectsTraversal(t *testing.T) {
	resolver := NewDirResolver(t.TempDir())
	if _, _, err := resolver.Resolve(context.Background(), "../outside.txt"); !errors.Is(err, services.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestDirResolverMissesCleanly(t *testing.T) {
	resolver := NewDirResolver(t.TempDir())
	_, ok, err := resolver.Resolve(context.Background(), "absent.jpg")
	if err != nil || ok {
		t.Errorf("miss = (%v, %v), want clean miss", ok, err)
	}
}
