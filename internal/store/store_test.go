package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"slidecast/internal/fingerprint"
	"slidecast/internal/logging"
	"slidecast/internal/services"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	// Plenty of free space unless a test overrides.
	s.statfs = func(string) (uint64, uint64, error) { return 100, 90, nil }
	return s
}

func mustCommit(t *testing.T, s *Store, ns string, key fingerprint.Key, ext string, data []byte) string {
	t.Helper()
	res, err := s.Reserve(context.Background(), ns, key)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	defer res.Release()
	path, err := res.CommitBytes(data, ext)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return path
}

func TestLookupMissThenHit(t *testing.T) {
	s := newTestStore(t)
	key := fingerprint.New(fingerprint.KindSpeech, "hello")

	if _, ok := s.Lookup(NSAudios, key, ".mp3"); ok {
		t.Fatal("lookup should miss before commit")
	}

	committed := mustCommit(t, s, NSAudios, key, ".mp3", []byte("audio"))

	path, ok := s.Lookup(NSAudios, key, ".mp3")
	if !ok {
		t.Fatal("lookup should hit after commit")
	}
	if path != committed {
		t.Errorf("lookup path = %q, want %q", path, committed)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "audio" {
		t.Errorf("artifact content = %q, %v", data, err)
	}
}

func TestCommitRefusesEmptyArtifact(t *testing.T) {
	s := newTestStore(t)
	key := fingerprint.New(fingerprint.KindSpeech, "empty")

	res, err := s.Reserve(context.Background(), NSAudios, key)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	defer res.Release()

	if _, err := res.CommitBytes(nil, ".mp3"); !errors.Is(err, services.ErrCacheIO) {
		t.Fatalf("empty commit error = %v, want ErrCacheIO", err)
	}
	if _, ok := s.Lookup(NSAudios, key, ".mp3"); ok {
		t.Error("empty artifact must not become visible")
	}
}

func TestCommitLeavesNoStagingDebris(t *testing.T) {
	s := newTestStore(t)
	key := fingerprint.New(fingerprint.KindScene, "scene")
	mustCommit(t, s, NSScenes, key, ".mp4", []byte("video"))

	entries, err := os.ReadDir(filepath.Join(s.Root(), NSScenes))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if name := entry.Name(); name != string(key)+".mp4" && name != string(key)+".lock" {
			t.Errorf("unexpected file in namespace: %s", name)
		}
	}
}

func TestReleaseKeepsLockFileOnDisk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := fingerprint.New(fingerprint.KindScene, "relock")
	lockPath := s.Path(NSScenes, key, ".lock")

	res, err := s.Reserve(ctx, NSScenes, key)
	if err != nil {
		t.Fatal(err)
	}
	res.Release()

	// The file must survive release: unlinking it would let a second
	// process lock a fresh inode while a third still holds the old one.
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("lock file after release: %v", err)
	}

	again, err := s.Reserve(ctx, NSScenes, key)
	if err != nil {
		t.Fatalf("re-reserve after release: %v", err)
	}
	again.Release()
}

func TestReserveAdmitsExactlyOneBuilder(t *testing.T) {
	s := newTestStore(t)
	key := fingerprint.New(fingerprint.KindScene, "contended")

	var builds atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Lookup(NSScenes, key, ".mp4"); ok {
				return
			}
			res, err := s.Reserve(context.Background(), NSScenes, key)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			defer res.Release()
			if _, ok := s.Lookup(NSScenes, key, ".mp4"); ok {
				return
			}
			builds.Add(1)
			time.Sleep(10 * time.Millisecond)
			if _, err := res.CommitBytes([]byte("built"), ".mp4"); err != nil {
				t.Errorf("commit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := builds.Load(); got != 1 {
		t.Errorf("builds = %d, want exactly 1", got)
	}
}

func TestReleaseWithoutCommitWakesWaiters(t *testing.T) {
	s := newTestStore(t)
	key := fingerprint.New(fingerprint.KindScene, "abandoned")

	first, err := s.Reserve(context.Background(), NSScenes, key)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := s.Reserve(context.Background(), NSScenes, key)
		if err != nil {
			t.Errorf("second reserve: %v", err)
			return
		}
		second.Release()
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	first.Release()
	first.Release() // idempotent

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired after release")
	}
}

func TestReserveHonorsContextCancellation(t *testing.T) {
	s := newTestStore(t)
	key := fingerprint.New(fingerprint.KindScene, "held")

	holder, err := s.Reserve(context.Background(), NSScenes, key)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := s.Reserve(ctx, NSScenes, key); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("reserve error = %v, want deadline exceeded", err)
	}
}

func TestCounterTryAdd(t *testing.T) {
	s := newTestStore(t)
	counter := s.Counter("budget")

	value, ok, err := counter.TryAdd(40, 100)
	if err != nil || !ok || value != 40 {
		t.Fatalf("first add = (%d, %v, %v)", value, ok, err)
	}

	value, ok, err = counter.TryAdd(70, 100)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("add past the cap must be refused")
	}
	if value != 40 {
		t.Errorf("refused add changed the counter: %d", value)
	}

	value, ok, err = counter.TryAdd(60, 100)
	if err != nil || !ok || value != 100 {
		t.Fatalf("add to exactly the cap = (%d, %v, %v)", value, ok, err)
	}

	if _, ok, _ = counter.TryAdd(1, 0); !ok {
		t.Error("max <= 0 means unlimited")
	}

	if err := counter.Reset(); err != nil {
		t.Fatal(err)
	}
	if value, err := counter.Value(); err != nil || value != 0 {
		t.Errorf("after reset value = %d, %v", value, err)
	}
}

func TestCounterSurvivesReopen(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Counter("budget").TryAdd(25, 0); err != nil {
		t.Fatal(err)
	}
	if value, err := s.Counter("budget").Value(); err != nil || value != 25 {
		t.Errorf("value = %d, %v, want 25", value, err)
	}
}

func TestPruneEvictsLeastRecentlyRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := fingerprint.New(fingerprint.KindScene, "old")
	fresh := fingerprint.New(fingerprint.KindScene, "fresh")
	mustCommit(t, s, NSScenes, old, ".mp4", make([]byte, 600))
	mustCommit(t, s, NSScenes, fresh, ".mp4", make([]byte, 600))

	// Make "old" the least recently read.
	if _, err := s.index.db.Exec(
		`UPDATE artifacts SET last_read_at = ? WHERE key = ?`,
		time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano), string(old)); err != nil {
		t.Fatal(err)
	}

	result, err := s.Prune(ctx, PruneOptions{MaxBytes: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Evicted) != 1 || result.Evicted[0].Key != old {
		t.Fatalf("evicted = %+v, want exactly the old scene", result.Evicted)
	}
	if _, ok := s.Lookup(NSScenes, old, ".mp4"); ok {
		t.Error("evicted artifact still present")
	}
	if _, ok := s.Lookup(NSScenes, fresh, ".mp4"); !ok {
		t.Error("fresh artifact must survive")
	}
}

func TestPruneExemptsRemoteByDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	remote := fingerprint.New(fingerprint.KindRemote, "https://example.org/a.jpg")
	scene := fingerprint.New(fingerprint.KindScene, "scene")
	mustCommit(t, s, NSRemote, remote, ".jpg", make([]byte, 600))
	mustCommit(t, s, NSScenes, scene, ".mp4", make([]byte, 600))

	if _, err := s.index.db.Exec(
		`UPDATE artifacts SET last_read_at = ? WHERE key = ?`,
		time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano), string(remote)); err != nil {
		t.Fatal(err)
	}

	result, err := s.Prune(ctx, PruneOptions{MaxBytes: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Evicted) != 1 || result.Evicted[0].Namespace != NSScenes {
		t.Fatalf("evicted = %+v, want the scene (remote exempt)", result.Evicted)
	}

	result, err = s.Prune(ctx, PruneOptions{MaxBytes: 100, IncludeRemote: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Evicted) != 1 || result.Evicted[0].Namespace != NSRemote {
		t.Fatalf("evicted = %+v, want the remote asset when included", result.Evicted)
	}
}

func TestPruneContinuesWhileFreeSpaceLow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := fingerprint.New(fingerprint.KindScene, "only")
	mustCommit(t, s, NSScenes, key, ".mp4", make([]byte, 100))

	s.statfs = func(string) (uint64, uint64, error) { return 1000, 50, nil }
	result, err := s.Prune(ctx, PruneOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Evicted) != 1 {
		t.Errorf("low free space must force eviction even with no byte cap, evicted %d", len(result.Evicted))
	}
}

func TestPruneDryRunDeletesNothing(t *testing.T) {
	s := newTestStore(t)
	key := fingerprint.New(fingerprint.KindScene, "kept")
	mustCommit(t, s, NSScenes, key, ".mp4", make([]byte, 600))

	result, err := s.Prune(context.Background(), PruneOptions{MaxBytes: 100, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Evicted) != 1 {
		t.Fatalf("dry run should report the eviction, got %d", len(result.Evicted))
	}
	if _, ok := s.Lookup(NSScenes, key, ".mp4"); !ok {
		t.Error("dry run deleted the artifact")
	}
}

func TestClearNamespace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scene := fingerprint.New(fingerprint.KindScene, "s")
	audio := fingerprint.New(fingerprint.KindSpeech, "a")
	mustCommit(t, s, NSScenes, scene, ".mp4", []byte("v"))
	mustCommit(t, s, NSAudios, audio, ".mp3", []byte("a"))

	if err := s.Clear(ctx, NSScenes); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Lookup(NSScenes, scene, ".mp4"); ok {
		t.Error("cleared namespace still serves hits")
	}
	if _, ok := s.Lookup(NSAudios, audio, ".mp3"); !ok {
		t.Error("clear must not touch other namespaces")
	}
}

func TestUsageCoversAllNamespaces(t *testing.T) {
	s := newTestStore(t)
	mustCommit(t, s, NSAudios, fingerprint.New(fingerprint.KindSpeech, "a"), ".mp3", make([]byte, 10))

	usage, err := s.Usage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(usage.Namespaces) != len(Namespaces) {
		t.Errorf("usage namespaces = %d, want %d", len(usage.Namespaces), len(Namespaces))
	}
	if usage.TotalBytes != 10 {
		t.Errorf("total bytes = %d, want 10", usage.TotalBytes)
	}
}

func TestPlaceholderVisualIsStable(t *testing.T) {
	s := newTestStore(t)
	first, err := s.PlaceholderVisual()
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.PlaceholderVisual()
	if err != nil || first != second {
		t.Errorf("placeholder paths differ: %q vs %q (%v)", first, second, err)
	}
	info, err := os.Stat(first)
	if err != nil || info.Size() == 0 {
		t.Errorf("placeholder not written: %v", err)
	}
}
