package store

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"slidecast/internal/fingerprint"
	"slidecast/internal/logging"
	"slidecast/internal/services"
)

// Artifact namespaces. Each maps to a subdirectory of the cache root.
const (
	NSVideos = "videos"
	NSScenes = "scenes"
	NSAudios = "audios"
	NSTracks = "tracks"
	NSRemote = "remote"
)

// Namespaces lists every namespace in creation order.
var Namespaces = []string{NSVideos, NSScenes, NSAudios, NSTracks, NSRemote}

// PlaceholderVisualID is the constant visual id for scenes without media.
const PlaceholderVisualID = "blank"

const placeholderFile = "blank-pixel.jpg"

// lockRetryDelay paces cross-process lock acquisition attempts.
const lockRetryDelay = 50 * time.Millisecond

// Store is the content-addressed artifact cache. An artifact's presence at
// its keyed path means "already built, reusable as-is"; artifacts are created
// once via Reserve/Commit and never mutated.
type Store struct {
	root   string
	logger *slog.Logger
	index  *Index
	statfs statfsFunc

	mu       sync.Mutex
	builders map[string]*builder

	placeholderOnce sync.Once
	placeholderErr  error
}

type builder struct {
	done chan struct{}
}

// Open prepares the cache directory layout under root and opens the artifact
// index. The directory and every namespace are created if missing.
func Open(root string, logger *slog.Logger) (*Store, error) {
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", "cache root is empty", nil)
	}
	for _, ns := range Namespaces {
		if err := os.MkdirAll(filepath.Join(root, ns), 0o755); err != nil {
			return nil, services.Wrap(services.ErrCacheIO, "store", "open", "create namespace directory", err)
		}
	}

	index, err := OpenIndex(filepath.Join(root, "index.db"))
	if err != nil {
		return nil, err
	}

	return &Store{
		root:     root,
		logger:   logging.NewComponentLogger(logger, "store"),
		index:    index,
		statfs:   realStatfs,
		builders: make(map[string]*builder),
	}, nil
}

// Close releases the artifact index.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.index.Close()
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

// Path returns the canonical artifact path. ext includes the dot (".mp3").
func (s *Store) Path(namespace string, key fingerprint.Key, ext string) string {
	return filepath.Join(s.root, namespace, string(key)+ext)
}

// Lookup reports whether the artifact exists and returns its path. A hit
// refreshes the index's last-read time so eviction can order by recency.
func (s *Store) Lookup(namespace string, key fingerprint.Key, ext string) (string, bool) {
	path := s.Path(namespace, key, ext)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	if err := s.index.Touch(context.Background(), namespace, key); err != nil {
		s.logger.Debug("index touch failed", logging.String(logging.FieldNamespace, namespace),
			logging.String(logging.FieldKey, key.String()), logging.Error(err))
	}
	return path, true
}

// LookupIndexed finds an artifact whose extension the caller does not know,
// using the index's recorded extension. Remote assets need this when the
// extension came from the origin's Content-Type rather than the URL.
func (s *Store) LookupIndexed(ctx context.Context, namespace string, key fingerprint.Key) (string, bool) {
	ext, ok, err := s.index.Ext(ctx, namespace, key)
	if err != nil || !ok {
		return "", false
	}
	return s.Lookup(namespace, key, ext)
}

// Reserve grants the caller the exclusive right to build the artifact for
// (namespace, key). If another builder in this process holds the reservation,
// Reserve blocks until it commits or releases, then acquires; callers must
// re-Lookup after acquiring, since the previous holder usually built the
// artifact. Cross-process exclusion uses a file lock beside the artifact.
func (s *Store) Reserve(ctx context.Context, namespace string, key fingerprint.Key) (*Reservation, error) {
	id := namespace + "/" + string(key)
	for {
		s.mu.Lock()
		current, exists := s.builders[id]
		if !exists {
			b := &builder{done: make(chan struct{})}
			s.builders[id] = b
			s.mu.Unlock()

			fl := flock.New(s.Path(namespace, key, ".lock"))
			locked, err := fl.TryLockContext(ctx, lockRetryDelay)
			if err == nil && !locked {
				err = errors.New("lock not acquired")
			}
			if err != nil {
				s.abandon(id, b)
				return nil, services.Wrap(services.ErrCacheIO, "store", "reserve", "acquire builder lock", err)
			}
			return &Reservation{store: s, id: id, namespace: namespace, key: key, fl: fl, b: b}, nil
		}
		s.mu.Unlock()

		select {
		case <-current.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Store) abandon(id string, b *builder) {
	s.mu.Lock()
	if s.builders[id] == b {
		delete(s.builders, id)
	}
	s.mu.Unlock()
	close(b.done)
}

// Reservation is the exclusive right to build one artifact. Exactly one of
// Commit/CommitBytes may succeed; Release must always be called (idempotent)
// so waiting builders are woken even on failure.
type Reservation struct {
	store     *Store
	id        string
	namespace string
	key       fingerprint.Key
	fl        *flock.Flock
	b         *builder
	once      sync.Once
}

// StagingPath returns a fresh temp path inside the reservation's namespace,
// on the same filesystem as the final artifact so Commit is a pure rename.
func (r *Reservation) StagingPath(ext string) string {
	return filepath.Join(r.store.root, r.namespace, ".tmp-"+uuid.NewString()+ext)
}

// Commit atomically moves a finished staging file into place and records it
// in the index. A partially written file is never observable at the final
// path: readers see either a miss or the complete artifact.
func (r *Reservation) Commit(stagingPath, ext string) (string, error) {
	info, err := os.Stat(stagingPath)
	if err != nil {
		return "", services.Wrap(services.ErrCacheIO, "store", "commit", "stat staging file", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(stagingPath)
		return "", services.Wrap(services.ErrCacheIO, "store", "commit", "refusing to commit empty artifact", nil)
	}

	final := r.store.Path(r.namespace, r.key, ext)
	if err := os.Rename(stagingPath, final); err != nil {
		_ = os.Remove(stagingPath)
		return "", services.Wrap(services.ErrCacheIO, "store", "commit", "rename into place", err)
	}

	if err := r.store.index.Record(context.Background(), r.namespace, r.key, ext, info.Size()); err != nil {
		r.store.logger.Warn("artifact committed but index record failed",
			logging.String(logging.FieldNamespace, r.namespace),
			logging.String(logging.FieldKey, r.key.String()),
			logging.Error(err))
	}

	r.store.logger.Debug("committed artifact",
		logging.String(logging.FieldNamespace, r.namespace),
		logging.String(logging.FieldKey, r.key.String()),
		logging.Int64("size_bytes", info.Size()))
	return final, nil
}

// CommitBytes writes data to a staging file and commits it.
func (r *Reservation) CommitBytes(data []byte, ext string) (string, error) {
	staging := r.StagingPath(ext)
	if err := os.WriteFile(staging, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrCacheIO, "store", "commit", "write staging file", err)
	}
	return r.Commit(staging, ext)
}

// CommitFrom streams reader contents to a staging file and commits it.
func (r *Reservation) CommitFrom(reader io.Reader, ext string) (string, error) {
	staging := r.StagingPath(ext)
	out, err := os.OpenFile(staging, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", services.Wrap(services.ErrCacheIO, "store", "commit", "create staging file", err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		_ = os.Remove(staging)
		return "", services.Wrap(services.ErrCacheIO, "store", "commit", "stream to staging file", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(staging)
		return "", services.Wrap(services.ErrCacheIO, "store", "commit", "close staging file", err)
	}
	return r.Commit(staging, ext)
}

// Release frees the reservation. Safe to call multiple times and after
// Commit; the deferred form keeps failed builds from wedging waiters. The
// lock file stays on disk: unlinking it would let a process holding an fd on
// the old inode and a process locking a fresh file both believe they own the
// key.
func (r *Reservation) Release() {
	r.once.Do(func() {
		_ = r.fl.Unlock()
		r.store.abandon(r.id, r.b)
	})
}

// PlaceholderVisual returns the path of the constant single-pixel visual used
// for scenes without media, writing it on first use.
func (s *Store) PlaceholderVisual() (string, error) {
	path := filepath.Join(s.root, placeholderFile)
	s.placeholderOnce.Do(func() {
		if _, err := os.Stat(path); err == nil {
			return
		}
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		tmp := path + ".tmp"
		out, err := os.Create(tmp)
		if err != nil {
			s.placeholderErr = services.Wrap(services.ErrCacheIO, "store", "placeholder", "create file", err)
			return
		}
		if err := jpeg.Encode(out, img, nil); err != nil {
			out.Close()
			_ = os.Remove(tmp)
			s.placeholderErr = services.Wrap(services.ErrCacheIO, "store", "placeholder", "encode image", err)
			return
		}
		if err := out.Close(); err != nil {
			_ = os.Remove(tmp)
			s.placeholderErr = services.Wrap(services.ErrCacheIO, "store", "placeholder", "close file", err)
			return
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			s.placeholderErr = services.Wrap(services.ErrCacheIO, "store", "placeholder", "rename into place", err)
		}
	})
	if s.placeholderErr != nil {
		return "", s.placeholderErr
	}
	return path, nil
}

// Remove deletes one artifact and its index row.
func (s *Store) Remove(ctx context.Context, namespace string, key fingerprint.Key, ext string) error {
	if err := os.Remove(s.Path(namespace, key, ext)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrCacheIO, "store", "remove", "delete artifact", err)
	}
	return s.index.Forget(ctx, namespace, key)
}

// Clear removes every artifact in the given namespaces.
func (s *Store) Clear(ctx context.Context, namespaces ...string) error {
	if len(namespaces) == 0 {
		namespaces = Namespaces
	}
	for _, ns := range namespaces {
		dir := filepath.Join(s.root, ns)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return services.Wrap(services.ErrCacheIO, "store", "clear", fmt.Sprintf("list namespace %q", ns), err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return services.Wrap(services.ErrCacheIO, "store", "clear", "delete artifact", err)
			}
		}
		if err := s.index.ForgetNamespace(ctx, ns); err != nil {
			return err
		}
	}
	return nil
}
