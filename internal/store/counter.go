package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"slidecast/internal/services"
)

// Counter is a persistent integer shared across processes, used for the
// lifetime synthesis character budget. All mutations happen under a file
// lock so concurrent pipelines cannot overdraw.
type Counter struct {
	path string
	fl   *flock.Flock
}

// Counter returns the named counter stored at the cache root.
func (s *Store) Counter(name string) *Counter {
	path := filepath.Join(s.root, name+".counter")
	return &Counter{path: path, fl: flock.New(path + ".lock")}
}

// Value returns the current counter value; a missing file reads as zero.
func (c *Counter) Value() (int64, error) {
	if err := c.fl.Lock(); err != nil {
		return 0, services.Wrap(services.ErrCacheIO, "store", "counter", "acquire lock", err)
	}
	defer c.fl.Unlock()
	return c.read()
}

// TryAdd adds delta to the counter unless the result would exceed max
// (max <= 0 means unlimited). On refusal the counter is left unchanged and
// the current value is returned with ok=false. The new value is durable
// before TryAdd returns, so a crash mid-build cannot under-count usage.
func (c *Counter) TryAdd(delta, max int64) (value int64, ok bool, err error) {
	if err := c.fl.Lock(); err != nil {
		return 0, false, services.Wrap(services.ErrCacheIO, "store", "counter", "acquire lock", err)
	}
	defer c.fl.Unlock()

	current, err := c.read()
	if err != nil {
		return 0, false, err
	}
	next := current + delta
	if max > 0 && next > max {
		return current, false, nil
	}
	if err := c.write(next); err != nil {
		return current, false, err
	}
	return next, true, nil
}

// Reset zeroes the counter.
func (c *Counter) Reset() error {
	if err := c.fl.Lock(); err != nil {
		return services.Wrap(services.ErrCacheIO, "store", "counter", "acquire lock", err)
	}
	defer c.fl.Unlock()
	return c.write(0)
}

func (c *Counter) read() (int64, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, services.Wrap(services.ErrCacheIO, "store", "counter", "read counter file", err)
	}
	value, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrCacheIO, "store", "counter", "parse counter file", err)
	}
	return value, nil
}

func (c *Counter) write(value int64) error {
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(value, 10)+"\n"), 0o644); err != nil {
		return services.Wrap(services.ErrCacheIO, "store", "counter", "write counter file", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrCacheIO, "store", "counter", "replace counter file", err)
	}
	return nil
}
