package store

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"slidecast/internal/logging"
)

// freeSpaceFloor is the minimum fraction of the cache filesystem that must
// stay free; pruning continues past the byte cap until it is met.
const freeSpaceFloor = 0.20

type statfsFunc func(path string) (totalBytes, freeBytes uint64, err error)

func realStatfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Blocks * uint64(st.Bsize), st.Bavail * uint64(st.Bsize), nil
}

// PruneOptions controls one eviction pass.
type PruneOptions struct {
	// MaxBytes caps the total indexed cache size; 0 disables the cap.
	MaxBytes int64
	// IncludeRemote makes fetched source media evictable too. Remote assets
	// are exempt by default because re-fetching depends on an origin that
	// may have moved or vanished.
	IncludeRemote bool
	// DryRun reports what would be evicted without deleting anything.
	DryRun bool
}

// PruneResult summarizes one eviction pass.
type PruneResult struct {
	Examined       int
	Evicted        []Entry
	ReclaimedBytes int64
	RemainingBytes int64
}

// Prune evicts artifacts least-recently-read first until the cache fits under
// opts.MaxBytes and the filesystem keeps freeSpaceFloor of its capacity free.
func (s *Store) Prune(ctx context.Context, opts PruneOptions) (PruneResult, error) {
	entries, err := s.index.List(ctx)
	if err != nil {
		return PruneResult{}, err
	}

	var total int64
	for _, entry := range entries {
		total += entry.SizeBytes
	}

	result := PruneResult{Examined: len(entries), RemainingBytes: total}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		over := opts.MaxBytes > 0 && result.RemainingBytes > opts.MaxBytes
		if !over {
			low, err := s.freeSpaceLow()
			if err != nil {
				return result, err
			}
			if !low {
				break
			}
		}
		if entry.Namespace == NSRemote && !opts.IncludeRemote {
			continue
		}

		if !opts.DryRun {
			path := s.Path(entry.Namespace, entry.Key, entry.Ext)
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("evict failed", logging.String("path", path), logging.Error(err))
				continue
			}
			if err := s.index.Forget(ctx, entry.Namespace, entry.Key); err != nil {
				return result, err
			}
		}
		result.Evicted = append(result.Evicted, entry)
		result.ReclaimedBytes += entry.SizeBytes
		result.RemainingBytes -= entry.SizeBytes
	}

	if len(result.Evicted) > 0 && !opts.DryRun {
		s.logger.Info("pruned cache",
			logging.Int("evicted", len(result.Evicted)),
			logging.Int64("reclaimed_bytes", result.ReclaimedBytes))
	}
	return result, nil
}

func (s *Store) freeSpaceLow() (bool, error) {
	total, free, err := s.statfs(s.root)
	if err != nil {
		return false, err
	}
	if total == 0 {
		return false, nil
	}
	return float64(free)/float64(total) < freeSpaceFloor, nil
}

// Usage reports indexed cache usage alongside filesystem headroom.
type Usage struct {
	Namespaces []NamespaceStats
	TotalBytes int64
	FreeBytes  uint64
	FSBytes    uint64
}

// Usage summarizes the cache for operator-facing reporting.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return Usage{}, err
	}
	usage := Usage{Namespaces: stats}
	for _, stat := range stats {
		usage.TotalBytes += stat.TotalBytes
	}
	fsTotal, fsFree, err := s.statfs(s.root)
	if err != nil {
		return usage, nil
	}
	usage.FSBytes = fsTotal
	usage.FreeBytes = fsFree
	return usage, nil
}

// Entries exposes the index listing for operator-facing reporting.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	return s.index.List(ctx)
}
