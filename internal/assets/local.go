package assets

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"slidecast/internal/services"
)

// DirResolver resolves media references as files under a single directory.
// References escaping the directory are rejected rather than silently missed
// so a typo'd path never turns into a surprise network fetch of "../etc".
type DirResolver struct {
	dir string
}

// NewDirResolver returns a resolver rooted at dir. An empty dir resolves
// nothing.
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{dir: strings.TrimSpace(dir)}
}

// Resolve implements LocalResolver.
func (d *DirResolver) Resolve(_ context.Context, ref string) (string, bool, error) {
	if d.dir == "" || isURL(ref) {
		return "", false, nil
	}

	candidate := filepath.Join(d.dir, filepath.FromSlash(ref))
	rel, err := filepath.Rel(d.dir, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false, services.Wrap(services.ErrValidation, "assets", "resolve",
			"media reference escapes the media directory", nil)
	}

	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", false, nil
	}
	return candidate, true, nil
}
