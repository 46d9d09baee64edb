// Package localfs serves chart files from local directories, one per ref,
// so the check workflow can run without a GitHub repository.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

// Adapter implements ports.SourceControlPort over a fixed ref to
// directory mapping. Owner and repo are ignored.
type Adapter struct {
	roots map[string]string
}

// New creates an adapter that resolves each ref to its root directory.
func New(roots map[string]string) *Adapter {
	return &Adapter{roots: roots}
}

// FetchChartFiles returns root/chartPath for ref. Files are read in place,
// so cleanup does nothing. A missing directory yields a domain.NotFoundError.
func (a *Adapter) FetchChartFiles(_ context.Context, _, _, ref, chartPath string) (string, func(), error) {
	root, ok := a.roots[ref]
	if !ok {
		return "", nil, fmt.Errorf("unknown ref %q", ref)
	}

	dir := filepath.Join(root, filepath.FromSlash(chartPath))
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil, domain.NewNotFoundError(chartPath, ref)
	case err != nil:
		return "", nil, fmt.Errorf("reading %s: %w", dir, err)
	case !info.IsDir():
		return "", nil, fmt.Errorf("%s is not a directory", dir)
	}
	return dir, func() {}, nil
}
