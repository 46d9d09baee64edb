package sourcectrl

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// maxFileSize bounds a single extracted file.
const maxFileSize = 64 << 20

// extractChart unpacks the regular files under chartPath from a GitHub
// tarball into dest and reports how many it wrote. GitHub wraps the tree in
// a single "<owner>-<repo>-<sha>/" directory, which is stripped. Symlinks
// and other special entries are skipped.
func extractChart(r io.Reader, chartPath, dest string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	prefix := path.Clean(chartPath) + "/"
	root := filepath.Clean(dest) + string(os.PathSeparator)

	written := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("reading tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		_, name, ok := strings.Cut(hdr.Name, "/")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(strings.TrimPrefix(name, prefix)))
		if !strings.HasPrefix(target, root) {
			return written, fmt.Errorf("illegal file path in archive: %s", hdr.Name)
		}
		if hdr.Size > maxFileSize {
			return written, fmt.Errorf("file too large in archive: %s", hdr.Name)
		}

		if err := writeFile(target, tr, hdr); err != nil {
			return written, err
		}
		written++
	}
}

func writeFile(target string, r io.Reader, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm()|0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(target), err)
	}
	if _, err := io.CopyN(f, r, hdr.Size); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(target), err)
	}
	return f.Close()
}
