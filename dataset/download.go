// Package dataset acquires the labeled cat/dog corpus and turns it into a
// feature matrix.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

var (
	ErrNetwork = errors.New("dataset download failed")
	ErrArchive = errors.New("dataset archive extraction failed")
)

// Download fetches url into dest. Any transport error or non-2xx status is
// reported as ErrNetwork; nothing is retried.
func Download(ctx context.Context, client *http.Client, url, dest string) (int64, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %s returned %s", ErrNetwork, url, resp.Status)
	}

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return n, nil
}

// Extract unpacks the zip at archivePath under destDir and returns the number
// of files written.
func Extract(archivePath, destDir string) (int, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	defer reader.Close()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, err
	}

	var files int
	for _, entry := range reader.File {
		target := filepath.Join(root, filepath.FromSlash(entry.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return files, fmt.Errorf("%w: entry %q escapes destination", ErrArchive, entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
			continue
		}
		if err := extractFile(entry, target); err != nil {
			return files, fmt.Errorf("%w: %s: %v", ErrArchive, entry.Name, err)
		}
		files++
	}
	return files, nil
}

func extractFile(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// PrepareOutputDirs creates <root>/test/<class> for every class.
func PrepareOutputDirs(root string, classes []Class) error {
	for _, class := range classes {
		if err := os.MkdirAll(filepath.Join(root, "test", class.Label), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup removes the downloaded archive and the extracted corpus. Failures
// are logged only.
func Cleanup(logger *zap.Logger, archivePath, rawDir string) {
	if archivePath != "" {
		if err := os.Remove(archivePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove archive failed", zap.String("path", archivePath), zap.Error(err))
		}
	}
	if rawDir != "" {
		if err := os.RemoveAll(rawDir); err != nil {
			logger.Warn("remove raw dataset failed", zap.String("path", rawDir), zap.Error(err))
		}
	}
}
