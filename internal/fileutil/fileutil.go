// Package fileutil stages uploads on disk and removes them afterwards.
package fileutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TempPath returns a unique path inside dir (the OS temp dir when empty)
// carrying ext, so decoders can still dispatch on the extension.
func TempPath(dir, ext string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(dir, "gostt-"+uuid.NewString()+strings.ToLower(ext))
}

// SaveTemp copies r into a new temp file and returns its path and size.
// On error no file is left behind.
func SaveTemp(dir, ext string, r io.Reader) (string, int64, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", 0, fmt.Errorf("fileutil: create temp dir: %w", err)
		}
	}

	path := TempPath(dir, ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", 0, fmt.Errorf("fileutil: create temp file: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("fileutil: write temp file: %w", err)
	}
	return path, n, nil
}

// SafeDelete removes path, retrying up to retries times with delay between
// attempts. It reports whether the file was removed. A file that does not
// exist is reported as not deleted without retrying. When every attempt
// fails a warning is logged.
func SafeDelete(ctx context.Context, path string, retries int, delay time.Duration, log *zap.Logger) bool {
	if log == nil {
		log = zap.NewNop()
	}
	if retries < 1 {
		retries = 1
	}

	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		err = os.Remove(path)
		if err == nil {
			return true
		}
		if errors.Is(err, fs.ErrNotExist) {
			return false
		}
		if attempt == retries {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn("could not delete temporary file",
				zap.String("path", path), zap.Int("attempts", attempt), zap.Error(ctx.Err()))
			return false
		case <-timer.C:
		}
	}

	log.Warn("could not delete temporary file",
		zap.String("path", path), zap.Int("attempts", retries), zap.Error(err))
	return false
}
