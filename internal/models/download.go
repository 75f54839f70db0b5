// Package models fetches whisper.cpp ggml model files.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
)

// DefaultBaseURL is the Hugging Face repository hosting ggml models.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// Known lists the model names published in the whisper.cpp repository.
var Known = []string{
	"tiny", "tiny.en",
	"base", "base.en",
	"small", "small.en",
	"medium", "medium.en",
	"large-v1", "large-v2", "large-v3", "large-v3-turbo",
}

// FileName maps a model name ("base.en") or file name ("ggml-base.en.bin")
// to its ggml file name.
func FileName(name string) (string, error) {
	short := strings.TrimSuffix(strings.TrimPrefix(name, "ggml-"), ".bin")
	for _, k := range Known {
		if k == short {
			return "ggml-" + short + ".bin", nil
		}
	}
	return "", fmt.Errorf("models: unknown model %q (known: %s)", name, strings.Join(Known, ", "))
}

// Downloader saves models into Dir.
type Downloader struct {
	Dir     string
	BaseURL string
	Client  *http.Client
	// Out receives progress output; nil discards it.
	Out io.Writer
}

// NewDownloader returns a Downloader for dir using the public repository.
func NewDownloader(dir string, out io.Writer) *Downloader {
	return &Downloader{
		Dir:     dir,
		BaseURL: DefaultBaseURL,
		Client:  http.DefaultClient,
		Out:     out,
	}
}

func (d *Downloader) printf(format string, args ...any) {
	if d.Out != nil {
		_, _ = fmt.Fprintf(d.Out, format, args...)
	}
}

// Download fetches the named model unless a non-empty copy already exists
// and returns its path. A lock file keeps concurrent processes from
// downloading the same model twice.
func (d *Downloader) Download(ctx context.Context, name string) (string, error) {
	file, err := FileName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("models: creating models dir: %w", err)
	}
	destPath := filepath.Join(d.Dir, file)

	lock := flock.New(destPath + ".lock")
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("models: acquire lock: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("models: %s is locked by another process", file)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		d.printf("  %s already exists: %s (%s)\n", file, destPath, humanize.Bytes(uint64(info.Size())))
		return destPath, nil
	}

	url := strings.TrimRight(d.BaseURL, "/") + "/" + file
	d.printf("  Downloading %s\n  URL: %s\n  Destination: %s\n", file, url, destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("models: build request: %w", err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("models: downloading %s: %w", file, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("models: download %s failed: HTTP %d", file, resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("models: creating temp file: %w", err)
	}

	pw := &progressWriter{
		writer: f,
		out:    d.Out,
		total:  resp.ContentLength,
		label:  file,
	}
	written, err := io.Copy(pw, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && resp.ContentLength > 0 && written != resp.ContentLength {
		err = fmt.Errorf("short body: got %d of %d bytes", written, resp.ContentLength)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("models: writing %s: %w", file, err)
	}
	d.printf("\n  Downloaded %s\n", humanize.Bytes(uint64(written)))

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("models: moving model file: %w", err)
	}
	return destPath, nil
}

// DownloadAll fetches each model in turn, stopping at the first failure.
func (d *Downloader) DownloadAll(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, errors.New("models: no models requested")
	}
	paths := make([]string, 0, len(names))
	for i, name := range names {
		d.printf("[%d/%d] %s\n", i+1, len(names), name)
		p, err := d.Download(ctx, name)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
	lastPct int
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.out == nil {
		return n, err
	}

	if pw.total > 0 {
		pct := int(pw.written * 100 / pw.total)
		if pct == pw.lastPct && pw.written != pw.total {
			return n, err
		}
		pw.lastPct = pct
		_, _ = fmt.Fprintf(pw.out, "\r  %s: %s / %s (%d%%)",
			pw.label,
			humanize.Bytes(uint64(pw.written)),
			humanize.Bytes(uint64(pw.total)),
			pct)
	} else {
		_, _ = fmt.Fprintf(pw.out, "\r  %s: %s downloaded",
			pw.label,
			humanize.Bytes(uint64(pw.written)))
	}
	return n, err
}
