package ingestion

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const defaultMaxDownload = 32 << 20

// IsURL reports whether s is an http(s) URL.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Downloader saves remote documents to temp files.
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// NewDownloader returns a downloader. maxBytes <= 0 means 32 MiB.
func NewDownloader(client *http.Client, maxBytes int64) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxDownload
	}
	return &Downloader{client: client, maxBytes: maxBytes}
}

// Fetch downloads rawURL and returns the temp file path. The caller removes it.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: status %d", rawURL, resp.StatusCode)
	}

	ext := extensionFor(rawURL, resp.Header.Get("Content-Type"))
	if ext == "" {
		return "", fmt.Errorf("%w: cannot tell document type of %s", ErrUnsupported, rawURL)
	}

	f, err := os.CreateTemp("", "agentgate-*"+ext)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, d.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > d.maxBytes {
		err = fmt.Errorf("document larger than %d bytes", d.maxBytes)
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	return f.Name(), nil
}

func extensionFor(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".pdf", ".txt", ".md":
			return ext
		}
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	case "text/markdown":
		return ".md"
	}
	return ""
}
