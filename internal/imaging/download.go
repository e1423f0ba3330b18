package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"
)

// Download limits.
const (
	DownloadTimeout  = 10 * time.Second
	MaxDownloadBytes = 16 << 20
)

// Download fetches rawURL into a temporary file and returns its path. The
// file keeps the URL's extension (".jpg" when it has none); the caller owns
// the file and should remove it.
func Download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid image URL %q", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %d", rawURL, resp.StatusCode)
	}

	suffix := path.Ext(u.Path)
	if suffix == "" {
		suffix = ".jpg"
	}
	tmp, err := os.CreateTemp("", "galaxy-download-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > MaxDownloadBytes {
		err = fmt.Errorf("image larger than %d bytes", MaxDownloadBytes)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download %s: %w", rawURL, err)
	}

	return tmp.Name(), nil
}
