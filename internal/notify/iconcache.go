// Package notify turns a newly discovered issue into a desktop alert,
// decorating it with the repository owner's avatar when available.
package notify

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

const (
	downloadTimeout = 30 * time.Second
	iconPerm        = 0o600
	iconDirPerm     = 0o700
)

// IconCache resolves remote avatar URLs to local files, downloading each
// distinct filename at most once. The filename is the URL's final path
// segment, not a content hash: avatar URLs are per-owner and stable, so
// same-segment collisions are acceptable. Entries are kept forever;
// icons are small and few.
type IconCache struct {
	dir    string
	client *http.Client
}

// NewIconCache creates a cache rooted at dir.
func NewIconCache(dir string) *IconCache {
	return &IconCache{
		dir:    dir,
		client: &http.Client{Timeout: downloadTimeout},
	}
}

// Resolve returns the local path for iconURL, downloading it on first
// use. Any failure returns an error and leaves no partial file behind;
// callers notify without an icon rather than fail the notification.
func (c *IconCache) Resolve(iconURL string) (string, error) {
	u, err := url.Parse(iconURL)
	if err != nil {
		return "", fmt.Errorf("parse icon URL: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("icon URL %q has no usable filename", iconURL)
	}

	dest := filepath.Join(c.dir, name)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	if err := c.download(iconURL, dest); err != nil {
		return "", err
	}
	slog.Debug("[ICON] Cached", "url", iconURL, "path", dest)
	return dest, nil
}

func (c *IconCache) download(iconURL, dest string) error {
	if err := os.MkdirAll(c.dir, iconDirPerm); err != nil {
		return fmt.Errorf("create icon dir: %w", err)
	}

	resp, err := c.client.Get(iconURL)
	if err != nil {
		return fmt.Errorf("download icon: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body close error is not actionable
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download icon: %s", resp.Status)
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, iconPerm)
	if err != nil {
		return fmt.Errorf("create icon file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		cerr := f.Close()
		if rmErr := os.Remove(dest); rmErr != nil {
			slog.Warn("[ICON] Failed to remove partial download", "path", dest, "error", rmErr)
		}
		return errors.Join(fmt.Errorf("write icon: %w", err), cerr)
	}
	if err := f.Close(); err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			slog.Warn("[ICON] Failed to remove partial download", "path", dest, "error", rmErr)
		}
		return fmt.Errorf("close icon file: %w", err)
	}
	return nil
}
