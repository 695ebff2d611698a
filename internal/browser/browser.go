// Package browser opens tracker URLs in the default browser after
// validating them, so a malformed history entry can never execute
// anything unexpected.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// Hosts the app is allowed to open. Everything this program links to
// lives on GitHub.
var allowedHosts = map[string]bool{
	"github.com":     true,
	"www.github.com": true,
}

// Open launches the default browser at rawURL. Only https GitHub URLs
// are accepted. Failure to open is reported but never fatal.
func Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("invalid url scheme: %s (only https allowed)", u.Scheme)
	}
	if !allowedHosts[u.Host] {
		return fmt.Errorf("invalid host: %s", u.Host)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open url: %w", err)
	}

	// Reap in the background to avoid zombie processes.
	go func() {
		_ = cmd.Wait()
	}()

	return nil
}
