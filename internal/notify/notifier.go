package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/issueping/issueping/internal/models"
)

// Notifier dispatches desktop alerts for new issues via the platform
// notification service.
type Notifier struct {
	icons *IconCache
}

// New creates a Notifier backed by the given icon cache.
func New(icons *IconCache) *Notifier {
	return &Notifier{icons: icons}
}

// Notify raises a desktop alert for the issue. The body leads with the
// "owner/repo" slug (no platform beeep targets has a native subtitle
// field), then the author login, then the comma-joined label names.
// Icon resolution failures are swallowed: an alert without an icon beats
// no alert.
func (n *Notifier) Notify(issue models.Issue, owner *models.OwnerInfo) error {
	icon := ""
	if owner != nil && owner.AvatarURL != "" {
		path, err := n.icons.Resolve(owner.AvatarURL)
		if err != nil {
			slog.Warn("[NOTIFY] Icon unavailable", "url", owner.AvatarURL, "error", err)
		} else {
			icon = path
		}
	}

	slog.Info("[NOTIFY] Dispatching", "id", issue.ID, "title", issue.Title)
	return beeep.Notify(issue.Title, body(issue), icon)
}

func body(issue models.Issue) string {
	b := issue.RepoSlug() + "\n" + issue.Author.Login
	if labels := issue.LabelNames(); labels != "" {
		b += " | " + labels
	}
	return b
}
