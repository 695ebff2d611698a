package poll

import (
	"sort"

	"github.com/issueping/issueping/internal/models"
)

// Merge decides whether the fetched page contains a notifiable new issue
// and recomputes the ordered history. It returns the issue to notify (or
// nil) and the updated history; when there is nothing new the input
// history is returned unchanged.
//
// An issue id that already appears anywhere in history is never promoted
// again: this is the dedup invariant that makes overlapping ticks and
// repeated pages safe.
func Merge(page []models.Issue, history []models.Issue) (*models.Issue, []models.Issue) {
	var latest *models.Issue
	for i := range page {
		if page[i].Notifiable() {
			latest = &page[i]
			break
		}
	}
	if latest == nil {
		return nil, history
	}

	for i := range history {
		if history[i].ID == latest.ID {
			return nil, history
		}
	}

	merged := make([]models.Issue, 0, len(history)+1)
	merged = append(merged, history...)
	merged = append(merged, *latest)

	// Two-key order: entries from the currently-active repository first,
	// then creation time descending within each group. The stable sort
	// preserves input order on timestamp ties.
	activeRepo := latest.RepositoryURL
	sort.SliceStable(merged, func(i, j int) bool {
		gi, gj := repoGroup(merged[i], activeRepo), repoGroup(merged[j], activeRepo)
		if gi != gj {
			return gi < gj
		}
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	return latest, merged
}

func repoGroup(issue models.Issue, activeRepo string) int {
	if issue.RepositoryURL == activeRepo {
		return 0
	}
	return 1
}
