// Package models defines the normalized GitHub data types shared across
// the poller, the notification pipeline, and the persisted state snapshot.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Author identifies who created an issue.
type Author struct {
	Login string `json:"login"`
	Type  string `json:"type"` // "User" or "Bot"
}

// Bot reports whether the author is a bot account.
func (a Author) Bot() bool {
	return a.Type == "Bot"
}

// Label represents a GitHub issue label. The API historically returned
// labels as either bare strings or {name, color} objects; both shapes
// normalize into this struct at the unmarshal boundary so nothing
// downstream ever branches on shape.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// UnmarshalJSON accepts both a bare string label and a label object.
func (l *Label) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("parse string label: %w", err)
		}
		*l = Label{Name: name}
		return nil
	}

	type labelObject Label // avoid recursing into this method
	var obj labelObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("parse label object: %w", err)
	}
	*l = Label(obj)
	return nil
}

// Issue is an immutable record of a GitHub issue as returned by the
// tracker. ID is globally unique within a repository's issue+PR
// numbering space.
type Issue struct {
	CreatedAt     time.Time `json:"created_at"`
	Title         string    `json:"title"`
	Body          string    `json:"body,omitempty"`
	HTMLURL       string    `json:"html_url"`
	RepositoryURL string    `json:"repository_url"`
	Labels        []Label   `json:"labels,omitempty"`
	Author        Author    `json:"user"`
	ID            int64     `json:"id"`
	Number        int       `json:"number"`
	IsPullRequest bool      `json:"is_pull_request,omitempty"`
}

// Notifiable reports whether the issue qualifies for a desktop alert:
// pull requests and bot-authored issues never notify.
func (i Issue) Notifiable() bool {
	return !i.IsPullRequest && !i.Author.Bot()
}

// LabelNames returns the comma-joined label names, or "" when unlabeled.
func (i Issue) LabelNames() string {
	if len(i.Labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return strings.Join(names, ", ")
}

// RepoSlug extracts "owner/repo" from an API repository URL such as
// https://api.github.com/repos/owner/repo. Unrecognized URLs come back
// unchanged; the slug is display-only.
func RepoSlug(repositoryURL string) string {
	return strings.TrimPrefix(repositoryURL, "https://api.github.com/repos/")
}

// RepoSlug returns the "owner/repo" slug of the repository this issue
// belongs to.
func (i Issue) RepoSlug() string {
	return RepoSlug(i.RepositoryURL)
}

// OwnerInfo holds repository-owner metadata used to decorate
// notifications. It is cached in memory only, never persisted.
type OwnerInfo struct {
	Login     string
	AvatarURL string
	HTMLURL   string
}

// FetchResult is the normalized outcome of one conditional issue-list
// request. NotModified means the remote content has not changed since
// the validator was issued; Issues and ETag are only meaningful on a
// fresh response.
type FetchResult struct {
	ETag        string
	Issues      []Issue
	NotModified bool
}
