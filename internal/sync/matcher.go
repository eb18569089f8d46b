package sync

import (
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/njoerd114/collagesync/internal/model"
)

// MatchPolicy selects how ambiguous token matches are resolved.
type MatchPolicy int

const (
	// PolicyInteractive asks the Prompter to pick among candidates.
	PolicyInteractive MatchPolicy = iota
	// PolicyKeepAll keeps every candidate. Used by batch runs.
	PolicyKeepAll
	// PolicySkip keeps none, leaving the group unresolved for this run.
	PolicySkip
)

// Matcher resolves a remote group's file token against the library
// snapshot. A token matches an item when it equals one whole segment of
// the item's folder path, not a substring of a segment. Segment matching
// is deliberately permissive — library layouts vary — at the cost of
// false positives when a torrent name collides with an unrelated folder
// segment.
type Matcher struct {
	policy   MatchPolicy
	prompter Prompter
	log      *slog.Logger
}

// NewMatcher creates a Matcher. prompter is only consulted under
// [PolicyInteractive].
func NewMatcher(policy MatchPolicy, prompter Prompter, logger *slog.Logger) *Matcher {
	return &Matcher{policy: policy, prompter: prompter, log: logger}
}

// Resolve returns the library item IDs matching the token: none, one, or
// — after ambiguity resolution — several.
func (m *Matcher) Resolve(token string, snapshot []model.LibraryItem) []string {
	// Tokens this short would match half the library.
	if len(token) <= 1 {
		m.log.Warn("file token is empty or too short to match", "token", token)
		return nil
	}

	type candidate struct {
		id   string
		path string
	}
	var candidates []candidate
	for _, item := range snapshot {
		if pathHasSegment(item.Path, token) {
			candidates = append(candidates, candidate{id: item.ID, path: item.Path})
		}
	}

	switch len(candidates) {
	case 0:
		m.log.Debug("no library match for token", "token", token)
		return nil
	case 1:
		return []string{candidates[0].id}
	}

	// Stable order so interactive indices and batch results are deterministic.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].path < candidates[j].path })

	switch m.policy {
	case PolicyKeepAll:
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.id
		}
		return ids
	case PolicySkip:
		m.log.Info("ambiguous token skipped", "token", token, "candidates", len(candidates))
		return nil
	}

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.path
	}
	var ids []string
	for _, idx := range m.prompter.SelectMatches(token, paths) {
		if idx >= 0 && idx < len(candidates) {
			ids = append(ids, candidates[idx].id)
		}
	}
	return ids
}

// pathHasSegment reports whether token equals one whole segment of p.
func pathHasSegment(p, token string) bool {
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == token {
			return true
		}
	}
	return false
}
