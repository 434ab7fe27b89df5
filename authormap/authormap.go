// Package authormap loads the --authormap side file that resolves
// MKSSI usernames to git identities, per §6.
package authormap

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/danielrlewis/mkssi-fast-export/commit"
)

// lineRE matches "username = Proper Name <email>[ TZ]"; the trailing
// TZ group is captured but intentionally ignored.
var lineRE = regexp.MustCompile(`^([^=]+?)\s*=\s*(.+?)\s*<([^>]*)>(?:\s+\S+)?\s*$`)

// Map resolves a lowercased MKSSI username to a git identity.
type Map struct {
	entries map[string]commit.Identity
}

// Empty returns a Map with no entries; Resolve always misses.
func Empty() *Map {
	return &Map{entries: make(map[string]commit.Identity)}
}

// Parse reads an --authormap file. A line beginning with '#', or
// carrying no '=', is skipped. A username repeated with an identical
// mapping is ignored; repeated with a different mapping is fatal.
func Parse(r io.Reader) (*Map, error) {
	m := Empty()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if !strings.Contains(trimmed, "=") {
			continue
		}
		match := lineRE.FindStringSubmatch(trimmed)
		if match == nil {
			return nil, fmt.Errorf("authormap: line %d: malformed entry %q", lineNo, line)
		}
		username := strings.ToLower(strings.TrimSpace(match[1]))
		identity := commit.Identity{Name: strings.TrimSpace(match[2]), Email: match[3]}
		if existing, ok := m.entries[username]; ok {
			if existing != identity {
				return nil, fmt.Errorf("authormap: line %d: conflicting mapping for %q", lineNo, username)
			}
			continue
		}
		m.entries[username] = identity
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("authormap: %w", err)
	}
	return m, nil
}

// Resolve looks up username (case-insensitively), returning its
// mapped identity or false if the map has no entry for it.
func (m *Map) Resolve(username string) (commit.Identity, bool) {
	id, ok := m.entries[strings.ToLower(username)]
	return id, ok
}

// Unresolved filters usernames (case-folded, deduplicated) down to
// those this map cannot resolve, sorted by the caller if desired;
// used to implement --authorlist.
func (m *Map) Unresolved(usernames []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range usernames {
		lu := strings.ToLower(u)
		if seen[lu] {
			continue
		}
		seen[lu] = true
		if _, ok := m.entries[lu]; !ok {
			out = append(out, lu)
		}
	}
	return out
}
