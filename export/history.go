package export

import (
	"strings"

	"github.com/danielrlewis/mkssi-fast-export/authormap"
	"github.com/danielrlewis/mkssi-fast-export/changeset"
	"github.com/danielrlewis/mkssi-fast-export/commit"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

// idFor derives a file's changeset/commit identity: its logical path,
// case-folded, so that a case-only rename in the project manifest
// never looks like an add paired with a delete.
func idFor(f *rcs.File) string {
	return strings.ToLower(f.LogicalName)
}

// repoHistory answers changeset.HistoryProvider and commit.MetaProvider
// queries directly against the parsed archive: predecessor/successor
// apply revnum algebra checked against the file's Versions map
// (Successor also steps onto a Version's branch roots), and
// per-revision metadata comes straight off the matching
// rcs.Version/Patch.
type repoHistory struct {
	byID    map[string]*rcs.File
	authors *authormap.Map
}

func newRepoHistory(repo *rcs.Repository, authors *authormap.Map) *repoHistory {
	if authors == nil {
		authors = authormap.Empty()
	}
	byID := make(map[string]*rcs.File, len(repo.Files))
	for _, f := range repo.Files {
		byID[idFor(f)] = f
	}
	return &repoHistory{byID: byID, authors: authors}
}

func (h *repoHistory) Predecessor(id string, rev revnum.Number) (revnum.Number, bool) {
	f, ok := h.byID[id]
	if !ok {
		return nil, false
	}
	prev, ok := revnum.Decrement(rev)
	if !ok {
		return nil, false
	}
	if _, ok := f.Versions[prev.String()]; !ok {
		return nil, false
	}
	return prev, true
}

// Successor mirrors Predecessor's ability to cross a branch boundary:
// Decrement pops a branch root back onto its parent branch point, so
// Successor must be able to step the other way, from a branch point
// onto the root of one of its branches, when incrementing the trunk
// revision itself doesn't land on a real version. rcs.Version.Branches
// lists child-branch roots in file order, so the first one that
// exists is the one taken.
func (h *repoHistory) Successor(id string, rev revnum.Number) (revnum.Number, bool) {
	f, ok := h.byID[id]
	if !ok {
		return nil, false
	}
	succ := revnum.Increment(rev)
	if _, ok := f.Versions[succ.String()]; ok {
		return succ, true
	}
	ver, ok := f.Versions[rev.String()]
	if !ok {
		return nil, false
	}
	for _, branchRoot := range ver.Branches {
		if _, ok := f.Versions[branchRoot.String()]; ok {
			return branchRoot, true
		}
	}
	return nil, false
}

func (h *repoHistory) Info(id string, rev revnum.Number) (changeset.VersionInfo, bool) {
	f, ok := h.byID[id]
	if !ok {
		return changeset.VersionInfo{}, false
	}
	ver, ok := f.Versions[rev.String()]
	if !ok {
		return changeset.VersionInfo{}, false
	}
	p := f.Patches[rev.String()]
	return changeset.VersionInfo{
		Date:         ver.Date,
		Checkpointed: ver.Checkpointed,
		HasVersion:   true,
		HasPatch:     p != nil && p.HasText && !p.Missing,
		Log:          patchLog(p),
	}, true
}

func (h *repoHistory) Meta(id string, rev revnum.Number) (commit.VersionMeta, bool) {
	f, ok := h.byID[id]
	if !ok {
		return commit.VersionMeta{}, false
	}
	ver, ok := f.Versions[rev.String()]
	if !ok {
		return commit.VersionMeta{}, false
	}
	p := f.Patches[rev.String()]
	identity, resolved := h.authors.Resolve(ver.Author)
	if !resolved {
		identity = commit.Identity{Name: ver.Author, Email: ver.Author}
	}
	return commit.VersionMeta{
		AuthorUsername: ver.Author,
		Author:         identity,
		Log:            patchLog(p),
		PatchMissing:   p == nil || p.Missing || !p.HasText,
		Label:          symbolLabel(f, rev),
	}, true
}

func patchLog(p *rcs.Patch) string {
	if p == nil {
		return ""
	}
	return p.Log
}

func symbolLabel(f *rcs.File, rev revnum.Number) string {
	for _, s := range f.Symbols {
		if revnum.Equal(s.Rev, rev) {
			return s.Name
		}
	}
	return ""
}

// allAuthors collects every distinct revision author username across
// the whole archive, lowercased, used by --authorlist.
func allAuthors(repo *rcs.Repository) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range repo.Files {
		for _, ver := range f.Versions {
			lu := strings.ToLower(ver.Author)
			if lu == "" || seen[lu] {
				continue
			}
			seen[lu] = true
			out = append(out, lu)
		}
	}
	return out
}
