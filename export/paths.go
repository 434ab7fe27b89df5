package export

import (
	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/project"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
)

// pathHistory tracks, per file ID, every distinct canonical path a
// project manifest checkpoint has referenced it under. The blob
// pre-pass consults it to decide whether a file's path-bearing
// keywords ($Header$/$Source$/$Id$/$RCSfile$) are safe to expand once
// against a single path and cache, or must be deferred to per-
// checkpoint JIT re-expansion because the path itself isn't constant.
type pathHistory struct {
	paths map[string]map[string]bool
}

func newPathHistory() *pathHistory {
	return &pathHistory{paths: make(map[string]map[string]bool)}
}

func (p *pathHistory) record(id, canonicalPath string) {
	set, ok := p.paths[id]
	if !ok {
		set = make(map[string]bool)
		p.paths[id] = set
	}
	set[canonicalPath] = true
}

// varies reports whether id was ever referenced under more than one
// canonical path.
func (p *pathHistory) varies(id string) bool {
	return len(p.paths[id]) > 1
}

// constant returns id's single observed canonical path, if every
// checkpoint that referenced it agreed on one.
func (p *pathHistory) constant(id string) (string, bool) {
	set, ok := p.paths[id]
	if !ok || len(set) != 1 {
		return "", false
	}
	for path := range set {
		return path, true
	}
	return "", false
}

// scanCanonicalPaths pre-walks project.pj's own trunk and every
// variant it anchors (but not a variant's own nested sub-variants,
// the same single-level scope runBranch itself respects) purely to
// learn, per file ID, every distinct canonical path a checkpoint ever
// referenced it under. It runs before the up-front blob pass, which
// has no other way to know whether a revision's canonical path is
// about to vary across the checkpoints the real walk will reach.
func scanCanonicalPaths(repo *rcs.Repository, opts Options, pjFile *rcs.File, sink *diag.Sink) *pathHistory {
	ph := newPathHistory()

	revisions, err := loadProjectRevisions(pjFile, sink, opts.TrunkLimit)
	if err != nil || len(revisions) == 0 {
		return ph
	}
	for _, rev := range revisions {
		scanFileList(repo, rev.FileList, ph)
	}

	bt := project.NewBranchTable()
	for _, r := range revisions {
		bt.Add(r.Number, r.Variants, func(string, error) {})
	}
	for _, rec := range bt.Records() {
		manifestName := rec.VariantID + ".pj"
		vf, err := loadManifest(opts.RCSDir, repo, sink, manifestName)
		if err != nil {
			continue
		}
		vrevisions, err := loadProjectRevisions(vf, sink, nil)
		if err != nil {
			continue
		}
		for _, rev := range vrevisions {
			scanFileList(repo, rev.FileList, ph)
		}
	}
	return ph
}

func scanFileList(repo *rcs.Repository, fl *project.FileList, ph *pathHistory) {
	for _, e := range fl.Entries {
		f, ok := repo.LookupCaseInsensitive(e.CanonicalPath)
		if !ok {
			continue
		}
		ph.record(idFor(f), e.CanonicalPath)
	}
}
