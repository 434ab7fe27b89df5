// Package changeset diffs two successive CheckpointFileLists into
// renames, adds, updates, and deletes, per §4.8, then adjusts each
// group to account for revisions that were never checkpointed in
// their own right.
package changeset

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

// DuplicateRevisionLog is the exact log message MKSSI writes on a
// branch's auto-created root revision; §4.8's adjust_updates skips
// generating an update edge that lands on such a revision.
const DuplicateRevisionLog = "Duplicate revision\n"

// FileState is one file's presence in a single checkpoint's file
// list: its stable identity (independent of path, so a case-only
// rename doesn't look like an add+delete), its canonical path as of
// this checkpoint, and the revision checked in.
type FileState struct {
	ID            string
	CanonicalPath string
	Rev           revnum.Number
	Date          time.Time
}

// VersionInfo is what the changeset builder needs to know about one
// revision of one file, beyond what the checkpoint's file list
// itself records: its date, whether it was already checkpointed by
// an earlier project revision, whether it carries a Version/Patch at
// all, and its raw log message (for the duplicate-revision skip
// rule).
type VersionInfo struct {
	Date         time.Time
	Checkpointed bool
	HasVersion   bool
	HasPatch     bool
	Log          string
}

// HistoryProvider answers questions about a file's revision lineage
// that a single checkpoint's file list cannot: the adjust_adds and
// adjust_deletes passes climb a file's ancestor/descendant chain
// looking for non-checkpointed revisions, and adjust_updates walks
// every revision between two checkpointed ones.
type HistoryProvider interface {
	// Predecessor returns the revision one step closer to the root
	// than rev, in rev's own trunk/branch lineage.
	Predecessor(id string, rev revnum.Number) (revnum.Number, bool)
	// Successor returns the revision one step further from the root
	// than rev: the next revision on rev's own trunk/branch, or, if
	// rev is itself a branch point with no further trunk revision,
	// the root of one of its branches.
	Successor(id string, rev revnum.Number) (revnum.Number, bool)
	// Info returns metadata for one revision of one file.
	Info(id string, rev revnum.Number) (VersionInfo, bool)
}

// DirectoryRename records a case-only change to a directory
// component shared by one or more files, collapsed to a single entry
// regardless of how many files it affects.
type DirectoryRename struct {
	OldDir string
	NewDir string
}

// FileRename records a case-only change to a file's basename, its
// directory unchanged.
type FileRename struct {
	OldPath string
	NewPath string
}

// Add is a file present in the new checkpoint and absent from the
// old one.
type Add struct {
	ID            string
	CanonicalPath string
	Rev           revnum.Number
	Date          time.Time
}

// Update is a file present in both checkpoints at differing
// revisions (in either direction).
type Update struct {
	ID            string
	CanonicalPath string
	OldRev        revnum.Number
	NewRev        revnum.Number
	OldDate       time.Time
	NewDate       time.Time
}

// Delete is a file present in the old checkpoint and absent from the
// new one.
type Delete struct {
	ID            string
	CanonicalPath string
	Rev           revnum.Number
	Date          time.Time
}

// Changeset is the sorted, adjusted result of diffing two successive
// checkpoints.
type Changeset struct {
	DirectoryRenames []DirectoryRename
	FileRenames      []FileRename
	Adds             []Add
	Updates          []Update
	Deletes          []Delete
}

// Build diffs oldList (dated oldDate) against newList (dated
// newDate), producing the fully adjusted, sorted Changeset described
// by §4.8. history supplies the ancestor/descendant lookups the
// adjust passes need; sink receives a warning for every change
// dropped because its target revision carries neither a Version nor
// a Patch.
func Build(oldList, newList []FileState, oldDate, newDate time.Time, history HistoryProvider, sink *diag.Sink) Changeset {
	oldByID := make(map[string]FileState, len(oldList))
	for _, fs := range oldList {
		oldByID[fs.ID] = fs
	}
	newByID := make(map[string]FileState, len(newList))
	for _, fs := range newList {
		newByID[fs.ID] = fs
	}

	var cs Changeset
	dirRenameSeen := make(map[[2]string]bool)

	for id, newFS := range newByID {
		oldFS, present := oldByID[id]
		if !present {
			cs.Adds = append(cs.Adds, Add{
				ID: id, CanonicalPath: newFS.CanonicalPath,
				Rev: newFS.Rev, Date: newFS.Date,
			})
			continue
		}
		if oldFS.CanonicalPath != newFS.CanonicalPath {
			if dr, ok := detectDirectoryRename(oldFS.CanonicalPath, newFS.CanonicalPath); ok {
				key := [2]string{dr.OldDir, dr.NewDir}
				if !dirRenameSeen[key] {
					dirRenameSeen[key] = true
					cs.DirectoryRenames = append(cs.DirectoryRenames, dr)
				}
			} else if fr, ok := detectFileRename(oldFS.CanonicalPath, newFS.CanonicalPath); ok {
				cs.FileRenames = append(cs.FileRenames, fr)
			}
		}
		if !revnum.Equal(oldFS.Rev, newFS.Rev) {
			cs.Updates = append(cs.Updates, Update{
				ID: id, CanonicalPath: newFS.CanonicalPath,
				OldRev: oldFS.Rev, NewRev: newFS.Rev,
				OldDate: oldFS.Date, NewDate: newFS.Date,
			})
		}
	}
	for id, oldFS := range oldByID {
		if _, present := newByID[id]; !present {
			cs.Deletes = append(cs.Deletes, Delete{
				ID: id, CanonicalPath: oldFS.CanonicalPath,
				Rev: oldFS.Rev, Date: oldFS.Date,
			})
		}
	}

	cs.Adds, cs.Updates = adjustAdds(cs.Adds, cs.Updates, oldDate, history)
	cs.Deletes, cs.Updates = adjustDeletes(cs.Deletes, cs.Updates, newDate, history)
	cs.Updates = adjustUpdates(cs.Updates, history)
	cs = dropUnrecoverable(cs, history, sink)

	sortChangeset(&cs)
	return cs
}

// detectDirectoryRename reports whether oldPath and newPath differ
// only by the case of the last component of their shared directory
// portion, the basename and every other directory component unchanged.
func detectDirectoryRename(oldPath, newPath string) (DirectoryRename, bool) {
	oldDir, oldBase := path.Split(oldPath)
	newDir, newBase := path.Split(newPath)
	if oldBase != newBase {
		return DirectoryRename{}, false
	}
	oldParent, oldLast := splitLastDirComponent(oldDir)
	newParent, newLast := splitLastDirComponent(newDir)
	if oldParent != newParent {
		return DirectoryRename{}, false
	}
	if oldLast == newLast || !strings.EqualFold(oldLast, newLast) {
		return DirectoryRename{}, false
	}
	return DirectoryRename{OldDir: strings.TrimSuffix(oldDir, "/"), NewDir: strings.TrimSuffix(newDir, "/")}, true
}

// splitLastDirComponent splits a trailing-slash directory path (e.g.
// "a/b/c/") into its parent ("a/b/") and its last component ("c").
func splitLastDirComponent(dir string) (parent, last string) {
	trimmed := strings.TrimSuffix(dir, "/")
	if trimmed == "" {
		return "", ""
	}
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return "", trimmed
	}
	return trimmed[:idx+1], trimmed[idx+1:]
}

// detectFileRename reports whether oldPath and newPath differ only
// by the case of their basename, the directory portion unchanged.
func detectFileRename(oldPath, newPath string) (FileRename, bool) {
	oldDir, oldBase := path.Split(oldPath)
	newDir, newBase := path.Split(newPath)
	if oldDir != newDir {
		return FileRename{}, false
	}
	if oldBase == newBase || !strings.EqualFold(oldBase, newBase) {
		return FileRename{}, false
	}
	return FileRename{OldPath: oldPath, NewPath: newPath}, true
}

// adjustAdds climbs each add's predecessor chain for non-checkpointed
// revisions dated after oldDate; when found, the earliest qualifying
// predecessor becomes the add's true revision and the climbed steps
// become intervening updates.
func adjustAdds(adds []Add, updates []Update, oldDate time.Time, history HistoryProvider) ([]Add, []Update) {
	out := make([]Add, 0, len(adds))
	for _, a := range adds {
		chain := climbBackward(history, a.ID, a.Rev, oldDate)
		if len(chain) == 0 {
			out = append(out, a)
			continue
		}
		earliest := chain[len(chain)-1]
		earliestInfo, _ := history.Info(a.ID, earliest)
		seq := append(append([]revnum.Number{}, reverseNums(chain)...), a.Rev)
		for i := 0; i+1 < len(seq); i++ {
			fromInfo, _ := history.Info(a.ID, seq[i])
			toInfo, _ := history.Info(a.ID, seq[i+1])
			updates = append(updates, Update{
				ID: a.ID, CanonicalPath: a.CanonicalPath,
				OldRev: seq[i], NewRev: seq[i+1],
				OldDate: fromInfo.Date, NewDate: toInfo.Date,
			})
		}
		out = append(out, Add{
			ID: a.ID, CanonicalPath: a.CanonicalPath,
			Rev: earliest, Date: earliestInfo.Date,
		})
	}
	return out, updates
}

// adjustDeletes is the symmetric counterpart of adjustAdds: it climbs
// forward from a delete's pre-image revision for non-checkpointed
// successors dated before newDate.
func adjustDeletes(deletes []Delete, updates []Update, newDate time.Time, history HistoryProvider) ([]Delete, []Update) {
	out := make([]Delete, 0, len(deletes))
	for _, d := range deletes {
		chain := climbForward(history, d.ID, d.Rev, newDate)
		if len(chain) == 0 {
			out = append(out, d)
			continue
		}
		latest := chain[len(chain)-1]
		latestInfo, _ := history.Info(d.ID, latest)
		seq := append([]revnum.Number{d.Rev}, chain...)
		for i := 0; i+1 < len(seq); i++ {
			fromInfo, _ := history.Info(d.ID, seq[i])
			toInfo, _ := history.Info(d.ID, seq[i+1])
			updates = append(updates, Update{
				ID: d.ID, CanonicalPath: d.CanonicalPath,
				OldRev: seq[i], NewRev: seq[i+1],
				OldDate: fromInfo.Date, NewDate: toInfo.Date,
			})
		}
		out = append(out, Delete{
			ID: d.ID, CanonicalPath: d.CanonicalPath,
			Rev: latest, Date: latestInfo.Date,
		})
	}
	return out, updates
}

// climbBackward walks history.Predecessor from rev, collecting every
// non-checkpointed ancestor dated after cutoff, stopping at the first
// checkpointed ancestor, missing version, or date at or before
// cutoff. The returned chain is ordered nearest-to-rev first.
func climbBackward(history HistoryProvider, id string, rev revnum.Number, cutoff time.Time) []revnum.Number {
	var chain []revnum.Number
	cur := rev
	for {
		pred, ok := history.Predecessor(id, cur)
		if !ok {
			break
		}
		info, ok := history.Info(id, pred)
		if !ok || info.Checkpointed || !info.Date.After(cutoff) {
			break
		}
		chain = append(chain, pred)
		cur = pred
	}
	return chain
}

// climbForward is the symmetric counterpart of climbBackward, walking
// history.Successor and stopping at the cutoff date from above.
func climbForward(history HistoryProvider, id string, rev revnum.Number, cutoff time.Time) []revnum.Number {
	var chain []revnum.Number
	cur := rev
	for {
		succ, ok := history.Successor(id, cur)
		if !ok {
			break
		}
		info, ok := history.Info(id, succ)
		if !ok || info.Checkpointed || !info.Date.Before(cutoff) {
			break
		}
		chain = append(chain, succ)
		cur = succ
	}
	return chain
}

func reverseNums(ns []revnum.Number) []revnum.Number {
	out := make([]revnum.Number, len(ns))
	for i, n := range ns {
		out[len(ns)-1-i] = n
	}
	return out
}

// adjustUpdates expands every forward update (new > old) to cover
// each intermediate revision, via history.Successor, skipping any
// step whose target revision is an auto-created duplicate-revision
// branch root. Reversions (new < old) are left atomic.
func adjustUpdates(updates []Update, history HistoryProvider) []Update {
	out := make([]Update, 0, len(updates))
	for _, u := range updates {
		if revnum.Compare(u.NewRev, u.OldRev) <= 0 {
			out = append(out, u)
			continue
		}
		seq := []revnum.Number{u.OldRev}
		cur := u.OldRev
		for !revnum.Equal(cur, u.NewRev) {
			next, ok := history.Successor(u.ID, cur)
			if !ok {
				break
			}
			seq = append(seq, next)
			cur = next
		}
		if len(seq) < 2 || !revnum.Equal(seq[len(seq)-1], u.NewRev) {
			out = append(out, u)
			continue
		}
		prevKept := seq[0]
		prevInfo, _ := history.Info(u.ID, prevKept)
		for i := 1; i < len(seq); i++ {
			info, _ := history.Info(u.ID, seq[i])
			if info.Log == DuplicateRevisionLog {
				continue
			}
			out = append(out, Update{
				ID: u.ID, CanonicalPath: u.CanonicalPath,
				OldRev: prevKept, NewRev: seq[i],
				OldDate: prevInfo.Date, NewDate: info.Date,
			})
			prevKept = seq[i]
			prevInfo = info
		}
	}
	return out
}

// dropUnrecoverable removes any change whose target revision lacks
// both a Version and a Patch, reporting a recoverable warning for
// each one dropped.
func dropUnrecoverable(cs Changeset, history HistoryProvider, sink *diag.Sink) Changeset {
	recoverable := func(id string, rev revnum.Number) bool {
		info, ok := history.Info(id, rev)
		if !ok {
			return false
		}
		return info.HasVersion || info.HasPatch
	}

	adds := cs.Adds[:0:0]
	for _, a := range cs.Adds {
		if recoverable(a.ID, a.Rev) {
			adds = append(adds, a)
			continue
		}
		sink.Warn(diag.New(diag.CorruptRevision, a.CanonicalPath, a.Rev.String(),
			"dropping add: target revision has neither version nor patch"))
	}
	updates := cs.Updates[:0:0]
	for _, u := range cs.Updates {
		if recoverable(u.ID, u.NewRev) {
			updates = append(updates, u)
			continue
		}
		sink.Warn(diag.New(diag.CorruptRevision, u.CanonicalPath, u.NewRev.String(),
			"dropping update: target revision has neither version nor patch"))
	}
	deletes := cs.Deletes[:0:0]
	for _, d := range cs.Deletes {
		if recoverable(d.ID, d.Rev) {
			deletes = append(deletes, d)
			continue
		}
		sink.Warn(diag.New(diag.CorruptRevision, d.CanonicalPath, d.Rev.String(),
			"dropping delete: target revision has neither version nor patch"))
	}
	cs.Adds, cs.Updates, cs.Deletes = adds, updates, deletes
	return cs
}

func sortChangeset(cs *Changeset) {
	sort.Slice(cs.DirectoryRenames, func(i, j int) bool {
		return strings.ToLower(cs.DirectoryRenames[i].NewDir) < strings.ToLower(cs.DirectoryRenames[j].NewDir)
	})
	sort.Slice(cs.FileRenames, func(i, j int) bool {
		return strings.ToLower(cs.FileRenames[i].NewPath) < strings.ToLower(cs.FileRenames[j].NewPath)
	})
	sort.SliceStable(cs.Adds, func(i, j int) bool {
		if !cs.Adds[i].Date.Equal(cs.Adds[j].Date) {
			return cs.Adds[i].Date.Before(cs.Adds[j].Date)
		}
		return strings.ToLower(cs.Adds[i].CanonicalPath) < strings.ToLower(cs.Adds[j].CanonicalPath)
	})
	sort.SliceStable(cs.Updates, func(i, j int) bool {
		if !cs.Updates[i].NewDate.Equal(cs.Updates[j].NewDate) {
			return cs.Updates[i].NewDate.Before(cs.Updates[j].NewDate)
		}
		if cs.Updates[i].CanonicalPath != cs.Updates[j].CanonicalPath {
			return strings.ToLower(cs.Updates[i].CanonicalPath) < strings.ToLower(cs.Updates[j].CanonicalPath)
		}
		return revnum.Compare(cs.Updates[i].NewRev, cs.Updates[j].NewRev) < 0
	})
	sort.Slice(cs.Deletes, func(i, j int) bool {
		return strings.ToLower(cs.Deletes[i].CanonicalPath) < strings.ToLower(cs.Deletes[j].CanonicalPath)
	})
}
