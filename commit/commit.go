// Package commit groups one checkpoint transition's adjusted
// changeset into branch-scoped commits, per §4.9: renames, then
// adds, then updates, then deletes, each group internally ordered
// per the changeset's own sort.
package commit

import (
	"fmt"
	"strings"
	"time"

	"github.com/danielrlewis/mkssi-fast-export/changeset"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

// Identity is a committer or author identity as it appears on a
// fast-import commit/tag command.
type Identity struct {
	Name  string
	Email string
}

// UnknownIdentity is used for revert commits and delete commits,
// which MKSSI's log has no single human author for.
var UnknownIdentity = Identity{Name: "Unknown", Email: "unknown"}

// ToolIdentity is the committer recorded on rename commits, which
// this tool synthesizes rather than replays from MKSSI history.
var ToolIdentity = Identity{Name: "mkssi-fast-export", Email: "mkssi-fast-export@localhost"}

// lostContentsNotice is appended to a commit message whenever one of
// its files carries unrecoverable (missing-patch) content.
const lostContentsNotice = "The contents of this revision were lost: they could not be recovered from the archive and are represented here as an empty file.\n"

// VersionMeta is what the commit merger needs to know about one
// revision of one file, beyond what a changeset.Update/Add/Delete
// itself records.
type VersionMeta struct {
	AuthorUsername string
	Author         Identity
	Log            string
	PatchMissing   bool
	Label          string
}

// MetaProvider resolves VersionMeta for a given file identity and
// revision.
type MetaProvider interface {
	Meta(id string, rev revnum.Number) (VersionMeta, bool)
}

// FileOpKind distinguishes the three ways a FileOp can affect a
// commit's tree.
type FileOpKind int

const (
	OpAdd FileOpKind = iota
	OpUpdate
	OpDelete
)

// FileOp is one file's change within an add/update/delete commit.
// Rev is the zero value for deletes, which carry no target
// revision of their own.
type FileOp struct {
	Kind          FileOpKind
	ID            string
	CanonicalPath string
	Rev           revnum.Number
}

// RenameOp is one directory or file rename within a rename commit.
type RenameOp struct {
	OldPath string
	NewPath string
}

// Commit is one branch-scoped fast-import commit, with its file
// changes already grouped and ordered.
type Commit struct {
	Branch    string
	Committer Identity
	Date      time.Time
	Message   string
	Renames   []RenameOp
	Files     []FileOp
}

// Build groups one checkpoint transition's changeset into the
// ordered commit sequence described by §4.9: up to two rename
// commits, then grouped add commits, then grouped update commits,
// then a single delete commit, all dated and authored per the rules
// below.
func Build(branch string, cs changeset.Changeset, checkpointDate time.Time, meta MetaProvider) []Commit {
	var commits []Commit
	commits = append(commits, buildRenameCommits(branch, cs, checkpointDate)...)
	commits = append(commits, buildAddCommits(branch, cs.Adds, meta)...)
	commits = append(commits, buildUpdateCommits(branch, cs.Updates, meta)...)
	if c, ok := buildDeleteCommit(branch, cs.Deletes, checkpointDate); ok {
		commits = append(commits, c)
	}
	return commits
}

func buildRenameCommits(branch string, cs changeset.Changeset, checkpointDate time.Time) []Commit {
	var out []Commit
	if len(cs.DirectoryRenames) > 0 {
		var renames []RenameOp
		for _, r := range cs.DirectoryRenames {
			renames = append(renames, RenameOp{OldPath: r.OldDir, NewPath: r.NewDir})
		}
		out = append(out, Commit{
			Branch: branch, Committer: ToolIdentity, Date: checkpointDate,
			Message: "Normalize directory name case to match the MKSSI archive.\n",
			Renames: renames,
		})
	}
	if len(cs.FileRenames) > 0 {
		var renames []RenameOp
		for _, r := range cs.FileRenames {
			renames = append(renames, RenameOp{OldPath: r.OldPath, NewPath: r.NewPath})
		}
		out = append(out, Commit{
			Branch: branch, Committer: ToolIdentity, Date: checkpointDate,
			Message: "Normalize file name case to match the MKSSI archive.\n",
			Renames: renames,
		})
	}
	return out
}

// buildAddCommits groups adds by case-insensitive equality of
// author, skipping any add whose patch is missing into its own
// stand-alone commit.
func buildAddCommits(branch string, adds []changeset.Add, meta MetaProvider) []Commit {
	var out []Commit
	groups := make(map[string][]changeset.Add)
	var order []string
	for _, a := range adds {
		vm, _ := meta.Meta(a.ID, a.Rev)
		if vm.PatchMissing {
			out = append(out, singleAddCommit(branch, a, vm))
			continue
		}
		key := strings.ToLower(vm.AuthorUsername)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], a)
	}
	for _, key := range order {
		members := groups[key]
		out = append(out, mergedAddCommit(branch, members, meta))
	}
	return out
}

func singleAddCommit(branch string, a changeset.Add, vm VersionMeta) Commit {
	msg := fmt.Sprintf("Add file %s\n\n#mkssi: add %s rev. %s\n", a.CanonicalPath, a.CanonicalPath, a.Rev.String())
	msg += lostContentsNotice
	return Commit{
		Branch: branch, Committer: vm.Author, Date: a.Date, Message: msg,
		Files: []FileOp{{Kind: OpAdd, ID: a.ID, CanonicalPath: a.CanonicalPath, Rev: a.Rev}},
	}
}

func mergedAddCommit(branch string, members []changeset.Add, meta MetaProvider) Commit {
	maxDate := members[0].Date
	var author Identity
	var trailer strings.Builder
	files := make([]FileOp, 0, len(members))
	for i, a := range members {
		vm, _ := meta.Meta(a.ID, a.Rev)
		if i == 0 {
			author = vm.Author
		}
		if a.Date.After(maxDate) {
			maxDate = a.Date
		}
		trailer.WriteString(fmt.Sprintf("#mkssi: add %s rev. %s\n", a.CanonicalPath, a.Rev.String()))
		files = append(files, FileOp{Kind: OpAdd, ID: a.ID, CanonicalPath: a.CanonicalPath, Rev: a.Rev})
	}
	var headline string
	if len(members) == 1 {
		headline = fmt.Sprintf("Add file %s\n", members[0].CanonicalPath)
	} else {
		headline = fmt.Sprintf("Add %d files\n", len(members))
	}
	return Commit{
		Branch: branch, Committer: author, Date: maxDate,
		Message: headline + "\n" + trailer.String(),
		Files:   files,
	}
}

// buildUpdateCommits runs the seed-and-scan merge algorithm from
// §4.9: each seed update scans every update after it (in order),
// folding in the first occurrence of every distinct file whose
// author and log text match the seed's exactly, and is neither a
// revert nor missing a patch on either side. Any update for a file
// ID already seen in this scan (merged or not) cannot jump ahead of
// it into this commit, preserving that file's own update order.
func buildUpdateCommits(branch string, updates []changeset.Update, meta MetaProvider) []Commit {
	remaining := append([]changeset.Update(nil), updates...)
	var out []Commit
	for len(remaining) > 0 {
		seed := remaining[0]
		rest := remaining[1:]
		seedMeta, _ := meta.Meta(seed.ID, seed.NewRev)
		seedOldMeta, _ := meta.Meta(seed.ID, seed.OldRev)
		if isRevert(seed) || seedMeta.PatchMissing || seedOldMeta.PatchMissing {
			out = append(out, standaloneUpdateCommit(branch, seed, seedMeta))
			remaining = rest
			continue
		}

		members := []changeset.Update{seed}
		seen := map[string]bool{seed.ID: true}
		var kept []changeset.Update
		for _, cand := range rest {
			if seen[cand.ID] {
				kept = append(kept, cand)
				continue
			}
			seen[cand.ID] = true
			candMeta, _ := meta.Meta(cand.ID, cand.NewRev)
			candOldMeta, _ := meta.Meta(cand.ID, cand.OldRev)
			if !isRevert(cand) && !candMeta.PatchMissing && !candOldMeta.PatchMissing &&
				candMeta.Author.Name == seedMeta.Author.Name &&
				candMeta.Author.Email == seedMeta.Author.Email &&
				candMeta.Log == seedMeta.Log {
				members = append(members, cand)
			} else {
				kept = append(kept, cand)
			}
		}
		out = append(out, mergedUpdateCommit(branch, members, seedMeta, meta))
		remaining = kept
	}
	return out
}

func isRevert(u changeset.Update) bool {
	return revnum.Compare(u.NewRev, u.OldRev) < 0
}

func standaloneUpdateCommit(branch string, u changeset.Update, vm VersionMeta) Commit {
	if isRevert(u) {
		msg := fmt.Sprintf("Revert file %s to rev. %s\n", u.CanonicalPath, u.NewRev.String())
		return Commit{
			Branch: branch, Committer: UnknownIdentity, Date: u.NewDate, Message: msg,
			Files: []FileOp{{Kind: OpUpdate, ID: u.ID, CanonicalPath: u.CanonicalPath, Rev: u.NewRev}},
		}
	}
	trailer := checkinTrailer(u, vm.Label)
	msg := fmt.Sprintf("Check in %s\n\n%s%s", u.CanonicalPath, trailer, lostContentsNotice)
	return Commit{
		Branch: branch, Committer: vm.Author, Date: u.NewDate, Message: msg,
		Files: []FileOp{{Kind: OpUpdate, ID: u.ID, CanonicalPath: u.CanonicalPath, Rev: u.NewRev}},
	}
}

func mergedUpdateCommit(branch string, members []changeset.Update, seedMeta VersionMeta, meta MetaProvider) Commit {
	maxDate := members[0].NewDate
	var trailer strings.Builder
	files := make([]FileOp, 0, len(members))
	for _, u := range members {
		if u.OldDate.After(maxDate) {
			maxDate = u.OldDate
		}
		if u.NewDate.After(maxDate) {
			maxDate = u.NewDate
		}
		vm, _ := meta.Meta(u.ID, u.NewRev)
		trailer.WriteString(checkinTrailer(u, vm.Label))
		files = append(files, FileOp{Kind: OpUpdate, ID: u.ID, CanonicalPath: u.CanonicalPath, Rev: u.NewRev})
	}
	headline := seedMeta.Log
	if strings.TrimSpace(headline) == "" {
		if len(members) == 1 {
			headline = fmt.Sprintf("Check in %s\n", members[0].CanonicalPath)
		} else {
			headline = fmt.Sprintf("Check in %d files\n", len(members))
		}
	}
	if !strings.HasSuffix(headline, "\n") {
		headline += "\n"
	}
	return Commit{
		Branch: branch, Committer: seedMeta.Author, Date: maxDate,
		Message: headline + "\n" + trailer.String(),
		Files:   files,
	}
}

func checkinTrailer(u changeset.Update, label string) string {
	line := fmt.Sprintf("check-in %s rev. %s (was rev. %s)", u.CanonicalPath, u.NewRev.String(), u.OldRev.String())
	if label != "" {
		line += fmt.Sprintf(" labeled %s", label)
	}
	return line + "\n"
}

// buildDeleteCommit groups every delete in the changeset into a
// single commit with "Unknown" committer.
func buildDeleteCommit(branch string, deletes []changeset.Delete, checkpointDate time.Time) (Commit, bool) {
	if len(deletes) == 0 {
		return Commit{}, false
	}
	var trailer strings.Builder
	files := make([]FileOp, 0, len(deletes))
	for _, d := range deletes {
		trailer.WriteString(fmt.Sprintf("#mkssi: delete %s rev. %s\n", d.CanonicalPath, d.Rev.String()))
		files = append(files, FileOp{Kind: OpDelete, ID: d.ID, CanonicalPath: d.CanonicalPath})
	}
	var headline string
	if len(deletes) == 1 {
		headline = fmt.Sprintf("Delete file %s\n", deletes[0].CanonicalPath)
	} else {
		headline = fmt.Sprintf("Delete %d files\n", len(deletes))
	}
	return Commit{
		Branch: branch, Committer: UnknownIdentity, Date: checkpointDate,
		Message: headline + "\n" + trailer.String(),
		Files:   files,
	}, true
}
