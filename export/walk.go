package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/danielrlewis/mkssi-fast-export/changeset"
	"github.com/danielrlewis/mkssi-fast-export/commit"
	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/fastimport"
	"github.com/danielrlewis/mkssi-fast-export/graph"
	"github.com/danielrlewis/mkssi-fast-export/keyword"
	"github.com/danielrlewis/mkssi-fast-export/materialize"
	"github.com/danielrlewis/mkssi-fast-export/project"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

// driver holds the state threaded through one export run's branch
// walk: the parsed archive, the shared history/meta provider, the
// output stream, and the monotonic blob-mark counter the up-front
// pass (blobWriter) leaves off at.
type driver struct {
	repo             *rcs.Repository
	opts             Options
	sink             *diag.Sink
	hist             *repoHistory
	fw               *fastimport.Writer
	kwctx            keyword.Context
	graph            *graph.Builder
	markCounter      int
	branchHasCommits map[string]bool
	branches         []*branchState
}

// branchState is one branch's accumulated position once its
// checkpoint walk finishes, carried forward into the tip pass.
type branchState struct {
	name          string
	variantID     string // "" for the project.pj trunk itself
	lastStates    []changeset.FileState
	lastDate      time.Time
	hasCheckpoint bool
}

// projectRevision is one chronologically-probed revision of a project
// manifest (root or variant), already parsed.
type projectRevision struct {
	Number   revnum.Number
	Date     time.Time
	FileList *project.FileList
	Variants []project.VariantEntry
}

func (d *driver) nextMark() int {
	d.markCounter++
	return d.markCounter
}

// walkProject is the top-level entry point: it walks project.pj's own
// trunk chronologically, folding every revision's _mks_variant_projects
// block into one "highest rev wins" branch table up front (§4.7), so
// that each variant spawns at the highest project revision whose block
// names it, then recurses into each resolved variant as its own
// branch.
func (d *driver) walkProject(pjFile *rcs.File) {
	revisions, err := loadProjectRevisions(pjFile, d.sink, d.opts.TrunkLimit)
	if err != nil {
		d.sink.Fatal(asDiagError(err, diag.Parse, pjFile.LogicalName))
		return
	}
	if len(revisions) == 0 {
		d.sink.Fatal(diag.New(diag.Configuration, pjFile.LogicalName, "", "no readable trunk revisions"))
		return
	}

	bt := project.NewBranchTable()
	for _, r := range revisions {
		bt.Add(r.Number, r.Variants, func(raw string, err error) {
			d.sink.Warn(diag.Wrap(diag.Parse, pjFile.LogicalName, r.Number.String(), err))
		})
	}
	byAnchor := groupByAnchor(bt.Records())

	bs := d.runBranch(pjFile, d.opts.trunkBranchName(), "", revisions, byAnchor, "")
	d.branches = append(d.branches, bs)
}

// runBranch walks one manifest's chronological revision sequence,
// diffing each against the previous to build a changeset, emitting
// the resulting commits, and recursing into any variant anchored at
// the revision just processed. byAnchor is nil for a variant's own
// walk: a variant's _mks_variant_projects block, if it has one, names
// a nested sub-variant this tool does not follow (§9).
func (d *driver) runBranch(manifest *rcs.File, branchName, variantID string, revisions []projectRevision, byAnchor map[string][]project.BranchRecord, parentNodeID string) *branchState {
	bs := &branchState{name: branchName, variantID: variantID}
	symbolsByRev := groupSymbols(manifest.Symbols)

	var prevStates []changeset.FileState
	prevDate := revisions[0].Date
	prevNodeID := parentNodeID

	for _, rev := range revisions {
		states := d.fileStates(rev.FileList)
		cs := changeset.Build(prevStates, states, prevDate, rev.Date, d.hist, d.sink)
		commits := commit.Build(branchName, cs, rev.Date, d.hist)
		for _, c := range commits {
			d.emitCommit(c, rev.Number.String())
		}
		if len(commits) > 0 {
			bs.hasCheckpoint = true
		}

		nodeID := fmt.Sprintf("%s@%s", branchName, rev.Number.String())
		anchored := byAnchor[rev.Number.String()]
		if d.graph != nil {
			d.graph.Add(graph.Node{
				ID: nodeID, Label: nodeID, ParentID: prevNodeID,
				SpawnedBranch: spawnedNames(anchored),
			})
		}

		if bs.hasCheckpoint {
			for _, name := range symbolsByRev[rev.Number.String()] {
				d.fw.WriteTag(name, branchName, commit.ToolIdentity, rev.Date.Unix(),
					fmt.Sprintf("Checkpoint %s\n", name))
			}
		}

		for _, rec := range anchored {
			d.spawnVariant(rec, branchName, nodeID)
		}

		prevStates, prevDate, prevNodeID = states, rev.Date, nodeID
	}

	bs.lastStates = prevStates
	bs.lastDate = prevDate
	return bs
}

// spawnVariant loads a named variant's manifest, roots its branch at
// parentBranch via a reset record, and walks its own trunk the same
// way as project.pj's.
func (d *driver) spawnVariant(rec project.BranchRecord, parentBranch, parentNodeID string) {
	manifestName := rec.VariantID + ".pj"
	vf, err := loadManifest(d.opts.RCSDir, d.repo, d.sink, manifestName)
	if err != nil {
		d.sink.Warn(asDiagError(err, diag.Io, manifestName))
		return
	}
	revisions, err := loadProjectRevisions(vf, d.sink, nil)
	if err != nil {
		d.sink.Warn(asDiagError(err, diag.Parse, manifestName))
		return
	}
	if len(revisions) == 0 {
		d.sink.Warn(diag.New(diag.Configuration, manifestName, "", "variant project has no readable trunk revisions"))
		return
	}

	d.fw.WriteReset(rec.Name, parentBranch)
	bs := d.runBranch(vf, rec.Name, rec.VariantID, revisions, nil, parentNodeID)
	d.branches = append(d.branches, bs)
}

// fileStates converts one parsed project revision's file list into
// changeset.FileStates, marking each referenced rcs.Version
// Checkpointed so the adjust_adds/adjust_deletes passes in changeset
// know not to climb past it.
func (d *driver) fileStates(fl *project.FileList) []changeset.FileState {
	out := make([]changeset.FileState, 0, len(fl.Entries))
	for _, e := range fl.Entries {
		f, ok := d.repo.LookupCaseInsensitive(e.CanonicalPath)
		if !ok {
			d.sink.Warn(diag.New(diag.CorruptRevision, e.CanonicalPath, e.Rev.String(),
				"project revision references a file absent from the archive"))
			continue
		}
		ver, ok := f.Versions[e.Rev.String()]
		if !ok {
			d.sink.Warn(diag.New(diag.CorruptRevision, e.CanonicalPath, e.Rev.String(),
				"project revision references a revision absent from the file's own history"))
			continue
		}
		ver.Checkpointed = true
		out = append(out, changeset.FileState{
			ID: idFor(f), CanonicalPath: e.CanonicalPath, Rev: e.Rev, Date: ver.Date,
		})
	}
	return out
}

// emitCommit converts one commit.Commit into a fast-import record,
// resolving each file op's blob mark (re-materializing on demand for
// a JIT-flagged revision) before writing.
func (d *driver) emitCommit(c commit.Commit, projectRevStr string) {
	var renames []fastimport.Rename
	for _, r := range c.Renames {
		renames = append(renames, fastimport.Rename{Old: r.OldPath, New: r.NewPath})
	}

	var changes []fastimport.FileChange
	for _, op := range c.Files {
		if op.Kind == commit.OpDelete {
			changes = append(changes, fastimport.FileChange{Kind: fastimport.DeleteFile, Path: op.CanonicalPath})
			continue
		}
		mark, mode, ok := d.resolveBlob(op.ID, op.CanonicalPath, op.Rev, projectRevStr)
		if !ok {
			d.sink.Warn(diag.New(diag.CorruptRevision, op.CanonicalPath, op.Rev.String(),
				"no materialized content for this revision, omitting from commit"))
			continue
		}
		changes = append(changes, fastimport.FileChange{Kind: fastimport.Modify, Mode: mode, Mark: mark, Path: op.CanonicalPath})
	}

	if len(changes) == 0 && len(renames) == 0 {
		return
	}
	committer := fastimport.Person{Name: c.Committer.Name, Email: c.Committer.Email}
	d.fw.WriteCommit(c.Branch, committer, c.Date.Unix(), c.Message, renames, changes)
	d.branchHasCommits[c.Branch] = true
}

// resolveBlob returns the mark and mode to use for one file op. A
// version that was never flagged JIT reuses the mark the up-front
// blobWriter pass already assigned; a JIT version is re-materialized
// here against the project revision currently referencing it, since
// its $ProjectRevision$ substitution depends on exactly that, and its
// path-bearing keywords are expanded against canonicalPath, the path
// the referencing checkpoint actually committed it under, rather than
// the file's own constant master name.
func (d *driver) resolveBlob(id, canonicalPath string, rev revnum.Number, projectRevStr string) (mark int, mode string, ok bool) {
	f, ok := d.hist.byID[id]
	if !ok {
		return 0, "", false
	}
	ver, ok := f.Versions[rev.String()]
	if !ok {
		return 0, "", false
	}
	if !ver.JIT {
		if ver.BlobMark == 0 {
			return 0, "", false
		}
		return ver.BlobMark, modeFor(ver.Executable), true
	}

	data, ok := materializeOne(f, rev, d.sink)
	if !ok {
		return 0, "", false
	}
	cur, prev := keywordRevisions(f, rev)
	expanded, _, err := keyword.Expand(data, canonicalPath, cur, prev, d.kwctx, projectRevStr)
	if err != nil {
		d.sink.Warn(diag.Wrap(diag.Parse, f.LogicalName, rev.String(), err))
		expanded = data
	}
	exec := isExecutable(f.LogicalName, expanded)
	m := d.nextMark()
	d.fw.WriteBlob(m, expanded)
	return m, modeFor(exec), true
}

func modeFor(executable bool) string {
	if executable {
		return fastimport.ModeExecutable
	}
	return fastimport.ModeRegular
}

// materializeOne re-walks f's whole revision tree to recover one
// revision's content in isolation, used only for the rare JIT case
// where a single precomputed blob cannot be reused.
func materializeOne(f *rcs.File, rev revnum.Number, sink *diag.Sink) ([]byte, bool) {
	var result []byte
	found := false
	err := materialize.Walk(f, sink, func(file *rcs.File, r revnum.Number, data []byte) error {
		if !found && revnum.Equal(r, rev) {
			result = append([]byte(nil), data...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false
	}
	return result, found
}

// loadProjectRevisions materializes every revision of a project
// manifest, then probes its chronological trunk sequence directly:
// 1.1, 1.2, ... and, once a probe misses, (major+1).1, the rule
// §4.11 step 4 uses to cross a project-level "Duplicate revision"
// branch root without treating it as a real archive branch. Probing
// stops at the first number for which no revision exists, or past
// limit if one is given.
func loadProjectRevisions(f *rcs.File, sink *diag.Sink, limit revnum.Number) ([]projectRevision, error) {
	content := make(map[string][]byte)
	err := materialize.Walk(f, sink, func(file *rcs.File, rev revnum.Number, data []byte) error {
		content[rev.String()] = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []projectRevision
	major, minor := 1, 1
	for {
		n := revnum.Number{major, minor}
		data, ok := content[n.String()]
		if !ok {
			bumped := revnum.Number{major + 1, 1}
			bdata, bok := content[bumped.String()]
			if !bok {
				break
			}
			major, minor, n, data = major+1, 1, bumped, bdata
		}
		ver, ok := f.Versions[n.String()]
		if !ok {
			break
		}

		fl, projRev, variants, perr := project.ParseRevision(data)
		if perr != nil {
			return out, fmt.Errorf("revision %s: %w", n.String(), perr)
		}
		if !revnum.Equal(projRev, n) {
			sink.Warn(diag.New(diag.Parse, f.LogicalName, n.String(),
				fmt.Sprintf("manifest's own $Revision$ marker reads %s", projRev.String())))
		}
		out = append(out, projectRevision{Number: n, Date: ver.Date, FileList: fl, Variants: variants})

		if len(limit) > 0 && revnum.Compare(n, limit) >= 0 {
			break
		}
		minor++
	}
	return out, nil
}

func groupSymbols(symbols []rcs.Symbol) map[string][]string {
	out := make(map[string][]string)
	for _, s := range symbols {
		key := s.Rev.String()
		out[key] = append(out[key], s.Name)
	}
	return out
}

func groupByAnchor(recs []project.BranchRecord) map[string][]project.BranchRecord {
	out := make(map[string][]project.BranchRecord)
	for _, r := range recs {
		out[r.Rev.String()] = append(out[r.Rev.String()], r)
	}
	for key := range out {
		sort.Slice(out[key], func(i, j int) bool { return out[key][i].Name < out[key][j].Name })
	}
	return out
}

func spawnedNames(recs []project.BranchRecord) string {
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.Name)
	}
	return strings.Join(names, ",")
}

// emitTips runs §4.11 step 6: after every checkpoint is emitted, each
// branch that has a tip manifest available under --proj-dir gets one
// final, uncheckpointed commit for whatever has changed since its
// last checkpoint, closed off with a demarcating tag.
func (d *driver) emitTips() {
	if d.opts.ProjDir == "" {
		return
	}
	for _, bs := range d.branches {
		d.emitTip(bs)
	}
}

func (d *driver) emitTip(bs *branchState) {
	path := tipManifestPath(d.opts.ProjDir, bs.variantID)
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	fl, _, _, perr := project.ParseRevision(data)
	if perr != nil {
		d.sink.Warn(diag.Wrap(diag.Parse, path, "", perr))
		return
	}

	states := d.fileStates(fl)
	cs := changeset.Build(bs.lastStates, states, bs.lastDate, bs.lastDate, d.hist, d.sink)
	commits := commit.Build(bs.name, cs, bs.lastDate, d.hist)
	for _, c := range commits {
		d.emitCommit(c, "")
	}
	if len(commits) == 0 && !bs.hasCheckpoint {
		return
	}
	d.fw.WriteTag(bs.name+"-tip", bs.name, commit.ToolIdentity, bs.lastDate.Unix(),
		fmt.Sprintf("Tip of %s\n", bs.name))
}

// tipManifestPath locates a branch's working-copy manifest under
// --proj-dir: project.pj itself for the trunk, or the matching entry
// of project.vpj/ for a variant.
func tipManifestPath(projDir, variantID string) string {
	if variantID == "" {
		return filepath.Join(projDir, "project.pj")
	}
	return filepath.Join(projDir, "project.vpj", variantID+".pj")
}
