package export

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/fastimport"
	"github.com/danielrlewis/mkssi-fast-export/keyword"
	"github.com/danielrlewis/mkssi-fast-export/materialize"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

// blobWriter runs §4.11 step 3: materialize and emit a blob for every
// revision of every ordinary file up front, stamping the resulting
// mark (and the executable bit, and whether the revision turned out
// to need just-in-time re-expansion) directly onto the rcs.Version.
//
// A version flagged JIT, whether by its dry-run keyword.Expand or by
// paths showing its canonical path varies across checkpoints, is
// deliberately left without a mark here: its content depends on
// whichever project or variant revision ends up referencing it, so it
// is re-materialized on demand while the commit stream is built (see
// resolveBlob).
type blobWriter struct {
	fw      *fastimport.Writer
	ctx     keyword.Context
	sink    *diag.Sink
	projDir string
	paths   *pathHistory
	mark    int
}

func (b *blobWriter) nextMark() int {
	b.mark++
	return b.mark
}

// assignAll walks every file in repo except those named in skip
// (lowercased logical names), which are the project manifests tracked
// separately by the branch walk.
func (b *blobWriter) assignAll(repo *rcs.Repository, skip map[string]bool) {
	names := make([]string, 0, len(repo.Files))
	for name := range repo.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := repo.Files[name]
		if skip[normalizeName(f.LogicalName)] {
			continue
		}
		if f.Dummy {
			b.assignOther(f)
			continue
		}
		err := materialize.Walk(f, b.sink, func(file *rcs.File, rev revnum.Number, data []byte) error {
			b.assignOne(file, rev, data)
			return nil
		})
		if err != nil {
			b.sink.Warn(diag.Wrap(diag.CorruptRevision, f.LogicalName, "", err))
		}
	}
}

func (b *blobWriter) assignOne(f *rcs.File, rev revnum.Number, data []byte) {
	ver, ok := f.Versions[rev.String()]
	if !ok {
		return
	}

	id := idFor(f)
	logicalName := f.LogicalName
	var pathVaries bool
	if b.paths != nil {
		pathVaries = b.paths.varies(id)
		if !pathVaries {
			if constant, ok := b.paths.constant(id); ok {
				logicalName = constant
			}
		}
	}

	cur, prev := keywordRevisions(f, rev)
	expanded, flags, err := keyword.Expand(data, logicalName, cur, prev, b.ctx, "")
	if err != nil {
		b.sink.Warn(diag.Wrap(diag.Parse, f.LogicalName, rev.String(), err))
		expanded = data
	}
	ver.KwName, ver.KwPath, ver.KwProjRev = flags.KwName, flags.KwPath, flags.KwProjRev
	ver.JIT = flags.JIT() || pathVaries
	if ver.JIT {
		return
	}

	ver.Executable = isExecutable(f.LogicalName, expanded)
	ver.BlobMark = b.nextMark()
	b.fw.WriteBlob(ver.BlobMark, expanded)
}

// assignOther materializes a dummy file (one named only by a project
// manifest, with no RCS master of its own) straight from --proj-dir.
func (b *blobWriter) assignOther(f *rcs.File) {
	if b.projDir == "" {
		b.sink.Warn(diag.New(diag.CorruptRevision, f.LogicalName, "", "file has no RCS master and no --proj-dir was given to recover its content"))
		return
	}
	path := filepath.Join(b.projDir, filepath.FromSlash(f.LogicalName))
	data, err := os.ReadFile(path)
	if err != nil {
		b.sink.Warn(diag.Wrap(diag.Io, f.LogicalName, "", err))
		return
	}
	f.OtherBlobMark = b.nextMark()
	b.fw.WriteBlob(f.OtherBlobMark, data)
}

// keywordRevisions builds the keyword.Revision pair (current and, if
// any, predecessor) that keyword.Expand needs for $Log$ and duplicate-
// revision detection, derived by pure revnum algebra rather than by
// following the master's physical delta chain.
func keywordRevisions(f *rcs.File, rev revnum.Number) (keyword.Revision, *keyword.Revision) {
	ver := f.Versions[rev.String()]
	cur := keyword.Revision{
		Number:     rev,
		Date:       ver.Date,
		Author:     ver.Author,
		State:      ver.State,
		Locker:     lockerFor(f, rev),
		LogMessage: patchLog(f.Patches[rev.String()]),
	}

	predRev, ok := revnum.Decrement(rev)
	if !ok {
		return cur, nil
	}
	pv, ok := f.Versions[predRev.String()]
	if !ok {
		return cur, nil
	}
	prev := keyword.Revision{
		Number:     predRev,
		Date:       pv.Date,
		Author:     pv.Author,
		State:      pv.State,
		Locker:     lockerFor(f, predRev),
		LogMessage: patchLog(f.Patches[predRev.String()]),
	}
	return cur, &prev
}

func lockerFor(f *rcs.File, rev revnum.Number) string {
	for _, lock := range f.Locks {
		if revnum.Equal(lock.Rev, rev) {
			return lock.Locker
		}
	}
	return ""
}

func normalizeName(name string) string {
	return strings.ToLower(filepath.ToSlash(name))
}
