package export

import (
	"strings"
	"testing"
	"time"

	"github.com/danielrlewis/mkssi-fast-export/authormap"
	"github.com/danielrlewis/mkssi-fast-export/commit"
	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/project"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2020, time.January, n, 0, 0, 0, 0, time.UTC)
}

func newTestFile(name string) *rcs.File {
	f := &rcs.File{
		LogicalName: name,
		Head:        revnum.MustParse("1.3"),
		Versions:    make(map[string]*rcs.Version),
		Patches:     make(map[string]*rcs.Patch),
	}
	for i, rev := range []string{"1.1", "1.2", "1.3"} {
		f.Versions[rev] = &rcs.Version{
			Number: revnum.MustParse(rev),
			Date:   day(i + 1),
			Author: "alice",
			State:  "Exp",
		}
		f.Patches[rev] = &rcs.Patch{Number: revnum.MustParse(rev), Log: "edit\n", HasText: true}
	}
	return f
}

func TestIdForLowercasesLogicalName(t *testing.T) {
	f := &rcs.File{LogicalName: "Src/Foo.C"}
	assert.Equal(t, "src/foo.c", idFor(f))
}

func TestRepoHistoryPredecessorSuccessor(t *testing.T) {
	f := newTestFile("a.txt")
	repo := rcs.NewRepository()
	repo.Add(f)
	h := newRepoHistory(repo, nil)

	pred, ok := h.Predecessor(idFor(f), revnum.MustParse("1.2"))
	require.True(t, ok)
	assert.Equal(t, "1.1", pred.String())

	_, ok = h.Predecessor(idFor(f), revnum.MustParse("1.1"))
	assert.False(t, ok, "nothing precedes the first trunk revision")

	succ, ok := h.Successor(idFor(f), revnum.MustParse("1.2"))
	require.True(t, ok)
	assert.Equal(t, "1.3", succ.String())

	_, ok = h.Successor(idFor(f), revnum.MustParse("1.3"))
	assert.False(t, ok, "nothing follows the file's head")
}

func TestRepoHistoryInfo(t *testing.T) {
	f := newTestFile("a.txt")
	f.Versions["1.2"].Checkpointed = true
	repo := rcs.NewRepository()
	repo.Add(f)
	h := newRepoHistory(repo, nil)

	info, ok := h.Info(idFor(f), revnum.MustParse("1.2"))
	require.True(t, ok)
	assert.True(t, info.HasVersion)
	assert.True(t, info.HasPatch)
	assert.True(t, info.Checkpointed)
	assert.Equal(t, day(2), info.Date)

	_, ok = h.Info(idFor(f), revnum.MustParse("9.9"))
	assert.False(t, ok)
}

func TestRepoHistoryMetaUnresolvedFallsBackToUsername(t *testing.T) {
	f := newTestFile("a.txt")
	repo := rcs.NewRepository()
	repo.Add(f)
	h := newRepoHistory(repo, authormap.Empty())

	meta, ok := h.Meta(idFor(f), revnum.MustParse("1.1"))
	require.True(t, ok)
	assert.Equal(t, "alice", meta.AuthorUsername)
	assert.Equal(t, "alice", meta.Author.Name)
	assert.False(t, meta.PatchMissing)
}

func TestRepoHistoryMetaResolvesThroughAuthorMap(t *testing.T) {
	f := newTestFile("a.txt")
	repo := rcs.NewRepository()
	repo.Add(f)
	am, err := authormap.Parse(strings.NewReader("alice = Alice Smith <alice@example.com>\n"))
	require.NoError(t, err)
	h := newRepoHistory(repo, am)

	meta, ok := h.Meta(idFor(f), revnum.MustParse("1.1"))
	require.True(t, ok)
	assert.Equal(t, "Alice Smith", meta.Author.Name)
	assert.Equal(t, "alice@example.com", meta.Author.Email)
}

func TestRepoHistoryMetaPatchMissing(t *testing.T) {
	f := newTestFile("a.txt")
	f.Patches["1.2"].HasText = false
	repo := rcs.NewRepository()
	repo.Add(f)
	h := newRepoHistory(repo, nil)

	meta, ok := h.Meta(idFor(f), revnum.MustParse("1.2"))
	require.True(t, ok)
	assert.True(t, meta.PatchMissing)
}

func TestSymbolLabel(t *testing.T) {
	f := newTestFile("a.txt")
	f.Symbols = []rcs.Symbol{{Name: "REL1_0", Rev: revnum.MustParse("1.2")}}
	assert.Equal(t, "REL1_0", symbolLabel(f, revnum.MustParse("1.2")))
	assert.Equal(t, "", symbolLabel(f, revnum.MustParse("1.1")))
}

func TestLockerFor(t *testing.T) {
	f := newTestFile("a.txt")
	f.Locks = []rcs.Lock{{Locker: "bob", Rev: revnum.MustParse("1.2")}}
	assert.Equal(t, "bob", lockerFor(f, revnum.MustParse("1.2")))
	assert.Equal(t, "", lockerFor(f, revnum.MustParse("1.1")))
}

func TestAllAuthorsDedupesAndLowercases(t *testing.T) {
	f1 := newTestFile("a.txt")
	f2 := newTestFile("b.txt")
	f2.Versions["1.4"] = &rcs.Version{Number: revnum.MustParse("1.4"), Author: "Bob"}
	repo := rcs.NewRepository()
	repo.Add(f1)
	repo.Add(f2)

	authors := allAuthors(repo)
	assert.ElementsMatch(t, []string{"alice", "bob"}, authors)
}

func TestIsExecutable(t *testing.T) {
	assert.True(t, isExecutable("run.sh", []byte("echo hi\n")))
	assert.True(t, isExecutable("tool", []byte("#!/bin/sh\necho hi\n")))
	assert.False(t, isExecutable("notes.txt", []byte("plain text\n")))
}

func TestHasELFMagic(t *testing.T) {
	elfHeader := append([]byte{0x7f, 'E', 'L', 'F'}, make([]byte, 16)...)
	assert.True(t, hasELFMagic(elfHeader))
	assert.False(t, hasELFMagic([]byte("not an elf\n")))
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, "100755", modeFor(true))
	assert.Equal(t, "100644", modeFor(false))
}

func TestGroupSymbolsAndByAnchor(t *testing.T) {
	symbols := []rcs.Symbol{
		{Name: "REL1", Rev: revnum.MustParse("1.2")},
		{Name: "REL1_ALIAS", Rev: revnum.MustParse("1.2")},
	}
	byRev := groupSymbols(symbols)
	assert.ElementsMatch(t, []string{"REL1", "REL1_ALIAS"}, byRev["1.2"])

	records := []project.BranchRecord{
		{Name: "zed", Rev: revnum.MustParse("1.2"), VariantID: "vp0002"},
		{Name: "alpha", Rev: revnum.MustParse("1.2"), VariantID: "vp0001"},
	}
	byAnchor := groupByAnchor(records)
	require.Len(t, byAnchor["1.2"], 2)
	assert.Equal(t, "alpha", byAnchor["1.2"][0].Name, "sorted by name for deterministic emission order")
	assert.Equal(t, "alpha,zed", spawnedNames(byAnchor["1.2"]))
}

func TestTipManifestPath(t *testing.T) {
	assert.Equal(t, "proj/project.pj", tipManifestPath("proj", ""))
	assert.Equal(t, "proj/project.vpj/vp0001.pj", tipManifestPath("proj", "vp0001"))
}

func TestKeywordRevisionsNoPredecessorAtFirstTrunkRevision(t *testing.T) {
	f := newTestFile("a.txt")
	cur, prev := keywordRevisions(f, revnum.MustParse("1.1"))
	assert.Equal(t, "1.1", cur.Number.String())
	assert.Nil(t, prev)
}

func TestKeywordRevisionsCarriesPredecessorLog(t *testing.T) {
	f := newTestFile("a.txt")
	_, prev := keywordRevisions(f, revnum.MustParse("1.2"))
	require.NotNil(t, prev)
	assert.Equal(t, "1.1", prev.Number.String())
	assert.Equal(t, "edit\n", prev.LogMessage)
}

func TestWriteAuthorListSortsAndFiltersResolved(t *testing.T) {
	f1 := newTestFile("a.txt")
	f2 := newTestFile("b.txt")
	f2.Versions["1.4"] = &rcs.Version{Number: revnum.MustParse("1.4"), Author: "zeke"}
	repo := rcs.NewRepository()
	repo.Add(f1)
	repo.Add(f2)

	am, err := authormap.Parse(strings.NewReader("alice = Alice Smith <alice@example.com>\n"))
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, writeAuthorList(repo, am, &buf))
	assert.Equal(t, "zeke\n", buf.String())
}

func TestFileStatesMarksCheckpointed(t *testing.T) {
	f := newTestFile("src/a.txt")
	repo := rcs.NewRepository()
	repo.Add(f)
	d := &driver{repo: repo, sink: diag.NewSink(nil)}

	fl := &project.FileList{Entries: []project.FileEntry{
		{CanonicalPath: "src/a.txt", Rev: revnum.MustParse("1.2")},
	}}
	states := d.fileStates(fl)
	require.Len(t, states, 1)
	assert.Equal(t, idFor(f), states[0].ID)
	assert.True(t, f.Versions["1.2"].Checkpointed)
}

func TestFileStatesWarnsOnMissingFile(t *testing.T) {
	repo := rcs.NewRepository()
	d := &driver{repo: repo, sink: diag.NewSink(nil)}
	fl := &project.FileList{Entries: []project.FileEntry{
		{CanonicalPath: "missing.txt", Rev: revnum.MustParse("1.1")},
	}}
	states := d.fileStates(fl)
	assert.Empty(t, states)
}

func TestEmitCommitSkipsEmptyCommit(t *testing.T) {
	d := &driver{branchHasCommits: make(map[string]bool)}
	d.emitCommit(commit.Commit{Branch: "master"}, "1.1")
	assert.False(t, d.branchHasCommits["master"])
}
