package changeset

import (
	"testing"
	"time"

	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory is an in-memory HistoryProvider keyed by "id@rev".
type fakeHistory struct {
	pred map[string]string
	succ map[string]string
	info map[string]VersionInfo
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{pred: map[string]string{}, succ: map[string]string{}, info: map[string]VersionInfo{}}
}

func key(id string, rev revnum.Number) string { return id + "@" + rev.String() }

func (h *fakeHistory) link(id, from, to string) {
	h.pred[key(id, revnum.MustParse(to))] = from
	h.succ[key(id, revnum.MustParse(from))] = to
}

func (h *fakeHistory) setInfo(id, rev string, vi VersionInfo) {
	h.info[key(id, revnum.MustParse(rev))] = vi
}

func (h *fakeHistory) Predecessor(id string, rev revnum.Number) (revnum.Number, bool) {
	s, ok := h.pred[key(id, rev)]
	if !ok {
		return revnum.Number{}, false
	}
	return revnum.MustParse(s), true
}

func (h *fakeHistory) Successor(id string, rev revnum.Number) (revnum.Number, bool) {
	s, ok := h.succ[key(id, rev)]
	if !ok {
		return revnum.Number{}, false
	}
	return revnum.MustParse(s), true
}

func (h *fakeHistory) Info(id string, rev revnum.Number) (VersionInfo, bool) {
	vi, ok := h.info[key(id, rev)]
	return vi, ok
}

func day(n int) time.Time {
	return time.Date(2020, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestBuildDetectsAddsUpdatesDeletes(t *testing.T) {
	h := newFakeHistory()
	h.setInfo("f1", "1.1", VersionInfo{Date: day(1), Checkpointed: true, HasVersion: true})
	h.setInfo("f2", "1.1", VersionInfo{Date: day(1), Checkpointed: true, HasVersion: true})
	h.setInfo("f2", "1.2", VersionInfo{Date: day(2), Checkpointed: true, HasVersion: true})
	h.setInfo("f3", "1.1", VersionInfo{Date: day(1), Checkpointed: true, HasVersion: true})
	h.link("f2", "1.1", "1.2")

	old := []FileState{
		{ID: "f1", CanonicalPath: "a.c", Rev: revnum.MustParse("1.1"), Date: day(1)},
		{ID: "f2", CanonicalPath: "b.c", Rev: revnum.MustParse("1.1"), Date: day(1)},
	}
	new := []FileState{
		{ID: "f2", CanonicalPath: "b.c", Rev: revnum.MustParse("1.2"), Date: day(2)},
		{ID: "f3", CanonicalPath: "c.c", Rev: revnum.MustParse("1.1"), Date: day(2)},
	}

	sink := diag.NewSink(nil)
	cs := Build(old, new, day(1), day(2), h, sink)

	require.Len(t, cs.Adds, 1)
	assert.Equal(t, "c.c", cs.Adds[0].CanonicalPath)
	require.Len(t, cs.Deletes, 1)
	assert.Equal(t, "a.c", cs.Deletes[0].CanonicalPath)
	require.Len(t, cs.Updates, 1)
	assert.Equal(t, "1.1", cs.Updates[0].OldRev.String())
	assert.Equal(t, "1.2", cs.Updates[0].NewRev.String())
}

func TestBuildDetectsFileRename(t *testing.T) {
	h := newFakeHistory()
	h.setInfo("f1", "1.1", VersionInfo{Date: day(1), Checkpointed: true, HasVersion: true})

	old := []FileState{{ID: "f1", CanonicalPath: "dir/Foo.c", Rev: revnum.MustParse("1.1"), Date: day(1)}}
	new := []FileState{{ID: "f1", CanonicalPath: "dir/foo.c", Rev: revnum.MustParse("1.1"), Date: day(1)}}

	cs := Build(old, new, day(1), day(1), h, diag.NewSink(nil))
	require.Len(t, cs.FileRenames, 1)
	assert.Equal(t, "dir/Foo.c", cs.FileRenames[0].OldPath)
	assert.Equal(t, "dir/foo.c", cs.FileRenames[0].NewPath)
	assert.Empty(t, cs.DirectoryRenames)
}

func TestBuildDetectsDirectoryRenameOnce(t *testing.T) {
	h := newFakeHistory()
	h.setInfo("f1", "1.1", VersionInfo{Date: day(1), Checkpointed: true, HasVersion: true})
	h.setInfo("f2", "1.1", VersionInfo{Date: day(1), Checkpointed: true, HasVersion: true})

	old := []FileState{
		{ID: "f1", CanonicalPath: "Src/foo.c", Rev: revnum.MustParse("1.1"), Date: day(1)},
		{ID: "f2", CanonicalPath: "Src/bar.c", Rev: revnum.MustParse("1.1"), Date: day(1)},
	}
	new := []FileState{
		{ID: "f1", CanonicalPath: "src/foo.c", Rev: revnum.MustParse("1.1"), Date: day(1)},
		{ID: "f2", CanonicalPath: "src/bar.c", Rev: revnum.MustParse("1.1"), Date: day(1)},
	}

	cs := Build(old, new, day(1), day(1), h, diag.NewSink(nil))
	require.Len(t, cs.DirectoryRenames, 1)
	assert.Equal(t, "Src", cs.DirectoryRenames[0].OldDir)
	assert.Equal(t, "src", cs.DirectoryRenames[0].NewDir)
	assert.Empty(t, cs.FileRenames)
}

func TestAdjustAddsClimbsNonCheckpointedPredecessors(t *testing.T) {
	h := newFakeHistory()
	// 1.1 (checkpointed, before old_date) -> 1.2 (non-checkpointed, after old_date) -> 1.3 (add target)
	h.setInfo("f1", "1.1", VersionInfo{Date: day(1), Checkpointed: true, HasVersion: true})
	h.setInfo("f1", "1.2", VersionInfo{Date: day(3), Checkpointed: false, HasVersion: true})
	h.setInfo("f1", "1.3", VersionInfo{Date: day(5), Checkpointed: false, HasVersion: true})
	h.link("f1", "1.1", "1.2")
	h.link("f1", "1.2", "1.3")

	old := []FileState{}
	new := []FileState{{ID: "f1", CanonicalPath: "new.c", Rev: revnum.MustParse("1.3"), Date: day(5)}}

	cs := Build(old, new, day(2), day(5), h, diag.NewSink(nil))
	require.Len(t, cs.Adds, 1)
	assert.Equal(t, "1.2", cs.Adds[0].Rev.String(), "earliest non-checkpointed predecessor after old_date becomes the add")
	require.Len(t, cs.Updates, 1)
	assert.Equal(t, "1.2", cs.Updates[0].OldRev.String())
	assert.Equal(t, "1.3", cs.Updates[0].NewRev.String())
}

func TestAdjustUpdatesExpandsForwardChainSkippingDuplicateRevision(t *testing.T) {
	h := newFakeHistory()
	h.setInfo("f1", "1.1", VersionInfo{Date: day(1), Checkpointed: true, HasVersion: true})
	h.setInfo("f1", "1.2", VersionInfo{Date: day(2), Checkpointed: false, HasVersion: true, Log: DuplicateRevisionLog})
	h.setInfo("f1", "1.3", VersionInfo{Date: day(3), Checkpointed: true, HasVersion: true})
	h.link("f1", "1.1", "1.2")
	h.link("f1", "1.2", "1.3")

	old := []FileState{{ID: "f1", CanonicalPath: "x.c", Rev: revnum.MustParse("1.1"), Date: day(1)}}
	new := []FileState{{ID: "f1", CanonicalPath: "x.c", Rev: revnum.MustParse("1.3"), Date: day(3)}}

	cs := Build(old, new, day(1), day(3), h, diag.NewSink(nil))
	require.Len(t, cs.Updates, 1)
	assert.Equal(t, "1.1", cs.Updates[0].OldRev.String())
	assert.Equal(t, "1.3", cs.Updates[0].NewRev.String())
}

func TestAdjustUpdatesLeavesReversionsAtomic(t *testing.T) {
	h := newFakeHistory()
	h.setInfo("f1", "1.1", VersionInfo{Date: day(1), Checkpointed: true, HasVersion: true})
	h.setInfo("f1", "1.3", VersionInfo{Date: day(3), Checkpointed: true, HasVersion: true})
	h.link("f1", "1.1", "1.3")

	old := []FileState{{ID: "f1", CanonicalPath: "x.c", Rev: revnum.MustParse("1.3"), Date: day(3)}}
	new := []FileState{{ID: "f1", CanonicalPath: "x.c", Rev: revnum.MustParse("1.1"), Date: day(1)}}

	cs := Build(old, new, day(3), day(4), h, diag.NewSink(nil))
	require.Len(t, cs.Updates, 1)
	assert.Equal(t, "1.3", cs.Updates[0].OldRev.String())
	assert.Equal(t, "1.1", cs.Updates[0].NewRev.String())
}

func TestBuildDropsChangeWithUnrecoverableTarget(t *testing.T) {
	h := newFakeHistory()
	h.setInfo("f1", "1.2", VersionInfo{Date: day(2), Checkpointed: false, HasVersion: false, HasPatch: false})

	old := []FileState{}
	new := []FileState{{ID: "f1", CanonicalPath: "x.c", Rev: revnum.MustParse("1.2"), Date: day(2)}}

	sink := diag.NewSink(nil)
	cs := Build(old, new, day(1), day(2), h, sink)
	assert.Empty(t, cs.Adds)
	assert.NotEmpty(t, sink.Warnings())
}
