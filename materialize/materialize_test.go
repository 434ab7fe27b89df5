package materialize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeRevMaster models a head revision (1.3, literal content) whose
// reverse-diff chain derives 1.2 (insert a line) and then 1.1
// (delete a line) from it, exercising the pre-order trunk walk and
// the line-patch engine together.
const threeRevMaster = `head	1.3;
access;
symbols;
locks; strict;
comment	@# @;


1.3
date	2020.01.03.00.00.00;	author alice;	state Exp;
branches;
next	1.2;

1.2
date	2020.01.02.00.00.00;	author alice;	state Exp;
branches;
next	1.1;

1.1
date	2020.01.01.00.00.00;	author alice;	state Exp;
branches;
next	;


desc
@d
@


1.3
log
@third
@
text
@AAA
BBB
CCC
@


1.2
log
@second
@
text
@a1 1
XXX
@


1.1
log
@first
@
text
@d3 1
@
`

func writeMaster(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestWalkMaterializesEveryRevisionOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeMaster(t, dir, "a.txt,v", threeRevMaster)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	f, err := rcs.Parse(data, path, "a.txt")
	require.NoError(t, err)

	sink := diag.NewSink(nil)
	got := map[string]string{}
	var order []string
	err = Walk(f, sink, func(file *rcs.File, rev revnum.Number, data []byte) error {
		got[rev.String()] = string(data)
		order = append(order, rev.String())
		return nil
	})
	require.NoError(t, err)
	assert.False(t, sink.HasFatal())
	assert.Empty(t, sink.Warnings())

	assert.Equal(t, []string{"1.3", "1.2", "1.1"}, order)
	assert.Equal(t, "AAA\nBBB\nCCC\n", got["1.3"])
	assert.Equal(t, "AAA\nXXX\nBBB\nCCC\n", got["1.2"])
	assert.Equal(t, "AAA\nXXX\nCCC\n", got["1.1"])
}

func TestWalkMissingPatchEmitsEmptyAndContinues(t *testing.T) {
	dir := t.TempDir()
	// Same shape, but 1.2's deltatext block is removed; the parser
	// synthesizes a Missing placeholder for it, and the chain continues
	// with empty content for 1.2 and (since it has no real prev_data to
	// patch against) for 1.1 as well.
	master := `head	1.3;
access;
symbols;
locks; strict;
comment	@# @;


1.3
date	2020.01.03.00.00.00;	author alice;	state Exp;
branches;
next	1.2;

1.2
date	2020.01.02.00.00.00;	author alice;	state Exp;
branches;
next	1.1;

1.1
date	2020.01.01.00.00.00;	author alice;	state Exp;
branches;
next	;


desc
@d
@


1.3
log
@third
@
text
@AAA
BBB
CCC
@


1.1
log
@first
@
text
@d3 1
@
`
	path := writeMaster(t, dir, "b.txt,v", master)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	f, err := rcs.Parse(data, path, "b.txt")
	require.NoError(t, err)

	sink := diag.NewSink(nil)
	got := map[string][]byte{}
	err = Walk(f, sink, func(file *rcs.File, rev revnum.Number, data []byte) error {
		got[rev.String()] = data
		return nil
	})
	require.NoError(t, err)
	assert.False(t, sink.HasFatal())
	assert.NotEmpty(t, sink.Warnings())

	assert.Equal(t, "AAA\nBBB\nCCC\n", string(got["1.3"]))
	assert.Empty(t, got["1.2"])
	assert.Empty(t, got["1.1"])
}
