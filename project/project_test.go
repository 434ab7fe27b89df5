package project

import (
	"testing"

	"github.com/danielrlewis/mkssi-fast-export/revnum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestWithVariants = `--MKS Project--
$Revision: 1.4 $
description main line
EndOptions
$(projectdir)/foo.c a 1.3
$(projectdir)/bar.h a 1.1
"$(projectdir)/has space.c" a 1.2 _mks_variant=ignored
$(projectdir)/skip.txt f 1.1
block _mks_variant_projects
rev=vp0001.pj, "release 1.0"
rev=vp0002.pj, "dev"
end
`

func TestParseRevisionFileList(t *testing.T) {
	fl, projectRev, variants, err := ParseRevision([]byte(manifestWithVariants))
	require.NoError(t, err)
	assert.Equal(t, "1.4", projectRev.String())
	require.Len(t, fl.Entries, 3)
	assert.Equal(t, "foo.c", fl.Entries[0].CanonicalPath)
	assert.Equal(t, "1.3", fl.Entries[0].Rev.String())
	assert.Equal(t, "bar.h", fl.Entries[1].CanonicalPath)
	assert.Equal(t, "has space.c", fl.Entries[2].CanonicalPath)
	assert.Equal(t, "1.2", fl.Entries[2].Rev.String())

	require.Len(t, variants, 2)
	assert.Equal(t, "release 1.0", variants[0].RawName)
	assert.Equal(t, "vp0001", variants[0].VariantID)
	assert.Equal(t, "dev", variants[1].RawName)
	assert.Equal(t, "vp0002", variants[1].VariantID)
}

func TestParseRevisionRejectsUnsupportedType(t *testing.T) {
	const m = `--MKS Project--
$Revision: 1.1 $
EndOptions
$(projectdir)/foo.c i 1.1
`
	_, _, _, err := ParseRevision([]byte(m))
	assert.Error(t, err)
}

func TestParseRevisionRejectsBadHeader(t *testing.T) {
	const m = "nonsense\nEndOptions\n"
	_, _, _, err := ParseRevision([]byte(m))
	assert.Error(t, err)
}

func TestBranchTableHighestRevWins(t *testing.T) {
	bt := NewBranchTable()
	bt.Add(revnum.MustParse("1.2"), []VariantEntry{{RawName: "release", VariantID: "vp0001"}}, nil)
	bt.Add(revnum.MustParse("1.5"), []VariantEntry{{RawName: "release", VariantID: "vp0009"}}, nil)
	bt.Add(revnum.MustParse("1.3"), []VariantEntry{{RawName: "release", VariantID: "vp0003"}}, nil)

	rec, ok := bt.Lookup("release")
	require.True(t, ok)
	assert.Equal(t, "1.5", rec.Rev.String())
	assert.Equal(t, "vp0009", rec.VariantID)
}

func TestBranchTableSkipsUnsanitizableWithWarning(t *testing.T) {
	bt := NewBranchTable()
	var warned []string
	bt.Add(revnum.MustParse("1.1"), []VariantEntry{{RawName: "master", VariantID: "vp0001"}},
		func(raw string, err error) { warned = append(warned, raw) })
	_, ok := bt.Lookup("master")
	assert.False(t, ok)
	assert.Equal(t, []string{"master"}, warned)
}
