package revnum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAndString(t *testing.T) {
	n, err := Parse("1.4.2.1")
	assert.NoError(t, err)
	assert.Equal(t, "1.4.2.1", n.String())

	_, err = Parse("1.4.2")
	assert.Error(t, err, "odd-length should be rejected")

	_, err = Parse("1.x")
	assert.Error(t, err)

	tip, err := Parse("tip")
	assert.NoError(t, err)
	assert.Equal(t, "tip", tip.String())
	assert.True(t, tip.IsTip())
}

func TestIsTrunk(t *testing.T) {
	assert.True(t, MustParse("1.4").IsTrunk())
	assert.False(t, MustParse("1.4.1.2").IsTrunk())
}

func TestCompareEqual(t *testing.T) {
	cases := []struct{ a, b string }{
		{"1.4", "1.4"},
		{"1.4.1.2", "1.4.1.2"},
	}
	for _, c := range cases {
		a, b := MustParse(c.a), MustParse(c.b)
		assert.Equal(t, 0, Compare(a, b))
		assert.True(t, Equal(a, b), "compare(a,b)==0 <=> equal(a,b)")
	}
	assert.NotEqual(t, 0, Compare(MustParse("1.4"), MustParse("1.5")))
	assert.False(t, Equal(MustParse("1.4"), MustParse("1.5")))
}

func TestCompareBranchRootBeforeCommits(t *testing.T) {
	// Branch root 1.4.1 (extended: 1.4.1.0) sorts before first commit on it.
	root := MustParse("1.4.1.0")
	first := MustParse("1.4.1.1")
	assert.Equal(t, -1, Compare(root, first))
}

func TestIncrementDecrementRoundTrip(t *testing.T) {
	for _, s := range []string{"1.1", "1.4", "1.4.1.7"} {
		n := MustParse(s)
		inc := Increment(n)
		dec, ok := Decrement(inc)
		assert.True(t, ok)
		assert.True(t, Equal(n, dec), "decrement(increment(n)) == n for %s", s)
	}
}

func TestDecrementPopsBranchSegment(t *testing.T) {
	dec, ok := Decrement(MustParse("1.4.1.1"))
	assert.True(t, ok)
	assert.Equal(t, "1.4", dec.String())
}

func TestDecrementTrunkFloor(t *testing.T) {
	_, ok := Decrement(MustParse("1.1"))
	assert.False(t, ok, "there is nothing before 1.1")
}

func TestPartialMatch(t *testing.T) {
	n := MustParse("1.4.1.7")
	assert.True(t, PartialMatch(n, n), "partial_match(n,n) == true")
	assert.True(t, PartialMatch(n, MustParse("1.4")))
	assert.False(t, PartialMatch(MustParse("1.4"), n))
}

func TestSameBranch(t *testing.T) {
	assert.True(t, SameBranch(MustParse("1.4.1.2"), MustParse("1.4.1.9")))
	assert.False(t, SameBranch(MustParse("1.4.1.2"), MustParse("1.4.2.1")))
	// N.M.0.P quirk: the trailing-zero branch-root notation should
	// compare equal to the real branch index that follows it.
	assert.True(t, SameBranch(MustParse("1.4.0.1"), MustParse("1.4.1.1")))
}

func TestIsAncestor(t *testing.T) {
	assert.True(t, IsAncestor(MustParse("1.4"), MustParse("1.4.1.1")))
	assert.True(t, IsAncestor(MustParse("1.4.1.1"), MustParse("1.4.1.2")))
	assert.False(t, IsAncestor(MustParse("1.4.1.2"), MustParse("1.4.1.1")))
	assert.False(t, IsAncestor(MustParse("1.4"), MustParse("1.4")))
}
