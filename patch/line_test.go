package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLineInsertAndDelete(t *testing.T) {
	base := []byte("one\ntwo\nthree\n")
	// delete line 2 ("two"), then insert a new line after line 3.
	script := []byte("d2 1\na3 1\nfour\n")
	got, err := ApplyLine(base, script)
	require.NoError(t, err)
	assert.Equal(t, "one\nthree\nfour\n", string(got))
}

func TestApplyLineInsertAtStart(t *testing.T) {
	base := []byte("b\nc\n")
	script := []byte("a0 1\na\n")
	got, err := ApplyLine(base, script)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(got))
}

func TestApplyLineDeletesReferenceOriginalNumbering(t *testing.T) {
	// both deletes address the pre-patch numbering, not the running
	// position after the first delete has removed a line.
	base := []byte("a\nb\nc\nd\n")
	script := []byte("d1 1\nd3 1\n")
	got, err := ApplyLine(base, script)
	require.NoError(t, err)
	assert.Equal(t, "b\nd\n", string(got))
}

func TestApplyLineMissingTrailingNewlineRoundTrips(t *testing.T) {
	base := []byte("first\nlast")
	script := []byte("a1 1\nmiddle\n")
	got, err := ApplyLine(base, script)
	require.NoError(t, err)
	assert.Equal(t, "first\nmiddle\nlast", string(got))
}

func TestApplyLineCRLFNormalized(t *testing.T) {
	base := []byte("one\r\ntwo\r\n")
	script := []byte("d1 1\r\n")
	got, err := ApplyLine(base, script)
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(got))
}

func TestApplyLineUnknownLineIsBadPatch(t *testing.T) {
	base := []byte("only\n")
	script := []byte("d5 1\n")
	_, err := ApplyLine(base, script)
	assert.Error(t, err)
}

func TestApplyLineUnknownCommand(t *testing.T) {
	base := []byte("only\n")
	script := []byte("x1 1\n")
	_, err := ApplyLine(base, script)
	assert.Error(t, err)
}
