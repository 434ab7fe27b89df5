package branchname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeWhitespaceAndDrops(t *testing.T) {
	got, err := Sanitize(`release 1.0*beta?`)
	assert.NoError(t, err)
	assert.Equal(t, "release_1.0beta", got)
}

func TestSanitizePercentHexASCII(t *testing.T) {
	got, err := Sanitize("release%2Fv2")
	assert.NoError(t, err)
	assert.Equal(t, "release/v2", got)
}

func TestSanitizeNonASCIIEscapePassesThrough(t *testing.T) {
	got, err := Sanitize("release%FFtag")
	assert.NoError(t, err)
	assert.Equal(t, "release%FFtag", got)
}

func TestSanitizeTrailingDot(t *testing.T) {
	got, err := Sanitize("v1.2.")
	assert.NoError(t, err)
	assert.Equal(t, "v1.2_", got)
}

func TestSanitizeEmptyIsError(t *testing.T) {
	_, err := Sanitize("***")
	assert.Error(t, err)
}

func TestSanitizeMasterIsReserved(t *testing.T) {
	_, err := Sanitize("master")
	assert.Error(t, err)
}
