package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAddWiresEdges(t *testing.T) {
	b := NewBuilder()
	b.Add(Node{ID: "1.1", Label: "1.1"})
	b.Add(Node{ID: "1.2", Label: "1.2", ParentID: "1.1"})
	b.Add(Node{ID: "1.2.1.1", Label: "1.2.1.1", ParentID: "1.2", SpawnedBranch: "release"})

	out := b.String()
	assert.Contains(t, out, "1.1")
	assert.Contains(t, out, "1.2")
	assert.Contains(t, out, "branch:release")
}

func TestBuilderWriteFileDotSource(t *testing.T) {
	b := NewBuilder()
	b.Add(Node{ID: "1.1", Label: "1.1"})

	dir := t.TempDir()
	path := filepath.Join(dir, "graph.dot")
	require.NoError(t, b.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1.1")
}
