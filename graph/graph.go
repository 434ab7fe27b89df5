// Package graph renders the branch DAG built up during export as a
// Graphviz diagram, purely as an optional diagnostic: nothing in this
// package affects the emitted fast-import stream.
package graph

import (
	"fmt"
	"os"
	"strings"

	"github.com/emicklei/dot"
	"github.com/goccy/go-graphviz"
)

// Node is one entry in the branch DAG: a commit on some branch,
// optionally spawned from a parent branch at a given revision.
type Node struct {
	ID            string
	Label         string
	ParentID      string // empty for a branch's first node
	SpawnedBranch string // non-empty when this node is where a new branch forked off
}

// Builder accumulates Nodes and renders them as a directed graph.
type Builder struct {
	graph   *dot.Graph
	dotByID map[string]dot.Node
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		graph:   dot.NewGraph(dot.Directed),
		dotByID: make(map[string]dot.Node),
	}
}

// Add records one node, wiring an edge from its parent if present,
// labeling the edge with the spawned branch name when this node is a
// branch point.
func (b *Builder) Add(n Node) {
	node := b.graph.Node(n.ID)
	node.Label(n.Label)
	b.dotByID[n.ID] = node

	if n.ParentID == "" {
		return
	}
	parent, ok := b.dotByID[n.ParentID]
	if !ok {
		return
	}
	edgeLabel := "next"
	if n.SpawnedBranch != "" {
		edgeLabel = fmt.Sprintf("branch:%s", n.SpawnedBranch)
	}
	b.graph.Edge(parent, node, edgeLabel)
}

// String returns the accumulated graph in Graphviz dot source form.
func (b *Builder) String() string {
	return b.graph.String()
}

// WriteFile renders the graph to path. A path ending in ".dot" (or
// any other/no recognized extension) writes raw dot source; ".png"
// or ".svg" renders through go-graphviz instead.
func (b *Builder) WriteFile(path string) error {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return b.renderFile(path, graphviz.PNG)
	case strings.HasSuffix(lower, ".svg"):
		return b.renderFile(path, graphviz.SVG)
	default:
		return os.WriteFile(path, []byte(b.String()), 0o644)
	}
}

func (b *Builder) renderFile(path string, format graphviz.Format) error {
	gv := graphviz.New()
	parsed, err := graphviz.ParseBytes([]byte(b.String()))
	if err != nil {
		return fmt.Errorf("graph: parsing dot source: %w", err)
	}
	if err := gv.RenderFilename(parsed, format, path); err != nil {
		return fmt.Errorf("graph: rendering %s: %w", path, err)
	}
	return nil
}
