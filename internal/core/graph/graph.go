package graph

import (
	"fmt"
	"slices"

	"github.com/zeusync/statesync/internal/core/models"
)

type (
	NodeIndex uint32
	EdgeIndex uint32
)

const (
	NullNode NodeIndex = ^NodeIndex(0)
	NullEdge EdgeIndex = ^EdgeIndex(0)
)

type node struct {
	entity        models.Entity
	nonConnecting bool
	edges         []EdgeIndex
	alive         bool
}

type edge struct {
	entity models.Entity
	nodes  [2]NodeIndex
	alive  bool
}

// EntityGraph connects bodies (nodes) through constraints (edges). Slots of
// removed nodes and edges are reused. Non-connecting nodes, such as static
// bodies, never join two islands together.
type EntityGraph struct {
	nodes     []node
	edges     []edge
	freeNodes []NodeIndex
	freeEdges []EdgeIndex
	nodeCount int
	edgeCount int
}

func New() *EntityGraph { return &EntityGraph{} }

func (g *EntityGraph) InsertNode(e models.Entity, nonConnecting bool) NodeIndex {
	n := node{entity: e, nonConnecting: nonConnecting, alive: true}
	g.nodeCount++
	if k := len(g.freeNodes); k > 0 {
		idx := g.freeNodes[k-1]
		g.freeNodes = g.freeNodes[:k-1]
		g.nodes[idx] = n
		return idx
	}
	g.nodes = append(g.nodes, n)
	return NodeIndex(len(g.nodes) - 1)
}

func (g *EntityGraph) mustNode(idx NodeIndex) *node {
	if int(idx) >= len(g.nodes) || !g.nodes[idx].alive {
		panic(fmt.Sprintf("graph: invalid node %d", idx))
	}
	return &g.nodes[idx]
}

func (g *EntityGraph) mustEdge(idx EdgeIndex) *edge {
	if int(idx) >= len(g.edges) || !g.edges[idx].alive {
		panic(fmt.Sprintf("graph: invalid edge %d", idx))
	}
	return &g.edges[idx]
}

// InsertEdge links two existing nodes.
func (g *EntityGraph) InsertEdge(e models.Entity, n0, n1 NodeIndex) EdgeIndex {
	g.mustNode(n0)
	g.mustNode(n1)

	ed := edge{entity: e, nodes: [2]NodeIndex{n0, n1}, alive: true}
	var idx EdgeIndex
	if k := len(g.freeEdges); k > 0 {
		idx = g.freeEdges[k-1]
		g.freeEdges = g.freeEdges[:k-1]
		g.edges[idx] = ed
	} else {
		g.edges = append(g.edges, ed)
		idx = EdgeIndex(len(g.edges) - 1)
	}
	g.edgeCount++

	g.nodes[n0].edges = append(g.nodes[n0].edges, idx)
	if n1 != n0 {
		g.nodes[n1].edges = append(g.nodes[n1].edges, idx)
	}
	return idx
}

func (g *EntityGraph) RemoveEdge(idx EdgeIndex) {
	ed := g.mustEdge(idx)
	for _, n := range ed.nodes {
		adj := g.nodes[n].edges
		if i := slices.Index(adj, idx); i >= 0 {
			g.nodes[n].edges = slices.Delete(adj, i, i+1)
		}
	}
	*ed = edge{}
	g.freeEdges = append(g.freeEdges, idx)
	g.edgeCount--
}

// RemoveAllEdges removes every edge touching the node.
func (g *EntityGraph) RemoveAllEdges(idx NodeIndex) {
	n := g.mustNode(idx)
	for len(n.edges) > 0 {
		g.RemoveEdge(n.edges[len(n.edges)-1])
	}
}

// RemoveNode removes the node along with any edge still touching it.
func (g *EntityGraph) RemoveNode(idx NodeIndex) {
	g.RemoveAllEdges(idx)
	g.nodes[idx] = node{}
	g.freeNodes = append(g.freeNodes, idx)
	g.nodeCount--
}

// VisitEdges calls fn for each edge touching the node. fn must not modify
// the graph.
func (g *EntityGraph) VisitEdges(idx NodeIndex, fn func(EdgeIndex)) {
	for _, e := range slices.Clone(g.mustNode(idx).edges) {
		fn(e)
	}
}

func (g *EntityGraph) NodeEntity(idx NodeIndex) models.Entity { return g.mustNode(idx).entity }

func (g *EntityGraph) EdgeEntity(idx EdgeIndex) models.Entity { return g.mustEdge(idx).entity }

func (g *EntityGraph) EdgeNodes(idx EdgeIndex) [2]NodeIndex { return g.mustEdge(idx).nodes }

func (g *EntityGraph) NonConnecting(idx NodeIndex) bool { return g.mustNode(idx).nonConnecting }

func (g *EntityGraph) NodeCount() int { return g.nodeCount }

func (g *EntityGraph) EdgeCount() int { return g.edgeCount }

// ConnectedComponents groups connecting nodes reachable from each other.
// Non-connecting nodes appear in every island they touch but never bridge
// two islands; a non-connecting node without edges forms no island.
func (g *EntityGraph) ConnectedComponents() [][]models.Entity {
	visited := make([]bool, len(g.nodes))
	var islands [][]models.Entity

	for start := range g.nodes {
		n := &g.nodes[start]
		if !n.alive || n.nonConnecting || visited[start] {
			continue
		}

		var island []models.Entity
		seenResidents := make(map[NodeIndex]bool)
		stack := []NodeIndex{NodeIndex(start)}
		visited[start] = true

		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			island = append(island, g.nodes[cur].entity)

			for _, ei := range g.nodes[cur].edges {
				for _, other := range g.edges[ei].nodes {
					if other == cur {
						continue
					}
					if g.nodes[other].nonConnecting {
						if !seenResidents[other] {
							seenResidents[other] = true
							island = append(island, g.nodes[other].entity)
						}
						continue
					}
					if !visited[other] {
						visited[other] = true
						stack = append(stack, other)
					}
				}
			}
		}
		islands = append(islands, island)
	}
	return islands
}
