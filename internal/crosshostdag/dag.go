// Package crosshostdag implements the aggregator's cross-host DAG builder
// (§4.6): it merges every cached per-host Device tree into one arena-based
// graph, adds Shared edges between nodes that represent the same physical
// device on different hosts, and derives the (device, hosts, active) record
// set. Per §9's design note, nodes live in a flat slice indexed by
// NodeIndex and edges are (from, to, Edge) triples — no pointer graph.
package crosshostdag

import (
	"fmt"

	"github.com/ubuntu/device-scanner/internal/deverr"
	"github.com/ubuntu/device-scanner/internal/device"
)

// NodeIndex addresses a node in a Dag's arena.
type NodeIndex int

// EdgeKind discriminates a Dag edge.
type EdgeKind int

// Edge kinds (§3 DeviceGraph).
const (
	// Parent: from is the parent of to (to is layered on from).
	Parent EdgeKind = iota
	// Shared: from and to represent the same physical device on
	// different hosts. Stored once per unordered pair.
	Shared
)

type edge struct {
	from, to NodeIndex
	kind     EdgeKind
}

// Dag is the arena-based cross-host device graph §9 calls for.
type Dag struct {
	nodes []device.Device
	edges []edge

	// parents/children index Parent edges for upward/downward walks.
	parents  map[NodeIndex][]NodeIndex
	children map[NodeIndex][]NodeIndex
	// shared indexes Shared edges: peer set per node, symmetric.
	shared map[NodeIndex][]NodeIndex
}

// New returns an empty Dag.
func New() *Dag {
	return &Dag{
		parents:  make(map[NodeIndex][]NodeIndex),
		children: make(map[NodeIndex][]NodeIndex),
		shared:   make(map[NodeIndex][]NodeIndex),
	}
}

// AddNode appends d to the arena and returns its index.
func (g *Dag) AddNode(d device.Device) NodeIndex {
	g.nodes = append(g.nodes, d)
	return NodeIndex(len(g.nodes) - 1)
}

// Node returns the device stored at idx.
func (g *Dag) Node(idx NodeIndex) device.Device {
	return g.nodes[idx]
}

// NodeCount returns the number of nodes in the arena.
func (g *Dag) NodeCount() int {
	return len(g.nodes)
}

// AddParent adds a Parent edge from -> to. It reports ErrGraphCycle
// (without mutating the graph) if to is already a Parent-ancestor of
// from, since that would close a cycle (§3 invariant 3).
func (g *Dag) AddParent(from, to NodeIndex) error {
	if from == to || g.isAncestor(to, from) {
		return fmt.Errorf("%w: %d -> %d", deverr.ErrGraphCycle, from, to)
	}
	g.edges = append(g.edges, edge{from: from, to: to, kind: Parent})
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
	return nil
}

// isAncestor reports whether ancestor can reach node by walking Parent
// edges downward (child links) from ancestor.
func (g *Dag) isAncestor(ancestor, node NodeIndex) bool {
	if ancestor == node {
		return true
	}
	for _, c := range g.children[ancestor] {
		if g.isAncestor(c, node) {
			return true
		}
	}
	return false
}

// addShared adds a symmetric Shared edge between a and b, once per
// unordered pair.
func (g *Dag) addShared(a, b NodeIndex) {
	if a == b || g.hasShared(a, b) {
		return
	}
	g.edges = append(g.edges, edge{from: a, to: b, kind: Shared})
	g.shared[a] = append(g.shared[a], b)
	g.shared[b] = append(g.shared[b], a)
}

func (g *Dag) hasShared(a, b NodeIndex) bool {
	for _, p := range g.shared[a] {
		if p == b {
			return true
		}
	}
	return false
}

// Parents returns idx's direct Parent-edge parents.
func (g *Dag) Parents(idx NodeIndex) []NodeIndex {
	return g.parents[idx]
}

// Children returns idx's direct Parent-edge children.
func (g *Dag) Children(idx NodeIndex) []NodeIndex {
	return g.children[idx]
}

// SharedPeers returns the nodes idx shares a Shared edge with.
func (g *Dag) SharedPeers(idx NodeIndex) []NodeIndex {
	return g.shared[idx]
}
