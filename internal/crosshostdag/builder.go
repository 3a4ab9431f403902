package crosshostdag

import "github.com/ubuntu/device-scanner/internal/device"

// BuildFromHosts runs phases 1-3 of §4.6 over the cache's {host → tree}
// snapshot: it adds a Host node and the host's whole device tree for each
// host (phase 1, folded directly into the shared arena rather than a
// separate per-subgraph Dag — phase 2's index remapping falls out for
// free since AddNode already hands back a global index), then adds
// Shared edges across the whole arena (phase 3).
func BuildFromHosts(hosts map[string]device.Device) *Dag {
	g := New()
	for host, tree := range hosts {
		addHostSubgraph(g, host, tree)
	}
	addSharedEdges(g)
	return g
}

// addHostSubgraph adds host's Host node and its whole device tree,
// connecting Host as the Parent of every top-level SCSI device (§4.6
// phase 1 step 3).
func addHostSubgraph(g *Dag, host string, tree device.Device) {
	hostIdx := g.AddNode(device.Device{Type: device.TypeHost, HostName: host})
	for _, child := range tree.Children {
		addDeviceSubtree(g, hostIdx, child)
	}
}

// addDeviceSubtree adds d (without its Children, which are walked
// separately) under parent and recurses. The per-host Device tree was
// already built by C2's matching rules, so replaying those rules here
// would be redundant; folding the existing Children edges in as Parent
// edges produces the identical graph populate_parents would.
func addDeviceSubtree(g *Dag, parent NodeIndex, d device.Device) NodeIndex {
	flat := d
	flat.Children = nil
	idx := g.AddNode(flat)

	// A freshly-added node has no children of its own yet, so this can
	// never close a cycle; the error is structurally unreachable here.
	_ = g.AddParent(parent, idx)

	for _, child := range d.Children {
		addDeviceSubtree(g, idx, child)
	}
	return idx
}

// addSharedEdges partitions every node with a non-empty serial by its
// AsParent key and links every pair within a class (§4.6 phase 3).
// Serial-less nodes (Root, Host, VolumeGroup, MdRaid, LogicalVolume, and
// SCSI-layer nodes with no scsi serial) never participate: an empty serial
// is not a valid sharing key.
func addSharedEdges(g *Dag) {
	classes := make(map[device.AsParent][]NodeIndex)
	for i, d := range g.nodes {
		if d.Serial == "" {
			continue
		}
		key := d.Key()
		classes[key] = append(classes[key], NodeIndex(i))
	}

	for _, idxs := range classes {
		for i := 0; i < len(idxs); i++ {
			for j := i + 1; j < len(idxs); j++ {
				g.addShared(idxs[i], idxs[j])
			}
		}
	}
}
