package crosshostdag

import "github.com/ubuntu/device-scanner/internal/device"

// DeviceHost is one row of a Record's host set (§4.6 phase 4): the hosts
// that can mount a device, and whether each currently does.
type DeviceHost struct {
	Paths     []string
	Host      string
	Type      device.Type
	Serial    string
	MountPath string
	IsActive  bool
}

// Record pairs a de-duplicated device identity with the hosts that can
// mount it.
type Record struct {
	Size   int64
	Type   device.Type
	Serial string
	FsType string
	Hosts  []DeviceHost
}

// DeriveRecords walks every terminal mountable leaf in g and emits one
// Record per leaf, per §4.6 phase 4. Leaves with the same non-empty
// AsParent key (the same device seen from several hosts) yield a single
// Record, built from the first such leaf in arena order; leaves with an
// empty serial are never merged. A leaf with an empty active and
// distinct host set violates invariant 5 and is elided; onSkip, if
// non-nil, is called with the offending device so the caller can log it.
func DeriveRecords(g *Dag, onSkip func(device.Device)) []Record {
	var records []Record
	emitted := make(map[device.AsParent]bool)
	for i := 0; i < g.NodeCount(); i++ {
		idx := NodeIndex(i)
		d := g.Node(idx)

		if !d.Mountable() {
			continue
		}
		if len(g.Children(idx)) != 0 {
			continue // not terminal
		}
		if len(g.Parents(idx)) == 0 {
			continue // unattached, e.g. a malformed or partial snapshot
		}

		active := g.activeHosts(idx)
		distinct := g.distinctHosts(idx)
		if isDirectScsiLayer(d.Type) {
			// §4.6: a directly-reachable SCSI/Mpath/Partition has no
			// inactive siblings — every host that can see the disk sees it
			// now, unlike a pool a single host imports at a time.
			active = distinct
		}
		if len(active) == 0 && len(distinct) == 0 {
			if onSkip != nil {
				onSkip(d)
			}
			continue
		}
		if d.Serial != "" {
			if emitted[d.Key()] {
				continue
			}
			emitted[d.Key()] = true
		}

		var hosts []DeviceHost
		for h := range active {
			hosts = append(hosts, DeviceHost{
				Paths: d.Paths, Host: h, Type: d.Type, Serial: d.Serial,
				MountPath: d.MountPath, IsActive: true,
			})
		}
		for h := range distinct {
			if active[h] {
				continue
			}
			hosts = append(hosts, DeviceHost{
				Paths: d.Paths, Host: h, Type: d.Type, Serial: d.Serial,
				IsActive: false,
			})
		}

		records = append(records, Record{
			Size: d.Size, Type: d.Type, Serial: d.Serial, FsType: d.FsType, Hosts: hosts,
		})
	}
	return records
}

// isDirectScsiLayer reports whether t is one of the device layers §4.6
// treats as always-active once reachable: a physical disk (or its
// partition, or a multipath wrapper over one) is usable from every host
// that can see it, unlike a pool only one host imports at a time.
func isDirectScsiLayer(t device.Type) bool {
	switch t {
	case device.TypeScsiDevice, device.TypeMpath, device.TypePartition:
		return true
	default:
		return false
	}
}

// activeHosts walks Parent edges upward from idx and collects every Host
// node reached (§4.6 phase 4 "Active hosts").
func (g *Dag) activeHosts(idx NodeIndex) map[string]bool {
	out := make(map[string]bool)
	visited := make(map[NodeIndex]bool)
	var walk func(NodeIndex)
	walk = func(n NodeIndex) {
		if visited[n] {
			return
		}
		visited[n] = true
		if g.nodes[n].Type == device.TypeHost {
			out[g.nodes[n].HostName] = true
		}
		for _, p := range g.parents[n] {
			walk(p)
		}
	}
	walk(idx)
	return out
}

// scsiAncestorsOrSelf returns the SCSI-layer nodes the "distinct hosts"
// intersection is computed over: idx itself if it is already a
// ScsiDevice, else every ScsiDevice reachable by walking Parent edges
// upward, stopping the walk at each one found (§4.6 phase 4).
func (g *Dag) scsiAncestorsOrSelf(idx NodeIndex) []NodeIndex {
	if g.nodes[idx].Type == device.TypeScsiDevice {
		return []NodeIndex{idx}
	}

	var out []NodeIndex
	visited := make(map[NodeIndex]bool)
	var walk func(NodeIndex)
	walk = func(n NodeIndex) {
		if visited[n] {
			return
		}
		visited[n] = true
		if g.nodes[n].Type == device.TypeScsiDevice {
			out = append(out, n)
			return
		}
		for _, p := range g.parents[n] {
			walk(p)
		}
	}
	for _, p := range g.parents[idx] {
		walk(p)
	}
	return out
}

// distinctHosts computes the set of hosts that could mount idx: the
// intersection, over every SCSI ancestor s, of the hosts reachable from s
// or one of s's Shared peers (§4.6 phase 4).
func (g *Dag) distinctHosts(idx NodeIndex) map[string]bool {
	ancestors := g.scsiAncestorsOrSelf(idx)
	if len(ancestors) == 0 {
		return g.activeHosts(idx)
	}

	var result map[string]bool
	for _, s := range ancestors {
		hostsForS := make(map[string]bool)
		for h := range g.activeHosts(s) {
			hostsForS[h] = true
		}
		for _, peer := range g.shared[s] {
			for h := range g.activeHosts(peer) {
				hostsForS[h] = true
			}
		}
		if result == nil {
			result = hostsForS
			continue
		}
		result = intersectHostSets(result, hostsForS)
	}
	return result
}

func intersectHostSets(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for h := range a {
		if b[h] {
			out[h] = true
		}
	}
	return out
}
