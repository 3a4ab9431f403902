package crosshostdag

import (
	"fmt"
	"strings"

	"github.com/ubuntu/device-scanner/internal/device"
)

// DOT renders g as a Graphviz digraph for the aggregator's debug
// `GET /graphviz` endpoint (§4.7): Parent edges solid, Shared edges
// dashed.
func (g *Dag) DOT() string {
	var b strings.Builder
	b.WriteString("digraph device_graph {\n")
	for i, d := range g.nodes {
		fmt.Fprintf(&b, "  n%d [label=%q];\n", i, nodeLabel(d))
	}
	for _, e := range g.edges {
		style := "solid"
		if e.kind == Shared {
			style = "dashed"
		}
		fmt.Fprintf(&b, "  n%d -> n%d [style=%s];\n", e.from, e.to, style)
	}
	b.WriteString("}\n")
	return b.String()
}

func nodeLabel(d device.Device) string {
	switch d.Type {
	case device.TypeHost:
		return fmt.Sprintf("Host(%s)", d.HostName)
	case device.TypeZpool, device.TypeDataset, device.TypeVolumeGroup, device.TypeLogicalVolume:
		return fmt.Sprintf("%s(%s)", d.Type, d.Name)
	default:
		return fmt.Sprintf("%s(%s:%s)", d.Type, d.Major, d.Minor)
	}
}
