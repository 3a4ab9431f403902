package crosshostdag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/device-scanner/internal/crosshostdag"
	"github.com/ubuntu/device-scanner/internal/device"
)

func TestAddParentRejectsCycle(t *testing.T) {
	t.Parallel()

	g := crosshostdag.New()
	a := g.AddNode(device.Device{Type: device.TypeScsiDevice})
	b := g.AddNode(device.Device{Type: device.TypePartition})

	require.NoError(t, g.AddParent(a, b))
	err := g.AddParent(b, a)
	assert.Error(t, err)
}

// S1: two hosts share one SCSI LUN.
func TestSharedScsiLunAcrossTwoHosts(t *testing.T) {
	t.Parallel()

	hosts := map[string]device.Device{
		"h1": {Type: device.TypeRoot, Children: []device.Device{
			{Type: device.TypeScsiDevice, Major: "8", Minor: "0", Serial: "S1", Size: 100},
		}},
		"h2": {Type: device.TypeRoot, Children: []device.Device{
			{Type: device.TypeScsiDevice, Major: "8", Minor: "0", Serial: "S1", Size: 100},
		}},
	}

	g := crosshostdag.BuildFromHosts(hosts)
	records := crosshostdag.DeriveRecords(g, nil)

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "S1", rec.Serial)
	require.Len(t, rec.Hosts, 2)
	for _, dh := range rec.Hosts {
		assert.True(t, dh.IsActive)
	}
}

// S2: pool imported on one of two peers sharing a SCSI LUN.
func TestPoolImportedOnOnePeerYieldsOneActiveOneInactive(t *testing.T) {
	t.Parallel()

	hosts := map[string]device.Device{
		"h1": {Type: device.TypeRoot, Children: []device.Device{
			{Type: device.TypeScsiDevice, Major: "8", Minor: "0", Serial: "S1", Size: 100},
		}},
		"h2": {Type: device.TypeRoot, Children: []device.Device{
			{Type: device.TypeScsiDevice, Major: "8", Minor: "0", Serial: "S1", Size: 100, Children: []device.Device{
				{Type: device.TypeZpool, Name: "G", Serial: "G", Children: []device.Device{
					{Type: device.TypeDataset, Name: "G/ost0", Serial: "G"},
				}},
			}},
		}},
	}

	g := crosshostdag.BuildFromHosts(hosts)
	records := crosshostdag.DeriveRecords(g, nil)

	var datasetRecord *crosshostdag.Record
	for i := range records {
		if records[i].Type == device.TypeDataset {
			datasetRecord = &records[i]
		}
	}
	require.NotNil(t, datasetRecord)
	require.Len(t, datasetRecord.Hosts, 2)

	byHost := map[string]bool{}
	for _, dh := range datasetRecord.Hosts {
		byHost[dh.Host] = dh.IsActive
	}
	assert.Equal(t, map[string]bool{"h1": false, "h2": true}, byHost)
}

// S3: LV on VG on partition — only the LV is a mountable terminal.
func TestLogicalVolumeOnVolumeGroupOnPartitionSingleHost(t *testing.T) {
	t.Parallel()

	hosts := map[string]device.Device{
		"h1": {Type: device.TypeRoot, Children: []device.Device{
			{Type: device.TypeScsiDevice, Major: "8", Minor: "0", Serial: "S1", Size: 100, Children: []device.Device{
				{Type: device.TypePartition, Major: "8", Minor: "1", Serial: "S1p1", Size: 90, Children: []device.Device{
					{Type: device.TypeVolumeGroup, Name: "vg1", Children: []device.Device{
						{Type: device.TypeLogicalVolume, Name: "lv1", Size: 50},
					}},
				}},
			}},
		}},
	}

	g := crosshostdag.BuildFromHosts(hosts)
	records := crosshostdag.DeriveRecords(g, nil)

	var types []device.Type
	for _, r := range records {
		types = append(types, r.Type)
	}
	assert.Contains(t, types, device.TypeLogicalVolume)
	assert.NotContains(t, types, device.TypeVolumeGroup, "VolumeGroup is a forbidden leaf")

	for _, r := range records {
		if r.Type != device.TypeLogicalVolume {
			continue
		}
		require.Len(t, r.Hosts, 1)
		assert.Equal(t, "h1", r.Hosts[0].Host)
		assert.True(t, r.Hosts[0].IsActive)
	}
}

func TestDeriveRecordsSkipsEmptyHostSetViaCallback(t *testing.T) {
	t.Parallel()

	g := crosshostdag.New()
	// a terminal mountable node with a Parent but the parent is not a Host
	// (an orphaned subtree fragment), so neither active nor distinct can
	// resolve any host.
	parent := g.AddNode(device.Device{Type: device.TypeScsiDevice})
	leaf := g.AddNode(device.Device{Type: device.TypePartition, Serial: "orphan"})
	require.NoError(t, g.AddParent(parent, leaf))

	var skipped []device.Device
	records := crosshostdag.DeriveRecords(g, func(d device.Device) { skipped = append(skipped, d) })

	assert.Empty(t, records)
	require.Len(t, skipped, 1)
	assert.Equal(t, "orphan", skipped[0].Serial)
}
