package device_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/device-scanner/internal/deverr"
	"github.com/ubuntu/device-scanner/internal/device"
	"github.com/ubuntu/device-scanner/internal/state"
	"github.com/ubuntu/device-scanner/internal/testutils"
)

// diskFixture mirrors the shape of testdata/*.yaml: a single disk's
// identifying udev attributes, loaded with testutils.LoadYAML the way the
// teacher's zfs tests load pool fixtures.
type diskFixture struct {
	Devpath string   `yaml:"devpath"`
	Major   string   `yaml:"major"`
	Minor   string   `yaml:"minor"`
	Paths   []string `yaml:"paths"`
	Size    int64    `yaml:"size"`
	Serial  string   `yaml:"serial"`
}

func int64p(v int64) *int64 { return &v }
func strp(v string) *string { return &v }
func boolp(v bool) *bool    { return &v }

func TestBuildFiltersUnusableEvents(t *testing.T) {
	t.Parallel()

	s := state.New()
	s.UEvents["/devices/sda"] = state.UEvent{Devpath: "/devices/sda", Size: int64p(0)}
	s.UEvents["/devices/sdb"] = state.UEvent{Devpath: "/devices/sdb", Size: int64p(100), ReadOnly: boolp(true)}
	s.UEvents["/devices/sdc"] = state.UEvent{Devpath: "/devices/sdc", Size: int64p(100), BiosBoot: boolp(true)}

	root, errs := device.Build(s)
	assert.Empty(t, errs)
	assert.Empty(t, root.Children)
}

func TestBuildScsiDeviceWithMount(t *testing.T) {
	t.Parallel()

	s := state.New()
	s.UEvents["/devices/sda"] = state.UEvent{
		Devpath: "/devices/sda", Major: "8", Minor: "0",
		Paths: []string{"/dev/sda"}, Size: int64p(1000), FsType: strp("ext2"),
		Scsi83: strp("S1"),
	}
	s.Mounts[state.NewMount("/mnt", "/dev/sda", "ext4", "rw")] = struct{}{}

	root, errs := device.Build(s)
	require.Empty(t, errs)
	require.Len(t, root.Children, 1)

	scsi := root.Children[0]
	assert.Equal(t, device.TypeScsiDevice, scsi.Type)
	assert.Equal(t, "S1", scsi.Serial)
	assert.Equal(t, "ext4", scsi.FsType)
	assert.Equal(t, "/mnt", scsi.MountPath)
}

func TestBuildPartitionAttachesToParent(t *testing.T) {
	t.Parallel()

	s := state.New()
	s.UEvents["/devices/sda"] = state.UEvent{
		Devpath: "/devices/sda", Major: "8", Minor: "0",
		Paths: []string{"/dev/sda"}, Size: int64p(1000),
	}
	s.UEvents["/devices/sda1"] = state.UEvent{
		Devpath: "/devices/sda1", Major: "8", Minor: "1",
		Paths: []string{"/dev/sda1"}, Size: int64p(500),
		PartEntryMM: strp("8:0"),
	}

	root, errs := device.Build(s)
	require.Empty(t, errs)
	require.Len(t, root.Children, 1)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, device.TypePartition, root.Children[0].Children[0].Type)
}

func TestBuildLogicalVolumeOnVolumeGroupOnPartition(t *testing.T) {
	// S3: ScsiDevice(S1) -> Partition(S1p1) -> VolumeGroup(vg1) -> LogicalVolume(lv1)
	t.Parallel()

	s := state.New()
	s.UEvents["/devices/sda"] = state.UEvent{
		Devpath: "/devices/sda", Major: "8", Minor: "0",
		Paths: []string{"/dev/sda"}, Size: int64p(1000), Scsi83: strp("S1"),
	}
	s.UEvents["/devices/sda1"] = state.UEvent{
		Devpath: "/devices/sda1", Major: "8", Minor: "1",
		Paths: []string{"/dev/sda1"}, Size: int64p(500),
		PartEntryMM: strp("8:0"),
	}
	s.UEvents["/devices/dm-0"] = state.UEvent{
		Devpath: "/devices/dm-0", Major: "253", Minor: "0",
		Paths: []string{"/dev/vg1/lv1"}, Size: int64p(300),
		VGUUID: strp("vg1"), LVUUID: strp("lv1-uuid"), DMLVName: strp("lv1"),
		DMSlaveMMs: []string{"8:1"},
	}

	root, errs := device.Build(s)
	require.Empty(t, errs)
	require.Len(t, root.Children, 1)

	scsi := root.Children[0]
	require.Len(t, scsi.Children, 1)
	partition := scsi.Children[0]
	assert.Equal(t, device.TypePartition, partition.Type)
	require.Len(t, partition.Children, 1)

	vg := partition.Children[0]
	assert.Equal(t, device.TypeVolumeGroup, vg.Type)
	require.Len(t, vg.Children, 1)
	assert.Equal(t, device.TypeLogicalVolume, vg.Children[0].Type)
	assert.Equal(t, "lv1", vg.Children[0].Name)
}

func TestBuildZpoolAttachesByVdevPathIntersection(t *testing.T) {
	t.Parallel()

	s := state.New()
	s.UEvents["/devices/sda"] = state.UEvent{
		Devpath: "/devices/sda", Major: "8", Minor: "0",
		Paths: []string{"/dev/sda"}, Size: int64p(1000),
	}
	s.Pools[42] = state.Pool{
		GUID: 42, Name: "tank",
		VdevTree: state.Vdev{Kind: state.VdevRoot, Children: []state.Vdev{
			{Kind: state.VdevDisk, Path: "/dev/sda"},
		}},
		Datasets: []state.Dataset{{PoolGUID: 42, Name: "tank/data"}},
	}

	root, errs := device.Build(s)
	require.Empty(t, errs)
	require.Len(t, root.Children, 1)
	require.Len(t, root.Children[0].Children, 1)

	zpool := root.Children[0].Children[0]
	assert.Equal(t, device.TypeZpool, zpool.Type)
	assert.Equal(t, "0x000000000000002A", zpool.Serial)
	require.Len(t, zpool.Children, 1)
	assert.Equal(t, device.TypeDataset, zpool.Children[0].Type)
}

func TestBuildMissingFieldIsSkippedNotFatal(t *testing.T) {
	t.Parallel()

	s := state.New()
	s.UEvents["/devices/sda"] = state.UEvent{Devpath: "/devices/sda", Major: "8", Minor: "0"} // no Size
	s.UEvents["/devices/sdb"] = state.UEvent{
		Devpath: "/devices/sdb", Major: "8", Minor: "16",
		Paths: []string{"/dev/sdb"}, Size: int64p(1000),
	}

	root, errs := device.Build(s)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], deverr.ErrMissingField))
	require.Len(t, root.Children, 1)
}

func TestBuildProducesExactTreeForSingleScsiDevice(t *testing.T) {
	t.Parallel()

	s := state.New()
	s.UEvents["/devices/sda"] = state.UEvent{
		Devpath: "/devices/sda", Major: "8", Minor: "0",
		Paths: []string{"/dev/sda"}, Size: int64p(1000), Scsi83: strp("S1"),
	}

	root, errs := device.Build(s)
	require.Empty(t, errs)

	want := device.Device{Type: device.TypeRoot, Children: []device.Device{
		{Type: device.TypeScsiDevice, Major: "8", Minor: "0", Paths: []string{"/dev/sda"}, Serial: "S1", Size: 1000},
	}}
	if diff := cmp.Diff(want, root); diff != "" {
		t.Errorf("built tree differs from expected (-want +got):\n%s", diff)
	}
}

func TestBuildFromYAMLFixtureProducesScsiDevice(t *testing.T) {
	t.Parallel()

	var fixture diskFixture
	testutils.LoadYAML(t, "testdata/single_disk.yaml", &fixture)

	s := state.New()
	s.UEvents[fixture.Devpath] = state.UEvent{
		Devpath: fixture.Devpath,
		Major:   fixture.Major,
		Minor:   fixture.Minor,
		Paths:   fixture.Paths,
		Size:    int64p(fixture.Size),
		Scsi83:  strp(fixture.Serial),
	}

	root, errs := device.Build(s)
	require.Empty(t, errs)
	require.Len(t, root.Children, 1)

	scsi := root.Children[0]
	assert.Equal(t, device.TypeScsiDevice, scsi.Type)
	assert.Equal(t, fixture.Major, scsi.Major)
	assert.Equal(t, fixture.Minor, scsi.Minor)
	assert.Equal(t, fixture.Paths, scsi.Paths)
	assert.Equal(t, fixture.Serial, scsi.Serial)
	assert.EqualValues(t, fixture.Size, scsi.Size)
}

func TestDeviceKeyAndMountable(t *testing.T) {
	t.Parallel()

	scsi := device.Device{Type: device.TypeScsiDevice, Serial: "S1"}
	other := device.Device{Type: device.TypeScsiDevice, Serial: "S1"}
	different := device.Device{Type: device.TypeScsiDevice, Serial: "S2"}

	assert.Equal(t, scsi.Key(), other.Key())
	assert.NotEqual(t, scsi.Key(), different.Key())
	assert.True(t, scsi.Mountable())

	vg := device.Device{Type: device.TypeVolumeGroup}
	assert.False(t, vg.Mountable())
	host := device.Device{Type: device.TypeHost}
	assert.False(t, host.Mountable())
}
