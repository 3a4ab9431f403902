package device

import (
	"fmt"

	"github.com/ubuntu/device-scanner/internal/deverr"
	"github.com/ubuntu/device-scanner/internal/state"
)

// builder holds the bucketed, read-only view of a State that one Build
// call walks; it is never reused across calls.
type builder struct {
	dm        []state.UEvent // pure-LVM logical volumes (lv_uuid+vg_uuid+dm_lv_name)
	md        []state.UEvent
	mpath     []state.UEvent
	partition []state.UEvent
	rest      []state.UEvent
	pools     map[uint64]state.Pool
	mounts    []state.Mount

	errs []error
}

// Build runs the §4.2 graph-construction algorithm over s and returns a
// Root device with every reachable child populated. Per-device errors
// (MissingField) are collected rather than aborting the build; the
// offending device is skipped and the rest of the graph is still produced.
func Build(s state.State) (Device, []error) {
	b := &builder{pools: s.Pools, mounts: s.MountSet()}
	for _, ev := range s.UEvents {
		if !ev.KeepUsable() {
			continue
		}
		switch {
		case ev.IsDM():
			b.dm = append(b.dm, ev)
		case ev.IsMdRaid():
			b.md = append(b.md, ev)
		case ev.IsMultipath():
			b.mpath = append(b.mpath, ev)
		case ev.IsPartition():
			b.partition = append(b.partition, ev)
		default:
			b.rest = append(b.rest, ev)
		}
	}

	root := Device{Type: TypeRoot}
	for _, ev := range b.rest {
		d, err := b.scsiDevice(ev)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		root.Children = append(root.Children, d)
	}
	return root, b.errs
}

func mmKey(major, minor string) string {
	return major + ":" + minor
}

func serialOf(ev state.UEvent) string {
	if ev.Scsi83 != nil && *ev.Scsi83 != "" {
		return *ev.Scsi83
	}
	if ev.Scsi80 != nil && *ev.Scsi80 != "" {
		return *ev.Scsi80
	}
	return ""
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func containsStr(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if containsStr(b, x) {
			return true
		}
	}
	return false
}

// applyMount adopts the filesystem type and target of the first mount in
// State.mounts whose source equals one of paths (§4.2 "filesystem type and
// mount point ... derived from State.mounts"). Absent a match it falls
// back to fallbackFsType and leaves MountPath empty.
func (b *builder) applyMount(d *Device, paths []string, fallbackFsType string) {
	for _, m := range b.mounts {
		if containsStr(paths, m.Source) {
			d.FsType = m.FsType
			d.MountPath = m.Target
			return
		}
	}
	d.FsType = fallbackFsType
}

func (b *builder) scsiDevice(ev state.UEvent) (Device, error) {
	if ev.Size == nil {
		return Device{}, fmt.Errorf("%w: scsi device %s missing size", deverr.ErrMissingField, ev.Devpath)
	}
	d := Device{
		Type:   TypeScsiDevice,
		Major:  ev.Major,
		Minor:  ev.Minor,
		Paths:  ev.Paths,
		Serial: serialOf(ev),
		Size:   *ev.Size,
	}
	mm := mmKey(ev.Major, ev.Minor)
	d.Children = append(d.Children, b.partitionsOf(mm)...)
	d.Children = append(d.Children, b.mpathsOf(mm)...)
	d.Children = append(d.Children, b.volumeGroupsOf(mm)...)
	d.Children = append(d.Children, b.mdraidsOf(ev.Paths)...)
	d.Children = append(d.Children, b.zpoolsOf(ev.Paths)...)
	b.applyMount(&d, ev.Paths, derefStr(ev.FsType))
	return d, nil
}

// partitionsOf returns every partition bucket event whose part_entry_mm
// names mm (the caller's own major:minor), built into Partition nodes.
func (b *builder) partitionsOf(mm string) []Device {
	var out []Device
	for _, ev := range b.partition {
		if ev.PartEntryMM == nil || *ev.PartEntryMM != mm {
			continue
		}
		d, err := b.partition2(ev)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		out = append(out, d)
	}
	return out
}

// partition2 builds a Partition node. Its children omit Mpath: the
// Mpath-under-Partition pass is disabled (§4.2).
func (b *builder) partition2(ev state.UEvent) (Device, error) {
	if ev.Size == nil {
		return Device{}, fmt.Errorf("%w: partition %s missing size", deverr.ErrMissingField, ev.Devpath)
	}
	d := Device{
		Type:   TypePartition,
		Major:  ev.Major,
		Minor:  ev.Minor,
		Paths:  ev.Paths,
		Serial: serialOf(ev),
		Size:   *ev.Size,
	}
	mm := mmKey(ev.Major, ev.Minor)
	d.Children = append(d.Children, b.volumeGroupsOf(mm)...)
	d.Children = append(d.Children, b.mdraidsOf(ev.Paths)...)
	d.Children = append(d.Children, b.zpoolsOf(ev.Paths)...)
	b.applyMount(&d, ev.Paths, derefStr(ev.FsType))
	return d, nil
}

// mpathsOf returns every mpath bucket event whose dm_slave_mms names mm,
// built into Mpath nodes.
func (b *builder) mpathsOf(mm string) []Device {
	var out []Device
	for _, ev := range b.mpath {
		if !containsStr(ev.DMSlaveMMs, mm) {
			continue
		}
		d, err := b.mpathNode(ev)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		out = append(out, d)
	}
	return out
}

func (b *builder) mpathNode(ev state.UEvent) (Device, error) {
	if ev.Size == nil {
		return Device{}, fmt.Errorf("%w: mpath %s missing size", deverr.ErrMissingField, ev.Devpath)
	}
	d := Device{
		Type:   TypeMpath,
		Major:  ev.Major,
		Minor:  ev.Minor,
		Paths:  ev.Paths,
		Serial: serialOf(ev),
		Size:   *ev.Size,
	}
	mm := mmKey(ev.Major, ev.Minor)
	d.Children = append(d.Children, b.partitionsOf(mm)...)
	d.Children = append(d.Children, b.volumeGroupsOf(mm)...)
	d.Children = append(d.Children, b.mdraidsOf(ev.Paths)...)
	d.Children = append(d.Children, b.zpoolsOf(ev.Paths)...)
	b.applyMount(&d, ev.Paths, derefStr(ev.FsType))
	return d, nil
}

// mdraidsOf returns every md bucket event whose member device list
// intersects parentPaths, built into MdRaid nodes.
func (b *builder) mdraidsOf(parentPaths []string) []Device {
	var out []Device
	for _, ev := range b.md {
		if !intersects(ev.MDDevs, parentPaths) {
			continue
		}
		d, err := b.mdRaid(ev)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		out = append(out, d)
	}
	return out
}

func (b *builder) mdRaid(ev state.UEvent) (Device, error) {
	if ev.Size == nil {
		return Device{}, fmt.Errorf("%w: md raid %s missing size", deverr.ErrMissingField, ev.Devpath)
	}
	d := Device{
		Type:  TypeMdRaid,
		Major: ev.Major,
		Minor: ev.Minor,
		Paths: ev.Paths,
		Size:  *ev.Size,
	}
	mm := mmKey(ev.Major, ev.Minor)
	d.Children = append(d.Children, b.partitionsOf(mm)...)
	d.Children = append(d.Children, b.volumeGroupsOf(mm)...)
	d.Children = append(d.Children, b.mdraidsOf(ev.Paths)...)
	d.Children = append(d.Children, b.zpoolsOf(ev.Paths)...)
	b.applyMount(&d, ev.Paths, derefStr(ev.FsType))
	return d, nil
}

// volumeGroupsOf returns one VolumeGroup node per distinct vg_uuid among
// dm-bucket events whose dm_slave_mms names mm; the VolumeGroup's own
// children are every logical volume sharing that vg_uuid, not only the
// ones attaching at mm (a VG may span more than one physical parent).
func (b *builder) volumeGroupsOf(mm string) []Device {
	seen := make(map[string]bool)
	var out []Device
	for _, ev := range b.dm {
		if ev.VGUUID == nil || !containsStr(ev.DMSlaveMMs, mm) {
			continue
		}
		vg := *ev.VGUUID
		if seen[vg] {
			continue
		}
		seen[vg] = true
		out = append(out, b.volumeGroup(vg))
	}
	return out
}

func (b *builder) volumeGroup(vgUUID string) Device {
	d := Device{Type: TypeVolumeGroup, VGUUID: vgUUID, Name: vgUUID}
	for _, ev := range b.dm {
		if ev.VGUUID == nil || *ev.VGUUID != vgUUID {
			continue
		}
		lv, err := b.logicalVolume(ev)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		d.Children = append(d.Children, lv)
	}
	return d
}

func (b *builder) logicalVolume(ev state.UEvent) (Device, error) {
	if ev.Size == nil {
		return Device{}, fmt.Errorf("%w: logical volume %s missing size", deverr.ErrMissingField, ev.Devpath)
	}
	d := Device{
		Type:  TypeLogicalVolume,
		Major: ev.Major,
		Minor: ev.Minor,
		Paths: ev.Paths,
		Name:  derefStr(ev.DMLVName),
		Size:  *ev.Size,
	}
	mm := mmKey(ev.Major, ev.Minor)
	for _, pev := range b.partition {
		if pev.PartEntryMM == nil || *pev.PartEntryMM != mm {
			continue
		}
		pd, err := b.partition2(pev)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		d.Children = append(d.Children, pd)
	}
	d.Children = append(d.Children, b.zpoolsOf(ev.Paths)...)
	b.applyMount(&d, ev.Paths, derefStr(ev.FsType))
	return d, nil
}

// zpoolsOf returns every pool whose vdev tree covers one of paths, built
// into Zpool nodes with their full dataset children.
func (b *builder) zpoolsOf(paths []string) []Device {
	var out []Device
	for _, p := range b.pools {
		if !intersects(p.VdevTree.Paths(), paths) {
			continue
		}
		out = append(out, b.zpool(p))
	}
	return out
}

func (b *builder) zpool(p state.Pool) Device {
	d := Device{
		Type:     TypeZpool,
		Name:     p.Name,
		PoolGUID: p.GUID,
		Serial:   p.GUIDString(),
		Size:     p.Size,
	}
	for _, ds := range p.Datasets {
		if ds.PoolGUID != p.GUID {
			continue
		}
		d.Children = append(d.Children, b.dataset(ds, p))
	}
	return d
}

func (b *builder) dataset(ds state.Dataset, p state.Pool) Device {
	d := Device{
		Type:     TypeDataset,
		Name:     ds.Name,
		PoolGUID: ds.PoolGUID,
		Serial:   p.GUIDString(),
	}
	b.applyMount(&d, []string{ds.Name}, ds.Kind)
	return d
}
