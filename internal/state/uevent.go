// Package state holds the three event-sourced entities a per-host scanner
// tracks (uevents, mounts, zpools) and the pure reducers that fold commands
// into them.
package state

// UEvent is a snapshot of a Linux kernel block device's udev attributes at
// one moment in time, keyed by its stable Devpath.
type UEvent struct {
	Devpath string `json:"devpath"`
	Major   string `json:"major"`
	Minor   string `json:"minor"`
	Seqnum  int64  `json:"seqnum"`

	// Paths is the set of alias paths: by-id, by-uuid, by-path, by-partuuid, ...
	Paths []string `json:"paths"`

	Size *int64 `json:"size,omitempty"`

	FsType  *string `json:"fsType,omitempty"`
	FsUsage *string `json:"fsUsage,omitempty"`
	FsUUID  *string `json:"fsUuid,omitempty"`
	FsLabel *string `json:"fsLabel,omitempty"`

	PartEntryNumber *int64  `json:"partEntryNumber,omitempty"`
	PartEntryMM     *string `json:"partEntryMm,omitempty"`

	Scsi80 *string `json:"scsi80,omitempty"`
	Scsi83 *string `json:"scsi83,omitempty"`

	ReadOnly    *bool `json:"readOnly,omitempty"`
	BiosBoot    *bool `json:"biosBoot,omitempty"`
	ZfsReserved *bool `json:"zfsReserved,omitempty"`

	IsMpath    *bool    `json:"isMpath,omitempty"`
	DMSlaveMMs []string `json:"dmSlaveMms,omitempty"`

	DMVGName *string `json:"dmVgName,omitempty"`
	DMLVName *string `json:"dmLvName,omitempty"`
	VGUUID   *string `json:"vgUuid,omitempty"`
	LVUUID   *string `json:"lvUuid,omitempty"`
	DMVGSize *int64  `json:"dmVgSize,omitempty"`

	MDUUID *string  `json:"mdUuid,omitempty"`
	MDDevs []string `json:"mdDevs,omitempty"`
}

// KeepUsable implements spec invariant 1: an unusable event is filtered
// from graph construction but is never removed from State. An event with
// no size at all is kept, so that the graph builder reports it as
// MissingField.
func (e UEvent) KeepUsable() bool {
	if e.Size != nil && *e.Size == 0 {
		return false
	}
	if e.ReadOnly != nil && *e.ReadOnly {
		return false
	}
	if e.BiosBoot != nil && *e.BiosBoot {
		return false
	}
	return true
}

// IsDM reports whether the event describes a pure-LVM logical volume.
func (e UEvent) IsDM() bool {
	return e.LVUUID != nil && e.VGUUID != nil && e.DMLVName != nil
}

// IsMdRaid reports whether the event describes an MD raid member/device.
func (e UEvent) IsMdRaid() bool {
	return e.MDUUID != nil
}

// IsMultipath reports whether the event is a device-mapper multipath device.
func (e UEvent) IsMultipath() bool {
	return e.IsMpath != nil && *e.IsMpath
}

// IsPartition reports whether the event is a partition of some parent block device.
func (e UEvent) IsPartition() bool {
	return e.PartEntryMM != nil
}

// HasPath reports whether p is one of the event's alias paths.
func (e UEvent) HasPath(p string) bool {
	for _, x := range e.Paths {
		if x == p {
			return true
		}
	}
	return false
}
