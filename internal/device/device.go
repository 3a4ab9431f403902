// Package device builds the per-host Device tree (spec §4.2) out of the
// flat State a host's reducers maintain, and defines the Device tagged
// union shared with the aggregator's cross-host DAG.
package device

import "encoding/json"

// Type discriminates the Device tagged union's variants (§3).
type Type string

// Device variants.
const (
	TypeRoot          Type = "Root"
	TypeScsiDevice    Type = "ScsiDevice"
	TypePartition     Type = "Partition"
	TypeMdRaid        Type = "MdRaid"
	TypeMpath         Type = "Mpath"
	TypeVolumeGroup   Type = "VolumeGroup"
	TypeLogicalVolume Type = "LogicalVolume"
	TypeZpool         Type = "Zpool"
	TypeDataset       Type = "Dataset"
	// TypeHost exists only in the aggregator's cross-host DAG (§4.6), never
	// in a per-host snapshot.
	TypeHost Type = "Host"
)

// Device is one node of the tree a per-host scanner emits, or of the
// cross-host DAG the aggregator builds from many such trees. Not every
// field applies to every Type; see the per-variant builder methods in
// builder.go for which are populated.
type Device struct {
	Type Type `json:"type"`

	// Identity, populated according to Type.
	Major, Minor string
	Paths        []string
	VGUUID       string // VolumeGroup
	PoolGUID     uint64 // Zpool
	HostName     string // Host (aggregator only)

	// Serial is the cross-host identity key's second component
	// (AsParent, §4.2/§4.6): scsi83 (falling back to scsi80) for SCSI-layer
	// nodes, the pool guid string for Zpool/Dataset.
	Serial string

	Size   int64
	FsType string
	// MountPath is the mount target if the device's source path currently
	// has an entry in State.mounts, else empty.
	MountPath string

	// Name identifies Zpool/Dataset/VolumeGroup/LogicalVolume nodes where
	// Paths is not meaningful.
	Name string

	Children []Device `json:"children,omitempty"`
}

// AsParent is the shared-edge partition key of §4.2 invariant 2 / §4.6
// phase 3: two nodes may carry a Shared edge only if their AsParent keys
// are equal.
type AsParent struct {
	Type   Type
	Serial string
}

// Key returns d's shared-edge partition key. Nodes with no serial (Root,
// Host, VolumeGroup, MdRaid, LogicalVolume, and SCSI-layer nodes whose
// event carried neither scsi83 nor scsi80) get a key with an empty Serial;
// the DAG builder never treats an empty serial as a valid sharing key, so
// such nodes never receive Shared edges.
func (d Device) Key() AsParent {
	return AsParent{Type: d.Type, Serial: d.Serial}
}

// Mountable reports whether d is a leaf a caller may request host/active
// info for. Host and VolumeGroup are never mountable (§4.6 "Forbidden
// leaves").
func (d Device) Mountable() bool {
	switch d.Type {
	case TypeHost, TypeVolumeGroup, TypeRoot:
		return false
	default:
		return true
	}
}

// MarshalJSON renders Device as the tagged object other components decode
// with UnmarshalJSON below: a single Type tag, the node's fields, and its
// children.
func (d Device) MarshalJSON() ([]byte, error) {
	type alias Device
	return json.Marshal(alias(d))
}

// UnmarshalJSON is the mirror of MarshalJSON; Device is a flat struct with
// a Type discriminant rather than a Rust-style tagged union, so decoding
// is a direct field-for-field unmarshal.
func (d *Device) UnmarshalJSON(b []byte) error {
	type alias Device
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*d = Device(a)
	return nil
}
