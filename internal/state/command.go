package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ubuntu/device-scanner/internal/deverr"
)

// tagged unmarshals a single-key JSON object {"Variant": payload} into op
// and leaves payload as a RawMessage for the caller to decode further.
func tagged(b []byte) (op string, payload json.RawMessage, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return "", nil, fmt.Errorf("%w: %v", deverr.ErrParse, err)
	}
	if len(raw) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one tag, got %d", deverr.ErrParse, len(raw))
	}
	for k, v := range raw {
		return k, v, nil
	}
	return "", nil, fmt.Errorf("%w: empty command", deverr.ErrParse)
}

// parseGUID parses a ZED wire guid ("0x%016X") into its u64 value.
func parseGUID(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid guid %q: %v", deverr.ErrParse, s, err)
	}
	return v, nil
}

// UdevOp is the tag of a UdevCommand.
type UdevOp string

// UdevCommand variants (§6).
const (
	UdevAdd    UdevOp = "Add"
	UdevChange UdevOp = "Change"
	UdevRemove UdevOp = "Remove"
)

// UdevCommand carries one udev event with the action to apply it with.
type UdevCommand struct {
	Op    UdevOp
	Event UEvent
}

// UnmarshalJSON decodes {"Add"|"Change"|"Remove": <UEvent>}.
func (c *UdevCommand) UnmarshalJSON(b []byte) error {
	op, payload, err := tagged(b)
	if err != nil {
		return err
	}
	var ev UEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: %v", deverr.ErrParse, err)
	}
	c.Op = UdevOp(op)
	c.Event = ev
	return nil
}

// MarshalJSON encodes {"Add"|"Change"|"Remove": <UEvent>}.
func (c UdevCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]UEvent{string(c.Op): c.Event})
}

// MountOp is the tag of a MountCommand.
type MountOp string

// MountCommand variants (§6).
const (
	MountAdd     MountOp = "AddMount"
	MountRemove  MountOp = "RemoveMount"
	MountReplace MountOp = "ReplaceMount"
	MountMove    MountOp = "MoveMount"
)

// MountCommand carries a mount-table mutation. Only the fields relevant to
// Op are populated; see §4.1 for the argument lists of each variant.
type MountCommand struct {
	Op MountOp

	Target string
	Source string
	FsType string
	Opts   string

	// OldOpts is populated only for ReplaceMount.
	OldOpts string
	// OldTarget is populated only for MoveMount.
	OldTarget string
}

// UnmarshalJSON decodes {"<Variant>": [args...]}.
func (c *MountCommand) UnmarshalJSON(b []byte) error {
	op, payload, err := tagged(b)
	if err != nil {
		return err
	}
	var args []string
	if err := json.Unmarshal(payload, &args); err != nil {
		return fmt.Errorf("%w: %v", deverr.ErrParse, err)
	}

	cmd := MountCommand{Op: MountOp(op)}
	switch cmd.Op {
	case MountAdd, MountRemove:
		if len(args) != 4 {
			return fmt.Errorf("%w: %s expects 4 args, got %d", deverr.ErrParse, op, len(args))
		}
		cmd.Target, cmd.Source, cmd.FsType, cmd.Opts = args[0], args[1], args[2], args[3]
	case MountReplace:
		if len(args) != 5 {
			return fmt.Errorf("%w: ReplaceMount expects 5 args, got %d", deverr.ErrParse, len(args))
		}
		cmd.Target, cmd.Source, cmd.FsType, cmd.Opts, cmd.OldOpts = args[0], args[1], args[2], args[3], args[4]
	case MountMove:
		if len(args) != 5 {
			return fmt.Errorf("%w: MoveMount expects 5 args, got %d", deverr.ErrParse, len(args))
		}
		cmd.Target, cmd.Source, cmd.FsType, cmd.Opts, cmd.OldTarget = args[0], args[1], args[2], args[3], args[4]
	default:
		return fmt.Errorf("%w: unknown mount command %q", deverr.ErrParse, op)
	}
	*c = cmd
	return nil
}

// PoolOp is the tag of a PoolCommand.
type PoolOp string

// PoolCommand variants (§6).
const (
	PoolAddPools      PoolOp = "AddPools"
	PoolAddPool       PoolOp = "AddPool"
	PoolUpdatePool    PoolOp = "UpdatePool"
	PoolRemovePool    PoolOp = "RemovePool"
	PoolAddDataset    PoolOp = "AddDataset"
	PoolRemoveDataset PoolOp = "RemoveDataset"
	PoolSetZpoolProp  PoolOp = "SetZpoolProp"
	PoolSetZfsProp    PoolOp = "SetZfsProp"
	PoolAddVdev       PoolOp = "AddVdev"
)

// PoolCommand carries a ZED-sourced mutation to the per-host pool state.
type PoolCommand struct {
	Op PoolOp

	Pools []Pool // AddPools
	Pool  Pool   // AddPool, UpdatePool

	GUID uint64 // all ops but AddPools

	Dataset     Dataset // AddDataset
	DatasetName string  // RemoveDataset, SetZfsProp

	Key, Value string // SetZpoolProp, SetZfsProp
}

// UnmarshalJSON decodes {"<Variant>": [args...]}.
func (c *PoolCommand) UnmarshalJSON(b []byte) error {
	op, payload, err := tagged(b)
	if err != nil {
		return err
	}

	cmd := PoolCommand{Op: PoolOp(op)}
	switch cmd.Op {
	case PoolAddPools:
		var pools []Pool
		if err := json.Unmarshal(payload, &pools); err != nil {
			return fmt.Errorf("%w: %v", deverr.ErrParse, err)
		}
		cmd.Pools = pools
	case PoolAddPool, PoolUpdatePool:
		var args [1]Pool
		if err := json.Unmarshal(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", deverr.ErrParse, err)
		}
		cmd.Pool = args[0]
		cmd.GUID = args[0].GUID
	case PoolRemovePool, PoolAddVdev:
		var args [1]string
		if err := json.Unmarshal(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", deverr.ErrParse, err)
		}
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		cmd.GUID = guid
	case PoolAddDataset:
		var raw []json.RawMessage
		if err := json.Unmarshal(payload, &raw); err != nil || len(raw) != 2 {
			return fmt.Errorf("%w: AddDataset expects [guid, dataset]", deverr.ErrParse)
		}
		var guidStr string
		if err := json.Unmarshal(raw[0], &guidStr); err != nil {
			return fmt.Errorf("%w: %v", deverr.ErrParse, err)
		}
		var ds Dataset
		if err := json.Unmarshal(raw[1], &ds); err != nil {
			return fmt.Errorf("%w: %v", deverr.ErrParse, err)
		}
		guid, err := parseGUID(guidStr)
		if err != nil {
			return err
		}
		cmd.GUID = guid
		cmd.Dataset = ds
	case PoolRemoveDataset:
		var args [2]string
		if err := json.Unmarshal(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", deverr.ErrParse, err)
		}
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		cmd.GUID = guid
		cmd.DatasetName = args[1]
	case PoolSetZpoolProp:
		var args [3]string
		if err := json.Unmarshal(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", deverr.ErrParse, err)
		}
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		cmd.GUID = guid
		cmd.Key, cmd.Value = args[1], args[2]
	case PoolSetZfsProp:
		var args [4]string
		if err := json.Unmarshal(payload, &args); err != nil {
			return fmt.Errorf("%w: %v", deverr.ErrParse, err)
		}
		guid, err := parseGUID(args[0])
		if err != nil {
			return err
		}
		cmd.GUID = guid
		cmd.DatasetName, cmd.Key, cmd.Value = args[1], args[2], args[3]
	default:
		return fmt.Errorf("%w: unknown pool command %q", deverr.ErrParse, op)
	}
	*c = cmd
	return nil
}

// Command is the top-level tagged union accepted on the per-host socket
// (§6): Stream, GetMounts, or one of the three reducer commands.
type Command struct {
	Stream    bool
	GetMounts bool
	Udev      *UdevCommand
	MountCmd  *MountCommand
	Pool      *PoolCommand
}

// UnmarshalJSON decodes a line of the command-router's wire protocol. Bare
// string tags ("Stream", "GetMounts") and single-key tagged objects
// ("UdevCommand", "MountCommand", "PoolCommand") are both accepted.
func (c *Command) UnmarshalJSON(b []byte) error {
	var bare string
	if err := json.Unmarshal(b, &bare); err == nil {
		switch bare {
		case "Stream":
			*c = Command{Stream: true}
			return nil
		case "GetMounts":
			*c = Command{GetMounts: true}
			return nil
		default:
			return fmt.Errorf("%w: unknown bare command %q", deverr.ErrParse, bare)
		}
	}

	op, payload, err := tagged(b)
	if err != nil {
		return err
	}
	switch op {
	case "UdevCommand":
		var u UdevCommand
		if err := json.Unmarshal(payload, &u); err != nil {
			return err
		}
		*c = Command{Udev: &u}
	case "MountCommand":
		var m MountCommand
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		*c = Command{MountCmd: &m}
	case "PoolCommand":
		var p PoolCommand
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*c = Command{Pool: &p}
	default:
		return fmt.Errorf("%w: unknown command %q", deverr.ErrParse, op)
	}
	return nil
}
