package state

import (
	"fmt"

	"github.com/ubuntu/device-scanner/internal/deverr"
)

// UpdateUdev folds a UdevCommand into uevents, returning the next value of
// the component (§4.1). It never mutates its input map.
func UpdateUdev(uevents map[string]UEvent, cmd UdevCommand) map[string]UEvent {
	next := make(map[string]UEvent, len(uevents)+1)
	for k, v := range uevents {
		next[k] = v
	}
	switch cmd.Op {
	case UdevAdd, UdevChange:
		next[cmd.Event.Devpath] = cmd.Event
	case UdevRemove:
		delete(next, cmd.Event.Devpath)
	}
	return next
}

// UpdateMount folds a MountCommand into the mount set (§4.1). ReplaceMount
// and MoveMount are atomic: an observer of the returned set never sees
// neither the old nor the new tuple.
func UpdateMount(mounts map[Mount]struct{}, cmd MountCommand) map[Mount]struct{} {
	next := make(map[Mount]struct{}, len(mounts)+1)
	for k := range mounts {
		next[k] = struct{}{}
	}
	switch cmd.Op {
	case MountAdd:
		next[NewMount(cmd.Target, cmd.Source, cmd.FsType, cmd.Opts)] = struct{}{}
	case MountRemove:
		delete(next, NewMount(cmd.Target, cmd.Source, cmd.FsType, cmd.Opts))
	case MountReplace:
		delete(next, NewMount(cmd.Target, cmd.Source, cmd.FsType, cmd.OldOpts))
		next[NewMount(cmd.Target, cmd.Source, cmd.FsType, cmd.Opts)] = struct{}{}
	case MountMove:
		delete(next, NewMount(cmd.OldTarget, cmd.Source, cmd.FsType, cmd.Opts))
		next[NewMount(cmd.Target, cmd.Source, cmd.FsType, cmd.Opts)] = struct{}{}
	}
	return next
}

// UpdateZedEvents folds a PoolCommand into the pool table (§4.1). Unlike
// UpdateUdev/UpdateMount it can fail: referential-integrity errors
// (PoolNotFound, ZfsNotFound) are propagated to the caller, which must not
// apply a partial update to its live State. Malformed guids never reach
// it: they are rejected when the PoolCommand is decoded.
func UpdateZedEvents(pools map[uint64]Pool, cmd PoolCommand) (map[uint64]Pool, error) {
	next := make(map[uint64]Pool, len(pools)+1)
	for k, v := range pools {
		next[k] = v
	}

	switch cmd.Op {
	case PoolAddPools:
		next = make(map[uint64]Pool, len(cmd.Pools))
		for _, p := range cmd.Pools {
			next[p.GUID] = p
		}
	case PoolAddPool, PoolUpdatePool, PoolAddVdev:
		if cmd.Op == PoolAddVdev {
			p, ok := next[cmd.GUID]
			if !ok {
				return pools, fmt.Errorf("%w: %d", deverr.ErrPoolNotFound, cmd.GUID)
			}
			next[cmd.GUID] = p
		} else {
			next[cmd.Pool.GUID] = cmd.Pool
		}
	case PoolRemovePool:
		if _, ok := next[cmd.GUID]; !ok {
			return pools, fmt.Errorf("%w: %d", deverr.ErrPoolNotFound, cmd.GUID)
		}
		delete(next, cmd.GUID)
	case PoolAddDataset:
		p, ok := next[cmd.GUID]
		if !ok {
			return pools, fmt.Errorf("%w: %d", deverr.ErrPoolNotFound, cmd.GUID)
		}
		datasets := make([]Dataset, 0, len(p.Datasets)+1)
		for _, d := range p.Datasets {
			if d.Name != cmd.Dataset.Name {
				datasets = append(datasets, d)
			}
		}
		cmd.Dataset.PoolGUID = cmd.GUID
		datasets = append(datasets, cmd.Dataset)
		p.Datasets = datasets
		next[cmd.GUID] = p
	case PoolRemoveDataset:
		p, ok := next[cmd.GUID]
		if !ok {
			return pools, fmt.Errorf("%w: %d", deverr.ErrPoolNotFound, cmd.GUID)
		}
		datasets := make([]Dataset, 0, len(p.Datasets))
		for _, d := range p.Datasets {
			if d.Name != cmd.DatasetName {
				datasets = append(datasets, d)
			}
		}
		p.Datasets = datasets
		next[cmd.GUID] = p
	case PoolSetZpoolProp:
		p, ok := next[cmd.GUID]
		if !ok {
			return pools, fmt.Errorf("%w: %d", deverr.ErrPoolNotFound, cmd.GUID)
		}
		p.Props = updateProp(p.Props, cmd.Key, cmd.Value)
		next[cmd.GUID] = p
	case PoolSetZfsProp:
		p, ok := next[cmd.GUID]
		if !ok {
			return pools, fmt.Errorf("%w: %d", deverr.ErrPoolNotFound, cmd.GUID)
		}
		idx := -1
		for i, d := range p.Datasets {
			if d.Name == cmd.DatasetName {
				idx = i
				break
			}
		}
		if idx == -1 {
			return pools, fmt.Errorf("%w: %s", deverr.ErrZfsNotFound, cmd.DatasetName)
		}
		datasets := make([]Dataset, len(p.Datasets))
		copy(datasets, p.Datasets)
		datasets[idx].Props = updateProp(datasets[idx].Props, cmd.Key, cmd.Value)
		p.Datasets = datasets
		next[cmd.GUID] = p
	}
	return next, nil
}
