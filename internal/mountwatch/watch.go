// Package mountwatch is the per-host daemon's mount-table emitter (§6,
// out of scope per spec.md: "specified only at its interface"). It polls
// /proc/self/mountinfo and diffs successive snapshots into AddMount /
// RemoveMount commands; ReplaceMount/MoveMount detection is left to a
// real implementation with access to the kernel's mount-notification
// netlink socket, which mountinfo.GetMounts alone cannot distinguish from
// a plain remove-then-add.
package mountwatch

import (
	"context"
	"time"

	"github.com/moby/sys/mountinfo"
	"github.com/ubuntu/device-scanner/internal/i18n"
	"github.com/ubuntu/device-scanner/internal/log"
	"github.com/ubuntu/device-scanner/internal/state"
)

// Emit is called once per detected mount-table change.
type Emit func(state.MountCommand)

// Watch polls the current process's mountinfo every interval and emits
// the AddMount/RemoveMount commands needed to reconcile the previous
// snapshot with the new one, until ctx is canceled.
func Watch(ctx context.Context, interval time.Duration, emit Emit) error {
	prev, err := snapshot()
	if err != nil {
		return err
	}
	for _, m := range prev {
		emit(addCommand(m))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cur, err := snapshot()
			if err != nil {
				log.Warningf(ctx, i18n.G("couldn't read mountinfo: %v"), err)
				continue
			}
			diff(prev, cur, emit)
			prev = cur
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func snapshot() (map[state.Mount]struct{}, error) {
	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		return nil, err
	}
	out := make(map[state.Mount]struct{}, len(mounts))
	for _, m := range mounts {
		out[state.NewMount(m.Mountpoint, m.Source, m.FSType, m.Options)] = struct{}{}
	}
	return out, nil
}

func diff(prev, cur map[state.Mount]struct{}, emit Emit) {
	for m := range cur {
		if _, ok := prev[m]; !ok {
			emit(addCommand(m))
		}
	}
	for m := range prev {
		if _, ok := cur[m]; !ok {
			emit(removeCommand(m))
		}
	}
}

func addCommand(m state.Mount) state.MountCommand {
	return state.MountCommand{Op: state.MountAdd, Target: m.Target, Source: m.Source, FsType: m.FsType, Opts: m.Opts}
}

func removeCommand(m state.Mount) state.MountCommand {
	return state.MountCommand{Op: state.MountRemove, Target: m.Target, Source: m.Source, FsType: m.FsType, Opts: m.Opts}
}
