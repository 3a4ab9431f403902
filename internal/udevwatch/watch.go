// Package udevwatch is the per-host daemon's udev emitter (§6, out of
// scope per spec.md: "specified only at its interface"). It is the thin
// translation layer between the kernel's netlink uevent stream and the
// UdevCommand shape internal/state's reducer consumes — no filtering or
// device-graph logic lives here, that's internal/device's job.
package udevwatch

import (
	"context"
	"strconv"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
	"github.com/ubuntu/device-scanner/internal/i18n"
	"github.com/ubuntu/device-scanner/internal/log"
	"github.com/ubuntu/device-scanner/internal/state"
)

// Emit is called once per udev event translated off the netlink socket
// (including the synthetic Add events the startup crawl produces for
// already-present devices).
type Emit func(state.UdevCommand)

// Watch connects to the kernel's udev netlink socket, replays the
// existing device set as synthetic Add events, then streams live events
// to emit until ctx is canceled.
func Watch(ctx context.Context, emit Emit) error {
	conn := &netlink.UEventConn{}
	if err := conn.Connect(); err != nil {
		return err
	}
	defer conn.Close()

	existing := make(chan crawler.Device)
	cerrors := make(chan error)
	crawlerStop := crawler.ExistingDevices(existing, cerrors, nil)
	defer close(crawlerStop)

	events := make(chan netlink.UEvent)
	errors := make(chan error)
	monitorStop := conn.Monitor(events, errors, nil)
	defer close(monitorStop)

	for {
		select {
		case dv := <-existing:
			emit(toCommand(state.UdevAdd, dv.KObj, dv.Env))
		case err := <-cerrors:
			log.Warningf(ctx, i18n.G("error enumerating existing udev devices: %v"), err)
		case ev := <-events:
			emit(toCommand(opFor(ev.Action), ev.KObj, ev.Env))
		case err := <-errors:
			log.Warningf(ctx, i18n.G("netlink error: %v"), err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func opFor(action netlink.KObjAction) state.UdevOp {
	switch action {
	case netlink.REMOVE:
		return state.UdevRemove
	default:
		// netlink only distinguishes ADD/REMOVE/CHANGE; anything else
		// (CHANGE, or an action this library version doesn't export a
		// constant for) is treated as an update to the existing UEvent.
		if action != netlink.ADD {
			return state.UdevChange
		}
		return state.UdevAdd
	}
}

// toCommand maps the udev property bag's well-known keys onto UEvent.
// Properties this spec's graph builder never consults (e.g. SUBSYSTEM,
// DEVNAME) are intentionally left untranslated.
func toCommand(op state.UdevOp, devpath string, env map[string]string) state.UdevCommand {
	ev := state.UEvent{Devpath: devpath}
	ev.Major, ev.Minor = env["MAJOR"], env["MINOR"]

	if v, ok := env["ID_FS_TYPE"]; ok {
		ev.FsType = &v
	}
	if v, ok := env["ID_FS_USAGE"]; ok {
		ev.FsUsage = &v
	}
	if v, ok := env["ID_FS_UUID"]; ok {
		ev.FsUUID = &v
	}
	if v, ok := env["ID_FS_LABEL"]; ok {
		ev.FsLabel = &v
	}
	if v, ok := env["ID_SCSI_SERIAL"]; ok {
		ev.Scsi83 = &v
	}
	if v, ok := env["ID_SERIAL_SHORT"]; ok {
		ev.Scsi80 = &v
	}
	if v, ok := env["ID_PART_ENTRY_NUMBER"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			ev.PartEntryNumber = &n
		}
	}
	if v, ok := env["ID_PART_ENTRY_DISK"]; ok {
		ev.PartEntryMM = &v
	}
	if v, ok := env["DM_VG_NAME"]; ok {
		ev.DMVGName = &v
	}
	if v, ok := env["DM_LV_NAME"]; ok {
		ev.DMLVName = &v
	}
	if v, ok := env["DM_UUID"]; ok {
		ev.VGUUID = &v
	}
	if v, ok := env["MD_UUID"]; ok {
		ev.MDUUID = &v
	}
	if v, ok := env["DEVLINKS"]; ok {
		ev.Paths = splitSpace(v)
	}
	if v, ok := env["DM_MULTIPATH_DEVICE_PATH"]; ok {
		isMpath := v == "1"
		ev.IsMpath = &isMpath
	}
	if v, ok := env["DEVSIZE"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			ev.Size = &n
		}
	}

	return state.UdevCommand{Op: op, Event: ev}
}

func splitSpace(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}
