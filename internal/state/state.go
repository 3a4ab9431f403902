package state

// State is the per-host daemon's entire live model: the udev table, the
// local mount table, and the set of ZFS pools reported by ZED. It is owned
// by a single reducer goroutine and never shared (see scanner.Server).
//
// Invariant: for every k, v in UEvents, k == v.Devpath.
type State struct {
	UEvents map[string]UEvent `json:"uevents"`
	Mounts  map[Mount]struct{} `json:"-"`
	Pools   map[uint64]Pool   `json:"pools"`
}

// New returns an empty State.
func New() State {
	return State{
		UEvents: make(map[string]UEvent),
		Mounts:  make(map[Mount]struct{}),
		Pools:   make(map[uint64]Pool),
	}
}

// MountSet returns the current mount table as a slice, for JSON
// marshalling and for the GetMounts command response.
func (s State) MountSet() []Mount {
	out := make([]Mount, 0, len(s.Mounts))
	for m := range s.Mounts {
		out = append(out, m)
	}
	return out
}

// HasMount reports whether the exact tuple m is currently mounted.
func (s State) HasMount(m Mount) bool {
	_, ok := s.Mounts[m]
	return ok
}
