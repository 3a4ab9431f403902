// Package zedwatch is the zedlet half of the out-of-scope ZED integration
// (§1/§6: "the zedlet executables that translate ZED env-vars into JSON
// commands" are specified only at their interface). ZFS Event Daemon
// invokes a zedlet as a subprocess per event, passing event fields as
// ZEVENT_* environment variables; Translate turns that env into the
// PoolCommand internal/state's reducer consumes. Pool/vdev topology
// fields the env doesn't carry (size, health, vdev tree) are left zero
// and must be filled in by a real zedlet from `zpool get`/`zpool status`
// output, which this package does not shell out to.
package zedwatch

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ubuntu/device-scanner/internal/deverr"
	"github.com/ubuntu/device-scanner/internal/state"
)

// Translate builds a PoolCommand from a zedlet invocation's environment
// (os.Environ() shape: ZEVENT_SUBCLASS, ZEVENT_POOL_GUID, ...).
func Translate(env []string) (state.PoolCommand, error) {
	vars := parseEnv(env)

	class := vars["ZEVENT_SUBCLASS"]
	guidStr := vars["ZEVENT_POOL_GUID"]

	switch class {
	case "pool.import", "pool.create":
		guid, err := parseGUID(guidStr)
		if err != nil {
			return state.PoolCommand{}, err
		}
		return state.PoolCommand{
			Op:   state.PoolAddPool,
			GUID: guid,
			Pool: state.Pool{
				GUID:   guid,
				Name:   vars["ZEVENT_POOL"],
				State:  vars["ZEVENT_POOL_STATE"],
				Health: vars["ZEVENT_POOL_HEALTH"],
			},
		}, nil
	case "pool.export", "pool.destroy":
		guid, err := parseGUID(guidStr)
		if err != nil {
			return state.PoolCommand{}, err
		}
		return state.PoolCommand{Op: state.PoolRemovePool, GUID: guid}, nil
	case "vdev.add", "vdev.attach":
		guid, err := parseGUID(guidStr)
		if err != nil {
			return state.PoolCommand{}, err
		}
		return state.PoolCommand{Op: state.PoolAddVdev, GUID: guid}, nil
	default:
		return state.PoolCommand{}, fmt.Errorf("%w: unsupported ZED subclass %q", deverr.ErrParse, class)
	}
}

func parseGUID(s string) (uint64, error) {
	guid, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed pool guid %q: %v", deverr.ErrParse, s, err)
	}
	return guid, nil
}

func parseEnv(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

// OSEnviron is a convenience wrapper around os.Environ for zedlet mains.
func OSEnviron() []string {
	return os.Environ()
}
