// Package router implements the per-host command router (§4.4): it reads
// the first line of each accepted connection, parses it as a tagged JSON
// Command, and dispatches to the reducer engine or registers the
// connection with the subscriber fan-out.
package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net"

	"github.com/ubuntu/device-scanner/internal/fanout"
	"github.com/ubuntu/device-scanner/internal/i18n"
	"github.com/ubuntu/device-scanner/internal/log"
	"github.com/ubuntu/device-scanner/internal/state"
)

// maxLineBytes bounds a single command line; a UEvent carries at most a
// few hundred bytes of alias paths, so this is generous headroom.
const maxLineBytes = 1 << 20

// withNewline copies b into a fresh, newline-terminated buffer so callers
// never risk mutating a snapshot byte slice another goroutine may still
// be reading.
func withNewline(b []byte) []byte {
	out := make([]byte, len(b)+1)
	copy(out, b)
	out[len(b)] = '\n'
	return out
}

// Engine is the reducer/graph-builder/fan-out surface the router needs.
// scanner.Server implements it; router never touches state.State directly
// so that State stays owned by the single reducer goroutine (§5).
type Engine interface {
	// Dispatch applies cmd to State and, on success, triggers a rebuild
	// and broadcast. It is the only way a connection mutates State.
	Dispatch(ctx context.Context, cmd state.Command) error
	// Snapshot returns the most recently built Device tree, serialized.
	Snapshot() []byte
	// Mounts returns the current mount table, serialized as one line.
	Mounts() []byte
	// Subscribe registers w with the fan-out so it receives every future
	// snapshot broadcast.
	Subscribe(w fanout.Writer)
}

// HandleConn implements C4 for one accepted connection: read one line,
// parse it, dispatch. Parse failures are logged at WARN and the
// connection is dropped (§7 policy). Stream registers conn with the
// fan-out and leaves it open; GetMounts replies with one line and closes
// conn; any other command is dispatched and conn is closed without a
// reply.
func HandleConn(ctx context.Context, conn net.Conn, engine Engine) {
	if uid, pid, err := peerCreds(conn); err == nil {
		log.Debugf(ctx, i18n.G("accepted connection from uid=%d pid=%d"), uid, pid)
	}

	r := bufio.NewReaderSize(conn, maxLineBytes)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		log.Debugf(ctx, i18n.G("connection closed before a command line was received: %v"), err)
		conn.Close()
		return
	}

	var cmd state.Command
	if jsonErr := json.Unmarshal([]byte(line), &cmd); jsonErr != nil {
		log.Warningf(ctx, i18n.G("dropping connection: malformed command: %v"), jsonErr)
		conn.Close()
		return
	}

	switch {
	case cmd.Stream:
		if _, err := conn.Write(withNewline(engine.Snapshot())); err != nil {
			log.Debugf(ctx, i18n.G("subscriber disconnected before initial snapshot: %v"), err)
			conn.Close()
			return
		}
		engine.Subscribe(conn)
	case cmd.GetMounts:
		conn.Write(withNewline(engine.Mounts()))
		conn.Close()
	default:
		if err := engine.Dispatch(ctx, cmd); err != nil {
			log.Warningf(ctx, i18n.G("command failed: %v"), err)
		}
		conn.Close()
	}
}
