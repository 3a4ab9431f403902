// Package scanner wires the per-host event reducers (internal/state), the
// graph builder (internal/device), the subscriber fan-out
// (internal/fanout) and the command router (internal/router) into the
// long-running daemon described in spec §2 as C1-C4.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"github.com/coreos/go-systemd/activation"
	systemddaemon "github.com/coreos/go-systemd/daemon"
	"github.com/ubuntu/device-scanner/internal/device"
	"github.com/ubuntu/device-scanner/internal/fanout"
	"github.com/ubuntu/device-scanner/internal/i18n"
	"github.com/ubuntu/device-scanner/internal/log"
	"github.com/ubuntu/device-scanner/internal/router"
	"github.com/ubuntu/device-scanner/internal/state"
)

// Server is the per-host daemon: a single reducer goroutine owns State
// (§5 "per-host State: owned by the single reducer task; never shared"),
// reachable only through its command channel; Snapshot/Mounts publish
// read-only copies for connection goroutines to serve concurrently.
type Server struct {
	socket string
	lis    net.Listener

	fan  *fanout.FanOut
	cmds chan dispatchRequest

	snapshot atomic.Value // []byte, the last-built Device tree, JSON-encoded
	mounts   atomic.Value // []byte, the current mount table, JSON-encoded
}

type dispatchRequest struct {
	cmd   state.Command
	reply chan error
}

// New returns a Server listening on socket, honoring systemd socket
// activation exactly as the per-host daemon's teacher package did: zero
// listeners means listen fresh, one means adopt it, anything else is a
// misconfiguration.
func New(socket string) (*Server, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, fmt.Errorf(i18n.G("cannot retrieve systemd listeners: %v"), err)
	}

	var lis net.Listener
	switch len(listeners) {
	case 0:
		l, err := net.Listen("unix", socket)
		if err != nil {
			return nil, fmt.Errorf(i18n.G("failed to listen on %q: %w"), socket, err)
		}
		os.Chmod(socket, 0666)
		lis = l
	case 1:
		socket = ""
		lis = listeners[0]
	default:
		return nil, fmt.Errorf(i18n.G("unexpected number of systemd socket activations (%d != 1)"), len(listeners))
	}

	s := &Server{
		socket: socket,
		lis:    lis,
		fan:    fanout.New(),
		cmds:   make(chan dispatchRequest),
	}
	s.rebuild(state.New())
	go s.run()

	return s, nil
}

// Listen accepts connections until the listener is closed, handing each
// one to router.HandleConn. It never returns a nil error; Accept's own
// error on a closed listener is the expected shutdown signal.
func (s *Server) Listen() error {
	log.Infof(context.Background(), i18n.G("Serving on %s"), s.lis.Addr().String())

	if sent, err := systemddaemon.SdNotify(false, "READY=1"); err != nil {
		return fmt.Errorf(i18n.G("couldn't send ready notification to systemd: %v"), err)
	} else if sent {
		log.Debug(context.Background(), i18n.G("Ready state sent to systemd"))
	}

	for {
		conn, err := s.lis.Accept()
		if err != nil {
			return err
		}
		go router.HandleConn(context.Background(), conn, s)
	}
}

// Stop closes the listener and the fan-out's broadcast goroutine.
func (s *Server) Stop() error {
	s.fan.Stop()
	return s.lis.Close()
}

// Dispatch implements router.Engine: it hands cmd to the single reducer
// goroutine and waits for the result.
func (s *Server) Dispatch(ctx context.Context, cmd state.Command) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- dispatchRequest{cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot implements router.Engine.
func (s *Server) Snapshot() []byte {
	b, _ := s.snapshot.Load().([]byte)
	return b
}

// Mounts implements router.Engine.
func (s *Server) Mounts() []byte {
	b, _ := s.mounts.Load().([]byte)
	return b
}

// Subscribe implements router.Engine.
func (s *Server) Subscribe(w fanout.Writer) {
	s.fan.Register(w)
}

// run is the single goroutine that owns State end to end: it is the only
// code that reads or writes st below.
func (s *Server) run() {
	st := state.New()
	for req := range s.cmds {
		next, err := apply(st, req.cmd)
		if err != nil {
			req.reply <- err
			continue
		}
		st = next
		s.rebuild(st)
		req.reply <- nil
	}
}

// apply folds one command into st via the C1 reducers, returning the next
// State. On a reducer error the caller must not adopt the returned value.
func apply(st state.State, cmd state.Command) (state.State, error) {
	switch {
	case cmd.Udev != nil:
		st.UEvents = state.UpdateUdev(st.UEvents, *cmd.Udev)
	case cmd.MountCmd != nil:
		st.Mounts = state.UpdateMount(st.Mounts, *cmd.MountCmd)
	case cmd.Pool != nil:
		next, err := state.UpdateZedEvents(st.Pools, *cmd.Pool)
		if err != nil {
			return st, err
		}
		st.Pools = next
	default:
		return st, fmt.Errorf(i18n.G("command does not mutate state"))
	}
	return st, nil
}

// rebuild runs C2 over st and publishes the result to Snapshot/Mounts and
// the fan-out. Per-device errors are logged at DEBUG and otherwise
// ignored (§7): the rest of the graph is still produced and published.
func (s *Server) rebuild(st state.State) {
	root, errs := device.Build(st)
	for _, err := range errs {
		log.Debugf(context.Background(), i18n.G("skipping device during graph build: %v"), err)
	}

	snapshot, err := json.Marshal(root)
	if err != nil {
		log.Errorf(context.Background(), i18n.G("couldn't serialize device graph: %v"), err)
		return
	}
	mounts, err := json.Marshal(st.MountSet())
	if err != nil {
		log.Errorf(context.Background(), i18n.G("couldn't serialize mount table: %v"), err)
		return
	}

	s.snapshot.Store(snapshot)
	s.mounts.Store(mounts)
	s.fan.Publish(snapshot)
}
