package scanner_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ubuntu/device-scanner/internal/deverr"
	"github.com/ubuntu/device-scanner/internal/scanner"
	"github.com/ubuntu/device-scanner/internal/state"
	"github.com/ubuntu/device-scanner/internal/testutils"
)

func newTestServer(t *testing.T) (*scanner.Server, string) {
	t.Helper()

	dir, cleanup := testutils.TempDir(t)
	t.Cleanup(cleanup)

	socket := filepath.Join(dir, "device-scanner.sock")
	s, err := scanner.New(socket)
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })

	go s.Listen()

	return s, socket
}

func TestScannerGetMountsRoundTrip(t *testing.T) {
	t.Parallel()

	_, socket := newTestServer(t)

	// add a mount via the Unix socket before reading it back
	addConn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	_, err = addConn.Write([]byte(`{"MountCommand":{"AddMount":["/mnt","/dev/sda1","ext4","rw"]}}` + "\n"))
	require.NoError(t, err)
	addConn.Close()

	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("\"GetMounts\"\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "/dev/sda1")
}

func TestScannerStreamReceivesSnapshotsAfterUdevCommand(t *testing.T) {
	t.Parallel()

	_, socket := newTestServer(t)

	streamConn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer streamConn.Close()
	_, err = streamConn.Write([]byte("\"Stream\"\n"))
	require.NoError(t, err)

	streamConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(streamConn)

	initial, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, initial, "Root")

	udevConn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	_, err = udevConn.Write([]byte(`{"UdevCommand":{"Add":{"devpath":"/devices/sda","major":"8","minor":"0","seqnum":1,"paths":["/dev/sda"],"size":1000}}}` + "\n"))
	require.NoError(t, err)
	udevConn.Close()

	next, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, next, "ScsiDevice")
}

func TestApplyRejectsMalformedPoolGuid(t *testing.T) {
	t.Parallel()

	_, socket := newTestServer(t)

	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()
	line := []byte(`{"PoolCommand":{"RemovePool":["not-hex"]}}`)
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)

	var cmd state.Command
	err = json.Unmarshal(line, &cmd)
	require.True(t, errors.Is(err, deverr.ErrParse), "malformed guid must be rejected as a parse error, got %v", err)
}

func TestDispatchSucceedsWithLiveContext(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	err := s.Dispatch(context.Background(), state.Command{MountCmd: &state.MountCommand{
		Op: state.MountAdd, Target: "/mnt", Source: "/dev/sda1", FsType: "ext4", Opts: "rw",
	}})
	require.NoError(t, err)
}
