package router

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerCreds resolves the uid/pid of the process on the other end of a Unix
// domain socket connection, the way the teacher's authorizer package reads
// SO_PEERCRED to identify a D-Bus caller. Here it's used for audit logging
// rather than authorization: any local process may talk to the scanner
// socket, but every command is logged against who sent it.
func peerCreds(conn net.Conn) (uid uint32, pid int32, err error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, 0, fmt.Errorf("not a unix socket connection")
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, 0, fmt.Errorf("couldn't open raw connection: %w", err)
	}

	var cred *unix.Ucred
	var sockoptErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil {
		return 0, 0, fmt.Errorf("control() error: %w", ctrlErr)
	}
	if sockoptErr != nil {
		return 0, 0, fmt.Errorf("getsockoptucred() error: %w", sockoptErr)
	}

	return cred.Uid, cred.Pid, nil
}
