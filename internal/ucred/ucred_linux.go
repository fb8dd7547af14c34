//go:build linux

package ucred

import "golang.org/x/sys/unix"

// Get reads SO_PEERCRED off fd, the raw file descriptor of a connected
// AF_UNIX socket.
func Get(fd int) (Ucred, error) {
	cred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return Ucred{}, err
	}

	return Ucred{
		Pid: cred.Pid,
		Uid: cred.Uid,
		Gid: cred.Gid,
	}, nil
}
