//go:build freebsd

package ucred

import "golang.org/x/sys/unix"

// Get reads LOCAL_PEERCRED off fd. FreeBSD's xucred does not carry the
// peer's pid, matching spec.md §4.3: "on FreeBSD pid is unavailable
// (-1)".
func Get(fd int) (Ucred, error) {
	xu, err := unix.GetsockoptXucred(fd, unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	if err != nil {
		return Ucred{}, err
	}

	return Ucred{
		Pid: -1,
		Uid: xu.Uid,
		Gid: xu.Groups[0],
	}, nil
}
