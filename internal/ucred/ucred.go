// Package ucred captures peer process credentials (pid/uid/gid) at
// connect time via the platform's peer-cred socket option, as spec.md §6
// requires: SO_PEERCRED on Linux, LOCAL_PEERCRED on FreeBSD.
package ucred

// Ucred holds the credentials of the peer on the other end of a unix
// socket, captured once at accept time. On FreeBSD, Pid is always -1:
// LOCAL_PEERCRED does not expose the peer's pid.
type Ucred struct {
	Pid int32
	Uid uint32
	Gid uint32
}
