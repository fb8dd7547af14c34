package server

import "errors"

// errPeerClosed marks a connection whose peer performed an orderly
// close (recv returned 0), per spec.md §4.1's read() contract.
var errPeerClosed = errors.New("server: peer closed connection")
