package server

import (
	"net"

	"golang.org/x/net/netutil"
)

// LimitListener caps the number of simultaneously accepted connections on l to n.
// A non-positive n returns l unchanged.
func LimitListener(l net.Listener, n int) net.Listener {
	if n <= 0 {
		return l
	}
	return netutil.LimitListener(l, n)
}
