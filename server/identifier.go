// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"net"
	"net/netip"
	"strconv"
)

// Identifier names a server within a deployment context.
type Identifier struct {
	Context string
	Name    string
}

// String implements the [fmt.Stringer] interface.
func (id Identifier) String() string {
	return id.Context + "/" + id.Name
}

// Address is a resolved ip and port a server listens on.
type Address struct {
	IP   netip.Addr
	Port uint16
}

// ResolveAddress resolves host, which may be a name or an ip literal,
// into an Address. An empty host means all interfaces.
func ResolveAddress(host string, port uint16) (Address, error) {
	if host == "" {
		return Address{IP: netip.IPv4Unspecified(), Port: port}, nil
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return Address{IP: ip.Unmap(), Port: port}, nil
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return Address{}, err
	}
	ap := tcpAddr.AddrPort()
	return Address{IP: ap.Addr().Unmap(), Port: ap.Port()}, nil
}

func addressOf(addr net.Addr) (Address, bool) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return Address{}, false
	}
	ap := tcpAddr.AddrPort()
	return Address{IP: ap.Addr().Unmap(), Port: ap.Port()}, true
}

// Overlaps reports whether a and o can not both be bound at once, i.e.
// they share a port and either is the same ip or an unspecified one.
func (a Address) Overlaps(o Address) bool {
	if a.Port != o.Port {
		return false
	}
	return a.IP == o.IP || a.IP.IsUnspecified() || o.IP.IsUnspecified()
}

// String implements the [fmt.Stringer] interface.
func (a Address) String() string {
	return netip.AddrPortFrom(a.IP, a.Port).String()
}
