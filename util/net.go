package util

import (
	"net"
	"strings"
)

// HostIP strips a prefix length ("10.0.0.1/24") and an IPv6 zone
// ("fe80::1%eth0") from addr.
func HostIP(addr string) string {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	if i := strings.IndexByte(addr, '%'); i >= 0 {
		addr = addr[:i]
	}
	return addr
}

func IsIPv4(addr string) bool {
	ip := net.ParseIP(HostIP(addr))
	return ip != nil && ip.To4() != nil && !strings.Contains(addr, ":")
}

func IsIPv6(addr string) bool {
	ip := net.ParseIP(HostIP(addr))
	return ip != nil && strings.Contains(addr, ":")
}
