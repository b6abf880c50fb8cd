package risk

import (
	"fmt"
	"net"
)

// LocationResolver derives a coarse location label from an IP address.
// The label only needs to be stable: novelty is judged by comparing it
// against labels from the account's history.
type LocationResolver interface {
	Resolve(ip string) string
}

// NetworkZoneResolver labels private/loopback addresses "internal" and
// public addresses by their /16 network. A real geo provider can be
// swapped in behind the same interface.
type NetworkZoneResolver struct{}

func (NetworkZoneResolver) Resolve(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "unknown"
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast() {
		return "internal"
	}
	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("net-%d.%d", v4[0], v4[1])
	}
	// IPv6: use the /32 routing prefix as the zone.
	return fmt.Sprintf("net6-%02x%02x%02x%02x", parsed[0], parsed[1], parsed[2], parsed[3])
}
