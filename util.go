package pingback

import (
	"fmt"
	"net"

	"github.com/google/gopacket/routing"
)

// ParseIPFromString attempts to parse a valid IPv4 address from the supplied string
// the string can be in the x.x.x.x format or a hostname.
func ParseIPFromString(s string) (net.IP, error) {
	if ip := net.ParseIP(s); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, fmt.Errorf("%s is not an ipv4 address", s)
	}

	ipAddrs, err := net.LookupIP(s)
	if err != nil {
		return nil, err
	}

	for _, ip := range ipAddrs {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}

	return nil, fmt.Errorf("%s has no ipv4 address", s)
}

// SourceIPForDest uses gopacket's routing package to find the preferred
// local source address for packets sent to destIP
func SourceIPForDest(destIP net.IP) (net.IP, error) {
	router, err := routing.New()
	if err != nil {
		return nil, err
	}
	_, _, preferredSrc, err := router.Route(destIP)
	if err != nil {
		return nil, err
	}

	return preferredSrc, nil
}
