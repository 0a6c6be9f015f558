package dialer

import (
	"context"
	"net"
	"sort"

	"github.com/corvid-labs/wireclient/wireerr"
)

// resolveAddrs resolves host to a list of IP addresses ordered IPv6 first,
// so Happy Eyeballs always tries the v6 family before falling back to v4.
func resolveAddrs(ctx context.Context, resolver *net.Resolver, host string) ([]net.IP, error) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	ips, err := resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, wireerr.New(wireerr.KindNameNotResolved, host, "", err)
	}
	if len(ips) == 0 {
		return nil, wireerr.New(wireerr.KindNameNotResolved, host, "", nil)
	}

	sort.SliceStable(ips, func(i, j int) bool {
		return isIPv6(ips[i]) && !isIPv6(ips[j])
	})
	return ips, nil
}

func isIPv6(ip net.IP) bool { return ip.To4() == nil }
