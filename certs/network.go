package certs

import (
	"net"
)

// LANIPs returns the IPv4 addresses of the interfaces that are up,
// excluding loopback.
func LANIPs() ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ip := addrIP(addr); ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips, nil
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}

// CertificateHosts returns the names a phone on the LAN may use to reach
// the agent: localhost, the loopback address and every LAN address.
func CertificateHosts() ([]string, error) {
	hosts := []string{"localhost", "127.0.0.1"}

	lanIPs, err := LANIPs()
	if err != nil {
		return hosts, err
	}
	return append(hosts, lanIPs...), nil
}
