// Package netloc classifies peer addresses as LAN or WAN, used by the guide
// to prefer a same-rack seeder over an equally loaded remote one when
// breaking seeder-selection ties.
package netloc

import "net"

var lan4, lan6 netlist

// netlist is a list of IP networks.
type netlist []net.IPNet

func init() {
	// Lists from RFC 5735, RFC 5156.
	lan4.add("0.0.0.0/8")      // "This" network
	lan4.add("10.0.0.0/8")     // Private Use
	lan4.add("172.16.0.0/12")  // Private Use
	lan4.add("192.168.0.0/16") // Private Use
	lan6.add("fe80::/10")      // Link-Local
	lan6.add("fc00::/7")       // Unique-Local
}

func (l *netlist) add(cidr string) {
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	*l = append(*l, *n)
}

func (l netlist) contains(ip net.IP) bool {
	for _, n := range l {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IsLAN reports whether addr (a "host:port" or bare host) resolves to a
// loopback or private-use address.
func IsLAN(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		return lan4.contains(v4)
	}
	return lan6.contains(ip)
}

// SameSubnet reports whether a and b are both LAN addresses sharing the
// same /24 (or /64 for IPv6) prefix, used to prefer a rack-local seeder.
func SameSubnet(a, b string) bool {
	ha, hb := hostOf(a), hostOf(b)
	ipa, ipb := net.ParseIP(ha), net.ParseIP(hb)
	if ipa == nil || ipb == nil {
		return false
	}
	if !IsLAN(a) || !IsLAN(b) {
		return false
	}
	va, vb := ipa.To4(), ipb.To4()
	if va != nil && vb != nil {
		return va[0] == vb[0] && va[1] == vb[1] && va[2] == vb[2]
	}
	return ipa.Mask(net.CIDRMask(64, 128)).Equal(ipb.Mask(net.CIDRMask(64, 128)))
}

func hostOf(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
