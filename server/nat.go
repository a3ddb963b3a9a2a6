package server

import (
	"net"

	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/huin/goupnp/dcps/internetgateway1"

	"github.com/distcompute/treebcast/logger"
	"github.com/distcompute/treebcast/logger/glog"
)

const portMappingLifetime = 3600 // seconds; the mapping is requested once and not refreshed

// tryMapPort makes a best-effort attempt to forward addr's port through the
// local NAT gateway via NAT-PMP, falling back to UPnP IGD, so a block server
// behind a home or lab router is still reachable by remote leechers.
// Failures are logged at Debug and never block server startup: peers on the
// same LAN, or operators who configured port forwarding manually, are
// unaffected either way.
func tryMapPort(addr net.Addr) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok || tcpAddr.Port == 0 {
		return
	}
	port := tcpAddr.Port

	go func() {
		if mapViaNATPMP(port) {
			return
		}
		if mapViaUPnP(port) {
			return
		}
		glog.V(logger.Debug).Infof("server: no NAT gateway found for port %d, relying on manual forwarding or LAN reachability", port)
	}()
}

func mapViaNATPMP(port int) bool {
	gw, err := discoverGatewayIP()
	if err != nil {
		return false
	}
	client := natpmp.NewClient(gw)
	_, err = client.AddPortMapping("tcp", port, port, portMappingLifetime)
	if err != nil {
		glog.V(logger.Debug).Infof("server: NAT-PMP mapping failed: %v", err)
		return false
	}
	glog.V(logger.Debug).Infof("server: mapped port %d via NAT-PMP", port)
	return true
}

func mapViaUPnP(port int) bool {
	clients, _, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil || len(clients) == 0 {
		return false
	}
	for _, c := range clients {
		err := c.AddPortMapping("", uint16(port), "TCP", uint16(port), localIPv4(), true, "treebcast", portMappingLifetime)
		if err == nil {
			glog.V(logger.Debug).Infof("server: mapped port %d via UPnP", port)
			return true
		}
	}
	return false
}

// discoverGatewayIP guesses the LAN default gateway by assuming it is the
// ".1" host on this machine's primary non-loopback interface subnet. A
// proper NAT-PMP client would read the OS routing table; this is the
// common-case shortcut most lightweight Go NAT helpers use.
func discoverGatewayIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	local := conn.LocalAddr().(*net.UDPAddr).IP.To4()
	if local == nil {
		return nil, errNoIPv4
	}
	gw := make(net.IP, 4)
	copy(gw, local)
	gw[3] = 1
	return gw, nil
}

func localIPv4() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

var errNoIPv4 = &net.AddrError{Err: "no IPv4 address found", Addr: ""}
