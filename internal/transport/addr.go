package transport

import "net"

// LocalIP returns the address this host uses for outbound traffic, or
// the empty string when no route is up. The UDP dial never sends a
// packet; it only asks the kernel which interface it would pick.
func LocalIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
