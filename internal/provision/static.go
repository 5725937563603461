package provision

import (
	"context"
	"net"
)

// Static echoes the requested credentials back without touching any platform
// backend. It serves hosts where the operating system already manages the
// hotspot and tetherd only runs the proxy side.
type Static struct{}

func (Static) Start(_ context.Context, ssid, passphrase string) (Credentials, error) {
	return Credentials{
		SSID:       ssid,
		Passphrase: passphrase,
		IPAddress:  localIPAddress(),
	}, nil
}

func (Static) Stop(context.Context) error {
	return nil
}

// localIPAddress picks the first non-loopback unicast IPv4 address, falling
// back to loopback.
func localIPAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return "127.0.0.1"
}
